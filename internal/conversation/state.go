// Package conversation implements the per-user capture state machine: the
// ordered transcript fragments, the dimension checklist, the clarifying
// question budget, the capture phase, and the [Registry] that owns every
// state and migrates it across reconnects.
package conversation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

// MaxQuestions is the hard cap on clarifying questions per mandate.
const MaxQuestions = 3

// Phase is the capture phase of a [State].
type Phase int

const (
	// PhaseListening is the idle phase before the first fragment.
	PhaseListening Phase = iota

	// PhaseActiveCapture means fragments are being accumulated.
	PhaseActiveCapture

	// PhaseHeld means a clarifying question is outstanding.
	PhaseHeld

	// PhaseProcessing means a draft was handed to intent resolution.
	PhaseProcessing
)

var phaseNames = [...]string{"LISTENING", "ACTIVE_CAPTURE", "HELD", "PROCESSING"}

// String returns the upper-case phase name, e.g. "HELD".
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "UNKNOWN"
	}
	return phaseNames[p]
}

// MarshalText implements [encoding.TextMarshaler].
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (p *Phase) UnmarshalText(b []byte) error {
	for i, n := range phaseNames {
		if n == string(b) {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("conversation: unknown phase %q", string(b))
}

// Fragment is one appended piece of user input.
type Fragment struct {
	Text       string           `json:"text"`
	SubIntents []string         `json:"sub_intents,omitempty"`
	Confidence float64          `json:"confidence"`
	Provenance types.Provenance `json:"provenance"`
	SpanIDs    []int64          `json:"span_ids,omitempty"`
	At         time.Time        `json:"at"`
}

// FragmentFromTranscript converts a final transcript into a [Fragment].
func FragmentFromTranscript(t types.Transcript) Fragment {
	return Fragment{
		Text:       t.Text,
		Confidence: t.Confidence,
		Provenance: t.Provenance,
		SpanIDs:    slices.Clone(t.SpanIDs),
		At:         t.Timestamp,
	}
}

// State is the capture state of one user. It is not safe for concurrent
// use; the [Registry] serialises all access for a user.
type State struct {
	UserID    string
	SessionID string

	Fragments []Fragment
	Checklist Checklist

	// QuestionsAsked never exceeds the budget, which never exceeds MaxQuestions.
	QuestionsAsked int
	Budget         int
	LastQuestion   string

	Phase Phase

	// Pending is the dimension the outstanding question asks about. Only
	// meaningful while Phase is PhaseHeld.
	Pending Dimension

	// CreatedAt anchors the capture window at the first fragment of the
	// mandate. It is zero until then and never changes once set; only Reset
	// clears it for the next mandate.
	CreatedAt      time.Time
	LastFragmentAt time.Time

	required []Dimension
}

// NewState returns a LISTENING state tracking the required dimensions.
func NewState(userID, sessionID string, budget int, required []Dimension) *State {
	s := &State{
		UserID:    userID,
		SessionID: sessionID,
		required:  slices.Clone(required),
	}
	s.Budget = clampBudget(budget)
	s.Checklist = NewChecklist(s.required...)
	return s
}

func clampBudget(b int) int {
	return min(max(b, 0), MaxQuestions)
}

// AddFragment appends f and moves a LISTENING state into ACTIVE_CAPTURE. The
// first fragment of a mandate anchors the capture window.
func (s *State) AddFragment(f Fragment) {
	if f.At.IsZero() {
		f.At = time.Now()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = f.At
	}
	s.Fragments = append(s.Fragments, f)
	s.LastFragmentAt = f.At
	if s.Phase == PhaseListening {
		s.Phase = PhaseActiveCapture
	}
}

// CombinedTranscript joins the fragment texts in order.
func (s *State) CombinedTranscript() string {
	parts := make([]string, 0, len(s.Fragments))
	for _, f := range s.Fragments {
		if t := strings.TrimSpace(f.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// SubIntents returns the sub-intents of all fragments in order.
func (s *State) SubIntents() []string {
	var out []string
	for _, f := range s.Fragments {
		out = append(out, f.SubIntents...)
	}
	return out
}

// FillChecklist upserts the item for d and marks it filled.
func (s *State) FillChecklist(d Dimension, value string, source Source) {
	s.Checklist.Fill(d, value, source)
}

// Unfilled returns the unfilled checklist items.
func (s *State) Unfilled() []ChecklistItem { return s.Checklist.Unfilled() }

// CanAskQuestion reports whether question budget remains.
func (s *State) CanAskQuestion() bool { return s.RemainingQuestions() > 0 }

// RemainingQuestions returns the unused question budget.
func (s *State) RemainingQuestions() int { return max(s.Budget-s.QuestionsAsked, 0) }

// RecordQuestion consumes one unit of budget. It reports false, and changes
// nothing, when the budget is exhausted.
func (s *State) RecordQuestion(text string) bool {
	if !s.CanAskQuestion() {
		return false
	}
	s.QuestionsAsked++
	s.LastQuestion = text
	return true
}

// Hold records an outstanding question about d.
func (s *State) Hold(d Dimension) {
	s.Phase = PhaseHeld
	s.Pending = d
}

// Resume leaves HELD and returns to ACTIVE_CAPTURE.
func (s *State) Resume() {
	if s.Phase == PhaseHeld {
		s.Phase = PhaseActiveCapture
	}
}

// MarkProcessing records that a draft was handed off.
func (s *State) MarkProcessing() { s.Phase = PhaseProcessing }

// Reset clears fragments and checklist values, returns to LISTENING and
// restores the question budget. The next fragment opens a new capture window.
func (s *State) Reset() {
	s.Fragments = nil
	s.Checklist = NewChecklist(s.required...)
	s.QuestionsAsked = 0
	s.LastQuestion = ""
	s.Phase = PhaseListening
	s.Pending = 0
	s.CreatedAt = time.Time{}
	s.LastFragmentAt = time.Time{}
}

// Expired reports whether a mandate is in progress and its capture window,
// starting at CreatedAt, has passed.
func (s *State) Expired(now time.Time, window time.Duration) bool {
	return window > 0 && len(s.Fragments) > 0 && now.Sub(s.CreatedAt) >= window
}

// Snapshot returns a deep copy of s.
func (s *State) Snapshot() State {
	c := *s
	c.Fragments = make([]Fragment, len(s.Fragments))
	for i, f := range s.Fragments {
		f.SubIntents = slices.Clone(f.SubIntents)
		f.SpanIDs = slices.Clone(f.SpanIDs)
		c.Fragments[i] = f
	}
	c.required = slices.Clone(s.required)
	return c
}
