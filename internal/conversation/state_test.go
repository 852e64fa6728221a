package conversation_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newState() *conversation.State {
	return conversation.NewState("user-1", "sess-1", conversation.MaxQuestions,
		[]conversation.Dimension{conversation.DimensionWhat, conversation.DimensionWho, conversation.DimensionWhen})
}

func TestState_AddFragment(t *testing.T) {
	t.Parallel()

	s := newState()
	if s.Phase != conversation.PhaseListening {
		t.Fatalf("initial Phase = %v, want LISTENING", s.Phase)
	}
	if !s.CreatedAt.IsZero() {
		t.Fatalf("initial CreatedAt = %v, want zero", s.CreatedAt)
	}
	s.AddFragment(conversation.Fragment{Text: "Book a flight", At: t0.Add(time.Second)})
	s.AddFragment(conversation.Fragment{Text: " for next Monday ", SubIntents: []string{"travel"}, At: t0.Add(2 * time.Second)})

	if got := s.CombinedTranscript(); got != "Book a flight for next Monday" {
		t.Errorf("CombinedTranscript() = %q, want %q", got, "Book a flight for next Monday")
	}
	if s.Phase != conversation.PhaseActiveCapture {
		t.Errorf("Phase = %v, want ACTIVE_CAPTURE", s.Phase)
	}
	if !s.LastFragmentAt.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("LastFragmentAt = %v, want t0+2s", s.LastFragmentAt)
	}
	if !s.CreatedAt.Equal(t0.Add(time.Second)) {
		t.Errorf("CreatedAt = %v, want first fragment time", s.CreatedAt)
	}
	if got := s.SubIntents(); len(got) != 1 || got[0] != "travel" {
		t.Errorf("SubIntents() = %v, want [travel]", got)
	}
}

func TestState_QuestionBudget(t *testing.T) {
	t.Parallel()

	s := newState()
	for i := range 3 {
		if !s.CanAskQuestion() {
			t.Fatalf("CanAskQuestion() before question %d = false, want true", i+1)
		}
		if !s.RecordQuestion("q") {
			t.Fatalf("RecordQuestion() %d = false, want true", i+1)
		}
	}
	if s.CanAskQuestion() {
		t.Error("CanAskQuestion() after 3 questions = true, want false")
	}
	if s.RecordQuestion("extra") {
		t.Error("RecordQuestion() past budget = true, want false")
	}
	if s.QuestionsAsked != 3 {
		t.Errorf("QuestionsAsked = %d, want 3", s.QuestionsAsked)
	}
	if s.RemainingQuestions() != 0 {
		t.Errorf("RemainingQuestions() = %d, want 0", s.RemainingQuestions())
	}
}

func TestState_BudgetClamped(t *testing.T) {
	t.Parallel()

	s := conversation.NewState("u", "s", 10, nil)
	if s.Budget != conversation.MaxQuestions {
		t.Errorf("Budget = %d, want %d", s.Budget, conversation.MaxQuestions)
	}
	s = conversation.NewState("u", "s", -1, nil)
	if s.CanAskQuestion() {
		t.Error("CanAskQuestion() with zero budget = true")
	}
}

func TestState_Reset(t *testing.T) {
	t.Parallel()

	s := newState()
	s.AddFragment(conversation.Fragment{Text: "x"})
	s.FillChecklist(conversation.DimensionWhat, "x", conversation.SourceUserSaid)
	s.RecordQuestion("Who is this for?")
	s.Hold(conversation.DimensionWho)

	s.Reset()

	if len(s.Fragments) != 0 {
		t.Errorf("Fragments len = %d, want 0", len(s.Fragments))
	}
	if s.Phase != conversation.PhaseListening {
		t.Errorf("Phase = %v, want LISTENING", s.Phase)
	}
	if s.RemainingQuestions() != conversation.MaxQuestions {
		t.Errorf("RemainingQuestions() = %d, want %d", s.RemainingQuestions(), conversation.MaxQuestions)
	}
	if got := len(s.Unfilled()); got != 3 {
		t.Errorf("Unfilled() len = %d, want 3 (required dimensions re-tracked)", got)
	}
	if !s.CreatedAt.IsZero() {
		t.Errorf("CreatedAt = %v, want zero until the next fragment", s.CreatedAt)
	}
	next := t0.Add(time.Hour)
	s.AddFragment(conversation.Fragment{Text: "y", At: next})
	if !s.CreatedAt.Equal(next) {
		t.Errorf("CreatedAt = %v, want %v", s.CreatedAt, next)
	}
}

func TestState_HoldResume(t *testing.T) {
	t.Parallel()

	s := newState()
	s.AddFragment(conversation.Fragment{Text: "x"})
	s.Hold(conversation.DimensionWhen)
	if s.Phase != conversation.PhaseHeld || s.Pending != conversation.DimensionWhen {
		t.Fatalf("after Hold: Phase=%v Pending=%v, want HELD when", s.Phase, s.Pending)
	}
	s.Resume()
	if s.Phase != conversation.PhaseActiveCapture {
		t.Errorf("after Resume: Phase = %v, want ACTIVE_CAPTURE", s.Phase)
	}
	s.MarkProcessing()
	s.Resume()
	if s.Phase != conversation.PhaseProcessing {
		t.Errorf("Resume outside HELD changed Phase to %v", s.Phase)
	}
}

func TestState_Expired(t *testing.T) {
	t.Parallel()

	s := newState()
	if s.Expired(t0.Add(time.Hour), time.Minute) {
		t.Error("empty state reported expired")
	}
	s.AddFragment(conversation.Fragment{Text: "x", At: t0})
	tests := []struct {
		at   time.Duration
		want bool
	}{
		{59 * time.Second, false},
		{time.Minute, true},
		{2 * time.Minute, true},
	}
	for _, tt := range tests {
		if got := s.Expired(t0.Add(tt.at), time.Minute); got != tt.want {
			t.Errorf("Expired(t0+%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestState_SnapshotIsDeep(t *testing.T) {
	t.Parallel()

	s := newState()
	s.AddFragment(conversation.Fragment{Text: "a", SubIntents: []string{"x"}})
	snap := s.Snapshot()

	snap.Fragments[0].SubIntents[0] = "mutated"
	snap.Fragments = append(snap.Fragments, conversation.Fragment{Text: "b"})
	snap.Checklist.Fill(conversation.DimensionWho, "Bob", conversation.SourceUserSaid)

	if s.Fragments[0].SubIntents[0] != "x" {
		t.Error("snapshot shares sub-intent storage with state")
	}
	if len(s.Fragments) != 1 {
		t.Error("snapshot append leaked into state")
	}
	if len(s.Unfilled()) != 3 {
		t.Error("snapshot checklist shares storage with state")
	}
}

func TestPhase_Text(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(map[string]conversation.Phase{"phase": conversation.PhaseHeld})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"phase":"HELD"}` {
		t.Errorf("Marshal = %s, want {\"phase\":\"HELD\"}", b)
	}

	var p conversation.Phase
	if err := p.UnmarshalText([]byte("PROCESSING")); err != nil || p != conversation.PhaseProcessing {
		t.Errorf("UnmarshalText(PROCESSING) = (%v, %v), want PROCESSING", p, err)
	}
	if err := p.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText(bogus) err = nil, want error")
	}
}

func TestFragmentFromTranscript(t *testing.T) {
	t.Parallel()

	tr := types.Transcript{
		Text:       "Send email to Bob",
		IsFinal:    true,
		Confidence: 0.8,
		Provenance: types.ProvenanceTyped,
		SpanIDs:    []int64{1, 2},
		Timestamp:  t0,
	}
	f := conversation.FragmentFromTranscript(tr)
	if f.Text != tr.Text || f.Confidence != 0.8 || f.Provenance != types.ProvenanceTyped || !f.At.Equal(t0) {
		t.Errorf("FragmentFromTranscript = %+v", f)
	}
	tr.SpanIDs[0] = 99
	if f.SpanIDs[0] != 1 {
		t.Error("fragment shares span storage with transcript")
	}
}
