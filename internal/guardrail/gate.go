// Package guardrail implements the local safety pre-filter that runs on
// every capture evaluation before any network-bound safety check.
//
// The [Gate] matches the transcript against a fixed set of harmful-intent
// patterns and blocks on any match, regardless of how complete the mandate
// is. Inputs that pass are scored for ambiguity; scores at or above the
// threshold are downgraded to a nudge asking for clarification. Evaluation is
// synchronous, CPU-bound and allocation-light.
package guardrail

import (
	"math"
	"strings"
	"sync/atomic"
)

// DefaultAmbiguityThreshold is the score at which PASS becomes NUDGE.
const DefaultAmbiguityThreshold = 0.30

// Result is the outcome class of a [Verdict].
type Result string

const (
	ResultPass  Result = "PASS"
	ResultBlock Result = "BLOCK"
	ResultNudge Result = "NUDGE"
)

// Verdict is the gate's decision for one input.
type Verdict struct {
	Result         Result   `json:"result"`
	Reason         string   `json:"reason"`
	BlockExecution bool     `json:"block_execution"`
	Pattern        string   `json:"pattern,omitempty"`
	Category       Category `json:"category,omitempty"`
	Ambiguity      float64  `json:"ambiguity"`
}

// Input is what the gate evaluates.
type Input struct {
	// Text is the raw transcript.
	Text string

	// Unfilled and Tracked describe the checklist. Both zero means no
	// dimension information is available.
	Unfilled int
	Tracked  int

	// DraftIntent is the draft's intent summary, if one exists. It is
	// scanned for harmful patterns alongside Text.
	DraftIntent string
}

// Gate evaluates inputs. It is safe for concurrent use.
type Gate struct {
	patterns  []pattern
	threshold atomic.Uint64
}

// Option is a functional option for [New].
type Option func(*Gate)

// WithAmbiguityThreshold sets the NUDGE threshold. Values outside (0, 1] are
// ignored.
func WithAmbiguityThreshold(th float64) Option {
	return func(g *Gate) { g.SetThreshold(th) }
}

// New returns a Gate with the built-in pattern set.
func New(opts ...Option) *Gate {
	g := &Gate{patterns: defaultPatterns}
	g.threshold.Store(math.Float64bits(DefaultAmbiguityThreshold))
	for _, o := range opts {
		o(g)
	}
	return g
}

// Threshold returns the current ambiguity threshold.
func (g *Gate) Threshold() float64 {
	return math.Float64frombits(g.threshold.Load())
}

// SetThreshold replaces the ambiguity threshold. Values outside (0, 1] are
// ignored.
func (g *Gate) SetThreshold(th float64) {
	if th <= 0 || th > 1 || math.IsNaN(th) {
		return
	}
	g.threshold.Store(math.Float64bits(th))
}

// Evaluate returns the verdict for in.
func (g *Gate) Evaluate(in Input) Verdict {
	scan := in.Text
	if in.DraftIntent != "" {
		scan += " " + in.DraftIntent
	}
	if p, ok := g.match(scan); ok {
		return Verdict{
			Result:         ResultBlock,
			Reason:         "request matches a harmful-intent pattern (" + string(p.category) + ")",
			BlockExecution: true,
			Pattern:        p.name,
			Category:       p.category,
		}
	}

	amb := Ambiguity(in.Text, in.Unfilled, in.Tracked)
	if amb >= g.Threshold() {
		return Verdict{
			Result:    ResultNudge,
			Reason:    "request is ambiguous, clarification needed",
			Ambiguity: amb,
		}
	}
	return Verdict{Result: ResultPass, Reason: "ok", Ambiguity: amb}
}

// match returns the first pattern matching text or its canonical form.
func (g *Gate) match(text string) (pattern, bool) {
	for _, p := range g.patterns {
		if p.re.MatchString(text) {
			return p, true
		}
	}
	canon, changed := canonicalize(text)
	if !changed {
		return pattern{}, false
	}
	for _, p := range g.patterns {
		if p.re.MatchString(canon) {
			return p, true
		}
	}
	return pattern{}, false
}

// vagueTerms are words that stand in for an unstated object.
var vagueTerms = map[string]struct{}{
	"something": {},
	"stuff":     {},
	"it":        {},
	"that":      {},
	"this":      {},
	"whatever":  {},
	"somehow":   {},
	"thing":     {},
	"things":    {},
	"someone":   {},
	"somewhere": {},
}

// Ambiguity scores how underspecified text is, in [0, 1]. Empty text scores
// 1. The score grows with the share of vague words, with very short inputs,
// and with the share of unfilled checklist dimensions.
func Ambiguity(text string, unfilled, tracked int) float64 {
	words := tokenize(strings.TrimSpace(text))
	if len(words) == 0 {
		return 1
	}

	vague := 0
	for _, w := range words {
		if _, ok := vagueTerms[w]; ok {
			vague++
		}
	}
	score := float64(vague) / float64(len(words)) * 1.5
	if len(words) <= 2 {
		score += 0.25
	}
	if tracked > 0 && unfilled > 0 {
		score += 0.2 * float64(min(unfilled, tracked)) / float64(tracked)
	}
	return min(score, 1)
}
