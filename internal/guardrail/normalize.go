package guardrail

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

// Transcripts arrive from STT and can carry near-miss spellings of the
// words the patterns key on. Tokens that closely resemble one of these
// keywords are rewritten to it before a second matching pass.
var keywords = []string{
	"exploit",
	"exfiltrate",
	"credentials",
	"passwords",
	"bypass",
	"security",
	"destroy",
	"everything",
}

const (
	// minFuzzyLen is the shortest token considered for correction.
	minFuzzyLen = 6

	// maxEdits bounds the Damerau-Levenshtein distance between a token and
	// the keyword it is corrected to. A transposition counts as one edit.
	maxEdits = 1
)

// tokenize lower-cases text and splits it on anything that is not a letter
// or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// canonicalize returns text with near-miss keyword spellings corrected, and
// whether anything changed.
func canonicalize(text string) (string, bool) {
	tokens := tokenize(text)
	changed := false
	for i, tok := range tokens {
		if kw, ok := correct(tok); ok && kw != tok {
			tokens[i] = kw
			changed = true
		}
	}
	return strings.Join(tokens, " "), changed
}

// correct returns the keyword tok most likely stands for. A candidate must
// share a Double Metaphone code with tok and lie within maxEdits of it;
// Jaro-Winkler similarity breaks ties between candidates.
func correct(tok string) (string, bool) {
	if len(tok) < minFuzzyLen {
		return "", false
	}
	var (
		best      string
		bestScore float64
	)
	for _, kw := range keywords {
		if kw[0] != tok[0] || abs(len(kw)-len(tok)) > maxEdits {
			continue
		}
		if matchr.DamerauLevenshtein(tok, kw) > maxEdits || !metaphoneMatch(tok, kw) {
			continue
		}
		if score := matchr.JaroWinkler(tok, kw, false); score > bestScore {
			best, bestScore = kw, score
		}
	}
	return best, best != ""
}

func metaphoneMatch(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
