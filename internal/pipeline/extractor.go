package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/myndlens/myndlens-p-sub000/internal/conversation"
)

// KeywordExtractor is a local, rule-based [DimensionExtractor]. It is the
// default when no NLP collaborator is configured and recognises common
// phrasings only.
type KeywordExtractor struct{}

var _ DimensionExtractor = KeywordExtractor{}

const weekdays = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`

var (
	whenRe = regexp.MustCompile(`(?i)\b(?:today|tonight|tomorrow|now|asap|` +
		`this (?:morning|afternoon|evening|week|weekend)|` +
		`next (?:week|month|year|` + weekdays + `)|` +
		`(?:on )?(?:` + weekdays + `)|` +
		`at \d{1,2}(?::\d{2})?\s*(?:am|pm)?|` +
		`in \d+ (?:minutes?|hours?|days?|weeks?))\b`)

	whoRe = regexp.MustCompile(`\b(?i:for|to|with|email|call|text|message|tell|ask|invite|remind)\s+` +
		`((?i:me|myself|him|her|them|us)\b|(?i:my)\s+\w+|[A-Z][\w'-]+)`)

	whereRe = regexp.MustCompile(`\b(?i:in|at|near|from)\s+(?:the\s+)?([A-Z][\w'-]+(?:\s+[A-Z][\w'-]+)*)`)

	howRe = regexp.MustCompile(`(?i)\b(?:by|via|using|through)\s+(\w+(?:\s+\w+)?)`)

	clauseRe = regexp.MustCompile(`(?i)\s*(?:,\s*)?\b(?:and then|then|and also|also)\b\s*`)

	weekdayRe = regexp.MustCompile(`(?i)^(?:` + weekdays + `)$`)
)

// leadWords cannot start a "what": the fragment is a qualifier, not a request.
var leadWords = map[string]struct{}{
	"for": {}, "to": {}, "at": {}, "in": {}, "on": {}, "with": {}, "next": {}, "by": {},
	"tomorrow": {}, "today": {}, "tonight": {},
}

// Extract implements [DimensionExtractor].
func (KeywordExtractor) Extract(_ context.Context, text string) (Extraction, error) {
	text = strings.TrimSpace(text)
	ex := Extraction{Values: make(map[conversation.Dimension]string)}
	if text == "" {
		return ex, nil
	}

	if m := whenRe.FindString(text); m != "" {
		ex.Values[conversation.DimensionWhen] = m
	}
	for _, m := range whoRe.FindAllStringSubmatch(text, -1) {
		if !weekdayRe.MatchString(m[1]) {
			ex.Values[conversation.DimensionWho] = m[1]
			break
		}
	}
	for _, m := range whereRe.FindAllStringSubmatch(text, -1) {
		if !weekdayRe.MatchString(m[1]) {
			ex.Values[conversation.DimensionWhere] = m[1]
			break
		}
	}
	if m := howRe.FindStringSubmatch(text); m != nil {
		ex.Values[conversation.DimensionHow] = m[1]
	}

	words := strings.Fields(text)
	if _, lead := leadWords[strings.ToLower(words[0])]; !lead && len(words) >= 2 {
		ex.Values[conversation.DimensionWhat] = text
	}

	if parts := clauseRe.Split(text, -1); len(parts) > 1 {
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				ex.SubIntents = append(ex.SubIntents, p)
			}
		}
	}
	return ex, nil
}
