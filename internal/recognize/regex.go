package recognize

import (
	"context"
	"regexp"
	"sort"
)

// Entity type labels emitted by the regex engine.
const (
	TypeEmail      = "EMAIL_ADDRESS"
	TypePhone      = "PHONE_NUMBER"
	TypeSSN        = "US_SSN"
	TypeCreditCard = "CREDIT_CARD"
	TypeIPAddress  = "IP_ADDRESS"
	TypeIBAN       = "IBAN_CODE"
	TypePerson     = "PERSON"
)

type regexPattern struct {
	re         *regexp.Regexp
	entityType string
}

// RegexEngine detects structured PII with compiled patterns. It covers the
// machine-recognizable classes (addresses, numbers, identifiers) plus a
// narrow title-prefixed person-name heuristic; bare names need the ONNX
// engine.
type RegexEngine struct {
	patterns []regexPattern
}

// NewRegex builds a regex engine. entities is an allowlist of entity type
// labels; empty means all patterns are active.
func NewRegex(entities []string) *RegexEngine {
	specs := []struct {
		expr       string
		entityType string
	}{
		{`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`, TypeEmail},
		{`\+?\d[\d\s\-()]{7,}\d`, TypePhone},
		{`\b\d{3}-\d{2}-\d{4}\b`, TypeSSN},
		{`\b(?:\d{4}[\- ]){3}\d{4}\b`, TypeCreditCard},
		{`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`, TypeIPAddress},
		{`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`, TypeIBAN},
		// Only names with an honorific are safe to call PII from a regex.
		{`\b(?:Mr|Mrs|Ms|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`, TypePerson},
	}

	allowed := make(map[string]bool, len(entities))
	for _, e := range entities {
		allowed[e] = true
	}

	eng := &RegexEngine{}
	for _, s := range specs {
		if len(allowed) > 0 && !allowed[s.entityType] {
			continue
		}
		eng.patterns = append(eng.patterns, regexPattern{
			re:         regexp.MustCompile(s.expr),
			entityType: s.entityType,
		})
	}
	return eng
}

// Analyze returns the spans of all pattern matches, sorted by start offset.
func (e *RegexEngine) Analyze(ctx context.Context, text string) ([]Span, error) {
	if text == "" {
		return nil, nil
	}

	var spans []Span
	for _, p := range e.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			spans = append(spans, Span{
				Start:  loc[0],
				End:    loc[1],
				Type:   p.entityType,
				Source: "regex",
			})
		}
	}

	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start == spans[j].Start {
			return spans[i].End > spans[j].End
		}
		return spans[i].Start < spans[j].Start
	})
	return spans, nil
}
