// Package anonymize replaces detected PII spans with stable placeholder
// tokens and restores the originals after the upstream round trip.
package anonymize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sumveil/sumveil/internal/recognize"
)

// Mapping records original PII text to its placeholder token, e.g.
// "Alice" -> "PII_0". A given original always maps to one token within a
// single request.
type Mapping map[string]string

// Inverse returns the placeholder-to-original view of the mapping.
func (m Mapping) Inverse() map[string]string {
	inv := make(map[string]string, len(m))
	for original, token := range m {
		inv[token] = original
	}
	return inv
}

// Engine anonymizes text using a recognition engine.
type Engine struct {
	recognizer recognize.Engine
}

func New(recognizer recognize.Engine) *Engine {
	if recognizer == nil {
		recognizer = recognize.NewNoop()
	}
	return &Engine{recognizer: recognizer}
}

// Anonymize replaces every detected span with a placeholder token. Tokens
// are assigned in order of first appearance; repeated occurrences of the
// same original reuse the earlier token. Overlapping spans resolve to the
// earliest-starting, longest span.
func (e *Engine) Anonymize(ctx context.Context, text string) (string, Mapping, error) {
	spans, err := e.recognizer.Analyze(ctx, text)
	if err != nil {
		return "", nil, fmt.Errorf("analyze: %w", err)
	}

	mapping := make(Mapping)
	if len(spans) == 0 {
		return text, mapping, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, s := range spans {
		if s.Start < cursor || s.End > len(text) || s.Start >= s.End {
			continue // overlap or out of range
		}
		original := text[s.Start:s.End]
		token, ok := mapping[original]
		if !ok {
			token = fmt.Sprintf("PII_%d", len(mapping))
			mapping[original] = token
		}
		b.WriteString(text[cursor:s.Start])
		b.WriteString(token)
		cursor = s.End
	}
	b.WriteString(text[cursor:])

	return b.String(), mapping, nil
}

// placeholderRe also matches angle-bracketed variants so replies that echo
// the token as <PII_0> still restore cleanly.
var placeholderRe = regexp.MustCompile(`<?PII_(\d+)>?`)

// Deanonymize restores original PII text for every placeholder token found
// in text. Tokens with no mapping entry are left as bare PII_<n> with any
// angle brackets stripped.
func Deanonymize(text string, mapping Mapping) string {
	if len(mapping) == 0 && !strings.Contains(text, "PII_") {
		return text
	}
	inv := mapping.Inverse()
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		bare := strings.TrimSuffix(strings.TrimPrefix(match, "<"), ">")
		if original, ok := inv[bare]; ok {
			return original
		}
		return bare
	})
}
