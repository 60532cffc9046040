package recognize

import "context"

// Span is a detected PII span with byte offsets into the analyzed text.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
	// Source names the detection layer that produced the span, e.g. "regex"
	// or "ner".
	Source string `json:"source,omitempty"`
}

// Engine detects PII spans in free-form text. Implementations must be safe
// for concurrent use: one engine instance serves every worker.
type Engine interface {
	Analyze(ctx context.Context, text string) ([]Span, error)
}

type noopEngine struct{}

// NewNoop returns an engine that never detects anything. Used when
// recognition is disabled; anonymization degrades to an identity transform.
func NewNoop() Engine {
	return &noopEngine{}
}

func (e *noopEngine) Analyze(ctx context.Context, text string) ([]Span, error) {
	return nil, nil
}
