// Package provider holds the upstream LLM client interface and its
// implementations.
package provider

import (
	"context"
	"fmt"
)

// Request is a single summarization exchange: a system instruction plus the
// user prompt. APIKey, when set, overrides the provider's configured key
// for this request only.
type Request struct {
	APIKey string
	Model  string
	System string
	Prompt string
}

// Usage mirrors the upstream token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the assistant reply for a non-streaming request.
type Response struct {
	Content string
	Usage   Usage
}

// Chunk is one streamed delta of the assistant reply.
type Chunk struct {
	Delta string
}

// Stream yields reply chunks until io.EOF.
type Stream interface {
	Recv() (*Chunk, error)
	Close() error
}

// Provider is the interface for all upstream LLM providers.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	CompleteStream(ctx context.Context, req *Request) (Stream, error)
}

// UpstreamError reports a failed upstream exchange: a non-2xx reply (Status
// set) or a transport-level failure (Err set, Status zero).
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		if e.Message != "" {
			return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Message)
		}
		return fmt.Sprintf("upstream error: status %d", e.Status)
	}
	if e.Err != nil {
		return "upstream error: " + e.Err.Error()
	}
	if e.Message != "" {
		return "upstream error: " + e.Message
	}
	return "upstream error"
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
