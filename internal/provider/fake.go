package provider

import (
	"context"
	"io"
	"time"
)

// FakeProvider is a test double. Chunks, when set, drives CompleteStream;
// otherwise the stream replays ResponseText in one chunk. Delay simulates a
// slow upstream and respects context cancellation.
type FakeProvider struct {
	ResponseText string
	Chunks       []string
	Error        error
	Delay        time.Duration

	LastRequest *Request
}

func NewFake(response string) *FakeProvider {
	return &FakeProvider{ResponseText: response}
}

func (f *FakeProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	f.LastRequest = req
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.Error != nil {
		return nil, f.Error
	}
	return &Response{
		Content: f.ResponseText,
		Usage:   Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
	}, nil
}

func (f *FakeProvider) CompleteStream(ctx context.Context, req *Request) (Stream, error) {
	f.LastRequest = req
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if f.Error != nil {
		return nil, f.Error
	}
	chunks := f.Chunks
	if chunks == nil && f.ResponseText != "" {
		chunks = []string{f.ResponseText}
	}
	return &fakeStream{chunks: chunks}, nil
}

func (f *FakeProvider) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeStream struct {
	chunks []string
	next   int
}

func (s *fakeStream) Recv() (*Chunk, error) {
	if s.next >= len(s.chunks) {
		return nil, io.EOF
	}
	c := &Chunk{Delta: s.chunks[s.next]}
	s.next++
	return c, nil
}

func (s *fakeStream) Close() error {
	s.next = len(s.chunks)
	return nil
}
