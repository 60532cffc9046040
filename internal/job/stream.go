package job

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sumveil/sumveil/internal/anonymize"
	"github.com/sumveil/sumveil/internal/extract"
	"github.com/sumveil/sumveil/internal/provider"
)

// StreamTo runs the pipeline in streaming mode and hands de-anonymized
// deltas to emit as they arrive. Placeholders split across upstream chunks
// are reassembled before emission. Streaming results are not stored.
func (d *Dispatcher) StreamTo(ctx context.Context, apiKey, query string, emit func(delta string) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	redacted, mapping, err := d.anonymizer.Anonymize(ctx, query)
	if err != nil {
		return fmt.Errorf("anonymize: %w", err)
	}

	stream, err := d.provider.CompleteStream(ctx, &provider.Request{
		APIKey: apiKey,
		System: extract.Instruction,
		Prompt: extract.PromptPrefix + redacted,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	deanon := anonymize.NewStreamDeanonymizer(mapping)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if out := deanon.Feed(chunk.Delta); out != "" {
			if err := emit(out); err != nil {
				return err
			}
		}
	}
	if out := deanon.Flush(); out != "" {
		if err := emit(out); err != nil {
			return err
		}
	}
	return nil
}
