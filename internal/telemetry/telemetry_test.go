package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/sumveil/sumveil/internal/job"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if p.Enabled {
		t.Fatalf("provider reports enabled")
	}

	// Recording against the noop meter must be safe.
	p.RecordJob(job.Outcome{Status: "succeeded", Duration: 120 * time.Millisecond})
	p.RecordJob(job.Outcome{Status: "failed", Reason: "upstream error", Duration: time.Second})
	p.ObserveQueueDepth(func() int64 { return 3 })
	p.Shutdown(context.Background())
}

func TestUnknownProtocolIsAnError(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{
		Enabled:  true,
		Protocol: "carrier-pigeon",
		Endpoint: "localhost:4317",
	})
	if err == nil {
		t.Fatalf("expected error, got provider %+v", p)
	}
}
