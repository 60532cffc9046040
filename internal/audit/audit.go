// Package audit records terminal job outcomes for operators. Events never
// carry the full query: at most a redacted, truncated preview, and only
// when the level allows it.
package audit

import (
	"time"

	"github.com/sumveil/sumveil/internal/job"
	"github.com/sumveil/sumveil/internal/redact"
)

// Audit levels.
const (
	LevelOff      = "off"
	LevelMetadata = "metadata"
	LevelFull     = "full"
)

const (
	eventVersion    = "1"
	maxPreviewBytes = 120
)

// Event is one terminal job outcome.
type Event struct {
	Version      string `json:"version"`
	Timestamp    string `json:"timestamp"`
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	QueryPreview string `json:"query_preview,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	UpstreamMs   int64  `json:"upstream_ms"`
}

// BuildEvent converts a job outcome to an audit event, or nil when the
// level is off. The preview appears only at the full level, after secret
// redaction and truncation.
func BuildEvent(level string, o job.Outcome) *Event {
	if level == LevelOff || level == "" {
		return nil
	}

	ev := &Event{
		Version:    eventVersion,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		JobID:      o.JobID,
		Status:     o.Status,
		Reason:     o.Reason,
		DurationMs: o.Duration.Milliseconds(),
		UpstreamMs: o.UpstreamDuration.Milliseconds(),
	}
	if level == LevelFull {
		ev.QueryPreview = previewQuery(o.Query)
	}
	return ev
}

func previewQuery(q string) string {
	q = redact.String(q)
	if len(q) <= maxPreviewBytes {
		return q
	}
	cut := maxPreviewBytes
	// Back off to a rune boundary.
	for cut > 0 && q[cut]&0xC0 == 0x80 {
		cut--
	}
	return q[:cut] + "..."
}
