// Package job runs summarization requests through the anonymize, upstream
// and extraction pipeline, asynchronously via a worker pool or inline for
// synchronous callers.
package job

import (
	"errors"
	"time"
)

// ErrQueueFull means the dispatcher queue had no room; the job is recorded
// as failed and the caller should shed load.
var ErrQueueFull = errors.New("job queue is full")

// Failure reasons recorded on failed jobs.
const (
	ReasonUpstreamError  = "upstream error"
	ReasonTimeout        = "upstream timeout"
	ReasonMalformedReply = "malformed reply"
	ReasonQueueFull      = "queue full"
	ReasonInternal       = "internal error"
)

// Outcome summarizes a finished job for observers (audit, metrics).
type Outcome struct {
	JobID            string
	Status           string
	Reason           string
	Query            string
	Duration         time.Duration
	UpstreamDuration time.Duration
}

// Result is a successful pipeline output before it is stored.
type Result struct {
	Content    string
	Keywords   []string
	Similarity *float64
}

type task struct {
	id     string
	apiKey string
	query  string
}

// Options configures a Dispatcher.
type Options struct {
	Workers   int
	QueueSize int
	// Timeout bounds one pipeline run including the upstream call.
	Timeout time.Duration
	// ScoringEnabled controls whether similarity is computed and attached.
	ScoringEnabled bool
	// OnFinish, when set, observes every terminal job. Called from worker
	// goroutines.
	OnFinish func(Outcome)
}
