// Package store tracks summarization jobs from submission to a terminal
// state. Implementations never persist the submitted query text, only the
// job metadata and the finished result.
package store

import (
	"context"
	"errors"
	"time"
)

// Job statuses. A job moves pending -> running -> succeeded|failed and
// never leaves a terminal state.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var (
	// ErrNotFound means the job id is unknown or its record expired.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyTerminal means a completion raced another one; the first
	// terminal transition wins.
	ErrAlreadyTerminal = errors.New("job already in a terminal state")
)

// SummaryResult is the payload of a finished job. Error is set only on
// failed jobs.
type SummaryResult struct {
	Content    string   `json:"content,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Job is the pollable view of a summarization request.
type Job struct {
	ID        string         `json:"job_id"`
	Status    string         `json:"status"`
	Result    *SummaryResult `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store persists jobs. Implementations are safe for concurrent use.
type Store interface {
	// Create inserts a new pending job.
	Create(ctx context.Context, id string) error
	// MarkRunning moves a pending job to running.
	MarkRunning(ctx context.Context, id string) error
	// Complete moves a job to succeeded with its result. Returns
	// ErrAlreadyTerminal if the job already finished.
	Complete(ctx context.Context, id string, result *SummaryResult) error
	// Fail moves a job to failed with a reason. Returns ErrAlreadyTerminal
	// if the job already finished.
	Fail(ctx context.Context, id string, reason string) error
	// Get returns the job or ErrNotFound.
	Get(ctx context.Context, id string) (*Job, error)
	Close() error
}

func terminal(status string) bool {
	return status == StatusSucceeded || status == StatusFailed
}
