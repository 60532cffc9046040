package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// SQLite driver.
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS job (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	result TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_created_at ON job (created_at);
`

// SQLiteStore persists jobs in a SQLite file so results survive restarts.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLite opens the database, applies WAL-friendly pragmas and creates
// the schema.
func NewSQLite(dsn string, ttl time.Duration) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	// With the modernc driver each pragma is passed as `_pragma=` in the DSN.
	// WAL avoids locking issues; a single connection is optimal with WAL.
	db, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db at %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, id string) error {
	s.cleanup(ctx)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO job (id, status, created_at) VALUES (?, ?, ?)",
		id, StatusPending, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkRunning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE job SET status = ? WHERE id = ? AND status NOT IN (?, ?)",
		StatusRunning, id, StatusSucceeded, StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, result *SummaryResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE job SET status = ?, result = ? WHERE id = ? AND status NOT IN (?, ?)",
		StatusSucceeded, string(payload), id, StatusSucceeded, StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) Fail(ctx context.Context, id string, reason string) error {
	payload, err := json.Marshal(&SummaryResult{Error: reason})
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE job SET status = ?, result = ? WHERE id = ? AND status NOT IN (?, ?)",
		StatusFailed, string(payload), id, StatusSucceeded, StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	var (
		job       Job
		result    sql.NullString
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, status, result, created_at FROM job WHERE id = ?", id,
	).Scan(&job.ID, &job.Status, &result, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.CreatedAt = time.UnixMilli(createdAt).UTC()
	if time.Since(job.CreatedAt) > s.ttl {
		return nil, ErrNotFound
	}
	if result.Valid && result.String != "" {
		var sr SummaryResult
		if err := json.Unmarshal([]byte(result.String), &sr); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &sr
	}
	return &job, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// checkTransition distinguishes "unknown job" from "terminal already" when
// a conditional update matched no rows.
func (s *SQLiteStore) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM job WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query job status: %w", err)
	}
	if terminal(status) {
		return ErrAlreadyTerminal
	}
	return ErrNotFound
}

// cleanup drops expired rows. Best effort; a failed cleanup never blocks a
// write.
func (s *SQLiteStore) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl).UnixMilli()
	_, _ = s.db.ExecContext(ctx, "DELETE FROM job WHERE created_at < ?", cutoff)
}
