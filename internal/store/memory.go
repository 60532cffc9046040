package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	job       Job
	expiresAt time.Time
}

// MemoryStore keeps jobs in a mutex-guarded map with lazy TTL cleanup.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[string]memoryEntry
}

func NewMemory(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryStore{
		ttl:  ttl,
		data: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Create(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	s.data[id] = memoryEntry{
		job: Job{
			ID:        id,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
		},
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) MarkRunning(ctx context.Context, id string) error {
	return s.transition(id, func(job *Job) error {
		if terminal(job.Status) {
			return ErrAlreadyTerminal
		}
		job.Status = StatusRunning
		return nil
	})
}

func (s *MemoryStore) Complete(ctx context.Context, id string, result *SummaryResult) error {
	return s.transition(id, func(job *Job) error {
		if terminal(job.Status) {
			return ErrAlreadyTerminal
		}
		job.Status = StatusSucceeded
		job.Result = result
		return nil
	})
}

func (s *MemoryStore) Fail(ctx context.Context, id string, reason string) error {
	return s.transition(id, func(job *Job) error {
		if terminal(job.Status) {
			return ErrAlreadyTerminal
		}
		job.Status = StatusFailed
		job.Result = &SummaryResult{Error: reason}
		return nil
	})
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	entry, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	job := entry.job
	return &job, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) transition(id string, apply func(*Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
	entry, ok := s.data[id]
	if !ok {
		return ErrNotFound
	}
	if err := apply(&entry.job); err != nil {
		return err
	}
	entry.expiresAt = time.Now().Add(s.ttl)
	s.data[id] = entry
	return nil
}

func (s *MemoryStore) cleanupLocked() {
	now := time.Now()
	for k, v := range s.data {
		if now.After(v.expiresAt) {
			delete(s.data, k)
		}
	}
}
