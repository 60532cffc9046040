package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sumveil/sumveil/internal/redact"
)

// Sink consumes audit events (file, webhook, etc.).
type Sink interface {
	Name() string
	Deliver(context.Context, *Event) error
	Close(context.Context) error
}

// Counters tracks delivery outcomes. Snapshot via Emitter.Counters.
type Counters struct {
	Enqueued uint64
	Dropped  uint64
	Failed   uint64
}

// Emitter buffers events and delivers them to every sink off the job path.
// A full queue drops the event rather than blocking a worker.
type Emitter struct {
	queue           chan *Event
	sinks           []Sink
	shutdownTimeout time.Duration

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	countsMu sync.Mutex
	counts   Counters
}

// EmitterConfig controls queue and worker sizing.
type EmitterConfig struct {
	QueueSize       int
	Workers         int
	ShutdownTimeout time.Duration
}

// NewEmitter starts background delivery workers.
func NewEmitter(cfg EmitterConfig, sinks []Sink) *Emitter {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	em := &Emitter{
		queue:           make(chan *Event, cfg.QueueSize),
		sinks:           sinks,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		em.wg.Add(1)
		go em.worker()
	}
	return em
}

// Emit enqueues the event without blocking. Nil events are ignored.
func (e *Emitter) Emit(ev *Event) {
	if e == nil || ev == nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.count(func(c *Counters) { c.Dropped++ })
		return
	}

	select {
	case e.queue <- ev:
		e.count(func(c *Counters) { c.Enqueued++ })
	default:
		e.count(func(c *Counters) { c.Dropped++ })
	}
}

// Close stops accepting events and waits briefly for the queue to drain.
func (e *Emitter) Close(ctx context.Context) {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, e.shutdownTimeout)
	defer cancel()

	select {
	case <-done:
	case <-ctx.Done():
	}

	for _, s := range e.sinks {
		if err := s.Close(ctx); err != nil {
			redact.Logf("audit: sink %s close error: %v", s.Name(), err)
		}
	}
}

// Counters returns a snapshot of the delivery counters.
func (e *Emitter) Counters() Counters {
	if e == nil {
		return Counters{}
	}
	e.countsMu.Lock()
	defer e.countsMu.Unlock()
	return e.counts
}

func (e *Emitter) count(apply func(*Counters)) {
	e.countsMu.Lock()
	apply(&e.counts)
	e.countsMu.Unlock()
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for ev := range e.queue {
		for _, s := range e.sinks {
			if err := s.Deliver(context.Background(), ev); err != nil {
				redact.Logf("audit: sink %s failed: %v", s.Name(), err)
				e.count(func(c *Counters) { c.Failed++ })
			}
		}
	}
}
