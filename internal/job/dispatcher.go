package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sumveil/sumveil/internal/anonymize"
	"github.com/sumveil/sumveil/internal/extract"
	"github.com/sumveil/sumveil/internal/provider"
	"github.com/sumveil/sumveil/internal/redact"
	"github.com/sumveil/sumveil/internal/store"
)

// Dispatcher owns the worker pool. Submit never blocks on a full queue.
type Dispatcher struct {
	store      store.Store
	provider   provider.Provider
	anonymizer *anonymize.Engine
	opts       Options

	queue chan task
	wg    sync.WaitGroup

	closeOnce sync.Once
}

func NewDispatcher(st store.Store, prov provider.Provider, anon *anonymize.Engine, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if anon == nil {
		anon = anonymize.New(nil)
	}

	d := &Dispatcher{
		store:      st,
		provider:   prov,
		anonymizer: anon,
		opts:       opts,
		queue:      make(chan task, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Submit registers a new job and enqueues it. On a full queue the job is
// recorded as failed and ErrQueueFull is returned so the caller can reply
// 503; the job id is still valid for polling.
func (d *Dispatcher) Submit(ctx context.Context, apiKey, query string) (string, error) {
	id := uuid.NewString()
	if err := d.store.Create(ctx, id); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	select {
	case d.queue <- task{id: id, apiKey: apiKey, query: query}:
		return id, nil
	default:
		if err := d.store.Fail(ctx, id, ReasonQueueFull); err != nil {
			redact.Logf("job %s: record queue overflow: %v", id, err)
		}
		d.finish(Outcome{JobID: id, Status: store.StatusFailed, Reason: ReasonQueueFull, Query: query})
		return id, ErrQueueFull
	}
}

// Run executes the pipeline inline for synchronous callers. The job is
// still recorded in the store so it can be fetched again later.
func (d *Dispatcher) Run(ctx context.Context, apiKey, query string) (string, *Result, error) {
	id := uuid.NewString()
	if err := d.store.Create(ctx, id); err != nil {
		return "", nil, fmt.Errorf("create job: %w", err)
	}
	res := d.process(ctx, task{id: id, apiKey: apiKey, query: query})
	if res.err != nil {
		return id, nil, res.err
	}
	return id, res.result, nil
}

// QueueDepth reports how many submitted jobs are waiting for a worker.
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Close stops accepting work and waits for in-flight jobs to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.queue {
		d.process(context.Background(), t)
	}
}

type processResult struct {
	result *Result
	err    error
}

// process runs one job to a terminal state. Panics in the pipeline fail the
// job instead of killing the worker.
func (d *Dispatcher) process(ctx context.Context, t task) (out processResult) {
	started := time.Now()
	var upstreamDur time.Duration

	defer func() {
		if r := recover(); r != nil {
			redact.Logf("job %s: panic: %v", t.id, r)
			d.fail(t, ReasonInternal, started, upstreamDur)
			out = processResult{err: fmt.Errorf("job %s: %s", t.id, ReasonInternal)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	if err := d.store.MarkRunning(ctx, t.id); err != nil {
		redact.Logf("job %s: mark running: %v", t.id, err)
	}

	result, dur, err := d.runPipeline(ctx, t.apiKey, t.query)
	upstreamDur = dur
	if err != nil {
		reason := FailureReason(err)
		redact.Logf("job %s: %s: %v", t.id, reason, err)
		d.fail(t, reason, started, upstreamDur)
		return processResult{err: err}
	}

	// The per-job context may already be spent; the terminal write gets its
	// own budget so a slow upstream cannot strand the job in running.
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer storeCancel()
	if err := d.store.Complete(storeCtx, t.id, &store.SummaryResult{
		Content:    result.Content,
		Keywords:   result.Keywords,
		Similarity: result.Similarity,
	}); err != nil && !errors.Is(err, store.ErrAlreadyTerminal) {
		redact.Logf("job %s: store result: %v", t.id, err)
	}
	d.finish(Outcome{
		JobID:            t.id,
		Status:           store.StatusSucceeded,
		Query:            t.query,
		Duration:         time.Since(started),
		UpstreamDuration: upstreamDur,
	})
	return processResult{result: result}
}

// runPipeline is the core exchange: anonymize the query, call upstream with
// the redacted prompt, restore placeholders in the reply, then parse and
// score it.
func (d *Dispatcher) runPipeline(ctx context.Context, apiKey, query string) (*Result, time.Duration, error) {
	redacted, mapping, err := d.anonymizer.Anonymize(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("anonymize: %w", err)
	}

	upstreamStart := time.Now()
	resp, err := d.provider.Complete(ctx, &provider.Request{
		APIKey: apiKey,
		System: extract.Instruction,
		Prompt: extract.PromptPrefix + redacted,
	})
	upstreamDur := time.Since(upstreamStart)
	if err != nil {
		return nil, upstreamDur, err
	}

	reply := anonymize.Deanonymize(resp.Content, mapping)
	sum, err := extract.ParseReply(reply)
	if err != nil {
		return nil, upstreamDur, err
	}

	result := &Result{Content: reply, Keywords: sum.Keywords}
	if d.opts.ScoringEnabled {
		score := extract.Score(query, sum.Narrative, sum.Keywords)
		result.Similarity = &score
	}
	return result, upstreamDur, nil
}

func (d *Dispatcher) fail(t task, reason string, started time.Time, upstreamDur time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.store.Fail(ctx, t.id, reason); err != nil && !errors.Is(err, store.ErrAlreadyTerminal) {
		redact.Logf("job %s: record failure: %v", t.id, err)
	}
	d.finish(Outcome{
		JobID:            t.id,
		Status:           store.StatusFailed,
		Reason:           reason,
		Query:            t.query,
		Duration:         time.Since(started),
		UpstreamDuration: upstreamDur,
	})
}

func (d *Dispatcher) finish(o Outcome) {
	if d.opts.OnFinish != nil {
		d.opts.OnFinish(o)
	}
}

// FailureReason maps pipeline errors to the stable reasons stored on the
// job record. The raw error text never reaches the client.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, extract.ErrMalformedReply):
		return ReasonMalformedReply
	}
	var ue *provider.UpstreamError
	if errors.As(err, &ue) {
		return ReasonUpstreamError
	}
	return ReasonInternal
}
