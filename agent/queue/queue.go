// Package queue provides a backend-agnostic durable execution queue: jobs are
// enqueued once, claimed by a single poll loop, and retried until they
// succeed or exhaust their attempt budget, at which point they move to the
// backend's dead-letter store.
package queue

import (
	"context"
	"sync"
	"time"
)

// QueueJob is a unit of work claimed from a Backend.
type QueueJob struct {
	JobID       string
	Payload     map[string]any
	Attempts    int
	MaxAttempts int
}

// Backend persists queued jobs and their dead-letter counterparts. All
// methods must be safe for concurrent use by the queue's single poll loop
// and any number of Submit callers.
type Backend interface {
	Enqueue(ctx context.Context, payload map[string]any, maxAttempts int) (string, error)
	ClaimNext(ctx context.Context) (*QueueJob, error)
	MarkDone(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, job QueueJob, errMsg string) error
	Requeue(ctx context.Context, job QueueJob, errMsg string) error
}

// Handler processes a job's payload and returns its result.
type Handler func(ctx context.Context, payload map[string]any) (any, error)

// Option configures a DurableExecutionQueue.
type Option func(*DurableExecutionQueue)

// WithPollInterval sets the delay between empty claim attempts. Default
// 100ms, matching the reference poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(q *DurableExecutionQueue) { q.pollInterval = d }
}

// WithMaxAttempts sets the default attempt budget for jobs submitted without
// an explicit override. Default 3.
func WithMaxAttempts(n int) Option {
	return func(q *DurableExecutionQueue) { q.maxAttempts = n }
}

type pending struct {
	result any
	err    error
	done   chan struct{}
}

// DurableExecutionQueue runs a single background worker that claims jobs
// from a Backend and runs them through a Handler, at-least-once, retrying
// failures up to each job's MaxAttempts before moving it to the backend's
// dead-letter queue.
type DurableExecutionQueue struct {
	backend      Backend
	handler      Handler
	pollInterval time.Duration
	maxAttempts  int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopped chan struct{}

	resultsMu sync.Mutex
	results   map[string]*pending
}

// New constructs a DurableExecutionQueue over backend, processing claimed
// jobs with handler.
func New(backend Backend, handler Handler, opts ...Option) *DurableExecutionQueue {
	q := &DurableExecutionQueue{
		backend:      backend,
		handler:      handler,
		pollInterval: 100 * time.Millisecond,
		maxAttempts:  3,
		results:      make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the poll loop. It is a no-op if the queue is already
// running.
func (q *DurableExecutionQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.stopped = make(chan struct{})
	q.running = true
	go q.worker(workerCtx)
}

// Stop cancels the poll loop and waits for it to exit.
func (q *DurableExecutionQueue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	cancel := q.cancel
	stopped := q.stopped
	q.running = false
	q.mu.Unlock()

	cancel()
	<-stopped
}

// Submit enqueues payload with the queue's default max attempts and blocks
// until the job completes, fails permanently, or ctx is canceled.
func (q *DurableExecutionQueue) Submit(ctx context.Context, payload map[string]any) (any, error) {
	q.resultsMu.Lock()
	jobID, err := q.backend.Enqueue(ctx, payload, q.maxAttempts)
	if err != nil {
		q.resultsMu.Unlock()
		return nil, err
	}
	p := &pending{done: make(chan struct{})}
	q.results[jobID] = p
	q.resultsMu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return p.result, p.err
	}
}

func (q *DurableExecutionQueue) worker(ctx context.Context) {
	defer close(q.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := q.backend.ClaimNext(ctx)
		if err != nil || job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(q.pollInterval):
			}
			continue
		}

		job.Attempts++
		result, err := q.handler(ctx, job.Payload)
		if err == nil {
			_ = q.backend.MarkDone(ctx, job.JobID)
			q.resolve(job.JobID, result, nil)
			continue
		}

		if job.Attempts >= job.MaxAttempts {
			_ = q.backend.MarkFailed(ctx, *job, err.Error())
			q.resolve(job.JobID, nil, err)
			continue
		}

		_ = q.backend.Requeue(ctx, *job, err.Error())
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *DurableExecutionQueue) resolve(jobID string, result any, err error) {
	q.resultsMu.Lock()
	p, ok := q.results[jobID]
	if ok {
		delete(q.results, jobID)
	}
	q.resultsMu.Unlock()
	if !ok {
		return
	}
	p.result, p.err = result, err
	close(p.done)
}
