package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memBackend struct {
	mu      sync.Mutex
	queued  []QueueJob
	dlq     []QueueJob
	counter int
}

func newMemBackend() *memBackend { return &memBackend{} }

func (m *memBackend) Enqueue(ctx context.Context, payload map[string]any, maxAttempts int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	id := "job_" + string(rune('a'+m.counter))
	m.queued = append(m.queued, QueueJob{JobID: id, Payload: payload, MaxAttempts: maxAttempts})
	return id, nil
}

func (m *memBackend) ClaimNext(ctx context.Context) (*QueueJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queued) == 0 {
		return nil, nil
	}
	job := m.queued[0]
	m.queued = m.queued[1:]
	return &job, nil
}

func (m *memBackend) MarkDone(ctx context.Context, jobID string) error { return nil }

func (m *memBackend) MarkFailed(ctx context.Context, job QueueJob, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, job)
	return nil
}

func (m *memBackend) Requeue(ctx context.Context, job QueueJob, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, job)
	return nil
}

func TestSubmitReturnsHandlerResultOnSuccess(t *testing.T) {
	backend := newMemBackend()
	q := New(backend, func(ctx context.Context, payload map[string]any) (any, error) {
		return payload["x"], nil
	}, WithPollInterval(5*time.Millisecond))

	q.Start(context.Background())
	defer q.Stop()

	result, err := q.Submit(context.Background(), map[string]any{"x": "hi"})
	require.NoError(t, err)
	require.Equal(t, "hi", result)
}

func TestSubmitRetriesThenSucceeds(t *testing.T) {
	backend := newMemBackend()
	var attempts int
	var mu sync.Mutex
	q := New(backend, func(ctx context.Context, payload map[string]any) (any, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}, WithPollInterval(5*time.Millisecond), WithMaxAttempts(3))

	q.Start(context.Background())
	defer q.Stop()

	result, err := q.Submit(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Equal(t, "ok", result)
}

func TestSubmitMovesToDLQAfterMaxAttempts(t *testing.T) {
	backend := newMemBackend()
	q := New(backend, func(ctx context.Context, payload map[string]any) (any, error) {
		return nil, errors.New("permanent")
	}, WithPollInterval(5*time.Millisecond), WithMaxAttempts(2))

	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Submit(context.Background(), map[string]any{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "permanent")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.dlq, 1)
	require.Equal(t, 2, backend.dlq[0].Attempts)
}

func TestStartIsIdempotentAndStopWaitsForWorkerExit(t *testing.T) {
	backend := newMemBackend()
	q := New(backend, func(ctx context.Context, payload map[string]any) (any, error) {
		return nil, nil
	}, WithPollInterval(5*time.Millisecond))

	q.Start(context.Background())
	q.Start(context.Background())
	q.Stop()
}
