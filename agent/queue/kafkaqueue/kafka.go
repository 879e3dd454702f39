// Package kafkaqueue implements queue.Backend over a Kafka topic using
// segmentio/kafka-go, tracking in-flight messages by job id so retries and
// completions can be distinguished from fresh jobs on the same topic.
package kafkaqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentsdk/agentsdk/agent/queue"
	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the backend depends on.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Reader is the subset of *kafka.Reader the backend depends on. FetchMessage
// blocks; callers that want ClaimNext to be non-blocking should pass a
// context with a short deadline.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type wireJob struct {
	JobID       string         `json:"job_id"`
	Payload     map[string]any `json:"payload"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
}

// Backend persists queue.QueueJob records as Kafka messages on a single
// topic, committing offsets only once a job is durably done, failed, or
// requeued.
type Backend struct {
	writer Writer
	reader Reader

	mu       sync.Mutex
	inflight map[string]kafka.Message
}

// New constructs a Backend writing and reading via writer/reader.
func New(writer Writer, reader Reader) *Backend {
	return &Backend{writer: writer, reader: reader, inflight: make(map[string]kafka.Message)}
}

// Enqueue implements queue.Backend.
func (b *Backend) Enqueue(ctx context.Context, payload map[string]any, maxAttempts int) (string, error) {
	jobID := "job_" + uuid.New().String()
	body, err := json.Marshal(wireJob{JobID: jobID, Payload: payload, Attempts: 0, MaxAttempts: maxAttempts})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

// ClaimNext implements queue.Backend. It returns (nil, nil) if ctx's
// deadline elapses before a message arrives.
func (b *Backend) ClaimNext(ctx context.Context) (*queue.QueueJob, error) {
	msg, err := b.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	var wire wireJob
	if err := json.Unmarshal(msg.Value, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if wire.JobID == "" {
		wire.JobID = "job_" + uuid.New().String()
	}

	b.mu.Lock()
	b.inflight[wire.JobID] = msg
	b.mu.Unlock()

	return &queue.QueueJob{JobID: wire.JobID, Payload: wire.Payload, Attempts: wire.Attempts, MaxAttempts: wire.MaxAttempts}, nil
}

func (b *Backend) popInflight(jobID string) (kafka.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.inflight[jobID]
	delete(b.inflight, jobID)
	return msg, ok
}

// MarkDone implements queue.Backend, committing the claimed message's
// offset.
func (b *Backend) MarkDone(ctx context.Context, jobID string) error {
	msg, ok := b.popInflight(jobID)
	if !ok {
		return nil
	}
	if err := b.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit done message: %w", err)
	}
	return nil
}

// MarkFailed implements queue.Backend, committing the original message's
// offset (its attempts are exhausted) without re-publishing.
func (b *Backend) MarkFailed(ctx context.Context, job queue.QueueJob, errMsg string) error {
	msg, ok := b.popInflight(job.JobID)
	if ok {
		if err := b.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit failed message: %w", err)
		}
	}
	return nil
}

// Requeue implements queue.Backend, committing the original message's
// offset and republishing the job with its updated attempt count.
func (b *Backend) Requeue(ctx context.Context, job queue.QueueJob, errMsg string) error {
	msg, ok := b.popInflight(job.JobID)
	if ok {
		if err := b.reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit requeued message: %w", err)
		}
	}
	body, err := json.Marshal(wireJob{JobID: job.JobID, Payload: job.Payload, Attempts: job.Attempts, MaxAttempts: job.MaxAttempts})
	if err != nil {
		return fmt.Errorf("marshal requeue payload: %w", err)
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		return fmt.Errorf("republish requeued job: %w", err)
	}
	return nil
}
