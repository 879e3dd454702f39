// Package redisqueue implements queue.Backend over a Redis list/hash pair,
// matching the reference queue's list-of-job-ids plus per-job-hash layout.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentsdk/agentsdk/agent/queue"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Backend persists queue.QueueJob records as Redis hashes, with job ids
// pushed onto a queue list and, on permanent failure, a dead-letter list.
type Backend struct {
	client   *redis.Client
	queueKey string
	dlqKey   string
}

// Option configures a Backend.
type Option func(*Backend)

// WithQueueKey overrides the Redis list key jobs are pushed/popped from.
// Default "agentsdk:queue".
func WithQueueKey(key string) Option {
	return func(b *Backend) { b.queueKey = key }
}

// WithDLQKey overrides the Redis list key permanently-failed jobs are pushed
// onto. Default "agentsdk:dlq".
func WithDLQKey(key string) Option {
	return func(b *Backend) { b.dlqKey = key }
}

// New constructs a Backend over client.
func New(client *redis.Client, opts ...Option) *Backend {
	b := &Backend{client: client, queueKey: "agentsdk:queue", dlqKey: "agentsdk:dlq"}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) jobKey(jobID string) string {
	return fmt.Sprintf("agentsdk:job:%s", jobID)
}

// Enqueue implements queue.Backend.
func (b *Backend) Enqueue(ctx context.Context, payload map[string]any, maxAttempts int) (string, error) {
	jobID := "job_" + uuid.New().String()
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.jobKey(jobID), map[string]any{
		"payload_json": string(body),
		"attempts":     0,
		"max_attempts": maxAttempts,
	})
	pipe.LPush(ctx, b.queueKey, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

// ClaimNext implements queue.Backend.
func (b *Backend) ClaimNext(ctx context.Context) (*queue.QueueJob, error) {
	jobID, err := b.client.RPop(ctx, b.queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	values, err := b.client.HGetAll(ctx, b.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load claimed job: %w", err)
	}

	var payload map[string]any
	if p := values["payload_json"]; p != "" {
		if err := json.Unmarshal([]byte(p), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	attempts := atoiDefault(values["attempts"], 0)
	maxAttempts := atoiDefault(values["max_attempts"], 0)

	return &queue.QueueJob{JobID: jobID, Payload: payload, Attempts: attempts, MaxAttempts: maxAttempts}, nil
}

// MarkDone implements queue.Backend.
func (b *Backend) MarkDone(ctx context.Context, jobID string) error {
	if err := b.client.Del(ctx, b.jobKey(jobID)).Err(); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// MarkFailed implements queue.Backend, pushing jobID onto the dead-letter
// list.
func (b *Backend) MarkFailed(ctx context.Context, job queue.QueueJob, errMsg string) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.JobID), map[string]any{"error": errMsg, "attempts": job.Attempts})
	pipe.LPush(ctx, b.dlqKey, job.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// Requeue implements queue.Backend.
func (b *Backend) Requeue(ctx context.Context, job queue.QueueJob, errMsg string) error {
	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, b.jobKey(job.JobID), map[string]any{"attempts": job.Attempts, "last_error": errMsg})
	pipe.LPush(ctx, b.queueKey, job.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return def
	}
	return n
}
