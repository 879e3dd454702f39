// Package sqsqueue implements queue.Backend over Amazon SQS, with a separate
// dead-letter queue URL for permanently-failed jobs.
package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentsdk/agentsdk/agent/queue"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
)

// API is the subset of *sqs.Client the backend depends on, letting tests
// substitute a fake implementation.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type wireJob struct {
	Payload     map[string]any `json:"payload"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
}

// Backend persists queue.QueueJob records as SQS messages. Claimed messages
// stay in-flight (tracked by receipt handle) until MarkDone/MarkFailed/
// Requeue resolves them.
type Backend struct {
	client   API
	queueURL string
	dlqURL   string

	mu       sync.Mutex
	inflight map[string]string // job_id/message_id -> receipt handle
}

// New constructs a Backend over client, submitting to queueURL and, on
// permanent failure, forwarding to dlqURL if non-empty.
func New(client API, queueURL, dlqURL string) *Backend {
	return &Backend{client: client, queueURL: queueURL, dlqURL: dlqURL, inflight: make(map[string]string)}
}

// Enqueue implements queue.Backend.
func (b *Backend) Enqueue(ctx context.Context, payload map[string]any, maxAttempts int) (string, error) {
	body, err := json.Marshal(wireJob{Payload: payload, Attempts: 0, MaxAttempts: maxAttempts})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	bodyStr := string(body)
	out, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &b.queueURL,
		MessageBody: &bodyStr,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	if out.MessageId != nil {
		return *out.MessageId, nil
	}
	return "job_" + uuid.New().String(), nil
}

// ClaimNext implements queue.Backend.
func (b *Backend) ClaimNext(ctx context.Context) (*queue.QueueJob, error) {
	one := int32(1)
	zero := int32(0)
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &b.queueURL,
		MaxNumberOfMessages: one,
		WaitTimeSeconds:     zero,
	})
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	msg := out.Messages[0]

	var wire wireJob
	if msg.Body != nil {
		if err := json.Unmarshal([]byte(*msg.Body), &wire); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}

	jobID := "job_" + uuid.New().String()
	if msg.MessageId != nil {
		jobID = *msg.MessageId
	}

	b.mu.Lock()
	if msg.ReceiptHandle != nil {
		b.inflight[jobID] = *msg.ReceiptHandle
	}
	b.mu.Unlock()

	return &queue.QueueJob{JobID: jobID, Payload: wire.Payload, Attempts: wire.Attempts, MaxAttempts: wire.MaxAttempts}, nil
}

func (b *Backend) popReceipt(jobID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt := b.inflight[jobID]
	delete(b.inflight, jobID)
	return receipt
}

func (b *Backend) deleteInflight(ctx context.Context, jobID string) error {
	receipt := b.popReceipt(jobID)
	if receipt == "" {
		return nil
	}
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{QueueUrl: &b.queueURL, ReceiptHandle: &receipt})
	return err
}

// MarkDone implements queue.Backend.
func (b *Backend) MarkDone(ctx context.Context, jobID string) error {
	if err := b.deleteInflight(ctx, jobID); err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// MarkFailed implements queue.Backend, forwarding the job to the
// dead-letter queue when one is configured.
func (b *Backend) MarkFailed(ctx context.Context, job queue.QueueJob, errMsg string) error {
	if err := b.deleteInflight(ctx, job.JobID); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	if b.dlqURL == "" {
		return nil
	}
	body, err := json.Marshal(struct {
		wireJob
		Error string `json:"error"`
	}{wireJob{job.Payload, job.Attempts, job.MaxAttempts}, errMsg})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}
	bodyStr := string(body)
	if _, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{QueueUrl: &b.dlqURL, MessageBody: &bodyStr}); err != nil {
		return fmt.Errorf("send to dlq: %w", err)
	}
	return nil
}

// Requeue implements queue.Backend.
func (b *Backend) Requeue(ctx context.Context, job queue.QueueJob, errMsg string) error {
	if err := b.deleteInflight(ctx, job.JobID); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	body, err := json.Marshal(struct {
		wireJob
		LastError string `json:"last_error"`
	}{wireJob{job.Payload, job.Attempts, job.MaxAttempts}, errMsg})
	if err != nil {
		return fmt.Errorf("marshal requeue payload: %w", err)
	}
	bodyStr := string(body)
	if _, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{QueueUrl: &b.queueURL, MessageBody: &bodyStr}); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}
