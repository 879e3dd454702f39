package kafkaqueue

import (
	"context"
	"testing"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	sent []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.sent = append(w.sent, msgs...)
	return nil
}

type fakeReader struct {
	pending   []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.pending) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.pending[0]
	r.pending = r.pending[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func TestEnqueuePublishesToWriterAndClaimReadsFromReader(t *testing.T) {
	writer := &fakeWriter{}
	backend := New(writer, &fakeReader{})
	ctx := context.Background()

	jobID, err := backend.Enqueue(ctx, map[string]any{"x": "y"}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	require.Len(t, writer.sent, 1)

	reader := &fakeReader{pending: []kafka.Message{writer.sent[0]}}
	backend2 := New(writer, reader)
	job, err := backend2.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, jobID, job.JobID)
	require.Equal(t, "y", job.Payload["x"])
}

func TestMarkDoneCommitsClaimedOffset(t *testing.T) {
	writer := &fakeWriter{}
	reader := &fakeReader{}
	backend := New(writer, reader)
	ctx := context.Background()

	jobID, _ := backend.Enqueue(ctx, map[string]any{}, 3)
	reader.pending = []kafka.Message{writer.sent[0]}
	job, err := backend.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, jobID, job.JobID)

	require.NoError(t, backend.MarkDone(ctx, job.JobID))
	require.Len(t, reader.committed, 1)
}

func TestRequeueCommitsOriginalAndRepublishes(t *testing.T) {
	writer := &fakeWriter{}
	reader := &fakeReader{}
	backend := New(writer, reader)
	ctx := context.Background()

	_, _ = backend.Enqueue(ctx, map[string]any{}, 3)
	reader.pending = []kafka.Message{writer.sent[0]}
	job, err := backend.ClaimNext(ctx)
	require.NoError(t, err)
	job.Attempts++

	require.NoError(t, backend.Requeue(ctx, *job, "transient"))
	require.Len(t, reader.committed, 1)
	require.Len(t, writer.sent, 2)
}
