package sqlqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnqueueClaimDoneRoundTrip(t *testing.T) {
	backend, err := Open(":memory:")
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	jobID, err := backend.Enqueue(ctx, map[string]any{"text": "hi"}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := backend.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, "hi", job.Payload["text"])
	require.Equal(t, 3, job.MaxAttempts)

	require.NoError(t, backend.MarkDone(ctx, job.JobID))

	again, err := backend.ClaimNext(ctx)
	require.NoError(t, err)
	require.Nil(t, again)
}

func TestRequeueMakesJobClaimableAgain(t *testing.T) {
	backend, err := Open(":memory:")
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	_, err = backend.Enqueue(ctx, map[string]any{}, 2)
	require.NoError(t, err)

	job, err := backend.ClaimNext(ctx)
	require.NoError(t, err)
	job.Attempts++

	require.NoError(t, backend.Requeue(ctx, *job, "transient failure"))

	reclaimed, err := backend.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	require.Equal(t, 1, reclaimed.Attempts)
}

func TestClaimNextUnderConcurrencyNeverDoubleClaimsAJob(t *testing.T) {
	backend, err := Open(":memory:")
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		_, err := backend.Enqueue(ctx, map[string]any{"i": i}, 1)
		require.NoError(t, err)
	}

	const workerCount = 8
	claimed := make(chan string, jobCount*2)
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := backend.ClaimNext(ctx)
				require.NoError(t, err)
				if job == nil {
					return
				}
				claimed <- job.JobID
			}
		}()
	}
	wg.Wait()
	close(claimed)

	seen := make(map[string]int)
	for jobID := range claimed {
		seen[jobID]++
	}
	require.Len(t, seen, jobCount, "every enqueued job should be claimed exactly once")
	for jobID, count := range seen {
		require.Equal(t, 1, count, "job %s was claimed %d times", jobID, count)
	}
}

func TestMarkFailedMovesJobToDLQAndRemovesFromJobs(t *testing.T) {
	backend, err := Open(":memory:")
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	_, err = backend.Enqueue(ctx, map[string]any{}, 1)
	require.NoError(t, err)

	job, err := backend.ClaimNext(ctx)
	require.NoError(t, err)
	job.Attempts++

	require.NoError(t, backend.MarkFailed(ctx, *job, "permanent failure"))

	gone, err := backend.ClaimNext(ctx)
	require.NoError(t, err)
	require.Nil(t, gone)

	var count int
	require.NoError(t, backend.db.QueryRow(`SELECT COUNT(*) FROM dlq WHERE job_id = ?`, job.JobID).Scan(&count))
	require.Equal(t, 1, count)
}
