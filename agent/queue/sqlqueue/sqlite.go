// Package sqlqueue implements queue.Backend over a SQLite database, matching
// the reference queue's jobs/dlq table layout.
package sqlqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentsdk/agentsdk/agent/queue"
	"github.com/google/uuid"
)

// Backend persists queue.QueueJob records in a SQLite "jobs" table, moving
// permanently-failed jobs to a "dlq" table.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed queue at path and
// ensures its schema exists.
func Open(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite queue: %w", err)
	}
	// SQLite serializes writers at the database-file level; a pool of more
	// than one connection only adds lock-contention errors (and, for
	// ":memory:" paths, each additional connection would open a distinct
	// empty database). One connection per Backend matches how the queue is
	// actually used: claim/requeue/mark-done are short, sequential
	// transactions, not a workload that benefits from concurrent conns.
	db.SetMaxOpenConns(1)
	b := &Backend{db: db}
	if err := b.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			job_id TEXT PRIMARY KEY,
			payload_json TEXT,
			status TEXT,
			attempts INTEGER,
			max_attempts INTEGER,
			last_error TEXT,
			created_at TEXT,
			updated_at TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS dlq (
			job_id TEXT PRIMARY KEY,
			payload_json TEXT,
			error TEXT,
			attempts INTEGER,
			created_at TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create dlq table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (b *Backend) Close() error { return b.db.Close() }

func nowISO() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// Enqueue implements queue.Backend.
func (b *Backend) Enqueue(ctx context.Context, payload map[string]any, maxAttempts int) (string, error) {
	jobID := "job_" + uuid.New().String()
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	now := nowISO()
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, payload_json, status, attempts, max_attempts, last_error, created_at, updated_at)
		VALUES (?, ?, 'queued', 0, ?, NULL, ?, ?)
	`, jobID, string(body), maxAttempts, now, now)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

// ClaimNext implements queue.Backend, claiming the oldest queued job. The
// select and the running-status update run in the same transaction, and the
// update is conditioned on the row still being 'queued' so two concurrent
// claimers can never both walk away with the same job: whichever commits
// second finds zero rows affected and reports no job claimed.
func (b *Backend) ClaimNext(ctx context.Context) (*queue.QueueJob, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim next: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT job_id, payload_json, attempts, max_attempts
		FROM jobs WHERE status = 'queued' ORDER BY created_at ASC LIMIT 1
	`)
	var jobID, payloadJSON string
	var attempts, maxAttempts int
	err = row.Scan(&jobID, &payloadJSON, &attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'running', updated_at = ? WHERE job_id = ? AND status = 'queued'
	`, nowISO(), jobID)
	if err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim next: %w", err)
	}

	var payload map[string]any
	if payloadJSON != "" {
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &queue.QueueJob{JobID: jobID, Payload: payload, Attempts: attempts, MaxAttempts: maxAttempts}, nil
}

// MarkDone implements queue.Backend.
func (b *Backend) MarkDone(ctx context.Context, jobID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("mark job done: %w", err)
	}
	return nil
}

// MarkFailed implements queue.Backend, moving job to the dlq table.
func (b *Backend) MarkFailed(ctx context.Context, job queue.QueueJob, errMsg string) error {
	body, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark failed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dlq (job_id, payload_json, error, attempts, created_at) VALUES (?, ?, ?, ?, ?)
	`, job.JobID, string(body), errMsg, job.Attempts, nowISO()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert dlq row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, job.JobID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete failed job: %w", err)
	}
	return tx.Commit()
}

// Requeue implements queue.Backend.
func (b *Backend) Requeue(ctx context.Context, job queue.QueueJob, errMsg string) error {
	_, err := b.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'queued', attempts = ?, last_error = ?, updated_at = ? WHERE job_id = ?
	`, job.Attempts, errMsg, nowISO(), job.JobID)
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}
