// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mirowlabs/analysis-service/internal/store"
)

type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Journal implements store.Journal using Postgres.
type Journal struct {
	pool dbPool
}

// NewJournal creates a Journal backed by a new connection pool.
func NewJournal(ctx context.Context, dsn string) (*Journal, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Journal{pool: pool}, nil
}

// NewJournalWithPool wraps an existing pool (used by tests).
func NewJournalWithPool(pool dbPool) *Journal {
	return &Journal{pool: pool}
}

// Close closes the underlying connection pool.
func (j *Journal) Close() {
	j.pool.Close()
}

// RecordSubmitted inserts the job row, idempotently.
func (j *Journal) RecordSubmitted(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	query := `
		INSERT INTO job_journal (job_id, submitted_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO NOTHING;
	`
	_, err := j.pool.Exec(ctx, query, jobID, at, "pending")
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// RecordStarted stamps started_at and flips the status to running.
func (j *Journal) RecordStarted(ctx context.Context, jobID uuid.UUID, at time.Time) error {
	query := `
		UPDATE job_journal
		SET started_at = $1, status = $2
		WHERE job_id = $3;
	`
	_, err := j.pool.Exec(ctx, query, at, "running", jobID)
	if err != nil {
		return fmt.Errorf("failed to record start: %w", err)
	}
	return nil
}

// RecordFinished stamps finished_at with the terminal status and optional error.
func (j *Journal) RecordFinished(
	ctx context.Context,
	jobID uuid.UUID,
	at time.Time,
	status string,
	errMsg *string,
) error {
	query := `
		UPDATE job_journal
		SET finished_at = $1, status = $2, error_message = $3
		WHERE job_id = $4;
	`
	_, err := j.pool.Exec(ctx, query, at, status, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to record finish: %w", err)
	}
	return nil
}

// GetEntry loads one journal entry.
func (j *Journal) GetEntry(ctx context.Context, jobID uuid.UUID) (store.Entry, error) {
	query := `
		SELECT job_id, submitted_at, started_at, finished_at, status, error_message
		FROM job_journal
		WHERE job_id = $1;
	`
	var e store.Entry
	err := j.pool.QueryRow(ctx, query, jobID).Scan(
		&e.JobID,
		&e.SubmittedAt,
		&e.StartedAt,
		&e.FinishedAt,
		&e.Status,
		&e.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Entry{}, store.ErrNotFound
		}
		return store.Entry{}, fmt.Errorf("failed to load journal entry: %w", err)
	}
	return e, nil
}

// ListEntries returns journal entries, newest first, optionally filtered by
// status.
func (j *Journal) ListEntries(
	ctx context.Context,
	status *string,
	limit, offset int,
) ([]store.Entry, error) {
	query := `
		SELECT job_id, submitted_at, started_at, finished_at, status, error_message
		FROM job_journal
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := j.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var out []store.Entry
	for rows.Next() {
		var e store.Entry
		if err := rows.Scan(
			&e.JobID,
			&e.SubmittedAt,
			&e.StartedAt,
			&e.FinishedAt,
			&e.Status,
			&e.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal entries: %w", err)
	}
	return out, nil
}
