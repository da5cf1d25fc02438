// Package store declares the contract for the optional job journal: a
// durable audit trail of job runs kept alongside the authoritative
// in-memory registry.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested journal entry does not exist.
var ErrNotFound = errors.New("journal entry not found")

// Entry models one job's row in the journal.
type Entry struct {
	// JobID is the job identifier shared with the in-memory registry.
	JobID uuid.UUID `json:"job_id"`
	// SubmittedAt captures when the job was accepted.
	SubmittedAt time.Time `json:"submitted_at"`
	// StartedAt is nil until a worker picked the job up.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// FinishedAt is nil until the job reached a terminal status.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Status mirrors the job's lifecycle state at last write.
	Status string `json:"status"`
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string `json:"error_message,omitempty"`
}

// Journal records job lifecycle milestones.
type Journal interface {
	// RecordSubmitted inserts the entry when a job is accepted.
	RecordSubmitted(ctx context.Context, jobID uuid.UUID, at time.Time) error
	// RecordStarted stamps the entry when a worker starts the job.
	RecordStarted(ctx context.Context, jobID uuid.UUID, at time.Time) error
	// RecordFinished stamps the terminal status and optional error.
	RecordFinished(ctx context.Context, jobID uuid.UUID, at time.Time, status string, errMsg *string) error
	// GetEntry loads a single entry or returns ErrNotFound.
	GetEntry(ctx context.Context, jobID uuid.UUID) (Entry, error)
	// ListEntries returns entries filtered by optional status plus limit/offset,
	// newest first.
	ListEntries(ctx context.Context, status *string, limit, offset int) ([]Entry, error)
}

// NopJournal discards all writes. Used when no journal DSN is configured.
type NopJournal struct{}

// RecordSubmitted is a no-op.
func (NopJournal) RecordSubmitted(context.Context, uuid.UUID, time.Time) error { return nil }

// RecordStarted is a no-op.
func (NopJournal) RecordStarted(context.Context, uuid.UUID, time.Time) error { return nil }

// RecordFinished is a no-op.
func (NopJournal) RecordFinished(context.Context, uuid.UUID, time.Time, string, *string) error {
	return nil
}

// GetEntry always reports ErrNotFound.
func (NopJournal) GetEntry(context.Context, uuid.UUID) (Entry, error) {
	return Entry{}, ErrNotFound
}

// ListEntries returns no entries.
func (NopJournal) ListEntries(context.Context, *string, int, int) ([]Entry, error) {
	return nil, nil
}
