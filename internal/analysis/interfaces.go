package analysis

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound signals that the requested job does not exist.
var ErrJobNotFound = errors.New("job not found")

// ErrJobFinished signals a status update against a terminal job.
var ErrJobFinished = errors.New("job already finished")

// JobStore persists job records and their lifecycle updates.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)
	// UpdateStatus moves the job to status, recording errText for failures.
	// Returns ErrJobFinished when the job is already terminal.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errText string) error
	// UpdateProgress records progress in [0,1] plus a human-readable message.
	// Progress never decreases; updates against terminal jobs are dropped.
	UpdateProgress(ctx context.Context, jobID string, progress float64, message string) error
	SetResults(ctx context.Context, jobID string, results map[string]any, outputs []OutputFile) error
	DeleteJob(ctx context.Context, jobID string) error
}

// Queue provides enqueue/dequeue semantics for analysis jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// ProgressFunc reports runner progress as a fraction in [0,1].
type ProgressFunc func(fraction float64, message string)

// Runner is the pluggable analysis function invoked once per job.
type Runner interface {
	Run(ctx context.Context, req RunRequest, progress ProgressFunc) (RunResult, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
