// Package memory provides in-memory storage implementations. The job store
// here is the service's registry of record: all job state is process-local
// and lost on restart.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mirowlabs/analysis-service/internal/analysis"
	"github.com/mirowlabs/analysis-service/internal/clock/system"
)

// JobStore tracks jobs in a mutex-guarded map.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]analysis.Job
	clock analysis.Clock
}

// NewJobStore constructs a JobStore. A nil clock falls back to the system
// clock.
func NewJobStore(clock analysis.Clock) *JobStore {
	if clock == nil {
		clock = system.Clock{}
	}
	return &JobStore{
		jobs:  make(map[string]analysis.Job),
		clock: clock,
	}
}

// CreateJob stores a new job record.
func (s *JobStore) CreateJob(_ context.Context, job analysis.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (analysis.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.Job{}, analysis.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns jobs sorted by submission time (newest first), optionally
// filtered by status, with limit/offset pagination.
func (s *JobStore) ListJobs(
	_ context.Context,
	status *analysis.JobStatus,
	limit, offset int,
) ([]analysis.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]analysis.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Submitted.After(out[j].Submitted)
	})
	if offset >= len(out) {
		return []analysis.Job{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus moves a job through its lifecycle, stamping started/finished
// timestamps. Transitions out of terminal states are rejected with
// analysis.ErrJobFinished.
func (s *JobStore) UpdateStatus(
	_ context.Context,
	jobID string,
	status analysis.JobStatus,
	errText string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.ErrJobNotFound
	}
	if !analysis.CanTransition(job.Status, status) {
		if job.Status.IsTerminal() {
			return analysis.ErrJobFinished
		}
		return errors.New("invalid status transition")
	}
	job.Status = status
	job.ErrorText = errText
	now := s.clock.Now().UTC()
	if status == analysis.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() {
		job.Finished = pointerTime(now)
		if status == analysis.JobStatusCompleted {
			job.Progress = 1.0
		}
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateProgress records runner progress. Progress is clamped to [0,1],
// never decreases, and is ignored once the job is terminal.
func (s *JobStore) UpdateProgress(
	_ context.Context,
	jobID string,
	progress float64,
	message string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		return nil
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	if message != "" {
		job.Message = message
	}
	s.jobs[jobID] = job
	return nil
}

// SetResults attaches the results document and output metadata to a job.
func (s *JobStore) SetResults(
	_ context.Context,
	jobID string,
	results map[string]any,
	outputs []analysis.OutputFile,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return analysis.ErrJobNotFound
	}
	job.Results = results
	job.OutputFiles = outputs
	s.jobs[jobID] = job
	return nil
}

// DeleteJob removes the job record entirely.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return analysis.ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
