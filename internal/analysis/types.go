// Package analysis defines core types shared across subsystems.
package analysis

import "time"

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status is final. Terminal jobs never change
// status again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a job may move from one status to another.
// Transitions are monotonic: pending -> running -> completed/failed, with
// cancelled reachable from any non-terminal state. Failed is also reachable
// straight from pending so a job rejected before execution (queue full) does
// not stay pending forever.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case JobStatusRunning:
		return from == JobStatusPending
	case JobStatusCompleted:
		return from == JobStatusRunning
	case JobStatusFailed:
		return from == JobStatusPending || from == JobStatusRunning
	case JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job represents the metadata persisted for each submitted analysis request.
type Job struct {
	ID          string         `json:"id"`
	Status      JobStatus      `json:"status"`
	Progress    float64        `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Submitted   time.Time      `json:"submitted_at"`
	Started     *time.Time     `json:"started_at,omitempty"`
	Finished    *time.Time     `json:"finished_at,omitempty"`
	ErrorText   string         `json:"error_text,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	InputFiles  []string       `json:"input_files,omitempty"`
	Results     map[string]any `json:"results,omitempty"`
	OutputFiles []OutputFile   `json:"output_files,omitempty"`
}

// OutputFile describes one artifact produced by a completed job.
type OutputFile struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	Dtype       string `json:"dtype"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path"`
	SizeBytes   int64  `json:"size"`
	Required    bool   `json:"required"`
	ArchiveURI  string `json:"archive_uri,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Submitted int64
}

// RunRequest is handed to a Runner for one job execution.
type RunRequest struct {
	JobID         string
	Parameters    map[string]any
	InputsDir     string
	OutputsDir    string
	ProcessingDir string
}

// RunResult carries the opaque results document produced by a Runner.
type RunResult struct {
	Results map[string]any
}

// CompletionEvent is published when a job reaches a terminal state.
type CompletionEvent struct {
	JobID       string       `json:"job_id"`
	Status      JobStatus    `json:"status"`
	FinishedAt  time.Time    `json:"finished_at"`
	ErrorText   string       `json:"error_text,omitempty"`
	OutputFiles []OutputFile `json:"output_files,omitempty"`
}
