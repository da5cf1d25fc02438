// Package worker implements the analysis pipeline execution loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"go.uber.org/zap"

	guuid "github.com/google/uuid"

	"github.com/mirowlabs/analysis-service/internal/analysis"
	"github.com/mirowlabs/analysis-service/internal/manifest"
	"github.com/mirowlabs/analysis-service/internal/store"
	"github.com/mirowlabs/analysis-service/internal/workspace"
)

// Progress checkpoints for the 3-step workflow. Runner progress is mapped
// into the window between stage and collect.
const (
	progressStaging   = 0.1
	progressStaged    = 0.3
	progressRunSpan   = 0.6
	progressCollect   = 0.9
	progressCollected = 1.0
)

// Config controls Worker behavior.
type Config struct {
	// Topic is the completion-event topic; empty disables publishing.
	Topic string
	// ArchivePrefix prefixes blob paths when output archiving is enabled.
	ArchivePrefix string
	// JobTimeout bounds a single job execution; zero means no limit.
	JobTimeout time.Duration
}

// Worker consumes queue items and executes the analysis pipeline.
type Worker struct {
	queue     analysis.Queue
	jobStore  analysis.JobStore
	ws        *workspace.Workspace
	man       manifest.Manifest
	runner    analysis.Runner
	archive   analysis.BlobStore
	publisher analysis.Publisher
	journal   store.Journal
	clock     analysis.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. The archive store and publisher may be nil, which
// disables output archiving and completion events respectively.
func New(
	queue analysis.Queue,
	jobStore analysis.JobStore,
	ws *workspace.Workspace,
	man manifest.Manifest,
	runner analysis.Runner,
	archive analysis.BlobStore,
	publisher analysis.Publisher,
	journal store.Journal,
	clock analysis.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = store.NopJournal{}
	}
	return &Worker{
		queue:     queue,
		jobStore:  jobStore,
		ws:        ws,
		man:       man,
		runner:    runner,
		archive:   archive,
		publisher: publisher,
		journal:   journal,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item analysis.QueueItem) {
	job, err := w.jobStore.GetJob(ctx, item.JobID)
	if err != nil {
		w.logger.Error("load job failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	if job.Status != analysis.JobStatusPending {
		// Cancelled (or otherwise finished) while waiting in the queue.
		w.logger.Info("skipping job no longer pending",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
		)
		return
	}

	if err := w.jobStore.UpdateStatus(ctx, job.ID, analysis.JobStatusRunning, ""); err != nil {
		if errors.Is(err, analysis.ErrJobFinished) {
			return
		}
		w.logger.Error("update job status failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	w.recordStarted(ctx, job.ID)

	analysis.JobsRunning.Inc()
	defer analysis.JobsRunning.Dec()

	start := w.clock.Now()
	jobCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	execErr := w.execute(jobCtx, job)
	final := w.finishJob(ctx, job.ID, execErr)

	duration := w.clock.Now().Sub(start)
	analysis.JobsCompleted.WithLabelValues(string(final)).Inc()
	analysis.JobDuration.WithLabelValues(string(final)).Observe(duration.Seconds())

	w.logger.Info("job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(final)),
		zap.Duration("duration", duration),
	)

	w.recordFinished(ctx, job.ID, final, execErr)
	w.publishCompletion(ctx, job.ID, final, execErr)
}

// execute runs the 3-step workflow: verify staged inputs, invoke the runner,
// collect outputs.
func (w *Worker) execute(ctx context.Context, job analysis.Job) error {
	w.setProgress(ctx, job.ID, progressStaging, "Verifying input files...")
	if err := w.verifyInputs(job.ID); err != nil {
		return err
	}
	w.setProgress(ctx, job.ID, progressStaged, "Input files staged")

	result, err := w.runner.Run(ctx, analysis.RunRequest{
		JobID:         job.ID,
		Parameters:    job.Parameters,
		InputsDir:     w.ws.InputsDir(job.ID),
		OutputsDir:    w.ws.OutputsDir(job.ID),
		ProcessingDir: w.ws.ProcessingDir(job.ID),
	}, w.progressFunc(ctx, job.ID))
	if err != nil {
		return fmt.Errorf("run analysis: %w", err)
	}

	w.setProgress(ctx, job.ID, progressCollect, "Extracting outputs...")
	outputs, err := w.collectOutputs(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := w.jobStore.SetResults(ctx, job.ID, result.Results, outputs); err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	w.setProgress(ctx, job.ID, progressCollected, "Outputs extracted")
	return nil
}

func (w *Worker) verifyInputs(jobID string) error {
	for _, in := range w.man.RequiredInputs() {
		path, err := w.ws.InputPath(jobID, in.Name)
		if err != nil {
			return fmt.Errorf("resolve input %s: %w", in.Key, err)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("required input %q (%s) not staged: %w", in.Key, in.Name, err)
		}
	}
	return nil
}

// progressFunc maps runner progress (0-1) onto the staged-to-collect window.
func (w *Worker) progressFunc(ctx context.Context, jobID string) analysis.ProgressFunc {
	return func(fraction float64, message string) {
		mapped := progressStaged + fraction*progressRunSpan
		w.setProgress(ctx, jobID, mapped, message)
	}
}

func (w *Worker) collectOutputs(ctx context.Context, jobID string) ([]analysis.OutputFile, error) {
	outputs := make([]analysis.OutputFile, 0, len(w.man.Outputs))
	for _, out := range w.man.Outputs {
		filePath, err := w.ws.OutputPath(jobID, out.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve output %s: %w", out.Key, err)
		}
		info, err := os.Stat(filePath)
		if err != nil {
			if out.Required {
				return nil, fmt.Errorf("required output %q (%s) missing: %w", out.Key, out.Name, err)
			}
			continue
		}
		file := analysis.OutputFile{
			Key:         out.Key,
			Filename:    out.Name,
			Dtype:       out.Dtype,
			Description: out.Description,
			Path:        filePath,
			SizeBytes:   info.Size(),
			Required:    out.Required,
		}
		if w.archive != nil {
			uri, err := w.archiveOutput(ctx, jobID, out.Name, filePath)
			if err != nil {
				w.logger.Warn("archive output failed",
					zap.String("job_id", jobID),
					zap.String("filename", out.Name),
					zap.Error(err),
				)
			} else {
				file.ArchiveURI = uri
			}
		}
		outputs = append(outputs, file)
	}
	return outputs, nil
}

func (w *Worker) archiveOutput(ctx context.Context, jobID, name, filePath string) (string, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // path resolved by workspace
	if err != nil {
		return "", fmt.Errorf("read output for archive: %w", err)
	}
	blobPath := path.Join(w.cfg.ArchivePrefix, jobID, name)
	uri, err := w.archive.PutObject(ctx, blobPath, "", data)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

// finishJob resolves the terminal status. A job cancelled mid-run keeps its
// cancelled status: the store rejects the late transition and we report the
// status it already holds.
func (w *Worker) finishJob(ctx context.Context, jobID string, execErr error) analysis.JobStatus {
	target := analysis.JobStatusCompleted
	errText := ""
	if execErr != nil {
		target = analysis.JobStatusFailed
		errText = execErr.Error()
	}
	err := w.jobStore.UpdateStatus(ctx, jobID, target, errText)
	if err == nil {
		return target
	}
	if errors.Is(err, analysis.ErrJobFinished) {
		if job, getErr := w.jobStore.GetJob(ctx, jobID); getErr == nil {
			return job.Status
		}
		return analysis.JobStatusCancelled
	}
	w.logger.Error("final job status update failed", zap.String("job_id", jobID), zap.Error(err))
	return target
}

func (w *Worker) setProgress(ctx context.Context, jobID string, fraction float64, message string) {
	if err := w.jobStore.UpdateProgress(ctx, jobID, fraction, message); err != nil {
		w.logger.Warn("progress update failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) recordStarted(ctx context.Context, jobID string) {
	id, err := guuid.Parse(jobID)
	if err != nil {
		return
	}
	if err := w.journal.RecordStarted(ctx, id, w.clock.Now()); err != nil {
		w.logger.Warn("journal start failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) recordFinished(ctx context.Context, jobID string, status analysis.JobStatus, execErr error) {
	id, err := guuid.Parse(jobID)
	if err != nil {
		return
	}
	var errMsg *string
	if execErr != nil {
		s := execErr.Error()
		errMsg = &s
	}
	if err := w.journal.RecordFinished(ctx, id, w.clock.Now(), string(status), errMsg); err != nil {
		w.logger.Warn("journal finish failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) publishCompletion(ctx context.Context, jobID string, status analysis.JobStatus, execErr error) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	event := analysis.CompletionEvent{
		JobID:      jobID,
		Status:     status,
		FinishedAt: w.clock.Now(),
	}
	if execErr != nil {
		event.ErrorText = execErr.Error()
	}
	if job, err := w.jobStore.GetJob(ctx, jobID); err == nil {
		event.OutputFiles = job.OutputFiles
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, event); err != nil {
		w.logger.Warn("publish completion event failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	w.logger.Info("completion event published",
		zap.String("job_id", jobID),
		zap.String("status", string(status)),
	)
}
