// Package api exposes the HTTP interface for the analysis service.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	guuid "github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mirowlabs/analysis-service/internal/analysis"
	"github.com/mirowlabs/analysis-service/internal/config"
	"github.com/mirowlabs/analysis-service/internal/dispatcher"
	"github.com/mirowlabs/analysis-service/internal/manifest"
	"github.com/mirowlabs/analysis-service/internal/store"
	"github.com/mirowlabs/analysis-service/internal/workspace"
)

const enqueueTimeout = 5 * time.Second

// Server wires HTTP handlers to the dispatcher, stores, and workspace.
type Server struct {
	router     chi.Router
	jobStore   analysis.JobStore
	dispatcher *dispatcher.Dispatcher
	ws         *workspace.Workspace
	man        manifest.Manifest
	params     *manifest.ParamValidator
	journal    store.Journal
	idGen      analysis.IDGenerator
	clock      analysis.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The journal may
// be nil when no database is configured; history endpoints then report 503.
func NewServer(
	jobStore analysis.JobStore,
	dispatch *dispatcher.Dispatcher,
	ws *workspace.Workspace,
	man manifest.Manifest,
	params *manifest.ParamValidator,
	journal store.Journal,
	idGen analysis.IDGenerator,
	clock analysis.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:   jobStore,
		dispatcher: dispatch,
		ws:         ws,
		man:        man,
		params:     params,
		journal:    journal,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Get("/healthz", s.healthz)
	r.Get("/info", s.info)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/analyze", s.submitAnalysis)
	r.Get("/status/{job_id}", s.getStatus)
	r.Get("/results/{job_id}", s.getResults)
	r.Get("/download/{job_id}/{filename}", s.downloadOutput)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Get("/history", s.listHistory)
		r.Delete("/{job_id}", s.deleteJob)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func endpointMap() map[string]string {
	return map[string]string{
		"health":   "/health",
		"info":     "/info",
		"analyze":  "/analyze",
		"status":   "/status/{job_id}",
		"results":  "/results/{job_id}",
		"download": "/download/{job_id}/{filename}",
		"jobs":     "/jobs",
	}
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     s.cfg.Service.Name,
		"version":     s.cfg.Service.Version,
		"description": s.cfg.Service.Description,
		"endpoints":   endpointMap(),
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "healthy",
		"service":           s.cfg.Service.Name,
		"version":           s.cfg.Service.Version,
		"timestamp":         s.clock.Now().UTC().Format(time.RFC3339),
		"endpoints":         endpointMap(),
		"capabilities":      s.man.Capabilities,
		"supported_formats": s.man.SupportedFormats(),
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// info serves the discovery document the orchestrator consumes.
func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":              s.cfg.Service.Name,
		"service_type":      s.cfg.Service.Type,
		"version":           s.cfg.Service.Version,
		"description":       s.cfg.Service.Description,
		"base_url":          s.cfg.Service.BaseURL,
		"capabilities":      s.man.Capabilities,
		"supported_formats": s.man.SupportedFormats(),
		"input_files":       s.man.Inputs,
		"output_files":      s.man.Outputs,
		"parameter_schema":  s.man.ParameterSchema,
		"max_upload_mb":     s.cfg.Data.MaxUploadMB,
	})
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes()); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}

	rawParams := r.FormValue("parameters")
	if rawParams == "" {
		rawParams = "{}"
	}
	params, err := s.params.Validate([]byte(rawParams))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid parameters: %v", err))
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate job id failed")
		return
	}
	if err := s.ws.EnsureJobDirs(jobID); err != nil {
		s.logger.Error("create job directories failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "prepare job workspace failed")
		return
	}

	staged, err := s.stageUploads(r, jobID)
	if err != nil {
		s.cleanupJobDirs(jobID)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if missing := s.missingInputs(staged); len(missing) > 0 {
		s.cleanupJobDirs(jobID)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing required input files: %v", missing))
		return
	}

	now := s.clock.Now()
	job := analysis.Job{
		ID:         jobID,
		Status:     analysis.JobStatusPending,
		Submitted:  now,
		Parameters: params,
		InputFiles: staged,
	}
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		s.cleanupJobDirs(jobID)
		writeError(w, http.StatusInternalServerError, "create job failed")
		return
	}
	s.recordSubmitted(r.Context(), jobID, now)

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	item := analysis.QueueItem{JobID: jobID, Submitted: now.Unix()}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		if uerr := s.jobStore.UpdateStatus(r.Context(), jobID, analysis.JobStatusFailed, "queue rejected job"); uerr != nil {
			s.logger.Error("mark rejected job failed", zap.String("job_id", jobID), zap.Error(uerr))
		}
		writeError(w, http.StatusServiceUnavailable, "analysis queue is full")
		return
	}
	analysis.JobsSubmitted.Inc()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  jobID,
		"status":  string(analysis.JobStatusPending),
		"message": "Analysis job accepted",
	})
}

// cleanupJobDirs removes the per-job directories after a rejected submission
// so a failed upload leaves nothing behind on disk.
func (s *Server) cleanupJobDirs(jobID string) {
	if err := s.ws.RemoveJob(jobID); err != nil {
		s.logger.Warn("remove rejected job directories failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// stageUploads writes every uploaded file into the job's inputs directory and
// returns the staged filenames.
func (s *Server) stageUploads(r *http.Request, jobID string) ([]string, error) {
	if r.MultipartForm == nil {
		return nil, errors.New("no files uploaded")
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		return nil, errors.New("no files uploaded")
	}

	staged := make([]string, 0, len(headers))
	for _, hdr := range headers {
		name := hdr.Filename
		if _, ok := s.man.InputByName(name); !ok {
			return nil, fmt.Errorf("unexpected input file %q", name)
		}
		f, err := hdr.Open()
		if err != nil {
			return nil, fmt.Errorf("open upload %q: %w", name, err)
		}
		n, err := s.ws.StageInput(jobID, name, f)
		f.Close() //nolint:errcheck,gosec // upload part already consumed
		if err != nil {
			return nil, fmt.Errorf("stage upload %q: %w", name, err)
		}
		analysis.UploadBytes.Add(float64(n))
		staged = append(staged, name)
	}
	return staged, nil
}

func (s *Server) missingInputs(staged []string) []string {
	have := make(map[string]bool, len(staged))
	for _, name := range staged {
		have[name] = true
	}
	var missing []string
	for _, in := range s.man.RequiredInputs() {
		if !have[in.Name] {
			missing = append(missing, in.Name)
		}
	}
	return missing
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":       job.ID,
		"status":       string(job.Status),
		"progress":     job.Progress,
		"message":      job.Message,
		"submitted_at": job.Submitted.UTC().Format(time.RFC3339),
		"started_at":   formatOptionalTime(job.Started),
		"finished_at":  formatOptionalTime(job.Finished),
		"error":        job.ErrorText,
	})
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != analysis.JobStatusCompleted {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "job has not completed",
			"job_id": job.ID,
			"status": string(job.Status),
		})
		return
	}

	outputs := make([]map[string]any, 0, len(job.OutputFiles))
	for _, f := range job.OutputFiles {
		outputs = append(outputs, map[string]any{
			"key":          f.Key,
			"filename":     f.Filename,
			"dtype":        f.Dtype,
			"description":  f.Description,
			"size":         f.SizeBytes,
			"download_url": fmt.Sprintf("/download/%s/%s", job.ID, f.Filename),
			"archive_uri":  f.ArchiveURI,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":       job.ID,
		"status":       string(job.Status),
		"results":      job.Results,
		"output_files": outputs,
	})
}

func (s *Server) downloadOutput(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	filename := chi.URLParam(r, "filename")

	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != analysis.JobStatusCompleted {
		writeError(w, http.StatusConflict, "job has not completed")
		return
	}
	path, err := s.ws.OutputPath(jobID, filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "output file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}

// deleteJob cancels an active job, or removes a finished job along with its
// workspace directories.
func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	if !job.Status.IsTerminal() {
		if err := s.jobStore.UpdateStatus(r.Context(), jobID, analysis.JobStatusCancelled, "cancelled via API"); err != nil {
			writeError(w, http.StatusConflict, "job finished before it could be cancelled")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"job_id": jobID,
			"status": string(analysis.JobStatusCancelled),
		})
		return
	}

	if err := s.jobStore.DeleteJob(r.Context(), jobID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete job failed")
		return
	}
	if err := s.ws.RemoveJob(jobID); err != nil {
		s.logger.Warn("remove job workspace failed", zap.String("job_id", jobID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"job_id": jobID,
		"status": "deleted",
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	status, err := parseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := s.jobStore.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list jobs failed")
		return
	}
	summaries := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, map[string]any{
			"job_id":       job.ID,
			"status":       string(job.Status),
			"progress":     job.Progress,
			"submitted_at": job.Submitted.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  summaries,
		"count": len(summaries),
	})
}

// listHistory serves the persistent journal. Without a configured database
// the endpoint reports 503 rather than pretending history exists.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "job history is not configured")
		return
	}
	var statusFilter *string
	if raw := r.URL.Query().Get("status"); raw != "" {
		if _, err := parseStatus(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		statusFilter = &raw
	}
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.journal.ListEntries(r.Context(), statusFilter, limit, offset)
	if err != nil {
		s.logger.Error("list journal entries failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list job history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) recordSubmitted(ctx context.Context, jobID string, now time.Time) {
	if s.journal == nil {
		return
	}
	id, err := guuid.Parse(jobID)
	if err != nil {
		return
	}
	if err := s.journal.RecordSubmitted(ctx, id, now); err != nil {
		s.logger.Warn("journal submit failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func parseStatus(raw string) (*analysis.JobStatus, error) {
	if raw == "" {
		return nil, nil
	}
	status := analysis.JobStatus(raw)
	switch status {
	case analysis.JobStatusPending, analysis.JobStatusRunning,
		analysis.JobStatusCompleted, analysis.JobStatusFailed, analysis.JobStatusCancelled:
		return &status, nil
	default:
		return nil, fmt.Errorf("unknown status %q", raw)
	}
}

func parseLimitOffset(r *http.Request) (limit, offset int, err error) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > 500 {
			return 0, 0, fmt.Errorf("limit must be an integer between 1 and 500")
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
