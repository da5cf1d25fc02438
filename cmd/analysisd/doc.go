// Package main hosts the analysis service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, discovery, metrics, and job management endpoints. Uploads are
//     validated against the artifact manifest, parameters against its JSON Schema, and jobs are persisted via the
//     JobStore before being enqueued for work.
//   - Dispatcher & queue: jobs flow through a bounded in-memory queue sized by config.Runner.QueueDepth and are
//     fanned out to a fixed worker pool sized by config.Runner.Concurrency. Context cancellation stops workers
//     cleanly on shutdown.
//   - Analysis pipeline: each worker verifies staged inputs, invokes the configured Runner (the built-in runner
//     converts the staged CSVs into XLSX workbooks plus a JSON results document), maps runner progress onto the
//     job's progress fraction, and collects declared outputs from the job's outputs directory.
//   - Persistence & fanout: outputs are optionally mirrored to the configured archive BlobStore (memory/local/GCS),
//     job lifecycle rows are optionally written to the Postgres journal, and a completion event is published to
//     Pub/Sub when a topic is configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via /metrics; the registrar announces the service to an orchestrator and reports health
//     on a timer when registration is enabled.
//
// Operational notes:
//   - Concurrency model: bounded queue + fixed worker pool; per-job execution is bounded by
//     config.Runner.JobTimeoutSeconds. Shutdown is coordinated via context cancellation propagated from main
//     through dispatcher to workers.
//   - Cancellation: DELETE /jobs/{job_id} marks active jobs cancelled; workers skip jobs cancelled while queued
//     and never overwrite a cancelled status after the fact.
//   - Observability: zap logs carry job IDs at key transitions; Prometheus counters/histograms track submissions,
//     outcomes, and durations.
//
// Quick checklist:
//   - Configure env vars: ANALYSIS_SERVER_PORT, ANALYSIS_RUNNER_CONCURRENCY, ANALYSIS_DATA_DIR,
//     ANALYSIS_ORCHESTRATOR_URL/ANALYSIS_ORCHESTRATOR_REGISTER, archive (ANALYSIS_ARCHIVE_*), events
//     (ANALYSIS_EVENTS_*), and ANALYSIS_DB_DSN when persistent history is required.
//   - Run locally: go run ./cmd/analysisd -config config.yaml (or rely solely on env overrides).
package main
