package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted tracks the number of jobs accepted via the API.
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_jobs_submitted_total",
		Help: "The total number of analysis jobs submitted.",
	})
	// JobsCompleted tracks finished jobs partitioned by terminal status.
	JobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_jobs_completed_total",
		Help: "The total number of analysis jobs finished, by result.",
	}, []string{"result"})
	// JobsRunning is the number of jobs currently executing.
	JobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_jobs_running",
		Help: "The current number of running analysis jobs.",
	})
	// JobDuration observes wall time per finished job.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_job_duration_seconds",
		Help:    "Wall time per finished analysis job, by result.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"result"})
	// UploadBytes accumulates bytes staged from client uploads.
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_upload_bytes_total",
		Help: "The total number of input bytes staged from uploads.",
	})
)
