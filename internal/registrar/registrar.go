// Package registrar announces the service to an orchestrator and keeps the
// registration alive with periodic health checks.
package registrar

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/mirowlabs/analysis-service/internal/manifest"
)

// ServiceInfo is the registration document sent to the orchestrator.
type ServiceInfo struct {
	Name             string         `json:"name"`
	Type             string         `json:"service_type"`
	Version          string         `json:"version"`
	Description      string         `json:"description,omitempty"`
	BaseURL          string         `json:"base_url"`
	Capabilities     []string       `json:"capabilities,omitempty"`
	SupportedFormats []string       `json:"supported_formats,omitempty"`
	InputFiles       []ManifestFile `json:"input_files"`
	OutputFiles      []ManifestFile `json:"output_files"`
	ParameterSchema  map[string]any `json:"parameter_schema,omitempty"`
}

// ManifestFile mirrors one manifest artifact in the registration payload.
type ManifestFile struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Dtype       string `json:"dtype"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Config controls the registrar.
type Config struct {
	// OrchestratorURL is the orchestrator base URL, without trailing slash.
	OrchestratorURL string
	// HealthInterval is the delay between health-check reports.
	HealthInterval time.Duration
	// Timeout bounds each outbound request.
	Timeout time.Duration
}

// Registrar registers the service and reports health on a timer.
type Registrar struct {
	client *resty.Client
	info   ServiceInfo
	cfg    Config
	logger *zap.Logger
}

// New builds a Registrar. The service info is derived from the manifest so
// the orchestrator learns the full artifact contract.
func New(info ServiceInfo, man manifest.Manifest, cfg Config, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	if info.Type == "" {
		info.Type = "analysis"
	}
	info.Capabilities = man.Capabilities
	info.SupportedFormats = man.SupportedFormats()
	info.InputFiles = toManifestFiles(man.Inputs)
	info.OutputFiles = toManifestFiles(man.Outputs)
	info.ParameterSchema = man.ParameterSchema

	client := resty.New()
	client.SetBaseURL(cfg.OrchestratorURL)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("Content-Type", "application/json")

	return &Registrar{client: client, info: info, cfg: cfg, logger: logger}
}

func toManifestFiles(artifacts []manifest.Artifact) []ManifestFile {
	out := make([]ManifestFile, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, ManifestFile{
			Key:         a.Key,
			Name:        a.Name,
			Dtype:       a.Dtype,
			Description: a.Description,
			Required:    a.Required,
		})
	}
	return out
}

// Register announces the service to the orchestrator.
func (r *Registrar) Register(ctx context.Context) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(r.info).
		Post("/api/v1/services/register")
	if err != nil {
		return fmt.Errorf("register service: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("register service: orchestrator returned status %d", resp.StatusCode())
	}
	r.logger.Info("registered with orchestrator",
		zap.String("orchestrator", r.cfg.OrchestratorURL),
		zap.String("service", r.info.Name),
	)
	return nil
}

// Run registers, then reports health until the context finishes.
// Registration and health-check failures are logged, never fatal: the
// service keeps serving requests without an orchestrator.
func (r *Registrar) Run(ctx context.Context) {
	if err := r.Register(ctx); err != nil {
		r.logger.Warn("orchestrator registration failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.reportHealth(ctx); err != nil {
				r.logger.Warn("orchestrator health check failed", zap.Error(err))
			}
		}
	}
}

func (r *Registrar) reportHealth(ctx context.Context) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"status": "healthy"}).
		Post(fmt.Sprintf("/api/v1/services/%s/health-check", r.info.Name))
	if err != nil {
		return fmt.Errorf("report health: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("report health: orchestrator returned status %d", resp.StatusCode())
	}
	return nil
}
