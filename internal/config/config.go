// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Service      ServiceConfig      `mapstructure:"service"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Runner       RunnerConfig       `mapstructure:"runner"`
	Data         DataConfig         `mapstructure:"data"`
	Manifest     ManifestConfig     `mapstructure:"manifest"`
	DB           DBConfig           `mapstructure:"db"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	Events       EventsConfig       `mapstructure:"events"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// ServiceConfig identifies this service to clients and the orchestrator.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Type        string `mapstructure:"type"`
	Version     string `mapstructure:"version"`
	Description string `mapstructure:"description"`
	BaseURL     string `mapstructure:"base_url"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// OrchestratorConfig controls registration with the external orchestrator.
type OrchestratorConfig struct {
	URL                   string `mapstructure:"url"`
	Register              bool   `mapstructure:"register"`
	HealthIntervalSeconds int    `mapstructure:"health_interval_seconds"`
	TimeoutSeconds        int    `mapstructure:"timeout_seconds"`
}

// RunnerConfig governs worker pool and queue behavior.
type RunnerConfig struct {
	Concurrency       int `mapstructure:"concurrency"`
	QueueDepth        int `mapstructure:"queue_depth"`
	JobTimeoutSeconds int `mapstructure:"job_timeout_seconds"`
}

// DataConfig sets the on-disk workspace layout and upload limits.
type DataConfig struct {
	Dir         string `mapstructure:"dir"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
}

// ManifestConfig points at an optional manifest file overriding the built-in
// template manifest.
type ManifestConfig struct {
	Path string `mapstructure:"path"`
}

// DBConfig controls the optional Postgres job journal.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ArchiveConfig controls mirroring of output artifacts to a blob store.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// EventsConfig controls completion-event publishing.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANALYSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Service.BaseURL == "" {
		cfg.Service.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("service.name", "delivery-analysis-service")
	v.SetDefault("service.type", "analysis")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("service.description", "Analysis service that processes uploaded data files")
	v.SetDefault("orchestrator.url", "http://localhost:8000")
	v.SetDefault("orchestrator.register", false)
	v.SetDefault("orchestrator.health_interval_seconds", 60)
	v.SetDefault("orchestrator.timeout_seconds", 10)
	v.SetDefault("runner.concurrency", 2)
	v.SetDefault("runner.queue_depth", 64)
	v.SetDefault("runner.job_timeout_seconds", 900)
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.max_upload_mb", 10)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "jobs")
	v.SetDefault("events.provider", "none")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be > 0")
	}
	if c.Runner.QueueDepth <= 0 {
		return fmt.Errorf("runner.queue_depth must be > 0")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must be set")
	}
	if c.Data.MaxUploadMB <= 0 {
		return fmt.Errorf("data.max_upload_mb must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Orchestrator.Register && c.Orchestrator.URL == "" {
		return fmt.Errorf("orchestrator.url must be set when registration is enabled")
	}
	switch c.Archive.Provider {
	case "", "none", "memory":
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is local")
		}
	default:
		return fmt.Errorf("unknown archive.provider: %s", c.Archive.Provider)
	}
	switch c.Events.Provider {
	case "", "none", "memory":
	case "pubsub":
		if c.Events.ProjectID == "" || c.Events.TopicName == "" {
			return fmt.Errorf("events.project_id and events.topic_name must be set when events.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown events.provider: %s", c.Events.Provider)
	}
	return nil
}

// RequestTimeout converts the server timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// JobTimeout converts the per-job budget into a duration.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Runner.JobTimeoutSeconds) * time.Second
}

// MaxUploadBytes converts the upload cap into bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.Data.MaxUploadMB << 20
}
