// Package main wires together the analysis service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/mirowlabs/analysis-service/internal/analysis"
	"github.com/mirowlabs/analysis-service/internal/api"
	"github.com/mirowlabs/analysis-service/internal/clock/system"
	"github.com/mirowlabs/analysis-service/internal/config"
	"github.com/mirowlabs/analysis-service/internal/dispatcher"
	"github.com/mirowlabs/analysis-service/internal/id/uuid"
	"github.com/mirowlabs/analysis-service/internal/logging"
	"github.com/mirowlabs/analysis-service/internal/manifest"
	memorypublisher "github.com/mirowlabs/analysis-service/internal/publisher/memory"
	pubsubpublisher "github.com/mirowlabs/analysis-service/internal/publisher/pubsub"
	queueMemory "github.com/mirowlabs/analysis-service/internal/queue/memory"
	"github.com/mirowlabs/analysis-service/internal/registrar"
	"github.com/mirowlabs/analysis-service/internal/runner/csvxlsx"
	"github.com/mirowlabs/analysis-service/internal/storage/gcs"
	localStorage "github.com/mirowlabs/analysis-service/internal/storage/local"
	memoryStorage "github.com/mirowlabs/analysis-service/internal/storage/memory"
	"github.com/mirowlabs/analysis-service/internal/storage/postgres"
	"github.com/mirowlabs/analysis-service/internal/store"
	"github.com/mirowlabs/analysis-service/internal/worker"
	"github.com/mirowlabs/analysis-service/internal/workspace"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	man := manifest.Default()
	if cfg.Manifest.Path != "" {
		man, err = manifest.Load(cfg.Manifest.Path)
		if err != nil {
			logger.Fatal("load manifest failed", zap.String("path", cfg.Manifest.Path), zap.Error(err))
		}
	}
	paramValidator, err := man.Validator()
	if err != nil {
		logger.Fatal("compile parameter schema failed", zap.Error(err))
	}

	ws, err := workspace.New(workspace.Config{DataDir: cfg.Data.Dir})
	if err != nil {
		logger.Fatal("workspace init failed", zap.String("dir", cfg.Data.Dir), zap.Error(err))
	}

	var journal store.Journal
	if cfg.DB.DSN != "" {
		pgJournal, err := postgres.NewJournal(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("job journal init failed", zap.Error(err))
		}
		defer pgJournal.Close()
		journal = pgJournal
	}

	archive, err := buildArchive(ctx, cfg)
	if err != nil {
		logger.Fatal("archive store init failed", zap.Error(err))
	}

	publisher, topic, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("event publisher init failed", zap.Error(err))
	}
	if closePublisher != nil {
		defer func() {
			if err := closePublisher(); err != nil {
				logger.Warn("publisher close failed", zap.Error(err))
			}
		}()
	}

	clock := system.New()
	jobStore := memoryStorage.NewJobStore(clock)
	queue := queueMemory.NewQueue(cfg.Runner.QueueDepth)
	idGen := uuid.New()
	runner := csvxlsx.New(logger.Named("runner"))

	workerCfg := worker.Config{
		Topic:         topic,
		ArchivePrefix: cfg.Archive.Prefix,
		JobTimeout:    cfg.JobTimeout(),
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Runner.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			ws,
			man,
			runner,
			archive,
			publisher,
			journal,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(
		jobStore,
		dispatch,
		ws,
		man,
		paramValidator,
		journal,
		idGen,
		clock,
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	if cfg.Orchestrator.Register {
		reg := registrar.New(
			registrar.ServiceInfo{
				Name:        cfg.Service.Name,
				Type:        cfg.Service.Type,
				Version:     cfg.Service.Version,
				Description: cfg.Service.Description,
				BaseURL:     cfg.Service.BaseURL,
			},
			man,
			registrar.Config{
				OrchestratorURL: cfg.Orchestrator.URL,
				HealthInterval:  time.Duration(cfg.Orchestrator.HealthIntervalSeconds) * time.Second,
				Timeout:         time.Duration(cfg.Orchestrator.TimeoutSeconds) * time.Second,
			},
			logger.Named("registrar"),
		)
		go reg.Run(ctx)
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	logger.Info("shutdown complete")
}

func buildArchive(ctx context.Context, cfg config.Config) (analysis.BlobStore, error) {
	switch cfg.Archive.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return memoryStorage.NewBlobStore(), nil
	case "local":
		bs, err := localStorage.New(localStorage.Config{BaseDir: cfg.Archive.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local archive: %w", err)
		}
		return bs, nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		bs, err := gcs.New(client, gcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive: %w", err)
		}
		return bs, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Archive.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (analysis.Publisher, string, func() error, error) {
	switch cfg.Events.Provider {
	case "", "none":
		return nil, "", nil, nil
	case "memory":
		return memorypublisher.New(), cfg.Events.TopicName, nil, nil
	case "pubsub":
		pub, closeFn, err := pubsubpublisher.Connect(ctx, cfg.Events.ProjectID, cfg.Events.TopicName)
		if err != nil {
			return nil, "", nil, err
		}
		return pub, cfg.Events.TopicName, closeFn, nil
	default:
		return nil, "", nil, fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
}
