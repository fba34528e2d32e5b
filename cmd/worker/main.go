package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sentra-sec/sentra/internal/app"
	"github.com/sentra-sec/sentra/internal/audit"
	"github.com/sentra-sec/sentra/internal/integrity"
	jobmetrics "github.com/sentra-sec/sentra/internal/jobs"
	"github.com/sentra-sec/sentra/internal/observability"
	"github.com/sentra-sec/sentra/internal/platform/db"
	"github.com/sentra-sec/sentra/internal/retention"
	"github.com/sentra-sec/sentra/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	auditRepo := audit.NewRepository(pool)
	deadLetter := audit.NewDeadLetter(cfg.AuditDeadLetterPath)
	// The replay ingestor carries no dead letter of its own: Drain already
	// keeps rejected events for the next run, so dead-lettering here would
	// store every failed replay twice.
	replayIngestor := audit.NewIngestor(auditRepo, nil, logger, metrics, audit.IngestorConfig{
		MaxAttempts: cfg.AuditMaxAttempts,
		Backoff:     cfg.AuditRetryBackoff,
	})

	retentionRepo := retention.NewRepository(pool)
	retentionManager := retention.NewManager(retentionRepo, nil, logger, metrics)

	verifierRepo := integrity.NewRepository(pool)
	verifier := integrity.New(auditRepo, verifierRepo, logger, metrics, integrity.Config{
		BatchSize: cfg.IntegrityBatchSize,
		Lag:       cfg.IntegrityLag,
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRetentionRun, Handler: jobs.NewRetentionRunHandler(retentionManager, logger, jobMetrics)},
			{Type: jobs.TaskPartitionEnsure, Handler: jobs.NewPartitionEnsureHandler(retentionManager, logger, jobMetrics)},
			{Type: jobs.TaskIntegrityScan, Handler: jobs.NewIntegrityScanHandler(verifier, logger, jobMetrics)},
			{Type: jobs.TaskDeadLetterReplay, Handler: jobs.NewDeadLetterReplayHandler(deadLetter, replayIngestor, logger, jobMetrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PartitionCron, Task: jobs.NewPartitionEnsureTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.RetentionCron, Task: jobs.NewRetentionRunTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IntegrityCron, Task: jobs.NewIntegrityScanTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.DeadLetterCron, Task: jobs.NewDeadLetterReplayTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
