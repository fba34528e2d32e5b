package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sentra-sec/sentra/internal/app"
	"github.com/sentra-sec/sentra/internal/audit"
	audithttp "github.com/sentra-sec/sentra/internal/audit/http"
	"github.com/sentra-sec/sentra/internal/gate"
	"github.com/sentra-sec/sentra/internal/observability"
	"github.com/sentra-sec/sentra/internal/platform/cache"
	"github.com/sentra-sec/sentra/internal/platform/db"
	"github.com/sentra-sec/sentra/internal/policy"
	policyhttp "github.com/sentra-sec/sentra/internal/policy/http"
	"github.com/sentra-sec/sentra/internal/resolver"
	"github.com/sentra-sec/sentra/internal/retention"
	"github.com/sentra-sec/sentra/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(pool)
	deadLetter := audit.NewDeadLetter(cfg.AuditDeadLetterPath)
	ingestor := audit.NewIngestor(auditRepo, deadLetter, logger, metrics, audit.IngestorConfig{
		MaxAttempts: cfg.AuditMaxAttempts,
		Backoff:     cfg.AuditRetryBackoff,
	})
	auditQueue := audit.NewQueue(ingestor, cfg.AuditQueueSize, logger, metrics)
	go func() {
		if err := auditQueue.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("audit queue", slog.Any("error", err))
		}
	}()

	cache, err := resolver.NewCache(cfg.ResolverCacheSize)
	if err != nil {
		logger.Error("init resolver cache", slog.Any("error", err))
		os.Exit(1)
	}
	invalidator := resolver.NewInvalidator(cache, redisClient, cfg.InvalidationChannel, logger)
	go func() {
		if err := invalidator.Listen(ctx); err != nil && err != context.Canceled {
			logger.Error("invalidation listener", slog.Any("error", err))
		}
	}()

	resolverRepo := resolver.NewRepository(pool)
	permResolver := resolver.New(resolverRepo, cache, metrics, resolver.Config{
		QueryTimeout: cfg.ResolverQueryTimeout,
	})

	authzGate := gate.New(permResolver, auditQueue, logger, metrics, gate.Config{
		SensitivityThreshold: cfg.AuditSensitivityThreshold,
	})

	policyRepo := policy.NewRepository(pool)
	policyService := policy.NewService(policyRepo, invalidator, auditQueue, logger)

	retentionRepo := retention.NewRepository(pool)
	retentionManager := retention.NewManager(retentionRepo, auditQueue, logger, metrics)

	auditService := audit.NewService(auditRepo)
	auditHandler := audithttp.NewHandler(logger, ingestor, auditService)
	policyHandler := policyhttp.NewHandler(logger, policyService)
	retentionHandler := retention.NewHandler(logger, retentionManager)
	decisionHandler := gate.NewHandler(logger, authzGate)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Gate:             authzGate,
		DecisionHandler:  decisionHandler,
		AuditHandler:     auditHandler,
		PolicyHandler:    policyHandler,
		RetentionHandler: retentionHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
