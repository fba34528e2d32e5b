package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sentra-sec/sentra/internal/jobs"
	"github.com/sentra-sec/sentra/internal/retention"
)

// NewRetentionRunHandler returns the handler for TaskRetentionRun.
func NewRetentionRunHandler(manager *retention.Manager, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("retention.run")
		result, err := manager.Run(ctx)
		if err != nil {
			logger.Error("retention run failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("retention run complete",
			slog.String("status", result.Report.Status),
			slog.Int("dropped", len(result.Dropped)),
			slog.Int("held", len(result.Held)))
		return tracker.End(nil)
	}
}

// NewPartitionEnsureHandler returns the handler for TaskPartitionEnsure.
func NewPartitionEnsureHandler(manager *retention.Manager, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("retention.partition_ensure")
		if err := manager.EnsurePartitions(ctx); err != nil {
			logger.Error("partition ensure failed", slog.Any("error", err))
			return tracker.End(err)
		}
		logger.Info("partitions ensured")
		return tracker.End(nil)
	}
}
