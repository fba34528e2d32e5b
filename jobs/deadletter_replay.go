package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sentra-sec/sentra/internal/audit"
	jobmetrics "github.com/sentra-sec/sentra/internal/jobs"
)

// NewDeadLetterReplayHandler returns the handler for TaskDeadLetterReplay.
// Events that fail again stay in the dead letter file for the next run, so
// the ingestor should carry no dead letter of its own or failed replays end
// up stored twice.
func NewDeadLetterReplayHandler(deadLetter *audit.DeadLetter, ingestor *audit.Ingestor, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("audit.deadletter_replay")
		replayed, err := deadLetter.Drain(ctx, func(ctx context.Context, raw audit.RawSecurityEvent) error {
			_, err := ingestor.Ingest(ctx, raw)
			return err
		})
		if err != nil {
			logger.Error("dead letter replay failed", slog.Any("error", err))
			return tracker.End(err)
		}
		if replayed > 0 {
			logger.Info("dead letter replay complete", slog.Int("replayed", replayed))
		}
		return tracker.End(nil)
	}
}
