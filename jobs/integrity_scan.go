package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/sentra-sec/sentra/internal/integrity"
	jobmetrics "github.com/sentra-sec/sentra/internal/jobs"
	"github.com/sentra-sec/sentra/internal/shared"
)

// NewIntegrityScanHandler returns the handler for TaskIntegrityScan.
// A tamper finding is terminal: retrying cannot un-break the chain, so the
// task is not requeued and the alert rides on the logged findings.
func NewIntegrityScanHandler(verifier *integrity.Verifier, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track("integrity.scan")
		findings, err := verifier.Run(ctx)
		if errors.Is(err, shared.ErrTamperSuspected) {
			for _, f := range findings {
				logger.Error("tamper finding",
					slog.Int64("seq", f.Seq),
					slog.String("kind", string(f.Kind)),
					slog.String("detail", f.Detail))
			}
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		if err != nil {
			logger.Error("integrity scan failed", slog.Any("error", err))
			return tracker.End(err)
		}
		return tracker.End(nil)
	}
}
