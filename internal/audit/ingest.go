package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sentra-sec/sentra/internal/observability"
	"github.com/sentra-sec/sentra/internal/shared"
)

// IngestorConfig tunes retry behavior.
type IngestorConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Ingestor turns raw security events into scored, tagged, hash-chained audit
// records. It is synchronous within a process to preserve arrival order;
// callers that must not block wrap it in a queue.
type Ingestor struct {
	repo       Repository
	deadLetter *DeadLetter
	logger     *slog.Logger
	metrics    *observability.Metrics
	cfg        IngestorConfig
	now        func() time.Time
}

// NewIngestor constructs an Ingestor.
func NewIngestor(repo Repository, deadLetter *DeadLetter, logger *slog.Logger, metrics *observability.Metrics, cfg IngestorConfig) *Ingestor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	return &Ingestor{
		repo:       repo,
		deadLetter: deadLetter,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest scores, tags, classifies, and appends an event. Persistence is
// retried with bounded backoff; after exhausting retries the raw event goes
// to the dead-letter store and ErrAuditSinkUnavailable is returned. Callers
// on the decision path swallow that error by contract.
func (i *Ingestor) Ingest(ctx context.Context, raw RawSecurityEvent) (AuditEvent, error) {
	if err := raw.Validate(); err != nil {
		return AuditEvent{}, err
	}

	ev := i.build(ctx, raw)

	var lastErr error
	backoff := i.cfg.Backoff
	for attempt := 1; attempt <= i.cfg.MaxAttempts; attempt++ {
		lastErr = i.repo.Append(ctx, &ev)
		if lastErr == nil {
			i.metrics.RecordIngest(string(ev.Result))
			return ev, nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < i.cfg.MaxAttempts {
			i.logger.Warn("audit append retry",
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	i.logger.Error("audit append exhausted retries", slog.Any("error", lastErr))
	if i.deadLetter != nil {
		if dlErr := i.deadLetter.Write(raw); dlErr != nil {
			i.logger.Error("dead letter write", slog.Any("error", dlErr))
		} else {
			i.metrics.RecordDeadLettered()
		}
	}
	return AuditEvent{}, fmt.Errorf("audit: append: %v: %w", lastErr, shared.ErrAuditSinkUnavailable)
}

// build runs the pure scoring pipeline over the input plus static policy
// tables.
func (i *Ingestor) build(ctx context.Context, raw RawSecurityEvent) AuditEvent {
	tags := ComplianceTags(raw)

	held := false
	if i.repo != nil {
		var err error
		held, err = i.repo.ActiveLegalHold(ctx, raw.UserID, raw.Resource)
		if err != nil {
			i.logger.Warn("legal hold lookup", slog.Any("error", err))
			held = false
		}
	}

	// TIMESTAMPTZ stores microseconds; anything finer would be lost in
	// storage and break hash recomputation from the persisted row.
	ts := i.now().Truncate(time.Microsecond)

	return AuditEvent{
		EventID:            uuid.NewString(),
		Timestamp:          ts,
		EventType:          raw.EventType,
		UserID:             raw.UserID,
		Resource:           raw.Resource,
		Action:             raw.Action,
		Result:             raw.Result,
		RiskScore:          RiskScore(raw),
		ComplianceTags:     tags,
		DataClassification: Classify(raw.Resource),
		RetentionDays:      RetentionDays(raw.EventType, tags),
		LegalHold:          held,
		Payload:            raw.Context,
	}
}
