package audit

import (
	"context"
	"log/slog"

	"github.com/sentra-sec/sentra/internal/observability"
)

// Emitter accepts security events without blocking the caller.
type Emitter interface {
	Emit(event RawSecurityEvent)
}

// Queue is a bounded in-process emitter drained by a background goroutine.
// When the queue is full the event is dropped and counted; a slow or down
// audit sink must never block an authorization decision.
type Queue struct {
	events   chan RawSecurityEvent
	ingestor *Ingestor
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewQueue constructs a Queue with the given capacity.
func NewQueue(ingestor *Ingestor, size int, logger *slog.Logger, metrics *observability.Metrics) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{
		events:   make(chan RawSecurityEvent, size),
		ingestor: ingestor,
		logger:   logger,
		metrics:  metrics,
	}
}

// Emit enqueues an event, dropping it when the queue is full.
func (q *Queue) Emit(event RawSecurityEvent) {
	select {
	case q.events <- event:
	default:
		q.metrics.RecordEmitDropped()
		q.logger.Warn("audit emit dropped",
			slog.String("event_type", event.EventType),
			slog.String("action", event.Action))
	}
}

// Run drains the queue until the context is canceled, then flushes whatever
// is still buffered. Ingest errors are already logged and dead-lettered by
// the ingestor; they never propagate.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			q.flush()
			return ctx.Err()
		case event := <-q.events:
			q.ingest(ctx, event)
		}
	}
}

func (q *Queue) flush() {
	flushCtx := context.Background()
	for {
		select {
		case event := <-q.events:
			q.ingest(flushCtx, event)
		default:
			return
		}
	}
}

func (q *Queue) ingest(ctx context.Context, event RawSecurityEvent) {
	if _, err := q.ingestor.Ingest(ctx, event); err != nil {
		q.logger.Warn("async audit ingest", slog.Any("error", err))
	}
}

var _ Emitter = (*Queue)(nil)
