// Package integrity re-verifies the audit log's hash chain. The verifier is
// strictly read-only over audit data: it reports tampering, it never repairs.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentra-sec/sentra/internal/audit"
	"github.com/sentra-sec/sentra/internal/observability"
	"github.com/sentra-sec/sentra/internal/shared"
)

// FindingKind classifies a verification failure.
type FindingKind string

const (
	// KindGap means a sequence number is missing from the log.
	KindGap FindingKind = "gap"
	// KindMismatch means a stored hash does not match recomputation, or an
	// event's prev hash does not match its predecessor.
	KindMismatch FindingKind = "mismatch"
)

// Finding is one detected chain violation.
type Finding struct {
	Seq     int64       `json:"seq"`
	EventID string      `json:"event_id,omitempty"`
	Kind    FindingKind `json:"kind"`
	Detail  string      `json:"detail"`
}

// Checkpoint is the verifier's resumable position: the last verified
// sequence number and its hash.
type Checkpoint struct {
	Seq        int64
	Hash       string
	VerifiedAt time.Time
}

// Repository is the verifier's persistence contract. Event reads come from
// the audit repository; the checkpoint has its own table.
type Repository interface {
	LoadCheckpoint(ctx context.Context) (Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
}

// EventSource streams events in sequence order.
type EventSource interface {
	EventsAfterSeq(ctx context.Context, afterSeq int64, until time.Time, limit int) ([]audit.AuditEvent, error)
}

// Config tunes the verifier.
type Config struct {
	BatchSize int
	// Lag keeps the verifier away from the chain head so it never races an
	// append in flight.
	Lag time.Duration
}

// Verifier walks the hash chain from the last checkpoint.
type Verifier struct {
	events  EventSource
	repo    Repository
	logger  *slog.Logger
	metrics *observability.Metrics
	cfg     Config
	now     func() time.Time
}

// New constructs a Verifier.
func New(events EventSource, repo Repository, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Verifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Lag <= 0 {
		cfg.Lag = time.Minute
	}
	return &Verifier{
		events:  events,
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run verifies the chain from the stored checkpoint to near the head. It
// returns every finding and ErrTamperSuspected when there are any. The
// checkpoint only advances over verified events, so a finding is re-reported
// on every run until an operator intervenes.
func (v *Verifier) Run(ctx context.Context) ([]Finding, error) {
	cp, err := v.repo.LoadCheckpoint(ctx)
	if err != nil {
		return nil, fmt.Errorf("integrity: load checkpoint: %w", err)
	}
	if cp.Seq == 0 {
		cp.Hash = audit.GenesisHash
	}

	until := v.now().Add(-v.cfg.Lag)
	var findings []Finding
	verified := 0
	broken := false

	for !broken {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		batch, err := v.events.EventsAfterSeq(ctx, cp.Seq, until, v.cfg.BatchSize)
		if err != nil {
			return findings, fmt.Errorf("integrity: read events: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, ev := range batch {
			finding, ok := verifyLink(cp, ev)
			if !ok {
				findings = append(findings, finding)
				v.metrics.RecordIntegrityFinding(string(finding.Kind))
				v.logger.Error("audit chain violation",
					slog.Int64("seq", finding.Seq),
					slog.String("kind", string(finding.Kind)),
					slog.String("detail", finding.Detail))
				// The chain is broken here; later links cannot be trusted
				// against this predecessor.
				broken = true
				break
			}
			cp = Checkpoint{Seq: ev.Seq, Hash: ev.Hash, VerifiedAt: v.now()}
			verified++
		}
		if len(batch) < v.cfg.BatchSize {
			break
		}
	}

	if verified > 0 {
		if err := v.repo.SaveCheckpoint(ctx, cp); err != nil {
			return findings, fmt.Errorf("integrity: save checkpoint: %w", err)
		}
	}
	v.logger.Info("integrity scan complete",
		slog.Int("verified", verified),
		slog.Int("findings", len(findings)),
		slog.Int64("checkpoint_seq", cp.Seq))

	if len(findings) > 0 {
		return findings, fmt.Errorf("integrity: %d finding(s): %w", len(findings), shared.ErrTamperSuspected)
	}
	return nil, nil
}

// verifyLink checks one event against the verified predecessor.
func verifyLink(prev Checkpoint, ev audit.AuditEvent) (Finding, bool) {
	if ev.Seq != prev.Seq+1 {
		return Finding{
			Seq:  prev.Seq + 1,
			Kind: KindGap,
			Detail: fmt.Sprintf("expected seq %d, found %d (%s)",
				prev.Seq+1, ev.Seq, ev.EventID),
		}, false
	}
	if ev.PrevHash != prev.Hash {
		return Finding{
			Seq:     ev.Seq,
			EventID: ev.EventID,
			Kind:    KindMismatch,
			Detail:  "prev_hash does not match predecessor",
		}, false
	}
	if recomputed := audit.ComputeHash(ev); recomputed != ev.Hash {
		return Finding{
			Seq:     ev.Seq,
			EventID: ev.EventID,
			Kind:    KindMismatch,
			Detail:  "stored hash does not match recomputation",
		}, false
	}
	return Finding{}, true
}
