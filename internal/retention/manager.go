package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentra-sec/sentra/internal/audit"
	"github.com/sentra-sec/sentra/internal/observability"
	"github.com/sentra-sec/sentra/internal/shared"
)

// Manager drives the partition lifecycle. All of its operations are
// idempotent so scheduled re-runs after a crash are safe.
type Manager struct {
	repo    Repository
	emitter audit.Emitter
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewManager constructs a Manager. The emitter may be nil in tests.
func NewManager(repo Repository, emitter audit.Emitter, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		repo:    repo,
		emitter: emitter,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// PartitionName returns the table name for the month containing ts.
func PartitionName(ts time.Time) string {
	ts = ts.UTC()
	return fmt.Sprintf("audit_events_%04d_%02d", ts.Year(), int(ts.Month()))
}

func monthStart(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EnsurePartitions creates the partition for the current month and the next,
// so month rollover never races ingestion.
func (m *Manager) EnsurePartitions(ctx context.Context) error {
	start := monthStart(m.now())
	for i := 0; i < 2; i++ {
		end := start.AddDate(0, 1, 0)
		name := PartitionName(start)
		if err := m.repo.EnsurePartition(ctx, name, start, end); err != nil {
			return err
		}
		start = end
	}
	return nil
}

// RunResult summarizes one retention run.
type RunResult struct {
	Dropped []DeletionManifest
	Held    []string
	Report  ComplianceReport
}

// Run executes a full retention pass: ensure upcoming partitions, refresh
// metadata, drop expired partitions not under hold, and file a compliance
// report.
func (m *Manager) Run(ctx context.Context) (RunResult, error) {
	if err := m.EnsurePartitions(ctx); err != nil {
		return RunResult{}, err
	}
	if err := m.RefreshMetadata(ctx); err != nil {
		return RunResult{}, err
	}

	result, err := m.DropExpired(ctx)
	if err != nil {
		return RunResult{}, err
	}

	report, err := m.fileReport(ctx, result)
	if err != nil {
		return RunResult{}, err
	}
	result.Report = report

	m.record(audit.EventSystemChange, "retention_run", map[string]any{
		"status":             report.Status,
		"partitions_dropped": report.PartitionsDropped,
		"partitions_held":    report.PartitionsHeld,
	})
	return result, nil
}

// RefreshMetadata updates row counts and sizes for every partition.
func (m *Manager) RefreshMetadata(ctx context.Context) error {
	parts, err := m.repo.ListPartitions(ctx)
	if err != nil {
		return err
	}
	for _, p := range parts {
		if err := m.repo.RefreshMetadata(ctx, p.Name); err != nil {
			return err
		}
	}
	return nil
}

// DropExpired drops every partition whose entire period is past the longest
// retention of any row it contains. Partitions under legal hold are skipped
// and reported, never dropped.
func (m *Manager) DropExpired(ctx context.Context) (RunResult, error) {
	now := m.now()
	parts, err := m.repo.ListPartitions(ctx)
	if err != nil {
		return RunResult{}, err
	}

	var result RunResult
	for _, p := range parts {
		if !p.PeriodEnd.Before(now) {
			continue
		}
		maxDays, err := m.repo.MaxRetentionDays(ctx, p.Name)
		if err != nil {
			return RunResult{}, err
		}
		if maxDays > 0 {
			cutoff := now.AddDate(0, 0, -maxDays)
			if p.PeriodEnd.After(cutoff) {
				continue
			}
		}

		held, err := m.repo.HasHeldRows(ctx, p.Name)
		if err != nil {
			return RunResult{}, err
		}
		if held {
			m.logger.Warn("partition under legal hold, skipping drop",
				slog.String("partition", p.Name))
			result.Held = append(result.Held, p.Name)
			continue
		}

		manifest := DeletionManifest{
			PartitionName: p.Name,
			PeriodStart:   p.PeriodStart,
			PeriodEnd:     p.PeriodEnd,
			RowCount:      p.RowCount,
			DroppedAt:     now,
		}
		if err := m.repo.InsertManifest(ctx, manifest); err != nil {
			return RunResult{}, err
		}
		if err := m.repo.DropPartition(ctx, p.Name); err != nil {
			return RunResult{}, err
		}
		m.metrics.RecordPartitionDropped()
		m.logger.Info("dropped expired partition",
			slog.String("partition", p.Name),
			slog.Int64("rows", p.RowCount))
		result.Dropped = append(result.Dropped, manifest)
	}
	return result, nil
}

func (m *Manager) fileReport(ctx context.Context, result RunResult) (ComplianceReport, error) {
	parts, err := m.repo.ListPartitions(ctx)
	if err != nil {
		return ComplianceReport{}, err
	}
	oldest, err := m.repo.OldestEventTime(ctx)
	if err != nil {
		return ComplianceReport{}, err
	}

	report := ComplianceReport{
		RunAt:             m.now(),
		Status:            StatusCompliant,
		PartitionsTotal:   len(parts),
		PartitionsDropped: len(result.Dropped),
		PartitionsHeld:    len(result.Held),
		OldestEvent:       oldest,
	}
	if len(result.Held) > 0 {
		report.Status = StatusNeedsAttention
		report.Notes = fmt.Sprintf("%d expired partition(s) retained by legal hold", len(result.Held))
	}
	return m.repo.InsertReport(ctx, report)
}

// Holds returns all legal holds.
func (m *Manager) Holds(ctx context.Context) ([]LegalHold, error) {
	return m.repo.ListHolds(ctx)
}

// PlaceHold creates a legal hold and records the action.
func (m *Manager) PlaceHold(ctx context.Context, h LegalHold) (LegalHold, error) {
	if h.Reason == "" || (h.UserID == nil && h.Resource == nil) {
		return LegalHold{}, fmt.Errorf("retention: hold requires a reason and a user or resource: %w", shared.ErrValidation)
	}
	hold, err := m.repo.CreateHold(ctx, h)
	if err != nil {
		return LegalHold{}, err
	}
	m.record(audit.EventAdminAction, "legal_hold_place", map[string]any{"legal_hold_id": hold.ID})
	return hold, nil
}

// ReleaseHold releases an active hold.
func (m *Manager) ReleaseHold(ctx context.Context, id int64) error {
	if err := m.repo.ReleaseHold(ctx, id); err != nil {
		return err
	}
	m.record(audit.EventAdminAction, "legal_hold_release", map[string]any{"legal_hold_id": id})
	return nil
}

// Manifests returns recent deletion manifests.
func (m *Manager) Manifests(ctx context.Context, limit int) ([]DeletionManifest, error) {
	return m.repo.ListManifests(ctx, limit)
}

func (m *Manager) record(eventType, action string, details map[string]any) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(audit.RawSecurityEvent{
		EventType: eventType,
		Resource:  "audit_logs",
		Action:    action,
		Result:    audit.ResultSuccess,
		Context:   details,
	})
}
