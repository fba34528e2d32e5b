package retention

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentra-sec/sentra/internal/shared"
)

type memoryRepo struct {
	partitions map[string]PartitionMetadata
	retention  map[string]int
	heldRows   map[string]bool
	manifests  []DeletionManifest
	reports    []ComplianceReport
	holds      map[int64]LegalHold
	nextHoldID int64
	oldest     *time.Time
	ensured    []string
	dropped    []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		partitions: make(map[string]PartitionMetadata),
		retention:  make(map[string]int),
		heldRows:   make(map[string]bool),
		holds:      make(map[int64]LegalHold),
	}
}

func (r *memoryRepo) EnsurePartition(ctx context.Context, name string, start, end time.Time) error {
	r.ensured = append(r.ensured, name)
	if _, ok := r.partitions[name]; !ok {
		r.partitions[name] = PartitionMetadata{Name: name, PeriodStart: start, PeriodEnd: end}
	}
	return nil
}

func (r *memoryRepo) ListPartitions(ctx context.Context) ([]PartitionMetadata, error) {
	out := make([]PartitionMetadata, 0, len(r.partitions))
	for _, p := range r.partitions {
		out = append(out, p)
	}
	return out, nil
}

func (r *memoryRepo) RefreshMetadata(ctx context.Context, name string) error {
	return nil
}

func (r *memoryRepo) MaxRetentionDays(ctx context.Context, name string) (int, error) {
	return r.retention[name], nil
}

func (r *memoryRepo) HasHeldRows(ctx context.Context, name string) (bool, error) {
	return r.heldRows[name], nil
}

func (r *memoryRepo) DropPartition(ctx context.Context, name string) error {
	if _, ok := r.partitions[name]; !ok {
		return fmt.Errorf("retention: partition %s: %w", name, shared.ErrNotFound)
	}
	delete(r.partitions, name)
	r.dropped = append(r.dropped, name)
	return nil
}

func (r *memoryRepo) OldestEventTime(ctx context.Context) (*time.Time, error) {
	return r.oldest, nil
}

func (r *memoryRepo) InsertManifest(ctx context.Context, m DeletionManifest) error {
	r.manifests = append(r.manifests, m)
	return nil
}

func (r *memoryRepo) ListManifests(ctx context.Context, limit int) ([]DeletionManifest, error) {
	if limit > 0 && len(r.manifests) > limit {
		return r.manifests[:limit], nil
	}
	return r.manifests, nil
}

func (r *memoryRepo) InsertReport(ctx context.Context, report ComplianceReport) (ComplianceReport, error) {
	report.ID = int64(len(r.reports)) + 1
	r.reports = append(r.reports, report)
	return report, nil
}

func (r *memoryRepo) CreateHold(ctx context.Context, h LegalHold) (LegalHold, error) {
	r.nextHoldID++
	h.ID = r.nextHoldID
	h.Status = HoldActive
	r.holds[h.ID] = h
	return h, nil
}

func (r *memoryRepo) ReleaseHold(ctx context.Context, id int64) error {
	h, ok := r.holds[id]
	if !ok || h.Status != HoldActive {
		return fmt.Errorf("retention: hold %d: %w", id, shared.ErrNotFound)
	}
	h.Status = HoldReleased
	r.holds[id] = h
	return nil
}

func (r *memoryRepo) ListHolds(ctx context.Context) ([]LegalHold, error) {
	out := make([]LegalHold, 0, len(r.holds))
	for _, h := range r.holds {
		out = append(out, h)
	}
	return out, nil
}

func newTestManager(repo Repository) *Manager {
	return NewManager(repo, nil, slog.Default(), nil)
}

func addPartition(repo *memoryRepo, start time.Time, rows int64, retentionDays int) string {
	name := PartitionName(start)
	repo.partitions[name] = PartitionMetadata{
		Name:        name,
		PeriodStart: monthStart(start),
		PeriodEnd:   monthStart(start).AddDate(0, 1, 0),
		RowCount:    rows,
	}
	repo.retention[name] = retentionDays
	return name
}

func TestPartitionName(t *testing.T) {
	ts := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	require.Equal(t, "audit_events_2026_03", PartitionName(ts))
}

func TestEnsurePartitionsCoversRollover(t *testing.T) {
	repo := newMemoryRepo()
	m := newTestManager(repo)
	m.now = func() time.Time { return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC) }

	require.NoError(t, m.EnsurePartitions(context.Background()))
	require.Equal(t, []string{"audit_events_2026_08", "audit_events_2026_09"}, repo.ensured)

	// Idempotent on re-run.
	require.NoError(t, m.EnsurePartitions(context.Background()))
	require.Len(t, repo.partitions, 2)
}

func TestRunDropsExpiredWithManifest(t *testing.T) {
	repo := newMemoryRepo()
	m := newTestManager(repo)
	now := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	// Three years old with one-year retention: eligible.
	expired := addPartition(repo, now.AddDate(-3, 0, 0), 1234, 365)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{expired}, repo.dropped)
	require.Len(t, result.Dropped, 1)
	require.Equal(t, expired, result.Dropped[0].PartitionName)
	require.Equal(t, int64(1234), result.Dropped[0].RowCount)

	// The manifest was written before the drop.
	require.Len(t, repo.manifests, 1)
	require.Equal(t, StatusCompliant, result.Report.Status)
}

func TestRunSkipsPartitionWithinRetention(t *testing.T) {
	repo := newMemoryRepo()
	m := newTestManager(repo)
	now := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	// Six months old but rows retain for seven years.
	addPartition(repo, now.AddDate(0, -6, 0), 10, 2555)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, repo.dropped)
	require.Empty(t, result.Dropped)
}

func TestRunHeldPartitionNeedsAttention(t *testing.T) {
	repo := newMemoryRepo()
	m := newTestManager(repo)
	now := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	held := addPartition(repo, now.AddDate(-3, 0, 0), 50, 365)
	repo.heldRows[held] = true

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, repo.dropped)
	require.Equal(t, []string{held}, result.Held)
	require.Equal(t, StatusNeedsAttention, result.Report.Status)
	require.Contains(t, result.Report.Notes, "legal hold")

	// Releasing the hold lets the next run reclaim the partition.
	repo.heldRows[held] = false
	result, err = m.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{held}, repo.dropped)
	require.Equal(t, StatusCompliant, result.Report.Status)
}

func TestPlaceHoldValidates(t *testing.T) {
	m := newTestManager(newMemoryRepo())
	ctx := context.Background()

	_, err := m.PlaceHold(ctx, LegalHold{Reason: "litigation"})
	require.ErrorIs(t, err, shared.ErrValidation)

	user := "u1"
	_, err = m.PlaceHold(ctx, LegalHold{UserID: &user})
	require.ErrorIs(t, err, shared.ErrValidation)

	hold, err := m.PlaceHold(ctx, LegalHold{Reason: "litigation", UserID: &user})
	require.NoError(t, err)
	require.NotZero(t, hold.ID)
	require.Equal(t, HoldActive, hold.Status)
}

func TestReleaseHold(t *testing.T) {
	repo := newMemoryRepo()
	m := newTestManager(repo)
	ctx := context.Background()

	user := "u1"
	hold, err := m.PlaceHold(ctx, LegalHold{Reason: "litigation", UserID: &user})
	require.NoError(t, err)

	require.NoError(t, m.ReleaseHold(ctx, hold.ID))
	require.ErrorIs(t, m.ReleaseHold(ctx, hold.ID), shared.ErrNotFound)
}
