package retention

import (
	"context"
	"time"
)

// Repository is the persistence contract for partition lifecycle state.
type Repository interface {
	// EnsurePartition creates the partition table and its metadata row if
	// either is missing. It is idempotent.
	EnsurePartition(ctx context.Context, name string, start, end time.Time) error
	ListPartitions(ctx context.Context) ([]PartitionMetadata, error)
	// RefreshMetadata recomputes row count and on-disk size for a partition.
	RefreshMetadata(ctx context.Context, name string) error
	// MaxRetentionDays returns the longest retention period of any row in the
	// partition, zero when the partition is empty.
	MaxRetentionDays(ctx context.Context, name string) (int, error)
	// HasHeldRows reports whether any row in the partition is under legal
	// hold, either flagged at ingest or covered by a currently active hold.
	HasHeldRows(ctx context.Context, name string) (bool, error)
	// DropPartition detaches and drops the partition and removes its
	// metadata row.
	DropPartition(ctx context.Context, name string) error
	OldestEventTime(ctx context.Context) (*time.Time, error)

	InsertManifest(ctx context.Context, m DeletionManifest) error
	ListManifests(ctx context.Context, limit int) ([]DeletionManifest, error)

	InsertReport(ctx context.Context, r ComplianceReport) (ComplianceReport, error)

	CreateHold(ctx context.Context, h LegalHold) (LegalHold, error)
	ReleaseHold(ctx context.Context, id int64) error
	ListHolds(ctx context.Context) ([]LegalHold, error)
}
