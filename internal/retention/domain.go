// Package retention manages the audit log's monthly partitions: creating
// them ahead of time, dropping them once every row is past its retention
// period, and reporting compliance posture.
package retention

import "time"

// PartitionMetadata mirrors one monthly partition of the audit log.
// Partitions are tracked in their own table so the manager never has to
// parse table names to recover period bounds.
type PartitionMetadata struct {
	Name         string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	RowCount     int64
	SizeBytes    int64
	LastAnalyzed *time.Time
	CreatedAt    time.Time
}

// HoldStatus is the lifecycle state of a legal hold.
type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"
	HoldReleased HoldStatus = "RELEASED"
)

// LegalHold suspends deletion for matching events. A hold names a user, a
// resource, or both; while active, partitions containing matching rows are
// never dropped.
type LegalHold struct {
	ID        int64
	Reason    string
	UserID    *string
	Resource  *string
	Status    HoldStatus
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// DeletionManifest records what a partition drop destroyed. The manifest is
// written before the drop so an interrupted run leaves evidence, not a gap.
type DeletionManifest struct {
	ID            int64     `json:"id"`
	PartitionName string    `json:"partition_name"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	RowCount      int64     `json:"row_count"`
	DroppedAt     time.Time `json:"dropped_at"`
}

// Report statuses.
const (
	StatusCompliant      = "COMPLIANT"
	StatusNeedsAttention = "NEEDS_ATTENTION"
)

// ComplianceReport summarizes one retention run.
type ComplianceReport struct {
	ID                int64
	RunAt             time.Time
	Status            string
	PartitionsTotal   int
	PartitionsDropped int
	PartitionsHeld    int
	OldestEvent       *time.Time
	Notes             string
}
