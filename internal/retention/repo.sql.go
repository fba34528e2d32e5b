package retention

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-sec/sentra/internal/platform/db"
	"github.com/sentra-sec/sentra/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Partition names are interpolated into DDL, which takes no bind
// parameters, so they are restricted to the generated shape.
var partitionNamePattern = regexp.MustCompile(`^audit_events_\d{4}_\d{2}$`)

func validPartitionName(name string) error {
	if !partitionNamePattern.MatchString(name) {
		return fmt.Errorf("retention: invalid partition name %q: %w", name, shared.ErrValidation)
	}
	return nil
}

// EnsurePartition creates the monthly partition and registers it.
func (r *PGRepository) EnsurePartition(ctx context.Context, name string, start, end time.Time) error {
	if err := validPartitionName(name); err != nil {
		return err
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF audit_events FOR VALUES FROM ('%s') TO ('%s')`,
			name, start.UTC().Format("2006-01-02"), end.UTC().Format("2006-01-02"))
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("retention: create partition %s: %w", name, err)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO audit_partitions (name, period_start, period_end)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO NOTHING`,
			name, start, end)
		if err != nil {
			return fmt.Errorf("retention: register partition %s: %w", name, err)
		}
		return nil
	})
}

// ListPartitions returns all registered partitions ordered by period.
func (r *PGRepository) ListPartitions(ctx context.Context) ([]PartitionMetadata, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, period_start, period_end, row_count, size_bytes, last_analyzed, created_at
		 FROM audit_partitions ORDER BY period_start`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []PartitionMetadata
	for rows.Next() {
		var p PartitionMetadata
		if err := rows.Scan(&p.Name, &p.PeriodStart, &p.PeriodEnd, &p.RowCount, &p.SizeBytes, &p.LastAnalyzed, &p.CreatedAt); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// RefreshMetadata analyzes the partition and recomputes row count and
// relation size.
func (r *PGRepository) RefreshMetadata(ctx context.Context, name string) error {
	if err := validPartitionName(name); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`ANALYZE %s`, name)); err != nil {
		return fmt.Errorf("retention: analyze %s: %w", name, err)
	}
	var count int64
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, name)).Scan(&count); err != nil {
		return fmt.Errorf("retention: count %s: %w", name, err)
	}
	var size int64
	if err := r.pool.QueryRow(ctx, `SELECT pg_total_relation_size($1::regclass)`, name).Scan(&size); err != nil {
		return fmt.Errorf("retention: size %s: %w", name, err)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE audit_partitions SET row_count = $2, size_bytes = $3, last_analyzed = NOW() WHERE name = $1`,
		name, count, size)
	if err != nil {
		return fmt.Errorf("retention: update metadata %s: %w", name, err)
	}
	return nil
}

// MaxRetentionDays returns the longest retention of any row in the partition.
func (r *PGRepository) MaxRetentionDays(ctx context.Context, name string) (int, error) {
	if err := validPartitionName(name); err != nil {
		return 0, err
	}
	var days *int
	err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT MAX(retention_period_days) FROM %s`, name)).Scan(&days)
	if err != nil {
		return 0, fmt.Errorf("retention: max retention %s: %w", name, err)
	}
	if days == nil {
		return 0, nil
	}
	return *days, nil
}

// HasHeldRows reports whether the partition contains rows under legal hold.
func (r *PGRepository) HasHeldRows(ctx context.Context, name string) (bool, error) {
	if err := validPartitionName(name); err != nil {
		return false, err
	}
	var held bool
	query := fmt.Sprintf(`SELECT EXISTS (
		SELECT 1 FROM %s p
		WHERE p.legal_hold
		   OR EXISTS (
		     SELECT 1 FROM legal_holds h
		     WHERE h.status = 'ACTIVE'
		       AND (h.expires_at IS NULL OR h.expires_at > NOW())
		       AND ((h.user_id IS NOT NULL AND h.user_id = p.user_id)
		         OR (h.resource IS NOT NULL AND h.resource = p.resource))
		   )
	)`, name)
	if err := r.pool.QueryRow(ctx, query).Scan(&held); err != nil {
		return false, fmt.Errorf("retention: hold check %s: %w", name, err)
	}
	return held, nil
}

// DropPartition detaches, drops, and deregisters a partition.
func (r *PGRepository) DropPartition(ctx context.Context, name string) error {
	if err := validPartitionName(name); err != nil {
		return err
	}
	// DETACH CONCURRENTLY cannot run inside a transaction. It takes only a
	// SHARE UPDATE EXCLUSIVE lock on the parent, so appends to the live
	// partitions keep flowing while the expired one is detached.
	if _, err := r.pool.Exec(ctx, fmt.Sprintf(`ALTER TABLE audit_events DETACH PARTITION %s CONCURRENTLY`, name)); err != nil {
		return fmt.Errorf("retention: detach %s: %w", name, err)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE %s`, name)); err != nil {
			return fmt.Errorf("retention: drop %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM audit_partitions WHERE name = $1`, name); err != nil {
			return fmt.Errorf("retention: deregister %s: %w", name, err)
		}
		return nil
	})
}

// OldestEventTime returns the timestamp of the oldest retained event.
func (r *PGRepository) OldestEventTime(ctx context.Context) (*time.Time, error) {
	var ts *time.Time
	if err := r.pool.QueryRow(ctx, `SELECT MIN(ts) FROM audit_events`).Scan(&ts); err != nil {
		return nil, fmt.Errorf("retention: oldest event: %w", err)
	}
	return ts, nil
}

// InsertManifest records a deletion manifest.
func (r *PGRepository) InsertManifest(ctx context.Context, m DeletionManifest) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO deletion_manifests (partition_name, period_start, period_end, row_count, dropped_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.PartitionName, m.PeriodStart, m.PeriodEnd, m.RowCount, m.DroppedAt)
	if err != nil {
		return fmt.Errorf("retention: insert manifest: %w", err)
	}
	return nil
}

// ListManifests returns the most recent manifests.
func (r *PGRepository) ListManifests(ctx context.Context, limit int) ([]DeletionManifest, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, partition_name, period_start, period_end, row_count, dropped_at
		 FROM deletion_manifests ORDER BY dropped_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var manifests []DeletionManifest
	for rows.Next() {
		var m DeletionManifest
		if err := rows.Scan(&m.ID, &m.PartitionName, &m.PeriodStart, &m.PeriodEnd, &m.RowCount, &m.DroppedAt); err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, rows.Err()
}

// InsertReport persists a compliance report.
func (r *PGRepository) InsertReport(ctx context.Context, report ComplianceReport) (ComplianceReport, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO compliance_reports
		   (run_at, status, partitions_total, partitions_dropped, partitions_held, oldest_event, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		report.RunAt, report.Status, report.PartitionsTotal, report.PartitionsDropped,
		report.PartitionsHeld, report.OldestEvent, report.Notes).Scan(&report.ID)
	if err != nil {
		return ComplianceReport{}, fmt.Errorf("retention: insert report: %w", err)
	}
	return report, nil
}

// CreateHold inserts an active legal hold.
func (r *PGRepository) CreateHold(ctx context.Context, h LegalHold) (LegalHold, error) {
	h.Status = HoldActive
	err := r.pool.QueryRow(ctx,
		`INSERT INTO legal_holds (reason, user_id, resource, status, created_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		h.Reason, h.UserID, h.Resource, string(h.Status), h.CreatedBy, h.ExpiresAt).
		Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return LegalHold{}, fmt.Errorf("retention: create hold: %w", err)
	}
	return h, nil
}

// ReleaseHold marks a hold released.
func (r *PGRepository) ReleaseHold(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE legal_holds SET status = 'RELEASED' WHERE id = $1 AND status = 'ACTIVE'`, id)
	if err != nil {
		return fmt.Errorf("retention: release hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("retention: hold %d not active: %w", id, shared.ErrNotFound)
	}
	return nil
}

// ListHolds returns all holds, newest first.
func (r *PGRepository) ListHolds(ctx context.Context) ([]LegalHold, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, reason, user_id, resource, status, created_by, created_at, expires_at
		 FROM legal_holds ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holds []LegalHold
	for rows.Next() {
		var h LegalHold
		var status string
		if err := rows.Scan(&h.ID, &h.Reason, &h.UserID, &h.Resource, &status, &h.CreatedBy, &h.CreatedAt, &h.ExpiresAt); err != nil {
			return nil, err
		}
		h.Status = HoldStatus(status)
		holds = append(holds, h)
	}
	return holds, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
