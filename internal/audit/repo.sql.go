package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-sec/sentra/internal/platform/db"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Append links the event to the chain head and inserts it in one
// transaction. The chain head row is locked FOR UPDATE, which serializes
// appends across processes; the worst case for a concurrent writer is a
// short wait, never a duplicate link.
func (r *PGRepository) Append(ctx context.Context, ev *AuditEvent) error {
	return db.WithSerializableTx(ctx, r.pool, func(tx pgx.Tx) error {
		var lastSeq int64
		var headHash string
		err := tx.QueryRow(ctx, `SELECT seq, head_hash FROM audit_chain_head WHERE id = 1 FOR UPDATE`).
			Scan(&lastSeq, &headHash)
		if err != nil {
			return fmt.Errorf("audit: read chain head: %w", err)
		}

		ev.Seq = lastSeq + 1
		ev.PrevHash = headHash
		ev.Hash = ComputeHash(*ev)

		tags := make([]string, len(ev.ComplianceTags))
		for i, tag := range ev.ComplianceTags {
			tags[i] = string(tag)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO audit_events (
			   event_id, seq, ts, event_type, user_id, resource, action, result,
			   risk_score, compliance_tags, data_classification,
			   retention_period_days, legal_hold, payload, prev_hash, hash
			 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
			ev.EventID, ev.Seq, ev.Timestamp, ev.EventType, ev.UserID, ev.Resource,
			ev.Action, string(ev.Result), ev.RiskScore, tags,
			string(ev.DataClassification), ev.RetentionDays, ev.LegalHold,
			ev.Payload, ev.PrevHash, ev.Hash)
		if err != nil {
			return fmt.Errorf("audit: insert event: %w", err)
		}

		_, err = tx.Exec(ctx, `UPDATE audit_chain_head SET seq = $1, head_hash = $2 WHERE id = 1`, ev.Seq, ev.Hash)
		if err != nil {
			return fmt.Errorf("audit: advance chain head: %w", err)
		}
		return nil
	})
}

// ActiveLegalHold reports whether an unexpired hold covers the user or
// resource.
func (r *PGRepository) ActiveLegalHold(ctx context.Context, userID, resource string) (bool, error) {
	var held bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM legal_holds
		   WHERE status = 'ACTIVE'
		     AND (expires_at IS NULL OR expires_at > NOW())
		     AND ((user_id IS NOT NULL AND user_id = $1) OR (resource IS NOT NULL AND resource = $2))
		 )`, userID, resource).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("audit: legal hold lookup: %w", err)
	}
	return held, nil
}

const selectEventColumns = `event_id, seq, ts, event_type, user_id, resource, action, result,
	risk_score, compliance_tags, data_classification, retention_period_days,
	legal_hold, payload, prev_hash, hash`

// Query returns filtered events ordered by sequence descending.
func (r *PGRepository) Query(ctx context.Context, filter Filter) ([]AuditEvent, error) {
	where, args := buildFilter(filter)
	query := `SELECT ` + selectEventColumns + ` FROM audit_events` + where +
		fmt.Sprintf(` ORDER BY seq DESC LIMIT %d OFFSET %d`, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Aggregates returns totals per result and per compliance tag for the filter.
func (r *PGRepository) Aggregates(ctx context.Context, filter Filter) (Aggregates, error) {
	where, args := buildFilter(filter)
	agg := Aggregates{ByResult: make(map[Result]int64), ByTag: make(map[ComplianceTag]int64)}

	rows, err := r.pool.Query(ctx, `SELECT result, COUNT(*) FROM audit_events`+where+` GROUP BY result`, args...)
	if err != nil {
		return Aggregates{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var result string
		var count int64
		if err := rows.Scan(&result, &count); err != nil {
			return Aggregates{}, err
		}
		agg.ByResult[Result(result)] = count
		agg.Total += count
	}
	if err := rows.Err(); err != nil {
		return Aggregates{}, err
	}

	tagRows, err := r.pool.Query(ctx,
		`SELECT tag, COUNT(*) FROM audit_events, UNNEST(compliance_tags) AS tag`+where+` GROUP BY tag`, args...)
	if err != nil {
		return Aggregates{}, err
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tag string
		var count int64
		if err := tagRows.Scan(&tag, &count); err != nil {
			return Aggregates{}, err
		}
		agg.ByTag[ComplianceTag(tag)] = count
	}
	return agg, tagRows.Err()
}

// EventsAfterSeq returns events with seq greater than afterSeq up to the
// given timestamp, in sequence order. The integrity verifier walks the chain
// through this.
func (r *PGRepository) EventsAfterSeq(ctx context.Context, afterSeq int64, until time.Time, limit int) ([]AuditEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+selectEventColumns+` FROM audit_events WHERE seq > $1 AND ts <= $2 ORDER BY seq ASC LIMIT $3`,
		afterSeq, until, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func buildFilter(filter Filter) (string, []any) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 5)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filter.From.IsZero() {
		add("ts >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("ts < $%d", filter.To)
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Resource != "" {
		add("resource = $%d", filter.Resource)
	}
	if filter.Tag != "" {
		add("$%d = ANY(compliance_tags)", string(filter.Tag))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	where := " WHERE " + clauses[0]
	for _, c := range clauses[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanEvents(rows pgx.Rows) ([]AuditEvent, error) {
	var events []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var result, classification string
		var tags []string
		if err := rows.Scan(&ev.EventID, &ev.Seq, &ev.Timestamp, &ev.EventType,
			&ev.UserID, &ev.Resource, &ev.Action, &result, &ev.RiskScore, &tags,
			&classification, &ev.RetentionDays, &ev.LegalHold, &ev.Payload,
			&ev.PrevHash, &ev.Hash); err != nil {
			return nil, err
		}
		ev.Result = Result(result)
		ev.DataClassification = DataClassification(classification)
		ev.ComplianceTags = make([]ComplianceTag, len(tags))
		for i, tag := range tags {
			ev.ComplianceTags[i] = ComplianceTag(tag)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
