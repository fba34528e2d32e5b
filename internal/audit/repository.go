package audit

import (
	"context"
	"time"
)

// Filter narrows reporting queries over the audit log.
type Filter struct {
	From     time.Time
	To       time.Time
	UserID   string
	Resource string
	Tag      ComplianceTag
	Limit    int
	Offset   int
}

// Aggregates summarizes a filtered slice of the audit log.
type Aggregates struct {
	Total    int64
	ByResult map[Result]int64
	ByTag    map[ComplianceTag]int64
}

// Repository persists and reads audit events.
//
// Append is the only write path into the audit log; it assigns the sequence
// number and hash-chain link atomically so concurrent producers never derive
// the same predecessor.
type Repository interface {
	Append(ctx context.Context, ev *AuditEvent) error
	ActiveLegalHold(ctx context.Context, userID, resource string) (bool, error)
	Query(ctx context.Context, filter Filter) ([]AuditEvent, error)
	Aggregates(ctx context.Context, filter Filter) (Aggregates, error)
	EventsAfterSeq(ctx context.Context, afterSeq int64, until time.Time, limit int) ([]AuditEvent, error)
}
