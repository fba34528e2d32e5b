package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentra-sec/sentra/internal/shared"
)

type memoryAuditRepo struct {
	mu       sync.Mutex
	events   []AuditEvent
	failures int
	holds    map[string]bool
}

func (r *memoryAuditRepo) Append(ctx context.Context, ev *AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset")
	}
	ev.Seq = int64(len(r.events)) + 1
	if len(r.events) == 0 {
		ev.PrevHash = GenesisHash
	} else {
		ev.PrevHash = r.events[len(r.events)-1].Hash
	}
	ev.Hash = ComputeHash(*ev)
	r.events = append(r.events, *ev)
	return nil
}

func (r *memoryAuditRepo) ActiveLegalHold(ctx context.Context, userID, resource string) (bool, error) {
	return r.holds[userID] || r.holds[resource], nil
}

func (r *memoryAuditRepo) Query(ctx context.Context, filter Filter) ([]AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AuditEvent
	for _, ev := range r.events {
		if filter.UserID != "" && ev.UserID != filter.UserID {
			continue
		}
		out = append(out, ev)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryAuditRepo) Aggregates(ctx context.Context, filter Filter) (Aggregates, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agg := Aggregates{
		ByResult: make(map[Result]int64),
		ByTag:    make(map[ComplianceTag]int64),
	}
	for _, ev := range r.events {
		agg.Total++
		agg.ByResult[ev.Result]++
		for _, tag := range ev.ComplianceTags {
			agg.ByTag[tag]++
		}
	}
	return agg, nil
}

func (r *memoryAuditRepo) EventsAfterSeq(ctx context.Context, afterSeq int64, until time.Time, limit int) ([]AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AuditEvent
	for _, ev := range r.events {
		if ev.Seq <= afterSeq || !ev.Timestamp.Before(until) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestIngestor(repo Repository, dl *DeadLetter) *Ingestor {
	return NewIngestor(repo, dl, slog.Default(), nil, IngestorConfig{
		MaxAttempts: 3,
		Backoff:     time.Millisecond,
	})
}

func rawEvent(userID, resource, action string, result Result) RawSecurityEvent {
	return RawSecurityEvent{
		EventType: EventDataAccess,
		UserID:    userID,
		Resource:  resource,
		Action:    action,
		Result:    result,
	}
}

func TestIngestChainsHashes(t *testing.T) {
	repo := &memoryAuditRepo{}
	ing := newTestIngestor(repo, nil)
	ctx := context.Background()

	first, err := ing.Ingest(ctx, rawEvent("u1", "tickets", "read", ResultSuccess))
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Seq)
	require.Equal(t, GenesisHash, first.PrevHash)
	require.Equal(t, ComputeHash(first), first.Hash)

	second, err := ing.Ingest(ctx, rawEvent("u2", "tickets", "write", ResultFailure))
	require.NoError(t, err)
	require.Equal(t, int64(2), second.Seq)
	require.Equal(t, first.Hash, second.PrevHash)
	require.NotEqual(t, first.Hash, second.Hash)
}

func TestIngestHashSurvivesStorageRoundTrip(t *testing.T) {
	repo := &memoryAuditRepo{}
	ing := newTestIngestor(repo, nil)
	// A clock with sub-microsecond precision, which TIMESTAMPTZ would drop.
	ing.now = func() time.Time {
		return time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	}

	ev, err := ing.Ingest(context.Background(), rawEvent("u1", "tickets", "read", ResultSuccess))
	require.NoError(t, err)

	stored := ev
	stored.Timestamp = stored.Timestamp.Truncate(time.Microsecond)
	require.True(t, stored.Timestamp.Equal(ev.Timestamp))
	require.Equal(t, ev.Hash, ComputeHash(stored))
}

func TestIngestEnrichesEvent(t *testing.T) {
	repo := &memoryAuditRepo{}
	ing := newTestIngestor(repo, nil)

	ev, err := ing.Ingest(context.Background(), rawEvent("u1", "user_profiles", "read", ResultSuccess))
	require.NoError(t, err)
	require.NotEmpty(t, ev.EventID)
	require.Equal(t, 35, ev.RiskScore)
	require.Contains(t, ev.ComplianceTags, TagGDPR)
	require.Equal(t, ClassConfidential, ev.DataClassification)
	require.Equal(t, 2555, ev.RetentionDays)
}

func TestIngestMarksLegalHold(t *testing.T) {
	repo := &memoryAuditRepo{holds: map[string]bool{"u1": true}}
	ing := newTestIngestor(repo, nil)

	ev, err := ing.Ingest(context.Background(), rawEvent("u1", "tickets", "read", ResultSuccess))
	require.NoError(t, err)
	require.True(t, ev.LegalHold)
}

func TestIngestRejectsInvalid(t *testing.T) {
	ing := newTestIngestor(&memoryAuditRepo{}, nil)

	_, err := ing.Ingest(context.Background(), RawSecurityEvent{
		EventType: "telemetry",
		Action:    "read",
		Result:    ResultSuccess,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestIngestRetriesTransientFailure(t *testing.T) {
	repo := &memoryAuditRepo{failures: 2}
	ing := newTestIngestor(repo, nil)

	ev, err := ing.Ingest(context.Background(), rawEvent("u1", "tickets", "read", ResultSuccess))
	require.NoError(t, err)
	require.Equal(t, int64(1), ev.Seq)
}

func TestIngestDeadLettersAfterRetries(t *testing.T) {
	repo := &memoryAuditRepo{failures: 10}
	dl := NewDeadLetter(t.TempDir() + "/deadletter.jsonl")
	ing := newTestIngestor(repo, dl)
	ctx := context.Background()

	_, err := ing.Ingest(ctx, rawEvent("u1", "tickets", "read", ResultSuccess))
	require.ErrorIs(t, err, shared.ErrAuditSinkUnavailable)

	// The raw event survived in the dead-letter store.
	var replayed []RawSecurityEvent
	n, err := dl.Drain(ctx, func(ctx context.Context, raw RawSecurityEvent) error {
		replayed = append(replayed, raw)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, "u1", replayed[0].UserID)
}

func TestDeadLetterDrainAllowsWriteDuringReplay(t *testing.T) {
	dl := NewDeadLetter(t.TempDir() + "/deadletter.jsonl")
	ctx := context.Background()

	require.NoError(t, dl.Write(rawEvent("u1", "tickets", "read", ResultSuccess)))

	// A replay ingestor sharing the store writes while the drain runs. This
	// must not block on the drain's lock.
	n, err := dl.Drain(ctx, func(ctx context.Context, raw RawSecurityEvent) error {
		require.NoError(t, dl.Write(rawEvent("u2", "tickets", "read", ResultSuccess)))
		return errors.New("sink still down")
	})
	require.NoError(t, err)
	require.Zero(t, n)

	// Both the rejected event and the mid-drain write survived.
	var users []string
	n, err = dl.Drain(ctx, func(ctx context.Context, raw RawSecurityEvent) error {
		users = append(users, raw.UserID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.ElementsMatch(t, []string{"u1", "u2"}, users)
}

func TestDeadLetterDrainKeepsRejected(t *testing.T) {
	dl := NewDeadLetter(t.TempDir() + "/deadletter.jsonl")
	ctx := context.Background()

	require.NoError(t, dl.Write(rawEvent("u1", "tickets", "read", ResultSuccess)))
	require.NoError(t, dl.Write(rawEvent("u2", "tickets", "read", ResultSuccess)))

	// Reject u2's event; it must survive for the next drain.
	n, err := dl.Drain(ctx, func(ctx context.Context, raw RawSecurityEvent) error {
		if raw.UserID == "u2" {
			return errors.New("sink still down")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = dl.Drain(ctx, func(ctx context.Context, raw RawSecurityEvent) error {
		require.Equal(t, "u2", raw.UserID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Nothing left.
	n, err = dl.Drain(ctx, func(ctx context.Context, raw RawSecurityEvent) error { return nil })
	require.NoError(t, err)
	require.Zero(t, n)
}
