package gate

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sentra-sec/sentra/internal/audit"
	"github.com/sentra-sec/sentra/internal/resolver"
	"github.com/sentra-sec/sentra/internal/shared"
)

type stubPolicyStore struct {
	grants map[string][]resolver.Grant
	err    error
}

func (s *stubPolicyStore) DirectRoleIDs(ctx context.Context, userID string, now time.Time) ([]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.grants[userID]) > 0 {
		return []int64{1}, nil
	}
	return nil, nil
}

func (s *stubPolicyStore) GroupRoleIDs(ctx context.Context, userID string) ([]int64, error) {
	return nil, nil
}

func (s *stubPolicyStore) RoleClosure(ctx context.Context, roleIDs []int64) ([]int64, error) {
	return roleIDs, nil
}

func (s *stubPolicyStore) GrantsForRoles(ctx context.Context, roleIDs []int64) ([]resolver.Grant, error) {
	var out []resolver.Grant
	for _, grants := range s.grants {
		out = append(out, grants...)
	}
	return out, nil
}

type recordingEmitter struct {
	events []audit.RawSecurityEvent
}

func (e *recordingEmitter) Emit(event audit.RawSecurityEvent) {
	e.events = append(e.events, event)
}

func newTestGate(t *testing.T, store *stubPolicyStore, emitter audit.Emitter) *Gate {
	t.Helper()
	res := resolver.New(store, nil, nil, resolver.Config{})
	return New(res, emitter, slog.Default(), nil, Config{})
}

func grantOf(resource, action string) resolver.Grant {
	return resolver.Grant{RoleID: 1, Resource: resource, Action: action}
}

func TestAllowedGrantHolds(t *testing.T) {
	store := &stubPolicyStore{grants: map[string][]resolver.Grant{
		"u1": {grantOf("tickets", "read")},
	}}
	g := newTestGate(t, store, nil)

	require.True(t, g.Allowed(context.Background(), "u1", "tickets", "read", nil))
	require.False(t, g.Allowed(context.Background(), "u1", "tickets", "delete", nil))
}

func TestAllowedNoPrincipalDenies(t *testing.T) {
	emitter := &recordingEmitter{}
	g := newTestGate(t, &stubPolicyStore{}, emitter)

	require.False(t, g.Allowed(context.Background(), "", "tickets", "read", nil))
	require.Len(t, emitter.events, 1)
	require.Equal(t, audit.ResultFailure, emitter.events[0].Result)
	require.Equal(t, "no principal", emitter.events[0].Context["reason"])
}

func TestAllowedFailsClosedOnStoreError(t *testing.T) {
	emitter := &recordingEmitter{}
	store := &stubPolicyStore{err: errors.New("connection refused")}
	g := newTestGate(t, store, emitter)

	require.False(t, g.Allowed(context.Background(), "u1", "tickets", "read", nil))
	require.Len(t, emitter.events, 1)
	require.Equal(t, audit.ResultError, emitter.events[0].Result)
	require.Equal(t, "internal error", emitter.events[0].Context["reason"])
}

func TestAllowedTimeoutReason(t *testing.T) {
	emitter := &recordingEmitter{}
	store := &stubPolicyStore{err: context.DeadlineExceeded}
	g := newTestGate(t, store, emitter)

	require.False(t, g.Allowed(context.Background(), "u1", "tickets", "read", nil))
	require.Equal(t, "policy store timeout", emitter.events[0].Context["reason"])
}

func TestDenialAlwaysRecorded(t *testing.T) {
	emitter := &recordingEmitter{}
	g := newTestGate(t, &stubPolicyStore{}, emitter)

	require.False(t, g.Allowed(context.Background(), "u1", "tickets", "read", nil))
	require.Len(t, emitter.events, 1)
	require.Equal(t, audit.EventAuthorization, emitter.events[0].EventType)
	require.Equal(t, audit.ResultFailure, emitter.events[0].Result)
}

func TestSuccessRecordedAboveThreshold(t *testing.T) {
	emitter := &recordingEmitter{}
	store := &stubPolicyStore{grants: map[string][]resolver.Grant{
		"u1": {grantOf("tickets", "read"), grantOf("roles", "permission_change")},
	}}
	g := newTestGate(t, store, emitter)
	ctx := context.Background()

	// A routine read scores below the sensitivity threshold.
	require.True(t, g.Allowed(ctx, "u1", "tickets", "read", nil))
	require.Empty(t, emitter.events)

	// A permission change scores above it and is recorded.
	require.True(t, g.Allowed(ctx, "u1", "roles", "permission_change", nil))
	require.Len(t, emitter.events, 1)
	require.Equal(t, audit.ResultSuccess, emitter.events[0].Result)
}

func TestRequirePermissionGenericDenial(t *testing.T) {
	g := newTestGate(t, &stubPolicyStore{}, nil)

	err := g.RequirePermission(context.Background(), "u1", "tickets", "read", nil)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	store := &stubPolicyStore{grants: map[string][]resolver.Grant{
		"u1": {grantOf("tickets", "read")},
	}}
	g = newTestGate(t, store, nil)
	require.NoError(t, g.RequirePermission(context.Background(), "u1", "tickets", "read", nil))
}
