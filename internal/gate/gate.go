// Package gate is the authorization decision point. It asks the resolver
// whether a principal holds a permission and records the decision in the
// audit trail without ever letting the trail block the decision.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sentra-sec/sentra/internal/audit"
	"github.com/sentra-sec/sentra/internal/observability"
	"github.com/sentra-sec/sentra/internal/resolver"
	"github.com/sentra-sec/sentra/internal/shared"
)

// Config tunes decision auditing.
type Config struct {
	// SensitivityThreshold is the risk score at which successful decisions
	// are also recorded. Denials are always recorded.
	SensitivityThreshold int
}

// Gate evaluates authorization decisions. Any internal failure denies.
type Gate struct {
	resolver *resolver.Resolver
	emitter  audit.Emitter
	logger   *slog.Logger
	metrics  *observability.Metrics
	cfg      Config
}

// New constructs a Gate. The emitter may be nil in tests.
func New(res *resolver.Resolver, emitter audit.Emitter, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Gate {
	if cfg.SensitivityThreshold <= 0 {
		cfg.SensitivityThreshold = 40
	}
	return &Gate{resolver: res, emitter: emitter, logger: logger, metrics: metrics, cfg: cfg}
}

// Allowed reports whether userID may perform action on resource. It fails
// closed: resolver errors, timeouts, and misconfigured conditions all deny.
func (g *Gate) Allowed(ctx context.Context, userID, resource, action string, evalCtx map[string]any) bool {
	start := time.Now()
	if userID == "" {
		g.record(ctx, userID, resource, action, audit.ResultFailure, map[string]any{"reason": "no principal"})
		g.metrics.RecordDecision("deny")
		return false
	}

	allowed, err := g.resolver.Check(ctx, userID, resource, action, evalCtx)
	if err != nil {
		g.logger.Error("authorization check failed",
			slog.String("user_id", userID),
			slog.String("resource", resource),
			slog.String("action", action),
			slog.Any("error", err))
		g.record(ctx, userID, resource, action, audit.ResultError, map[string]any{"reason": deniedReason(err)})
		g.metrics.RecordDecision("error")
		return false
	}

	if !allowed {
		g.record(ctx, userID, resource, action, audit.ResultFailure, nil)
		g.metrics.RecordDecision("deny")
		return false
	}

	g.metrics.RecordDecision("allow")
	// Successful access to sensitive resources is still audit-worthy.
	raw := decisionEvent(userID, resource, action, audit.ResultSuccess, nil)
	if audit.RiskScore(raw) >= g.cfg.SensitivityThreshold {
		g.emit(raw)
	}
	g.logger.Debug("authorization allowed",
		slog.String("user_id", userID),
		slog.String("resource", resource),
		slog.String("action", action),
		slog.Duration("elapsed", time.Since(start)))
	return true
}

// RequirePermission is Allowed as an error. Denial is always the same
// generic ErrPermissionDenied so callers cannot probe policy structure.
func (g *Gate) RequirePermission(ctx context.Context, userID, resource, action string, evalCtx map[string]any) error {
	if g.Allowed(ctx, userID, resource, action, evalCtx) {
		return nil
	}
	return fmt.Errorf("gate: %s on %s: %w", action, resource, shared.ErrPermissionDenied)
}

func (g *Gate) record(ctx context.Context, userID, resource, action string, result audit.Result, details map[string]any) {
	g.emit(decisionEvent(userID, resource, action, result, details))
}

func (g *Gate) emit(raw audit.RawSecurityEvent) {
	if g.emitter == nil {
		return
	}
	g.emitter.Emit(raw)
}

func decisionEvent(userID, resource, action string, result audit.Result, details map[string]any) audit.RawSecurityEvent {
	return audit.RawSecurityEvent{
		EventType: audit.EventAuthorization,
		UserID:    userID,
		Resource:  resource,
		Action:    action,
		Result:    result,
		Context:   details,
	}
}

func deniedReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "policy store timeout"
	case errors.Is(err, shared.ErrPolicyConfiguration):
		return "policy configuration"
	default:
		return "internal error"
	}
}
