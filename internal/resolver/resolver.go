// Package resolver computes the closure of effective permissions for a
// principal from direct and group-derived role grants.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sentra-sec/sentra/internal/observability"
	"github.com/sentra-sec/sentra/internal/policy"
)

// EffectivePermission is a (resource, action) pair reachable by a principal.
// Alternatives holds one condition set per distinct grant path; the
// permission applies when any single set is satisfied. An empty set is an
// unconditional grant and absorbs every other alternative.
type EffectivePermission struct {
	Resource     string
	Action       string
	Alternatives []policy.ConditionSet
}

// Config tunes the resolver.
type Config struct {
	// QueryTimeout bounds policy store reads. A timed-out check denies.
	QueryTimeout time.Duration
}

// Resolver computes effective permission sets. It performs no writes and is
// safe for concurrent use.
type Resolver struct {
	repo    Repository
	cache   *Cache
	metrics *observability.Metrics
	cfg     Config
	group   singleflight.Group
	now     func() time.Time
}

// New constructs a Resolver. The cache may be nil to disable caching.
func New(repo Repository, cache *Cache, metrics *observability.Metrics, cfg Config) *Resolver {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 2 * time.Second
	}
	return &Resolver{
		repo:    repo,
		cache:   cache,
		metrics: metrics,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ResolvePermissions returns the effective permission set for a user.
// An unknown user resolves to an empty set, never an error.
func (r *Resolver) ResolvePermissions(ctx context.Context, userID string) ([]EffectivePermission, error) {
	if perms, ok := r.cache.Get(userID); ok {
		r.metrics.RecordResolverCache(true)
		return perms, nil
	}
	r.metrics.RecordResolverCache(false)

	// Concurrent checks for the same user share one resolution.
	result, err, _ := r.group.Do(userID, func() (any, error) {
		perms, err := r.resolve(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.cache.Add(userID, perms)
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]EffectivePermission), nil
}

func (r *Resolver) resolve(ctx context.Context, userID string) ([]EffectivePermission, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	now := r.now()
	direct, err := r.repo.DirectRoleIDs(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("resolver: direct roles: %w", err)
	}
	viaGroups, err := r.repo.GroupRoleIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolver: group roles: %w", err)
	}

	// Set union: the same role reached through multiple paths collapses,
	// never double-grants.
	roleSet := make(map[int64]struct{}, len(direct)+len(viaGroups))
	for _, id := range direct {
		roleSet[id] = struct{}{}
	}
	for _, id := range viaGroups {
		roleSet[id] = struct{}{}
	}
	if len(roleSet) == 0 {
		return nil, nil
	}
	roleIDs := make([]int64, 0, len(roleSet))
	for id := range roleSet {
		roleIDs = append(roleIDs, id)
	}

	closure, err := r.repo.RoleClosure(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("resolver: role closure: %w", err)
	}
	grants, err := r.repo.GrantsForRoles(ctx, closure)
	if err != nil {
		return nil, fmt.Errorf("resolver: grants: %w", err)
	}

	merged := make(map[string]*EffectivePermission)
	for _, grant := range grants {
		conditions, err := effectiveConditions(grant)
		if err != nil {
			return nil, err
		}
		key := grant.Resource + "\x00" + grant.Action
		entry, ok := merged[key]
		if !ok {
			entry = &EffectivePermission{Resource: grant.Resource, Action: grant.Action}
			merged[key] = entry
		}
		entry.Alternatives = appendAlternative(entry.Alternatives, conditions)
	}

	perms := make([]EffectivePermission, 0, len(merged))
	for _, entry := range merged {
		perms = append(perms, *entry)
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Resource != perms[j].Resource {
			return perms[i].Resource < perms[j].Resource
		}
		return perms[i].Action < perms[j].Action
	})
	return perms, nil
}

// Check reports whether the user holds (resource, action) with a satisfied
// condition alternative. It short-circuits on the first match.
func (r *Resolver) Check(ctx context.Context, userID, resource, action string, evalCtx map[string]any) (bool, error) {
	perms, err := r.ResolvePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	now := r.now()
	for _, perm := range perms {
		if perm.Resource != resource || perm.Action != action {
			continue
		}
		for _, alternative := range perm.Alternatives {
			ok, err := alternative.Evaluate(evalCtx, now)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// effectiveConditions picks the override when present, else the
// permission's own conditions.
func effectiveConditions(g Grant) (policy.ConditionSet, error) {
	if len(g.OverrideConditions) > 0 {
		return policy.ParseConditionSet(g.OverrideConditions)
	}
	return policy.ParseConditionSet(g.BaseConditions)
}

// appendAlternative unions a condition set into the alternatives. An
// unconditional set absorbs all others; duplicates are harmless but an
// existing unconditional entry makes further alternatives irrelevant.
func appendAlternative(alternatives []policy.ConditionSet, set policy.ConditionSet) []policy.ConditionSet {
	if len(alternatives) == 1 && len(alternatives[0]) == 0 {
		return alternatives
	}
	if len(set) == 0 {
		return []policy.ConditionSet{{}}
	}
	return append(alternatives, set)
}
