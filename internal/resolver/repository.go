package resolver

import (
	"context"
	"time"
)

// Grant is one role-permission edge as stored, with conditions still in
// their raw encoded form. The resolver interprets them.
type Grant struct {
	RoleID             int64
	Resource           string
	Action             string
	BaseConditions     []byte
	OverrideConditions []byte
}

// Repository reads the policy store. All methods are pure reads.
type Repository interface {
	// DirectRoleIDs returns roles granted directly to the user that are
	// active and unexpired at the given instant.
	DirectRoleIDs(ctx context.Context, userID string, now time.Time) ([]int64, error)
	// GroupRoleIDs returns roles conferred through active group memberships.
	GroupRoleIDs(ctx context.Context, userID string) ([]int64, error)
	// RoleClosure expands the role set with all active ancestor roles.
	RoleClosure(ctx context.Context, roleIDs []int64) ([]int64, error)
	// GrantsForRoles returns permission grants for the given active roles.
	GrantsForRoles(ctx context.Context, roleIDs []int64) ([]Grant, error)
}
