package policy

import "time"

// Role is a named grouping of permissions. Roles may form a single-parent
// hierarchy through ParentRoleID; cycles are rejected at write time.
type Role struct {
	ID           int64
	Name         string
	ParentRoleID *int64
	IsSystem     bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Permission is an atomic capability identified by (Resource, Action).
// Name is a stable alias for administration.
type Permission struct {
	ID         int64
	Name       string
	Resource   string
	Action     string
	Conditions ConditionSet
	CreatedAt  time.Time
}

// RolePermission attaches a permission to a role. When Conditions is
// non-empty it overrides the permission's own conditions.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
	Conditions   ConditionSet
}

// Group is a collection of users that confers roles on its members.
type Group struct {
	ID            int64
	Name          string
	ParentGroupID *int64
	CreatedAt     time.Time
}

// UserRole is a time-bounded grant of a role to a user. It is logically
// ended by IsActive=false or ExpiresAt passing, never physically mutated
// except for revocation.
type UserRole struct {
	UserID     string
	RoleID     int64
	AssignedAt time.Time
	ExpiresAt  *time.Time
	IsActive   bool
}

// UserGroup links a user to a group.
type UserGroup struct {
	UserID   string
	GroupID  int64
	IsActive bool
}

// GroupRole lists a role conferred by a group on its members.
type GroupRole struct {
	GroupID  int64
	RoleID   int64
	IsActive bool
}

// Active reports whether the grant is in effect at the given instant.
func (ur UserRole) Active(now time.Time) bool {
	if !ur.IsActive {
		return false
	}
	if ur.ExpiresAt != nil && !ur.ExpiresAt.After(now) {
		return false
	}
	return true
}
