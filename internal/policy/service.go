package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sentra-sec/sentra/internal/audit"
	"github.com/sentra-sec/sentra/internal/shared"
)

// Invalidator evicts resolver cache entries. It is called inside the write
// transaction, before commit, so a revoked grant is never served from cache
// after the write lands.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID string)
	InvalidateAll(ctx context.Context)
}

// Service owns administrative writes to the policy store. Every write
// validates hierarchy acyclicity, invalidates affected cache entries, and
// records an admin audit event.
type Service struct {
	repo        Repository
	invalidator Invalidator
	emitter     audit.Emitter
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs a Service. invalidator and emitter may be nil in
// tests.
func NewService(repo Repository, invalidator Invalidator, emitter audit.Emitter, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		emitter:     emitter,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

const maxHierarchyDepth = 64

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name string, parentRoleID *int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("policy: role name required: %w", shared.ErrValidation)
	}
	var created Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if parentRoleID != nil {
			if _, err := tx.GetRole(ctx, *parentRoleID); err != nil {
				return err
			}
		}
		role, err := tx.InsertRole(ctx, Role{Name: name, ParentRoleID: parentRoleID, IsActive: true})
		if err != nil {
			return err
		}
		created = role
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	s.recordAdmin(ctx, "roles", "role_create", map[string]any{"role": name})
	return created, nil
}

// UpdateRole updates a role's name, parent, and active flag. A parent chain
// that reaches the role itself is rejected as a cycle.
func (s *Service) UpdateRole(ctx context.Context, id int64, name string, parentRoleID *int64, isActive bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("policy: role name required: %w", shared.ErrValidation)
	}
	var updated Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureNoRoleCycle(ctx, tx, id, parentRoleID); err != nil {
			return err
		}
		role, err := tx.UpdateRole(ctx, Role{ID: id, Name: name, ParentRoleID: parentRoleID, IsActive: isActive})
		if err != nil {
			return err
		}
		updated = role
		// Role-level changes can affect any number of principals.
		s.invalidateAll(ctx)
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	s.recordAdmin(ctx, "roles", "permission_change", map[string]any{"role_id": id})
	return updated, nil
}

// DeleteRole removes a non-system role.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteRole(ctx, id); err != nil {
			return err
		}
		s.invalidateAll(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "roles", "role_delete", map[string]any{"role_id": id})
	return nil
}

// CreatePermission inserts a new permission after validating its conditions.
func (s *Service) CreatePermission(ctx context.Context, name, resource, action string, conditions ConditionSet) (Permission, error) {
	name = strings.TrimSpace(name)
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if name == "" || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("policy: permission name, resource, and action required: %w", shared.ErrValidation)
	}
	if err := conditions.Validate(); err != nil {
		return Permission{}, err
	}
	var created Permission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		perm, err := tx.InsertPermission(ctx, Permission{Name: name, Resource: resource, Action: action, Conditions: conditions})
		if err != nil {
			return err
		}
		created = perm
		return nil
	})
	if err != nil {
		return Permission{}, err
	}
	s.recordAdmin(ctx, "permissions", "permission_change", map[string]any{"permission": name})
	return created, nil
}

// DeletePermission removes a permission.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeletePermission(ctx, id); err != nil {
			return err
		}
		s.invalidateAll(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "permissions", "permission_change", map[string]any{"permission_id": id})
	return nil
}

// AttachPermission attaches a permission to a role, optionally overriding
// the permission's conditions for that role.
func (s *Service) AttachPermission(ctx context.Context, roleID, permissionID int64, overrides ConditionSet) error {
	if err := overrides.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return err
		}
		if _, err := tx.GetPermission(ctx, permissionID); err != nil {
			return err
		}
		if err := tx.UpsertRolePermission(ctx, RolePermission{RoleID: roleID, PermissionID: permissionID, Conditions: overrides}); err != nil {
			return err
		}
		s.invalidateAll(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "roles", "permission_change", map[string]any{"role_id": roleID, "permission_id": permissionID})
	return nil
}

// DetachPermission removes a permission from a role.
func (s *Service) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteRolePermission(ctx, roleID, permissionID); err != nil {
			return err
		}
		s.invalidateAll(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "roles", "permission_change", map[string]any{"role_id": roleID, "permission_id": permissionID})
	return nil
}

// CreateGroup inserts a new group.
func (s *Service) CreateGroup(ctx context.Context, name string, parentGroupID *int64) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("policy: group name required: %w", shared.ErrValidation)
	}
	var created Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if parentGroupID != nil {
			if _, err := tx.GetGroup(ctx, *parentGroupID); err != nil {
				return err
			}
		}
		group, err := tx.InsertGroup(ctx, Group{Name: name, ParentGroupID: parentGroupID})
		if err != nil {
			return err
		}
		created = group
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.recordAdmin(ctx, "groups", "group_create", map[string]any{"group": name})
	return created, nil
}

// UpdateGroup renames or reparents a group, rejecting cycles.
func (s *Service) UpdateGroup(ctx context.Context, id int64, name string, parentGroupID *int64) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("policy: group name required: %w", shared.ErrValidation)
	}
	var updated Group
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureNoGroupCycle(ctx, tx, id, parentGroupID); err != nil {
			return err
		}
		group, err := tx.UpdateGroup(ctx, Group{ID: id, Name: name, ParentGroupID: parentGroupID})
		if err != nil {
			return err
		}
		updated = group
		return nil
	})
	if err != nil {
		return Group{}, err
	}
	s.recordAdmin(ctx, "groups", "group_update", map[string]any{"group_id": id})
	return updated, nil
}

// DeleteGroup removes a group and invalidates its members.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		members, err := tx.GroupMemberIDs(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteGroup(ctx, id); err != nil {
			return err
		}
		s.invalidateUsers(ctx, members)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "groups", "group_delete", map[string]any{"group_id": id})
	return nil
}

// AssignRole grants a role to a user, optionally time-bounded.
func (s *Service) AssignRole(ctx context.Context, userID string, roleID int64, expiresAt *time.Time) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("policy: user id required: %w", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return err
		}
		grant := UserRole{UserID: userID, RoleID: roleID, AssignedAt: s.now(), ExpiresAt: expiresAt, IsActive: true}
		if err := tx.InsertUserRole(ctx, grant); err != nil {
			return err
		}
		s.invalidateUser(ctx, userID)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "user_roles", "permission_change", map[string]any{"user_id": userID, "role_id": roleID})
	return nil
}

// RevokeRole ends a user's role grant. The row is deactivated, never
// deleted, so the grant history survives.
func (s *Service) RevokeRole(ctx context.Context, userID string, roleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.DeactivateUserRole(ctx, userID, roleID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("policy: user %s has no active role %d: %w", userID, roleID, shared.ErrNotFound)
		}
		s.invalidateUser(ctx, userID)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "user_roles", "permission_change", map[string]any{"user_id": userID, "role_id": roleID})
	return nil
}

// AddUserToGroup makes a user a member of a group. A lapsed membership is
// reactivated; an active one conflicts.
func (s *Service) AddUserToGroup(ctx context.Context, userID string, groupID int64) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("policy: user id required: %w", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetGroup(ctx, groupID); err != nil {
			return err
		}
		if err := tx.InsertUserGroup(ctx, UserGroup{UserID: userID, GroupID: groupID, IsActive: true}); err != nil {
			return err
		}
		s.invalidateUser(ctx, userID)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "user_groups", "permission_change", map[string]any{"user_id": userID, "group_id": groupID})
	return nil
}

// RemoveUserFromGroup ends a user's group membership.
func (s *Service) RemoveUserFromGroup(ctx context.Context, userID string, groupID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.DeactivateUserGroup(ctx, userID, groupID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("policy: user %s is not in group %d: %w", userID, groupID, shared.ErrNotFound)
		}
		s.invalidateUser(ctx, userID)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "user_groups", "permission_change", map[string]any{"user_id": userID, "group_id": groupID})
	return nil
}

// AssignGroupRole confers a role on a group's members.
func (s *Service) AssignGroupRole(ctx context.Context, groupID, roleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetGroup(ctx, groupID); err != nil {
			return err
		}
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return err
		}
		if err := tx.InsertGroupRole(ctx, GroupRole{GroupID: groupID, RoleID: roleID, IsActive: true}); err != nil {
			return err
		}
		members, err := tx.GroupMemberIDs(ctx, groupID)
		if err != nil {
			return err
		}
		s.invalidateUsers(ctx, members)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "group_roles", "permission_change", map[string]any{"group_id": groupID, "role_id": roleID})
	return nil
}

// RemoveGroupRole withdraws a role from a group. Members lose the role's
// permissions on their next check.
func (s *Service) RemoveGroupRole(ctx context.Context, groupID, roleID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		rows, err := tx.DeactivateGroupRole(ctx, groupID, roleID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("policy: group %d has no active role %d: %w", groupID, roleID, shared.ErrNotFound)
		}
		members, err := tx.GroupMemberIDs(ctx, groupID)
		if err != nil {
			return err
		}
		s.invalidateUsers(ctx, members)
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAdmin(ctx, "group_roles", "permission_change", map[string]any{"group_id": groupID, "role_id": roleID})
	return nil
}

func (s *Service) invalidateUser(ctx context.Context, userID string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateUser(ctx, userID)
	}
}

func (s *Service) invalidateUsers(ctx context.Context, userIDs []string) {
	if s.invalidator == nil {
		return
	}
	for _, id := range userIDs {
		s.invalidator.InvalidateUser(ctx, id)
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAll(ctx)
	}
}

func (s *Service) recordAdmin(ctx context.Context, resource, action string, details map[string]any) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(audit.RawSecurityEvent{
		EventType: audit.EventAdminAction,
		UserID:    shared.PrincipalFromContext(ctx),
		Resource:  resource,
		Action:    action,
		Result:    audit.ResultSuccess,
		Context:   details,
	})
}

func ensureNoRoleCycle(ctx context.Context, tx TxRepository, roleID int64, parentID *int64) error {
	seen := map[int64]struct{}{roleID: {}}
	current := parentID
	for depth := 0; current != nil; depth++ {
		if depth >= maxHierarchyDepth {
			return fmt.Errorf("policy: role hierarchy too deep: %w", shared.ErrConflict)
		}
		if _, ok := seen[*current]; ok {
			return fmt.Errorf("policy: role hierarchy cycle: %w", shared.ErrConflict)
		}
		seen[*current] = struct{}{}
		parent, err := tx.GetRole(ctx, *current)
		if err != nil {
			return err
		}
		current = parent.ParentRoleID
	}
	return nil
}

func ensureNoGroupCycle(ctx context.Context, tx TxRepository, groupID int64, parentID *int64) error {
	seen := map[int64]struct{}{groupID: {}}
	current := parentID
	for depth := 0; current != nil; depth++ {
		if depth >= maxHierarchyDepth {
			return fmt.Errorf("policy: group hierarchy too deep: %w", shared.ErrConflict)
		}
		if _, ok := seen[*current]; ok {
			return fmt.Errorf("policy: group hierarchy cycle: %w", shared.ErrConflict)
		}
		seen[*current] = struct{}{}
		parent, err := tx.GetGroup(ctx, *current)
		if err != nil {
			return err
		}
		current = parent.ParentGroupID
	}
	return nil
}
