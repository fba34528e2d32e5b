package policy

import "context"

// TxRepository exposes the persistence operations available inside a policy
// write transaction.
type TxRepository interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	InsertRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	GetPermission(ctx context.Context, id int64) (Permission, error)
	InsertPermission(ctx context.Context, perm Permission) (Permission, error)
	DeletePermission(ctx context.Context, id int64) error

	GetGroup(ctx context.Context, id int64) (Group, error)
	InsertGroup(ctx context.Context, group Group) (Group, error)
	UpdateGroup(ctx context.Context, group Group) (Group, error)
	DeleteGroup(ctx context.Context, id int64) error

	UpsertRolePermission(ctx context.Context, rp RolePermission) error
	DeleteRolePermission(ctx context.Context, roleID, permissionID int64) error

	InsertUserRole(ctx context.Context, grant UserRole) error
	DeactivateUserRole(ctx context.Context, userID string, roleID int64) (int64, error)

	InsertUserGroup(ctx context.Context, membership UserGroup) error
	DeactivateUserGroup(ctx context.Context, userID string, groupID int64) (int64, error)

	InsertGroupRole(ctx context.Context, gr GroupRole) error
	DeactivateGroupRole(ctx context.Context, groupID, roleID int64) (int64, error)

	GroupMemberIDs(ctx context.Context, groupID int64) ([]string, error)
}

// Repository provides transactional access to the policy store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	ListGroups(ctx context.Context) ([]Group, error)
}
