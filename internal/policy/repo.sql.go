package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-sec/sentra/internal/platform/db"
	"github.com/sentra-sec/sentra/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type pgTx struct {
	tx pgx.Tx
}

// WithTx runs fn inside a single transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, parent_role_id, is_system, is_active, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.ParentRoleID, &role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissions returns all permissions ordered by resource then action.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, resource, action, conditions, created_at FROM permissions ORDER BY resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// ListGroups returns all groups ordered by name.
func (r *PGRepository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, parent_group_id, created_at FROM groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.ParentGroupID, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (t *pgTx) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := t.tx.QueryRow(ctx, `SELECT id, name, parent_role_id, is_system, is_active, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.ParentRoleID, &role.IsSystem, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("policy: role %d: %w", id, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

func (t *pgTx) InsertRole(ctx context.Context, role Role) (Role, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx,
		`INSERT INTO roles (name, parent_role_id, is_system, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, created_at, updated_at`,
		role.Name, role.ParentRoleID, role.IsSystem, role.IsActive, now).
		Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, mapWriteError("role", err)
	}
	return role, nil
}

func (t *pgTx) UpdateRole(ctx context.Context, role Role) (Role, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx,
		`UPDATE roles SET name = $2, parent_role_id = $3, is_active = $4, updated_at = $5
		 WHERE id = $1 RETURNING created_at, updated_at`,
		role.ID, role.Name, role.ParentRoleID, role.IsActive, now).
		Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("policy: role %d: %w", role.ID, shared.ErrNotFound)
		}
		return Role{}, mapWriteError("role", err)
	}
	return role, nil
}

func (t *pgTx) DeleteRole(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND NOT is_system`, id)
	if err != nil {
		return mapWriteError("role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: role %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetPermission(ctx context.Context, id int64) (Permission, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, name, resource, action, conditions, created_at FROM permissions WHERE id = $1`, id)
	perm, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("policy: permission %d: %w", id, shared.ErrNotFound)
		}
		return Permission{}, err
	}
	return perm, nil
}

func (t *pgTx) InsertPermission(ctx context.Context, perm Permission) (Permission, error) {
	conditions, err := EncodeConditionSet(perm.Conditions)
	if err != nil {
		return Permission{}, err
	}
	now := time.Now().UTC()
	err = t.tx.QueryRow(ctx,
		`INSERT INTO permissions (name, resource, action, conditions, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		perm.Name, perm.Resource, perm.Action, conditions, now).
		Scan(&perm.ID, &perm.CreatedAt)
	if err != nil {
		return Permission{}, mapWriteError("permission", err)
	}
	return perm, nil
}

func (t *pgTx) DeletePermission(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return mapWriteError("permission", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: permission %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) GetGroup(ctx context.Context, id int64) (Group, error) {
	var g Group
	err := t.tx.QueryRow(ctx, `SELECT id, name, parent_group_id, created_at FROM groups WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.ParentGroupID, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, fmt.Errorf("policy: group %d: %w", id, shared.ErrNotFound)
		}
		return Group{}, err
	}
	return g, nil
}

func (t *pgTx) InsertGroup(ctx context.Context, group Group) (Group, error) {
	now := time.Now().UTC()
	err := t.tx.QueryRow(ctx,
		`INSERT INTO groups (name, parent_group_id, created_at) VALUES ($1, $2, $3) RETURNING id, created_at`,
		group.Name, group.ParentGroupID, now).
		Scan(&group.ID, &group.CreatedAt)
	if err != nil {
		return Group{}, mapWriteError("group", err)
	}
	return group, nil
}

func (t *pgTx) UpdateGroup(ctx context.Context, group Group) (Group, error) {
	err := t.tx.QueryRow(ctx,
		`UPDATE groups SET name = $2, parent_group_id = $3 WHERE id = $1 RETURNING created_at`,
		group.ID, group.Name, group.ParentGroupID).
		Scan(&group.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Group{}, fmt.Errorf("policy: group %d: %w", group.ID, shared.ErrNotFound)
		}
		return Group{}, mapWriteError("group", err)
	}
	return group, nil
}

func (t *pgTx) DeleteGroup(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return mapWriteError("group", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: group %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) UpsertRolePermission(ctx context.Context, rp RolePermission) error {
	conditions, err := EncodeConditionSet(rp.Conditions)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id, conditions)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (role_id, permission_id) DO NOTHING`,
		rp.RoleID, rp.PermissionID, conditions)
	if err != nil {
		return mapWriteError("role permission", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: role %d already has permission %d: %w", rp.RoleID, rp.PermissionID, shared.ErrConflict)
	}
	return nil
}

func (t *pgTx) DeleteRolePermission(ctx context.Context, roleID, permissionID int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: role permission: %w", shared.ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertUserRole(ctx context.Context, grant UserRole) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id, assigned_at, expires_at, is_active)
		 SELECT $1, $2, $3, $4, TRUE
		 WHERE NOT EXISTS (
		   SELECT 1 FROM user_roles WHERE user_id = $1 AND role_id = $2 AND is_active
		 )`,
		grant.UserID, grant.RoleID, grant.AssignedAt, grant.ExpiresAt)
	if err != nil {
		return mapWriteError("user role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: user %s already holds role %d: %w", grant.UserID, grant.RoleID, shared.ErrConflict)
	}
	return nil
}

func (t *pgTx) DeactivateUserRole(ctx context.Context, userID string, roleID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_roles SET is_active = FALSE WHERE user_id = $1 AND role_id = $2 AND is_active`,
		userID, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) InsertUserGroup(ctx context.Context, membership UserGroup) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO user_groups (user_id, group_id, is_active)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (user_id, group_id) DO UPDATE SET is_active = TRUE
		 WHERE NOT user_groups.is_active`,
		membership.UserID, membership.GroupID)
	if err != nil {
		return mapWriteError("user group", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: user %s already in group %d: %w", membership.UserID, membership.GroupID, shared.ErrConflict)
	}
	return nil
}

func (t *pgTx) DeactivateUserGroup(ctx context.Context, userID string, groupID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_groups SET is_active = FALSE WHERE user_id = $1 AND group_id = $2 AND is_active`,
		userID, groupID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) InsertGroupRole(ctx context.Context, gr GroupRole) error {
	tag, err := t.tx.Exec(ctx,
		`INSERT INTO group_roles (group_id, role_id, is_active)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (group_id, role_id) DO UPDATE SET is_active = TRUE
		 WHERE NOT group_roles.is_active`,
		gr.GroupID, gr.RoleID)
	if err != nil {
		return mapWriteError("group role", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy: group %d already has role %d: %w", gr.GroupID, gr.RoleID, shared.ErrConflict)
	}
	return nil
}

func (t *pgTx) DeactivateGroupRole(ctx context.Context, groupID, roleID int64) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE group_roles SET is_active = FALSE WHERE group_id = $1 AND role_id = $2 AND is_active`,
		groupID, roleID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) GroupMemberIDs(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT user_id FROM user_groups WHERE group_id = $1 AND is_active`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	var raw []byte
	if err := row.Scan(&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &raw, &perm.CreatedAt); err != nil {
		return Permission{}, err
	}
	set, err := ParseConditionSet(raw)
	if err != nil {
		return Permission{}, err
	}
	perm.Conditions = set
	return perm, nil
}

// mapWriteError converts postgres constraint violations into the domain
// error taxonomy.
func mapWriteError(entity string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("policy: duplicate %s: %w", entity, shared.ErrConflict)
		case "23503":
			return fmt.Errorf("policy: %s references missing row: %w", entity, shared.ErrNotFound)
		}
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
var _ TxRepository = (*pgTx)(nil)
