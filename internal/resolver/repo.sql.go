package resolver

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// DirectRoleIDs returns active, unexpired direct role grants.
func (r *PGRepository) DirectRoleIDs(ctx context.Context, userID string, now time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT role_id FROM user_roles
		 WHERE user_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > $2)`,
		userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// GroupRoleIDs returns roles conferred through active group memberships.
func (r *PGRepository) GroupRoleIDs(ctx context.Context, userID string) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT gr.role_id FROM user_groups ug
		 JOIN group_roles gr ON gr.group_id = ug.group_id AND gr.is_active
		 WHERE ug.user_id = $1 AND ug.is_active`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// RoleClosure walks parent_role_id upward from the given roles. Inactive
// roles cut the chain; cycles cannot exist because writes reject them.
func (r *PGRepository) RoleClosure(ctx context.Context, roleIDs []int64) ([]int64, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`WITH RECURSIVE closure AS (
		   SELECT id, parent_role_id FROM roles WHERE id = ANY($1) AND is_active
		   UNION
		   SELECT r.id, r.parent_role_id FROM roles r
		   JOIN closure c ON r.id = c.parent_role_id
		   WHERE r.is_active
		 )
		 SELECT id FROM closure`,
		roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// GrantsForRoles returns role-permission edges for active roles.
func (r *PGRepository) GrantsForRoles(ctx context.Context, roleIDs []int64) ([]Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT rp.role_id, p.resource, p.action, p.conditions, rp.conditions
		 FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id AND r.is_active
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id = ANY($1)`,
		roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.RoleID, &g.Resource, &g.Action, &g.BaseConditions, &g.OverrideConditions); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
