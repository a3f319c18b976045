package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hr/meridian-hr/internal/audit"
	"github.com/meridian-hr/meridian-hr/internal/platform/db"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Repository provides PostgreSQL backed persistence for roles. It also
// implements audit.RoleStore for the revert engine.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles with permissions and members, ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(color, ''), created_at, updated_at
		FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	index := make(map[int64]int)
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Color, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Permissions = []Permission{}
		role.Users = []Member{}
		index[role.ID] = len(roles)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachPermissions(ctx, roles, index); err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, roles, index); err != nil {
		return nil, err
	}
	return roles, nil
}

// GetRole fetches one role with permissions and members.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(color, ''), created_at, updated_at
		FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.Color, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	role.Permissions = []Permission{}
	role.Users = []Member{}
	roles := []Role{role}
	index := map[int64]int{role.ID: 0}
	if err := r.attachPermissions(ctx, roles, index); err != nil {
		return Role{}, err
	}
	if err := r.attachMembers(ctx, roles, index); err != nil {
		return Role{}, err
	}
	return roles[0], nil
}

// NameTaken reports whether another role already uses the name.
func (r *Repository) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE name = $1 AND id <> $2)`,
		name, excludeID).Scan(&taken)
	return taken, err
}

// CreateRole inserts a role and connects its permissions and members in one
// transaction.
func (r *Repository) CreateRole(ctx context.Context, input RoleInput) (Role, error) {
	var roleID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO roles (name, description, color) VALUES ($1, $2, NULLIF($3, ''))
			RETURNING id`, input.Name, input.Description, input.Color).Scan(&roleID); err != nil {
			return err
		}
		if err := attachRolePermissions(ctx, tx, roleID, input.PermissionIDs); err != nil {
			return err
		}
		return assignRoleMembers(ctx, tx, roleID, input.UserIDs)
	})
	if err != nil {
		return Role{}, err
	}
	return r.GetRole(ctx, roleID)
}

// UpdateRole replaces the role's attributes, permission set, and member set.
func (r *Repository) UpdateRole(ctx context.Context, id int64, input RoleInput) (Role, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE roles SET name = $2, description = $3, color = NULLIF($4, ''), updated_at = NOW()
			WHERE id = $1`, id, input.Name, input.Description, input.Color)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		if err := attachRolePermissions(ctx, tx, id, input.PermissionIDs); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET role_id = NULL WHERE role_id = $1`, id); err != nil {
			return err
		}
		return assignRoleMembers(ctx, tx, id, input.UserIDs)
	})
	if err != nil {
		return Role{}, err
	}
	return r.GetRole(ctx, id)
}

// DeleteRole removes a role; role_permissions rows cascade.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// PermissionsByIDs returns catalog entries for the given ids.
func (r *Repository) PermissionsByIDs(ctx context.Context, ids []string) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(category, ''), COALESCE(description, '')
		FROM permissions WHERE id = ANY($1) ORDER BY name`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CountUsersByIDs counts how many of the given user ids exist.
func (r *Repository) CountUsersByIDs(ctx context.Context, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE id = ANY($1)`, ids).Scan(&count)
	return count, err
}

// ListPermissions returns the catalog with per-permission role counts.
func (r *Repository) ListPermissions(ctx context.Context) ([]PermissionWithRoleCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, COALESCE(p.category, ''), COALESCE(p.description, ''), COUNT(rp.role_id)
		FROM permissions p
		LEFT JOIN role_permissions rp ON rp.permission_id = p.id
		GROUP BY p.id, p.name, p.category, p.description
		ORDER BY p.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []PermissionWithRoleCount
	for rows.Next() {
		var p PermissionWithRoleCount
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.RoleCount); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CountPermissions returns the catalog size.
func (r *Repository) CountPermissions(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions`).Scan(&count)
	return count, err
}

// RoleSnapshot implements audit.RoleStore.
func (r *Repository) RoleSnapshot(ctx context.Context, id int64) (audit.RoleSnapshot, error) {
	role, err := r.GetRole(ctx, id)
	if err != nil {
		return audit.RoleSnapshot{}, err
	}
	return toSnapshot(role), nil
}

// RestoreRole implements audit.RoleStore: a partial update applying only the
// fields captured in the original diff.
func (r *Repository) RestoreRole(ctx context.Context, id int64, restore audit.RoleRestore) (audit.RoleSnapshot, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if restore.Name != nil {
			if _, err := tx.Exec(ctx, `UPDATE roles SET name = $2, updated_at = NOW() WHERE id = $1`, id, *restore.Name); err != nil {
				return err
			}
		}
		if restore.Description != nil {
			if _, err := tx.Exec(ctx, `UPDATE roles SET description = $2, updated_at = NOW() WHERE id = $1`, id, *restore.Description); err != nil {
				return err
			}
		}
		if restore.SetPermissions {
			if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
				return err
			}
			if err := attachRolePermissions(ctx, tx, id, restore.PermissionIDs); err != nil {
				return err
			}
		}
		if restore.SetUsers {
			if _, err := tx.Exec(ctx, `UPDATE users SET role_id = NULL WHERE role_id = $1`, id); err != nil {
				return err
			}
			if err := assignRoleMembers(ctx, tx, id, restore.UserIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return audit.RoleSnapshot{}, err
	}
	return r.RoleSnapshot(ctx, id)
}

// RoleNameExists implements audit.RoleStore.
func (r *Repository) RoleNameExists(ctx context.Context, name string) (bool, error) {
	return r.NameTaken(ctx, name, 0)
}

// FilterExistingPermissionIDs implements audit.RoleStore: returns the subset
// of ids still present in the catalog.
func (r *Repository) FilterExistingPermissionIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id FROM permissions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var existing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing = append(existing, id)
	}
	return existing, rows.Err()
}

// RecreateRole implements audit.RoleStore: rebuilds a deleted role from its
// snapshot without member assignments.
func (r *Repository) RecreateRole(ctx context.Context, name, description string, permissionIDs []string) (audit.RoleSnapshot, error) {
	role, err := r.CreateRole(ctx, RoleInput{
		Name:          name,
		Description:   description,
		PermissionIDs: permissionIDs,
	})
	if err != nil {
		return audit.RoleSnapshot{}, err
	}
	return toSnapshot(role), nil
}

func (r *Repository) attachPermissions(ctx context.Context, roles []Role, index map[int64]int) error {
	if len(roles) == 0 {
		return nil
	}
	roleIDs := make([]int64, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT rp.role_id, p.id, p.name, COALESCE(p.category, ''), COALESCE(p.description, '')
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1)
		ORDER BY p.name`, roleIDs)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID int64
		var p Permission
		if err := rows.Scan(&roleID, &p.ID, &p.Name, &p.Category, &p.Description); err != nil {
			return err
		}
		if i, ok := index[roleID]; ok {
			roles[i].Permissions = append(roles[i].Permissions, p)
		}
	}
	return rows.Err()
}

func (r *Repository) attachMembers(ctx context.Context, roles []Role, index map[int64]int) error {
	if len(roles) == 0 {
		return nil
	}
	roleIDs := make([]int64, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT role_id, id, name, email, COALESCE(employee_id, '')
		FROM users WHERE role_id = ANY($1) ORDER BY name`, roleIDs)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var roleID int64
		var m Member
		if err := rows.Scan(&roleID, &m.ID, &m.Name, &m.Email, &m.EmployeeID); err != nil {
			return err
		}
		if i, ok := index[roleID]; ok {
			roles[i].Users = append(roles[i].Users, m)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range roles {
		roles[i].UserCount = len(roles[i].Users)
	}
	return nil
}

func attachRolePermissions(ctx context.Context, tx pgx.Tx, roleID int64, permissionIDs []string) error {
	for _, pid := range permissionIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			roleID, pid); err != nil {
			return err
		}
	}
	return nil
}

func assignRoleMembers(ctx context.Context, tx pgx.Tx, roleID int64, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE users SET role_id = $1 WHERE id = ANY($2)`, roleID, userIDs)
	return err
}

func toSnapshot(role Role) audit.RoleSnapshot {
	return audit.RoleSnapshot{
		ID:            role.ID,
		Name:          role.Name,
		Description:   role.Description,
		UserCount:     role.UserCount,
		PermissionIDs: permissionIDList(role.Permissions),
		UserIDs:       memberIDList(role.Users),
	}
}
