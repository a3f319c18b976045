package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Repository resolves accounts and effective permissions from PostgreSQL.
// It implements rbac.PermissionSource.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `
	u.id, u.name, u.email, COALESCE(u.department, ''),
	COALESCE(u.role_id, 0), COALESCE(r.name, ''), u.password_hash, u.is_active`

// FindByEmail loads the account for a login attempt. Missing accounts map to
// shared.ErrInvalidCredentials so enumeration is not possible.
func (r *Repository) FindByEmail(ctx context.Context, email string) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE LOWER(u.email) = LOWER($1)`, email).
		Scan(&a.ID, &a.Name, &a.Email, &a.Department, &a.RoleID, &a.RoleName, &a.PasswordHash, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrInvalidCredentials
		}
		return Account{}, err
	}
	return a, nil
}

// FindPrincipal resolves the request identity for a verified token subject.
func (r *Repository) FindPrincipal(ctx context.Context, userID int64) (rbac.Principal, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+`
		FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`, userID).
		Scan(&a.ID, &a.Name, &a.Email, &a.Department, &a.RoleID, &a.RoleName, &a.PasswordHash, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Principal{}, shared.ErrNotFound
		}
		return rbac.Principal{}, err
	}
	if !a.IsActive {
		return rbac.Principal{}, shared.ErrNotFound
	}
	return a.Principal(), nil
}

// EffectivePermissionIDs returns the permission ids granted through the
// user's role. A user with no role has no permissions.
func (r *Repository) EffectivePermissionIDs(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rp.permission_id
		FROM users u
		JOIN role_permissions rp ON rp.role_id = u.role_id
		WHERE u.id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
