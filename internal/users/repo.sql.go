package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-hr/meridian-hr/internal/shared"
)

const userColumns = `
	u.id, u.name, u.email, COALESCE(u.employee_id, ''), COALESCE(u.department, ''),
	COALESCE(u.position, ''), u.is_active, u.created_at, u.updated_at,
	r.id, r.name`

// Repository provides PostgreSQL backed reads over the user directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns a directory page plus the total match count.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error) {
	where, args := buildFilterClauses(filters)

	var total int
	countQuery := `SELECT COUNT(*) FROM users u` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (filters.Page - 1) * filters.PerPage
	query := fmt.Sprintf(`
		SELECT %s FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		%s
		ORDER BY u.name
		LIMIT $%d OFFSET $%d`, userColumns, where, len(args)+1, len(args)+2)
	args = append(args, filters.PerPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, user)
	}
	return out, total, rows.Err()
}

// GetUser fetches one user with their role summary.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM users u
		LEFT JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`, userColumns), id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// Departments returns the distinct non-empty department names.
func (r *Repository) Departments(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT department FROM users
		WHERE department IS NOT NULL AND department <> ''
		ORDER BY department`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func buildFilterClauses(filters ListFilters) (string, []any) {
	var clauses []string
	var args []any
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(u.name ILIKE $%d OR u.email ILIKE $%d OR u.employee_id ILIKE $%d)", n, n, n))
	}
	if filters.Department != "" {
		args = append(args, filters.Department)
		clauses = append(clauses, fmt.Sprintf("u.department = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var roleID *int64
	var roleName *string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.EmployeeID, &u.Department,
		&u.Position, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &roleID, &roleName)
	if err != nil {
		return User{}, err
	}
	if roleID != nil && roleName != nil {
		u.Role = &RoleRef{ID: *roleID, Name: *roleName}
	}
	return u, nil
}
