package users

import "context"

// RepositoryPort defines data access methods for user directory reads.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	Departments(ctx context.Context) ([]string, error)
}
