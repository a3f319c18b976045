package roles

import "context"

// RepositoryPort defines data access methods for role management.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	NameTaken(ctx context.Context, name string, excludeID int64) (bool, error)
	CreateRole(ctx context.Context, input RoleInput) (Role, error)
	UpdateRole(ctx context.Context, id int64, input RoleInput) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	PermissionsByIDs(ctx context.Context, ids []string) ([]Permission, error)
	CountUsersByIDs(ctx context.Context, ids []int64) (int, error)
	ListPermissions(ctx context.Context) ([]PermissionWithRoleCount, error)
	CountPermissions(ctx context.Context) (int, error)
}
