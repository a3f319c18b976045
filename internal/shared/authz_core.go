package shared

// Built-in role names.
const (
	RoleAdmin    = "ADMIN"
	RoleHR       = "HR"
	RoleManager  = "MANAGER"
	RoleEmployee = "EMPLOYEE"
)

// Core platform permissions. Permission ids are stable slugs owned by the
// identity store's catalog; the core never deletes catalog entries.
const (
	PermViewUsers   = "view_users"
	PermManageUsers = "manage_users"

	PermViewRoles   = "view_roles"
	PermManageRoles = "manage_roles"

	PermViewPermissions = "view_permissions"

	PermViewAuditLogs   = "view_audit_logs"
	PermManageAuditLogs = "manage_audit_logs"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermViewUsers,
		PermManageUsers,
		PermViewRoles,
		PermManageRoles,
		PermViewPermissions,
		PermViewAuditLogs,
		PermManageAuditLogs,
	}
}
