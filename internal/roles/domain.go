package roles

import "time"

// Permission is one catalog entry. Ids are stable slugs owned by the
// identity store; the core only changes role associations.
type Permission struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// PermissionWithRoleCount decorates a Permission for catalog listings.
type PermissionWithRoleCount struct {
	Permission
	RoleCount int `json:"roleCount"`
}

// Member is a user assigned to a role.
type Member struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	EmployeeID string `json:"employeeId,omitempty"`
}

// Role is a named bundle of permissions assignable to users. Name is unique
// system-wide; Color is display metadata only.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Color       string       `json:"color,omitempty"`
	Permissions []Permission `json:"permissions"`
	Users       []Member     `json:"users"`
	UserCount   int          `json:"userCount"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// RoleInput carries the writable role attributes.
type RoleInput struct {
	Name          string
	Description   string
	Color         string
	PermissionIDs []string
	UserIDs       []int64
}

// RoleDistribution is one row of the stats overview.
type RoleDistribution struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	UserCount int    `json:"userCount"`
}

// StatsOverview summarises the role catalog.
type StatsOverview struct {
	TotalRoles       int                `json:"totalRoles"`
	TotalPermissions int                `json:"totalPermissions"`
	MostAssignedRole *RoleDistribution  `json:"mostAssignedRole"`
	RoleDistribution []RoleDistribution `json:"roleDistribution"`
}
