package users

import "time"

// RoleRef is the role summary embedded on user payloads.
type RoleRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is an employee account. PasswordHash never leaves the repository
// layer and is excluded from JSON.
type User struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	EmployeeID string    `json:"employeeId,omitempty"`
	Department string    `json:"department,omitempty"`
	Position   string    `json:"position,omitempty"`
	IsActive   bool      `json:"isActive"`
	Role       *RoleRef  `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ListFilters narrows user listings.
type ListFilters struct {
	Search     string
	Department string
	Page       int
	PerPage    int
}
