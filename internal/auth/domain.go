package auth

import "github.com/meridian-hr/meridian-hr/internal/rbac"

// Account is the credential-bearing view of a user, used only during login.
type Account struct {
	ID           int64
	Name         string
	Email        string
	Department   string
	RoleID       int64
	RoleName     string
	PasswordHash string
	IsActive     bool
}

// Principal converts the account to its request-scoped identity.
func (a Account) Principal() rbac.Principal {
	return rbac.Principal{
		ID:         a.ID,
		Name:       a.Name,
		Email:      a.Email,
		Department: a.Department,
		RoleID:     a.RoleID,
		Role:       a.RoleName,
	}
}
