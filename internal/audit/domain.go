package audit

import (
	"encoding/json"
	"time"
)

// Action tags recorded for role mutations.
const (
	ActionCreateRole = "CREATE_ROLE"
	ActionUpdateRole = "UPDATE_ROLE"
	ActionDeleteRole = "DELETE_ROLE"

	ActionRevertCreateRole = "REVERT_CREATE_ROLE"
	ActionRevertUpdateRole = "REVERT_UPDATE_ROLE"
	ActionRevertDeleteRole = "REVERT_DELETE_ROLE"
)

// CategoryRoleManagement groups entries governed by the revert engine.
const CategoryRoleManagement = "ROLE_MANAGEMENT"

// Severity levels.
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
)

// Status values.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Entry is one immutable audit record. Once written it is never mutated or
// deleted; a revert produces a new Entry instead.
type Entry struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId,omitempty"`
	Action      string          `json:"action"`
	Category    string          `json:"category"`
	Resource    string          `json:"resource"`
	ResourceID  string          `json:"resourceId"`
	Severity    string          `json:"severity"`
	Status      string          `json:"status"`
	IPAddress   string          `json:"ipAddress,omitempty"`
	UserAgent   string          `json:"userAgent,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`

	// Actor fields are joined from the users table for listings; empty when
	// the acting user is unknown or since removed.
	ActorName  string `json:"actorName,omitempty"`
	ActorEmail string `json:"actorEmail,omitempty"`
}

// Draft is the caller-supplied part of an Entry; the store assigns id and
// timestamp.
type Draft struct {
	UserID      int64
	Action      string
	Category    string
	Resource    string
	ResourceID  string
	Severity    string
	Status      string
	IPAddress   string
	UserAgent   string
	Details     any
	Description string
}

// RequestMeta carries the request attributes captured on audit drafts.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// PermissionRef names a permission inside details snapshots and diffs.
type PermissionRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// UserRef names a user inside details snapshots and diffs.
type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// StringChange is a before/after pair for a scalar field.
type StringChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PermissionsChange is a before/after pair for a role's permission set.
type PermissionsChange struct {
	From []PermissionRef `json:"from"`
	To   []PermissionRef `json:"to"`
}

// UsersChange is a before/after pair for a role's user assignments.
type UsersChange struct {
	From []UserRef `json:"from"`
	To   []UserRef `json:"to"`
}

// ChangeSet is the per-field diff stored on UPDATE_ROLE entries. A nil field
// means the attribute did not change.
type ChangeSet struct {
	Name        *StringChange      `json:"name,omitempty"`
	Description *StringChange      `json:"description,omitempty"`
	Permissions *PermissionsChange `json:"permissions,omitempty"`
	Users       *UsersChange       `json:"users,omitempty"`
}

// Empty reports whether no field changed.
func (c *ChangeSet) Empty() bool {
	return c == nil || (c.Name == nil && c.Description == nil && c.Permissions == nil && c.Users == nil)
}

// RoleDetails is the details JSON shape for ROLE_MANAGEMENT entries. CREATE
// snapshots the created state, DELETE snapshots the removed state, UPDATE
// carries the ChangeSet, and REVERT_* entries reference the original entry.
type RoleDetails struct {
	RoleName        string     `json:"roleName,omitempty"`
	Description     string     `json:"description,omitempty"`
	Changes         *ChangeSet `json:"changes,omitempty"`
	PermissionIDs   []string   `json:"permissionIds,omitempty"`
	UserIDs         []int64    `json:"userIds,omitempty"`
	PermissionCount int        `json:"permissionCount,omitempty"`
	UserCount       int        `json:"userCount,omitempty"`

	// Snapshot of the permission set for DELETE_ROLE entries, so a revert
	// can reconnect them.
	Permissions []PermissionRef `json:"permissions,omitempty"`

	// Revert bookkeeping.
	OriginalAuditLogID   int64      `json:"originalAuditLogId,omitempty"`
	OriginalAction       string     `json:"originalAction,omitempty"`
	OriginalTimestamp    *time.Time `json:"originalTimestamp,omitempty"`
	RevertedRoleName     string     `json:"revertedRoleName,omitempty"`
	RecreatedRoleName    string     `json:"recreatedRoleName,omitempty"`
	RevertedChanges      *ChangeSet `json:"revertedChanges,omitempty"`
	RestoredPermissions  int        `json:"restoredPermissions,omitempty"`
	SkippedPermissionIDs []string   `json:"skippedPermissionIds,omitempty"`
}

// RevertibleActions lists the actions the revert engine can undo. REVERT_*
// actions are deliberately excluded so reverts never chain.
func RevertibleActions() []string {
	return []string{ActionCreateRole, ActionUpdateRole, ActionDeleteRole}
}

// CanRevert reports whether an entry with the given action may be reverted.
func CanRevert(action string) bool {
	switch action {
	case ActionCreateRole, ActionUpdateRole, ActionDeleteRole:
		return true
	default:
		return false
	}
}
