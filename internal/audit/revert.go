package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

// Validation failures reported by the revert engine. None of them leave a
// mutation behind.
var (
	ErrEntryNotFound     = errors.New("audit entry not found")
	ErrNotRoleManagement = errors.New("audit entry is not related to role management")
	ErrNotRevertible     = errors.New("audit entry action cannot be reverted")
	ErrInvalidResourceID = errors.New("invalid resource id in audit entry")
	ErrInvalidDetails    = errors.New("invalid audit entry details")
	ErrRoleNotFound      = errors.New("role to revert not found")
)

// RoleInUseError denies a role deletion while users still reference it.
type RoleInUseError struct {
	Count int
}

func (e RoleInUseError) Error() string {
	return fmt.Sprintf("cannot revert: %d user(s) are currently assigned to this role", e.Count)
}

// NameCollisionError denies recreating a role whose name is taken again.
type NameCollisionError struct {
	Name string
}

func (e NameCollisionError) Error() string {
	return fmt.Sprintf("cannot revert role deletion: a role named %q already exists", e.Name)
}

// RoleSnapshot is the identity-store view of a role the revert engine works with.
type RoleSnapshot struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	UserCount     int      `json:"userCount"`
	PermissionIDs []string `json:"permissionIds"`
	UserIDs       []int64  `json:"userIds"`
}

// RoleRestore describes the partial restore applied by an update revert.
// Only fields present in the original diff are touched.
type RoleRestore struct {
	Name           *string
	Description    *string
	PermissionIDs  []string
	SetPermissions bool
	UserIDs        []int64
	SetUsers       bool
}

// RoleStore is the identity-store surface the revert engine mutates.
// Implemented by the roles repository.
type RoleStore interface {
	RoleSnapshot(ctx context.Context, id int64) (RoleSnapshot, error)
	DeleteRole(ctx context.Context, id int64) error
	RestoreRole(ctx context.Context, id int64, restore RoleRestore) (RoleSnapshot, error)
	RoleNameExists(ctx context.Context, name string) (bool, error)
	FilterExistingPermissionIDs(ctx context.Context, ids []string) ([]string, error)
	RecreateRole(ctx context.Context, name, description string, permissionIDs []string) (RoleSnapshot, error)
}

// RevertResult reports a successful revert.
type RevertResult struct {
	Message           string        `json:"message"`
	RevertedAction    string        `json:"revertedAction"`
	OriginalTimestamp time.Time     `json:"originalTimestamp"`
	Role              *RoleSnapshot `json:"role,omitempty"`
}

// revertKind is the closed set of revertible mutations. Adding an action
// here forces a handler in revert's switch below.
type revertKind int

const (
	revertCreate revertKind = iota
	revertUpdate
	revertDelete
)

func revertKindFor(action string) (revertKind, bool) {
	switch action {
	case ActionCreateRole:
		return revertCreate, true
	case ActionUpdateRole:
		return revertUpdate, true
	case ActionDeleteRole:
		return revertDelete, true
	default:
		return 0, false
	}
}

// Reverter undoes previously audited role mutations. Every successful revert
// is itself recorded as a new audit entry referencing the original.
type Reverter struct {
	repo        RepositoryPort
	store       RoleStore
	auditor     Auditor
	invalidator rbac.Invalidator
	logger      *slog.Logger
}

// NewReverter wires the revert engine.
func NewReverter(repo RepositoryPort, store RoleStore, auditor Auditor, invalidator rbac.Invalidator, logger *slog.Logger) *Reverter {
	return &Reverter{repo: repo, store: store, auditor: auditor, invalidator: invalidator, logger: logger}
}

// RevertRoleAudit validates the referenced entry and applies the inverse
// mutation. Validation failures return one of the sentinel errors above with
// no mutation performed.
func (rv *Reverter) RevertRoleAudit(ctx context.Context, auditID int64, actor *rbac.Principal, meta RequestMeta) (*RevertResult, error) {
	entry, err := rv.repo.GetEntry(ctx, auditID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	if entry.Category != CategoryRoleManagement {
		return nil, ErrNotRoleManagement
	}
	kind, ok := revertKindFor(entry.Action)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRevertible, entry.Action)
	}
	roleID, err := strconv.ParseInt(entry.ResourceID, 10, 64)
	if err != nil {
		return nil, ErrInvalidResourceID
	}
	details, err := DecodeRoleDetails(entry.Details)
	if err != nil {
		return nil, ErrInvalidDetails
	}

	switch kind {
	case revertCreate:
		return rv.revertCreate(ctx, entry, details, roleID, actor, meta)
	case revertUpdate:
		return rv.revertUpdate(ctx, entry, details, roleID, actor, meta)
	case revertDelete:
		return rv.revertDelete(ctx, entry, details, actor, meta)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotRevertible, entry.Action)
}

// revertCreate undoes a role creation by deleting the role.
func (rv *Reverter) revertCreate(ctx context.Context, entry Entry, details RoleDetails, roleID int64, actor *rbac.Principal, meta RequestMeta) (*RevertResult, error) {
	snap, err := rv.store.RoleSnapshot(ctx, roleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}
	if snap.UserCount > 0 {
		return nil, RoleInUseError{Count: snap.UserCount}
	}
	if err := rv.store.DeleteRole(ctx, roleID); err != nil {
		return nil, err
	}
	if rv.invalidator != nil {
		rv.invalidator.InvalidateAll(ctx)
	}

	roleName := details.RoleName
	if roleName == "" {
		roleName = snap.Name
	}
	rv.recordRevert(ctx, actor, meta, Draft{
		Action:     ActionRevertCreateRole,
		Severity:   SeverityWarning,
		ResourceID: strconv.FormatInt(roleID, 10),
		Details: RoleDetails{
			OriginalAuditLogID: entry.ID,
			OriginalAction:     entry.Action,
			OriginalTimestamp:  &entry.Timestamp,
			RevertedRoleName:   roleName,
		},
		Description: fmt.Sprintf("Reverted role creation: deleted role %q (original action by %s on %s)",
			roleName, actorName(entry), entry.Timestamp.Format(time.RFC3339)),
	})

	return &RevertResult{
		Message:           fmt.Sprintf("Successfully reverted role creation: %q has been deleted", roleName),
		RevertedAction:    entry.Action,
		OriginalTimestamp: entry.Timestamp,
	}, nil
}

// revertUpdate restores the pre-change values captured in the original diff.
func (rv *Reverter) revertUpdate(ctx context.Context, entry Entry, details RoleDetails, roleID int64, actor *rbac.Principal, meta RequestMeta) (*RevertResult, error) {
	if details.Changes.Empty() {
		return nil, fmt.Errorf("%w: no change details found", ErrInvalidDetails)
	}
	if _, err := rv.store.RoleSnapshot(ctx, roleID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, err
	}

	var restore RoleRestore
	changes := details.Changes
	if changes.Name != nil {
		name := changes.Name.From
		restore.Name = &name
	}
	if changes.Description != nil {
		description := changes.Description.From
		restore.Description = &description
	}
	if changes.Permissions != nil {
		restore.SetPermissions = true
		restore.PermissionIDs = permissionIDs(changes.Permissions.From)
	}
	if changes.Users != nil {
		restore.SetUsers = true
		restore.UserIDs = userIDs(changes.Users.From)
	}

	updated, err := rv.store.RestoreRole(ctx, roleID, restore)
	if err != nil {
		return nil, err
	}
	if rv.invalidator != nil {
		rv.invalidator.InvalidateAll(ctx)
	}

	rv.recordRevert(ctx, actor, meta, Draft{
		Action:     ActionRevertUpdateRole,
		Severity:   SeverityWarning,
		ResourceID: strconv.FormatInt(roleID, 10),
		Details: RoleDetails{
			OriginalAuditLogID: entry.ID,
			RoleName:           updated.Name,
			RevertedChanges:    details.Changes,
			OriginalAction:     entry.Action,
			OriginalTimestamp:  &entry.Timestamp,
		},
		Description: fmt.Sprintf("Reverted role update for %q (original action by %s on %s)",
			updated.Name, actorName(entry), entry.Timestamp.Format(time.RFC3339)),
	})

	return &RevertResult{
		Message:           fmt.Sprintf("Successfully reverted role update for %q", updated.Name),
		RevertedAction:    entry.Action,
		OriginalTimestamp: entry.Timestamp,
		Role:              &updated,
	}, nil
}

// revertDelete recreates a deleted role from its snapshot. Permissions gone
// from the catalog in the interim are skipped, not an error.
func (rv *Reverter) revertDelete(ctx context.Context, entry Entry, details RoleDetails, actor *rbac.Principal, meta RequestMeta) (*RevertResult, error) {
	if details.RoleName == "" {
		return nil, fmt.Errorf("%w: role name not found", ErrInvalidDetails)
	}
	taken, err := rv.store.RoleNameExists(ctx, details.RoleName)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, NameCollisionError{Name: details.RoleName}
	}

	wanted := permissionIDs(details.Permissions)
	if len(wanted) == 0 {
		wanted = details.PermissionIDs
	}
	existing, err := rv.store.FilterExistingPermissionIDs(ctx, wanted)
	if err != nil {
		return nil, err
	}
	skipped := difference(wanted, existing)

	snap, err := rv.store.RecreateRole(ctx, details.RoleName, details.Description, existing)
	if err != nil {
		return nil, err
	}

	rv.recordRevert(ctx, actor, meta, Draft{
		Action:     ActionRevertDeleteRole,
		Severity:   SeverityInfo,
		ResourceID: strconv.FormatInt(snap.ID, 10),
		Details: RoleDetails{
			OriginalAuditLogID:   entry.ID,
			RecreatedRoleName:    snap.Name,
			OriginalAction:       entry.Action,
			OriginalTimestamp:    &entry.Timestamp,
			RestoredPermissions:  len(existing),
			SkippedPermissionIDs: skipped,
		},
		Description: fmt.Sprintf("Reverted role deletion: recreated role %q with %d permissions (original action by %s on %s)",
			snap.Name, len(existing), actorName(entry), entry.Timestamp.Format(time.RFC3339)),
	})

	return &RevertResult{
		Message:           fmt.Sprintf("Successfully reverted role deletion: %q has been recreated", snap.Name),
		RevertedAction:    entry.Action,
		OriginalTimestamp: entry.Timestamp,
		Role:              &snap,
	}, nil
}

// recordRevert fills the shared draft fields and appends best-effort.
func (rv *Reverter) recordRevert(ctx context.Context, actor *rbac.Principal, meta RequestMeta, draft Draft) {
	if actor != nil {
		draft.UserID = actor.ID
	}
	draft.Category = CategoryRoleManagement
	draft.Resource = "Role"
	draft.Status = StatusSuccess
	draft.IPAddress = meta.IPAddress
	draft.UserAgent = meta.UserAgent
	if rv.auditor == nil {
		return
	}
	if recorded := rv.auditor.Record(ctx, draft); recorded == nil && rv.logger != nil {
		rv.logger.Warn("revert audit entry dropped", slog.String("action", draft.Action))
	}
}

func actorName(entry Entry) string {
	if entry.ActorName != "" {
		return entry.ActorName
	}
	return "Unknown"
}

func permissionIDs(refs []PermissionRef) []string {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids
}

func userIDs(refs []UserRef) []int64 {
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids
}

func difference(all, keep []string) []string {
	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	var missing []string
	for _, id := range all {
		if _, ok := kept[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
