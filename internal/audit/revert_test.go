package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
	"github.com/meridian-hr/meridian-hr/internal/shared"
)

type mockAuditRepo struct {
	entries map[int64]Entry
}

func newMockAuditRepo() *mockAuditRepo {
	return &mockAuditRepo{entries: make(map[int64]Entry)}
}

func (m *mockAuditRepo) ListEntries(ctx context.Context, filters ListFilters) ([]Entry, int, error) {
	var out []Entry
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, len(out), nil
}

func (m *mockAuditRepo) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, shared.ErrNotFound
	}
	return e, nil
}

func (m *mockAuditRepo) EntriesForResource(ctx context.Context, category, resourceID string, page, perPage int) ([]Entry, int, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.Category == category && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *mockAuditRepo) Stats(ctx context.Context, from, to time.Time) (Stats, error) {
	return Stats{TotalLogs: len(m.entries)}, nil
}

type mockRoleStore struct {
	roles        map[int64]RoleSnapshot
	catalog      map[string]struct{}
	nextID       int64
	deleted      []int64
	restoreCalls []RoleRestore
}

func newMockRoleStore() *mockRoleStore {
	return &mockRoleStore{
		roles:   make(map[int64]RoleSnapshot),
		catalog: make(map[string]struct{}),
		nextID:  100,
	}
}

func (m *mockRoleStore) RoleSnapshot(ctx context.Context, id int64) (RoleSnapshot, error) {
	snap, ok := m.roles[id]
	if !ok {
		return RoleSnapshot{}, shared.ErrNotFound
	}
	return snap, nil
}

func (m *mockRoleStore) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.roles, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRoleStore) RestoreRole(ctx context.Context, id int64, restore RoleRestore) (RoleSnapshot, error) {
	snap, ok := m.roles[id]
	if !ok {
		return RoleSnapshot{}, shared.ErrNotFound
	}
	m.restoreCalls = append(m.restoreCalls, restore)
	if restore.Name != nil {
		snap.Name = *restore.Name
	}
	if restore.Description != nil {
		snap.Description = *restore.Description
	}
	if restore.SetPermissions {
		snap.PermissionIDs = restore.PermissionIDs
	}
	if restore.SetUsers {
		snap.UserIDs = restore.UserIDs
		snap.UserCount = len(restore.UserIDs)
	}
	m.roles[id] = snap
	return snap, nil
}

func (m *mockRoleStore) RoleNameExists(ctx context.Context, name string) (bool, error) {
	for _, snap := range m.roles {
		if snap.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRoleStore) FilterExistingPermissionIDs(ctx context.Context, ids []string) ([]string, error) {
	var existing []string
	for _, id := range ids {
		if _, ok := m.catalog[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

func (m *mockRoleStore) RecreateRole(ctx context.Context, name, description string, permissionIDs []string) (RoleSnapshot, error) {
	m.nextID++
	snap := RoleSnapshot{ID: m.nextID, Name: name, Description: description, PermissionIDs: permissionIDs}
	m.roles[snap.ID] = snap
	return snap, nil
}

type recordingAuditor struct {
	drafts []Draft
	fail   bool
}

func (a *recordingAuditor) Record(ctx context.Context, draft Draft) *Entry {
	a.drafts = append(a.drafts, draft)
	if a.fail {
		return nil
	}
	return &Entry{ID: int64(len(a.drafts)), Action: draft.Action}
}

type countingInvalidator struct {
	users []int64
	all   int
}

func (c *countingInvalidator) Invalidate(ctx context.Context, userID int64) {
	c.users = append(c.users, userID)
}

func (c *countingInvalidator) InvalidateAll(ctx context.Context) { c.all++ }

func mustDetails(t *testing.T, d RoleDetails) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	return raw
}

func newTestReverter(repo *mockAuditRepo, store *mockRoleStore) (*Reverter, *recordingAuditor, *countingInvalidator) {
	auditor := &recordingAuditor{}
	invalidator := &countingInvalidator{}
	return NewReverter(repo, store, auditor, invalidator, nil), auditor, invalidator
}

func TestRevertRejectsMissingEntry(t *testing.T) {
	rv, _, _ := newTestReverter(newMockAuditRepo(), newMockRoleStore())
	_, err := rv.RevertRoleAudit(context.Background(), 42, nil, RequestMeta{})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestRevertRejectsWrongCategory(t *testing.T) {
	repo := newMockAuditRepo()
	repo.entries[1] = Entry{ID: 1, Category: "AUTH", Action: ActionCreateRole, ResourceID: "5"}
	rv, _, _ := newTestReverter(repo, newMockRoleStore())

	_, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	assert.ErrorIs(t, err, ErrNotRoleManagement)
}

func TestRevertRejectsRevertEntries(t *testing.T) {
	repo := newMockAuditRepo()
	for i, action := range []string{ActionRevertCreateRole, ActionRevertUpdateRole, ActionRevertDeleteRole} {
		id := int64(i + 1)
		repo.entries[id] = Entry{ID: id, Category: CategoryRoleManagement, Action: action, ResourceID: "5"}
	}
	rv, _, _ := newTestReverter(repo, newMockRoleStore())

	for id := int64(1); id <= 3; id++ {
		_, err := rv.RevertRoleAudit(context.Background(), id, nil, RequestMeta{})
		assert.ErrorIs(t, err, ErrNotRevertible, "revert entries must never be revertible")
	}
}

func TestRevertRejectsBadResourceID(t *testing.T) {
	repo := newMockAuditRepo()
	repo.entries[1] = Entry{ID: 1, Category: CategoryRoleManagement, Action: ActionCreateRole, ResourceID: "not-a-number"}
	rv, _, _ := newTestReverter(repo, newMockRoleStore())

	_, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidResourceID)
}

func TestRevertCreateDeletesRole(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.roles[5] = RoleSnapshot{ID: 5, Name: "Interns", UserCount: 0}
	repo.entries[1] = Entry{
		ID:         1,
		Category:   CategoryRoleManagement,
		Action:     ActionCreateRole,
		ResourceID: "5",
		ActorName:  "Hana Wijaya",
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Details:    mustDetails(t, RoleDetails{RoleName: "Interns"}),
	}
	rv, auditor, invalidator := newTestReverter(repo, store)

	actor := &rbac.Principal{ID: 9, Role: "ADMIN"}
	result, err := rv.RevertRoleAudit(context.Background(), 1, actor, RequestMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, ActionCreateRole, result.RevertedAction)
	assert.Contains(t, result.Message, "Interns")
	assert.Equal(t, []int64{5}, store.deleted)
	assert.Equal(t, 1, invalidator.all)

	require.Len(t, auditor.drafts, 1)
	draft := auditor.drafts[0]
	assert.Equal(t, ActionRevertCreateRole, draft.Action)
	assert.Equal(t, SeverityWarning, draft.Severity)
	assert.Equal(t, int64(9), draft.UserID)
	assert.Equal(t, "10.0.0.1", draft.IPAddress)
	details := draft.Details.(RoleDetails)
	assert.Equal(t, int64(1), details.OriginalAuditLogID)
	assert.Equal(t, ActionCreateRole, details.OriginalAction)
}

func TestRevertCreateBlockedByAssignedUsers(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.roles[5] = RoleSnapshot{ID: 5, Name: "Interns", UserCount: 3}
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionCreateRole, ResourceID: "5",
		Details: mustDetails(t, RoleDetails{RoleName: "Interns"}),
	}
	rv, auditor, _ := newTestReverter(repo, store)

	_, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	var inUse RoleInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, 3, inUse.Count)
	assert.Contains(t, store.roles, int64(5), "role must not be deleted")
	assert.Empty(t, auditor.drafts, "failed revert must not be audited")
}

func TestRevertCreateMissingRole(t *testing.T) {
	repo := newMockAuditRepo()
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionCreateRole, ResourceID: "5",
		Details: mustDetails(t, RoleDetails{RoleName: "Interns"}),
	}
	rv, _, _ := newTestReverter(repo, newMockRoleStore())

	_, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestRevertUpdateRestoresFromValues(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.roles[5] = RoleSnapshot{
		ID: 5, Name: "Ops Team", Description: "new desc",
		PermissionIDs: []string{"view_users", "manage_users"},
	}
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionUpdateRole, ResourceID: "5",
		Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Details: mustDetails(t, RoleDetails{
			RoleName: "Ops Team",
			Changes: &ChangeSet{
				Name: &StringChange{From: "Operations", To: "Ops Team"},
				Permissions: &PermissionsChange{
					From: []PermissionRef{{ID: "view_users"}},
					To:   []PermissionRef{{ID: "view_users"}, {ID: "manage_users"}},
				},
			},
		}),
	}
	rv, auditor, invalidator := newTestReverter(repo, store)

	result, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	require.NoError(t, err)

	require.Len(t, store.restoreCalls, 1)
	restore := store.restoreCalls[0]
	require.NotNil(t, restore.Name)
	assert.Equal(t, "Operations", *restore.Name)
	assert.Nil(t, restore.Description, "unchanged fields must not be touched")
	assert.True(t, restore.SetPermissions)
	assert.Equal(t, []string{"view_users"}, restore.PermissionIDs)
	assert.False(t, restore.SetUsers)

	require.NotNil(t, result.Role)
	assert.Equal(t, "Operations", result.Role.Name)
	assert.Equal(t, 1, invalidator.all)

	require.Len(t, auditor.drafts, 1)
	assert.Equal(t, ActionRevertUpdateRole, auditor.drafts[0].Action)
	assert.Equal(t, SeverityWarning, auditor.drafts[0].Severity)
}

func TestRevertUpdateRejectsEmptyChanges(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.roles[5] = RoleSnapshot{ID: 5, Name: "Ops"}
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionUpdateRole, ResourceID: "5",
		Details: mustDetails(t, RoleDetails{RoleName: "Ops"}),
	}
	rv, _, _ := newTestReverter(repo, store)

	_, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	assert.ErrorIs(t, err, ErrInvalidDetails)
	assert.Empty(t, store.restoreCalls)
}

func TestRevertDeleteRecreatesRole(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.catalog["view_users"] = struct{}{}
	store.catalog["view_roles"] = struct{}{}
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionDeleteRole, ResourceID: "5",
		Timestamp: time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC),
		Details: mustDetails(t, RoleDetails{
			RoleName:    "Contractors",
			Description: "external staff",
			Permissions: []PermissionRef{{ID: "view_users"}, {ID: "view_roles"}},
		}),
	}
	rv, auditor, _ := newTestReverter(repo, store)

	result, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	require.NoError(t, err)

	require.NotNil(t, result.Role)
	assert.Equal(t, "Contractors", result.Role.Name)
	assert.ElementsMatch(t, []string{"view_users", "view_roles"}, result.Role.PermissionIDs)

	require.Len(t, auditor.drafts, 1)
	draft := auditor.drafts[0]
	assert.Equal(t, ActionRevertDeleteRole, draft.Action)
	assert.Equal(t, SeverityInfo, draft.Severity)
	details := draft.Details.(RoleDetails)
	assert.Equal(t, 2, details.RestoredPermissions)
	assert.Empty(t, details.SkippedPermissionIDs)
}

func TestRevertDeleteSkipsMissingCatalogEntries(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.catalog["view_users"] = struct{}{}
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionDeleteRole, ResourceID: "5",
		Details: mustDetails(t, RoleDetails{
			RoleName:    "Contractors",
			Permissions: []PermissionRef{{ID: "view_users"}, {ID: "long_gone"}},
		}),
	}
	rv, auditor, _ := newTestReverter(repo, store)

	result, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, []string{"view_users"}, result.Role.PermissionIDs)

	details := auditor.drafts[0].Details.(RoleDetails)
	assert.Equal(t, 1, details.RestoredPermissions)
	assert.Equal(t, []string{"long_gone"}, details.SkippedPermissionIDs)
}

func TestRevertDeleteBlockedByNameCollision(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.roles[8] = RoleSnapshot{ID: 8, Name: "Contractors"}
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionDeleteRole, ResourceID: "5",
		Details: mustDetails(t, RoleDetails{RoleName: "Contractors"}),
	}
	rv, auditor, _ := newTestReverter(repo, store)

	_, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	var collision NameCollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "Contractors", collision.Name)
	assert.Empty(t, auditor.drafts)
}

func TestRevertSucceedsWhenAuditWriteFails(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.roles[5] = RoleSnapshot{ID: 5, Name: "Interns"}
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionCreateRole, ResourceID: "5",
		Details: mustDetails(t, RoleDetails{RoleName: "Interns"}),
	}
	auditor := &recordingAuditor{fail: true}
	rv := NewReverter(repo, store, auditor, &countingInvalidator{}, nil)

	result, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	require.NoError(t, err, "audit failures must not fail the revert")
	assert.NotNil(t, result)
}

func TestRevertRoundTripCreateThenRevert(t *testing.T) {
	repo := newMockAuditRepo()
	store := newMockRoleStore()
	store.roles[5] = RoleSnapshot{ID: 5, Name: "Interns"}
	repo.entries[1] = Entry{
		ID: 1, Category: CategoryRoleManagement, Action: ActionCreateRole, ResourceID: "5",
		Details: mustDetails(t, RoleDetails{RoleName: "Interns"}),
	}
	rv, auditor, _ := newTestReverter(repo, store)

	_, err := rv.RevertRoleAudit(context.Background(), 1, nil, RequestMeta{})
	require.NoError(t, err)

	// Feed the produced revert entry back in; it must be refused.
	draft := auditor.drafts[0]
	raw, err := json.Marshal(draft.Details)
	require.NoError(t, err)
	repo.entries[2] = Entry{
		ID: 2, Category: CategoryRoleManagement, Action: draft.Action,
		ResourceID: draft.ResourceID, Details: raw,
	}
	_, err = rv.RevertRoleAudit(context.Background(), 2, nil, RequestMeta{})
	assert.ErrorIs(t, err, ErrNotRevertible)
}

func TestRevertKindCoversAllRevertibleActions(t *testing.T) {
	for _, action := range RevertibleActions() {
		_, ok := revertKindFor(action)
		assert.True(t, ok, fmt.Sprintf("action %s must map to a revert kind", action))
	}
	_, ok := revertKindFor("LOGIN")
	assert.False(t, ok)
}
