package rbac

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	perms map[int64][]string
	err   error
	calls int
}

func (m *mockSource) EffectivePermissionIDs(ctx context.Context, userID int64) ([]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.perms[userID], nil
}

func newTestEngine(source *mockSource) (*Engine, *PermissionCache) {
	cache := NewPermissionCache(5 * time.Minute)
	engine := NewEngine(source, cache, slog.Default(), nil, Options{
		AdminRole:     "ADMIN",
		ElevatedRoles: []string{"ADMIN", "HR", "MANAGER"},
	})
	return engine, cache
}

func TestAuthorizeDeniesNilPrincipal(t *testing.T) {
	engine, _ := newTestEngine(&mockSource{})

	decision := engine.Authorize(context.Background(), nil, RoleIn{Names: []string{"ADMIN"}})
	require.False(t, decision.Allow)
	assert.Equal(t, ReasonUnauthenticated, decision.Reason)
}

func TestRoleInMatchesExactName(t *testing.T) {
	engine, _ := newTestEngine(&mockSource{})
	hr := &Principal{ID: 1, Role: "HR"}

	assert.True(t, engine.Authorize(context.Background(), hr, RoleIn{Names: []string{"ADMIN", "HR"}}).Allow)
	assert.False(t, engine.Authorize(context.Background(), hr, RoleIn{Names: []string{"ADMIN"}}).Allow)
}

func TestRoleInNoAdminBypass(t *testing.T) {
	engine, _ := newTestEngine(&mockSource{})
	admin := &Principal{ID: 1, Role: "ADMIN"}

	decision := engine.Authorize(context.Background(), admin, RoleIn{Names: []string{"HR"}})
	assert.False(t, decision.Allow, "role checks match literally, no admin bypass")
}

func TestPermissionCheckAllMode(t *testing.T) {
	source := &mockSource{perms: map[int64][]string{1: {"view_users", "view_roles"}}}
	engine, _ := newTestEngine(source)
	p := &Principal{ID: 1, Role: "EMPLOYEE"}

	all := PermissionCheck{IDs: []string{"view_users", "view_roles"}, Mode: ModeAll}
	assert.True(t, engine.Authorize(context.Background(), p, all).Allow)

	missing := PermissionCheck{IDs: []string{"view_users", "manage_roles"}, Mode: ModeAll}
	assert.False(t, engine.Authorize(context.Background(), p, missing).Allow)
}

func TestPermissionCheckAnyMode(t *testing.T) {
	source := &mockSource{perms: map[int64][]string{1: {"view_users"}}}
	engine, _ := newTestEngine(source)
	p := &Principal{ID: 1, Role: "EMPLOYEE"}

	any := PermissionCheck{IDs: []string{"manage_roles", "view_users"}, Mode: ModeAny}
	assert.True(t, engine.Authorize(context.Background(), p, any).Allow)

	none := PermissionCheck{IDs: []string{"manage_roles", "manage_users"}, Mode: ModeAny}
	assert.False(t, engine.Authorize(context.Background(), p, none).Allow)
}

func TestPermissionCheckFailsClosedOnSourceError(t *testing.T) {
	source := &mockSource{err: errors.New("store down")}
	engine, _ := newTestEngine(source)
	p := &Principal{ID: 1, Role: "EMPLOYEE"}

	decision := engine.Authorize(context.Background(), p, PermissionCheck{IDs: []string{"view_users"}, Mode: ModeAny})
	require.False(t, decision.Allow)
	assert.Equal(t, "permission lookup failed", decision.Reason)
}

func TestPermissionCheckUsesCache(t *testing.T) {
	source := &mockSource{perms: map[int64][]string{1: {"view_users"}}}
	engine, _ := newTestEngine(source)
	p := &Principal{ID: 1, Role: "EMPLOYEE"}
	req := PermissionCheck{IDs: []string{"view_users"}, Mode: ModeAll}

	require.True(t, engine.Authorize(context.Background(), p, req).Allow)
	require.True(t, engine.Authorize(context.Background(), p, req).Allow)
	assert.Equal(t, 1, source.calls, "second check should be served from cache")
}

func TestPermissionCheckRefreshesAfterInvalidation(t *testing.T) {
	source := &mockSource{perms: map[int64][]string{1: {"view_users"}}}
	engine, cache := newTestEngine(source)
	p := &Principal{ID: 1, Role: "EMPLOYEE"}
	req := PermissionCheck{IDs: []string{"manage_roles"}, Mode: ModeAll}

	assert.False(t, engine.Authorize(context.Background(), p, req).Allow)

	source.perms[1] = []string{"manage_roles"}
	cache.Invalidate(1)
	assert.True(t, engine.Authorize(context.Background(), p, req).Allow)
}

func TestOwnerOrElevated(t *testing.T) {
	engine, _ := newTestEngine(&mockSource{})
	ctx := context.Background()

	admin := &Principal{ID: 1, Role: "ADMIN"}
	hr := &Principal{ID: 2, Role: "HR"}
	employee := &Principal{ID: 3, Role: "EMPLOYEE"}

	assert.True(t, engine.Authorize(ctx, admin, OwnerOrElevated{TargetID: 99}).Allow)
	assert.True(t, engine.Authorize(ctx, admin, OwnerOrElevated{TargetID: 1}).Allow)

	assert.True(t, engine.Authorize(ctx, hr, OwnerOrElevated{TargetID: 99}).Allow)
	assert.True(t, engine.Authorize(ctx, hr, OwnerOrElevated{TargetID: 2}).Allow)

	assert.True(t, engine.Authorize(ctx, employee, OwnerOrElevated{TargetID: 3}).Allow)
	assert.False(t, engine.Authorize(ctx, employee, OwnerOrElevated{TargetID: 99}).Allow)
}

func TestDepartmentIn(t *testing.T) {
	engine, _ := newTestEngine(&mockSource{})
	ctx := context.Background()

	admin := &Principal{ID: 1, Role: "ADMIN", Department: "IT"}
	eng := &Principal{ID: 2, Role: "EMPLOYEE", Department: "Engineering"}

	assert.True(t, engine.Authorize(ctx, admin, DepartmentIn{Names: []string{"People"}}).Allow, "admin bypasses department checks")
	assert.True(t, engine.Authorize(ctx, eng, DepartmentIn{Names: []string{"Engineering", "People"}}).Allow)
	assert.False(t, engine.Authorize(ctx, eng, DepartmentIn{Names: []string{"People"}}).Allow)
}
