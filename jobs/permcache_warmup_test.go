package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
)

type stubSource struct {
	perms map[int64][]string
	calls int
}

func (s *stubSource) EffectivePermissionIDs(_ context.Context, userID int64) ([]string, error) {
	s.calls++
	ids, ok := s.perms[userID]
	if !ok {
		return nil, errors.New("no such user")
	}
	return ids, nil
}

type downSource struct{}

func (downSource) EffectivePermissionIDs(context.Context, int64) ([]string, error) {
	return nil, errors.New("store offline")
}

func runWarmup(t *testing.T, job *PermissionCacheWarmupJob, payload PermissionCacheWarmupPayload) {
	t.Helper()
	task, err := NewPermissionCacheWarmupTask(payload)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestWarmupFeedsAuthorizationCache(t *testing.T) {
	cache := rbac.NewPermissionCache(5 * time.Minute)
	source := &stubSource{perms: map[int64][]string{7: {"view_audit_logs"}}}
	job := NewPermissionCacheWarmupJob(source, cache, nil, slog.Default())

	runWarmup(t, job, PermissionCacheWarmupPayload{UserIDs: []int64{7}})

	// The engine resolves from the warmed cache even when the store is
	// unreachable, so a warmed entry is observable on the decision path.
	engine := rbac.NewEngine(downSource{}, cache, slog.Default(), nil, rbac.Options{})
	decision := engine.Authorize(context.Background(), &rbac.Principal{ID: 7, Role: "EMPLOYEE"},
		rbac.PermissionCheck{IDs: []string{"view_audit_logs"}, Mode: rbac.ModeAny})

	assert.True(t, decision.Allow, decision.Reason)
	assert.Equal(t, 1, source.calls)
}

func TestWarmupSkipsFailingUsers(t *testing.T) {
	cache := rbac.NewPermissionCache(5 * time.Minute)
	source := &stubSource{perms: map[int64][]string{7: {"view_users"}}}
	job := NewPermissionCacheWarmupJob(source, cache, nil, slog.Default())

	runWarmup(t, job, PermissionCacheWarmupPayload{UserIDs: []int64{7, 8}})

	assert.Equal(t, 1, cache.Len())
	ids, ok := cache.Get(7)
	require.True(t, ok)
	assert.Equal(t, []string{"view_users"}, ids)
}

func TestWarmupRejectsMalformedPayload(t *testing.T) {
	cache := rbac.NewPermissionCache(5 * time.Minute)
	job := NewPermissionCacheWarmupJob(&stubSource{}, cache, nil, slog.Default())

	task := asynq.NewTask(TaskPermissionCacheWarmup, []byte("{"))
	err := job.Handle(context.Background(), task)

	assert.ErrorIs(t, err, asynq.SkipRetry)
}
