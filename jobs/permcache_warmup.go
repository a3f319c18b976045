package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-hr/meridian-hr/internal/rbac"
)

const warmupConcurrency = 8

// PermissionCacheWarmupJob loads effective permissions for active users into
// the local cache so the first authorized request after a deploy does not pay
// the lookup cost.
type PermissionCacheWarmupJob struct {
	Source rbac.PermissionSource
	Cache  *rbac.PermissionCache
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewPermissionCacheWarmupJob wires dependencies for the warmup handler.
func NewPermissionCacheWarmupJob(source rbac.PermissionSource, cache *rbac.PermissionCache, pool *pgxpool.Pool, logger *slog.Logger) *PermissionCacheWarmupJob {
	return &PermissionCacheWarmupJob{Source: source, Cache: cache, Pool: pool, Logger: logger}
}

// Handle processes permcache warmup tasks.
func (j *PermissionCacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Cache == nil {
		return errors.New("permcache warmup: handler not configured")
	}
	var payload PermissionCacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	userIDs := payload.UserIDs
	if len(userIDs) == 0 {
		ids, err := j.activeUserIDs(ctx)
		if err != nil {
			j.logger().Error("load warmup users", slog.Any("error", err))
			return err
		}
		userIDs = ids
	}

	var warmed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			ids, err := j.Source.EffectivePermissionIDs(gctx, userID)
			if err != nil {
				j.logger().Warn("warm user permissions", slog.Int64("user_id", userID), slog.Any("error", err))
				return nil
			}
			j.Cache.Put(userID, ids)
			warmed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	j.logger().Info("permission cache warmed", slog.Int64("users", warmed.Load()))
	return nil
}

func (j *PermissionCacheWarmupJob) activeUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := j.Pool.Query(ctx, `SELECT id FROM users WHERE is_active AND role_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *PermissionCacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
