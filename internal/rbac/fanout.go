package rbac

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const bumpChannel = "rbac.bump"

// bumpAll is published when an unknown set of users is affected.
const bumpAll = "*"

// Invalidator propagates permission-cache invalidation. Role mutation
// handlers call it synchronously before reporting success.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64)
	InvalidateAll(ctx context.Context)
}

// Fanout invalidates the local cache and mirrors the invalidation to other
// instances over a redis channel. With a nil client it degrades to
// local-only invalidation.
type Fanout struct {
	client *redis.Client
	cache  *PermissionCache
	logger *slog.Logger
}

// NewFanout builds a Fanout around the given cache.
func NewFanout(client *redis.Client, cache *PermissionCache, logger *slog.Logger) *Fanout {
	return &Fanout{client: client, cache: cache, logger: logger}
}

// Invalidate drops one user's entry locally and publishes the bump.
func (f *Fanout) Invalidate(ctx context.Context, userID int64) {
	f.cache.Invalidate(userID)
	f.publish(ctx, strconv.FormatInt(userID, 10))
}

// InvalidateAll clears the local cache and publishes a full bump.
func (f *Fanout) InvalidateAll(ctx context.Context) {
	f.cache.InvalidateAll()
	f.publish(ctx, bumpAll)
}

func (f *Fanout) publish(ctx context.Context, payload string) {
	if f.client == nil {
		return
	}
	if err := f.client.Publish(ctx, bumpChannel, payload).Err(); err != nil && f.logger != nil {
		f.logger.Warn("rbac bump publish", slog.Any("error", err))
	}
}

// Listen applies bumps published by other instances until ctx is done.
func (f *Fanout) Listen(ctx context.Context) error {
	if f.client == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	sub := f.client.Subscribe(ctx, bumpChannel)
	defer func() {
		_ = sub.Close()
	}()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f.apply(msg.Payload)
		}
	}
}

func (f *Fanout) apply(payload string) {
	if payload == bumpAll {
		f.cache.InvalidateAll()
		return
	}
	userID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("rbac bump payload", slog.String("payload", payload))
		}
		return
	}
	f.cache.Invalidate(userID)
}
