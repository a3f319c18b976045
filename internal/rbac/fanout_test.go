package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFanoutPropagatesBumpAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)

	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = clientA.Close()
		_ = clientB.Close()
	})

	cacheA := NewPermissionCache(5 * time.Minute)
	cacheB := NewPermissionCache(5 * time.Minute)
	fanoutA := NewFanout(clientA, cacheA, nil)
	fanoutB := NewFanout(clientB, cacheB, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = fanoutB.Listen(ctx)
	}()

	cacheB.Put(7, []string{"view_users"})

	// Republish until the subscriber has picked it up; the subscription is
	// established asynchronously.
	require.Eventually(t, func() bool {
		fanoutA.Invalidate(ctx, 7)
		_, ok := cacheB.Get(7)
		return !ok
	}, 2*time.Second, 20*time.Millisecond)

	cacheB.Put(1, []string{"a"})
	cacheB.Put(2, []string{"b"})
	require.Eventually(t, func() bool {
		fanoutA.InvalidateAll(ctx)
		return cacheB.Len() == 0
	}, 2*time.Second, 20*time.Millisecond)
}
