package rbac

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestPermissionCacheHitWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cache := NewPermissionCacheWithClock(5*time.Minute, clock.Now)

	cache.Put(7, []string{"view_users", "view_roles"})

	clock.Advance(4 * time.Minute)
	ids, ok := cache.Get(7)
	require.True(t, ok)
	assert.Equal(t, []string{"view_users", "view_roles"}, ids)
}

func TestPermissionCacheExpiresAtTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cache := NewPermissionCacheWithClock(5*time.Minute, clock.Now)

	cache.Put(7, []string{"view_users"})

	clock.Advance(5 * time.Minute)
	_, ok := cache.Get(7)
	assert.False(t, ok, "entry exactly at TTL age should be absent")
}

func TestPermissionCacheMissForUnknownUser(t *testing.T) {
	cache := NewPermissionCache(5 * time.Minute)
	_, ok := cache.Get(42)
	assert.False(t, ok)
}

func TestPermissionCachePutOverwrites(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cache := NewPermissionCacheWithClock(5*time.Minute, clock.Now)

	cache.Put(7, []string{"view_users"})
	clock.Advance(4 * time.Minute)
	cache.Put(7, []string{"manage_roles"})

	clock.Advance(4 * time.Minute)
	ids, ok := cache.Get(7)
	require.True(t, ok, "overwrite should reset the entry age")
	assert.Equal(t, []string{"manage_roles"}, ids)
}

func TestPermissionCacheInvalidate(t *testing.T) {
	cache := NewPermissionCache(5 * time.Minute)
	cache.Put(1, []string{"a"})
	cache.Put(2, []string{"b"})

	cache.Invalidate(1)
	_, ok := cache.Get(1)
	assert.False(t, ok)
	_, ok = cache.Get(2)
	assert.True(t, ok)

	cache.InvalidateAll()
	assert.Equal(t, 0, cache.Len())
}

func TestPermissionCacheGetReturnsCopy(t *testing.T) {
	cache := NewPermissionCache(5 * time.Minute)
	cache.Put(1, []string{"a", "b"})

	ids, ok := cache.Get(1)
	require.True(t, ok)
	ids[0] = "mutated"

	again, ok := cache.Get(1)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, again)
}
