package rbac

import (
	"sync"
	"time"
)

// PermissionCache keeps resolved permission-id sets per user in process
// memory so authorization checks do not hit the store on every request.
// Entries older than the TTL are treated as absent. The cache is safe for
// concurrent use; Put is last-writer-wins.
type PermissionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	ids      []string
	storedAt time.Time
}

// NewPermissionCache builds a cache with the given TTL.
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return NewPermissionCacheWithClock(ttl, time.Now)
}

// NewPermissionCacheWithClock builds a cache with an injected clock so TTL
// expiry is testable.
func NewPermissionCacheWithClock(ttl time.Duration, now func() time.Time) *PermissionCache {
	if now == nil {
		now = time.Now
	}
	return &PermissionCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[int64]cacheEntry),
	}
}

// Get returns the cached permission ids for a user. The second return is
// false when no entry exists or the entry has outlived the TTL.
func (c *PermissionCache) Get(userID int64) ([]string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		return nil, false
	}
	ids := make([]string, len(entry.ids))
	copy(ids, entry.ids)
	return ids, true
}

// Put stores the permission ids for a user, overwriting any prior entry.
func (c *PermissionCache) Put(userID int64, ids []string) {
	stored := make([]string, len(ids))
	copy(stored, ids)
	c.mu.Lock()
	c.entries[userID] = cacheEntry{ids: stored, storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate removes the entry for a single user.
func (c *PermissionCache) Invalidate(userID int64) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// InvalidateAll clears the entire cache.
func (c *PermissionCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[int64]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *PermissionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL exposes the configured entry lifetime.
func (c *PermissionCache) TTL() time.Duration {
	return c.ttl
}
