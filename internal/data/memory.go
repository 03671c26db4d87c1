package data

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is the process-wide in-memory tier. It is constructed once at
// startup and passed by reference to every coordinator; it is consulted
// before the persistent tier and is empty at process start.
type MemoryCache struct {
	mu    sync.Mutex // serializes read-modify-write of StoredAt
	items *gocache.Cache
}

// NewMemoryCache creates an empty memory tier. Entries never expire on
// their own; they are replaced by newer fetches or invalidated explicitly.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns the entry for key, if present.
func (c *MemoryCache) Get(key string) (Entry, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return Entry{}, false
	}
	e, ok := v.(Entry)
	return e, ok
}

// Set stores payload for key at now. If the previous entry for key carries
// a later timestamp (clock moved backwards), the new entry takes that
// timestamp instead so StoredAt never decreases.
func (c *MemoryCache) Set(key string, payload []byte, now time.Time) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.Get(key); ok && prev.StoredAt.After(now) {
		now = prev.StoredAt
	}
	e := Entry{Payload: append([]byte(nil), payload...), StoredAt: now}
	c.items.Set(key, e, gocache.NoExpiration)
	return e
}

// Restore seeds key with an entry read from the persistent tier. It never
// replaces an entry that is as new or newer.
func (c *MemoryCache) Restore(key string, e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.Get(key); ok && !prev.StoredAt.Before(e.StoredAt) {
		return false
	}
	c.items.Set(key, e, gocache.NoExpiration)
	return true
}

// Invalidate removes a specific key.
func (c *MemoryCache) Invalidate(key string) {
	c.items.Delete(key)
}

// Clear removes all entries.
func (c *MemoryCache) Clear() {
	c.items.Flush()
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	return c.items.ItemCount()
}
