package data

import (
	"context"
	"log/slog"

	"github.com/kayteedberserker/feedsync/internal/store"
)

// PersistentCache adapts a store.Store into the persistent tier. Storage
// failures are logged and reported as misses; they never reach callers.
type PersistentCache struct {
	store  store.Store
	logger *slog.Logger
}

// NewPersistentCache wraps st. A nil store yields a tier that always misses.
func NewPersistentCache(st store.Store, logger *slog.Logger) *PersistentCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistentCache{store: st, logger: logger}
}

// Get reads the entry for key.
func (p *PersistentCache) Get(ctx context.Context, key string) (Entry, bool) {
	if p == nil || p.store == nil {
		return Entry{}, false
	}
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn("persistent cache read failed", "key", key, "error", err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	e, err := decodeEntry(raw)
	if err != nil {
		p.logger.Warn("persistent cache entry unreadable", "key", key, "error", err)
		return Entry{}, false
	}
	return e, true
}

// Set writes the entry for key, reporting whether it landed.
func (p *PersistentCache) Set(ctx context.Context, key string, e Entry) bool {
	if p == nil || p.store == nil {
		return false
	}
	raw, err := encodeEntry(e)
	if err != nil {
		p.logger.Warn("persistent cache encode failed", "key", key, "error", err)
		return false
	}
	if err := p.store.Set(ctx, key, raw); err != nil {
		p.logger.Warn("persistent cache write failed", "key", key, "error", err)
		return false
	}
	return true
}

// Tiers bundles the two cache tiers shared by every coordinator.
type Tiers struct {
	Memory     *MemoryCache
	Persistent *PersistentCache
	logger     *slog.Logger
}

// NewTiers builds the shared tiers over st.
func NewTiers(memory *MemoryCache, st store.Store, logger *slog.Logger) *Tiers {
	if memory == nil {
		memory = NewMemoryCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiers{
		Memory:     memory,
		Persistent: NewPersistentCache(st, logger),
		logger:     logger,
	}
}

// WatchPersistent drops memory entries when another process rewrites the
// same key in the persistent store, so the next load reads the newer value.
// Stores without change notification are ignored.
func (t *Tiers) WatchPersistent(ctx context.Context) error {
	if t.Persistent == nil {
		return nil
	}
	w, ok := t.Persistent.store.(store.Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, func(key string) {
		t.logger.Debug("persistent entry changed externally", "key", key)
		t.Memory.Invalidate(key)
	})
}
