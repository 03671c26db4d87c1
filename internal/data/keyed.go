package data

import "sync"

// KeyedFeeds manages independent feeds keyed by a tab identity: one feed
// per category, author or clan. Each feed owns its own coordinator.
type KeyedFeeds[K comparable] struct {
	mu      sync.RWMutex
	feeds   map[K]*Feed
	factory func(key K) *Feed
}

// NewKeyedFeeds creates a KeyedFeeds with the given factory for creating
// new feeds on demand.
func NewKeyedFeeds[K comparable](factory func(key K) *Feed) *KeyedFeeds[K] {
	return &KeyedFeeds[K]{
		feeds:   make(map[K]*Feed),
		factory: factory,
	}
}

// Get returns the Feed for the given key, creating one if it doesn't exist.
func (kf *KeyedFeeds[K]) Get(key K) *Feed {
	kf.mu.RLock()
	if f, ok := kf.feeds[key]; ok {
		kf.mu.RUnlock()
		return f
	}
	kf.mu.RUnlock()

	kf.mu.Lock()
	defer kf.mu.Unlock()
	if f, ok := kf.feeds[key]; ok {
		return f
	}
	f := kf.factory(key)
	kf.feeds[key] = f
	return f
}

// Has returns true if a feed exists for the given key.
func (kf *KeyedFeeds[K]) Has(key K) bool {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	_, ok := kf.feeds[key]
	return ok
}

// Len returns the number of feeds created so far.
func (kf *KeyedFeeds[K]) Len() int {
	kf.mu.RLock()
	defer kf.mu.RUnlock()
	return len(kf.feeds)
}

// Drop closes and forgets the feed for key, if any.
func (kf *KeyedFeeds[K]) Drop(key K) {
	kf.mu.Lock()
	f, ok := kf.feeds[key]
	delete(kf.feeds, key)
	kf.mu.Unlock()
	if ok {
		f.Close()
	}
}

// Close closes every feed and forgets them.
func (kf *KeyedFeeds[K]) Close() {
	kf.mu.Lock()
	feeds := kf.feeds
	kf.feeds = make(map[K]*Feed)
	kf.mu.Unlock()
	for _, f := range feeds {
		f.Close()
	}
}
