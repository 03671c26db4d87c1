package data

import (
	"context"
	"fmt"
	"sync"
)

// Closer is anything a Realm can tear down: *Feed, *Coordinator and
// *KeyedFeeds all qualify.
type Closer interface {
	Close()
}

// Realm manages a group of feeds with a shared lifecycle. Teardown cancels
// the realm context, which ends every owned feed's in-flight fetches, and
// closes the feeds so late completions are ignored.
type Realm struct {
	mu     sync.RWMutex
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	owned  map[string]Closer
}

// NewRealm creates a realm with a cancellable context derived from parent.
func NewRealm(name string, parent context.Context) *Realm { //nolint:revive // context-as-argument: name is the primary differentiator
	ctx, cancel := context.WithCancel(parent)
	return &Realm{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		owned:  make(map[string]Closer),
	}
}

// Name returns the realm's identifier.
func (r *Realm) Name() string { return r.name }

// Context returns the realm's context. Canceled on teardown.
// Pass this to NewFeed so feeds die with the realm.
func (r *Realm) Context() context.Context { return r.ctx }

// Register adds c to this realm for lifecycle management.
func (r *Realm) Register(key string, c Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owned[key] = c
}

// Lookup returns a registered member by key, or nil if not found.
func (r *Realm) Lookup(key string) Closer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.owned[key]
}

// Teardown cancels the realm's context and closes every member.
// After teardown, the realm should not be reused.
func (r *Realm) Teardown() {
	r.cancel()
	r.mu.Lock()
	owned := r.owned
	r.owned = make(map[string]Closer)
	r.mu.Unlock()
	for _, c := range owned {
		c.Close()
	}
}

// RealmMember retrieves or creates a typed member within a realm.
// Each key maps to exactly one concrete type; callers must be consistent.
func RealmMember[C Closer](r *Realm, key string, create func(ctx context.Context) C) C {
	r.mu.RLock()
	if c, ok := r.owned[key]; ok {
		r.mu.RUnlock()
		return mustType[C](r, key, c)
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.owned[key]; ok {
		return mustType[C](r, key, c)
	}
	c := create(r.ctx)
	r.owned[key] = c
	return c
}

func mustType[C Closer](r *Realm, key string, c Closer) C {
	typed, ok := c.(C)
	if !ok {
		panic(fmt.Sprintf("realm %q: member %q has type %T, want %T", r.name, key, c, *new(C)))
	}
	return typed
}
