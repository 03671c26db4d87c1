package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeCounter struct{ closed int }

func (c *closeCounter) Close() { c.closed++ }

func TestRealmNewAndContext(t *testing.T) {
	r := NewRealm("browse", context.Background())
	assert.Equal(t, "browse", r.Name())
	assert.NoError(t, r.Context().Err())
}

func TestRealmRegisterAndLookup(t *testing.T) {
	r := NewRealm("browse", context.Background())
	c := &closeCounter{}
	r.Register("tab", c)
	assert.Same(t, c, r.Lookup("tab"))
	assert.Nil(t, r.Lookup("missing"))
}

func TestRealmTeardownClosesMembers(t *testing.T) {
	r := NewRealm("browse", context.Background())
	ctx := r.Context()
	c := &closeCounter{}
	r.Register("tab", c)

	r.Teardown()
	assert.Error(t, ctx.Err())
	assert.Equal(t, 1, c.closed)
	assert.Nil(t, r.Lookup("tab"))
}

func TestRealmTeardownStopsFeeds(t *testing.T) {
	tiers, _ := newTestTiers(t)
	srv := newFakeServer()
	srv.set(1, idsPage(t, "a"))
	r := NewRealm("browse", context.Background())

	f := RealmMember(r, "posts", func(ctx context.Context) *Feed {
		return NewFeed(ctx, tiers, FeedConfig{Key: NewKey(ResourcePosts, "", nil), Fetch: srv.fetch})
	})
	f.Mount(context.Background())
	f.Wait()
	require.Len(t, f.Snapshot().Items, 1)

	r.Teardown()
	before := srv.total()
	f.Refresh(context.Background())
	assert.Equal(t, before, srv.total())
}

func TestRealmMemberReusesExisting(t *testing.T) {
	r := NewRealm("browse", context.Background())
	calls := 0
	create := func(context.Context) *closeCounter {
		calls++
		return &closeCounter{}
	}
	a := RealmMember(r, "x", create)
	b := RealmMember(r, "x", create)
	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
}

func TestRealmMemberTypeMismatchPanics(t *testing.T) {
	r := NewRealm("browse", context.Background())
	r.Register("x", &closeCounter{})
	assert.Panics(t, func() {
		RealmMember(r, "x", func(context.Context) *Feed { return nil })
	})
}
