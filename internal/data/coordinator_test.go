package data

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, tiers *Tiers, poll time.Duration) *Coordinator {
	t.Helper()
	c := NewCoordinator(context.Background(), "test", tiers, CoordinatorConfig{PollInterval: poll, Metrics: NewMetrics()})
	t.Cleanup(c.Close)
	return c
}

func static(payload string) FetchFunc {
	return func(context.Context) ([]byte, error) { return []byte(payload), nil }
}

func failing(context.Context) ([]byte, error) { return nil, errNetwork }

// gated blocks until release is closed.
func gated(payload string, started chan<- struct{}, release <-chan struct{}) FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
			return []byte(payload), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestCoordinatorLoadServesMemoryImmediately(t *testing.T) {
	tiers, _ := newTestTiers(t)
	key := NewKey(ResourcePosts, "", nil)
	tiers.Memory.Set(key.String(), []byte(`"cached"`), time.Now())

	c := newTestCoordinator(t, tiers, 0)
	release := make(chan struct{})
	snap := c.Load(context.Background(), key, gated(`"fresh"`, nil, release))

	require.True(t, snap.HasData)
	assert.Equal(t, SourceMemory, snap.Source)
	assert.JSONEq(t, `"cached"`, string(snap.Entry.Payload))

	close(release)
	c.Wait()
	cur, _ := c.Current(key)
	assert.Equal(t, SourceNetwork, cur.Source)
	assert.JSONEq(t, `"fresh"`, string(cur.Entry.Payload))
}

func TestCoordinatorLoadSurfacesPersistentHit(t *testing.T) {
	tiers, _ := newTestTiers(t)
	key := NewKey(ResourcePosts, "", nil)
	require.True(t, tiers.Persistent.Set(context.Background(), key.String(), Entry{Payload: []byte(`"disk"`), StoredAt: time.Now().Add(-time.Hour)}))

	c := newTestCoordinator(t, tiers, 0)
	got := make(chan Snapshot, 4)
	c.Subscribe(func(s Snapshot) { got <- s })

	release := make(chan struct{})
	snap := c.Load(context.Background(), key, gated(`"net"`, nil, release))
	assert.False(t, snap.HasData)

	select {
	case s := <-got:
		assert.Equal(t, SourcePersistent, s.Source)
		assert.JSONEq(t, `"disk"`, string(s.Entry.Payload))
	case <-time.After(time.Second):
		t.Fatal("persistent hit not surfaced")
	}

	// The persistent hit also warms the memory tier.
	e, ok := tiers.Memory.Get(key.String())
	require.True(t, ok)
	assert.JSONEq(t, `"disk"`, string(e.Payload))

	close(release)
	select {
	case s := <-got:
		assert.Equal(t, SourceNetwork, s.Source)
	case <-time.After(time.Second):
		t.Fatal("network result not surfaced")
	}
}

func TestCoordinatorSuccessWritesBothTiers(t *testing.T) {
	tiers, _ := newTestTiers(t)
	c := newTestCoordinator(t, tiers, 0)
	key := NewKey(ResourcePosts, "", nil)

	snap := c.Revalidate(context.Background(), key, static(`{"items":[]}`))
	assert.Equal(t, Online, snap.State)
	assert.NoError(t, snap.Err)

	mem, ok := tiers.Memory.Get(key.String())
	require.True(t, ok)
	disk, ok := tiers.Persistent.Get(context.Background(), key.String())
	require.True(t, ok)
	assert.JSONEq(t, `{"items":[]}`, string(mem.Payload))
	assert.True(t, mem.StoredAt.Equal(disk.StoredAt))
}

func TestCoordinatorFailureKeepsLastGoodData(t *testing.T) {
	tiers, _ := newTestTiers(t)
	c := newTestCoordinator(t, tiers, 0)
	key := NewKey(ResourcePosts, "", nil)

	good := c.Revalidate(context.Background(), key, static(`"good"`))
	bad := c.Refresh(context.Background(), key, failing)

	assert.Equal(t, Offline, bad.State)
	assert.ErrorIs(t, bad.Err, errNetwork)
	assert.True(t, bad.HasData)
	assert.Equal(t, good.Entry, bad.Entry)

	cur, _ := c.Current(key)
	assert.Equal(t, good.Entry, cur.Entry)
	e, _ := tiers.Memory.Get(key.String())
	assert.Equal(t, good.Entry, e)
}

func TestCoordinatorFailureWithoutDataIsNotFatal(t *testing.T) {
	c := newTestCoordinator(t, nil, 0)
	snap := c.Revalidate(context.Background(), NewKey(ResourcePosts, "", nil), failing)
	assert.False(t, snap.HasData)
	assert.Equal(t, Offline, snap.State)
}

func TestCoordinatorStorageFailureIsMiss(t *testing.T) {
	tiers := NewTiers(NewMemoryCache(), brokenStore{}, nil)
	c := newTestCoordinator(t, tiers, 0)

	snap := c.Load(context.Background(), NewKey(ResourcePosts, "", nil), static(`"net"`))
	assert.False(t, snap.HasData)
	c.Wait()

	cur, ok := c.Current(NewKey(ResourcePosts, "", nil))
	require.True(t, ok)
	assert.Equal(t, SourceNetwork, cur.Source)
	assert.Equal(t, Online, cur.State)
}

func TestCoordinatorPersistentNeverOverwritesNewer(t *testing.T) {
	tiers, _ := newTestTiers(t)
	c := newTestCoordinator(t, tiers, 0)
	key := NewKey(ResourcePosts, "", nil)

	c.Revalidate(context.Background(), key, static(`"net"`))
	require.True(t, tiers.Persistent.Set(context.Background(), key.String(), Entry{Payload: []byte(`"old"`), StoredAt: time.Now().Add(-time.Hour)}))
	c.readPersistent(context.Background(), 0, key.String())

	cur, _ := c.Current(key)
	assert.JSONEq(t, `"net"`, string(cur.Entry.Payload))
	assert.Equal(t, SourceNetwork, cur.Source)
}

func TestCoordinatorRefreshBypassesInFlightFetch(t *testing.T) {
	c := newTestCoordinator(t, nil, 0)
	key := NewKey(ResourcePosts, "", nil)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	c.Load(context.Background(), key, gated(`"slow"`, started, release))
	<-started

	snap := c.Refresh(context.Background(), key, static(`"refreshed"`))
	assert.JSONEq(t, `"refreshed"`, string(snap.Entry.Payload))

	close(release)
	c.Wait()
}

func TestCoordinatorLastCompletionWins(t *testing.T) {
	c := newTestCoordinator(t, nil, 0)
	key := NewKey(ResourcePosts, "", nil)

	firstStarted := make(chan struct{}, 1)
	releaseFirst := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Refresh(context.Background(), key, gated(`"dispatched-first"`, firstStarted, releaseFirst))
	}()
	<-firstStarted

	// Dispatched second, completes first.
	c.Refresh(context.Background(), key, static(`"dispatched-second"`))
	close(releaseFirst)
	wg.Wait()

	cur, _ := c.Current(key)
	assert.JSONEq(t, `"dispatched-first"`, string(cur.Entry.Payload))
}

func TestCoordinatorIgnoresCompletionsAfterClose(t *testing.T) {
	tiers, _ := newTestTiers(t)
	c := NewCoordinator(context.Background(), "test", tiers, CoordinatorConfig{})
	key := NewKey(ResourcePosts, "", nil)

	var notified atomic.Int32
	c.Subscribe(func(Snapshot) { notified.Add(1) })

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	late := func(ctx context.Context) ([]byte, error) {
		started <- struct{}{}
		<-release // ignores cancellation on purpose
		return []byte(`"late"`), nil
	}
	c.Load(context.Background(), key, late)
	<-started

	c.Close()
	close(release)
	c.Wait()

	assert.Zero(t, notified.Load())
	_, ok := tiers.Memory.Get(key.String())
	assert.False(t, ok)
	_, ok = c.Current(key)
	assert.False(t, ok)

	// Further calls are no-ops.
	assert.False(t, c.Load(context.Background(), key, static(`"x"`)).HasData)
}

func TestCoordinatorCloseCancelsInFlightFetch(t *testing.T) {
	c := NewCoordinator(context.Background(), "test", nil, CoordinatorConfig{})
	started := make(chan struct{}, 1)
	c.Load(context.Background(), NewKey(ResourcePosts, "", nil), gated(`"never"`, started, nil))
	<-started
	c.Close()

	done := make(chan struct{})
	go func() { c.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("in-flight fetch not canceled")
	}
}

func TestCoordinatorPollsLiveKeysWhileOnline(t *testing.T) {
	c := newTestCoordinator(t, nil, 5*time.Millisecond)
	key := NewKey(ResourcePosts, "", nil)

	var calls atomic.Int32
	var fail atomic.Bool
	fetch := func(context.Context) ([]byte, error) {
		calls.Add(1)
		if fail.Load() {
			return nil, errNetwork
		}
		return []byte(`"ok"`), nil
	}

	c.Watch(key, fetch)
	assert.Equal(t, []string{key.String()}, c.Live())
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	// A failed poll goes offline and suspends polling.
	fail.Store(true)
	assert.Eventually(t, func() bool { return !c.Poller().Running() }, time.Second, time.Millisecond)
	assert.Equal(t, Offline, c.Connectivity().State())
	settled := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, calls.Load())

	// A user retry that succeeds resumes polling.
	fail.Store(false)
	snaps := c.Retry(context.Background())
	require.Len(t, snaps, 1)
	assert.Equal(t, Online, snaps[0].State)
	assert.True(t, c.Poller().Running())
	assert.Eventually(t, func() bool { return calls.Load() > settled+2 }, time.Second, time.Millisecond)

	c.Unwatch(key)
	assert.False(t, c.Poller().Running())
}

func TestCoordinatorRetryOnlyRepeatsFailedKeys(t *testing.T) {
	c := newTestCoordinator(t, nil, 0)
	ok := NewKey(ResourcePosts, "", nil)
	bad := ok.WithPage(2)

	c.Revalidate(context.Background(), ok, static(`"ok"`))
	c.Revalidate(context.Background(), bad, failing)

	snaps := c.Retry(context.Background())
	require.Len(t, snaps, 1)
	assert.Equal(t, bad.String(), snaps[0].Key)
}

func TestCoordinatorCoalescesBackgroundFetches(t *testing.T) {
	c := newTestCoordinator(t, nil, 0)
	key := NewKey(ResourcePosts, "", nil)

	var calls atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			started <- struct{}{}
		}
		<-release
		return []byte(`"x"`), nil
	}

	c.Load(context.Background(), key, fetch)
	<-started
	done := make(chan Snapshot, 1)
	go func() { done <- c.Revalidate(context.Background(), key, fetch) }()
	time.Sleep(10 * time.Millisecond)
	close(release)

	snap := <-done
	c.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.JSONEq(t, `"x"`, string(snap.Entry.Payload))
}

func TestCoordinatorRecordsMetrics(t *testing.T) {
	m := NewMetrics()
	c := NewCoordinator(context.Background(), "test", nil, CoordinatorConfig{Metrics: m})
	defer c.Close()
	key := NewKey(ResourcePosts, "", nil)

	c.Revalidate(context.Background(), key, static(`"x"`))
	c.Refresh(context.Background(), key, failing)

	stats, ok := m.Stats(key.String())
	require.True(t, ok)
	assert.Equal(t, 2, stats.FetchCount)
	assert.Equal(t, 1, stats.ErrorCount)
	assert.InDelta(t, 0.5, m.Summary().ErrorRate, 0.001)
}
