package data

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const tracerName = "github.com/kayteedberserker/feedsync/internal/data"

// DefaultPollInterval is how often live keys are revalidated while online.
const DefaultPollInterval = 12 * time.Second

// FetchFunc retrieves the raw payload for one key from the network.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Listener receives every snapshot change a coordinator publishes.
type Listener func(Snapshot)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	PollInterval time.Duration // 0 disables polling
	Logger       *slog.Logger
	Metrics      *Metrics
	Tracer       trace.Tracer
}

// Coordinator resolves keys through the cache tiers and the network:
// memory first, then the persistent store, while always revalidating in
// the background. Fetch errors never escape; they become connectivity
// transitions and Snapshot.Err.
//
// One coordinator belongs to one feed. Completions for the same key are
// applied in the order they finish, so the last one to complete wins.
type Coordinator struct {
	mu        sync.Mutex
	applyMu   sync.Mutex // orders persistent writes and delivery like completions
	name      string
	tiers     *Tiers
	conn      *Connectivity
	poller    *Poller
	live      mapset.Set[string]
	fetchers  map[string]FetchFunc
	current   map[string]Snapshot
	failed    mapset.Set[string]
	listeners map[uint64]Listener
	nextID    uint64

	group      singleflight.Group
	generation uint64 // incremented on Close, used to discard late completions
	closed     atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewCoordinator creates a coordinator named name over the shared tiers.
// Its background work is bound to parent and to Close.
func NewCoordinator(parent context.Context, name string, tiers *Tiers, cfg CoordinatorConfig) *Coordinator { //nolint:revive // context-as-argument: parent scopes the coordinator lifetime
	if tiers == nil {
		tiers = NewTiers(nil, nil, cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		name:      name,
		tiers:     tiers,
		conn:      NewConnectivity(),
		live:      mapset.NewSet[string](),
		fetchers:  make(map[string]FetchFunc),
		current:   make(map[string]Snapshot),
		failed:    mapset.NewSet[string](),
		listeners: make(map[uint64]Listener),
		ctx:       ctx,
		cancel:    cancel,
		logger:    cfg.Logger.With("feed", name),
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}
	c.poller = NewPoller(cfg.PollInterval, c.poll)
	c.conn.OnChange(c.connectivityChanged)
	return c
}

// Name returns the coordinator's identifier.
func (c *Coordinator) Name() string { return c.name }

// Connectivity returns the coordinator's connectivity machine.
func (c *Coordinator) Connectivity() *Connectivity { return c.conn }

// Poller returns the revalidation poller.
func (c *Coordinator) Poller() *Poller { return c.poller }

// Subscribe registers l for every published snapshot and returns a func
// that removes it.
func (c *Coordinator) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Current returns the last snapshot published for key.
func (c *Coordinator) Current(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.current[key.String()]
	return s, ok
}

// Load returns the memory-tier value for key immediately (HasData is false
// on a miss). On a miss it reads the persistent tier in the background and
// publishes a hit. Either way it starts a background network fetch.
func (c *Coordinator) Load(ctx context.Context, key Key, fetch FetchFunc) Snapshot {
	k := key.String()
	snap := Snapshot{Key: k, State: c.conn.State()}

	gen, ok := c.register(k, fetch)
	if !ok {
		return snap
	}

	if e, ok := c.tiers.Memory.Get(k); ok {
		snap.Entry, snap.HasData, snap.Source = e, true, SourceMemory
		c.mu.Lock()
		if cur, ok := c.current[k]; !ok || !cur.HasData || cur.Entry.StoredAt.Before(e.StoredAt) {
			c.current[k] = snap
		}
		c.mu.Unlock()
	} else {
		c.goScoped(ctx, func(ctx context.Context) {
			c.readPersistent(ctx, gen, k)
		})
	}
	c.metrics.RecordServe(ServeEvent{Timestamp: time.Now(), Key: k, Quality: snap.Source.Quality()})

	c.goScoped(ctx, func(ctx context.Context) {
		c.revalidate(ctx, gen, k, fetch, false)
	})
	return snap
}

// Revalidate fetches key and waits for the outcome, sharing an in-flight
// background fetch of the same key when there is one.
func (c *Coordinator) Revalidate(ctx context.Context, key Key, fetch FetchFunc) Snapshot {
	k := key.String()
	gen, ok := c.register(k, fetch)
	if !ok {
		return Snapshot{Key: k, State: c.conn.State()}
	}
	return c.revalidate(ctx, gen, k, fetch, false)
}

// Refresh bypasses both tiers and any in-flight fetch: it always calls
// fetch and waits for the outcome. Success is written through both tiers.
func (c *Coordinator) Refresh(ctx context.Context, key Key, fetch FetchFunc) Snapshot {
	k := key.String()
	gen, ok := c.register(k, fetch)
	if !ok {
		return Snapshot{Key: k, State: c.conn.State()}
	}
	return c.revalidate(ctx, gen, k, fetch, true)
}

// Retry re-attempts every key whose latest fetch failed, waiting for all
// of them. It returns the resulting snapshots.
func (c *Coordinator) Retry(ctx context.Context) []Snapshot {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	type job struct {
		key   string
		fetch FetchFunc
	}
	var jobs []job
	for _, k := range c.failed.ToSlice() {
		if fn, ok := c.fetchers[k]; ok {
			jobs = append(jobs, job{key: k, fetch: fn})
		}
	}
	c.mu.Unlock()

	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, c.revalidate(ctx, gen, j.key, j.fetch, true))
	}
	return out
}

// Watch marks key live: while online it is re-fetched every poll interval.
func (c *Coordinator) Watch(key Key, fetch FetchFunc) {
	k := key.String()
	if _, ok := c.register(k, fetch); !ok {
		return
	}
	c.live.Add(k)
	if c.conn.Online() {
		c.poller.Start(c.ctx)
	}
}

// Unwatch stops polling key.
func (c *Coordinator) Unwatch(key Key) {
	c.live.Remove(key.String())
	if c.live.Cardinality() == 0 {
		c.poller.Stop()
	}
}

// Live returns the keys currently polled.
func (c *Coordinator) Live() []string {
	return c.live.ToSlice()
}

// Wait blocks until background loads started so far have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops polling, cancels in-flight fetches and makes every later
// completion a no-op. The coordinator cannot be reused.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return
	}
	c.closed.Store(true)
	c.generation++
	c.listeners = make(map[uint64]Listener)
	c.mu.Unlock()

	c.poller.Stop()
	c.cancel()
}

func (c *Coordinator) register(k string, fetch FetchFunc) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return 0, false
	}
	c.fetchers[k] = fetch
	return c.generation, true
}

// goScoped runs fn in a goroutine whose context ends with either ctx or
// the coordinator.
func (c *Coordinator) goScoped(ctx context.Context, fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		scoped, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()
		fn(scoped)
	}()
}

func (c *Coordinator) readPersistent(ctx context.Context, gen uint64, k string) {
	e, ok := c.tiers.Persistent.Get(ctx, k)
	if !ok {
		return
	}
	c.tiers.Memory.Restore(k, e)
	c.offer(gen, Snapshot{Key: k, Entry: e, HasData: true, Source: SourcePersistent})
}

// revalidate runs fetch and applies its outcome. bypass skips request
// coalescing so the caller always gets a brand-new response.
func (c *Coordinator) revalidate(ctx context.Context, gen uint64, k string, fetch FetchFunc, bypass bool) Snapshot {
	ctx, span := c.tracer.Start(ctx, "feed.fetch", trace.WithAttributes(
		attribute.String("feed.name", c.name),
		attribute.String("feed.key", k),
		attribute.Bool("feed.refresh", bypass),
	))
	defer span.End()

	start := time.Now()
	c.metrics.Record(FetchEvent{Timestamp: start, Key: k, EventType: FetchStart})

	var (
		payload []byte
		err     error
	)
	if bypass {
		c.group.Forget(k)
		payload, err = fetch(ctx)
	} else {
		var v any
		v, err, _ = c.group.Do(k, func() (any, error) {
			return fetch(ctx)
		})
		payload, _ = v.([]byte)
	}

	elapsed := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.Record(FetchEvent{Timestamp: time.Now(), Key: k, EventType: FetchError, Duration: elapsed})
	} else {
		span.SetAttributes(attribute.Int("feed.payload_bytes", len(payload)))
		c.metrics.Record(FetchEvent{Timestamp: time.Now(), Key: k, EventType: FetchComplete, Duration: elapsed, DataSize: len(payload)})
	}
	return c.complete(ctx, gen, k, payload, err)
}

// complete applies one fetch outcome. Outcomes are applied in completion
// order: connectivity, the memory tier and the current snapshot under mu,
// then the persistent write and listener delivery under applyMu, which is
// taken before mu is released. Completions after Close are ignored.
func (c *Coordinator) complete(ctx context.Context, gen uint64, k string, payload []byte, err error) Snapshot {
	c.mu.Lock()
	if c.closed.Load() || gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("discarding fetch completion after close", "key", k)
		return Snapshot{Key: k, State: c.conn.State()}
	}

	var snap Snapshot
	if err != nil {
		c.failed.Add(k)
		snap = c.current[k]
		snap.Key, snap.Err = k, err
	} else {
		c.failed.Remove(k)
		entry := c.tiers.Memory.Set(k, payload, time.Now())
		snap = Snapshot{Key: k, Entry: entry, HasData: true, Source: SourceNetwork}
	}
	snap.State = c.conn.Observe(err)
	c.current[k] = snap
	listeners := c.listenersLocked()
	c.applyMu.Lock()
	c.mu.Unlock()
	defer c.applyMu.Unlock()

	if err != nil {
		c.logger.Warn("fetch failed, keeping last good data", "key", k, "error", err)
	} else {
		c.tiers.Persistent.Set(context.WithoutCancel(ctx), k, snap.Entry)
	}
	for _, l := range listeners {
		l(snap)
	}
	return snap
}

// offer publishes cached data for key unless newer data is already current.
func (c *Coordinator) offer(gen uint64, snap Snapshot) {
	c.mu.Lock()
	if c.closed.Load() || gen != c.generation {
		c.mu.Unlock()
		return
	}
	cur, ok := c.current[snap.Key]
	if ok && cur.HasData && !cur.Entry.StoredAt.Before(snap.Entry.StoredAt) {
		c.mu.Unlock()
		return
	}
	snap.Err = cur.Err
	snap.State = c.conn.State()
	c.current[snap.Key] = snap
	listeners := c.listenersLocked()
	c.applyMu.Lock()
	c.mu.Unlock()
	defer c.applyMu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (c *Coordinator) listenersLocked() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}

func (c *Coordinator) poll(ctx context.Context) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	for _, k := range c.live.ToSlice() {
		if ctx.Err() != nil || !c.conn.Online() {
			return
		}
		c.mu.Lock()
		fetch := c.fetchers[k]
		c.mu.Unlock()
		if fetch != nil {
			c.revalidate(ctx, gen, k, fetch, false)
		}
	}
}

func (c *Coordinator) connectivityChanged(state ConnState) {
	c.logger.Info("connectivity changed", "state", state)
	if state == Offline {
		c.poller.Stop()
		return
	}
	if c.live.Cardinality() > 0 && !c.closed.Load() {
		c.poller.Start(c.ctx)
	}
}
