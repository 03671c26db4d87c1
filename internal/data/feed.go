package data

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kayteedberserker/feedsync/internal/models"
)

// DefaultPageSize is the number of items requested per page.
const DefaultPageSize = 10

// PageFetcher retrieves one page of a feed from the network.
type PageFetcher func(ctx context.Context, page, limit int) ([]byte, error)

// FeedConfig configures a Feed.
type FeedConfig struct {
	Key          Key // page is ignored
	PageSize     int
	Fetch        PageFetcher
	Ledger       *Ledger
	PollInterval time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
	Tracer       trace.Tracer
}

// FeedSnapshot is the view-ready state of a feed.
type FeedSnapshot struct {
	Name     string
	Items    Collection
	Page     int // highest page loaded
	HasMore  bool
	Loading  bool // a LoadMore is in flight
	State    ConnState
	HasData  bool
	Source   Source // tier that produced page 1
	StoredAt time.Time
	Total    *int
	Err      error // latest failed fetch, cleared by the next success
	Pending  int   // optimistic actions not yet visible in server data
	Rejected int   // entities dropped for lacking an id
}

// Offline reports whether the feed should show its offline affordance.
func (s FeedSnapshot) Offline() bool { return s.State == Offline }

// Feed is the controller behind one list screen. It loads pages through
// its own Coordinator, merges them into one collection and layers pending
// optimistic actions on top.
type Feed struct {
	mu       sync.Mutex
	key      Key
	pageSize int
	fetch    PageFetcher
	coord    *Coordinator
	ledger   *Ledger
	logger   *slog.Logger

	pages    map[int][]models.Entity
	stamps   map[int]time.Time
	pageKeys map[string]int
	items    Collection // merged server data, before the overlay
	cursor   int
	hasMore  bool
	loading  int  // page requested by LoadMore, 0 when idle
	replace  bool // next network page 1 replaces the collection
	source   Source
	storedAt time.Time
	total    *int
	err      error
	rejected int
	overlay  overlay

	listeners map[uint64]func(FeedSnapshot)
	nextID    uint64
	unsub     func()
	closed    bool
}

// NewFeed creates a feed over the shared tiers. Background work ends when
// ctx is canceled or the feed is closed.
func NewFeed(ctx context.Context, tiers *Tiers, cfg FeedConfig) *Feed { //nolint:revive // context-as-argument: ctx scopes the feed lifetime
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Ledger == nil {
		cfg.Ledger, _ = OpenLedger(ctx, nil, DefaultLedgerCapacity, cfg.Logger)
	}
	key := cfg.Key.WithPage(1)
	f := &Feed{
		key:       key,
		pageSize:  cfg.PageSize,
		fetch:     cfg.Fetch,
		ledger:    cfg.Ledger,
		logger:    cfg.Logger.With("feed", key.Feed()),
		pages:     make(map[int][]models.Entity),
		stamps:    make(map[int]time.Time),
		pageKeys:  make(map[string]int),
		listeners: make(map[uint64]func(FeedSnapshot)),
	}
	f.coord = NewCoordinator(ctx, key.Feed(), tiers, CoordinatorConfig{
		PollInterval: cfg.PollInterval,
		Logger:       cfg.Logger,
		Metrics:      cfg.Metrics,
		Tracer:       cfg.Tracer,
	})
	f.unsub = f.coord.Subscribe(f.onSnapshot)
	return f
}

// Name returns the feed's identifier.
func (f *Feed) Name() string { return f.key.Feed() }

// Key returns the key of the feed's first page.
func (f *Feed) Key() Key { return f.key }

// PageSize returns the page size.
func (f *Feed) PageSize() int { return f.pageSize }

// Coordinator returns the feed's coordinator.
func (f *Feed) Coordinator() *Coordinator { return f.coord }

// Mount shows page 1 from the fastest tier that has it and starts
// revalidating it in the background. Page 1 stays live while online.
func (f *Feed) Mount(ctx context.Context) FeedSnapshot {
	k := f.key
	fetch := f.pageFetch(1)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return f.Snapshot()
	}
	f.pageKeys[k.String()] = 1
	f.mu.Unlock()

	snap := f.coord.Load(ctx, k, fetch)
	if snap.HasData {
		f.mu.Lock()
		f.applyLocked(1, snap)
		f.mu.Unlock()
	}
	f.coord.Watch(k, fetch)
	f.notify()
	return f.Snapshot()
}

// Unmount stops background polling for the feed. Cached data and the
// overlay stay, so a later Mount shows them immediately.
func (f *Feed) Unmount() {
	f.coord.Unwatch(f.key)
}

// LoadMore requests the next page. It is refused (returns false, no
// request issued) while offline, when no more pages are expected, or while
// another LoadMore is in flight.
func (f *Feed) LoadMore(ctx context.Context) bool {
	f.mu.Lock()
	if f.closed || f.cursor == 0 || !f.hasMore || f.loading != 0 || !f.coord.Connectivity().Online() {
		f.mu.Unlock()
		return false
	}
	next := f.cursor + 1
	f.loading = next
	k := f.key.WithPage(next)
	f.pageKeys[k.String()] = next
	f.mu.Unlock()

	snap := f.coord.Load(ctx, k, f.pageFetch(next))
	if snap.HasData {
		f.mu.Lock()
		f.applyLocked(next, snap)
		f.mu.Unlock()
	}
	f.notify()
	return true
}

// Refresh fetches page 1 bypassing the cache tiers and, on success,
// replaces the whole collection with it and resets pagination to page 1.
// On failure the existing collection is kept.
func (f *Feed) Refresh(ctx context.Context) FeedSnapshot {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return f.Snapshot()
	}
	f.replace = true
	f.pageKeys[f.key.String()] = 1
	f.mu.Unlock()

	fetch := f.pageFetch(1)
	f.coord.Refresh(ctx, f.key, fetch)

	f.mu.Lock()
	f.replace = false
	f.mu.Unlock()

	f.coord.Watch(f.key, fetch)
	return f.Snapshot()
}

// Retry re-attempts every fetch that failed. A success brings the feed
// back online and resumes polling.
func (f *Feed) Retry(ctx context.Context) FeedSnapshot {
	f.coord.Retry(ctx)
	return f.Snapshot()
}

// Wait blocks until background loads started so far have finished.
func (f *Feed) Wait() {
	f.coord.Wait()
}

// Dispatch sends a through the ledger. An action whose token already fired
// is skipped entirely and reports false. Otherwise the token is marked, the
// local change becomes visible at once, and the request is sent. A failed
// request is returned but nothing is rolled back: the local change stays
// until server data shows it.
func (f *Feed) Dispatch(ctx context.Context, a Action) (bool, error) {
	token := a.Token()
	if !f.ledger.TryMark(ctx, token) {
		f.logger.Debug("action already fired, skipping", "token", token.String())
		return false, nil
	}

	f.mu.Lock()
	if !f.closed {
		f.overlay.add(a)
	}
	f.mu.Unlock()
	f.notify()

	if err := a.ApplyRemotely(ctx); err != nil {
		f.logger.Warn("action failed, keeping local state", "token", token.String(), "error", err)
		return true, err
	}
	return true, nil
}

// Like dispatches a like for the entity with id.
func (f *Feed) Like(ctx context.Context, id string, send SendFunc) (bool, error) {
	return f.Dispatch(ctx, NewLike(f.remote(id), send))
}

// RecordView dispatches a view for the entity with id.
func (f *Feed) RecordView(ctx context.Context, id string, send SendFunc) (bool, error) {
	return f.Dispatch(ctx, NewView(f.remote(id), send))
}

func (f *Feed) remote(id string) models.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.items.Find(id); ok {
		return e
	}
	return models.Entity{models.FieldID: id}
}

// Subscribe registers fn for every change and returns a func removing it.
// fn runs on the goroutine that applied the change and must not block.
func (f *Feed) Subscribe(fn func(FeedSnapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// Snapshot returns the current view-ready state.
func (f *Feed) Snapshot() FeedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

// Close stops polling and makes every later completion a no-op.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.listeners = make(map[uint64]func(FeedSnapshot))
	f.mu.Unlock()

	f.unsub()
	f.coord.Close()
}

func (f *Feed) snapshotLocked() FeedSnapshot {
	return FeedSnapshot{
		Name:     f.key.Feed(),
		Items:    f.overlay.apply(f.items),
		Page:     f.cursor,
		HasMore:  f.hasMore,
		Loading:  f.loading != 0,
		State:    f.coord.Connectivity().State(),
		HasData:  f.cursor > 0,
		Source:   f.source,
		StoredAt: f.storedAt,
		Total:    f.total,
		Err:      f.err,
		Pending:  f.overlay.len(),
		Rejected: f.rejected,
	}
}

// pageFetch wraps the page fetcher so an undecodable body counts as a
// failed fetch and never reaches the cache tiers.
func (f *Feed) pageFetch(page int) FetchFunc {
	return func(ctx context.Context) ([]byte, error) {
		data, err := f.fetch(ctx, page, f.pageSize)
		if err != nil {
			return nil, err
		}
		if _, err := models.DecodePage(data, page); err != nil {
			return nil, err
		}
		return data, nil
	}
}

func (f *Feed) onSnapshot(s Snapshot) {
	f.mu.Lock()
	idx, ok := f.pageKeys[s.Key]
	if !ok || f.closed {
		f.mu.Unlock()
		return
	}
	switch {
	case s.Err != nil:
		f.err = s.Err
		if f.loading == idx {
			f.loading = 0
		}
	case s.HasData:
		f.applyLocked(idx, s)
		if s.Source == SourceNetwork {
			f.err = nil
			if f.loading == idx {
				f.loading = 0
			}
		}
	}
	f.mu.Unlock()
	f.notify()
}

// applyLocked folds one page snapshot into the feed. Older data never
// replaces newer data for the same page, and pages beyond the pagination
// frontier (for example a late page from before a refresh) are ignored.
func (f *Feed) applyLocked(idx int, s Snapshot) {
	page, err := models.DecodePage(s.Entry.Payload, idx)
	if err != nil {
		f.logger.Warn("cached page unreadable", "page", idx, "error", err)
		return
	}

	if idx == 1 && f.replace && s.Source == SourceNetwork {
		f.pages = make(map[int][]models.Entity)
		f.stamps = make(map[int]time.Time)
		f.cursor = 0
		f.loading = 0
		f.replace = false
	}
	if idx != 1 && idx > f.cursor && idx != f.loading {
		return
	}
	if stamp, ok := f.stamps[idx]; ok && s.Entry.StoredAt.Before(stamp) {
		return
	}

	if len(page.Items) == 0 && idx > 1 {
		// An empty page ends pagination and leaves the collection alone.
		if idx > f.cursor {
			f.hasMore = false
		}
		return
	}

	f.pages[idx] = page.Items
	f.stamps[idx] = s.Entry.StoredAt
	if idx >= f.cursor {
		f.cursor = idx
		f.hasMore = PageHasMore(page, f.pageSize)
	}
	if idx == 1 {
		f.source = s.Source
		f.storedAt = s.Entry.StoredAt
		f.total = page.Total
	}

	items, rejected := Collect(f.pages)
	if rejected > 0 {
		f.logger.Debug("dropped entities without id", "count", rejected)
	}
	f.overlay.prune(items)
	f.items = items
	f.rejected = rejected
}

func (f *Feed) notify() {
	f.mu.Lock()
	if f.closed || len(f.listeners) == 0 {
		f.mu.Unlock()
		return
	}
	snap := f.snapshotLocked()
	listeners := make([]func(FeedSnapshot), 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}
