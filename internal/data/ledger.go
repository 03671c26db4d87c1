package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kayteedberserker/feedsync/internal/store"
)

// DefaultLedgerCapacity bounds how many fired tokens are remembered.
const DefaultLedgerCapacity = 200

// LedgerKey is the store key holding the persisted ledger. Cache keys
// always carry a "#p=" page suffix, so it cannot clash with them.
const LedgerKey = "ledger/actions"

// ActionKind names a side-effecting action on an entity.
type ActionKind string

const (
	ActionViewed ActionKind = "viewed"
	ActionLiked  ActionKind = "liked"
)

// Token identifies one action on one entity.
type Token struct {
	EntityID string     `json:"id"`
	Kind     ActionKind `json:"kind"`
}

func (t Token) String() string {
	return string(t.Kind) + ":" + t.EntityID
}

// Ledger remembers which tokens have already been dispatched so an action
// never fires twice, across restarts too. It holds at most capacity tokens;
// once full, the oldest token is forgotten first, which means a very old
// entity can in principle be actioned again.
//
// Tokens are never removed on failure.
type Ledger struct {
	mu      sync.Mutex
	saveMu  sync.Mutex // orders persistence like marks
	fired   *lru.Cache[Token, struct{}]
	store   store.Store
	logger  *slog.Logger
	evicted int
}

// OpenLedger creates a ledger and loads any tokens persisted in st.
// A missing or unreadable saved ledger starts empty. A nil store keeps the
// ledger in memory only.
func OpenLedger(ctx context.Context, st store.Store, capacity int, logger *slog.Logger) (*Ledger, error) {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{store: st, logger: logger}
	fired, err := lru.NewWithEvict(capacity, func(Token, struct{}) { l.evicted++ })
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	l.fired = fired
	l.load(ctx)
	l.evicted = 0
	return l, nil
}

func (l *Ledger) load(ctx context.Context) {
	if l.store == nil {
		return
	}
	raw, ok, err := l.store.Get(ctx, LedgerKey)
	if err != nil {
		l.logger.Warn("ledger read failed, starting empty", "error", err)
		return
	}
	if !ok {
		return
	}
	var tokens []Token
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		l.logger.Warn("ledger unreadable, starting empty", "error", err)
		return
	}
	// Saved oldest first, so replaying keeps eviction order.
	for _, t := range tokens {
		l.fired.Add(t, struct{}{})
	}
}

// HasFired reports whether token has been dispatched. It does not refresh
// the token's age.
func (l *Ledger) HasFired(token Token) bool {
	return l.fired.Contains(token)
}

// MarkFired records token as dispatched. Marking an already-fired token is
// a no-op.
func (l *Ledger) MarkFired(ctx context.Context, token Token) {
	l.TryMark(ctx, token)
}

// TryMark marks token and reports true only for the call that actually
// marked it. Concurrent callers for one token see exactly one true.
func (l *Ledger) TryMark(ctx context.Context, token Token) bool {
	l.mu.Lock()
	if found, _ := l.fired.ContainsOrAdd(token, struct{}{}); found {
		l.mu.Unlock()
		return false
	}
	tokens := l.fired.Keys()
	l.saveMu.Lock()
	l.mu.Unlock()
	defer l.saveMu.Unlock()

	l.save(ctx, tokens)
	return true
}

// Tokens returns the remembered tokens, oldest first.
func (l *Ledger) Tokens() []Token {
	return l.fired.Keys()
}

// Len returns the number of remembered tokens.
func (l *Ledger) Len() int {
	return l.fired.Len()
}

// Evicted returns how many tokens were forgotten to stay within capacity
// since the ledger was opened.
func (l *Ledger) Evicted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evicted
}

func (l *Ledger) save(ctx context.Context, tokens []Token) {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		l.logger.Warn("ledger encode failed", "error", err)
		return
	}
	if err := l.store.Set(context.WithoutCancel(ctx), LedgerKey, string(data)); err != nil {
		l.logger.Warn("ledger write failed", "error", err)
	}
}
