package data

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kayteedberserker/feedsync/internal/models"
	"github.com/kayteedberserker/feedsync/internal/store"
)

var errNetwork = errors.New("network down")

func ent(id string, kv ...any) models.Entity {
	e := models.Entity{models.FieldID: id}
	for i := 0; i+1 < len(kv); i += 2 {
		e[kv[i].(string)] = kv[i+1]
	}
	return e
}

func pageOf(t *testing.T, items ...models.Entity) []byte {
	t.Helper()
	if items == nil {
		items = []models.Entity{}
	}
	data, err := json.Marshal(models.Payload{Items: items})
	require.NoError(t, err)
	return data
}

func idsPage(t *testing.T, ids ...string) []byte {
	t.Helper()
	items := make([]models.Entity, len(ids))
	for i, id := range ids {
		items[i] = ent(id)
	}
	return pageOf(t, items...)
}

// fakeServer serves canned pages and counts requests.
type fakeServer struct {
	mu    sync.Mutex
	pages map[int][]byte
	err   error
	calls map[int]int
}

func newFakeServer() *fakeServer {
	return &fakeServer{pages: make(map[int][]byte), calls: make(map[int]int)}
}

func (s *fakeServer) set(page int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = data
}

func (s *fakeServer) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeServer) count(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[page]
}

func (s *fakeServer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *fakeServer) fetch(ctx context.Context, page, limit int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[page]++
	if s.err != nil {
		return nil, s.err
	}
	if data, ok := s.pages[page]; ok {
		return data, nil
	}
	return []byte(`{"items":[]}`), nil
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}
func (brokenStore) Set(context.Context, string, string) error { return errors.New("disk on fire") }
func (brokenStore) Close() error                             { return nil }

func newTestTiers(t *testing.T) (*Tiers, store.Store) {
	t.Helper()
	st := store.NewMemory()
	return NewTiers(NewMemoryCache(), st, nil), st
}

func newTestFeed(t *testing.T, tiers *Tiers, srv *fakeServer, pageSize int) *Feed {
	t.Helper()
	f := NewFeed(context.Background(), tiers, FeedConfig{
		Key:      NewKey(ResourcePosts, "", nil),
		PageSize: pageSize,
		Fetch:    srv.fetch,
	})
	t.Cleanup(f.Close)
	return f
}
