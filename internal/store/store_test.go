package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every backend that can run without external services.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sq, err := OpenSQLite(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	ldb, err := OpenLevelDB(filepath.Join(dir, "cache.leveldb"))
	require.NoError(t, err)

	stores := map[string]Store{
		"file":    NewFileStore(filepath.Join(dir, "files"), nil),
		"sqlite":  sq,
		"leveldb": ldb,
		"memory":  NewMemory(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreMissReturnsNotOK(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			v, ok, err := s.Get(context.Background(), "feed/global#p=1")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, v)
		})
	}
}

func TestStoreSetOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "k", "one"))
			require.NoError(t, s.Set(ctx, "k", "two"))

			v, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "two", v)
		})
	}
}

func TestStoreKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "posts?category=art#p=1", "art"))
			require.NoError(t, s.Set(ctx, "posts?category=music#p=1", "music"))

			v, _, err := s.Get(ctx, "posts?category=art#p=1")
			require.NoError(t, err)
			assert.Equal(t, "art", v)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, NewFileStore(dir, nil).Set(ctx, "k", "persisted"))

	v, ok, err := NewFileStore(dir, nil).Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", v)
}

func TestFileStoreCorruptEntryIsError(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, nil)
	require.NoError(t, s.Set(context.Background(), "k", "v"))
	require.NoError(t, os.WriteFile(s.Path("k"), []byte("{not json"), 0600))

	_, ok, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestFileStoreWatchReportsOtherWriters(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := NewFileStore(dir, nil)
	other := NewFileStore(dir, nil)

	changed := make(chan string, 8)
	require.NoError(t, watcher.Watch(ctx, func(key string) { changed <- key }))

	// Own writes are not reported.
	require.NoError(t, watcher.Set(ctx, "mine", "v"))
	require.NoError(t, other.Set(ctx, "theirs", "v"))

	select {
	case key := <-changed:
		assert.Equal(t, "theirs", key)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())

	_, _, err := m.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Set(context.Background(), "k", "v"), ErrClosed)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "tape", Dir: t.TempDir()})
	assert.EqualError(t, err, `unknown store driver "tape"`)
}

func TestOpenValkeyRequiresAddress(t *testing.T) {
	_, err := Open(Options{Driver: DriverValkey})
	assert.Error(t, err)
}

func TestValkeyRecordEncoding(t *testing.T) {
	raw, err := encodeValkeyRecord(valkeyRecord{Value: `{"items":[]}`, UpdatedAt: 42})
	require.NoError(t, err)

	rec, err := decodeValkeyRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"items":[]}`, rec.Value)
	assert.Equal(t, int64(42), rec.UpdatedAt)

	_, err = decodeValkeyRecord([]byte{0xc1})
	assert.Error(t, err)
}
