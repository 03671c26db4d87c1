// Package store provides the persistent key-value backends behind the
// on-disk cache tier and the action ledger. Values are opaque strings;
// callers own the encoding.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Driver names accepted by Open.
const (
	DriverFile    = "file"
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
	DriverValkey  = "valkey"
	DriverMemory  = "memory"
)

// Drivers lists every driver name in the order they are documented.
var Drivers = []string{DriverFile, DriverSQLite, DriverLevelDB, DriverValkey, DriverMemory}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is a persistent string key-value store that survives restarts.
// Get reports a miss with ok=false and a nil error.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Watcher is implemented by stores that can report writes made by other
// processes sharing the same backing storage.
type Watcher interface {
	Watch(ctx context.Context, changed func(key string)) error
}

// Options selects and configures a backend.
type Options struct {
	Driver        string
	Dir           string // base directory for file, sqlite and leveldb
	ValkeyAddress string
	Logger        *slog.Logger
}

// Open creates the store selected by opts.Driver.
func Open(opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch opts.Driver {
	case "", DriverFile:
		return NewFileStore(filepath.Join(opts.Dir, "store"), logger), nil
	case DriverSQLite:
		if err := os.MkdirAll(opts.Dir, 0700); err != nil {
			return nil, err
		}
		return OpenSQLite(filepath.Join(opts.Dir, "cache.db"))
	case DriverLevelDB:
		return OpenLevelDB(filepath.Join(opts.Dir, "cache.leveldb"))
	case DriverValkey:
		return OpenValkey(opts.ValkeyAddress)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// Memory is a non-persistent Store, used for --no-persist runs and as a
// stand-in during tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[key] = value
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
