package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// LockTimeout is the maximum time to wait for the directory lock.
// If exceeded, writes proceed without locking (fail-open) so a crashed
// process holding the lock can never hang a feed.
const LockTimeout = 100 * time.Millisecond

// fileRecord is the on-disk shape of one entry. The key is stored inside
// the file because file names are hashes.
type fileRecord struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	Writer    string    `json:"writer"`
}

// FileStore keeps one JSON file per key under dir, written atomically via
// temp file + rename and serialized across processes with a flock.
type FileStore struct {
	dir    string
	writer string
	logger *slog.Logger
}

// NewFileStore creates a file store rooted at dir. The directory is created
// lazily on first write.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    dir,
		writer: uuid.NewString(),
		logger: logger,
	}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) entriesDir() string { return filepath.Join(s.dir, "entries") }

func (s *FileStore) lockPath() string { return filepath.Join(s.dir, ".lock") }

// Path returns the file backing key.
func (s *FileStore) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.entriesDir(), hex.EncodeToString(sum[:16])+".json")
}

// acquireLock returns nil without error when the lock could not be taken
// within LockTimeout.
func (s *FileStore) acquireLock(ctx context.Context) (*flock.Flock, error) {
	if err := os.MkdirAll(s.entriesDir(), 0700); err != nil {
		return nil, err
	}
	fl := flock.New(s.lockPath())

	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		if lockCtx.Err() == context.DeadlineExceeded {
			s.logger.Debug("store lock busy, writing unlocked", "dir", s.dir)
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return fl, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	rec, err := readRecord(s.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if rec.Key != key {
		// Hash collision or a file from an unrelated writer.
		return "", false, nil
	}
	return rec.Value, true, nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	lock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() { _ = lock.Unlock() }()
	}

	data, err := json.Marshal(fileRecord{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
		Writer:    s.writer,
	})
	if err != nil {
		return err
	}

	path := s.Path(key)
	// Unique temp name so unlocked (fail-open) writers never clobber each other.
	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", path, os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Watch reports keys written by other processes until ctx is done.
// Writes made through this FileStore are not reported.
func (s *FileStore) Watch(ctx context.Context, changed func(key string)) error {
	if err := os.MkdirAll(s.entriesDir(), 0700); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.entriesDir()); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".json") {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				rec, err := readRecord(ev.Name)
				if err != nil || rec.Writer == s.writer {
					continue
				}
				changed(rec.Key)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("store watcher error", "dir", s.dir, "error", err)
			}
		}
	}()
	return nil
}

func readRecord(path string) (fileRecord, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is derived from a hashed key
	if err != nil {
		return fileRecord{}, err
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fileRecord{}, fmt.Errorf("corrupt store entry %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}
