package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// SessionOptions configures [Open].
type SessionOptions struct {
	// InitFresh replaces a corrupt store file with an empty store instead
	// of failing.
	InitFresh bool

	// Lock takes the advisory writer lock next to the store file.
	Lock bool

	Logger *zap.Logger
}

// Session is one load, mutate, commit-or-discard cycle over a store file.
// Release must be called on every path; it is safe to call more than once.
type Session struct {
	path   string
	store  *Store
	fresh  bool
	lock   *flock.Flock
	logger *zap.Logger

	releaseOnce sync.Once
	releaseErr  error
}

// Open acquires the writer lock (when enabled) and loads the store at path.
// A second writer fails fast with [ErrStoreLocked].
func Open(path string, opts SessionOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Session{path: path, logger: logger}
	if opts.Lock {
		fl := flock.New(path + ".lock")
		locked, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to lock store: %w", err)
		}
		if !locked {
			return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
		}
		s.lock = fl
	}

	st, fresh, err := Load(path, opts.InitFresh)
	if err != nil {
		_ = s.Release()
		return nil, err
	}
	if fresh {
		logger.Warn("store file is corrupt, starting from an empty store", zap.String("path", path))
	}
	s.store = st
	s.fresh = fresh

	logger.Debug("store loaded",
		zap.String("path", path),
		zap.Int("workflows", st.Len()),
		zap.Int("schema_version", st.SchemaVersion()),
	)
	return s, nil
}

// Store returns the session's in-memory store.
func (s *Session) Store() *Store {
	return s.store
}

// Path returns the store file path.
func (s *Session) Path() string {
	return s.path
}

// Fresh reports whether a corrupt file was replaced by an empty store.
func (s *Session) Fresh() bool {
	return s.fresh
}

// Commit publishes the in-memory store atomically.
func (s *Session) Commit() error {
	if err := Save(s.path, s.store); err != nil {
		return err
	}
	s.logger.Debug("store committed", zap.String("path", s.path), zap.Int("workflows", s.store.Len()))
	return nil
}

// Release drops the writer lock. Uncommitted changes are discarded.
func (s *Session) Release() error {
	s.releaseOnce.Do(func() {
		if s.lock != nil {
			s.releaseErr = s.lock.Unlock()
		}
	})
	return s.releaseErr
}
