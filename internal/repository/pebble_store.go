package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	defaultLockWait  = 5 * time.Second
	lockRetryInitial = 10 * time.Millisecond
	lockRetryMax     = 200 * time.Millisecond
)

// PebbleStore is a local on-disk store. Pebble locks its directory for as long
// as the DB is open, so every operation opens the DB, runs and closes it
// again. Other clients and profiles sharing the directory wait for the lock
// instead of failing.
type PebbleStore struct {
	mu       sync.Mutex
	dir      string
	profile  string
	lockWait time.Duration
}

type PebbleOption func(*PebbleStore)

// WithLockWait bounds how long an operation waits for another client to
// release the directory lock.
func WithLockWait(d time.Duration) PebbleOption {
	return func(s *PebbleStore) {
		s.lockWait = d
	}
}

// NewPebbleStore prepares a store at dir for profile. The DB is created on
// first use.
func NewPebbleStore(dir, profile string, opts ...PebbleOption) (*PebbleStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("repository: pebble directory must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
		return nil, fmt.Errorf("repository: create pebble parent dir: %w", err)
	}
	s := &PebbleStore{dir: dir, profile: normalizeProfile(profile), lockWait: defaultLockWait}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *PebbleStore) dbKey(key string) []byte {
	return []byte("profile:" + s.profile + ":" + key)
}

// withDB runs fn against a freshly opened DB. While fn runs no other client
// can open the directory, which makes read-then-write sequences atomic.
func (s *PebbleStore) withDB(ctx context.Context, fn func(db *pebble.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	ferr := fn(db)
	if cerr := db.Close(); cerr != nil && ferr == nil {
		ferr = fmt.Errorf("repository: close pebble at %q: %w", s.dir, cerr)
	}
	return ferr
}

func (s *PebbleStore) open(ctx context.Context) (*pebble.DB, error) {
	deadline := time.Now().Add(s.lockWait)
	delay := lockRetryInitial
	for {
		db, err := pebble.Open(s.dir, &pebble.Options{})
		if err == nil {
			return db, nil
		}
		if !isLockContention(err) || time.Now().After(deadline) {
			return nil, fmt.Errorf("repository: open pebble at %q: %w", s.dir, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("repository: waiting for pebble lock: %w", ctx.Err())
		case <-time.After(delay):
		}
		if delay *= 2; delay > lockRetryMax {
			delay = lockRetryMax
		}
	}
}

// isLockContention matches the in-process and flock errors pebble returns
// when the directory is already open.
func isLockContention(err error) bool {
	if errors.Is(err, syscall.EAGAIN) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock held") || strings.Contains(msg, "resource temporarily unavailable")
}

func (s *PebbleStore) Load(ctx context.Context, key string) (string, bool, error) {
	key, err := validateKey(key)
	if err != nil {
		return "", false, err
	}
	var (
		v  string
		ok bool
	)
	err = s.withDB(ctx, func(db *pebble.DB) error {
		var gerr error
		v, ok, gerr = s.get(db, key)
		return gerr
	})
	return v, ok, err
}

func (s *PebbleStore) get(db *pebble.DB, key string) (string, bool, error) {
	v, closer, err := db.Get(s.dbKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("repository: pebble get %q: %w", key, err)
	}
	defer func() { _ = closer.Close() }()
	// v is only valid until closer is closed.
	return string(append([]byte(nil), v...)), true, nil
}

func (s *PebbleStore) StoreIfAbsent(ctx context.Context, key, value string) (string, error) {
	key, err := validateKey(key)
	if err != nil {
		return "", err
	}
	winner := value
	err = s.withDB(ctx, func(db *pebble.DB) error {
		existing, ok, gerr := s.get(db, key)
		if gerr != nil {
			return gerr
		}
		if ok {
			winner = existing
			return nil
		}
		if serr := db.Set(s.dbKey(key), []byte(value), pebble.Sync); serr != nil {
			return fmt.Errorf("repository: pebble set %q: %w", key, serr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return winner, nil
}

func (s *PebbleStore) Put(ctx context.Context, key, value string) error {
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	return s.withDB(ctx, func(db *pebble.DB) error {
		if serr := db.Set(s.dbKey(key), []byte(value), pebble.Sync); serr != nil {
			return fmt.Errorf("repository: pebble set %q: %w", key, serr)
		}
		return nil
	})
}

func (s *PebbleStore) Delete(ctx context.Context, key string) error {
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	return s.withDB(ctx, func(db *pebble.DB) error {
		if derr := db.Delete(s.dbKey(key), pebble.Sync); derr != nil {
			return fmt.Errorf("repository: pebble delete %q: %w", key, derr)
		}
		return nil
	})
}

// Close is a no-op; the DB is only open during an operation.
func (s *PebbleStore) Close() error { return nil }
