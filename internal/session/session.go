package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StorageKey is the key holding the persisted session id.
const StorageKey = "sessionId"

// Mode selects how a conversation's session id is established.
type Mode string

const (
	// ModePersisted generates the id on the client once and keeps it in a
	// durable store across runs.
	ModePersisted Mode = "persisted"
	// ModeServerIssued starts with no id and adopts whatever the server
	// returns.
	ModeServerIssued Mode = "server-issued"
)

// ParseMode accepts the canonical names plus a few aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "persisted", "persistent", "client":
		return ModePersisted, nil
	case "server-issued", "server_issued", "server":
		return ModeServerIssued, nil
	default:
		return "", fmt.Errorf("session: unknown mode %q", s)
	}
}

// Store is the durable key-value store behind the persisted mode.
type Store interface {
	Load(ctx context.Context, key string) (string, bool, error)
	StoreIfAbsent(ctx context.Context, key, value string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Identity carries the session id of one conversation. It is safe for
// concurrent use.
type Identity struct {
	mode  Mode
	store Store

	// adoptMu orders adoptions so the persisted id matches the last one.
	adoptMu sync.Mutex

	mu        sync.RWMutex
	id        string
	generated bool
}

// Init initializes the identity for mode. The persisted mode loads the stored
// id or generates and stores a new one; the server-issued mode starts unknown.
func Init(ctx context.Context, mode Mode, store Store) (*Identity, error) {
	switch mode {
	case ModeServerIssued:
		log.Debug().Str("mode", string(mode)).Msg("session identity awaiting server")
		return &Identity{mode: mode}, nil
	case ModePersisted:
		if store == nil {
			return nil, errors.New("session: store must not be nil for persisted mode")
		}
		id, generated, err := loadOrCreate(ctx, store)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("mode", string(mode)).Bool("generated", generated).Msg("session identity initialized")
		return &Identity{mode: mode, store: store, id: id, generated: generated}, nil
	default:
		return nil, fmt.Errorf("session: unknown mode %q", mode)
	}
}

func loadOrCreate(ctx context.Context, store Store) (string, bool, error) {
	id, ok, err := store.Load(ctx, StorageKey)
	if err != nil {
		return "", false, fmt.Errorf("session: load id: %w", err)
	}
	if ok && strings.TrimSpace(id) != "" {
		return id, false, nil
	}
	fresh := newID()
	winner, err := store.StoreIfAbsent(ctx, StorageKey, fresh)
	if err != nil {
		return "", false, fmt.Errorf("session: store id: %w", err)
	}
	if strings.TrimSpace(winner) == "" {
		// A blank value was stored out of band; replace it.
		if err := store.Put(ctx, StorageKey, fresh); err != nil {
			return "", false, fmt.Errorf("session: store id: %w", err)
		}
		winner = fresh
	}
	return winner, winner == fresh, nil
}

func (i *Identity) Mode() Mode { return i.mode }

// Generated reports whether Init created a new id rather than loading one.
func (i *Identity) Generated() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.generated
}

// Current returns the id to send with the next request. ok is false while the
// id is still unknown, in which case the request carries null.
func (i *Identity) Current() (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.id, i.id != ""
}

// Adopt records the id returned by the server. Server-issued identities always
// take it. Persisted identities take a different non-empty id and write it
// back, since the server replaces ids it does not recognize.
func (i *Identity) Adopt(ctx context.Context, serverID string) error {
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return nil
	}

	i.adoptMu.Lock()
	defer i.adoptMu.Unlock()

	i.mu.Lock()
	prev := i.id
	if prev == serverID {
		i.mu.Unlock()
		return nil
	}
	i.id = serverID
	i.mu.Unlock()

	if i.mode != ModePersisted {
		return nil
	}
	log.Warn().Str("previous", prev).Str("session_id", serverID).Msg("server replaced session id")
	if err := i.store.Put(ctx, StorageKey, serverID); err != nil {
		return fmt.Errorf("session: persist adopted id: %w", err)
	}
	return nil
}

// Reset clears the persisted id so the next Init generates a new one.
func Reset(ctx context.Context, store Store) error {
	if store == nil {
		return errors.New("session: store must not be nil")
	}
	if err := store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("session: reset: %w", err)
	}
	return nil
}

// Stored returns the persisted id without creating one.
func Stored(ctx context.Context, store Store) (string, bool, error) {
	if store == nil {
		return "", false, errors.New("session: store must not be nil")
	}
	id, ok, err := store.Load(ctx, StorageKey)
	if err != nil {
		return "", false, fmt.Errorf("session: load id: %w", err)
	}
	return id, ok && id != "", nil
}

var newID = func() string {
	return uuid.NewString()
}
