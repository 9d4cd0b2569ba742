package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-widget/internal/repository"
)

type failingStore struct {
	loadErr  error
	storeErr error
	putErr   error
	*repository.MemoryStore
}

func (f *failingStore) Load(ctx context.Context, key string) (string, bool, error) {
	if f.loadErr != nil {
		return "", false, f.loadErr
	}
	return f.MemoryStore.Load(ctx, key)
}

func (f *failingStore) StoreIfAbsent(ctx context.Context, key, value string) (string, error) {
	if f.storeErr != nil {
		return "", f.storeErr
	}
	return f.MemoryStore.StoreIfAbsent(ctx, key, value)
}

func (f *failingStore) Put(ctx context.Context, key, value string) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryStore.Put(ctx, key, value)
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":              ModePersisted,
		"persisted":     ModePersisted,
		"Persistent":    ModePersisted,
		"server-issued": ModeServerIssued,
		" server ":      ModeServerIssued,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseMode("cookie")
	require.Error(t, err)
}

func TestPersisted_GeneratesAndStores(t *testing.T) {
	store := repository.NewMemoryStore()
	id, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)

	cur, ok := id.Current()
	require.True(t, ok)
	require.NotEmpty(t, cur)
	require.True(t, id.Generated())

	stored, found, err := store.Load(context.Background(), StorageKey)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, cur, stored)
}

func TestPersisted_SameIDAcrossInitializations(t *testing.T) {
	store := repository.NewMemoryStore()
	first, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)
	second, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)

	a, _ := first.Current()
	b, _ := second.Current()
	require.Equal(t, a, b)
	require.False(t, second.Generated())
}

func TestPersisted_ClearedStoreYieldsNewID(t *testing.T) {
	store := repository.NewMemoryStore()
	first, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)
	require.NoError(t, Reset(context.Background(), store))

	second, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)
	a, _ := first.Current()
	b, ok := second.Current()
	require.True(t, ok)
	require.NotEmpty(t, b)
	require.NotEqual(t, a, b)
}

func TestPersisted_ConcurrentInitsAgree(t *testing.T) {
	store := repository.NewMemoryStore()
	ids := make([]string, 8)
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := Init(context.Background(), ModePersisted, store)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i], _ = id.Current()
		}(i)
	}
	wg.Wait()
	for i, id := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], id)
	}
}

func TestPersisted_BlankStoredValueIsReplaced(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), StorageKey, ""))

	id, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)
	cur, ok := id.Current()
	require.True(t, ok)
	require.NotEmpty(t, cur)
}

func TestPersisted_Errors(t *testing.T) {
	_, err := Init(context.Background(), ModePersisted, nil)
	require.Error(t, err)

	_, err = Init(context.Background(), ModePersisted, &failingStore{loadErr: errors.New("disk"), MemoryStore: repository.NewMemoryStore()})
	require.ErrorContains(t, err, "disk")

	_, err = Init(context.Background(), ModePersisted, &failingStore{storeErr: errors.New("full"), MemoryStore: repository.NewMemoryStore()})
	require.ErrorContains(t, err, "full")
}

func TestPersisted_AdoptsReplacementAndPersists(t *testing.T) {
	store := repository.NewMemoryStore()
	id, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)

	require.NoError(t, id.Adopt(context.Background(), "server-new"))
	cur, _ := id.Current()
	require.Equal(t, "server-new", cur)

	stored, _, err := Stored(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, "server-new", stored)
}

func TestPersisted_AdoptIgnoresEmptyAndSame(t *testing.T) {
	store := &failingStore{MemoryStore: repository.NewMemoryStore()}
	id, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)
	before, _ := id.Current()

	store.putErr = errors.New("must not write")
	require.NoError(t, id.Adopt(context.Background(), ""))
	require.NoError(t, id.Adopt(context.Background(), before))
	after, _ := id.Current()
	require.Equal(t, before, after)
}

func TestPersisted_AdoptWriteFailure(t *testing.T) {
	store := &failingStore{MemoryStore: repository.NewMemoryStore()}
	id, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)
	store.putErr = errors.New("read-only")
	require.ErrorContains(t, id.Adopt(context.Background(), "other"), "read-only")
}

// slowStore holds Put of one value until release is closed.
type slowStore struct {
	*repository.MemoryStore
	slowValue string
	started   chan struct{}
	release   chan struct{}
}

func (s *slowStore) Put(ctx context.Context, key, value string) error {
	if value == s.slowValue {
		close(s.started)
		<-s.release
	}
	return s.MemoryStore.Put(ctx, key, value)
}

func TestPersisted_OverlappingAdoptsKeepStoreInSync(t *testing.T) {
	store := &slowStore{
		MemoryStore: repository.NewMemoryStore(),
		slowValue:   "first",
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	id, err := Init(context.Background(), ModePersisted, store)
	require.NoError(t, err)

	errs := make(chan error, 2)
	go func() { errs <- id.Adopt(context.Background(), "first") }()
	<-store.started
	go func() { errs <- id.Adopt(context.Background(), "second") }()

	time.Sleep(20 * time.Millisecond)
	close(store.release)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	cur, _ := id.Current()
	stored, _, err := Stored(context.Background(), store)
	require.NoError(t, err)
	require.Equal(t, "second", cur)
	require.Equal(t, cur, stored)
}

func TestPersisted_ConcurrentClientsOnPebbleAgree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	const clients = 4
	ids := make([]string, clients)
	errs := make([]error, clients)
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := repository.NewPebbleStore(dir, "default")
			if err != nil {
				errs[i] = err
				return
			}
			id, err := Init(context.Background(), ModePersisted, store)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i], _ = id.Current()
		}(i)
	}
	wg.Wait()

	for i := 0; i < clients; i++ {
		require.NoError(t, errs[i])
		require.NotEmpty(t, ids[i])
		require.Equal(t, ids[0], ids[i])
	}
}

func TestServerIssued_StartsUnknownThenAdopts(t *testing.T) {
	id, err := Init(context.Background(), ModeServerIssued, nil)
	require.NoError(t, err)

	_, ok := id.Current()
	require.False(t, ok)

	require.NoError(t, id.Adopt(context.Background(), "abc123"))
	cur, ok := id.Current()
	require.True(t, ok)
	require.Equal(t, "abc123", cur)

	require.NoError(t, id.Adopt(context.Background(), "def456"))
	cur, _ = id.Current()
	require.Equal(t, "def456", cur, "server value overwrites")
}

func TestInit_UnknownMode(t *testing.T) {
	_, err := Init(context.Background(), Mode("cookie"), repository.NewMemoryStore())
	require.Error(t, err)
}

func TestStored_NoValue(t *testing.T) {
	_, ok, err := Stored(context.Background(), repository.NewMemoryStore())
	require.NoError(t, err)
	require.False(t, ok)
}
