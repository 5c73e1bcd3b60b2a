package store_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store/file"
)

func setupCachedStore(t *testing.T) (*store.CachedStore, *file.Store) {
	t.Helper()
	backend, err := file.NewStore(&file.Config{RootDir: t.TempDir()})
	require.NoError(t, err)

	cached, err := store.NewCachedStore(backend, 64, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cached.Close() })
	return cached, backend
}

func TestCachedStore_WriteThrough(t *testing.T) {
	cached, backend := setupCachedStore(t)
	ctx := context.Background()

	mem := core.NewAgentMemoryStore("villager_1")
	mem.Append(&core.MemoryRecord{ID: 1, ActorID: "player_1", CreatedAt: time.Now(), Kind: core.KindText})
	require.NoError(t, cached.Save(ctx, mem))

	// The save must reach the backend, not just the cache.
	fromBackend, err := backend.Load(ctx, "villager_1")
	require.NoError(t, err)
	assert.Equal(t, 1, fromBackend.RecordCount())

	fromCache, err := cached.Load(ctx, "villager_1")
	require.NoError(t, err)
	assert.Equal(t, 1, fromCache.RecordCount())
}

func TestCachedStore_LoadReturnsIsolatedCopy(t *testing.T) {
	cached, _ := setupCachedStore(t)
	ctx := context.Background()

	mem := core.NewAgentMemoryStore("villager_1")
	for i := int64(1); i <= 3; i++ {
		mem.Append(&core.MemoryRecord{ID: i, ActorID: "player_1", CreatedAt: time.Now(), Kind: core.KindText})
	}
	require.NoError(t, cached.Save(ctx, mem))

	// Mutating the caller's store after Save must not leak into the cache.
	mem.Records = mem.Records[:1]

	first, err := cached.Load(ctx, "villager_1")
	require.NoError(t, err)
	require.Equal(t, 3, first.RecordCount())

	// Mutating a loaded store must not affect later loads.
	first.Records = first.Records[:0]
	first.InteractionCount = 99

	second, err := cached.Load(ctx, "villager_1")
	require.NoError(t, err)
	assert.Equal(t, 3, second.RecordCount())
	assert.Equal(t, int64(3), second.InteractionCount)
	assert.Equal(t, int64(1), second.Records[0].ID)
}

// A retention sweep shrinks a store's Records under the engine's lock while
// backup and statistics readers load the same agent without it. Loads must
// hand out snapshots so those readers never observe the mutation in flight.
func TestCachedStore_ConcurrentSweepAndReader(t *testing.T) {
	cached, _ := setupCachedStore(t)
	ctx := context.Background()

	seed := core.NewAgentMemoryStore("villager_1")
	for i := int64(1); i <= 50; i++ {
		seed.Append(&core.MemoryRecord{ID: i, ActorID: "player_1", CreatedAt: time.Now(), Kind: core.KindText})
	}
	require.NoError(t, cached.Save(ctx, seed))

	const iterations = 200
	var mu sync.Mutex
	errs := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			mu.Lock()
			mem, err := cached.Load(ctx, "villager_1")
			if err != nil {
				mu.Unlock()
				errs <- err
				return
			}
			if len(mem.Records) > 1 {
				mem.Records = mem.Records[:len(mem.Records)/2]
			}
			mem.Append(&core.MemoryRecord{ID: int64(100 + i), ActorID: "player_1", CreatedAt: time.Now(), Kind: core.KindVoice})
			err = cached.Save(ctx, mem)
			mu.Unlock()
			if err != nil {
				errs <- err
				return
			}
		}
	}()

	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				mem, err := cached.Load(ctx, "villager_1")
				if err != nil {
					errs <- err
					return
				}
				if _, err := json.Marshal(mem); err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestCachedStore_LoadMissing(t *testing.T) {
	cached, _ := setupCachedStore(t)

	_, err := cached.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestCachedStore_DeleteWritesThrough(t *testing.T) {
	cached, backend := setupCachedStore(t)
	ctx := context.Background()

	require.NoError(t, cached.Save(ctx, core.NewAgentMemoryStore("villager_1")))
	require.NoError(t, cached.Delete(ctx, "villager_1"))

	_, err := backend.Load(ctx, "villager_1")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestCachedStore_ListIDsHitsBackend(t *testing.T) {
	cached, backend := setupCachedStore(t)
	ctx := context.Background()

	require.NoError(t, cached.Save(ctx, core.NewAgentMemoryStore("villager_1")))
	require.NoError(t, backend.Save(ctx, core.NewAgentMemoryStore("villager_2")))

	ids, err := cached.ListIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"villager_1", "villager_2"}, ids)
}
