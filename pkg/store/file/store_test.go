package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store/file"
)

func setupFileStore(t *testing.T) *file.Store {
	t.Helper()
	store, err := file.NewStore(&file.Config{RootDir: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, store)
	return store
}

func sampleStore(agentID string, records int) *core.AgentMemoryStore {
	mem := core.NewAgentMemoryStore(agentID)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < records; i++ {
		mem.Append(&core.MemoryRecord{
			ID:        int64(i + 1),
			ActorID:   "player_1",
			ActorName: "Steve",
			Input:     "hello there",
			Response:  "good day to you",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			GameDay:   int64(i + 1),
			Kind:      core.KindVoice,
		})
	}
	return mem
}

func TestFileStore_RequiresRootDir(t *testing.T) {
	_, err := file.NewStore(&file.Config{})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	original := sampleStore("villager_1", 3)
	require.NoError(t, store.Save(ctx, original))

	loaded, err := store.Load(ctx, "villager_1")
	require.NoError(t, err)

	assert.Equal(t, original.AgentID, loaded.AgentID)
	assert.Equal(t, original.RecordCount(), loaded.RecordCount())
	assert.Equal(t, original.InteractionCount, loaded.InteractionCount)
	for i, want := range original.Records {
		got := loaded.Records[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.ActorID, got.ActorID)
		assert.Equal(t, want.Input, got.Input)
		assert.Equal(t, want.Response, got.Response)
		assert.Equal(t, want.GameDay, got.GameDay)
		assert.Equal(t, want.Kind, got.Kind)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	}
}

func TestFileStore_LoadMissingAgent(t *testing.T) {
	store := setupFileStore(t)

	_, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestFileStore_LoadCorruptData(t *testing.T) {
	dir := t.TempDir()
	store, err := file.NewStore(&file.Config{RootDir: dir})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	_, err = store.Load(context.Background(), "broken")
	assert.ErrorIs(t, err, core.ErrCorruptData)
}

func TestFileStore_DeleteAbsentIsNotError(t *testing.T) {
	store := setupFileStore(t)
	assert.NoError(t, store.Delete(context.Background(), "nobody"))
}

func TestFileStore_Delete(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleStore("villager_1", 1)))
	require.NoError(t, store.Delete(ctx, "villager_1"))

	_, err := store.Load(ctx, "villager_1")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestFileStore_ListIDs(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	ids, err := store.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.Save(ctx, sampleStore("villager_1", 1)))
	require.NoError(t, store.Save(ctx, sampleStore("villager_2", 1)))

	ids, err = store.ListIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"villager_1", "villager_2"}, ids)
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	store := setupFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleStore("villager_1", 5)))
	require.NoError(t, store.Save(ctx, sampleStore("villager_1", 2)))

	loaded, err := store.Load(ctx, "villager_1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.RecordCount())
}
