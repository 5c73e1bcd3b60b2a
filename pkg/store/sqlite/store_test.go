package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store/sqlite"
)

// setupStore creates a SQLite store backed by a temporary database file.
func setupStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = st.Close()
	})

	return st
}

func sampleStore(agentID string) *core.AgentMemoryStore {
	mem := core.NewAgentMemoryStore(agentID)
	mem.Append(&core.MemoryRecord{
		ID:        1,
		ActorID:   "player-1",
		ActorName: "Steve",
		Input:     "Do you have any emeralds?",
		Response:  "Only a few, and they are not for sale.",
		CreatedAt: time.Now().Add(-time.Hour),
		GameDay:   12,
		Kind:      core.KindVoice,
	})
	mem.Append(&core.MemoryRecord{
		ID:        2,
		ActorID:   "player-1",
		ActorName: "Steve",
		Input:     "What about bread?",
		Response:  "Bread I can do. Three loaves for one emerald.",
		CreatedAt: time.Now(),
		GameDay:   12,
		Kind:      core.KindTrade,
	})
	return mem
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	mem := sampleStore("villager-1")
	require.NoError(t, st.Save(ctx, mem))

	loaded, err := st.Load(ctx, "villager-1")
	require.NoError(t, err)

	assert.Equal(t, "villager-1", loaded.AgentID)
	assert.Equal(t, 2, loaded.RecordCount())
	assert.Equal(t, int64(2), loaded.InteractionCount)
	assert.Equal(t, "What about bread?", loaded.Records[1].Input)
	assert.Equal(t, core.KindTrade, loaded.Records[1].Kind)
	assert.False(t, loaded.LastInteractionAt.IsZero())
}

func TestSQLiteStore_LoadMissing(t *testing.T) {
	st := setupStore(t)

	_, err := st.Load(context.Background(), "no-such-agent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAgentNotFound))
}

func TestSQLiteStore_SaveUpserts(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	mem := sampleStore("villager-1")
	require.NoError(t, st.Save(ctx, mem))

	// Drop one record and save again; the row must be replaced, not appended.
	mem.Records = mem.Records[:1]
	require.NoError(t, st.Save(ctx, mem))

	loaded, err := st.Load(ctx, "villager-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.RecordCount())

	ids, err := st.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"villager-1"}, ids)
}

func TestSQLiteStore_DeleteAbsentIsNoError(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	require.NoError(t, st.Delete(ctx, "never-existed"))

	mem := sampleStore("villager-2")
	require.NoError(t, st.Save(ctx, mem))
	require.NoError(t, st.Delete(ctx, "villager-2"))

	_, err := st.Load(ctx, "villager-2")
	assert.True(t, errors.Is(err, core.ErrAgentNotFound))
}

func TestSQLiteStore_ListIDs(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	for _, id := range []string{"villager-c", "villager-a", "villager-b"} {
		require.NoError(t, st.Save(ctx, core.NewAgentMemoryStore(id)))
	}

	ids, err := st.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"villager-a", "villager-b", "villager-c"}, ids)
}

func TestSQLiteStore_EmptyAgentIDRejected(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	_, err := st.Load(ctx, "")
	assert.True(t, errors.Is(err, core.ErrInvalidInput))

	err = st.Save(ctx, &core.AgentMemoryStore{})
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}
