package backup_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/backup"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store/file"
)

func setupCoordinator(t *testing.T, maxBackups int) (*backup.Coordinator, store.RecordStore, string) {
	t.Helper()
	recordStore, err := file.NewStore(&file.Config{RootDir: t.TempDir()})
	require.NoError(t, err)

	backupDir := t.TempDir()
	coordinator := backup.NewCoordinator(recordStore, core.BackupConfig{
		Dir:        backupDir,
		MaxBackups: maxBackups,
	}, nil, nil)
	return coordinator, recordStore, backupDir
}

func seedAgent(t *testing.T, recordStore store.RecordStore, agentID string, records int) {
	t.Helper()
	mem := core.NewAgentMemoryStore(agentID)
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < records; i++ {
		mem.Append(&core.MemoryRecord{
			ID:        int64(i + 1),
			ActorID:   "player_1",
			ActorName: "Steve",
			Input:     "hello",
			Response:  "well met",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			GameDay:   int64(i + 1),
			Kind:      core.KindVoice,
		})
	}
	require.NoError(t, recordStore.Save(context.Background(), mem))
}

func TestCoordinator_CreateManualBackup(t *testing.T) {
	coordinator, recordStore, _ := setupCoordinator(t, 10)
	seedAgent(t, recordStore, "villager_a", 5)
	seedAgent(t, recordStore, "villager_b", 3)

	path, err := coordinator.CreateManualBackup(context.Background(), "test_snapshot")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, "test_snapshot.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snapshot backup.Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.NotEmpty(t, snapshot.BackupID)
	assert.Equal(t, backup.SnapshotVersion, snapshot.BackupVersion)
	assert.Equal(t, 2, snapshot.AgentCount)
	assert.Positive(t, snapshot.BackupTimestamp)
	require.Contains(t, snapshot.AgentData, "villager_a")
	assert.Equal(t, 5, snapshot.AgentData["villager_a"].RecordCount())
	assert.Equal(t, 3, snapshot.AgentData["villager_b"].RecordCount())
}

func TestCoordinator_CreateManualBackup_GeneratedName(t *testing.T) {
	coordinator, recordStore, _ := setupCoordinator(t, 10)
	seedAgent(t, recordStore, "villager_a", 1)

	path, err := coordinator.CreateManualBackup(context.Background(), "")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Contains(t, filepath.Base(path), "backup_")
}

func TestCoordinator_BackupRestoreExactness(t *testing.T) {
	coordinator, recordStore, _ := setupCoordinator(t, 10)
	seedAgent(t, recordStore, "villager_a", 5)
	seedAgent(t, recordStore, "villager_b", 3)
	ctx := context.Background()

	path, err := coordinator.CreateManualBackup(ctx, "exactness")
	require.NoError(t, err)

	// Wipe the store, then restore with overwrite.
	require.NoError(t, recordStore.Delete(ctx, "villager_a"))
	require.NoError(t, recordStore.Delete(ctx, "villager_b"))

	result, err := coordinator.RestoreFromBackup(ctx, path, true)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Restored)
	assert.Zero(t, result.Skipped)

	ids, err := recordStore.ListIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	total := 0
	for _, id := range ids {
		mem, err := recordStore.Load(ctx, id)
		require.NoError(t, err)
		total += mem.RecordCount()
	}
	assert.Equal(t, 8, total)
}

func TestCoordinator_RestoreWithoutOverwriteSkipsPopulatedAgents(t *testing.T) {
	coordinator, recordStore, _ := setupCoordinator(t, 10)
	seedAgent(t, recordStore, "villager_a", 5)
	seedAgent(t, recordStore, "villager_b", 3)
	ctx := context.Background()

	path, err := coordinator.CreateManualBackup(ctx, "skip_test")
	require.NoError(t, err)

	// A keeps its (changed) data, B disappears entirely.
	changed := core.NewAgentMemoryStore("villager_a")
	changed.Append(&core.MemoryRecord{ID: 99, ActorID: "player_2", CreatedAt: time.Now(), GameDay: 1, Kind: core.KindText})
	require.NoError(t, recordStore.Save(ctx, changed))
	require.NoError(t, recordStore.Delete(ctx, "villager_b"))

	result, err := coordinator.RestoreFromBackup(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Restored)
	assert.Equal(t, 1, result.Skipped)

	// A unchanged by the restore.
	memA, err := recordStore.Load(ctx, "villager_a")
	require.NoError(t, err)
	require.Equal(t, 1, memA.RecordCount())
	assert.Equal(t, int64(99), memA.Records[0].ID)

	// B repopulated from the snapshot.
	memB, err := recordStore.Load(ctx, "villager_b")
	require.NoError(t, err)
	assert.Equal(t, 3, memB.RecordCount())
}

func TestCoordinator_RestoreMissingSnapshot(t *testing.T) {
	coordinator, _, _ := setupCoordinator(t, 10)

	_, err := coordinator.RestoreFromBackup(context.Background(), "/nonexistent/snapshot.json", true)
	assert.Error(t, err)
}

func TestCoordinator_RestoreCorruptSnapshot(t *testing.T) {
	coordinator, _, dir := setupCoordinator(t, 10)
	path := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	_, err := coordinator.RestoreFromBackup(context.Background(), path, true)
	assert.ErrorIs(t, err, core.ErrCorruptData)
}

func TestCoordinator_RetentionCap(t *testing.T) {
	coordinator, recordStore, dir := setupCoordinator(t, 3)
	seedAgent(t, recordStore, "villager_a", 1)
	ctx := context.Background()

	names := []string{"one", "two", "three", "four", "five"}
	for _, name := range names {
		_, err := coordinator.CreateManualBackup(ctx, name)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCoordinator_ListAvailableBackups(t *testing.T) {
	coordinator, recordStore, _ := setupCoordinator(t, 10)
	seedAgent(t, recordStore, "villager_a", 2)
	ctx := context.Background()

	infos, err := coordinator.ListAvailableBackups()
	require.NoError(t, err)
	assert.Empty(t, infos)

	_, err = coordinator.CreateManualBackup(ctx, "older")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = coordinator.CreateManualBackup(ctx, "newer")
	require.NoError(t, err)

	infos, err = coordinator.ListAvailableBackups()
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// Sorted newest-first.
	assert.Equal(t, "newer.json", infos[0].Name)
	assert.Equal(t, "older.json", infos[1].Name)
	for _, info := range infos {
		assert.Equal(t, 1, info.AgentCount)
		assert.Positive(t, info.Size)
		assert.False(t, info.CreatedAt.IsZero())
	}
}

func TestCoordinator_RestoreAgentFromLatest(t *testing.T) {
	coordinator, recordStore, _ := setupCoordinator(t, 10)
	seedAgent(t, recordStore, "villager_a", 4)
	ctx := context.Background()

	_, err := coordinator.CreateManualBackup(ctx, "with_a")
	require.NoError(t, err)

	require.NoError(t, recordStore.Delete(ctx, "villager_a"))

	mem, err := coordinator.RestoreAgentFromLatest(ctx, "villager_a")
	require.NoError(t, err)
	assert.Equal(t, 4, mem.RecordCount())

	reloaded, err := recordStore.Load(ctx, "villager_a")
	require.NoError(t, err)
	assert.Equal(t, 4, reloaded.RecordCount())
}

func TestCoordinator_RestoreAgentFromLatest_NotInAnySnapshot(t *testing.T) {
	coordinator, recordStore, _ := setupCoordinator(t, 10)
	seedAgent(t, recordStore, "villager_a", 1)
	ctx := context.Background()

	_, err := coordinator.CreateManualBackup(ctx, "without_b")
	require.NoError(t, err)

	_, err = coordinator.RestoreAgentFromLatest(ctx, "villager_b")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestCoordinator_GetBackupStatistics(t *testing.T) {
	coordinator, recordStore, _ := setupCoordinator(t, 10)
	seedAgent(t, recordStore, "villager_a", 1)
	ctx := context.Background()

	stats := coordinator.GetBackupStatistics()
	assert.Zero(t, stats.TotalCreated)
	assert.False(t, stats.HasRecentBackup())

	path, err := coordinator.CreateManualBackup(ctx, "stat_test")
	require.NoError(t, err)
	_, err = coordinator.RestoreFromBackup(ctx, path, true)
	require.NoError(t, err)

	stats = coordinator.GetBackupStatistics()
	assert.Equal(t, 1, stats.TotalCreated)
	assert.Equal(t, 1, stats.TotalRestored)
	assert.Equal(t, 1, stats.AvailableCount)
	assert.Empty(t, stats.LastError)
	assert.True(t, stats.HasRecentBackup())
}
