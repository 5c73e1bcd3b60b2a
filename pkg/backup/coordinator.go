// Package backup creates, retains, and restores consolidated snapshots of
// all agent memory stores.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store"
)

// SnapshotVersion is the format version written into every snapshot.
const SnapshotVersion = "1.0.0"

// recentBackupWindow is how recent a backup must be to count as "recent".
const recentBackupWindow = 48 * time.Hour

// Snapshot is the consolidated artifact written per backup: a header plus
// every agent's full store contents, in the same shape the record store
// serializes.
type Snapshot struct {
	// BackupID uniquely identifies the snapshot.
	BackupID string `json:"backup_id"`

	// BackupTimestamp is the creation time in epoch milliseconds.
	BackupTimestamp int64 `json:"backup_timestamp"`

	// BackupVersion is the snapshot format version.
	BackupVersion string `json:"backup_version"`

	// AgentCount is the number of agents included.
	AgentCount int `json:"agent_count"`

	// AgentData maps agent id to that agent's full store contents.
	AgentData map[string]*core.AgentMemoryStore `json:"agent_data"`
}

// Info is metadata for one snapshot on disk.
type Info struct {
	// Name is the snapshot file name.
	Name string `json:"name"`

	// Path is the absolute path to the snapshot file.
	Path string `json:"path"`

	// Size is the file size in bytes.
	Size int64 `json:"size"`

	// CreatedAt is the snapshot creation time from the embedded header.
	CreatedAt time.Time `json:"created_at"`

	// AgentCount is the number of agents in the snapshot.
	AgentCount int `json:"agent_count"`
}

// RestoreResult summarizes one restore operation.
type RestoreResult struct {
	// Restored is the number of agents written back to the store.
	Restored int

	// Skipped is the number of agents skipped, either because they already
	// had data and overwrite was off, or because their entry failed to save.
	Skipped int
}

// Statistics is an aggregate view of the backup subsystem.
type Statistics struct {
	// LastBackupTime is when the most recent backup succeeded.
	LastBackupTime time.Time

	// TotalCreated is the number of backups created since startup.
	TotalCreated int

	// TotalRestored is the number of restore operations since startup.
	TotalRestored int

	// AvailableCount is the number of snapshots currently on disk.
	AvailableCount int

	// LastError is the most recent backup or restore error message, empty
	// if the last operation succeeded.
	LastError string
}

// HasRecentBackup reports whether a backup succeeded within the last 2 days.
func (s *Statistics) HasRecentBackup() bool {
	if s.LastBackupTime.IsZero() {
		return false
	}
	return time.Since(s.LastBackupTime) < recentBackupWindow
}

// Coordinator snapshots all agent stores into consolidated artifacts and
// restores them. Snapshots are immutable once written; retention deletes the
// oldest files beyond the configured cap after each backup.
type Coordinator struct {
	store      store.RecordStore
	dir        string
	maxBackups int
	locker     sync.Locker
	logger     *slog.Logger

	// mu guards the statistics.
	mu            sync.Mutex
	lastBackup    time.Time
	totalCreated  int
	totalRestored int
	lastError     string
}

// NewCoordinator creates a new backup coordinator.
//
// Parameters:
//   - recordStore: The record store to snapshot
//   - cfg: Backup directory and retention settings
//   - locker: The store mutation lock shared with the other subsystems
//     (nil allocates a private mutex; backups only read the store, but
//     restore writes must serialize with the maintenance sweeps)
//   - logger: Structured logger (nil uses slog.Default())
func NewCoordinator(recordStore store.RecordStore, cfg core.BackupConfig, locker sync.Locker, logger *slog.Logger) *Coordinator {
	if cfg.Dir == "" {
		cfg.Dir = "./villager_backups"
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = core.DefaultMaxBackups
	}
	if locker == nil {
		locker = &sync.Mutex{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:      recordStore,
		dir:        cfg.Dir,
		maxBackups: cfg.MaxBackups,
		locker:     locker,
		logger:     logger,
	}
}

// CreateManualBackup snapshots every agent store into one consolidated
// artifact.
//
// An agent whose store fails to load is logged and omitted from the
// snapshot; the backup itself still succeeds. After the snapshot is written,
// snapshots beyond the retention cap are deleted oldest-first by file
// modification time.
//
// Parameters:
//   - ctx: Context for controlling the backup
//   - name: Optional snapshot file name; empty generates a timestamped name
//
// Returns the path of the written snapshot, or an error if the snapshot
// could not be written.
func (c *Coordinator) CreateManualBackup(ctx context.Context, name string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", c.failBackup("CreateManualBackup", err)
	}

	ids, err := c.store.ListIDs(ctx)
	if err != nil {
		return "", c.failBackup("CreateManualBackup", err)
	}

	snapshot := &Snapshot{
		BackupID:        uuid.NewString(),
		BackupTimestamp: time.Now().UnixMilli(),
		BackupVersion:   SnapshotVersion,
		AgentData:       make(map[string]*core.AgentMemoryStore, len(ids)),
	}

	for _, id := range ids {
		mem, err := c.store.Load(ctx, id)
		if err != nil {
			c.logger.Warn("backup omitting agent",
				slog.String("agent_id", id),
				slog.Any("error", err))
			continue
		}
		snapshot.AgentData[id] = mem
	}
	snapshot.AgentCount = len(snapshot.AgentData)

	if name == "" {
		name = fmt.Sprintf("backup_%s.json", time.Now().Format("20060102_150405"))
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	path := filepath.Join(c.dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", c.failBackup("CreateManualBackup", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", c.failBackup("CreateManualBackup",
			fmt.Errorf("%w: write snapshot: %v", core.ErrBackupFailed, err))
	}

	c.mu.Lock()
	c.lastBackup = time.Now()
	c.totalCreated++
	c.lastError = ""
	c.mu.Unlock()

	c.logger.Info("backup created",
		slog.String("path", path),
		slog.Int("agent_count", snapshot.AgentCount))

	if err := c.enforceRetention(); err != nil {
		c.logger.Warn("backup retention sweep failed", slog.Any("error", err))
	}

	return path, nil
}

// RestoreFromBackup restores agent stores from a snapshot artifact.
//
// Each agent entry is either saved to the store or skipped: an agent that
// already has records is skipped unless overwrite is true, and a per-agent
// save failure is logged and counted as skipped rather than failing the
// restore.
//
// Parameters:
//   - ctx: Context for controlling the restore
//   - path: Path to the snapshot file
//   - overwrite: Whether to replace agents that already have data
//
// Returns the restored/skipped counts, or an error if the snapshot cannot
// be read or parsed.
func (c *Coordinator) RestoreFromBackup(ctx context.Context, path string, overwrite bool) (*RestoreResult, error) {
	snapshot, err := readSnapshot(path)
	if err != nil {
		c.mu.Lock()
		c.lastError = err.Error()
		c.mu.Unlock()
		return nil, core.NewEngineError("RestoreFromBackup", err)
	}

	c.locker.Lock()
	defer c.locker.Unlock()

	result := &RestoreResult{}
	for agentID, mem := range snapshot.AgentData {
		if !overwrite {
			existing, err := c.store.Load(ctx, agentID)
			if err == nil && existing.RecordCount() > 0 {
				result.Skipped++
				continue
			}
			if err != nil && !errors.Is(err, core.ErrAgentNotFound) {
				c.logger.Warn("restore skipping agent",
					slog.String("agent_id", agentID),
					slog.Any("error", err))
				result.Skipped++
				continue
			}
		}

		mem.AgentID = agentID
		if err := c.store.Save(ctx, mem); err != nil {
			c.logger.Warn("restore failed to save agent",
				slog.String("agent_id", agentID),
				slog.Any("error", err))
			result.Skipped++
			continue
		}
		result.Restored++
	}

	c.mu.Lock()
	c.totalRestored++
	c.mu.Unlock()

	c.logger.Info("restore complete",
		slog.String("path", path),
		slog.Int("restored", result.Restored),
		slog.Int("skipped", result.Skipped))

	return result, nil
}

// RestoreAgentFromLatest searches snapshots newest-first for the given agent
// and restores its store from the first snapshot containing it. Used to
// recover an agent whose persisted data failed to deserialize.
//
// Returns the restored store, or core.ErrAgentNotFound if no snapshot
// contains the agent.
func (c *Coordinator) RestoreAgentFromLatest(ctx context.Context, agentID string) (*core.AgentMemoryStore, error) {
	backups, err := c.ListAvailableBackups()
	if err != nil {
		return nil, core.NewEngineError("RestoreAgentFromLatest", err)
	}

	for _, info := range backups {
		snapshot, err := readSnapshot(info.Path)
		if err != nil {
			c.logger.Warn("skipping unreadable snapshot",
				slog.String("path", info.Path),
				slog.Any("error", err))
			continue
		}
		mem, ok := snapshot.AgentData[agentID]
		if !ok {
			continue
		}

		mem.AgentID = agentID
		c.locker.Lock()
		err = c.store.Save(ctx, mem)
		c.locker.Unlock()
		if err != nil {
			return nil, core.NewEngineError("RestoreAgentFromLatest", err)
		}
		return mem, nil
	}

	return nil, core.NewEngineError("RestoreAgentFromLatest",
		fmt.Errorf("%w: %s not present in any snapshot", core.ErrAgentNotFound, agentID))
}

// ListAvailableBackups returns metadata for every snapshot on disk, sorted
// newest-first by embedded creation time.
func (c *Coordinator) ListAvailableBackups() ([]Info, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.NewEngineError("ListAvailableBackups", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())

		fi, err := entry.Info()
		if err != nil {
			continue
		}

		info := Info{
			Name: entry.Name(),
			Path: path,
			Size: fi.Size(),
		}
		if snapshot, err := readSnapshot(path); err == nil {
			info.CreatedAt = time.UnixMilli(snapshot.BackupTimestamp)
			info.AgentCount = snapshot.AgentCount
		} else {
			info.CreatedAt = fi.ModTime()
		}
		infos = append(infos, info)
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// GetBackupStatistics returns an aggregate view of the backup subsystem.
func (c *Coordinator) GetBackupStatistics() *Statistics {
	available := 0
	if infos, err := c.ListAvailableBackups(); err == nil {
		available = len(infos)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return &Statistics{
		LastBackupTime: c.lastBackup,
		TotalCreated:   c.totalCreated,
		TotalRestored:  c.totalRestored,
		AvailableCount: available,
		LastError:      c.lastError,
	}
}

// enforceRetention deletes the oldest snapshots beyond the retention cap,
// ordered by file modification time.
func (c *Coordinator) enforceRetention() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}

	type backupFile struct {
		path    string
		modTime time.Time
	}
	files := make([]backupFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, backupFile{
			path:    filepath.Join(c.dir, entry.Name()),
			modTime: fi.ModTime(),
		})
	}

	if len(files) <= c.maxBackups {
		return nil
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	for _, f := range files[:len(files)-c.maxBackups] {
		if err := os.Remove(f.path); err != nil {
			c.logger.Warn("failed to delete old snapshot",
				slog.String("path", f.path),
				slog.Any("error", err))
			continue
		}
		c.logger.Debug("deleted old snapshot", slog.String("path", f.path))
	}
	return nil
}

// failBackup records a backup failure in the statistics and wraps the error.
func (c *Coordinator) failBackup(op string, err error) error {
	c.mu.Lock()
	c.lastError = err.Error()
	c.mu.Unlock()
	return core.NewEngineError(op, err)
}

// readSnapshot reads and parses one snapshot artifact.
func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: parse snapshot: %v", core.ErrCorruptData, err)
	}
	return &snapshot, nil
}
