package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store"
)

// ExpiryCleaner removes memory records that have aged past a retention
// window, measured in logical days.
//
// All cleanup operations are idempotent: re-running with no expired records
// removes nothing and performs no writes. Batch sweeps isolate per-agent
// failures: a store that fails to load or save is logged and skipped, and
// the sweep continues with the next agent.
type ExpiryCleaner struct {
	store  store.RecordStore
	day    core.DaySource
	locker sync.Locker
	logger *slog.Logger

	// mu guards the last-sweep statistics.
	mu               sync.Mutex
	lastSweepRemoved int
	lastSweepTotal   int
	lastSweepAt      time.Time
}

// NewExpiryCleaner creates a new expiry cleaner.
//
// Parameters:
//   - recordStore: The record store to sweep
//   - day: Source of the current logical day
//   - locker: The store mutation lock shared with the other subsystems
//     (nil allocates a private mutex)
//   - logger: Structured logger (nil uses slog.Default())
func NewExpiryCleaner(recordStore store.RecordStore, day core.DaySource, locker sync.Locker, logger *slog.Logger) *ExpiryCleaner {
	if locker == nil {
		locker = &sync.Mutex{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpiryCleaner{
		store:  recordStore,
		day:    day,
		locker: locker,
		logger: logger,
	}
}

// CleanupExpired sweeps every agent store, removing records older than
// retentionDays relative to currentDay.
//
// A store is persisted only if at least one record was removed. Per-agent
// load/save failures are logged and skipped; the sweep never fails because
// of one agent.
//
// Returns the number of records removed across all agents.
func (c *ExpiryCleaner) CleanupExpired(ctx context.Context, currentDay, retentionDays int64) (int, error) {
	ids, err := c.store.ListIDs(ctx)
	if err != nil {
		return 0, core.NewEngineError("CleanupExpired", err)
	}

	c.locker.Lock()
	defer c.locker.Unlock()

	removed := 0
	remaining := 0
	for _, id := range ids {
		n, total, err := c.cleanupStore(ctx, id, currentDay, retentionDays)
		if err != nil {
			c.logger.Warn("expiry sweep skipping agent",
				slog.String("agent_id", id),
				slog.Any("error", err))
			continue
		}
		removed += n
		remaining += total
	}

	c.mu.Lock()
	c.lastSweepRemoved = removed
	c.lastSweepTotal = remaining
	c.lastSweepAt = time.Now()
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Info("expiry sweep removed records",
			slog.Int("removed", removed),
			slog.Int("agents", len(ids)))
	}

	return removed, nil
}

// CleanupForAgent removes expired records from a single agent's store.
//
// Unlike the batch sweep, a failure here is returned to the caller.
//
// Returns the number of records removed.
func (c *ExpiryCleaner) CleanupForAgent(ctx context.Context, agentID string, retentionDays int64) (int, error) {
	c.locker.Lock()
	defer c.locker.Unlock()

	removed, _, err := c.cleanupStore(ctx, agentID, c.day(), retentionDays)
	if err != nil {
		return 0, core.NewEngineError("CleanupForAgent", err)
	}
	return removed, nil
}

// ForceCleanupOlderThan removes every record older than maxAgeDays across
// all agents, ignoring the configured retention window. Used for emergency
// situations where an absolute age ceiling must be enforced.
//
// Returns the number of records removed.
func (c *ExpiryCleaner) ForceCleanupOlderThan(ctx context.Context, maxAgeDays int64) (int, error) {
	removed, err := c.CleanupExpired(ctx, c.day(), maxAgeDays)
	if err != nil {
		return 0, core.NewEngineError("ForceCleanupOlderThan", err)
	}
	return removed, nil
}

// LastSweep returns the removed count, remaining record total, and time of
// the most recent batch sweep.
func (c *ExpiryCleaner) LastSweep() (removed int, total int, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSweepRemoved, c.lastSweepTotal, c.lastSweepAt
}

// cleanupStore loads one store, drops expired records, and saves it if
// anything was removed. It returns the removed count and the remaining
// record count. Callers hold the store lock.
func (c *ExpiryCleaner) cleanupStore(ctx context.Context, agentID string, currentDay, retentionDays int64) (int, int, error) {
	mem, err := c.store.Load(ctx, agentID)
	if err != nil {
		return 0, 0, err
	}

	kept := mem.Records[:0:0]
	for _, r := range mem.Records {
		if r.AgeDays(currentDay) > retentionDays {
			continue
		}
		kept = append(kept, r)
	}

	removed := len(mem.Records) - len(kept)
	if removed == 0 {
		return 0, len(mem.Records), nil
	}

	mem.Records = kept
	if err := c.store.Save(ctx, mem); err != nil {
		return 0, 0, err
	}

	return removed, len(kept), nil
}
