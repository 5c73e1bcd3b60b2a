package lifecycle

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/store"
)

// Strategy names reported in optimization results.
const (
	StrategyStandard   = "standard"
	StrategyAggressive = "aggressive"
)

// UsageOptimizer applies standard or aggressive eviction strategies based on
// global and per-agent record counts.
//
// Below the global cap, each store gets a normal expiry pass and is trimmed
// to the per-agent cap by importance ranking. Above the global cap the
// optimizer works hardest on the heaviest stores: very large stores are
// trimmed sharply, mid-sized stores get a halved retention window, and small
// stores keep the standard retention.
type UsageOptimizer struct {
	store     store.RecordStore
	cleaner   *ExpiryCleaner
	retention core.RetentionConfig
	cfg       core.OptimizerConfig
	day       core.DaySource
	locker    sync.Locker
	logger    *slog.Logger

	// mu guards the last-run bookkeeping.
	mu      sync.Mutex
	lastRun *OptimizationResult
}

// OptimizationResult summarizes one optimization run.
type OptimizationResult struct {
	// Strategy is the eviction strategy applied (standard or aggressive).
	Strategy string

	// TotalRecordsBefore is the global record count at the start of the run.
	TotalRecordsBefore int

	// RemovedExpired is the number of records removed by expiry passes.
	RemovedExpired int

	// RemovedTrimmed is the number of records removed by importance trimming.
	RemovedTrimmed int

	// AgentsProcessed is the number of stores the run touched.
	AgentsProcessed int

	// Duration is the wall-clock duration of the run.
	Duration time.Duration

	// CompletedAt is when the run finished.
	CompletedAt time.Time
}

// Removed returns the total number of records removed by the run.
func (r *OptimizationResult) Removed() int {
	return r.RemovedExpired + r.RemovedTrimmed
}

// NewUsageOptimizer creates a new usage optimizer.
//
// Parameters:
//   - recordStore: The record store to optimize
//   - cleaner: The expiry cleaner used for retention passes
//   - retention: Retention windows (zero values fall back to defaults)
//   - cfg: Optimization thresholds (zero values fall back to defaults)
//   - day: Source of the current logical day
//   - locker: The store mutation lock shared with the other subsystems
//     (nil allocates a private mutex)
//   - logger: Structured logger (nil uses slog.Default())
func NewUsageOptimizer(
	recordStore store.RecordStore,
	cleaner *ExpiryCleaner,
	retention core.RetentionConfig,
	cfg core.OptimizerConfig,
	day core.DaySource,
	locker sync.Locker,
	logger *slog.Logger,
) *UsageOptimizer {
	if retention.RetentionDays <= 0 {
		retention.RetentionDays = core.DefaultRetentionDays
	}
	if retention.MaxRecordAgeDays <= 0 {
		retention.MaxRecordAgeDays = core.DefaultMaxRecordAgeDays
	}
	if cfg.PerAgentCap <= 0 {
		cfg.PerAgentCap = core.DefaultPerAgentCap
	}
	if cfg.GlobalCap <= 0 {
		cfg.GlobalCap = core.DefaultGlobalCap
	}
	if cfg.AggressiveTrimThreshold <= 0 {
		cfg.AggressiveTrimThreshold = 50
	}
	if cfg.AggressiveTrimTarget <= 0 {
		cfg.AggressiveTrimTarget = 30
	}
	if cfg.ModerateBandLow <= 0 {
		cfg.ModerateBandLow = 20
	}
	if cfg.MinHalvedRetentionDays <= 0 {
		cfg.MinHalvedRetentionDays = 7
	}
	if locker == nil {
		locker = &sync.Mutex{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageOptimizer{
		store:     recordStore,
		cleaner:   cleaner,
		retention: retention,
		cfg:       cfg,
		day:       day,
		locker:    locker,
		logger:    logger,
	}
}

// PerformOptimization runs one optimization pass over all agent stores.
//
// The pass loads every store, computes the global record count, and applies
// the standard strategy when the total is within the global cap or the
// aggressive strategy when it is not. Per-agent load/save failures are
// logged and skipped.
func (o *UsageOptimizer) PerformOptimization(ctx context.Context) (*OptimizationResult, error) {
	start := time.Now()

	ids, err := o.store.ListIDs(ctx)
	if err != nil {
		return nil, core.NewEngineError("PerformOptimization", err)
	}

	o.locker.Lock()
	defer o.locker.Unlock()

	stores := make([]*core.AgentMemoryStore, 0, len(ids))
	total := 0
	for _, id := range ids {
		mem, err := o.store.Load(ctx, id)
		if err != nil {
			o.logger.Warn("optimization skipping agent",
				slog.String("agent_id", id),
				slog.Any("error", err))
			continue
		}
		stores = append(stores, mem)
		total += mem.RecordCount()
	}

	result := &OptimizationResult{
		TotalRecordsBefore: total,
		AgentsProcessed:    len(stores),
	}

	currentDay := o.day()
	if total <= o.cfg.GlobalCap {
		result.Strategy = StrategyStandard
		o.optimizeStandard(ctx, stores, currentDay, result)
	} else {
		result.Strategy = StrategyAggressive
		o.optimizeAggressive(ctx, stores, currentDay, result)
	}

	result.Duration = time.Since(start)
	result.CompletedAt = time.Now()

	o.mu.Lock()
	o.lastRun = result
	o.mu.Unlock()

	o.logger.Info("optimization pass complete",
		slog.String("strategy", result.Strategy),
		slog.Int("removed_expired", result.RemovedExpired),
		slog.Int("removed_trimmed", result.RemovedTrimmed),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// optimizeStandard applies the configured retention window to every store,
// then trims any store still above the per-agent cap.
func (o *UsageOptimizer) optimizeStandard(ctx context.Context, stores []*core.AgentMemoryStore, currentDay int64, result *OptimizationResult) {
	for _, mem := range stores {
		expired := dropExpired(mem, currentDay, o.retention.RetentionDays)
		kept, trimmed := TrimToCap(mem.Records, o.cfg.PerAgentCap)
		mem.Records = kept

		result.RemovedExpired += expired
		result.RemovedTrimmed += trimmed

		if expired+trimmed > 0 {
			if err := o.store.Save(ctx, mem); err != nil {
				o.logger.Warn("optimization failed to save agent",
					slog.String("agent_id", mem.AgentID),
					slog.Any("error", err))
				result.RemovedExpired -= expired
				result.RemovedTrimmed -= trimmed
			}
		}
	}
}

// optimizeAggressive works from the heaviest store down: stores above the
// trim threshold are cut to the trim target, mid-sized stores get a halved
// retention window (floored at the configured minimum), and small stores
// keep the standard retention.
func (o *UsageOptimizer) optimizeAggressive(ctx context.Context, stores []*core.AgentMemoryStore, currentDay int64, result *OptimizationResult) {
	sort.SliceStable(stores, func(i, j int) bool {
		return stores[i].RecordCount() > stores[j].RecordCount()
	})

	halvedRetention := o.retention.RetentionDays / 2
	if halvedRetention < o.cfg.MinHalvedRetentionDays {
		halvedRetention = o.cfg.MinHalvedRetentionDays
	}

	for _, mem := range stores {
		var expired, trimmed int

		switch {
		case mem.RecordCount() > o.cfg.AggressiveTrimThreshold:
			mem.Records, trimmed = TrimToCap(mem.Records, o.cfg.AggressiveTrimTarget)
		case mem.RecordCount() >= o.cfg.ModerateBandLow:
			expired = dropExpired(mem, currentDay, halvedRetention)
		default:
			expired = dropExpired(mem, currentDay, o.retention.RetentionDays)
		}

		result.RemovedExpired += expired
		result.RemovedTrimmed += trimmed

		if expired+trimmed > 0 {
			if err := o.store.Save(ctx, mem); err != nil {
				o.logger.Warn("optimization failed to save agent",
					slog.String("agent_id", mem.AgentID),
					slog.Any("error", err))
				result.RemovedExpired -= expired
				result.RemovedTrimmed -= trimmed
			}
		}
	}
}

// PerformEmergencyCleanup bypasses the usual strategies and force-removes
// everything older than the absolute maximum record age. Invoked by the
// health orchestrator when usage is critical.
//
// Returns the number of records removed.
func (o *UsageOptimizer) PerformEmergencyCleanup(ctx context.Context) (int, error) {
	o.logger.Warn("performing emergency cleanup",
		slog.Int64("max_record_age_days", o.retention.MaxRecordAgeDays))

	removed, err := o.cleaner.ForceCleanupOlderThan(ctx, o.retention.MaxRecordAgeDays)
	if err != nil {
		return 0, core.NewEngineError("PerformEmergencyCleanup", err)
	}
	return removed, nil
}

// LastRun returns the result of the most recent optimization pass, or nil
// if no pass has run yet.
func (o *UsageOptimizer) LastRun() *OptimizationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRun
}

// GlobalCap returns the configured global record cap.
func (o *UsageOptimizer) GlobalCap() int {
	return o.cfg.GlobalCap
}

// dropExpired removes records older than retentionDays in place and returns
// the removed count.
func dropExpired(mem *core.AgentMemoryStore, currentDay, retentionDays int64) int {
	kept := mem.Records[:0:0]
	for _, r := range mem.Records {
		if r.AgeDays(currentDay) > retentionDays {
			continue
		}
		kept = append(kept, r)
	}
	removed := len(mem.Records) - len(kept)
	mem.Records = kept
	return removed
}
