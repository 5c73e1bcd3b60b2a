package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

// Usage thresholds relative to the global cap.
const (
	highUsagePercent     = 80.0
	criticalUsagePercent = 100.0
)

// UsageStatistics is an aggregate view of memory usage across all agents.
type UsageStatistics struct {
	// TotalAgents is the number of agents with a persisted store.
	TotalAgents int `json:"total_agents"`

	// AgentsWithRecords is the number of agents with at least one record.
	AgentsWithRecords int `json:"agents_with_records"`

	// TotalRecords is the global record count.
	TotalRecords int `json:"total_records"`

	// AverageRecords is the mean record count per agent with records.
	AverageRecords float64 `json:"average_records"`

	// MaxRecords is the largest per-agent record count.
	MaxRecords int `json:"max_records"`

	// OldestRecord is the creation time of the oldest record, zero if none.
	OldestRecord time.Time `json:"oldest_record,omitempty"`

	// NewestRecord is the creation time of the newest record, zero if none.
	NewestRecord time.Time `json:"newest_record,omitempty"`

	// KindBreakdown counts records by interaction kind.
	KindBreakdown map[core.InteractionKind]int `json:"kind_breakdown"`

	// UsagePercent is TotalRecords as a percentage of the global cap.
	UsagePercent float64 `json:"usage_percent"`
}

// IsMemoryUsageHigh reports whether usage exceeds 80% of the global cap.
func (s *UsageStatistics) IsMemoryUsageHigh() bool {
	return s.UsagePercent > highUsagePercent
}

// IsMemoryUsageCritical reports whether usage exceeds the global cap.
func (s *UsageStatistics) IsMemoryUsageCritical() bool {
	return s.UsagePercent > criticalUsagePercent
}

// GetMemoryUsageStatistics computes aggregate usage statistics over every
// agent store. Per-agent load failures are logged and excluded from the
// aggregate rather than failing the whole computation.
func (o *UsageOptimizer) GetMemoryUsageStatistics(ctx context.Context) (*UsageStatistics, error) {
	ids, err := o.store.ListIDs(ctx)
	if err != nil {
		return nil, core.NewEngineError("GetMemoryUsageStatistics", err)
	}

	stats := &UsageStatistics{
		KindBreakdown: make(map[core.InteractionKind]int),
	}

	for _, id := range ids {
		mem, err := o.store.Load(ctx, id)
		if err != nil {
			o.logger.Warn("usage statistics skipping agent",
				slog.String("agent_id", id),
				slog.Any("error", err))
			continue
		}

		stats.TotalAgents++
		count := mem.RecordCount()
		if count == 0 {
			continue
		}

		stats.AgentsWithRecords++
		stats.TotalRecords += count
		if count > stats.MaxRecords {
			stats.MaxRecords = count
		}

		for _, r := range mem.Records {
			stats.KindBreakdown[r.Kind]++
			if stats.OldestRecord.IsZero() || r.CreatedAt.Before(stats.OldestRecord) {
				stats.OldestRecord = r.CreatedAt
			}
			if r.CreatedAt.After(stats.NewestRecord) {
				stats.NewestRecord = r.CreatedAt
			}
		}
	}

	if stats.AgentsWithRecords > 0 {
		stats.AverageRecords = float64(stats.TotalRecords) / float64(stats.AgentsWithRecords)
	}
	stats.UsagePercent = float64(stats.TotalRecords) / float64(o.cfg.GlobalCap) * 100
	return stats, nil
}
