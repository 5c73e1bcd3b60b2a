// Package health composes the maintenance subsystems into a single health
// signal and runs the self-correcting comprehensive cleanup.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/backup"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/lifecycle"
)

// ExpirySweeper is the slice of the expiry cleaner the monitor depends on.
type ExpirySweeper interface {
	CleanupExpired(ctx context.Context, currentDay, retentionDays int64) (int, error)
	LastSweep() (removed int, total int, at time.Time)
}

// Optimizer is the slice of the usage optimizer the monitor depends on.
type Optimizer interface {
	PerformOptimization(ctx context.Context) (*lifecycle.OptimizationResult, error)
	PerformEmergencyCleanup(ctx context.Context) (int, error)
	GetMemoryUsageStatistics(ctx context.Context) (*lifecycle.UsageStatistics, error)
}

// BackupProvider is the slice of the backup coordinator the monitor depends on.
type BackupProvider interface {
	CreateManualBackup(ctx context.Context, name string) (string, error)
	GetBackupStatistics() *backup.Statistics
}

// Status is the composed health signal for one check.
type Status struct {
	// Healthy is false if usage is critical, there is no recent backup, or
	// the backup subsystem reports an error.
	Healthy bool

	// Message is a short composed health summary.
	Message string

	// TotalRecords is the global record count at check time.
	TotalRecords int

	// UsagePercent is usage relative to the global cap.
	UsagePercent float64

	// LastSweepRemoved is the removed count from the most recent expiry sweep.
	LastSweepRemoved int

	// EmergencyCleanupRemoved is the number of records removed by the
	// automatic emergency cleanup, zero if it did not run.
	EmergencyCleanupRemoved int

	// HasRecentBackup reports whether a backup succeeded within 2 days.
	HasRecentBackup bool

	// BackupError is the backup subsystem's last error, empty if none.
	BackupError string

	// CheckedAt is when the check ran.
	CheckedAt time.Time
}

// CleanupReport summarizes one comprehensive cleanup run.
type CleanupReport struct {
	// ExpiredRemoved is the record count removed by the expiry pass.
	ExpiredRemoved int

	// OptimizeRemoved is the record count removed by the optimization pass.
	OptimizeRemoved int

	// Strategy is the optimization strategy that ran.
	Strategy string

	// BackupPath is the snapshot written at the end of the run, empty if
	// the backup failed.
	BackupPath string

	// BackupError is the backup failure message, empty on success. A
	// failed backup does not fail the comprehensive cleanup.
	BackupError string

	// Duration is the wall-clock duration of the full run.
	Duration time.Duration

	// Summary is a human-readable report of the run.
	Summary string
}

// Monitor runs the hourly health check and the comprehensive cleanup,
// triggering emergency cleanup automatically when usage is critical.
type Monitor struct {
	cleaner   ExpirySweeper
	optimizer Optimizer
	backups   BackupProvider
	retention core.RetentionConfig
	day       core.DaySource
	logger    *slog.Logger

	// mu guards the last status.
	mu   sync.Mutex
	last *Status
}

// NewMonitor creates a new health monitor.
//
// Parameters:
//   - cleaner: The expiry cleaner
//   - optimizer: The usage optimizer
//   - backups: The backup coordinator
//   - retention: Retention windows used by the comprehensive cleanup
//   - day: Source of the current logical day
//   - logger: Structured logger (nil uses slog.Default())
func NewMonitor(
	cleaner ExpirySweeper,
	optimizer Optimizer,
	backups BackupProvider,
	retention core.RetentionConfig,
	day core.DaySource,
	logger *slog.Logger,
) *Monitor {
	if retention.RetentionDays <= 0 {
		retention.RetentionDays = core.DefaultRetentionDays
	}
	if retention.MaxRecordAgeDays <= 0 {
		retention.MaxRecordAgeDays = core.DefaultMaxRecordAgeDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cleaner:   cleaner,
		optimizer: optimizer,
		backups:   backups,
		retention: retention,
		day:       day,
		logger:    logger,
	}
}

// CheckHealth runs one health check.
//
// The check pulls the expiry cleaner's last sweep, the optimizer's usage
// statistics, and the backup statistics. Critical usage triggers an
// automatic emergency cleanup before the status is composed.
//
// Returns the composed status. A statistics failure degrades the check
// rather than failing it; the error is embedded in the status message.
func (m *Monitor) CheckHealth(ctx context.Context) *Status {
	status := &Status{
		Healthy:   true,
		CheckedAt: time.Now(),
	}
	var parts []string

	removed, total, at := m.cleaner.LastSweep()
	status.LastSweepRemoved = removed
	if at.IsZero() {
		parts = append(parts, "expiry: no sweep yet")
	} else {
		parts = append(parts, fmt.Sprintf("expiry: removed %d of %d records at last sweep", removed, total))
	}

	stats, err := m.optimizer.GetMemoryUsageStatistics(ctx)
	if err != nil {
		status.Healthy = false
		parts = append(parts, fmt.Sprintf("usage: statistics unavailable (%v)", err))
	} else {
		status.TotalRecords = stats.TotalRecords
		status.UsagePercent = stats.UsagePercent

		switch {
		case stats.IsMemoryUsageCritical():
			status.Healthy = false
			parts = append(parts, fmt.Sprintf("usage: CRITICAL at %.1f%%", stats.UsagePercent))

			m.logger.Warn("memory usage critical, running emergency cleanup",
				slog.Float64("usage_percent", stats.UsagePercent))
			cleaned, err := m.optimizer.PerformEmergencyCleanup(ctx)
			if err != nil {
				parts = append(parts, fmt.Sprintf("emergency cleanup failed: %v", err))
			} else {
				status.EmergencyCleanupRemoved = cleaned
				parts = append(parts, fmt.Sprintf("emergency cleanup removed %d records", cleaned))
			}
		case stats.IsMemoryUsageHigh():
			parts = append(parts, fmt.Sprintf("usage: high at %.1f%%", stats.UsagePercent))
		default:
			parts = append(parts, fmt.Sprintf("usage: %.1f%%", stats.UsagePercent))
		}
	}

	backupStats := m.backups.GetBackupStatistics()
	status.HasRecentBackup = backupStats.HasRecentBackup()
	status.BackupError = backupStats.LastError
	if !status.HasRecentBackup {
		status.Healthy = false
		parts = append(parts, "backup: no recent backup")
	} else {
		parts = append(parts, fmt.Sprintf("backup: %d available, last at %s",
			backupStats.AvailableCount, backupStats.LastBackupTime.Format(time.RFC3339)))
	}
	if backupStats.LastError != "" {
		status.Healthy = false
		parts = append(parts, fmt.Sprintf("backup error: %s", backupStats.LastError))
	}

	status.Message = strings.Join(parts, "; ")

	m.mu.Lock()
	m.last = status
	m.mu.Unlock()

	if !status.Healthy {
		m.logger.Warn("health check unhealthy", slog.String("detail", status.Message))
	} else {
		m.logger.Debug("health check ok", slog.String("detail", status.Message))
	}
	return status
}

// LastStatus returns the most recent health status, or nil if no check has
// run yet.
func (m *Monitor) LastStatus() *Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// PerformComprehensiveCleanup runs expiry cleanup, then optimization, then a
// manual backup, and reports the aggregate outcome.
//
// A backup failure is recorded in the report but does not fail the run; the
// cleanup and optimization results still stand.
func (m *Monitor) PerformComprehensiveCleanup(ctx context.Context) (*CleanupReport, error) {
	start := time.Now()
	report := &CleanupReport{}
	var lines []string

	expired, err := m.cleaner.CleanupExpired(ctx, m.day(), m.retention.RetentionDays)
	if err != nil {
		return nil, core.NewEngineError("PerformComprehensiveCleanup", err)
	}
	report.ExpiredRemoved = expired
	lines = append(lines, fmt.Sprintf("expiry pass removed %d records", expired))

	optResult, err := m.optimizer.PerformOptimization(ctx)
	if err != nil {
		return nil, core.NewEngineError("PerformComprehensiveCleanup", err)
	}
	report.OptimizeRemoved = optResult.Removed()
	report.Strategy = optResult.Strategy
	lines = append(lines, fmt.Sprintf("%s optimization removed %d records", optResult.Strategy, optResult.Removed()))

	path, err := m.backups.CreateManualBackup(ctx, "")
	if err != nil {
		report.BackupError = err.Error()
		lines = append(lines, fmt.Sprintf("backup failed: %v", err))
		m.logger.Warn("comprehensive cleanup backup failed", slog.Any("error", err))
	} else {
		report.BackupPath = path
		lines = append(lines, fmt.Sprintf("backup written to %s", path))
	}

	report.Duration = time.Since(start)
	lines = append(lines, fmt.Sprintf("completed in %s", report.Duration))
	report.Summary = strings.Join(lines, "\n")

	m.logger.Info("comprehensive cleanup complete",
		slog.Int("expired_removed", report.ExpiredRemoved),
		slog.Int("optimize_removed", report.OptimizeRemoved),
		slog.Duration("duration", report.Duration))

	return report, nil
}
