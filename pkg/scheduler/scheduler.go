// Package scheduler provides a cancellable periodic task runner for the
// engine's background maintenance sweeps.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of scheduled work. The context is cancelled when the
// scheduler stops; tasks should honor it on long operations. A task error is
// logged and the schedule continues.
type Task func(ctx context.Context) error

// Scheduler runs a task at a fixed interval on its own goroutine, with an
// optional one-shot initial delay before the first run.
type Scheduler struct {
	name         string
	interval     time.Duration
	initialDelay time.Duration
	task         Task
	logger       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates a scheduler that runs task every interval.
//
// Parameters:
//   - name: Scheduler name used in log lines
//   - interval: Time between runs
//   - initialDelay: Delay before the first run; zero runs the first sweep
//     one full interval after Start
//   - task: The work to run
//   - logger: Structured logger (nil uses slog.Default())
func New(name string, interval, initialDelay time.Duration, task Task, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		name:         name,
		interval:     interval,
		initialDelay: initialDelay,
		task:         task,
		logger:       logger,
	}
}

// Start launches the scheduler goroutine. Calling Start on a running
// scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(ctx)
	s.logger.Info("scheduler started",
		slog.String("scheduler", s.name),
		slog.Duration("interval", s.interval),
		slog.Duration("initial_delay", s.initialDelay))
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	if s.initialDelay > 0 {
		timer := time.NewTimer(s.initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runTask(ctx)
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTask(ctx)
		}
	}
}

func (s *Scheduler) runTask(ctx context.Context) {
	start := time.Now()
	if err := s.task(ctx); err != nil {
		s.logger.Error("scheduled task failed",
			slog.String("scheduler", s.name),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err))
		return
	}
	s.logger.Debug("scheduled task complete",
		slog.String("scheduler", s.name),
		slog.Duration("duration", time.Since(start)))
}

// Stop cancels the schedule and waits for an in-flight run to finish, up to
// timeout. Returns true if the scheduler drained cleanly, false if the wait
// timed out and the run was abandoned.
func (s *Scheduler) Stop(timeout time.Duration) bool {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return true
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		s.logger.Warn("scheduler stop timed out",
			slog.String("scheduler", s.name),
			slog.Duration("timeout", timeout))
		return false
	}
}

// DelayUntilHour computes the delay from now to the next occurrence of the
// given wall-clock hour (0-23). If the hour has already passed today the
// delay lands on tomorrow's occurrence, so daily tasks stay aligned to the
// hour instead of drifting from process start time.
func DelayUntilHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
