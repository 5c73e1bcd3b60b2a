package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/scheduler"
)

func TestScheduler_RunsPeriodically(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New("test", 20*time.Millisecond, 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	s.Start()
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_InitialDelayRunsFirst(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New("test", time.Hour, 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	s.Start()
	defer s.Stop(time.Second)

	// The one-shot delayed run fires well before the hourly interval.
	require.Eventually(t, func() bool {
		return runs.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_StopCancelsSchedule(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New("test", 10*time.Millisecond, 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	s.Start()
	require.Eventually(t, func() bool {
		return runs.Load() >= 1
	}, 2*time.Second, 2*time.Millisecond)

	assert.True(t, s.Stop(time.Second))
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestScheduler_StopBeforeStart(t *testing.T) {
	s := scheduler.New("test", time.Hour, 0, func(ctx context.Context) error { return nil }, nil)
	assert.True(t, s.Stop(time.Second))
}

func TestScheduler_TaskErrorKeepsSchedule(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New("test", 10*time.Millisecond, 0, func(ctx context.Context) error {
		runs.Add(1)
		return context.DeadlineExceeded
	}, nil)

	s.Start()
	defer s.Stop(time.Second)

	require.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 2*time.Second, 2*time.Millisecond)
}

func TestScheduler_TaskSeesCancellationOnStop(t *testing.T) {
	started := make(chan struct{})
	var sawCancel atomic.Bool
	s := scheduler.New("test", 10*time.Millisecond, 0, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			sawCancel.Store(true)
		case <-time.After(5 * time.Second):
		}
		return nil
	}, nil)

	s.Start()
	<-started
	assert.True(t, s.Stop(2*time.Second))
	assert.True(t, sawCancel.Load())
}

func TestDelayUntilHour(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Duration
	}{
		{
			name: "later today",
			now:  time.Date(2026, 5, 1, 1, 0, 0, 0, time.UTC),
			hour: 3,
			want: 2 * time.Hour,
		},
		{
			name: "already passed rolls to tomorrow",
			now:  time.Date(2026, 5, 1, 4, 30, 0, 0, time.UTC),
			hour: 3,
			want: 22*time.Hour + 30*time.Minute,
		},
		{
			name: "exactly at the hour rolls to tomorrow",
			now:  time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC),
			hour: 3,
			want: 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scheduler.DelayUntilHour(tt.now, tt.hour))
		})
	}
}
