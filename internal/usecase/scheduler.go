package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"ContentSync/internal/ports"
)

// Job is one scheduled sync pass.
type Job func(ctx context.Context, trigger time.Time) error

// Scheduler wires the ticker driver with a sync job and never lets two passes overlap.
type Scheduler struct {
	driver  ports.Scheduler
	job     Job
	logger  *slog.Logger
	running atomic.Bool
}

// NewScheduler returns a helper to start/stop recurring syncs.
func NewScheduler(driver ports.Scheduler, job Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, job: job, logger: logger}
}

// Start registers the job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.job == nil {
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.Trigger(ctx, trigger)
	})
}

// Trigger runs the job once unless a previous pass is still in flight.
func (s *Scheduler) Trigger(ctx context.Context, trigger time.Time) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.log(slog.LevelWarn, "previous sync pass still running, tick skipped", "trigger", trigger)
		return false
	}
	defer s.running.Store(false)

	if err := s.job(ctx, trigger); err != nil {
		s.log(slog.LevelError, "scheduled sync pass", "error", err)
	}
	return true
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

func (s *Scheduler) log(level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(context.Background(), level, msg, args...)
	}
}
