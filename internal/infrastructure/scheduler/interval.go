package scheduler

import (
	"context"
	"sync"
	"time"

	"ContentSync/internal/ports"
)

// DefaultInterval is used when no positive interval is configured.
const DefaultInterval = time.Hour

// IntervalScheduler fires a job every interval using time.Ticker.
type IntervalScheduler struct {
	interval   time.Duration
	runOnStart bool
	location   *time.Location

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler; trigger times are reported in loc.
func NewIntervalScheduler(interval time.Duration, runOnStart bool, loc *time.Location) *IntervalScheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if loc == nil {
		loc = time.UTC
	}
	return &IntervalScheduler{interval: interval, runOnStart: runOnStart, location: loc}
}

// Start begins ticking. Calling Start on a running scheduler is a no-op.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		if s.runOnStart {
			job(time.Now().In(s.location))
		}
		for {
			select {
			case t := <-ticker.C:
				job(t.In(s.location))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for a running job until ctx expires.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
