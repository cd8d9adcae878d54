package usecase

import (
	"sync/atomic"

	"ContentSync/internal/ports"
)

// StopFlag is a host-settable cancellation signal.
type StopFlag struct {
	stopped atomic.Bool
}

var _ ports.CancellationSignal = (*StopFlag)(nil)

// Stop requests cancellation at the next post-group boundary.
func (f *StopFlag) Stop() {
	f.stopped.Store(true)
}

// Reset clears a previous stop request so the flag can be reused for another run.
func (f *StopFlag) Reset() {
	f.stopped.Store(false)
}

// Cancelled reports whether Stop has been called.
func (f *StopFlag) Cancelled() bool {
	if f == nil {
		return false
	}
	return f.stopped.Load()
}
