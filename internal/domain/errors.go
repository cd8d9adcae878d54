package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunFailed marks a run that ended in StateFailed.
var ErrRunFailed = errors.New("sync run failed")

// AdapterErrorKind classifies platform failures.
type AdapterErrorKind string

const (
	AdapterAuth      AdapterErrorKind = "auth"
	AdapterRateLimit AdapterErrorKind = "rate_limit"
	AdapterNetwork   AdapterErrorKind = "network"
	AdapterUpstream  AdapterErrorKind = "upstream"
	AdapterNotFound  AdapterErrorKind = "not_found"
)

// AdapterError is the single error type surfaced by platform adapters.
type AdapterError struct {
	Platform Platform
	Op       string
	Kind     AdapterErrorKind
	Status   int
	Err      error
}

func (e *AdapterError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Platform, e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsAdapterKind reports whether err wraps an AdapterError of the given kind.
func IsAdapterKind(err error, kind AdapterErrorKind) bool {
	var adapterErr *AdapterError
	return errors.As(err, &adapterErr) && adapterErr.Kind == kind
}

// EnrichmentError describes a failed translate or sentiment batch.
type EnrichmentError struct {
	Stage string
	Size  int
	Err   error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("%s batch of %d: %v", e.Stage, e.Size, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

// PersistenceError describes a post group whose transaction was rolled back.
type PersistenceError struct {
	PostIDs []string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist unit [%s]: %v", strings.Join(e.PostIDs, ","), e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
