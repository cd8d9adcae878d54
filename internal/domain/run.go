package domain

import "time"

// SyncState enumerates the sync controller milestones.
type SyncState string

const (
	StateIdle       SyncState = "idle"
	StateFetching   SyncState = "fetching"
	StateDeduping   SyncState = "deduping"
	StateEnriching  SyncState = "enriching"
	StatePersisting SyncState = "persisting"
	StateCompleted  SyncState = "completed"
	StateCancelled  SyncState = "cancelled"
	StateFailed     SyncState = "failed"
)

// Terminal reports whether no further transition can happen within a run.
func (s SyncState) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// ProgressEvent is emitted at every state transition and after each post group.
type ProgressEvent struct {
	RunID    string
	Source   string
	State    SyncState
	Message  string
	Group    int
	Groups   int
	Saved    int
	Comments int
}

// UnitFailure records a post group whose transaction was rolled back.
type UnitFailure struct {
	PostIDs []string `json:"post_ids"`
	Error   string   `json:"error"`
}

// RunSummary is handed to the host once a run reaches a terminal state.
type RunSummary struct {
	RunID                string        `json:"run_id"`
	Source               string        `json:"source"`
	Platform             Platform      `json:"platform"`
	State                SyncState     `json:"state"`
	NewPublications      int           `json:"new_publications"`
	NewComments          int           `json:"new_comments"`
	SkippedPublications  int           `json:"skipped_publications"`
	SkippedComments      int           `json:"skipped_comments"`
	CommentFetchFailures int           `json:"comment_fetch_failures"`
	TranslationFallbacks int           `json:"translation_fallbacks"`
	SentimentFallbacks   int           `json:"sentiment_fallbacks"`
	FailedUnits          []UnitFailure `json:"failed_units,omitempty"`
	StartedAt            time.Time     `json:"started_at"`
	FinishedAt           time.Time     `json:"finished_at"`
	Error                string        `json:"error,omitempty"`
}

// Duration is the wall time between start and finish.
func (s RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// PlatformStats is the read-side aggregate used by reports.
type PlatformStats struct {
	Platform     Platform
	Publications int
	Comments     int
	Labels       map[SentimentLabel]int
	MeanScore    float64
}

// TranslationTarget is a stored row whose translation is missing or identical to its original.
type TranslationTarget struct {
	Kind string
	ID   string
	Text string
}

const (
	TargetPublication = "publication"
	TargetComment     = "comment"
)
