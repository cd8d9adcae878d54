package ports

import (
	"context"
	"time"

	"ContentSync/internal/domain"
)

// PlatformAdapter pulls raw posts and comments from one social platform.
type PlatformAdapter interface {
	Platform() domain.Platform
	// Language is the default language hint for items without their own.
	Language() string
	FetchPosts(ctx context.Context, limit int) ([]domain.RawPost, error)
	FetchComments(ctx context.Context, postID string, limit int) ([]domain.RawComment, error)
}

// Translator translates a batch of texts, one output per input in the same order.
type Translator interface {
	Translate(ctx context.Context, texts []string) ([]string, error)
}

// SentimentAnalyzer classifies a batch of texts, one result per input in the same order.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, texts []string) ([]domain.SentimentResult, error)
}

// UnitWriter inserts records inside one unit of work.
type UnitWriter interface {
	InsertPublications(ctx context.Context, batch []domain.Publication) error
	InsertComments(ctx context.Context, batch []domain.Comment) error
}

// ContentStore persists publications and comments for deduplication and history.
type ContentStore interface {
	UnitWriter
	ExistingPublicationIDs(ctx context.Context, ids []string) (map[string]bool, error)
	ExistingCommentKeys(ctx context.Context, publicationIDs []string) (map[domain.CommentKey]bool, error)
	// InUnit commits everything fn writes together, or nothing when fn fails.
	InUnit(ctx context.Context, fn func(w UnitWriter) error) error
}

// TranslationStore exposes the rows a translation backfill works on.
type TranslationStore interface {
	PendingTranslations(ctx context.Context, limit int) ([]domain.TranslationTarget, error)
	UpdateTranslations(ctx context.Context, targets []domain.TranslationTarget) error
}

// Notifier delivers end-of-run summaries to Telegram, NATS or other channels.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.RunSummary) error
}

// CancellationSignal is polled by the sync controller between post groups.
type CancellationSignal interface {
	Cancelled() bool
}

// ProgressFunc receives informational progress; it must not block.
type ProgressFunc func(event domain.ProgressEvent)

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
