package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

// DefaultGroupSize is the number of posts committed together as one unit.
const DefaultGroupSize = 1

// PipelineOptions tunes grouping and enrichment of a sync run.
type PipelineOptions struct {
	GroupSize int
	// RefreshKnownPosts still fetches comments of already stored posts so new replies are kept.
	RefreshKnownPosts bool
	Enrichment        EnrichmentOptions
}

// PipelineDeps wires all driven adapters into the sync controller.
type PipelineDeps struct {
	Store      ports.ContentStore
	Translator ports.Translator
	Analyzer   ports.SentimentAnalyzer
	Notifiers  []ports.Notifier
	Logger     *slog.Logger
	Options    PipelineOptions
}

// Pipeline is the sync controller: fetch, dedup, enrich and persist in post groups.
type Pipeline struct {
	store     ports.ContentStore
	dedup     *DedupFilter
	enricher  *Enricher
	notifiers []ports.Notifier
	logger    *slog.Logger
	opts      PipelineOptions
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	opts := deps.Options
	if opts.GroupSize <= 0 {
		opts.GroupSize = DefaultGroupSize
	}

	return &Pipeline{
		store:     deps.Store,
		dedup:     NewDedupFilter(deps.Store),
		enricher:  NewEnricher(deps.Translator, deps.Analyzer, opts.Enrichment, deps.Logger),
		notifiers: deps.Notifiers,
		logger:    deps.Logger,
		opts:      opts,
		now:       time.Now,
	}
}

// RunRequest describes one sync invocation against one adapter.
type RunRequest struct {
	Source       string
	Adapter      ports.PlatformAdapter
	PostLimit    int
	CommentLimit int
	Progress     ports.ProgressFunc
	Cancel       ports.CancellationSignal
}

type run struct {
	req     RunRequest
	summary domain.RunSummary
	group   int
	groups  int
	logger  *slog.Logger
}

// Run executes one sync. The error is non-nil only when the run ends in StateFailed;
// rolled-back units are reported through RunSummary.FailedUnits.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (domain.RunSummary, error) {
	if req.Adapter == nil || p.store == nil {
		return domain.RunSummary{State: domain.StateFailed}, fmt.Errorf("%w: adapter and store are required", domain.ErrRunFailed)
	}
	if req.Source == "" {
		req.Source = string(req.Adapter.Platform())
	}

	r := &run{
		req: req,
		summary: domain.RunSummary{
			RunID:     uuid.NewString(),
			Source:    req.Source,
			Platform:  req.Adapter.Platform(),
			State:     domain.StateIdle,
			StartedAt: p.now(),
		},
	}
	r.logger = p.logger
	if r.logger != nil {
		r.logger = r.logger.With("run_id", r.summary.RunID, "source", req.Source)
	}

	if req.PostLimit <= 0 {
		return p.finish(ctx, r, domain.StateCompleted, "post limit %d, nothing to fetch from %s", req.PostLimit, req.Source)
	}

	r.transition(domain.StateFetching, "fetching up to %d posts from %s", req.PostLimit, req.Source)
	posts, err := req.Adapter.FetchPosts(ctx, req.PostLimit)
	if err != nil {
		return p.fail(ctx, r, fmt.Errorf("fetch posts: %w", err))
	}

	r.transition(domain.StateDeduping, "checking %d fetched posts against storage", len(posts))
	batch, err := p.dedup.FilterPosts(ctx, posts)
	if err != nil {
		return p.fail(ctx, r, err)
	}
	r.summary.SkippedPublications = batch.KnownCount() + batch.Duplicates

	work := batch.Posts
	if !p.opts.RefreshKnownPosts {
		work = batch.Fresh()
	}
	groups := lo.Chunk(work, p.opts.GroupSize)
	r.groups = len(groups)
	r.emit("%d new posts, %d already stored, %d post groups to process",
		len(batch.Posts)-batch.KnownCount(), batch.KnownCount(), len(groups))

	for i, group := range groups {
		if cancelled(ctx, req.Cancel) {
			return p.finish(ctx, r, domain.StateCancelled,
				"cancelled after %d of %d post groups: +%d publications, +%d comments saved",
				i, len(groups), r.summary.NewPublications, r.summary.NewComments)
		}
		p.processGroup(ctx, r, i+1, group, batch.Known)
	}

	return p.finish(ctx, r, domain.StateCompleted,
		"finished: +%d publications, +%d comments", r.summary.NewPublications, r.summary.NewComments)
}

func (p *Pipeline) processGroup(ctx context.Context, r *run, index int, group []domain.RawPost, known map[string]bool) {
	adapter := r.req.Adapter
	lang := adapter.Language()
	r.group = index

	r.transition(domain.StateDeduping, "group %d/%d: fetching comments for %d posts", index, r.groups, len(group))
	var fetched []PostComment
	if r.req.CommentLimit > 0 {
		for _, post := range group {
			comments, err := adapter.FetchComments(ctx, post.ID, r.req.CommentLimit)
			if err != nil {
				r.summary.CommentFetchFailures++
				r.warn("comment fetch failed, post kept without comments", "post_id", post.ID, "error", err)
				r.emit("comments for post %s skipped: %v", post.ID, err)
				continue
			}
			for _, c := range comments {
				fetched = append(fetched, PostComment{PublicationID: post.ID, Comment: c})
			}
		}
	}

	unseen, skipped, err := p.dedup.FilterComments(ctx, fetched)
	if err != nil {
		p.unitFailed(r, group, err)
		return
	}
	r.summary.SkippedComments += skipped

	fresh := lo.Filter(group, func(post domain.RawPost, _ int) bool { return !known[post.ID] })
	if len(fresh) == 0 && len(unseen) == 0 {
		r.emit("group %d/%d: nothing new", index, r.groups)
		return
	}

	r.transition(domain.StateEnriching, "group %d/%d: enriching %d posts and %d comments", index, r.groups, len(fresh), len(unseen))
	pubs, stats := p.enricher.EnrichPublications(ctx, adapter.Platform(), lang, fresh)
	comments, commentStats := p.enricher.EnrichComments(ctx, lang, unseen)
	stats.add(commentStats)
	r.summary.TranslationFallbacks += stats.TranslationFallbacks
	r.summary.SentimentFallbacks += stats.SentimentFallbacks

	r.transition(domain.StatePersisting, "group %d/%d: saving %d publications and %d comments", index, r.groups, len(pubs), len(comments))
	err = p.store.InUnit(ctx, func(w ports.UnitWriter) error {
		if len(pubs) > 0 {
			if err := w.InsertPublications(ctx, pubs); err != nil {
				return err
			}
		}
		if len(comments) > 0 {
			if err := w.InsertComments(ctx, comments); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.unitFailed(r, group, err)
		return
	}

	r.summary.NewPublications += len(pubs)
	r.summary.NewComments += len(comments)
	r.emit("group %d/%d saved: +%d publications, +%d comments", index, r.groups, len(pubs), len(comments))
}

func (p *Pipeline) unitFailed(r *run, group []domain.RawPost, err error) {
	perr := &domain.PersistenceError{
		PostIDs: lo.Map(group, func(post domain.RawPost, _ int) string { return post.ID }),
		Err:     err,
	}
	r.summary.FailedUnits = append(r.summary.FailedUnits, domain.UnitFailure{PostIDs: perr.PostIDs, Error: perr.Error()})
	r.warn("unit rolled back", "error", perr)
	r.emit("unit rolled back, continuing: %v", perr)
}

func (p *Pipeline) fail(ctx context.Context, r *run, err error) (domain.RunSummary, error) {
	r.summary.Error = err.Error()
	summary, _ := p.finish(ctx, r, domain.StateFailed, "run failed: %v", err)
	return summary, fmt.Errorf("%w: %w", domain.ErrRunFailed, err)
}

func (p *Pipeline) finish(ctx context.Context, r *run, state domain.SyncState, format string, args ...any) (domain.RunSummary, error) {
	r.summary.FinishedAt = p.now()
	r.transition(state, format, args...)
	if r.logger != nil {
		r.logger.Info("sync run finished",
			"state", state,
			"new_publications", r.summary.NewPublications,
			"new_comments", r.summary.NewComments,
			"failed_units", len(r.summary.FailedUnits),
			"duration", r.summary.Duration())
	}

	// Notification must survive a cancelled run context.
	notifyCtx := context.WithoutCancel(ctx)
	for _, n := range p.notifiers {
		if n == nil {
			continue
		}
		if err := n.PublishSummary(notifyCtx, r.summary); err != nil {
			r.warn("publish summary", "error", err)
		}
	}
	return r.summary, nil
}

func cancelled(ctx context.Context, signal ports.CancellationSignal) bool {
	if ctx.Err() != nil {
		return true
	}
	return signal != nil && signal.Cancelled()
}

func (r *run) transition(state domain.SyncState, format string, args ...any) {
	r.summary.State = state
	r.emit(format, args...)
}

func (r *run) emit(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if r.logger != nil {
		r.logger.Debug(msg, "state", r.summary.State)
	}
	if r.req.Progress == nil {
		return
	}
	r.req.Progress(domain.ProgressEvent{
		RunID:    r.summary.RunID,
		Source:   r.summary.Source,
		State:    r.summary.State,
		Message:  msg,
		Group:    r.group,
		Groups:   r.groups,
		Saved:    r.summary.NewPublications,
		Comments: r.summary.NewComments,
	})
}

func (r *run) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

// RunAll runs every request sequentially; a failed run does not stop the following ones.
// Remaining requests are not started once the context or a request's signal is cancelled.
func (p *Pipeline) RunAll(ctx context.Context, reqs []RunRequest) ([]domain.RunSummary, error) {
	summaries := make([]domain.RunSummary, 0, len(reqs))
	var errs []error
	for _, req := range reqs {
		if cancelled(ctx, req.Cancel) {
			break
		}
		summary, err := p.Run(ctx, req)
		summaries = append(summaries, summary)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", req.Source, err))
		}
	}
	return summaries, errors.Join(errs...)
}
