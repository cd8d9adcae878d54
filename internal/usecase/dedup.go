package usecase

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

// PostComment is a raw comment bound to the publication it replies to.
type PostComment struct {
	PublicationID string
	Comment       domain.RawComment
}

// Key returns the dedup identity tuple of the comment.
func (c PostComment) Key() domain.CommentKey {
	return domain.CommentKey{
		PublicationID: c.PublicationID,
		Author:        c.Comment.Author,
		Text:          c.Comment.Text,
	}
}

// PostBatch is a fetched batch of posts without in-batch duplicates, in adapter order,
// annotated with which ids the store already holds.
type PostBatch struct {
	Posts      []domain.RawPost
	Known      map[string]bool
	Duplicates int
}

// Fresh returns the posts the store has not seen.
func (b PostBatch) Fresh() []domain.RawPost {
	return lo.Filter(b.Posts, func(p domain.RawPost, _ int) bool { return !b.Known[p.ID] })
}

// KnownCount is the number of posts already stored.
func (b PostBatch) KnownCount() int {
	return len(b.Posts) - len(b.Fresh())
}

// DedupFilter discards items already persisted, with one bulk lookup per entity type.
type DedupFilter struct {
	store ports.ContentStore
}

// NewDedupFilter wires the filter to the record store.
func NewDedupFilter(store ports.ContentStore) *DedupFilter {
	return &DedupFilter{store: store}
}

// FilterPosts drops in-batch duplicates (first occurrence wins) and marks the posts the
// store already holds.
func (f *DedupFilter) FilterPosts(ctx context.Context, posts []domain.RawPost) (PostBatch, error) {
	unique := lo.UniqBy(posts, func(p domain.RawPost) string { return p.ID })
	batch := PostBatch{Posts: unique, Known: map[string]bool{}, Duplicates: len(posts) - len(unique)}
	if len(unique) == 0 || f.store == nil {
		return batch, nil
	}

	ids := lo.Map(unique, func(p domain.RawPost, _ int) string { return p.ID })
	existing, err := f.store.ExistingPublicationIDs(ctx, ids)
	if err != nil {
		return PostBatch{}, fmt.Errorf("existing publications: %w", err)
	}
	for id, ok := range existing {
		if ok {
			batch.Known[id] = true
		}
	}
	return batch, nil
}

// FilterComments returns comments whose identity tuple is neither stored nor seen earlier
// in the same batch, and the number of comments dropped.
func (f *DedupFilter) FilterComments(ctx context.Context, comments []PostComment) ([]PostComment, int, error) {
	if len(comments) == 0 {
		return nil, 0, nil
	}

	existing := map[domain.CommentKey]bool{}
	if f.store != nil {
		pubIDs := lo.Uniq(lo.Map(comments, func(c PostComment, _ int) string { return c.PublicationID }))
		var err error
		existing, err = f.store.ExistingCommentKeys(ctx, pubIDs)
		if err != nil {
			return nil, 0, fmt.Errorf("existing comments: %w", err)
		}
	}

	seen := make(map[domain.CommentKey]struct{}, len(comments))
	unseen := make([]PostComment, 0, len(comments))
	for _, c := range comments {
		key := c.Key()
		if existing[key] {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unseen = append(unseen, c)
	}
	return unseen, len(comments) - len(unseen), nil
}
