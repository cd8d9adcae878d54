package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

type mockAdapter struct {
	mock.Mock
	platform domain.Platform
	language string
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{platform: domain.PlatformReddit, language: "en"}
}

func (m *mockAdapter) Platform() domain.Platform { return m.platform }

func (m *mockAdapter) Language() string { return m.language }

func (m *mockAdapter) FetchPosts(ctx context.Context, limit int) ([]domain.RawPost, error) {
	args := m.Called(ctx, limit)
	posts, _ := args.Get(0).([]domain.RawPost)
	return posts, args.Error(1)
}

func (m *mockAdapter) FetchComments(ctx context.Context, postID string, limit int) ([]domain.RawComment, error) {
	args := m.Called(ctx, postID, limit)
	comments, _ := args.Get(0).([]domain.RawComment)
	return comments, args.Error(1)
}

type mockTranslator struct {
	mock.Mock
}

func (m *mockTranslator) Translate(ctx context.Context, texts []string) ([]string, error) {
	args := m.Called(ctx, texts)
	out, _ := args.Get(0).([]string)
	return out, args.Error(1)
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, texts []string) ([]domain.SentimentResult, error) {
	args := m.Called(ctx, texts)
	out, _ := args.Get(0).([]domain.SentimentResult)
	return out, args.Error(1)
}

// prefixTranslator translates by prefixing, recording every batch it receives.
type prefixTranslator struct {
	mu      sync.Mutex
	batches [][]string
}

func (t *prefixTranslator) Translate(_ context.Context, texts []string) ([]string, error) {
	t.mu.Lock()
	t.batches = append(t.batches, append([]string(nil), texts...))
	t.mu.Unlock()
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = "es:" + text
	}
	return out, nil
}

type failingTranslator struct{}

func (failingTranslator) Translate(context.Context, []string) ([]string, error) {
	return nil, errors.New("model unavailable")
}

// fixedAnalyzer returns the same result for every text.
type fixedAnalyzer struct {
	result domain.SentimentResult
	seen   []string
}

func (a *fixedAnalyzer) Analyze(_ context.Context, texts []string) ([]domain.SentimentResult, error) {
	a.seen = append(a.seen, texts...)
	out := make([]domain.SentimentResult, len(texts))
	for i := range out {
		out[i] = a.result
	}
	return out, nil
}

// memStore is an in-memory ContentStore whose units apply atomically.
type memStore struct {
	mu           sync.Mutex
	publications map[string]domain.Publication
	order        []string
	comments     []domain.Comment
	pubQueries   int
	keyQueries   int
	// failInsert makes InsertComments fail when a batch contains a comment for this post.
	failInsert string
}

var _ ports.ContentStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{publications: map[string]domain.Publication{}}
}

func (s *memStore) ExistingPublicationIDs(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pubQueries++
	out := map[string]bool{}
	for _, id := range ids {
		if _, ok := s.publications[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (s *memStore) ExistingCommentKeys(_ context.Context, pubIDs []string) (map[domain.CommentKey]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyQueries++
	wanted := map[string]bool{}
	for _, id := range pubIDs {
		wanted[id] = true
	}
	out := map[domain.CommentKey]bool{}
	for _, c := range s.comments {
		if wanted[c.PublicationID] {
			out[c.Key()] = true
		}
	}
	return out, nil
}

func (s *memStore) InsertPublications(ctx context.Context, batch []domain.Publication) error {
	return s.InUnit(ctx, func(w ports.UnitWriter) error { return w.InsertPublications(ctx, batch) })
}

func (s *memStore) InsertComments(ctx context.Context, batch []domain.Comment) error {
	return s.InUnit(ctx, func(w ports.UnitWriter) error { return w.InsertComments(ctx, batch) })
}

func (s *memStore) InUnit(_ context.Context, fn func(w ports.UnitWriter) error) error {
	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range tx.pubs {
		if _, ok := s.publications[p.ID]; ok {
			return fmt.Errorf("duplicate publication %s", p.ID)
		}
	}
	for _, p := range tx.pubs {
		s.publications[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	for _, c := range tx.comments {
		c.ID = int64(len(s.comments) + 1)
		s.comments = append(s.comments, c)
	}
	return nil
}

func (s *memStore) commentsFor(pubID string) []domain.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Comment
	for _, c := range s.comments {
		if c.PublicationID == pubID {
			out = append(out, c)
		}
	}
	return out
}

type memTx struct {
	store    *memStore
	pubs     []domain.Publication
	comments []domain.Comment
}

func (t *memTx) InsertPublications(_ context.Context, batch []domain.Publication) error {
	t.pubs = append(t.pubs, batch...)
	return nil
}

func (t *memTx) InsertComments(_ context.Context, batch []domain.Comment) error {
	for _, c := range batch {
		if t.store.failInsert != "" && c.PublicationID == t.store.failInsert {
			return errors.New("disk full")
		}
	}
	t.comments = append(t.comments, batch...)
	return nil
}

// fixtureAdapter serves fixed posts and comments; commentErr fails FetchComments for listed posts.
type fixtureAdapter struct {
	language   string
	posts      []domain.RawPost
	comments   map[string][]domain.RawComment
	commentErr map[string]error
	postErr    error
	calls      []string
}

func (a *fixtureAdapter) Platform() domain.Platform { return domain.PlatformReddit }

func (a *fixtureAdapter) Language() string {
	if a.language == "" {
		return "en"
	}
	return a.language
}

func (a *fixtureAdapter) FetchPosts(_ context.Context, limit int) ([]domain.RawPost, error) {
	if a.postErr != nil {
		return nil, a.postErr
	}
	if limit > 0 && limit < len(a.posts) {
		return a.posts[:limit], nil
	}
	return a.posts, nil
}

func (a *fixtureAdapter) FetchComments(_ context.Context, postID string, limit int) ([]domain.RawComment, error) {
	a.calls = append(a.calls, postID)
	if err := a.commentErr[postID]; err != nil {
		return nil, err
	}
	comments := a.comments[postID]
	if limit > 0 && limit < len(comments) {
		return comments[:limit], nil
	}
	return comments, nil
}

func twoPostsThreeComments() *fixtureAdapter {
	return &fixtureAdapter{
		posts: []domain.RawPost{
			{ID: "p1", Author: "alice", Text: "First post"},
			{ID: "p2", Author: "bob", Text: "Second post"},
		},
		comments: map[string][]domain.RawComment{
			"p1": {
				{Author: "carol", Text: "great"},
				{Author: "dave", Text: "awful"},
				{Author: "erin", Text: "meh"},
			},
			"p2": {
				{Author: "carol", Text: "nice"},
				{Author: "frank", Text: "bad"},
				{Author: "grace", Text: "ok"},
			},
		},
	}
}
