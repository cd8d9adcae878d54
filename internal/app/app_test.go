package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentSync/internal/config"
	"ContentSync/internal/domain"
	"ContentSync/internal/usecase"
)

func redditServer(t *testing.T) *httptest.Server {
	t.Helper()

	child := func(kind, id, author, title, body string) map[string]any {
		return map[string]any{"kind": kind, "data": map[string]any{"id": id, "author": author, "title": title, "body": body}}
	}
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/r/golang/hot.json":
			write(w, map[string]any{"data": map[string]any{"children": []any{
				child("t3", "p1", "alice", "Generics are great", ""),
				child("t3", "p2", "bob", "Error handling again", ""),
			}}})
		case "/comments/p1.json":
			write(w, []any{
				map[string]any{"data": map[string]any{"children": []any{}}},
				map[string]any{"data": map[string]any{"children": []any{
					child("t1", "c1", "carol", "", "agreed"),
					child("t1", "c2", "dave", "", "not really"),
				}}},
			})
		case "/comments/p2.json":
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()

	cfg, err := config.LoadFrom("")
	require.NoError(t, err)
	cfg.Database = config.DatabaseConfig{Driver: "sqlite", DSN: "file:" + t.Name() + "?mode=memory&cache=shared"}
	cfg.Enrichment.Translator = config.BackendNone
	cfg.Enrichment.Sentiment = config.BackendNone
	cfg.Notifications = config.NotificationConfig{}
	cfg.Metrics.Addr = ""
	cfg.Sources = []config.SourceConfig{{
		Name:     "golang",
		Platform: "reddit",
		BaseURL:  baseURL,
		Options:  map[string]string{"subreddit": "golang"},
	}}
	return cfg
}

func newTestApp(t *testing.T) *Application {
	t.Helper()

	srv := redditServer(t)
	application, err := New(context.Background(), testConfig(t, srv.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })
	return application
}

func TestSyncEndToEnd(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	var events []domain.ProgressEvent
	summaries, err := application.Sync(ctx, nil, &usecase.StopFlag{}, func(ev domain.ProgressEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, domain.StateCompleted, s.State)
	assert.Equal(t, "golang", s.Source)
	assert.Equal(t, 2, s.NewPublications)
	assert.Equal(t, 2, s.NewComments)
	assert.Equal(t, 1, s.CommentFetchFailures)
	assert.NotEmpty(t, events)

	again, err := application.Sync(ctx, []string{"golang"}, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, again[0].NewPublications)
	assert.Zero(t, again[0].NewComments)
	assert.Equal(t, 2, again[0].SkippedPublications)

	stats, err := application.Report(ctx, "")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, domain.PlatformReddit, stats[0].Platform)
	assert.Equal(t, 2, stats[0].Publications)
	assert.Equal(t, 2, stats[0].Comments)
	assert.Equal(t, 2, stats[0].Labels[domain.SentimentNeutral])

	deleted, err := application.DeletePublication(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, deleted)

	stats, err = application.Report(ctx, "reddit")
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Publications)
	assert.Zero(t, stats[0].Comments)

	count, err := application.DeletePlatform(ctx, "reddit")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSyncUnknownSource(t *testing.T) {
	application := newTestApp(t)

	_, err := application.Sync(context.Background(), []string{"missing"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, []string{"golang"}, application.Sources())
}

func TestBackfillWithoutTranslator(t *testing.T) {
	application := newTestApp(t)

	_, err := application.Backfill(context.Background(), 10)
	require.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Database.Driver = "mysql"

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}
