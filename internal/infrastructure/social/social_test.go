package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentSync/internal/domain"
	"ContentSync/internal/platform"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func testSource(p domain.Platform, baseURL string, options map[string]string) platform.Source {
	return platform.Source{
		Name:     "test-" + string(p),
		Platform: p,
		BaseURL:  baseURL,
		Timeout:  5 * time.Second,
		Options:  options,
	}
}

func redditChild(kind, id, author, title, body string) map[string]any {
	return map[string]any{
		"kind": kind,
		"data": map[string]any{"id": id, "author": author, "title": title, "body": body},
	}
}

func TestRedditFetchPostsPaginates(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		limits []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/golang/new.json", r.URL.Path)
		mu.Lock()
		limits = append(limits, r.URL.Query().Get("limit"))
		mu.Unlock()

		if r.URL.Query().Get("after") == "" {
			children := make([]map[string]any, 0, 100)
			for i := 0; i < 100; i++ {
				children = append(children, redditChild("t3", fmt.Sprintf("p%d", i), "alice", "title", ""))
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"after": "t3_next", "children": children}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"after":    "",
			"children": []map[string]any{redditChild("t3", "last", "", "final title", "")},
		}})
	}))
	defer srv.Close()

	adapter, err := NewReddit(testSource(domain.PlatformReddit, srv.URL, map[string]string{"subreddit": "r/golang", "sort": "new"}))
	require.NoError(t, err)

	posts, err := adapter.FetchPosts(context.Background(), 150)
	require.NoError(t, err)
	require.Len(t, posts, 101)
	mu.Lock()
	assert.Equal(t, []string{"100", "50"}, limits)
	mu.Unlock()
	assert.Equal(t, "last", posts[100].ID)
	assert.Equal(t, "final title", posts[100].Text)
	assert.Equal(t, deletedAuthor, posts[100].Author)
	assert.Equal(t, "en", adapter.Language())
}

func TestRedditFetchCommentsTopLevelOnly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comments/abc.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("depth"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"data": map[string]any{"children": []map[string]any{redditChild("t3", "abc", "op", "post", "")}}},
			{"data": map[string]any{"children": []map[string]any{
				redditChild("t1", "c1", "bob", "", "first"),
				redditChild("t1", "c2", "", "", "second"),
				redditChild("t1", "c3", "carol", "", "   "),
				redditChild("more", "m1", "", "", ""),
				redditChild("t1", "c4", "dave", "", "fourth"),
			}}},
		})
	}))
	defer srv.Close()

	adapter, err := NewReddit(testSource(domain.PlatformReddit, srv.URL, map[string]string{"subreddit": "golang"}))
	require.NoError(t, err)

	comments, err := adapter.FetchComments(context.Background(), "abc", 2)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, domain.RawComment{ID: "c1", Author: "bob", Text: "first"}, comments[0])
	assert.Equal(t, deletedAuthor, comments[1].Author)
}

func TestRedditRequiresSubreddit(t *testing.T) {
	t.Parallel()

	_, err := NewReddit(testSource(domain.PlatformReddit, "", nil))
	require.Error(t, err)
}

func TestRedditErrorKinds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		kind   domain.AdapterErrorKind
	}{
		{http.StatusUnauthorized, domain.AdapterAuth},
		{http.StatusForbidden, domain.AdapterAuth},
		{http.StatusTooManyRequests, domain.AdapterRateLimit},
		{http.StatusNotFound, domain.AdapterNotFound},
		{http.StatusBadGateway, domain.AdapterUpstream},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tc.status, map[string]any{"message": "nope"})
		}))

		adapter, err := NewReddit(testSource(domain.PlatformReddit, srv.URL, map[string]string{"subreddit": "golang"}))
		require.NoError(t, err)

		_, err = adapter.FetchPosts(context.Background(), 10)
		srv.Close()

		require.Error(t, err)
		assert.True(t, domain.IsAdapterKind(err, tc.kind), "status %d: %v", tc.status, err)
	}
}

func TestNormalizeStatusIDs(t *testing.T) {
	t.Parallel()

	got := NormalizeStatusIDs([]string{
		" 111 ",
		"https://mastodon.social/@someone/222",
		"https://mastodon.social/@someone/222/",
		"",
		"# comment line",
		"not-an-id",
		"111",
		"333",
	})
	assert.Equal(t, []string{"111", "222", "333"}, got)
}

func TestHTMLToText(t *testing.T) {
	t.Parallel()

	got := htmlToText(`<p>Hola <b>mundo</b></p><p>línea<br>nueva &amp; más</p>`)
	assert.Equal(t, "Hola mundo línea nueva & más", got)
	assert.Empty(t, htmlToText("   "))
}

func TestMastodonFetchPostsSkipsMissing(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("á", 300)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/statuses/1":
			writeJSON(w, http.StatusOK, map[string]any{
				"id": "1", "content": "<p>" + long + "</p>", "language": "es",
				"account": map[string]any{"username": "ana"},
			})
		case "/api/v1/statuses/2":
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "Record not found"})
		case "/api/v1/statuses/3":
			writeJSON(w, http.StatusOK, map[string]any{
				"id": "3", "content": "<p>short</p>", "account": map[string]any{"username": "leo"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter, err := NewMastodon(testSource(domain.PlatformMastodon, srv.URL, map[string]string{
		"statusIds":   "1, 2, https://mastodon.social/@leo/3",
		"accessToken": "secret",
	}))
	require.NoError(t, err)

	posts, err := adapter.FetchPosts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "1", posts[0].ID)
	assert.Equal(t, "es", posts[0].Language)
	assert.Equal(t, 250, len([]rune(posts[0].Text)))
	assert.Equal(t, "short", posts[1].Text)
}

func TestMastodonFetchCommentsFromContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/statuses/9/context", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"ancestors": []any{},
			"descendants": []map[string]any{
				{"id": "10", "content": "<p>great</p>", "account": map[string]any{"username": "ana"}},
				{"id": "11", "content": "<p></p>", "account": map[string]any{"username": "bo"}},
				{"id": "12", "content": "<p>meh</p>", "language": "en", "account": map[string]any{"username": ""}},
			},
		})
	}))
	defer srv.Close()

	adapter, err := NewMastodon(testSource(domain.PlatformMastodon, srv.URL, map[string]string{"statusIds": "9"}))
	require.NoError(t, err)

	comments, err := adapter.FetchComments(context.Background(), "9", 5)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "great", comments[0].Text)
	assert.Equal(t, "ana", comments[0].Author)
	assert.Equal(t, deletedAuthor, comments[1].Author)
}

func TestMastodonIDsFileAndHashtag(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("5\n# skip\nhttps://x.y/@z/6\n5\n"), 0o600))

	adapter, err := NewMastodon(testSource(domain.PlatformMastodon, "", map[string]string{"idsFile": path}))
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, adapter.ids)

	_, err = NewMastodon(testSource(domain.PlatformMastodon, "", nil))
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/timelines/tag/golang", r.URL.Path)
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "7", "content": "<p>one</p>", "account": map[string]any{"username": "a"}},
			{"id": "8", "content": "<p>two</p>", "account": map[string]any{"username": "b"}},
		})
	}))
	defer srv.Close()

	tagged, err := NewMastodon(testSource(domain.PlatformMastodon, srv.URL, map[string]string{"hashtag": "#golang"}))
	require.NoError(t, err)
	posts, err := tagged.FetchPosts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "7", posts[0].ID)
}

func TestFacebookFeedAndComments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token", r.URL.Query().Get("access_token"))
		switch r.URL.Path {
		case "/page/feed":
			assert.Equal(t, "id,message,from", r.URL.Query().Get("fields"))
			writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
				{"id": "page_1", "message": "Hola", "from": map[string]any{"name": "Tienda"}},
				{"id": "page_2"},
			}})
		case "/page_1/comments":
			assert.Equal(t, "stream", r.URL.Query().Get("filter"))
			writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
				{"id": "c1", "message": "Me encanta", "from": map[string]any{"name": "Lucía"}},
				{"id": "c2", "message": ""},
				{"id": "c3", "message": "Sin autor"},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter, err := NewFacebook(testSource(domain.PlatformFacebook, srv.URL, map[string]string{"pageId": "page", "accessToken": "token"}))
	require.NoError(t, err)
	assert.Equal(t, "es", adapter.Language())

	posts, err := adapter.FetchPosts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, facebookNoText, posts[1].Text)
	assert.Equal(t, facebookAnonymous, posts[1].Author)

	comments, err := adapter.FetchComments(context.Background(), "page_1", 10)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "Lucía", comments[0].Author)
	assert.Equal(t, facebookAnonymous, comments[1].Author)
}

func TestFacebookGraphErrorKinds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := 190
		if strings.HasSuffix(r.URL.Path, "/comments") {
			code = 613
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{
			"message": "graph failure", "type": "OAuthException", "code": code,
		}})
	}))
	defer srv.Close()

	adapter, err := NewFacebook(testSource(domain.PlatformFacebook, srv.URL, map[string]string{"pageId": "page", "accessToken": "token"}))
	require.NoError(t, err)

	_, err = adapter.FetchPosts(context.Background(), 5)
	require.Error(t, err)
	assert.True(t, domain.IsAdapterKind(err, domain.AdapterAuth), err.Error())

	_, err = adapter.FetchComments(context.Background(), "page_1", 5)
	require.Error(t, err)
	assert.True(t, domain.IsAdapterKind(err, domain.AdapterRateLimit), err.Error())
}

func TestRegisterBuildsAllPlatforms(t *testing.T) {
	t.Parallel()

	reg := platform.NewRegistry()
	Register(reg)
	assert.Equal(t, []domain.Platform{domain.PlatformFacebook, domain.PlatformMastodon, domain.PlatformReddit}, reg.Platforms())

	adapter, err := reg.Build(testSource(domain.PlatformReddit, "", map[string]string{"subreddit": "golang"}))
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformReddit, adapter.Platform())
}

func TestNonPositiveLimitsSkipRequests(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	defer srv.Close()

	reddit, err := NewReddit(testSource(domain.PlatformReddit, srv.URL, map[string]string{"subreddit": "golang"}))
	require.NoError(t, err)
	mastodon, err := NewMastodon(testSource(domain.PlatformMastodon, srv.URL, map[string]string{"statusIds": "1"}))
	require.NoError(t, err)
	facebook, err := NewFacebook(testSource(domain.PlatformFacebook, srv.URL, map[string]string{"pageId": "page", "accessToken": "token"}))
	require.NoError(t, err)

	ctx := context.Background()
	for _, adapter := range []interface {
		FetchPosts(context.Context, int) ([]domain.RawPost, error)
		FetchComments(context.Context, string, int) ([]domain.RawComment, error)
	}{reddit, mastodon, facebook} {
		for _, limit := range []int{0, -1} {
			posts, err := adapter.FetchPosts(ctx, limit)
			require.NoError(t, err)
			assert.Empty(t, posts)

			comments, err := adapter.FetchComments(ctx, "1", limit)
			require.NoError(t, err)
			assert.Empty(t, comments)
		}
	}
	assert.Zero(t, hits.Load())
}

func TestLatencyRoutesUseOperationNames(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"data": map[string]any{}}, {"data": map[string]any{}}})
	}))
	defer srv.Close()

	adapter, err := NewReddit(testSource(domain.PlatformReddit, srv.URL, map[string]string{"subreddit": "golang"}))
	require.NoError(t, err)
	for _, id := range []string{"aa1", "bb2", "cc3", "dd4", "ee5"} {
		_, err := adapter.FetchComments(context.Background(), id, 5)
		require.NoError(t, err)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	routes := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "contentsync_upstream_request_seconds" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["client"] == string(domain.PlatformReddit) {
				routes[labels["route"]] = true
			}
		}
	}
	assert.True(t, routes["fetch comments"])
	for route := range routes {
		assert.NotContains(t, route, "/", "route label %q carries a path", route)
	}
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("é", 300)
	got := snippet(body)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 200)+"...", got)
	assert.Equal(t, "short", snippet("  short "))
}
