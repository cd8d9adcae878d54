package social

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"ContentSync/internal/domain"
	"ContentSync/internal/platform"
	"ContentSync/internal/ports"
)

const (
	mastodonBaseURL   = "https://mastodon.social"
	mastodonTextLimit = 250
	mastodonPageLimit = 40
)

var statusIDPattern = regexp.MustCompile(`^\d+$`)

type mastodonAccount struct {
	Username string `json:"username"`
	Acct     string `json:"acct"`
}

type mastodonStatus struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Language string          `json:"language"`
	Account  mastodonAccount `json:"account"`
}

type mastodonContext struct {
	Descendants []mastodonStatus `json:"descendants"`
}

// Mastodon follows a fixed list of statuses, or a hashtag timeline when no ids are configured.
type Mastodon struct {
	api      *apiClient
	ids      []string
	hashtag  string
	language string
}

var _ ports.PlatformAdapter = (*Mastodon)(nil)

// NewMastodon builds the adapter from statusIds, idsFile or hashtag options.
func NewMastodon(src platform.Source) (*Mastodon, error) {
	raw := strings.Split(src.Option("statusIds", ""), ",")
	if path := src.Option("idsFile", ""); path != "" {
		lines, err := readLines(path)
		if err != nil {
			return nil, fmt.Errorf("mastodon: read ids file: %w", err)
		}
		raw = append(raw, lines...)
	}

	ids := NormalizeStatusIDs(raw)
	hashtag := strings.TrimPrefix(strings.TrimSpace(src.Option("hashtag", "")), "#")
	if len(ids) == 0 && hashtag == "" {
		return nil, errors.New("mastodon: statusIds, idsFile or hashtag option is required")
	}

	api := newAPIClient(domain.PlatformMastodon, src, mastodonBaseURL)
	if token := src.Option("accessToken", ""); token != "" {
		api.client.SetAuthToken(token)
	}

	return &Mastodon{
		api:      api,
		ids:      ids,
		hashtag:  hashtag,
		language: languageOr(src.Language, "en"),
	}, nil
}

func newMastodonAdapter(src platform.Source) (ports.PlatformAdapter, error) {
	adapter, err := NewMastodon(src)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// NormalizeStatusIDs accepts bare ids or status URLs and keeps the first occurrence of each id.
func NormalizeStatusIDs(raw []string) []string {
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimRight(strings.TrimSpace(item), "/")
		if item == "" || strings.HasPrefix(item, "#") {
			continue
		}
		if i := strings.LastIndex(item, "/"); i >= 0 {
			item = item[i+1:]
		}
		if statusIDPattern.MatchString(item) {
			ids = append(ids, item)
		}
	}
	return lo.Uniq(ids)
}

// Platform identifies the adapter.
func (m *Mastodon) Platform() domain.Platform { return domain.PlatformMastodon }

// Language is the fallback for statuses that carry no language of their own.
func (m *Mastodon) Language() string { return m.language }

// FetchPosts loads configured statuses one by one; missing statuses are skipped.
func (m *Mastodon) FetchPosts(ctx context.Context, limit int) ([]domain.RawPost, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(m.ids) == 0 {
		return m.fetchTimeline(ctx, limit)
	}

	posts := make([]domain.RawPost, 0, min(limit, len(m.ids)))
	for _, id := range m.ids {
		if len(posts) == limit {
			break
		}
		var status mastodonStatus
		_, err := m.api.get(ctx, "fetch status", "/api/v1/statuses/"+url.PathEscape(id), nil, &status, nil)
		if domain.IsAdapterKind(err, domain.AdapterNotFound) {
			m.api.debug("status not found, skipped", "status_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		posts = append(posts, m.post(status))
	}
	return posts, nil
}

func (m *Mastodon) fetchTimeline(ctx context.Context, limit int) ([]domain.RawPost, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(min(limit, mastodonPageLimit)))

	var statuses []mastodonStatus
	path := "/api/v1/timelines/tag/" + url.PathEscape(m.hashtag)
	if _, err := m.api.get(ctx, "fetch timeline", path, query, &statuses, nil); err != nil {
		return nil, err
	}

	posts := make([]domain.RawPost, 0, len(statuses))
	for _, status := range statuses {
		if len(posts) == limit {
			break
		}
		posts = append(posts, m.post(status))
	}
	return posts, nil
}

// FetchComments returns the direct and nested replies of a status.
func (m *Mastodon) FetchComments(ctx context.Context, postID string, limit int) ([]domain.RawComment, error) {
	if limit <= 0 {
		return nil, nil
	}
	var thread mastodonContext
	path := fmt.Sprintf("/api/v1/statuses/%s/context", url.PathEscape(postID))
	if _, err := m.api.get(ctx, "fetch context", path, nil, &thread, nil); err != nil {
		return nil, err
	}

	comments := make([]domain.RawComment, 0, min(limit, len(thread.Descendants)))
	for _, reply := range thread.Descendants {
		if len(comments) == limit {
			break
		}
		text := htmlToText(reply.Content)
		if text == "" {
			continue
		}
		comments = append(comments, domain.RawComment{
			ID:       reply.ID,
			Author:   authorOrDeleted(reply.Account.Username),
			Text:     text,
			Language: reply.Language,
		})
	}
	return comments, nil
}

func (m *Mastodon) post(status mastodonStatus) domain.RawPost {
	return domain.RawPost{
		ID:       status.ID,
		Author:   authorOrDeleted(status.Account.Username),
		Text:     truncateRunes(htmlToText(status.Content), mastodonTextLimit),
		Language: status.Language,
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
