package social

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ContentSync/internal/domain"
	"ContentSync/internal/platform"
	"ContentSync/internal/ports"
)

const (
	redditBaseURL   = "https://www.reddit.com"
	redditPageLimit = 100
	deletedAuthor   = "[deleted]"
)

type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string        `json:"after"`
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string `json:"kind"`
	Data struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Author   string `json:"author"`
		Body     string `json:"body"`
		Stickied bool   `json:"stickied"`
	} `json:"data"`
}

// Reddit reads a subreddit listing through the public JSON API.
type Reddit struct {
	api       *apiClient
	subreddit string
	sort      string
	language  string
}

var _ ports.PlatformAdapter = (*Reddit)(nil)

// NewReddit builds the adapter; the subreddit option is required.
func NewReddit(src platform.Source) (*Reddit, error) {
	subreddit := strings.TrimPrefix(strings.TrimSpace(src.Option("subreddit", "")), "r/")
	if subreddit == "" {
		return nil, errors.New("reddit: subreddit option is required")
	}

	return &Reddit{
		api:       newAPIClient(domain.PlatformReddit, src, redditBaseURL),
		subreddit: subreddit,
		sort:      src.Option("sort", "hot"),
		language:  languageOr(src.Language, "en"),
	}, nil
}

func newRedditAdapter(src platform.Source) (ports.PlatformAdapter, error) {
	adapter, err := NewReddit(src)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// Platform identifies the adapter.
func (r *Reddit) Platform() domain.Platform { return domain.PlatformReddit }

// Language is the default language hint of the subreddit.
func (r *Reddit) Language() string { return r.language }

// FetchPosts pages through the listing until limit posts are collected.
func (r *Reddit) FetchPosts(ctx context.Context, limit int) ([]domain.RawPost, error) {
	if limit <= 0 {
		return nil, nil
	}
	path := fmt.Sprintf("/r/%s/%s.json", url.PathEscape(r.subreddit), url.PathEscape(r.sort))
	posts := make([]domain.RawPost, 0, limit)
	after := ""

	for len(posts) < limit {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(min(limit-len(posts), redditPageLimit)))
		query.Set("raw_json", "1")
		if after != "" {
			query.Set("after", after)
		}

		var listing redditListing
		if _, err := r.api.get(ctx, "fetch posts", path, query, &listing, nil); err != nil {
			return nil, err
		}

		for _, child := range listing.Data.Children {
			if child.Kind != "t3" || child.Data.ID == "" {
				continue
			}
			posts = append(posts, domain.RawPost{
				ID:     child.Data.ID,
				Author: authorOrDeleted(child.Data.Author),
				Text:   child.Data.Title,
			})
			if len(posts) == limit {
				break
			}
		}

		if listing.Data.After == "" || len(listing.Data.Children) == 0 {
			break
		}
		after = listing.Data.After
	}

	return posts, nil
}

// FetchComments returns top-level comments of a post, skipping "more" stubs and empty bodies.
func (r *Reddit) FetchComments(ctx context.Context, postID string, limit int) ([]domain.RawComment, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("depth", "1")
	query.Set("raw_json", "1")

	var listings []redditListing
	path := fmt.Sprintf("/comments/%s.json", url.PathEscape(postID))
	if _, err := r.api.get(ctx, "fetch comments", path, query, &listings, nil); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}

	comments := make([]domain.RawComment, 0, limit)
	for _, child := range listings[1].Data.Children {
		if child.Kind != "t1" || strings.TrimSpace(child.Data.Body) == "" {
			continue
		}
		comments = append(comments, domain.RawComment{
			ID:     child.Data.ID,
			Author: authorOrDeleted(child.Data.Author),
			Text:   child.Data.Body,
		})
		if len(comments) == limit {
			break
		}
	}
	return comments, nil
}

func authorOrDeleted(author string) string {
	if strings.TrimSpace(author) == "" {
		return deletedAuthor
	}
	return author
}

func languageOr(lang, fallback string) string {
	if strings.TrimSpace(lang) == "" {
		return fallback
	}
	return lang
}
