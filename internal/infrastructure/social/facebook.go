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
	facebookBaseURL   = "https://graph.facebook.com/v19.0"
	facebookNoText    = "[sin texto]"
	facebookAnonymous = "Anónimo"
)

type graphUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type graphItem struct {
	ID      string     `json:"id"`
	Message string     `json:"message"`
	From    *graphUser `json:"from"`
}

type graphPage struct {
	Data   []graphItem `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type graphErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Facebook reads a page feed through the Graph API.
type Facebook struct {
	api      *apiClient
	pageID   string
	token    string
	language string
}

var _ ports.PlatformAdapter = (*Facebook)(nil)

// NewFacebook needs the pageId and accessToken options.
func NewFacebook(src platform.Source) (*Facebook, error) {
	pageID := strings.TrimSpace(src.Option("pageId", ""))
	token := strings.TrimSpace(src.Option("accessToken", ""))
	if pageID == "" || token == "" {
		return nil, errors.New("facebook: pageId and accessToken options are required")
	}

	return &Facebook{
		api:      newAPIClient(domain.PlatformFacebook, src, facebookBaseURL),
		pageID:   pageID,
		token:    token,
		language: languageOr(src.Language, "es"),
	}, nil
}

func newFacebookAdapter(src platform.Source) (ports.PlatformAdapter, error) {
	adapter, err := NewFacebook(src)
	if err != nil {
		return nil, err
	}
	return adapter, nil
}

// Platform identifies the adapter.
func (f *Facebook) Platform() domain.Platform { return domain.PlatformFacebook }

// Language is the configured language of the page, Spanish unless set.
func (f *Facebook) Language() string { return f.language }

// FetchPosts reads the page feed; posts without a message get a placeholder text.
func (f *Facebook) FetchPosts(ctx context.Context, limit int) ([]domain.RawPost, error) {
	if limit <= 0 {
		return nil, nil
	}
	page, err := f.fetch(ctx, "fetch posts", fmt.Sprintf("/%s/feed", url.PathEscape(f.pageID)), url.Values{
		"fields": {"id,message,from"},
		"limit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	posts := make([]domain.RawPost, 0, min(limit, len(page.Data)))
	for _, item := range page.Data {
		if len(posts) == limit {
			break
		}
		text := strings.TrimSpace(item.Message)
		if text == "" {
			text = facebookNoText
		}
		posts = append(posts, domain.RawPost{ID: item.ID, Author: authorName(item.From), Text: text})
	}
	return posts, nil
}

// FetchComments reads the comment stream of a post, skipping comments without text.
func (f *Facebook) FetchComments(ctx context.Context, postID string, limit int) ([]domain.RawComment, error) {
	if limit <= 0 {
		return nil, nil
	}
	page, err := f.fetch(ctx, "fetch comments", fmt.Sprintf("/%s/comments", url.PathEscape(postID)), url.Values{
		"fields": {"from,message"},
		"filter": {"stream"},
		"limit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	comments := make([]domain.RawComment, 0, min(limit, len(page.Data)))
	for _, item := range page.Data {
		if len(comments) == limit {
			break
		}
		if strings.TrimSpace(item.Message) == "" {
			continue
		}
		comments = append(comments, domain.RawComment{ID: item.ID, Author: authorName(item.From), Text: item.Message})
	}
	return comments, nil
}

func (f *Facebook) fetch(ctx context.Context, op, path string, query url.Values) (graphPage, error) {
	query.Set("access_token", f.token)

	var page graphPage
	var envelope graphErrorEnvelope
	_, err := f.api.get(ctx, op, path, query, &page, &envelope)
	if err == nil {
		return page, nil
	}

	var aerr *domain.AdapterError
	if errors.As(err, &aerr) && envelope.Error.Code != 0 {
		if kind, ok := graphErrorKind(envelope.Error.Code); ok {
			aerr.Kind = kind
		}
		aerr.Err = fmt.Errorf("graph error %d (%s): %s", envelope.Error.Code, envelope.Error.Type, envelope.Error.Message)
	}
	return graphPage{}, err
}

func graphErrorKind(code int) (domain.AdapterErrorKind, bool) {
	switch code {
	case 190, 102, 10, 200:
		return domain.AdapterAuth, true
	case 4, 17, 32, 613:
		return domain.AdapterRateLimit, true
	default:
		return "", false
	}
}

func authorName(from *graphUser) string {
	if from == nil || strings.TrimSpace(from.Name) == "" {
		return facebookAnonymous
	}
	return from.Name
}
