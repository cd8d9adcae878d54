package ml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"ContentSync/internal/domain"
	"ContentSync/internal/metrics"
	"ContentSync/internal/ports"
)

const defaultTimeout = 30 * time.Second

// Client talks to an external inference service for translation and sentiment.
type Client struct {
	http           *resty.Client
	sourceLanguage string
	targetLanguage string
}

var _ ports.Translator = (*Client)(nil)
var _ ports.SentimentAnalyzer = (*Client)(nil)

// Options configure the inference client; zero values fall back to defaults.
type Options struct {
	Endpoint       string
	APIKey         string
	SourceLanguage string
	TargetLanguage string
	Timeout        time.Duration
}

type translateRequest struct {
	Texts  []string `json:"texts"`
	Source string   `json:"source,omitempty"`
	Target string   `json:"target"`
}

type translateResponse struct {
	Translations []string `json:"translations"`
}

type sentimentRequest struct {
	Texts []string `json:"texts"`
}

type sentimentResponse struct {
	Results []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// NewClient creates a reusable HTTP client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	target := opts.TargetLanguage
	if target == "" {
		target = "en"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.Endpoint, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	client.AddResponseMiddleware(metrics.LatencyMiddleware("ml"))

	return &Client{http: client, sourceLanguage: opts.SourceLanguage, targetLanguage: target}
}

// Translate sends one batch to the translation model.
func (c *Client) Translate(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp translateResponse
	req := translateRequest{Texts: texts, Source: c.sourceLanguage, Target: c.targetLanguage}
	if err := c.post(ctx, "/translate", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Translations) != len(texts) {
		return nil, fmt.Errorf("translate: got %d translations for %d texts", len(resp.Translations), len(texts))
	}
	return resp.Translations, nil
}

// Analyze sends one batch to the sentiment model. Labels are returned raw.
func (c *Client) Analyze(ctx context.Context, texts []string) ([]domain.SentimentResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp sentimentResponse
	if err := c.post(ctx, "/sentiment", sentimentRequest{Texts: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(texts) {
		return nil, fmt.Errorf("sentiment: got %d results for %d texts", len(resp.Results), len(texts))
	}

	out := make([]domain.SentimentResult, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = domain.SentimentResult{Label: r.Label, Score: r.Score}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	res, err := c.http.R().
		WithContext(metrics.WithRoute(ctx, path)).
		SetBody(payload).
		SetResult(v).
		Post(path)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("unexpected status %s: %s", res.Status(), strings.TrimSpace(res.String()))
	}
	return nil
}
