package social

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"resty.dev/v3"

	"ContentSync/internal/domain"
	"ContentSync/internal/metrics"
	"ContentSync/internal/platform"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "ContentSync/1.0"
)

// apiClient is the rate-limited JSON client shared by the platform adapters.
type apiClient struct {
	platform domain.Platform
	client   *resty.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func newAPIClient(p domain.Platform, src platform.Source, defaultBaseURL string) *apiClient {
	baseURL := strings.TrimRight(src.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", src.Option("userAgent", defaultUserAgent))
	client.AddResponseMiddleware(metrics.LatencyMiddleware(string(p)))

	limiter := rate.NewLimiter(rate.Inf, 1)
	if src.RateLimit > 0 {
		burst := src.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(src.RateLimit), burst)
	}

	return &apiClient{platform: p, client: client, limiter: limiter, logger: src.Logger}
}

// get performs one GET, decoding a 2xx body into result and an error body into errResult.
func (c *apiClient) get(ctx context.Context, op, path string, query url.Values, result, errResult any) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.AdapterError{Platform: c.platform, Op: op, Kind: domain.AdapterNetwork, Err: err}
	}

	req := c.client.R().WithContext(metrics.WithRoute(ctx, op)).SetResult(result)
	if errResult != nil {
		req = req.SetError(errResult)
	}
	if len(query) > 0 {
		req = req.SetQueryParamsFromValues(query)
	}

	c.debug("request", "op", op, "path", path)
	res, err := req.Get(path)
	if err != nil {
		return res, &domain.AdapterError{Platform: c.platform, Op: op, Kind: domain.AdapterNetwork, Err: err}
	}
	if res.IsError() {
		return res, &domain.AdapterError{
			Platform: c.platform,
			Op:       op,
			Kind:     statusKind(res.StatusCode()),
			Status:   res.StatusCode(),
			Err:      fmt.Errorf("%s: %s", res.Status(), snippet(res.String())),
		}
	}
	return res, nil
}

func (c *apiClient) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func statusKind(status int) domain.AdapterErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.AdapterAuth
	case status == http.StatusTooManyRequests:
		return domain.AdapterRateLimit
	case status == http.StatusNotFound:
		return domain.AdapterNotFound
	default:
		return domain.AdapterUpstream
	}
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if short := truncateRunes(body, 200); short != body {
		return short + "..."
	}
	return body
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// Register adds the Reddit, Mastodon and Facebook adapters to the registry.
func Register(reg *platform.Registry) {
	reg.Register(domain.PlatformReddit, newRedditAdapter)
	reg.Register(domain.PlatformMastodon, newMastodonAdapter)
	reg.Register(domain.PlatformFacebook, newFacebookAdapter)
}
