package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"resty.dev/v3"

	"ContentSync/internal/domain"
	"ContentSync/internal/ports"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentsync_runs_total",
		Help: "Sync runs by terminal state",
	}, []string{"source", "state"})

	insertedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentsync_inserted_total",
		Help: "Records stored by sync runs",
	}, []string{"source", "entity"})

	skippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentsync_skipped_total",
		Help: "Fetched records dropped as already stored or repeated",
	}, []string{"source", "entity"})

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentsync_enrichment_fallbacks_total",
		Help: "Items that fell back after a failed translate or sentiment batch",
	}, []string{"source", "stage"})

	failedUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentsync_failed_units_total",
		Help: "Post groups rolled back because persisting failed",
	}, []string{"source"})

	commentFetchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentsync_comment_fetch_failures_total",
		Help: "Posts whose comments could not be fetched",
	}, []string{"source"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentsync_run_duration_seconds",
		Help:    "Wall time of sync runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"source"})

	lastRunTimestamp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "contentsync_last_run_timestamp_seconds",
		Help: "Finish time of the last run per source",
	}, []string{"source"})

	apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentsync_upstream_request_seconds",
		Help:    "Latency of platform and model API requests",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"client", "method", "route", "status_code"})
)

// Recorder turns run summaries into Prometheus samples.
type Recorder struct{}

var _ ports.Notifier = Recorder{}

// NewRecorder returns a notifier that only records metrics.
func NewRecorder() Recorder {
	return Recorder{}
}

// PublishSummary records the counters of one finished run.
func (Recorder) PublishSummary(_ context.Context, s domain.RunSummary) error {
	source := s.Source
	runsTotal.WithLabelValues(source, string(s.State)).Inc()
	insertedTotal.WithLabelValues(source, "publication").Add(float64(s.NewPublications))
	insertedTotal.WithLabelValues(source, "comment").Add(float64(s.NewComments))
	skippedTotal.WithLabelValues(source, "publication").Add(float64(s.SkippedPublications))
	skippedTotal.WithLabelValues(source, "comment").Add(float64(s.SkippedComments))
	fallbacksTotal.WithLabelValues(source, "translate").Add(float64(s.TranslationFallbacks))
	fallbacksTotal.WithLabelValues(source, "sentiment").Add(float64(s.SentimentFallbacks))
	failedUnitsTotal.WithLabelValues(source).Add(float64(len(s.FailedUnits)))
	commentFetchFailuresTotal.WithLabelValues(source).Add(float64(s.CommentFetchFailures))
	runDuration.WithLabelValues(source).Observe(s.Duration().Seconds())
	if !s.FinishedAt.IsZero() {
		lastRunTimestamp.WithLabelValues(source).Set(float64(s.FinishedAt.Unix()))
	}
	return nil
}

type routeKey struct{}

// WithRoute names the endpoint a request belongs to; the name becomes the route label.
// Use a fixed template, never a path carrying ids or tokens.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFrom(ctx context.Context) string {
	if ctx != nil {
		if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
			return route
		}
	}
	return "other"
}

// LatencyMiddleware observes every response of a resty client under the given client label.
func LatencyMiddleware(client string) resty.ResponseMiddleware {
	return func(_ *resty.Client, response *resty.Response) error {
		apiLatency.WithLabelValues(
			client,
			response.Request.Method,
			routeFrom(response.Request.Context()),
			strconv.Itoa(response.StatusCode()),
		).Observe(response.Duration().Seconds())

		return nil
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
