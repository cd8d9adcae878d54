package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"ContentSync/internal/config"
	"ContentSync/internal/domain"
	"ContentSync/internal/infrastructure/llm"
	"ContentSync/internal/infrastructure/ml"
	"ContentSync/internal/infrastructure/natsbus"
	"ContentSync/internal/infrastructure/scheduler"
	"ContentSync/internal/infrastructure/social"
	"ContentSync/internal/infrastructure/storage"
	"ContentSync/internal/infrastructure/telegram"
	"ContentSync/internal/logging"
	"ContentSync/internal/metrics"
	"ContentSync/internal/platform"
	"ContentSync/internal/ports"
	"ContentSync/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	db         *sql.DB
	store      *storage.SQLStore
	registry   *platform.Registry
	translator ports.Translator
	pipeline   *usecase.Pipeline
	closers    []func() error
}

// New opens the store, migrates the schema and builds the sync pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dialect, err := storage.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(ctx, dialect, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	store := storage.NewSQLStore(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		store:    store,
		registry: platform.NewRegistry(),
	}
	a.closers = append(a.closers, db.Close)
	social.Register(a.registry)

	a.translator, err = a.buildTranslator()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var analyzer ports.SentimentAnalyzer
	if cfg.Enrichment.Sentiment == config.BackendML {
		analyzer = ml.NewClient(a.mlOptions())
	}

	notifiers, err := a.buildNotifiers()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Store:      store,
		Translator: a.translator,
		Analyzer:   analyzer,
		Notifiers:  notifiers,
		Logger:     baseLogger.With("component", "pipeline"),
		Options: usecase.PipelineOptions{
			GroupSize:         cfg.Sync.GroupSize,
			RefreshKnownPosts: cfg.Sync.Refresh(),
			Enrichment:        a.enrichmentOptions(),
		},
	})
	return a, nil
}

func (a *Application) enrichmentOptions() usecase.EnrichmentOptions {
	e := a.cfg.Enrichment
	return usecase.EnrichmentOptions{
		BatchSize:      e.BatchSize,
		Threshold:      e.Threshold,
		ModelLanguage:  e.ModelLanguage,
		TargetLanguage: e.TargetLanguage,
		MaxInputChars:  e.MaxInputChars,
		Policy:         usecase.SentimentPolicy(e.Policy),
	}
}

func (a *Application) mlOptions() ml.Options {
	return ml.Options{
		Endpoint:       a.cfg.ML.InferenceURL,
		APIKey:         a.cfg.ML.APIKey,
		TargetLanguage: a.cfg.Enrichment.TargetLanguage,
		Timeout:        a.cfg.ML.Timeout,
	}
}

func (a *Application) buildTranslator() (ports.Translator, error) {
	switch a.cfg.Enrichment.Translator {
	case config.BackendML:
		return ml.NewClient(a.mlOptions()), nil
	case config.BackendChatGPT:
		if a.cfg.ChatGPT.APIKey == "" {
			return nil, errors.New("chatgpt translator selected but no API key is configured")
		}
		return llm.NewChatGPTClient(a.cfg.ChatGPT, a.cfg.Enrichment.TargetLanguage), nil
	default:
		return nil, nil
	}
}

func (a *Application) buildNotifiers() ([]ports.Notifier, error) {
	notifiers := []ports.Notifier{metrics.NewRecorder()}

	if tg := a.cfg.Notifications.Telegram; tg.Enabled() {
		notifiers = append(notifiers, telegram.NewNotifier(tg.BotToken, tg.ChatID))
	}
	if n := a.cfg.Notifications.NATS; n.URL != "" {
		pub, err := natsbus.Connect(n.URL, n.Subject)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		notifiers = append(notifiers, pub)
	}
	return notifiers, nil
}

// Sources lists configured source names in configuration order.
func (a *Application) Sources() []string {
	names := make([]string, 0, len(a.cfg.Sources))
	for _, src := range a.cfg.Sources {
		names = append(names, src.Name)
	}
	return names
}

// Sync runs the named sources (all when names is empty) one after another.
func (a *Application) Sync(ctx context.Context, names []string, stop ports.CancellationSignal, progress ports.ProgressFunc) ([]domain.RunSummary, error) {
	reqs, err := a.requests(names, stop, progress)
	if err != nil {
		return nil, err
	}
	a.debug("sync sources", "count", len(reqs))
	return a.pipeline.RunAll(ctx, reqs)
}

func (a *Application) requests(names []string, stop ports.CancellationSignal, progress ports.ProgressFunc) ([]usecase.RunRequest, error) {
	if len(a.cfg.Sources) == 0 {
		return nil, errors.New("no sources configured")
	}

	selected := a.cfg.Sources
	if len(names) > 0 {
		byName := make(map[string]config.SourceConfig, len(a.cfg.Sources))
		for _, src := range a.cfg.Sources {
			byName[src.Name] = src
		}
		selected = selected[:0:0]
		for _, name := range names {
			src, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("source %s is not configured", name)
			}
			selected = append(selected, src)
		}
	}

	reqs := make([]usecase.RunRequest, 0, len(selected))
	for _, src := range selected {
		adapter, err := a.registry.Build(a.platformSource(src))
		if err != nil {
			return nil, err
		}
		posts, comments := src.Limits(a.cfg.Sync)
		reqs = append(reqs, usecase.RunRequest{
			Source:       src.Name,
			Adapter:      adapter,
			PostLimit:    posts,
			CommentLimit: comments,
			Progress:     progress,
			Cancel:       stop,
		})
	}
	return reqs, nil
}

func (a *Application) platformSource(src config.SourceConfig) platform.Source {
	return platform.Source{
		Name:      src.Name,
		Platform:  domain.Platform(src.Platform),
		Language:  src.Language,
		BaseURL:   src.BaseURL,
		RateLimit: src.RateLimit,
		Burst:     src.Burst,
		Timeout:   src.Timeout,
		Options:   src.Options,
		Logger:    a.logger.With("component", "adapter."+src.Platform, "source", src.Name),
	}
}

// Serve syncs every source on the configured interval and exposes /metrics until ctx ends.
func (a *Application) Serve(ctx context.Context, progress ports.ProgressFunc) error {
	g, ctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if addr := a.cfg.Metrics.Addr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			a.logger.Info("metrics endpoint listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(a.cfg.Scheduler.Interval, a.cfg.Scheduler.RunOnStart, a.cfg.Scheduler.Location()),
		func(ctx context.Context, trigger time.Time) error {
			a.logger.Info("scheduled sync started", "trigger", trigger)
			_, err := a.Sync(ctx, nil, nil, progress)
			return err
		},
		a.logger.With("component", "scheduler"),
	)

	g.Go(func() error {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		errs := []error{sched.Stop(shutdownCtx)}
		if srv != nil {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// Migrate applies the schema; New already does this, the command exists for explicit runs.
func (a *Application) Migrate(ctx context.Context) error {
	return a.store.Migrate(ctx)
}

// DeletePublication removes one publication and its comments.
func (a *Application) DeletePublication(ctx context.Context, id string) (bool, error) {
	return a.store.DeletePublication(ctx, id)
}

// DeletePlatform removes every publication of a platform and their comments.
func (a *Application) DeletePlatform(ctx context.Context, name string) (int64, error) {
	return a.store.DeletePlatform(ctx, domain.Platform(name))
}

// Backfill translates stored rows that still lack a translation.
func (a *Application) Backfill(ctx context.Context, limit int) (usecase.BackfillResult, error) {
	backfill := usecase.NewBackfill(a.store, a.translator, a.enrichmentOptions(), a.logger.With("component", "backfill"))
	return backfill.Run(ctx, limit)
}

// Report aggregates stored content per platform; an empty name covers all platforms.
func (a *Application) Report(ctx context.Context, name string) ([]domain.PlatformStats, error) {
	return a.store.Stats(ctx, domain.Platform(name))
}

// Close releases the store and notifier connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) debug(msg string, args ...interface{}) {
	if a.logger != nil {
		a.logger.Debug(msg, args...)
	}
}
