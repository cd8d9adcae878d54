package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ContentSync/internal/app"
	"ContentSync/internal/config"
	"ContentSync/internal/domain"
	"ContentSync/internal/logging"
	"ContentSync/internal/usecase"
	"ContentSync/pkg/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "contentsync",
		Short:         "Incremental sync of social posts and comments with translation and sentiment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CONTENT_SYNC_CONFIG"), "path to the YAML configuration")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newSyncCommand(opts),
		newServeCommand(opts),
		newMigrateCommand(opts),
		newDeleteCommand(opts),
		newBackfillCommand(opts),
		newReportCommand(opts),
	)
	return root
}

// open loads the configuration and builds the application; callers must Close it.
func (o *rootOptions) open(ctx context.Context) (*app.Application, *slog.Logger, error) {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return application, log, nil
}

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sync [source...]",
		Short: "Run the configured sources once, sequentially",
		Long: "Run the configured sources once. The first interrupt finishes the current post group and stops; " +
			"a second interrupt aborts immediately.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			application, log, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			stop := &usecase.StopFlag{}
			done := watchInterrupts(stop, cancel, log)
			defer done()

			summaries, err := application.Sync(ctx, args, stop, logger.Progress(logger.NewWithWriter(cmd.ErrOrStderr(), "sync")))
			if printErr := printSummaries(cmd.OutOrStdout(), summaries, asJSON); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print run summaries as JSON")
	return cmd
}

// watchInterrupts gives the first interrupt graceful stop semantics and the second a hard cancel.
func watchInterrupts(stop *usecase.StopFlag, cancel context.CancelFunc, log *slog.Logger) func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		count := 0
		for {
			select {
			case <-signals:
				count++
				if count == 1 {
					log.Warn("interrupt received, stopping after the current post group; interrupt again to abort")
					stop.Stop()
					continue
				}
				log.Warn("second interrupt received, aborting")
				cancel()
				return
			case <-quit:
				return
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(quit)
	}
}

func printSummaries(w io.Writer, summaries []domain.RunSummary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATE\tNEW POSTS\tNEW COMMENTS\tSKIPPED\tFAILED UNITS\tDURATION")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.Source, s.State, s.NewPublications, s.NewComments,
			s.SkippedPublications+s.SkippedComments, len(s.FailedUnits), s.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Sync every source on the configured interval and expose /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, log, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer application.Close()

			log.Info("serving", "sources", application.Sources())
			return application.Serve(ctx, logger.Progress(logger.New("serve")))
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, log, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("schema is up to date")
			return nil
		},
	}
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete stored content together with its comments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "publication <id>",
		Short: "Delete one publication",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			deleted, err := application.DeletePublication(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("publication %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted publication %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "platform <name>",
		Short: "Delete every publication of a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			count, err := application.DeletePlatform(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d publications of %s\n", count, args[0])
			return nil
		},
	})

	return cmd
}

func newBackfillCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Translate stored rows that have no translation yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Backfill(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, updated %d, fallbacks %d\n", result.Scanned, result.Updated, result.Fallbacks)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum rows per pass")
	return cmd
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	var platformName string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show stored publications, comments and sentiment per platform",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			stats, err := application.Report(cmd.Context(), platformName)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), stats, asJSON)
		},
	}
	cmd.Flags().StringVar(&platformName, "platform", "", "limit the report to one platform")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printStats(w io.Writer, stats []domain.PlatformStats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tPUBLICATIONS\tCOMMENTS\tLABELS\tMEAN SCORE")
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
			st.Platform, st.Publications, st.Comments, formatLabels(st.Labels), strconv.FormatFloat(st.MeanScore, 'f', 3, 64))
	}
	return tw.Flush()
}

func formatLabels(labels map[domain.SentimentLabel]int) string {
	keys := make([]string, 0, len(labels))
	for label := range labels {
		keys = append(keys, string(label))
	}
	sort.Strings(keys)

	out := ""
	for i, key := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", key, labels[domain.SentimentLabel(key)])
	}
	if out == "" {
		return "-"
	}
	return out
}
