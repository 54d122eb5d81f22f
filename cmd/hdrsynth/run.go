package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hdrsynth/internal/config"
	"hdrsynth/internal/pipeline"
	"hdrsynth/internal/report"
	"hdrsynth/internal/storage"
	"hdrsynth/internal/watch"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Synthesize every requested artifact and score compatibility",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(ctx context.Context, cfg *config.Config, r *pipeline.Runner, logger *log.Logger) error {
			res, err := r.Reconcile(ctx)
			printResult(cfg, res)
			return err
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score pairwise compatibility of the source trees without writing artifacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(ctx context.Context, cfg *config.Config, r *pipeline.Runner, logger *log.Logger) error {
			res, err := r.Score(ctx)
			printResult(cfg, res)
			return err
		})
	},
}

var watchDebounce time.Duration

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before a re-run (default 500ms)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Reconcile, then reconcile again whenever a source tree changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(ctx context.Context, cfg *config.Config, r *pipeline.Runner, logger *log.Logger) error {
			once := func(ctx context.Context) error {
				res, err := r.Reconcile(ctx)
				printResult(cfg, res)
				return err
			}
			if err := once(ctx); err != nil {
				logger.Error("Initial run failed", "error", err)
			}

			roots := make([]string, 0, len(cfg.Sources))
			for _, s := range cfg.Sources {
				roots = append(roots, s.Root)
			}
			w, err := watch.New(watch.Config{
				Roots:      roots,
				Ignore:     cfg.Corpus.Ignore,
				Extensions: watchedExtensions(cfg),
				Debounce:   watchDebounce,
				Logger:     logger,
				OnChange: func(ctx context.Context, changed []string) error {
					logger.Debug("Changed", "paths", changed)
					return once(ctx)
				},
			})
			if err != nil {
				return err
			}
			fmt.Printf("👀 Watching %d directories across %d sources. Press Ctrl+C to stop.\n", w.Watched(), len(roots))
			return w.Run(ctx)
		})
	},
}

// withRunner builds the config, logger, store and runner shared by the run
// commands. The context is cancelled on SIGINT or SIGTERM.
func withRunner(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, r *pipeline.Runner, logger *log.Logger) error) error {
	cfg, err := opts.load(cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	var store storage.RunStore
	if cfg.DB != "" {
		s, err := storage.NewSQLiteStore(cfg.DB)
		if err != nil {
			return fmt.Errorf("failed to open run store: %w", err)
		}
		defer s.Close()
		store = s
	}

	r, err := pipeline.NewRunner(cfg, logger, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, cfg, r, logger)
}

func printResult(cfg *config.Config, res *pipeline.Result) {
	if res == nil || res.Report == nil {
		return
	}
	if cfg.Output.Text == "" {
		fmt.Print(report.RenderText(res.Report))
	}
	if cfg.Output.Report != "" {
		if _, err := os.Stat(cfg.Output.Report); err == nil {
			fmt.Printf("📄 Report: %s\n", cfg.Output.Report)
		}
	}
}

// watchedExtensions adds the extension of every requested artifact to the
// corpus extensions, so artifacts outside the corpus still trigger runs.
func watchedExtensions(cfg *config.Config) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ext string) {
		if ext != "" && !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	for _, ext := range cfg.Corpus.Extensions {
		add(ext)
	}
	for _, name := range cfg.Artifacts {
		add(filepath.Ext(name))
	}
	return out
}
