package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"hdrsynth/internal/config"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runFlags mirrors the config file. A flag only overrides the file when it
// was set explicitly.
type runFlags struct {
	configPath string
	sources    []string
	artifacts  []string
	priority   []string
	outDir     string
	reportPath string
	textPath   string
	high       float64
	medium     float64
	workers    int
	extractor  string
	dbPath     string
	timeout    time.Duration
	logLevel   string
}

func (f *runFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Path to the run file (default "+config.DefaultPath+")")
	pf.StringArrayVarP(&f.sources, "source", "s", nil, "Register a source tree as id=path (repeatable)")
	pf.StringArrayVarP(&f.artifacts, "artifact", "a", nil, "Artifact file name to reconcile (repeatable)")
	pf.StringSliceVar(&f.priority, "priority", nil, "Source ids in descending priority, comma separated")
	pf.StringVarP(&f.outDir, "out", "o", "", "Directory synthesized artifacts are written to")
	pf.StringVar(&f.reportPath, "report", "", "Path of the JSON report")
	pf.StringVar(&f.textPath, "text", "", "Write the text report here instead of stdout")
	pf.Float64Var(&f.high, "high", 0, "Scores below this are High severity")
	pf.Float64Var(&f.medium, "medium", 0, "Scores below this are Medium severity")
	pf.IntVarP(&f.workers, "workers", "j", 0, "Concurrent extraction tasks")
	pf.StringVar(&f.extractor, "extractor", "", "Extraction backend: pattern or treesitter")
	pf.StringVarP(&f.dbPath, "db", "d", "", "SQLite run store (disabled when empty)")
	pf.DurationVar(&f.timeout, "timeout", 0, "Deadline for a whole run, e.g. 2m")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
}

// load reads the run file and overlays every flag set on the command line.
func (f *runFlags) load(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if flags.Changed("source") {
		cfg.Sources = cfg.Sources[:0]
		for _, s := range f.sources {
			src, err := config.ParseSource(s)
			if err != nil {
				return nil, err
			}
			cfg.Sources = append(cfg.Sources, src)
		}
	}
	if flags.Changed("artifact") {
		cfg.Artifacts = f.artifacts
	}
	if flags.Changed("priority") {
		cfg.Priority = trimAll(f.priority)
	}
	if flags.Changed("out") {
		cfg.Output.Dir = f.outDir
	}
	if flags.Changed("report") {
		cfg.Output.Report = f.reportPath
	}
	if flags.Changed("text") {
		cfg.Output.Text = f.textPath
	}
	if flags.Changed("high") {
		cfg.Thresholds.High = f.high
	}
	if flags.Changed("medium") {
		cfg.Thresholds.Medium = f.medium
	}
	if flags.Changed("workers") {
		cfg.Workers = f.workers
	}
	if flags.Changed("extractor") {
		cfg.Extractor = f.extractor
	}
	if flags.Changed("db") {
		cfg.DB = f.dbPath
	}
	if flags.Changed("timeout") {
		cfg.Timeout = f.timeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func newLogger(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "hdrsynth",
		ReportTimestamp: true,
		Level:           lvl,
	})
	return logger, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
