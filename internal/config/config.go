package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the run file picked up when no --config flag is given.
const DefaultPath = "hdrsynth.yaml"

type Source struct {
	ID   string `yaml:"id"`
	Root string `yaml:"root"`
}

type Thresholds struct {
	High   float64 `yaml:"high"`   // score below this is High severity
	Medium float64 `yaml:"medium"` // score below this is Medium severity
}

type Config struct {
	Sources    []Source   `yaml:"sources"`
	Artifacts  []string   `yaml:"artifacts"`
	Priority   []string   `yaml:"priority"`
	Thresholds Thresholds `yaml:"thresholds"`
	Output     struct {
		Dir       string   `yaml:"dir"`
		Report    string   `yaml:"report"`
		Text      string   `yaml:"text"`
		Enrichers []string `yaml:"enrichers"`
	} `yaml:"output"`
	Corpus struct {
		Extensions []string `yaml:"extensions"`
		Ignore     []string `yaml:"ignore"`
	} `yaml:"corpus"`
	Extractor string        `yaml:"extractor"` // "pattern" or "treesitter"
	Workers   int           `yaml:"workers"`
	CacheSize int           `yaml:"cache_size"`
	Timeout   time.Duration `yaml:"timeout"`
	DB        string        `yaml:"db"`
	LogLevel  string        `yaml:"log_level"`
}

var sourceIDRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// DefaultThresholds applies to each threshold the run file leaves unset.
var DefaultThresholds = Thresholds{High: 25, Medium: 50}

// Default returns a config with every optional field populated.
func Default() *Config {
	cfg := &Config{Thresholds: DefaultThresholds}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset optional field. Thresholds of 0/0 fall
// back to DefaultThresholds; callers overlaying flags call it again.
func (c *Config) ApplyDefaults() {
	if c.Thresholds.High == 0 && c.Thresholds.Medium == 0 {
		c.Thresholds = DefaultThresholds
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "synthesized"
	}
	if c.Output.Report == "" {
		c.Output.Report = "synthesized/report.json"
	}
	if len(c.Corpus.Extensions) == 0 {
		c.Corpus.Extensions = []string{".h"}
	}
	if c.Corpus.Ignore == nil {
		c.Corpus.Ignore = []string{".git", "node_modules", "vendor"}
	}
	if c.Extractor == "" {
		c.Extractor = "pattern"
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.CacheSize == 0 {
		c.CacheSize = 4096
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LoadConfig reads a YAML run file, then applies .env and HDRSYNTH_*
// environment overrides. A missing file at DefaultPath is not an error;
// a missing explicitly named file is.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// Seeded so a run file may override a single threshold.
	cfg := Config{Thresholds: DefaultThresholds}

	// 2. Load YAML config
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	// 3. Override with Environment Variables if present
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HDRSYNTH_OUTPUT_DIR"); v != "" {
		c.Output.Dir = v
	}
	if v := os.Getenv("HDRSYNTH_REPORT"); v != "" {
		c.Output.Report = v
	}
	if v := os.Getenv("HDRSYNTH_EXTRACTOR"); v != "" {
		c.Extractor = v
	}
	if v := os.Getenv("HDRSYNTH_DB"); v != "" {
		c.DB = v
	}
	if v := os.Getenv("HDRSYNTH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HDRSYNTH_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HDRSYNTH_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("HDRSYNTH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HDRSYNTH_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

// ParseSource parses a command-line "id=path" registration.
func ParseSource(s string) (Source, error) {
	id, root, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(id) == "" || strings.TrimSpace(root) == "" {
		return Source{}, fmt.Errorf("invalid source %q: want id=path", s)
	}
	return Source{ID: strings.TrimSpace(id), Root: strings.TrimSpace(root)}, nil
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	var errs []error

	ids := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		switch {
		case !sourceIDRe.MatchString(s.ID):
			errs = append(errs, fmt.Errorf("source id %q must match %s", s.ID, sourceIDRe))
		case ids[s.ID]:
			errs = append(errs, fmt.Errorf("duplicate source id %q", s.ID))
		case s.Root == "":
			errs = append(errs, fmt.Errorf("source %q has no root", s.ID))
		}
		ids[s.ID] = true
	}
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("at least one source is required"))
	}

	seen := make(map[string]bool, len(c.Priority))
	for _, id := range c.Priority {
		if !ids[id] {
			errs = append(errs, fmt.Errorf("priority names unknown source %q", id))
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("priority lists %q twice", id))
		}
		seen[id] = true
	}

	for _, a := range c.Artifacts {
		if a == "" || a == "." || a == ".." || strings.ContainsAny(a, `/\`) {
			errs = append(errs, fmt.Errorf("artifact %q must be a plain file name", a))
		}
	}

	t := c.Thresholds
	if t.High < 0 || t.Medium > 100 || t.High > t.Medium {
		errs = append(errs, fmt.Errorf("thresholds must satisfy 0 <= high (%g) <= medium (%g) <= 100", t.High, t.Medium))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.Extractor != "pattern" && c.Extractor != "treesitter" {
		errs = append(errs, fmt.Errorf("unsupported extractor %q", c.Extractor))
	}
	for _, e := range c.Output.Enrichers {
		if e != "mermaid" && e != "dot" {
			errs = append(errs, fmt.Errorf("unsupported enricher %q", e))
		}
	}

	return errors.Join(errs...)
}
