// Package pipeline runs one reconciliation: probe, parallel extraction, a join
// barrier, then per-artifact resolution, synthesis and writing, followed by
// compatibility scoring and reporting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hdrsynth/internal/compat"
	"hdrsynth/internal/config"
	"hdrsynth/internal/crawler"
	"hdrsynth/internal/extractor"
	"hdrsynth/internal/failure"
	"hdrsynth/internal/git"
	"hdrsynth/internal/provenance"
	"hdrsynth/internal/registry"
	"hdrsynth/internal/report"
	"hdrsynth/internal/storage"
	"hdrsynth/internal/synth"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const (
	ModeReconcile = "reconcile"
	ModeScore     = "score"
)

// Runner executes runs against one configuration. The extraction cache and
// the artifact writer are shared between runs, so a Runner reused by the
// watcher only re-reads files that changed.
type Runner struct {
	cfg    *config.Config
	logger *log.Logger
	ext    *extractor.Extractor
	cache  *extractor.Cache
	writer *synth.Writer
	store  storage.RunStore
}

// Result is the outcome of one run. Report is set even when Run returns an
// error, unless the configuration itself was unusable.
type Result struct {
	Report    *report.Report
	Artifacts []*synth.Artifact
}

// NewExtractor builds the extractor a configuration describes.
func NewExtractor(cfg *config.Config) (*extractor.Extractor, *extractor.Cache, error) {
	cache, err := extractor.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, nil, err
	}
	c := crawler.NewCrawler(cfg.Corpus.Ignore, cfg.Corpus.Extensions)
	ext, err := extractor.NewExtractor(cfg.Extractor, c, cache)
	if err != nil {
		return nil, nil, err
	}
	return ext, cache, nil
}

// NewRunner validates cfg. logger may be nil; store may be nil to skip
// persistence.
func NewRunner(cfg *config.Config, logger *log.Logger, store storage.RunStore) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	ext, cache, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:    cfg,
		logger: logger,
		ext:    ext,
		cache:  cache,
		writer: synth.NewWriter(cfg.Output.Dir),
		store:  store,
	}, nil
}

// Reconcile synthesizes every requested artifact and scores compatibility.
func (r *Runner) Reconcile(ctx context.Context) (*Result, error) {
	return r.run(ctx, ModeReconcile)
}

// Score only scores compatibility; no artifact is extracted or written.
func (r *Runner) Score(ctx context.Context) (*Result, error) {
	return r.run(ctx, ModeScore)
}

// run holds the state of a single run.
type run struct {
	*Runner
	mode      string
	rep       *report.Report
	reg       *registry.Registry
	priority  []string
	readable  []registry.SourceTree
	artifacts []string
}

func (r *Runner) run(ctx context.Context, mode string) (*Result, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	reg, err := newRegistry(r.cfg)
	if err != nil {
		return nil, err
	}
	priority, err := reg.Priority(r.cfg.Priority)
	if err != nil {
		return nil, err
	}

	rn := &run{
		Runner:   r,
		mode:     mode,
		rep:      report.New(mode, r.cfg.Output.Dir),
		reg:      reg,
		priority: priority,
	}
	if mode == ModeReconcile {
		rn.artifacts = dedupe(r.cfg.Artifacts)
	}
	rn.rep.Extractor = r.ext.Backend()
	rn.rep.Priority = priority
	rn.rep.Thresholds = compat.Thresholds{High: r.cfg.Thresholds.High, Medium: r.cfg.Thresholds.Medium}

	r.logger.Info("Starting run", "mode", mode, "sources", reg.Len(), "artifacts", len(rn.artifacts), "extractor", rn.rep.Extractor)

	res, runErr := rn.execute(ctx)
	rn.reportStage(ctx)
	if runErr != nil {
		r.logger.Error("Run failed", "error", runErr)
	} else {
		r.logger.Info("Run complete",
			"resolved", rn.rep.Summary.ArtifactsResolved,
			"contended", rn.rep.Summary.ContendedSymbols,
			"edges", len(rn.rep.Edges),
			"failures", rn.rep.Summary.Failures)
	}
	return res, runErr
}

func (rn *run) execute(ctx context.Context) (*Result, error) {
	res := &Result{Report: rn.rep}

	rn.probeStage(ctx)
	if len(rn.readable) == 0 {
		return res, failure.ErrNoSources
	}

	ex, err := rn.extractStage(ctx)
	if err != nil {
		return res, err
	}

	arts, violations := rn.synthesizeStage(ctx, ex)
	res.Artifacts = arts

	rn.scoreStage(ex)

	if len(rn.artifacts) > 0 && violations == len(rn.artifacts) {
		return res, failure.ErrAllArtifactsFailed
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("run deadline: %w", err)
	}
	return res, nil
}

func (rn *run) probeStage(ctx context.Context) {
	h := rn.rep.BeginStage("probe")
	readable, failed := rn.reg.Probe()
	rn.readable = readable

	ok := make(map[string]bool, len(readable))
	for _, s := range readable {
		ok[s.ID] = true
	}
	for _, s := range rn.reg.Sources() {
		st := report.SourceStatus{ID: s.ID, Root: s.Root, Readable: ok[s.ID]}
		if st.Readable {
			rev, err := git.Describe(ctx, s.Root)
			switch {
			case err == nil:
				st.Revision = rev.String()
			case !errors.Is(err, git.ErrNotRepository):
				rn.logger.Debug("No revision for source", "source", s.ID, "error", err)
			}
		}
		rn.rep.Sources = append(rn.rep.Sources, st)
	}
	for _, f := range failed {
		rn.logger.Warn("Source unavailable", "source", f.SourceID, "error", f.Message)
	}
	rn.rep.AddFailures(failed...)

	var err error
	if len(readable) == 0 {
		err = failure.ErrNoSources
	}
	rn.rep.EndStage(h, map[string]float64{
		"registered": float64(rn.reg.Len()),
		"readable":   float64(len(readable)),
	}, nil, err)
}

// extraction holds the per-task result slots. Each task writes only its own
// slot, so no locking is needed; the errgroup Wait is the barrier.
type extraction struct {
	sources   []registry.SourceTree
	artifacts [][]*extractor.Artifact // [source][artifact]
	failures  [][]*failure.Failure    // [source][artifact]
	corpus    []compat.Set            // [source]
	corpusErr []error                 // [source]
}

func (rn *run) extractStage(ctx context.Context) (*extraction, error) {
	h := rn.rep.BeginStage("extract")
	ex := &extraction{
		sources:   rn.readable,
		artifacts: make([][]*extractor.Artifact, len(rn.readable)),
		failures:  make([][]*failure.Failure, len(rn.readable)),
		corpus:    make([]compat.Set, len(rn.readable)),
		corpusErr: make([]error, len(rn.readable)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rn.cfg.Workers)
	for i, src := range rn.readable {
		ex.artifacts[i] = make([]*extractor.Artifact, len(rn.artifacts))
		ex.failures[i] = make([]*failure.Failure, len(rn.artifacts))
		for j, name := range rn.artifacts {
			g.Go(func() error {
				art, err := rn.ext.ExtractArtifact(gctx, src, name)
				if f, ok := failure.As(err); ok {
					ex.failures[i][j] = f
				} else if err != nil {
					return err
				}
				ex.artifacts[i][j] = art
				return nil
			})
		}
		g.Go(func() error {
			names, err := rn.ext.CorpusFunctions(gctx, src)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			ex.corpus[i], ex.corpusErr[i] = names, err
			return nil
		})
	}
	err := g.Wait()

	hits, misses := rn.cache.Stats()
	counters := map[string]float64{
		"tasks":        float64(len(rn.readable) * (len(rn.artifacts) + 1)),
		"cache_hits":   float64(hits),
		"cache_misses": float64(misses),
	}
	var notes []string
	symbols := 0
	for i := range ex.artifacts {
		for j, art := range ex.artifacts[i] {
			if f := ex.failures[i][j]; f != nil {
				rn.logger.Debug("Artifact missing", "source", f.SourceID, "artifact", f.Artifact, "kind", f.Kind)
				rn.rep.AddFailures(f)
			}
			if art == nil {
				continue
			}
			symbols += len(art.Symbols)
			if len(art.Candidates) > 1 {
				notes = append(notes, fmt.Sprintf("%s: %d candidates in %s, chose %s",
					art.Name, len(art.Candidates), art.SourceID, art.Rel))
			}
		}
	}
	counters["symbols"] = float64(symbols)
	rn.rep.EndStage(h, counters, notes, err)

	if err != nil {
		return nil, fmt.Errorf("extraction aborted: %w", err)
	}
	return ex, nil
}

// synthesizeStage resolves and writes each artifact in request order. It
// returns the synthesized artifacts and the number of invariant violations.
func (rn *run) synthesizeStage(ctx context.Context, ex *extraction) ([]*synth.Artifact, int) {
	if rn.mode != ModeReconcile {
		return nil, 0
	}
	h := rn.rep.BeginStage("synthesize")
	guards := synth.NewGuardRegistry()
	rank := make(map[string]int, len(ex.sources))
	for i, s := range ex.sources {
		rank[s.ID] = i
	}

	var out []*synth.Artifact
	violations, written := 0, 0
	for j, name := range rn.artifacts {
		if ctx.Err() != nil {
			break
		}
		ar := report.ArtifactReport{Name: name, Guard: synth.GuardToken(name), Sources: []string{}}
		idx := provenance.NewIndex()
		for _, id := range rn.priority {
			i, ok := rank[id]
			if !ok {
				continue
			}
			art := ex.artifacts[i][j]
			if art == nil || ex.failures[i][j] != nil {
				continue
			}
			idx.Add(id, art.Symbols)
			ar.Sources = append(ar.Sources, id)
			ar.Locations = append(ar.Locations, report.Location{Source: id, Rel: art.Rel, Candidates: len(art.Candidates)})
		}

		if len(ar.Sources) == 0 {
			ar.Status = report.StatusUnresolved
			ar.Symbols = []provenance.Resolved{}
			rn.logger.Warn("Artifact found in no source", "artifact", name)
			rn.rep.Artifacts = append(rn.rep.Artifacts, ar)
			continue
		}

		ar.Symbols = idx.Resolve(rn.priority)
		a, err := synth.Synthesize(guards, name, ar.Sources, ar.Symbols)
		if err != nil {
			violations++
			ar.Status = report.StatusFailed
			rn.recordFailure(err, failure.SynthesisInvariantViolation, name)
			rn.rep.Artifacts = append(rn.rep.Artifacts, ar)
			continue
		}

		path, changed, err := rn.writer.Write(a)
		ar.Path = path
		switch {
		case err != nil:
			ar.Status = report.StatusFailed
			rn.recordFailure(err, failure.ReportWriteFailure, name)
		case changed:
			ar.Status = report.StatusWritten
			written++
			rn.logger.Info("Wrote artifact", "artifact", name, "path", path, "symbols", len(ar.Symbols), "contended", provenance.Contended(ar.Symbols))
		default:
			ar.Status = report.StatusUnchanged
			rn.logger.Debug("Artifact unchanged", "artifact", name, "path", path)
		}
		out = append(out, a)
		rn.rep.Artifacts = append(rn.rep.Artifacts, ar)
	}

	var err error
	if len(rn.artifacts) > 0 && violations == len(rn.artifacts) {
		err = failure.ErrAllArtifactsFailed
	}
	rn.rep.EndStage(h, map[string]float64{
		"requested":  float64(len(rn.artifacts)),
		"written":    float64(written),
		"violations": float64(violations),
	}, nil, err)
	return out, violations
}

func (rn *run) scoreStage(ex *extraction) {
	h := rn.rep.BeginStage("score")
	sets := make(map[string]compat.Set, len(ex.sources))
	for i, src := range ex.sources {
		if err := ex.corpusErr[i]; err != nil {
			rn.recordFailure(failure.New(failure.SourceUnavailable, src.ID, "", err), failure.SourceUnavailable, "")
			continue
		}
		sets[src.ID] = ex.corpus[i]
	}

	t := rn.rep.Thresholds
	rn.rep.Edges = compat.Edges(sets, t)
	if rn.rep.Edges == nil {
		rn.rep.Edges = []compat.Edge{}
	}
	rn.rep.Matrix = compat.NewMatrix(sets)
	rn.rep.Coverage = compat.CoverageOf(sets)

	for _, e := range rn.rep.Edges {
		rn.logger.Info("Low compatibility", "a", e.SourceA, "b", e.SourceB, "score", fmt.Sprintf("%.1f", e.Score), "severity", e.Severity)
	}
	tiers := compat.TierCounts(rn.rep.Coverage)
	rn.rep.EndStage(h, map[string]float64{
		"pairs":    float64(len(sets) * (len(sets) - 1) / 2),
		"edges":    float64(len(rn.rep.Edges)),
		"core":     float64(tiers[compat.Core]),
		"optional": float64(tiers[compat.Optional]),
		"specific": float64(tiers[compat.Specific]),
	}, nil, nil)
}

// reportStage persists the run. Every failure here is recorded and logged
// but never fails the run; artifacts already written stay valid.
func (rn *run) reportStage(ctx context.Context) {
	h := rn.rep.BeginStage("report")
	rn.rep.Finalize()

	if rn.store != nil {
		if id, err := rn.store.SaveRun(context.WithoutCancel(ctx), rn.rep); err != nil {
			rn.recordFailure(fmt.Errorf("run store: %w", err), failure.ReportWriteFailure, "")
		} else {
			rn.logger.Debug("Saved run", "id", id)
		}
	}

	reportPath := rn.cfg.Output.Report
	if len(rn.cfg.Output.Enrichers) > 0 {
		if _, err := report.WriteEnrichments(rn.rep, reportPath, rn.cfg.Output.Enrichers); err != nil {
			rn.recordFailure(err, failure.ReportWriteFailure, "")
		}
	}

	if text := rn.cfg.Output.Text; text != "" {
		rn.rep.Finalize()
		if err := writeText(text, report.RenderText(rn.rep)); err != nil {
			rn.recordFailure(err, failure.ReportWriteFailure, "")
		}
	}
	rn.rep.EndStage(h, nil, nil, nil)

	if reportPath != "" {
		if err := rn.rep.Save(reportPath); err != nil {
			rn.recordFailure(fmt.Errorf("failed to save report: %w", err), failure.ReportWriteFailure, "")
			rn.rep.Finalize()
		}
	} else {
		rn.rep.Finalize()
	}
}

// recordFailure adds err to the report, reusing an existing *failure.Failure
// when err already is one.
func (rn *run) recordFailure(err error, kind failure.Kind, artifact string) {
	f, ok := failure.As(err)
	if !ok {
		f = failure.New(kind, "", artifact, err)
	}
	rn.logger.Error("Failure", "kind", f.Kind, "source", f.SourceID, "artifact", f.Artifact, "error", f.Message)
	rn.rep.AddFailures(f)
}

func newRegistry(cfg *config.Config) (*registry.Registry, error) {
	trees := make([]registry.SourceTree, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		trees = append(trees, registry.SourceTree{ID: s.ID, Root: s.Root})
	}
	return registry.New(trees...)
}

func writeText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write text report: %w", err)
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
