// Package report collects the outcome of a reconciliation run and renders it
// as JSON, as styled text, and through optional graph enrichers.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hdrsynth/internal/compat"
	"hdrsynth/internal/failure"
	"hdrsynth/internal/provenance"
)

// Artifact statuses.
const (
	StatusWritten    = "written"
	StatusUnchanged  = "unchanged"
	StatusUnresolved = "unresolved" // found in no source
	StatusFailed     = "failed"
)

type StageMetric struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartedAt  string             `json:"started_at"`
	FinishedAt string             `json:"finished_at"`
	DurationMS int64              `json:"duration_ms"`
	Counters   map[string]float64 `json:"counters,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type SourceStatus struct {
	ID       string `json:"id"`
	Root     string `json:"root"`
	Readable bool   `json:"readable"`
	Revision string `json:"revision,omitempty"` // git checkout, when the root is a work tree
}

// Location is where one source provided an artifact.
type Location struct {
	Source     string `json:"source"`
	Rel        string `json:"rel"`
	Candidates int    `json:"candidates"`
}

type ArtifactReport struct {
	Name      string                `json:"name"`
	Guard     string                `json:"guard,omitempty"`
	Path      string                `json:"path,omitempty"`
	Status    string                `json:"status"`
	Sources   []string              `json:"sources"`
	Locations []Location            `json:"locations,omitempty"`
	Symbols   []provenance.Resolved `json:"symbols"`
}

// Contended counts symbols with more than one source.
func (a ArtifactReport) Contended() int { return provenance.Contended(a.Symbols) }

func (a ArtifactReport) Divergent() int {
	n := 0
	for _, s := range a.Symbols {
		if s.Divergent {
			n++
		}
	}
	return n
}

type Summary struct {
	SourcesRegistered  int            `json:"sources_registered"`
	SourcesScanned     int            `json:"sources_scanned"`
	ArtifactsRequested int            `json:"artifacts_requested"`
	ArtifactsResolved  int            `json:"artifacts_resolved"`
	ContendedSymbols   int            `json:"contended_symbols"`
	DivergentSymbols   int            `json:"divergent_symbols"`
	Failures           int            `json:"failures"`
	FailuresByKind     map[string]int `json:"failures_by_kind"`
	CoverageTiers      map[string]int `json:"coverage_tiers"`
	StageCount         int            `json:"stage_count"`
	FailedStages       int            `json:"failed_stages"`
}

type Report struct {
	Version     string             `json:"version"`
	Mode        string             `json:"mode"`
	GeneratedAt string             `json:"generated_at"`
	OutputDir   string             `json:"output_dir"`
	Extractor   string             `json:"extractor"`
	Priority    []string           `json:"priority"`
	Thresholds  compat.Thresholds  `json:"thresholds"`
	Sources     []SourceStatus     `json:"sources"`
	Artifacts   []ArtifactReport   `json:"artifacts"`
	Edges       []compat.Edge      `json:"edges"`
	Matrix      compat.Matrix      `json:"matrix"`
	Coverage    []compat.Coverage  `json:"coverage,omitempty"`
	Failures    []*failure.Failure `json:"failures"`
	Enrichments []string           `json:"enrichments,omitempty"`
	Stages      []StageMetric      `json:"stages"`
	Summary     Summary            `json:"summary"`
}

type StageHandle struct {
	name    string
	started time.Time
}

func New(mode, outputDir string) *Report {
	return &Report{
		Version:     "v1",
		Mode:        mode,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		OutputDir:   outputDir,
		Sources:     []SourceStatus{},
		Artifacts:   []ArtifactReport{},
		Edges:       []compat.Edge{},
		Failures:    []*failure.Failure{},
		Stages:      []StageMetric{},
	}
}

func (r *Report) BeginStage(name string) StageHandle {
	return StageHandle{name: strings.TrimSpace(name), started: time.Now().UTC()}
}

func (r *Report) EndStage(h StageHandle, counters map[string]float64, notes []string, err error) {
	if r == nil || strings.TrimSpace(h.name) == "" {
		return
	}
	finished := time.Now().UTC()
	m := StageMetric{
		Name:       h.name,
		Status:     "ok",
		StartedAt:  h.started.Format(time.RFC3339Nano),
		FinishedAt: finished.Format(time.RFC3339Nano),
		DurationMS: finished.Sub(h.started).Milliseconds(),
		Counters:   cleanCounters(counters),
		Notes:      cleanNotes(notes),
	}
	if err != nil {
		m.Error = err.Error()
		m.Status = "error"
	}
	r.Stages = append(r.Stages, m)
}

func (r *Report) AddFailures(fs ...*failure.Failure) {
	if r == nil {
		return
	}
	for _, f := range fs {
		if f != nil {
			r.Failures = append(r.Failures, f)
		}
	}
}

// Artifact returns the report entry for name.
func (r *Report) Artifact(name string) (ArtifactReport, bool) {
	for _, a := range r.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return ArtifactReport{}, false
}

// Finalize sorts failures and recomputes the summary.
func (r *Report) Finalize() {
	if r == nil {
		return
	}
	failure.Sort(r.Failures)
	sort.SliceStable(r.Artifacts, func(i, j int) bool { return r.Artifacts[i].Name < r.Artifacts[j].Name })

	s := Summary{
		SourcesRegistered:  len(r.Sources),
		ArtifactsRequested: len(r.Artifacts),
		Failures:           len(r.Failures),
		FailuresByKind:     map[string]int{},
		CoverageTiers:      map[string]int{},
		StageCount:         len(r.Stages),
	}
	for _, src := range r.Sources {
		if src.Readable {
			s.SourcesScanned++
		}
	}
	for _, a := range r.Artifacts {
		if a.Status == StatusWritten || a.Status == StatusUnchanged {
			s.ArtifactsResolved++
		}
		s.ContendedSymbols += a.Contended()
		s.DivergentSymbols += a.Divergent()
	}
	for k, n := range failure.Count(r.Failures) {
		s.FailuresByKind[string(k)] = n
	}
	if len(r.Coverage) > 0 {
		for tier, n := range compat.TierCounts(r.Coverage) {
			s.CoverageTiers[string(tier)] = n
		}
	}
	for _, st := range r.Stages {
		if st.Status != "ok" {
			s.FailedStages++
		}
	}
	r.Summary = s
}

// Save finalizes the report and writes it as indented JSON.
func (r *Report) Save(path string) error {
	if r == nil {
		return nil
	}
	r.Finalize()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0644)
}

// Load reads a report written by Save.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func cleanCounters(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		out[key] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cleanNotes(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
