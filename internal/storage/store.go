package storage

import (
	"context"
	"errors"

	"hdrsynth/internal/compat"
	"hdrsynth/internal/failure"
	"hdrsynth/internal/provenance"
	"hdrsynth/internal/report"
)

var ErrNoRuns = errors.New("no runs recorded")

// RunStore persists finished runs for later inspection.
type RunStore interface {
	// SaveRun records a finalized report and returns the new run ID.
	SaveRun(ctx context.Context, r *report.Report) (int64, error)

	// LatestRunID returns the most recent run, or ErrNoRuns.
	LatestRunID(ctx context.Context) (int64, error)

	// ArtifactSymbols returns the resolved symbols of one artifact in a run.
	ArtifactSymbols(ctx context.Context, runID int64, artifact string) ([]provenance.Resolved, error)

	// SymbolHistory lists every recorded resolution of a symbol name, oldest first.
	SymbolHistory(ctx context.Context, name string) ([]SymbolVersion, error)

	Edges(ctx context.Context, runID int64) ([]compat.Edge, error)
	Failures(ctx context.Context, runID int64) ([]*failure.Failure, error)
	Close() error
}

// SymbolVersion is one recorded resolution of a symbol.
type SymbolVersion struct {
	RunID       int64  `json:"run_id"`
	GeneratedAt string `json:"generated_at"`
	Artifact    string `json:"artifact"`
	provenance.Resolved
}
