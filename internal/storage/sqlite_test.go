package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"hdrsynth/internal/compat"
	"hdrsynth/internal/extractor"
	"hdrsynth/internal/failure"
	"hdrsynth/internal/provenance"
	"hdrsynth/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport(body string) *report.Report {
	r := report.New("reconcile", "out")
	r.Extractor = "pattern"
	r.Priority = []string{"mach", "bsd"}
	r.Artifacts = []report.ArtifactReport{{
		Name:   "mach.h",
		Status: report.StatusWritten,
		Symbols: []provenance.Resolved{
			{Name: "task_t", Kind: extractor.TypeAlias, Body: "typedef int task_t;", CanonicalSource: "mach", Sources: []string{"mach"}, Fingerprint: "aa"},
			{Name: "FOO", Kind: extractor.Macro, Body: body, CanonicalSource: "mach", Sources: []string{"mach", "bsd"}, Contended: true, Divergent: true, Fingerprint: "bb"},
		},
	}}
	r.Edges = []compat.Edge{{SourceA: "bsd", SourceB: "mach", Score: 20, Severity: compat.High}}
	r.AddFailures(failure.New(failure.ArtifactNotFound, "bsd", "task.h", errors.New("task.h not found")))
	r.Finalize()
	return r
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	_, err = store.LatestRunID(ctx)
	assert.ErrorIs(t, err, ErrNoRuns)

	runID, err := store.SaveRun(ctx, testReport("#define FOO 1"))
	require.NoError(t, err)

	latest, err := store.LatestRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, runID, latest)

	syms, err := store.ArtifactSymbols(ctx, runID, "mach.h")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "FOO", syms[0].Name, "ordered by kind then name")
	assert.Equal(t, extractor.Macro, syms[0].Kind)
	assert.Equal(t, []string{"mach", "bsd"}, syms[0].Sources)
	assert.True(t, syms[0].Contended)
	assert.True(t, syms[0].Divergent)
	assert.False(t, syms[1].Contended)

	edges, err := store.Edges(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, []compat.Edge{{SourceA: "bsd", SourceB: "mach", Score: 20, Severity: compat.High}}, edges)

	fs, err := store.Failures(ctx, runID)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, failure.ArtifactNotFound, fs[0].Kind)
	assert.Equal(t, "bsd", fs[0].SourceID)
	assert.Equal(t, "task.h not found", fs[0].Message)

	missing, err := store.ArtifactSymbols(ctx, runID, "nope.h")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestSQLiteStore_SymbolHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first, err := store.SaveRun(ctx, testReport("#define FOO 1"))
	require.NoError(t, err)
	second, err := store.SaveRun(ctx, testReport("#define FOO 2"))
	require.NoError(t, err)
	assert.Greater(t, second, first)

	history, err := store.SymbolHistory(ctx, "FOO")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first, history[0].RunID)
	assert.Equal(t, "#define FOO 1", history[0].Body)
	assert.Equal(t, "#define FOO 2", history[1].Body)
	assert.Equal(t, "mach.h", history[1].Artifact)
	assert.NotEmpty(t, history[1].GeneratedAt)

	none, err := store.SymbolHistory(ctx, "BAR")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	runID, err := store.SaveRun(context.Background(), testReport("#define FOO 1"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	latest, err := store.LatestRunID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runID, latest)
}

func TestSQLiteStore_SummaryPersisted(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	r := testReport("#define FOO 1")
	runID, err := store.SaveRun(ctx, r)
	require.NoError(t, err)

	var raw string
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT summary FROM runs WHERE id = ?`, runID).Scan(&raw))
	var got report.Summary
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, r.Summary, got)

	require.NoError(t, store.Close())
	_, err = store.SaveRun(ctx, r)
	assert.Error(t, err)
}
