package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"hdrsynth/internal/compat"
	"hdrsynth/internal/extractor"
	"hdrsynth/internal/failure"
	"hdrsynth/internal/provenance"
	"hdrsynth/internal/report"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ RunStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generated_at TEXT,
			mode TEXT,
			extractor TEXT,
			priority TEXT,
			summary JSON
		);`,
		`CREATE TABLE IF NOT EXISTS artifact_symbols (
			run_id INTEGER,
			artifact TEXT,
			name TEXT,
			kind TEXT,
			body TEXT,
			canonical_source TEXT,
			sources TEXT,
			contended INTEGER,
			divergent INTEGER,
			fingerprint TEXT,
			PRIMARY KEY (run_id, artifact, name)
		);`,
		`CREATE TABLE IF NOT EXISTS compat_edges (
			run_id INTEGER,
			source_a TEXT,
			source_b TEXT,
			score REAL,
			severity TEXT,
			PRIMARY KEY (run_id, source_a, source_b)
		);`,
		`CREATE TABLE IF NOT EXISTS failures (
			run_id INTEGER,
			kind TEXT,
			source TEXT,
			artifact TEXT,
			message TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_symbols_name ON artifact_symbols(name);`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, r *report.Report) (int64, error) {
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return 0, fmt.Errorf("failed to encode summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (generated_at, mode, extractor, priority, summary)
		VALUES (?, ?, ?, ?, ?)
	`, r.GeneratedAt, r.Mode, r.Extractor, strings.Join(r.Priority, ","), summary)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artifact_symbols (run_id, artifact, name, kind, body, canonical_source, sources, contended, divergent, fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer symStmt.Close()
	for _, a := range r.Artifacts {
		for _, sym := range a.Symbols {
			sources, err := json.Marshal(sym.Sources)
			if err != nil {
				return 0, fmt.Errorf("failed to encode sources of %s/%s: %w", a.Name, sym.Name, err)
			}
			if _, err := symStmt.ExecContext(ctx, runID, a.Name, sym.Name, sym.Kind.String(), sym.Body,
				sym.CanonicalSource, string(sources), sym.Contended, sym.Divergent, sym.Fingerprint); err != nil {
				return 0, fmt.Errorf("failed to save symbol %s/%s: %w", a.Name, sym.Name, err)
			}
		}
	}

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO compat_edges (run_id, source_a, source_b, score, severity) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer edgeStmt.Close()
	for _, e := range r.Edges {
		if _, err := edgeStmt.ExecContext(ctx, runID, e.SourceA, e.SourceB, e.Score, e.Severity.String()); err != nil {
			return 0, err
		}
	}

	failStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO failures (run_id, kind, source, artifact, message) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer failStmt.Close()
	for _, f := range r.Failures {
		if _, err := failStmt.ExecContext(ctx, runID, string(f.Kind), f.SourceID, f.Artifact, f.Message); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

func (s *SQLiteStore) LatestRunID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoRuns
	}
	return id, err
}

func (s *SQLiteStore) ArtifactSymbols(ctx context.Context, runID int64, artifact string) ([]provenance.Resolved, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind, body, canonical_source, sources, contended, divergent, fingerprint
		FROM artifact_symbols WHERE run_id = ? AND artifact = ?
	`, runID, artifact)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []provenance.Resolved
	for rows.Next() {
		r, err := scanResolved(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	provenance.SortResolved(out)
	return out, nil
}

func (s *SQLiteStore) SymbolHistory(ctx context.Context, name string) ([]SymbolVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.run_id, r.generated_at, s.artifact,
			s.name, s.kind, s.body, s.canonical_source, s.sources, s.contended, s.divergent, s.fingerprint
		FROM artifact_symbols s JOIN runs r ON r.id = s.run_id
		WHERE s.name = ?
		ORDER BY s.run_id, s.artifact
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SymbolVersion
	for rows.Next() {
		var v SymbolVersion
		var kind, sources string
		if err := rows.Scan(&v.RunID, &v.GeneratedAt, &v.Artifact,
			&v.Name, &kind, &v.Body, &v.CanonicalSource, &sources, &v.Contended, &v.Divergent, &v.Fingerprint); err != nil {
			return nil, err
		}
		if err := decodeResolved(&v.Resolved, kind, sources); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Edges(ctx context.Context, runID int64) ([]compat.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_a, source_b, score, severity FROM compat_edges
		WHERE run_id = ? ORDER BY source_a, source_b
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []compat.Edge
	for rows.Next() {
		var e compat.Edge
		var sev string
		if err := rows.Scan(&e.SourceA, &e.SourceB, &e.Score, &sev); err != nil {
			return nil, err
		}
		if err := e.Severity.UnmarshalText([]byte(sev)); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Failures(ctx context.Context, runID int64) ([]*failure.Failure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, source, artifact, message FROM failures WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*failure.Failure
	for rows.Next() {
		f := &failure.Failure{}
		var kind string
		if err := rows.Scan(&kind, &f.SourceID, &f.Artifact, &f.Message); err != nil {
			return nil, err
		}
		f.Kind = failure.Kind(kind)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	failure.Sort(out)
	return out, nil
}

func scanResolved(rows *sql.Rows) (provenance.Resolved, error) {
	var r provenance.Resolved
	var kind, sources string
	if err := rows.Scan(&r.Name, &kind, &r.Body, &r.CanonicalSource, &sources, &r.Contended, &r.Divergent, &r.Fingerprint); err != nil {
		return r, err
	}
	return r, decodeResolved(&r, kind, sources)
}

func decodeResolved(r *provenance.Resolved, kind, sources string) error {
	k, err := extractor.ParseKind(kind)
	if err != nil {
		return err
	}
	r.Kind = k
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return fmt.Errorf("failed to decode sources of %s: %w", r.Name, err)
	}
	return nil
}
