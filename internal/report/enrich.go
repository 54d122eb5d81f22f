package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"hdrsynth/internal/compat"
)

// Enricher renders an extra, purely presentational view of a report.
type Enricher interface {
	Name() string
	Ext() string
	Render(r *Report) ([]byte, error)
}

func NewEnricher(name string) (Enricher, error) {
	switch name {
	case "mermaid":
		return &MermaidEnricher{}, nil
	case "dot":
		return &DotEnricher{}, nil
	default:
		return nil, fmt.Errorf("unsupported enricher: %s", name)
	}
}

// WriteEnrichments writes one file per enricher next to reportPath, named
// after the report with the enricher's extension, and records the paths in r.
func WriteEnrichments(r *Report, reportPath string, names []string) ([]string, error) {
	base := strings.TrimSuffix(reportPath, filepath.Ext(reportPath))
	var paths []string
	for _, name := range names {
		e, err := NewEnricher(name)
		if err != nil {
			return paths, err
		}
		data, err := e.Render(r)
		if err != nil {
			return paths, fmt.Errorf("%s enricher: %w", name, err)
		}
		path := base + e.Ext()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return paths, err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return paths, fmt.Errorf("%s enricher: %w", name, err)
		}
		paths = append(paths, path)
	}
	r.Enrichments = append(r.Enrichments, paths...)
	return paths, nil
}

// MermaidEnricher draws sources as nodes and low-compatibility pairs as
// labelled links.
type MermaidEnricher struct{}

func (m *MermaidEnricher) Name() string { return "mermaid" }
func (m *MermaidEnricher) Ext() string  { return ".mmd" }

func (m *MermaidEnricher) Render(r *Report) ([]byte, error) {
	ids := graphIDs(r)
	var sb strings.Builder
	sb.WriteString("graph LR\n")
	for _, src := range r.Sources {
		if !src.Readable {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s[%q]\n", ids[src.ID], src.ID))
	}
	for _, e := range r.Edges {
		arrow := "-.-"
		if e.Severity == compat.High {
			arrow = "---"
		}
		sb.WriteString(fmt.Sprintf("    %s %s|\"%.1f %s\"| %s\n",
			ids[e.SourceA], arrow, e.Score, e.Severity, ids[e.SourceB]))
	}
	return []byte(sb.String()), nil
}

// DotEnricher emits the same graph in Graphviz DOT text. Nothing is invoked;
// rendering the file is left to the caller.
type DotEnricher struct{}

func (d *DotEnricher) Name() string { return "dot" }
func (d *DotEnricher) Ext() string  { return ".dot" }

func (d *DotEnricher) Render(r *Report) ([]byte, error) {
	ids := graphIDs(r)
	var sb strings.Builder
	sb.WriteString("graph compatibility {\n")
	sb.WriteString("    node [shape=box];\n")
	for _, src := range r.Sources {
		if !src.Readable {
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s [label=%q];\n", ids[src.ID], src.ID))
	}
	for _, e := range r.Edges {
		color := "orange"
		if e.Severity == compat.High {
			color = "red"
		}
		sb.WriteString(fmt.Sprintf("    %s -- %s [label=\"%.1f\", color=%s];\n",
			ids[e.SourceA], ids[e.SourceB], e.Score, color))
	}
	sb.WriteString("}\n")
	return []byte(sb.String()), nil
}

// graphIDs assigns every source named in r a distinct node ID. IDs that
// sanitize alike are numbered in sorted order of the original names.
func graphIDs(r *Report) map[string]string {
	var names []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			names = append(names, id)
		}
	}
	for _, src := range r.Sources {
		add(src.ID)
	}
	for _, e := range r.Edges {
		add(e.SourceA)
		add(e.SourceB)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	taken := make(map[string]bool, len(names))
	for _, name := range names {
		base := sanitizeGraphID(name)
		id := base
		for n := 2; taken[id]; n++ {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		taken[id] = true
		out[name] = id
	}
	return out
}

var graphIDRe = regexp.MustCompile(`[^a-z0-9_]`)

func sanitizeGraphID(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "node"
	}
	v = graphIDRe.ReplaceAllString(strings.ReplaceAll(v, "-", "_"), "_")
	if v[0] >= '0' && v[0] <= '9' {
		v = "n_" + v
	}
	return v
}
