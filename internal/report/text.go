package report

import (
	"fmt"
	"strings"

	"hdrsynth/internal/compat"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	highStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	mediumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

// NewTable returns a bordered table in the report's style.
func NewTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...)
}

// RenderText is the human-readable form of r.
func RenderText(r *Report) string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Reconciliation summary"))
	sb.WriteString("\n")
	s := r.Summary
	for _, kv := range [][2]string{
		{"Sources scanned", fmt.Sprintf("%d of %d", s.SourcesScanned, s.SourcesRegistered)},
		{"Artifacts resolved", fmt.Sprintf("%d of %d", s.ArtifactsResolved, s.ArtifactsRequested)},
		{"Contended symbols", fmt.Sprintf("%d (%d divergent)", s.ContendedSymbols, s.DivergentSymbols)},
		{"Failures", fmt.Sprintf("%d", s.Failures)},
		{"Priority", strings.Join(r.Priority, ", ")},
	} {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("%-20s", kv[0])))
		sb.WriteString(valueStyle.Render(kv[1]))
		sb.WriteString("\n")
	}

	if len(r.Sources) > 0 {
		sb.WriteString(headerStyle.Render("Sources"))
		sb.WriteString("\n")
		t := NewTable("Source", "Root", "Readable", "Revision")
		for _, src := range r.Sources {
			t.Row(src.ID, src.Root, fmt.Sprintf("%t", src.Readable), src.Revision)
		}
		sb.WriteString(t.Render())
		sb.WriteString("\n")
	}

	if len(r.Artifacts) > 0 {
		sb.WriteString(headerStyle.Render("Artifacts"))
		sb.WriteString("\n")
		t := NewTable("Artifact", "Status", "Sources", "Symbols", "Contended")
		for _, a := range r.Artifacts {
			t.Row(a.Name, a.Status, strings.Join(a.Sources, ", "),
				fmt.Sprintf("%d", len(a.Symbols)), fmt.Sprintf("%d", a.Contended()))
		}
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}

	for _, a := range r.Artifacts {
		if len(a.Symbols) == 0 {
			continue
		}
		sb.WriteString(headerStyle.Render("Provenance: " + a.Name))
		sb.WriteString("\n")
		t := NewTable("Symbol", "Kind", "Canonical", "Sources", "Notes")
		for _, sym := range a.Symbols {
			var notes []string
			if sym.Contended {
				notes = append(notes, "contended")
			}
			if sym.Divergent {
				notes = append(notes, "divergent")
			}
			t.Row(sym.Name, sym.Kind.String(), sym.CanonicalSource, strings.Join(sym.Sources, ", "), strings.Join(notes, ", "))
		}
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}

	sb.WriteString(headerStyle.Render("Compatibility"))
	sb.WriteString("\n")
	if len(r.Edges) == 0 {
		sb.WriteString(valueStyle.Render(fmt.Sprintf("No source pair scored below %.0f.", r.Thresholds.Medium)))
		sb.WriteString("\n")
	} else {
		t := NewTable("Source A", "Source B", "Score", "Severity")
		for _, e := range r.Edges {
			sev := e.Severity.String()
			if e.Severity == compat.High {
				sev = highStyle.Render(sev)
			} else {
				sev = mediumStyle.Render(sev)
			}
			t.Row(e.SourceA, e.SourceB, fmt.Sprintf("%.1f", e.Score), sev)
		}
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}
	if len(r.Matrix.Sources) > 1 {
		sb.WriteString(headerStyle.Render("Score matrix"))
		sb.WriteString("\n")
		sb.WriteString(renderMatrix(r.Matrix))
		sb.WriteString("\n")
	}
	if len(s.CoverageTiers) > 0 {
		sb.WriteString(labelStyle.Render("Coverage tiers      "))
		sb.WriteString(valueStyle.Render(fmt.Sprintf("core %d, optional %d, specific %d",
			s.CoverageTiers["core"], s.CoverageTiers["optional"], s.CoverageTiers["specific"])))
		sb.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		sb.WriteString(headerStyle.Render("Failures"))
		sb.WriteString("\n")
		t := NewTable("Kind", "Source", "Artifact", "Message")
		for _, f := range r.Failures {
			t.Row(string(f.Kind), f.SourceID, f.Artifact, f.Message)
		}
		sb.WriteString(t.String())
		sb.WriteString("\n")
	}

	return sb.String()
}

func renderMatrix(m compat.Matrix) string {
	t := NewTable(append([]string{""}, m.Sources...)...)
	for _, a := range m.Sources {
		row := []string{a}
		for _, b := range m.Sources {
			score, _ := m.At(a, b)
			row = append(row, fmt.Sprintf("%.1f", score))
		}
		t.Row(row...)
	}
	return t.String()
}
