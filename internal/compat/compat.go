// Package compat scores how closely the exported function sets of two source
// trees agree.
package compat

import (
	"fmt"
	"sort"
)

// Set is a set of function names.
type Set map[string]bool

// NewSet builds a set from names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type Severity int

const (
	None Severity = iota
	Medium
	High
)

func (s Severity) String() string {
	switch s {
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "none"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "none", "":
		*s = None
	case "medium":
		*s = Medium
	case "high":
		*s = High
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Thresholds are exclusive upper bounds: a score below High is High
// severity, below Medium is Medium severity.
type Thresholds struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

var DefaultThresholds = Thresholds{High: 25, Medium: 50}

func (t Thresholds) Classify(score float64) Severity {
	switch {
	case score < t.High:
		return High
	case score < t.Medium:
		return Medium
	default:
		return None
	}
}

// Score is the Jaccard similarity of a and b as a percentage. Two empty sets
// score 0.
func Score(a, b Set) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for n := range small {
		if large[n] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union) * 100
}

// Edge is a source pair whose score fell below the Medium threshold.
// SourceA always sorts before SourceB.
type Edge struct {
	SourceA  string   `json:"source_a"`
	SourceB  string   `json:"source_b"`
	Score    float64  `json:"score"`
	Severity Severity `json:"severity"`
}

// Edges visits every unordered pair of sources once and returns the pairs
// with a non-None severity, sorted by (SourceA, SourceB).
func Edges(sets map[string]Set, t Thresholds) []Edge {
	ids := sortedIDs(sets)
	var out []Edge
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			score := Score(sets[ids[i]], sets[ids[j]])
			sev := t.Classify(score)
			if sev == None {
				continue
			}
			out = append(out, Edge{SourceA: ids[i], SourceB: ids[j], Score: score, Severity: sev})
		}
	}
	return out
}

// Matrix is the full symmetric score table.
type Matrix struct {
	Sources []string    `json:"sources"`
	Scores  [][]float64 `json:"scores"`
}

func NewMatrix(sets map[string]Set) Matrix {
	ids := sortedIDs(sets)
	m := Matrix{Sources: ids, Scores: make([][]float64, len(ids))}
	for i := range ids {
		m.Scores[i] = make([]float64, len(ids))
	}
	for i := range ids {
		for j := i; j < len(ids); j++ {
			s := Score(sets[ids[i]], sets[ids[j]])
			m.Scores[i][j], m.Scores[j][i] = s, s
		}
	}
	return m
}

// At returns the score of the pair (a, b) and whether both are present.
func (m Matrix) At(a, b string) (float64, bool) {
	i, j := index(m.Sources, a), index(m.Sources, b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Scores[i][j], true
}

func index(ids []string, id string) int {
	k := sort.SearchStrings(ids, id)
	if k < len(ids) && ids[k] == id {
		return k
	}
	return -1
}

func sortedIDs(sets map[string]Set) []string {
	ids := make([]string, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
