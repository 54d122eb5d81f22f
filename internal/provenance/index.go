// Package provenance aggregates per-source symbol sets for one artifact and
// resolves each name to a single canonical body by source priority.
package provenance

import (
	"sort"

	"hdrsynth/internal/extractor"
)

// Index maps symbol names to the sources that declare them. It is built after
// every extraction for an artifact has completed and is not safe for
// concurrent Add calls.
type Index struct {
	entries map[string]map[string]extractor.Symbol // name -> source -> symbol
}

func NewIndex() *Index {
	return &Index{entries: make(map[string]map[string]extractor.Symbol)}
}

// Add records the symbols one source declares. When a source declares a name
// under two kinds, the kind that comes first in section order is kept.
func (ix *Index) Add(sourceID string, syms []extractor.Symbol) {
	for _, s := range syms {
		bySource, ok := ix.entries[s.Name]
		if !ok {
			bySource = make(map[string]extractor.Symbol)
			ix.entries[s.Name] = bySource
		}
		if prev, seen := bySource[sourceID]; seen && prev.Kind <= s.Kind {
			continue
		}
		bySource[sourceID] = s
	}
}

// Len returns the number of distinct names.
func (ix *Index) Len() int { return len(ix.entries) }

// Names returns every indexed name, sorted.
func (ix *Index) Names() []string {
	out := make([]string, 0, len(ix.entries))
	for name := range ix.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Sources returns the IDs of every source declaring name, sorted.
func (ix *Index) Sources(name string) []string {
	bySource := ix.entries[name]
	out := make([]string, 0, len(bySource))
	for id := range bySource {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
