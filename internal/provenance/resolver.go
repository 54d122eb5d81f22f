package provenance

import (
	"sort"

	"hdrsynth/internal/extractor"
)

// Resolved is the canonical form of one symbol.
type Resolved struct {
	Name            string         `json:"name"`
	Kind            extractor.Kind `json:"kind"`
	Body            string         `json:"body"`
	CanonicalSource string         `json:"canonical_source"`
	Sources         []string       `json:"sources"` // priority order
	Contended       bool           `json:"contended"`
	Divergent       bool           `json:"divergent"`
	Fingerprint     string         `json:"fingerprint"`
}

// Resolve picks one body per name. priority must list every source that was
// added; IDs missing from it rank after it in lexical order. The body of the
// first source in priority order that declares a name wins; the others are
// discarded. Results are ordered by (kind, name).
func (ix *Index) Resolve(priority []string) []Resolved {
	rank := make(map[string]int, len(priority))
	for i, id := range priority {
		if _, dup := rank[id]; !dup {
			rank[id] = i
		}
	}
	less := func(a, b string) bool {
		ra, oka := rank[a]
		rb, okb := rank[b]
		switch {
		case oka && okb:
			return ra < rb
		case oka != okb:
			return oka
		}
		return a < b
	}

	out := make([]Resolved, 0, len(ix.entries))
	for _, name := range ix.Names() {
		bySource := ix.entries[name]
		sources := ix.Sources(name)
		sort.SliceStable(sources, func(i, j int) bool { return less(sources[i], sources[j]) })

		canonical := bySource[sources[0]]
		fp := extractor.Fingerprint(canonical)
		r := Resolved{
			Name:            name,
			Kind:            canonical.Kind,
			Body:            canonical.Definition,
			CanonicalSource: sources[0],
			Sources:         sources,
			Contended:       len(sources) > 1,
			Fingerprint:     fp,
		}
		for _, id := range sources[1:] {
			if extractor.Fingerprint(bySource[id]) != fp {
				r.Divergent = true
				break
			}
		}
		out = append(out, r)
	}
	SortResolved(out)
	return out
}

// SortResolved orders symbols by kind then name.
func SortResolved(rs []Resolved) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Kind != rs[j].Kind {
			return rs[i].Kind < rs[j].Kind
		}
		return rs[i].Name < rs[j].Name
	})
}

// Contended counts resolved symbols declared by more than one source.
func Contended(rs []Resolved) int {
	n := 0
	for _, r := range rs {
		if r.Contended {
			n++
		}
	}
	return n
}
