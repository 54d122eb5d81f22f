package compat

import "sort"

type Tier string

const (
	Core     Tier = "core"     // three or more sources
	Optional Tier = "optional" // exactly two
	Specific Tier = "specific" // one
)

func tierFor(n int) Tier {
	switch {
	case n >= 3:
		return Core
	case n == 2:
		return Optional
	default:
		return Specific
	}
}

// Coverage records which sources export a function.
type Coverage struct {
	Function string   `json:"function"`
	Sources  []string `json:"sources"`
	Tier     Tier     `json:"tier"`
}

// CoverageOf classifies every function exported by any source, sorted by
// function name.
func CoverageOf(sets map[string]Set) []Coverage {
	bySource := make(map[string][]string)
	for _, id := range sortedIDs(sets) {
		for fn := range sets[id] {
			bySource[fn] = append(bySource[fn], id)
		}
	}
	out := make([]Coverage, 0, len(bySource))
	for fn, ids := range bySource {
		out = append(out, Coverage{Function: fn, Sources: ids, Tier: tierFor(len(ids))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Function < out[j].Function })
	return out
}

// TierCounts tallies coverage entries per tier.
func TierCounts(cs []Coverage) map[Tier]int {
	out := map[Tier]int{Core: 0, Optional: 0, Specific: 0}
	for _, c := range cs {
		out[c.Tier]++
	}
	return out
}
