package compat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		a, b Set
		want float64
	}{
		{"partial overlap", NewSet("a", "b", "c"), NewSet("b", "c", "d"), 50},
		{"one side empty", NewSet("a"), NewSet(), 0},
		{"both empty", NewSet(), NewSet(), 0},
		{"equal", NewSet("x", "y"), NewSet("y", "x"), 100},
		{"disjoint", NewSet("x"), NewSet("y"), 0},
		{"subset", NewSet("a"), NewSet("a", "b", "c", "d"), 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.a, tt.b), 1e-9)
			assert.Equal(t, Score(tt.a, tt.b), Score(tt.b, tt.a), "symmetric")
		})
	}
	assert.Equal(t, 100.0, Score(NewSet("a"), NewSet("a")))
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds
	assert.Equal(t, High, th.Classify(0))
	assert.Equal(t, High, th.Classify(24.99))
	assert.Equal(t, Medium, th.Classify(25))
	assert.Equal(t, Medium, th.Classify(49.99))
	assert.Equal(t, None, th.Classify(50))
	assert.Equal(t, None, th.Classify(100))

	custom := Thresholds{High: 10, Medium: 90}
	assert.Equal(t, Medium, custom.Classify(50))
}

func TestEdges(t *testing.T) {
	t.Run("exactly fifty is not reported", func(t *testing.T) {
		edges := Edges(map[string]Set{
			"S1": NewSet("a", "b", "c"),
			"S2": NewSet("b", "c", "d"),
		}, DefaultThresholds)
		assert.Empty(t, edges)
	})

	t.Run("empty source is high", func(t *testing.T) {
		edges := Edges(map[string]Set{
			"S1": NewSet("a"),
			"S2": NewSet(),
		}, DefaultThresholds)
		require.Len(t, edges, 1)
		assert.Equal(t, Edge{SourceA: "S1", SourceB: "S2", Score: 0, Severity: High}, edges[0])
	})

	t.Run("canonical pairs", func(t *testing.T) {
		edges := Edges(map[string]Set{
			"zeta":  NewSet("q"),
			"alpha": NewSet("a"),
			"mid":   NewSet("m"),
		}, DefaultThresholds)
		require.Len(t, edges, 3)
		seen := map[[2]string]bool{}
		for _, e := range edges {
			assert.Less(t, e.SourceA, e.SourceB)
			key := [2]string{e.SourceA, e.SourceB}
			assert.False(t, seen[key], "duplicate pair")
			seen[key] = true
			assert.GreaterOrEqual(t, e.Score, 0.0)
			assert.LessOrEqual(t, e.Score, 100.0)
		}
		assert.Equal(t, "alpha", edges[0].SourceA)
		assert.Equal(t, "mid", edges[0].SourceB)
		assert.Equal(t, "zeta", edges[2].SourceB)
	})

	t.Run("single source has no pairs", func(t *testing.T) {
		assert.Empty(t, Edges(map[string]Set{"only": NewSet("a")}, DefaultThresholds))
	})
}

func TestMatrix(t *testing.T) {
	m := NewMatrix(map[string]Set{
		"b": NewSet("x", "y"),
		"a": NewSet("x"),
		"c": NewSet(),
	})
	assert.Equal(t, []string{"a", "b", "c"}, m.Sources)

	ab, ok := m.At("a", "b")
	require.True(t, ok)
	assert.InDelta(t, 50, ab, 1e-9)
	ba, _ := m.At("b", "a")
	assert.Equal(t, ab, ba)

	aa, _ := m.At("a", "a")
	assert.Equal(t, 100.0, aa)
	cc, _ := m.At("c", "c")
	assert.Equal(t, 0.0, cc)

	_, ok = m.At("a", "missing")
	assert.False(t, ok)
}

func TestCoverageOf(t *testing.T) {
	cs := CoverageOf(map[string]Set{
		"mach":  NewSet("msg_send", "task_create", "vm_map"),
		"bsd":   NewSet("msg_send", "fork"),
		"linux": NewSet("msg_send", "task_create"),
	})
	require.Len(t, cs, 4)
	assert.Equal(t, Coverage{Function: "fork", Sources: []string{"bsd"}, Tier: Specific}, cs[0])
	assert.Equal(t, Coverage{Function: "msg_send", Sources: []string{"bsd", "linux", "mach"}, Tier: Core}, cs[1])
	assert.Equal(t, Optional, cs[2].Tier)
	assert.Equal(t, "vm_map", cs[3].Function)

	counts := TierCounts(cs)
	assert.Equal(t, map[Tier]int{Core: 1, Optional: 1, Specific: 2}, counts)
}

func TestSeverity_JSON(t *testing.T) {
	b, err := json.Marshal(Edge{SourceA: "a", SourceB: "b", Severity: Medium})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"severity":"medium"`)

	var e Edge
	require.NoError(t, json.Unmarshal(b, &e))
	assert.Equal(t, Medium, e.Severity)
}
