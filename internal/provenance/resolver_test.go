package provenance

import (
	"testing"

	"hdrsynth/internal/extractor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func macro(name, body string) extractor.Symbol {
	return extractor.Symbol{Name: name, Kind: extractor.Macro, Definition: "#define " + name + " " + body}
}

func find(t *testing.T, rs []Resolved, name string) Resolved {
	t.Helper()
	for _, r := range rs {
		if r.Name == name {
			return r
		}
	}
	require.Failf(t, "symbol not resolved", "%s", name)
	return Resolved{}
}

func TestResolve_MacroUnion(t *testing.T) {
	ix := NewIndex()
	ix.Add("S1", []extractor.Symbol{macro("FOO", "1"), macro("BAR", "2")})
	ix.Add("S2", []extractor.Symbol{macro("FOO", "1"), macro("BAZ", "3")})

	rs := ix.Resolve([]string{"S1", "S2"})
	require.Len(t, rs, 3)
	assert.Equal(t, []string{"BAR", "BAZ", "FOO"}, []string{rs[0].Name, rs[1].Name, rs[2].Name})

	foo := find(t, rs, "FOO")
	assert.Equal(t, "#define FOO 1", foo.Body)
	assert.Equal(t, []string{"S1", "S2"}, foo.Sources)
	assert.True(t, foo.Contended)
	assert.False(t, foo.Divergent)

	bar := find(t, rs, "BAR")
	assert.Equal(t, []string{"S1"}, bar.Sources)
	assert.False(t, bar.Contended)

	baz := find(t, rs, "BAZ")
	assert.Equal(t, "#define BAZ 3", baz.Body)
	assert.Equal(t, "S2", baz.CanonicalSource)

	assert.Equal(t, 1, Contended(rs))
}

func TestResolve_PriorityPicksBody(t *testing.T) {
	ix := NewIndex()
	ix.Add("S1", []extractor.Symbol{macro("LIMIT", "10")})
	ix.Add("S2", []extractor.Symbol{macro("LIMIT", "20")})
	ix.Add("S3", []extractor.Symbol{macro("LIMIT", "30")})

	t.Run("registration order", func(t *testing.T) {
		r := ix.Resolve([]string{"S1", "S2", "S3"})[0]
		assert.Equal(t, "#define LIMIT 10", r.Body)
		assert.True(t, r.Divergent)
	})

	t.Run("explicit order", func(t *testing.T) {
		r := ix.Resolve([]string{"S3", "S1", "S2"})[0]
		assert.Equal(t, "#define LIMIT 30", r.Body)
		assert.Equal(t, "S3", r.CanonicalSource)
		assert.Equal(t, []string{"S3", "S1", "S2"}, r.Sources)
	})

	t.Run("unranked sources trail", func(t *testing.T) {
		r := ix.Resolve([]string{"S2"})[0]
		assert.Equal(t, []string{"S2", "S1", "S3"}, r.Sources)
	})
}

func TestResolve_KindOrdering(t *testing.T) {
	ix := NewIndex()
	ix.Add("a", []extractor.Symbol{
		{Name: "open", Kind: extractor.FunctionDecl, Definition: "int open(const char *);"},
		{Name: "mode_t", Kind: extractor.TypeAlias, Definition: "typedef int mode_t;"},
		{Name: "O_RDONLY", Kind: extractor.Macro, Definition: "#define O_RDONLY 0"},
		{Name: "ALPHA", Kind: extractor.Macro, Definition: "#define ALPHA 1"},
	})

	rs := ix.Resolve([]string{"a"})
	var got []string
	for _, r := range rs {
		got = append(got, r.Kind.String()+":"+r.Name)
	}
	assert.Equal(t, []string{"macro:ALPHA", "macro:O_RDONLY", "typedef:mode_t", "function:open"}, got)
}

func TestResolve_NameUnderTwoKinds(t *testing.T) {
	ix := NewIndex()
	ix.Add("libc", []extractor.Symbol{
		{Name: "getc", Kind: extractor.FunctionDecl, Definition: "int getc(FILE *);"},
		{Name: "getc", Kind: extractor.Macro, Definition: "#define getc(f) _getc(f)"},
	})
	ix.Add("bsd", []extractor.Symbol{
		{Name: "getc", Kind: extractor.FunctionDecl, Definition: "int getc(FILE *);"},
	})

	rs := ix.Resolve([]string{"bsd", "libc"})
	require.Len(t, rs, 1)
	assert.Equal(t, extractor.FunctionDecl, rs[0].Kind)
	assert.Equal(t, []string{"bsd", "libc"}, rs[0].Sources)
	assert.True(t, rs[0].Divergent)

	rs = ix.Resolve([]string{"libc", "bsd"})
	assert.Equal(t, extractor.Macro, rs[0].Kind)
}

func TestResolve_WhitespaceIsNotDivergence(t *testing.T) {
	ix := NewIndex()
	ix.Add("a", []extractor.Symbol{{Name: "f", Kind: extractor.FunctionDecl, Definition: "int f(int a);"}})
	ix.Add("b", []extractor.Symbol{{Name: "f", Kind: extractor.FunctionDecl, Definition: "int  f(int a);"}})

	r := ix.Resolve([]string{"a", "b"})[0]
	assert.True(t, r.Contended)
	assert.False(t, r.Divergent)
	assert.Equal(t, "int f(int a);", r.Body)
}

func TestIndex_Sources(t *testing.T) {
	ix := NewIndex()
	ix.Add("b", []extractor.Symbol{macro("X", "1")})
	ix.Add("a", []extractor.Symbol{macro("X", "1"), macro("Y", "2")})

	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, []string{"X", "Y"}, ix.Names())
	assert.Equal(t, []string{"a", "b"}, ix.Sources("X"))
	assert.Empty(t, ix.Sources("Z"))
	assert.Empty(t, NewIndex().Resolve(nil))
}
