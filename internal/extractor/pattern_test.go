package extractor

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byName(syms []Symbol) map[string]Symbol {
	out := make(map[string]Symbol, len(syms))
	for _, s := range syms {
		out[s.Name] = s
	}
	return out
}

func TestPatternExtractor_Fixture(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "sample.h"))
	require.NoError(t, err)

	syms, err := (&PatternExtractor{}).Extract(src)
	require.NoError(t, err)
	got := byName(syms)

	t.Run("Overall Count", func(t *testing.T) {
		assert.Len(t, syms, 10)
	})

	t.Run("Macros", func(t *testing.T) {
		m, ok := got["SAMPLE_VERSION"]
		require.True(t, ok)
		assert.Equal(t, Macro, m.Kind)
		assert.Equal(t, "#define SAMPLE_VERSION 3", m.Definition)
		assert.Equal(t, 7, m.Line)

		m = got["SAMPLE_LONG"]
		assert.Equal(t, "#define SAMPLE_LONG \\\n\t(1 << 4)", m.Definition)

		assert.Equal(t, Macro, got["SAMPLE_MAX"].Kind)
		assert.NotContains(t, got, "_SAMPLE_H_", "include guards have no body")
		assert.NotContains(t, got, "SAMPLE_EMPTY")
	})

	t.Run("Type Aliases", func(t *testing.T) {
		for _, name := range []string{"sample_id_t", "sample_point_t", "sample_cb_t", "sample_name_t"} {
			s, ok := got[name]
			require.True(t, ok, name)
			assert.Equal(t, TypeAlias, s.Kind, name)
		}
		assert.NotContains(t, got["sample_point_t"].Definition, "inside a comment")
		assert.Equal(t, 16, got["sample_point_t"].Line)
		assert.Equal(t, "typedef int (*sample_cb_t)(void *ctx, int code);", got["sample_cb_t"].Definition)
	})

	t.Run("Functions", func(t *testing.T) {
		for _, name := range []string{"sample_open", "sample_alloc", "sample_close"} {
			s, ok := got[name]
			require.True(t, ok, name)
			assert.Equal(t, FunctionDecl, s.Kind, name)
		}
		assert.Equal(t, "extern void *sample_alloc(uint32_t size);", got["sample_alloc"].Definition)
		assert.NotContains(t, got, "sample_inline", "function definitions are skipped")
	})
}

func TestPatternExtractor_Statements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []string
	}{
		{
			name: "macro invocation is not a declaration",
			src:  "FOO(x);\nint real(void);\n",
			want: []string{"real"},
		},
		{
			name: "variables are ignored",
			src:  "int counter = 0;\nint total;\nextern int flag;\n",
			want: nil,
		},
		{
			name: "multi-line prototype",
			src:  "int\nbaz(int a,\n    int b);\n",
			want: []string{"baz"},
		},
		{
			name: "function body contents are skipped",
			src:  "int qux(void) {\n\tint inner(void);\n\treturn 1;\n}\nvoid after(void);\n",
			want: []string{"after"},
		},
		{
			name: "literals do not open blocks",
			src:  "#define OPEN \"{\"\nvoid brace(const char *s /* } */);\nchar semi(char c);\n",
			want: []string{"OPEN", "brace", "semi"},
		},
		{
			name: "declaration markers",
			src:  "__BEGIN_DECLS\nint marked(void);\n__END_DECLS\n",
			want: []string{"marked"},
		},
		{
			name: "struct members are not top level",
			src:  "struct s {\n\tint (*fn)(void);\n};\ntypedef enum { RED, GREEN } color_t;\n",
			want: []string{"color_t"},
		},
		{
			name: "comment spanning lines",
			src:  "/* int hidden(void);\n#define HIDDEN 1\n*/\nint shown(void);\n",
			want: []string{"shown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syms, err := (&PatternExtractor{}).Extract([]byte(tt.src))
			require.NoError(t, err)
			var names []string
			for _, s := range syms {
				names = append(names, s.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestPatternExtractor_MacroWithOpenComment(t *testing.T) {
	src := "#define X 1 /* x\n  y */\n#define Y 2\n#define Z 3 /* closed */\n"
	syms, err := (&PatternExtractor{}).Extract([]byte(src))
	require.NoError(t, err)

	got := byName(syms)
	require.Len(t, got, 3)
	assert.Equal(t, "#define X 1", got["X"].Definition)
	assert.Equal(t, "#define Y 2", got["Y"].Definition)
	assert.Equal(t, 3, got["Y"].Line)
	assert.Equal(t, "#define Z 3 /* closed */", got["Z"].Definition)
}

func TestPatternExtractor_FirstOccurrenceWins(t *testing.T) {
	src := "#define LIMIT 1\n#define LIMIT 2\nint f(int);\nint f(long);\n"
	syms, err := (&PatternExtractor{}).Extract([]byte(src))
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "#define LIMIT 1", syms[0].Definition)
	assert.Equal(t, "int f(int);", syms[1].Definition)
}

func TestPatternExtractor_MarkerLineNumber(t *testing.T) {
	syms, err := (&PatternExtractor{}).Extract([]byte("__BEGIN_DECLS\nint marked(void);\n"))
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "int marked(void);", syms[0].Definition)
	assert.Equal(t, 2, syms[0].Line)
}

func TestTypedefName(t *testing.T) {
	tests := map[string]string{
		"typedef int myint;":                  "myint",
		"typedef unsigned long size_t;":       "size_t",
		"typedef char buf_t[16][2];":          "buf_t",
		"typedef void (*handler_t)(int sig);": "handler_t",
		"typedef int fn_t(int);":              "fn_t",
		"typedef struct { int a; } anon_t;":   "anon_t",
		"typedef;":                            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, typedefName(in), in)
	}
}

func sortedKeys(syms []Symbol) []string {
	var out []string
	for _, s := range syms {
		out = append(out, s.Kind.String()+":"+s.Name)
	}
	sort.Strings(out)
	return out
}
