package crawler

import (
	"os"
	"path/filepath"
	"testing"

	"hdrsynth/internal/failure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func TestCrawler_FindArtifact(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"kernel/mach/mach.h":  "b",
		"include/mach/mach.h": "a",
		"include/mach.h.orig": "x",
		"vendor/mach.h":       "ignored",
		"z/Mach.h":            "case differs",
	})
	c := NewCrawler([]string{"vendor", ".git"}, []string{".h"})

	t.Run("lexicographic choice", func(t *testing.T) {
		m, err := c.FindArtifact(root, "mach.h")
		require.NoError(t, err)
		assert.Equal(t, "include/mach/mach.h", m.Rel)
		assert.Equal(t, filepath.Join(root, "include", "mach", "mach.h"), m.Path)
		assert.Equal(t, []string{"include/mach/mach.h", "kernel/mach/mach.h"}, m.Candidates)
	})

	t.Run("missing artifact", func(t *testing.T) {
		_, err := c.FindArtifact(root, "task.h")
		assert.ErrorIs(t, err, failure.ErrArtifactNotFound)
	})

	t.Run("missing root", func(t *testing.T) {
		_, err := c.FindArtifact(filepath.Join(root, "nope"), "mach.h")
		require.Error(t, err)
		assert.NotErrorIs(t, err, failure.ErrArtifactNotFound)
	})
}

func TestCrawler_FindArtifact_SlashOrderBeatsWalkOrder(t *testing.T) {
	// WalkDir descends into "a" before its sibling "a.b", but "a.b/x.h"
	// sorts first as a slash path.
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a/sub/x.h": "deep",
		"a.b/x.h":   "sibling",
	})
	c := NewCrawler(nil, nil)

	m, err := c.FindArtifact(root, "x.h")
	require.NoError(t, err)
	assert.Equal(t, "a.b/x.h", m.Rel)
}

func TestCrawler_WalkCorpus(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.h":         "",
		"a/c.H":       "",
		"a/d.c":       "",
		".git/e.h":    "",
		"README":      "",
		"sub/dir/f.h": "",
	})
	c := NewCrawler([]string{".git"}, []string{"h"})

	var seen []string
	err := c.WalkCorpus(root, func(path, rel string) error {
		assert.Equal(t, filepath.Join(root, filepath.FromSlash(rel)), path)
		seen = append(seen, rel)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/c.H", "b.h", "sub/dir/f.h"}, seen)
}

func TestCrawler_IgnoredRootIsStillWalked(t *testing.T) {
	root := filepath.Join(t.TempDir(), "vendor")
	writeTree(t, root, map[string]string{"mach.h": ""})
	c := NewCrawler([]string{"vendor"}, []string{".h"})

	m, err := c.FindArtifact(root, "mach.h")
	require.NoError(t, err)
	assert.Equal(t, "mach.h", m.Rel)
}
