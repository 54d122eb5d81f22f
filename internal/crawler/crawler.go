package crawler

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"hdrsynth/internal/failure"
)

// Crawler discovers files inside a source tree. Results are always in
// lexicographic slash-path order so discovery never depends on walk order.
type Crawler struct {
	ignored    map[string]bool
	extensions map[string]bool
}

// NewCrawler creates a new crawler instance. ignored lists directory names
// skipped below the root; extensions selects corpus files (".h").
func NewCrawler(ignored, extensions []string) *Crawler {
	c := &Crawler{
		ignored:    make(map[string]bool, len(ignored)),
		extensions: make(map[string]bool, len(extensions)),
	}
	for _, ign := range ignored {
		c.ignored[ign] = true
	}
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.extensions[strings.ToLower(ext)] = true
	}
	return c
}

// Match is a discovered artifact location.
type Match struct {
	Path       string // absolute path of the chosen file
	Rel        string // slash path relative to the root
	Candidates []string
}

// FindArtifact returns the file named exactly name inside root. When several
// paths carry that name the lexicographically smallest relative path wins.
func (c *Crawler) FindArtifact(root, name string) (*Match, error) {
	var found []string
	err := c.walk(root, func(rel string, d fs.DirEntry) {
		if d.Name() == name {
			found = append(found, rel)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s not found under %s: %w", name, root, failure.ErrArtifactNotFound)
	}
	sort.Strings(found)
	return &Match{
		Path:       filepath.Join(root, filepath.FromSlash(found[0])),
		Rel:        found[0],
		Candidates: found,
	}, nil
}

// WalkCorpus streams every corpus file under root, in lexicographic order.
func (c *Crawler) WalkCorpus(root string, onFile func(path, rel string) error) error {
	var files []string
	err := c.walk(root, func(rel string, d fs.DirEntry) {
		if c.extensions[strings.ToLower(filepath.Ext(d.Name()))] {
			files = append(files, rel)
		}
	})
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, rel := range files {
		if err := onFile(filepath.Join(root, filepath.FromSlash(rel)), rel); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) walk(root string, onFile func(rel string, d fs.DirEntry)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtrees shrink the corpus instead of failing it.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Skip ignored directories
		if d.IsDir() {
			if path != root && c.ignored[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		onFile(filepath.ToSlash(rel), d)
		return nil
	})
}
