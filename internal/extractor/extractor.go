package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"hdrsynth/internal/crawler"
	"hdrsynth/internal/failure"
	"hdrsynth/internal/registry"
)

// Artifact is the result of extracting one named artifact from one source.
type Artifact struct {
	SourceID   string   `json:"source"`
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Rel        string   `json:"rel"`
	Candidates []string `json:"candidates,omitempty"`
	Raw        []byte   `json:"-"`
	Symbols    []Symbol `json:"symbols"`
}

// Extractor orchestrates discovery and extraction using one backend.
type Extractor struct {
	backend Backend
	crawler *crawler.Crawler
	cache   *Cache
}

// NewExtractor creates an extractor for the named backend. cache may be nil.
func NewExtractor(backend string, c *crawler.Crawler, cache *Cache) (*Extractor, error) {
	b, err := NewBackend(backend)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = crawler.NewCrawler(nil, nil)
	}
	return &Extractor{backend: b, crawler: c, cache: cache}, nil
}

func (e *Extractor) Backend() string { return e.backend.Name() }

// ExtractArtifact finds name inside tree and returns the symbols it declares,
// each tagged with the source ID. A missing or unreadable artifact yields an
// empty artifact together with a *failure.Failure.
func (e *Extractor) ExtractArtifact(ctx context.Context, tree registry.SourceTree, name string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	art := &Artifact{SourceID: tree.ID, Name: name}

	m, err := e.crawler.FindArtifact(tree.Root, name)
	if err != nil {
		if errors.Is(err, failure.ErrArtifactNotFound) {
			return art, failure.New(failure.ArtifactNotFound, tree.ID, name, err)
		}
		return art, failure.New(failure.SourceUnavailable, tree.ID, name, err)
	}
	art.Path, art.Rel, art.Candidates = m.Path, m.Rel, m.Candidates

	raw, syms, err := e.extractFile(m.Path, true)
	if err != nil {
		return art, failure.New(failure.ArtifactUnreadable, tree.ID, name, err)
	}
	art.Raw = raw
	art.Symbols = tag(syms, tree.ID)
	return art, nil
}

// ExtractFile runs the backend over one file.
func (e *Extractor) ExtractFile(path string) ([]Symbol, error) {
	_, syms, err := e.extractFile(path, false)
	return syms, err
}

// CorpusFunctions returns the names of every function declared anywhere in
// the corpus of tree. Unreadable files are skipped.
func (e *Extractor) CorpusFunctions(ctx context.Context, tree registry.SourceTree) (map[string]bool, error) {
	names := make(map[string]bool)
	err := e.crawler.WalkCorpus(tree.Root, func(path, rel string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		syms, err := e.ExtractFile(path)
		if err != nil {
			return nil
		}
		for _, s := range syms {
			if s.Kind == FunctionDecl {
				names[s.Name] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// extractFile reads path and extracts symbols. The cache is consulted unless
// the raw bytes are wanted.
func (e *Extractor) extractFile(path string, wantRaw bool) ([]byte, []Symbol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	key := cacheKey(e.backend.Name(), path, info)
	if !wantRaw {
		if syms, ok := e.cache.get(key); ok {
			return nil, syms, nil
		}
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	syms, err := e.backend.Extract(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract %s: %w", path, err)
	}
	e.cache.put(key, syms)
	return raw, syms, nil
}

func tag(syms []Symbol, sourceID string) []Symbol {
	for i := range syms {
		syms[i].Sources = []string{sourceID}
	}
	return syms
}
