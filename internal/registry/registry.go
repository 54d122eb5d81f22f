// Package registry holds the named source trees of one run.
package registry

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"hdrsynth/internal/failure"
)

// SourceTree is one candidate implementation of the reconciled interface.
type SourceTree struct {
	ID   string
	Root string
}

// Registry is an immutable, ordered list of source trees. Registration order
// is the default resolution priority.
type Registry struct {
	sources []SourceTree
	byID    map[string]int
}

// New registers sources in the given order. IDs must be unique and non-empty.
func New(sources ...SourceTree) (*Registry, error) {
	r := &Registry{
		sources: make([]SourceTree, 0, len(sources)),
		byID:    make(map[string]int, len(sources)),
	}
	for _, s := range sources {
		if s.ID == "" {
			return nil, fmt.Errorf("source with root %q has no id", s.Root)
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", s.ID)
		}
		r.byID[s.ID] = len(r.sources)
		r.sources = append(r.sources, s)
	}
	return r, nil
}

// Sources returns a copy of the registered trees in registration order.
func (r *Registry) Sources() []SourceTree {
	out := make([]SourceTree, len(r.sources))
	copy(out, r.sources)
	return out
}

func (r *Registry) Len() int { return len(r.sources) }

func (r *Registry) Get(id string) (SourceTree, bool) {
	i, ok := r.byID[id]
	if !ok {
		return SourceTree{}, false
	}
	return r.sources[i], true
}

// IDs returns source identifiers in registration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.sources))
	for i, s := range r.sources {
		out[i] = s.ID
	}
	return out
}

// Priority completes an explicit, possibly partial, priority order with the
// remaining sources in registration order. Unknown or repeated IDs are errors.
func (r *Registry) Priority(explicit []string) ([]string, error) {
	out := make([]string, 0, len(r.sources))
	seen := make(map[string]bool, len(r.sources))
	for _, id := range explicit {
		if _, ok := r.byID[id]; !ok {
			return nil, fmt.Errorf("priority names unknown source %q", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("priority lists %q twice", id)
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, s := range r.sources {
		if !seen[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out, nil
}

// Probe checks that every root is a readable directory. It returns the
// readable trees in registration order and one SourceUnavailable failure per
// excluded tree.
func (r *Registry) Probe() ([]SourceTree, []*failure.Failure) {
	var ok []SourceTree
	var failed []*failure.Failure
	for _, s := range r.sources {
		if err := probe(s.Root); err != nil {
			failed = append(failed, failure.New(failure.SourceUnavailable, s.ID, "", err))
			continue
		}
		ok = append(ok, s)
	}
	return ok, failed
}

func probe(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("cannot list %s: %w", abs, err)
	}
	return nil
}
