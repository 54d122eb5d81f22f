package synth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer persists artifacts under one directory. Writes for the same
// artifact name are serialized; distinct names proceed in parallel.
type Writer struct {
	dir   string
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, locks: make(map[string]*sync.Mutex)}
}

func (w *Writer) Dir() string { return w.dir }

func (w *Writer) lock(name string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[name]
	if !ok {
		l = &sync.Mutex{}
		w.locks[name] = l
	}
	return l
}

// Write stores a.Text at <dir>/<name>. changed is false when the file already
// held identical bytes, in which case it is left untouched.
func (w *Writer) Write(a *Artifact) (path string, changed bool, err error) {
	l := w.lock(a.Name)
	l.Lock()
	defer l.Unlock()

	path = filepath.Join(w.dir, a.Name)
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, a.Text) {
		return path, false, nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return path, false, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeFileAtomic(path, a.Text, 0o644); err != nil {
		return path, false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, true, nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
