package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
	fired chan struct{}
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan struct{}, 16)}
}

func (r *recorder) onChange(_ context.Context, changed []string) error {
	r.mu.Lock()
	r.calls = append(r.calls, changed)
	r.mu.Unlock()
	r.fired <- struct{}{}
	return nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func startWatcher(t *testing.T, cfg Config) (*Watcher, context.CancelFunc, <-chan error) {
	t.Helper()
	cfg.Logger = log.New(io.Discard)
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	return w, cancel, errCh
}

func TestWatcher_Debounce(t *testing.T) {
	s1, s2 := t.TempDir(), t.TempDir()
	rec := newRecorder()
	_, cancel, errCh := startWatcher(t, Config{
		Roots:      []string{s1, s2},
		Extensions: []string{".h"},
		Debounce:   100 * time.Millisecond,
		OnChange:   rec.onChange,
	})

	files := []string{filepath.Join(s1, "a.h"), filepath.Join(s2, "b.h"), filepath.Join(s1, "a.h")}
	for _, f := range files {
		require.NoError(t, os.WriteFile(f, []byte("#define X 1\n"), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(250 * time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{filepath.Join(s1, "a.h"), filepath.Join(s2, "b.h")}, calls[0])
}

func TestWatcher_Filters(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	rec := newRecorder()
	_, cancel, errCh := startWatcher(t, Config{
		Roots:      []string{root},
		Ignore:     []string{".git"},
		Extensions: []string{"h"},
		Debounce:   50 * time.Millisecond,
		OnChange:   rec.onChange,
	})
	defer func() {
		cancel()
		<-errCh
	}()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD.h"), []byte("x"), 0644))

	select {
	case <-rec.fired:
		t.Fatalf("unexpected callback: %v", rec.snapshot())
	case <-time.After(300 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(filepath.Join(root, "defs.h"), []byte("x"), 0644))
	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	assert.Equal(t, []string{filepath.Join(root, "defs.h")}, rec.snapshot()[0])
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	w, cancel, errCh := startWatcher(t, Config{
		Roots:      []string{root},
		Extensions: []string{".h"},
		Debounce:   50 * time.Millisecond,
		OnChange:   rec.onChange,
	})
	defer func() {
		cancel()
		<-errCh
	}()
	assert.Equal(t, 1, w.Watched())

	sub := filepath.Join(root, "include")
	require.NoError(t, os.Mkdir(sub, 0755))
	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for directory callback")
	}

	require.NoError(t, os.WriteFile(filepath.Join(sub, "api.h"), []byte("x"), 0644))
	select {
	case <-rec.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for file callback")
	}
	calls := rec.snapshot()
	assert.Contains(t, calls[len(calls)-1], filepath.Join(sub, "api.h"))
}

func TestWatcher_RunTwice(t *testing.T) {
	root := t.TempDir()
	w, cancel, errCh := startWatcher(t, Config{Roots: []string{root}})
	defer func() {
		cancel()
		<-errCh
	}()

	assert.Eventually(t, func() bool { return w.started.Load() }, time.Second, 10*time.Millisecond)
	assert.Error(t, w.Run(context.Background()))
}

func TestNew_NoReadableRoots(t *testing.T) {
	_, err := New(Config{Logger: log.New(io.Discard)})
	assert.Error(t, err)

	_, err = New(Config{Roots: []string{filepath.Join(t.TempDir(), "missing")}, Logger: log.New(io.Discard)})
	assert.Error(t, err)
}
