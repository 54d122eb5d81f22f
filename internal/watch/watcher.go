// Package watch re-runs reconciliation when source trees change. Events are
// coalesced over a quiet period so an editor save or a checkout triggers a
// single run.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Config holds the parameters for a Watcher.
type Config struct {
	// Roots are the source tree roots watched recursively. Roots that
	// cannot be read are logged and skipped.
	Roots []string

	// Ignore lists directory names never descended into.
	Ignore []string

	// Extensions selects the files whose changes matter. Empty means all.
	Extensions []string

	// Debounce is the quiet period after the last event. Zero or negative
	// falls back to 500ms.
	Debounce time.Duration

	// OnChange receives the sorted, deduplicated changed paths.
	OnChange func(ctx context.Context, changed []string) error

	Logger *log.Logger
}

// Watcher fires a debounced callback when files under its roots change.
// Run must be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	ignored  map[string]bool
	exts     map[string]bool
	debounce time.Duration
	logger   *log.Logger
	roots    []string
	started  atomic.Bool
	watched  atomic.Int32
}

// New registers every non-ignored directory under cfg.Roots.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Roots) == 0 {
		return nil, errors.New("watch: no roots")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignored:  make(map[string]bool, len(cfg.Ignore)),
		exts:     make(map[string]bool, len(cfg.Extensions)),
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if w.logger == nil {
		w.logger = log.Default()
	}
	for _, name := range cfg.Ignore {
		w.ignored[name] = true
	}
	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.exts[strings.ToLower(ext)] = true
	}

	for _, root := range cfg.Roots {
		root = filepath.Clean(root)
		w.roots = append(w.roots, root)
		if err := w.addTree(root); err != nil {
			w.logger.Warn("Not watching source root", "root", root, "error", err)
		}
	}
	if w.watched.Load() == 0 {
		fsw.Close()
		return nil, errors.New("watch: no readable roots")
	}
	return w, nil
}

// Watched returns the number of directories registered.
func (w *Watcher) Watched() int { return int(w.watched.Load()) }

// Run blocks until ctx is cancelled. Callbacks never overlap; events that
// arrive while one is running are delivered by the next.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]bool)
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		changed := make([]string, 0, len(pending))
		for p := range pending {
			changed = append(changed, p)
		}
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 {
			return
		}
		sort.Strings(changed)

		w.logger.Info("Sources changed", "files", len(changed))
		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Error("Re-run failed", "error", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("Failed to close watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if !w.relevant(evt) {
				continue
			}
			mu.Lock()
			pending[evt.Name] = true
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("Event queue overflowed, some changes may be coalesced", "error", err)
				continue
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

// relevant reports whether evt should schedule a run. New directories are
// registered on the way.
func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
		return false
	}
	if w.underIgnored(evt.Name) {
		return false
	}
	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if w.ignored[info.Name()] {
				return false
			}
			if err := w.addTree(evt.Name); err != nil {
				w.logger.Warn("Failed to watch new directory", "path", evt.Name, "error", err)
			}
			return true
		}
	}
	if len(w.exts) == 0 {
		return true
	}
	return w.exts[strings.ToLower(filepath.Ext(evt.Name))]
}

// underIgnored checks the directories between a root and path. The root
// itself may carry an ignored name.
func (w *Watcher) underIgnored(path string) bool {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
			if w.ignored[part] {
				return true
			}
		}
		return false
	}
	return false
}

func (w *Watcher) addTree(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped.
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.watched.Add(1)
		return nil
	})
}
