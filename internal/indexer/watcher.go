package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/notecontext/internal/storage"
)

// DefaultDebounce is how long a path must stay quiet before it is indexed.
const DefaultDebounce = time.Second

// ErrWatcherStopped is returned by Watch after Close
var ErrWatcherStopped = errors.New("watcher stopped")

// State of a Watcher
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateWatching State = "watching"
)

// WatcherConfig configures a Watcher
type WatcherConfig struct {
	Debounce time.Duration // default 1s
}

// Watcher keeps the store in sync with one root directory.
//
// Writes are debounced per path: every event for a path replaces its pending
// timer, so a burst of saves results in one indexing pass. Removals are
// applied immediately. Switching to a root that is not inside the previous
// one clears all content first.
type Watcher struct {
	idx      *Indexer
	store    Store
	debounce time.Duration
	logger   *slog.Logger

	// serializes Watch and Stop
	opMu sync.Mutex

	mu       sync.Mutex
	closed   bool
	state    State
	root     string
	fsw      *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	timers   map[string]*time.Timer
	gens     map[string]uint64 // pending generation per path
	seq      uint64
	inflight sync.WaitGroup
}

// NewWatcher creates a stopped watcher
func NewWatcher(idx *Indexer, cfg WatcherConfig) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Watcher{
		idx:      idx,
		store:    idx.store,
		debounce: cfg.Debounce,
		logger:   slog.Default().With("component", "watcher"),
		state:    StateStopped,
		timers:   make(map[string]*time.Timer),
		gens:     make(map[string]uint64),
	}
}

// State returns the current state
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Root returns the watched root, or "" when stopped.
func (w *Watcher) Root() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateStopped {
		return ""
	}
	return w.root
}

// Watch stops any previous watch, clears the store if root is not inside the
// previously indexed root, starts watching root and runs the initial scan.
// The previous root is remembered in the store, so a switch is detected
// across restarts too.
func (w *Watcher) Watch(ctx context.Context, root string) (*Statistics, error) {
	w.opMu.Lock()
	defer w.opMu.Unlock()

	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, ErrWatcherStopped
	}

	root, err := storage.NormalizePath(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	if err := w.stop(); err != nil {
		w.logger.Warn("failed to close previous watcher", "err", err)
	}

	previous, _, err := w.store.GetSetting(ctx, storage.SettingNotesRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous root: %w", err)
	}
	if previous != "" && !storage.IsSubPath(root, previous) {
		w.logger.Info("notes directory changed, clearing index", "from", previous, "to", root)
		if err := w.idx.Clear(ctx); err != nil {
			return nil, err
		}
	}
	if err := w.store.SetSetting(ctx, storage.SettingNotesRoot, root); err != nil {
		return nil, fmt.Errorf("failed to save root: %w", err)
	}

	if err := w.start(root); err != nil {
		return nil, err
	}

	stats, err := w.idx.Scan(ctx, root)
	if err != nil {
		_ = w.stop()
		return nil, fmt.Errorf("initial scan failed: %w", err)
	}
	return stats, nil
}

func (w *Watcher) start(root string) error {
	w.mu.Lock()
	w.state = StateStarting
	w.root = root
	w.mu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.setStopped()
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.addTree(fsw, root, root); err != nil {
		_ = fsw.Close()
		w.setStopped()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	w.mu.Lock()
	w.fsw = fsw
	w.ctx = ctx
	w.cancel = cancel
	w.loopDone = done
	w.state = StateWatching
	w.mu.Unlock()

	go w.loop(ctx, fsw, root, done)
	w.logger.Info("watching notes directory", "root", root)
	return nil
}

func (w *Watcher) setStopped() {
	w.mu.Lock()
	w.state = StateStopped
	w.mu.Unlock()
}

// addTree adds dir and its subdirectories, up to the indexer's depth limit.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && (ShouldIgnore(root, path) || depth(root, path) > w.idx.cfg.MaxDepth) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			w.logger.Warn("failed to watch directory", "path", path, "err", err)
		}
		return nil
	})
}

// Stop closes the watcher. Pending debounce timers are cancelled and any
// indexing already running has finished when Stop returns.
func (w *Watcher) Stop() error {
	w.opMu.Lock()
	defer w.opMu.Unlock()
	return w.stop()
}

// Close stops the watcher for good. Later calls to Watch fail with
// ErrWatcherStopped.
func (w *Watcher) Close() error {
	w.opMu.Lock()
	defer w.opMu.Unlock()
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.stop()
}

func (w *Watcher) stop() error {
	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return nil
	}
	w.state = StateStopped
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	clear(w.gens)
	cancel, fsw, done := w.cancel, w.fsw, w.loopDone
	w.cancel, w.fsw, w.loopDone = nil, nil, nil
	w.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
	}
	if fsw != nil {
		err = fsw.Close()
	}
	if done != nil {
		<-done
	}
	w.inflight.Wait()
	w.logger.Info("watcher stopped")
	return err
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, root string, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, fsw, root, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, root string, event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if ShouldIgnore(root, path) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		w.cancelPending(path)
		w.remove(ctx, path)

	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) && depth(root, path) <= w.idx.cfg.MaxDepth {
				if err := w.addTree(fsw, root, path); err != nil {
					w.logger.Warn("failed to watch new directory", "path", path, "err", err)
				}
				// Files may have landed before the directory was watched
				w.scheduleTree(root, path)
			}
			return
		}
		w.schedule(path)
	}
}

// remove deletes a file, or every file below a removed directory.
func (w *Watcher) remove(ctx context.Context, path string) {
	if !w.track() {
		return
	}
	defer w.inflight.Done()

	removed, err := w.idx.RemoveTree(ctx, path)
	if err != nil {
		w.logger.Warn("failed to remove file from index", "path", path, "err", err)
		return
	}
	if removed > 0 {
		w.logger.Debug("removed from index", "path", path, "files", removed)
	}
}

func (w *Watcher) scheduleTree(root, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ShouldIgnore(root, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			w.schedule(path)
		}
		return nil
	})
}

// schedule (re)starts the debounce timer for path. Each timer carries a
// unique generation, so a timer that already fired but lost the race to a
// newer event is a no-op.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateWatching {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.seq++
	gen := w.seq
	w.gens[path] = gen
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.fire(path, gen) })
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.timers {
		if storage.IsSubPath(p, path) {
			t.Stop()
			delete(w.timers, p)
			delete(w.gens, p)
		}
	}
}

func (w *Watcher) fire(path string, gen uint64) {
	w.mu.Lock()
	if w.state != StateWatching || w.gens[path] != gen {
		w.mu.Unlock()
		return
	}
	delete(w.timers, path)
	delete(w.gens, path)
	ctx := w.ctx
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	if _, err := w.idx.IndexFile(ctx, path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		w.logger.Warn("failed to index changed file", "path", path, "err", err)
	}
}

// track registers in-flight work; false once the watcher is stopping.
func (w *Watcher) track() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateWatching {
		return false
	}
	w.inflight.Add(1)
	return true
}
