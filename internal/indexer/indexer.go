package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/notecontext/internal/storage"
)

var (
	ErrIndexingInProgress = errors.New("indexing already in progress")
	ErrNotAFile           = errors.New("not a regular file")
	ErrIgnored            = errors.New("path is ignored")
	ErrFileTooLarge       = errors.New("file too large")
	ErrBinaryContent      = errors.New("file looks binary")
)

// Store is the part of the content store the indexer writes to.
type Store interface {
	SaveFile(ctx context.Context, path, name, content string) (*storage.File, error)
	DeleteFileByPath(ctx context.Context, path string) (bool, error)
	ListFiles(ctx context.Context) ([]*storage.File, error)
	NeedsProcessing(ctx context.Context, path string, mtime time.Time) (bool, error)
	ClearAllContent(ctx context.Context) error
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Config contains configuration for the indexer
type Config struct {
	Workers     int   // Concurrent file reads (default: runtime.NumCPU())
	MaxDepth    int   // Directory depth below the root (default: 15)
	MaxFileSize int64 // Larger files are skipped (default: 5 MiB)
}

const (
	DefaultMaxDepth    = 15
	DefaultMaxFileSize = 5 << 20
)

// ChangeKind describes what happened to the indexed content
type ChangeKind string

const (
	ChangeSaved   ChangeKind = "saved"
	ChangeRemoved ChangeKind = "removed"
	ChangeCleared ChangeKind = "cleared"
)

// Change is passed to OnChange hooks after the store was modified.
type Change struct {
	Kind ChangeKind
	Path string // empty for ChangeCleared
}

// Statistics contains statistics about a scan
type Statistics struct {
	FilesFound    int           `json:"files_found"`
	FilesIndexed  int           `json:"files_indexed"`
	FilesSkipped  int           `json:"files_skipped"`
	FilesFailed   int           `json:"files_failed"`
	FilesRemoved  int           `json:"files_removed"`
	Duration      time.Duration `json:"duration"`
	ErrorMessages []string      `json:"errors,omitempty"`
}

// Indexer reads note files from disk into the store.
type Indexer struct {
	store  Store
	cfg    Config
	lock   IndexLock
	logger *slog.Logger

	hooksMu sync.RWMutex
	hooks   []func(Change)
}

// New creates a new Indexer instance
func New(store Store, cfg Config) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	return &Indexer{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "indexer"),
	}
}

// OnChange registers fn to run after every store modification. Hooks run
// synchronously on the modifying goroutine and must not block.
func (idx *Indexer) OnChange(fn func(Change)) {
	idx.hooksMu.Lock()
	idx.hooks = append(idx.hooks, fn)
	idx.hooksMu.Unlock()
}

// Scanning reports whether a full scan is running
func (idx *Indexer) Scanning() bool {
	return idx.lock.Held()
}

func (idx *Indexer) notify(c Change) {
	idx.hooksMu.RLock()
	defer idx.hooksMu.RUnlock()
	for _, fn := range idx.hooks {
		fn(c)
	}
}

// Scan indexes every qualifying file under root that is new or modified and
// removes stored files under root that no longer exist. One failing file
// never aborts the scan; its error is collected in ErrorMessages.
func (idx *Indexer) Scan(ctx context.Context, root string) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
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

	files, err := idx.discoverFiles(root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	stats := &Statistics{FilesFound: len(files), ErrorMessages: make([]string, 0)}
	if err := idx.indexFiles(ctx, files, stats); err != nil {
		return nil, err
	}
	if err := idx.pruneMissing(ctx, root, files, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	idx.logger.Info("scan complete",
		"root", root,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"failed", stats.FilesFailed,
		"removed", stats.FilesRemoved,
		"duration", stats.Duration)
	return stats, nil
}

// discoverFiles walks root up to MaxDepth directories deep.
func (idx *Indexer) discoverFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			idx.logger.Warn("skipping unreadable path", "path", path, "err", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if ShouldIgnore(root, path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if depth(root, path) > idx.cfg.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

// indexFiles indexes files concurrently, bounded by a semaphore
func (idx *Indexer) indexFiles(ctx context.Context, files []string, stats *Statistics) error {
	semaphore := make(chan struct{}, idx.cfg.Workers)

	var (
		indexed int32
		skipped int32
		failed  int32
		mu      sync.Mutex // protects stats.ErrorMessages
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			file, err := idx.indexIfChanged(gctx, path)
			switch {
			case err != nil:
				if gctx.Err() != nil {
					return gctx.Err()
				}
				atomic.AddInt32(&failed, 1)
				idx.logger.Warn("failed to index file", "path", path, "err", err)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
			case file == nil:
				atomic.AddInt32(&skipped, 1)
			default:
				atomic.AddInt32(&indexed, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats.FilesIndexed = int(indexed)
	stats.FilesSkipped = int(skipped)
	stats.FilesFailed = int(failed)
	return nil
}

// indexIfChanged returns nil, nil when the stored copy is up to date.
func (idx *Indexer) indexIfChanged(ctx context.Context, path string) (*storage.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	needs, err := idx.store.NeedsProcessing(ctx, path, info.ModTime())
	if err != nil {
		return nil, err
	}
	if !needs {
		return nil, nil
	}
	return idx.index(ctx, path, info)
}

func (idx *Indexer) index(ctx context.Context, path string, info os.FileInfo) (*storage.File, error) {
	if !info.Mode().IsRegular() {
		return nil, ErrNotAFile
	}
	if info.Size() > idx.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if looksBinary(content) || !utf8.Valid(content) {
		return nil, ErrBinaryContent
	}

	file, err := idx.store.SaveFile(ctx, path, filepath.Base(path), string(content))
	if err != nil {
		return nil, err
	}
	idx.notify(Change{Kind: ChangeSaved, Path: file.Path})
	return file, nil
}

// IndexFile reads path and saves it unconditionally. Used by the watcher
// after a change settled.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (*storage.File, error) {
	path, err := storage.NormalizePath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return idx.index(ctx, path, info)
}

// RemoveFile deletes path from the store
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (bool, error) {
	path, err := storage.NormalizePath(path)
	if err != nil {
		return false, err
	}
	removed, err := idx.store.DeleteFileByPath(ctx, path)
	if err != nil {
		return false, err
	}
	if removed {
		idx.notify(Change{Kind: ChangeRemoved, Path: path})
	}
	return removed, nil
}

// RemoveTree deletes every stored file at or below dir.
func (idx *Indexer) RemoveTree(ctx context.Context, dir string) (int, error) {
	dir, err := storage.NormalizePath(dir)
	if err != nil {
		return 0, err
	}
	files, err := idx.store.ListFiles(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if !storage.IsSubPath(f.Path, dir) {
			continue
		}
		ok, err := idx.RemoveFile(ctx, f.Path)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// Clear removes all indexed content. Failures are returned, never swallowed.
func (idx *Indexer) Clear(ctx context.Context) error {
	if err := idx.store.ClearAllContent(ctx); err != nil {
		return fmt.Errorf("failed to clear content: %w", err)
	}
	idx.notify(Change{Kind: ChangeCleared})
	return nil
}

// pruneMissing removes stored files under root that the scan did not find.
func (idx *Indexer) pruneMissing(ctx context.Context, root string, found []string, stats *Statistics) error {
	seen := make(map[string]bool, len(found))
	for _, p := range found {
		seen[p] = true
	}

	stored, err := idx.store.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	for _, f := range stored {
		if seen[f.Path] || !storage.IsSubPath(f.Path, root) {
			continue
		}
		removed, err := idx.RemoveFile(ctx, f.Path)
		if err != nil {
			return fmt.Errorf("failed to remove %s: %w", f.Path, err)
		}
		if removed {
			stats.FilesRemoved++
		}
	}
	return nil
}
