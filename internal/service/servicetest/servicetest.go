// Package servicetest builds a fully wired Service over an in-memory store
// for tests of the outer surfaces.
package servicetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dshills/notecontext/internal/embedder"
	"github.com/dshills/notecontext/internal/embedpool"
	"github.com/dshills/notecontext/internal/indexer"
	"github.com/dshills/notecontext/internal/llm"
	"github.com/dshills/notecontext/internal/searcher"
	"github.com/dshills/notecontext/internal/service"
	"github.com/dshills/notecontext/internal/storage"
)

// Env is a wired test environment.
type Env struct {
	Service  *service.Service
	Store    *storage.SQLiteStore
	Indexer  *indexer.Indexer
	Watcher  *indexer.Watcher
	Searcher *searcher.Searcher
	Pool     *embedpool.Pool
	// NotesDir is an empty, normalized temporary directory
	NotesDir string
}

// New wires a Service with the hash embedder and the given chat client,
// which may be nil.
func New(t *testing.T, chat llm.Client) *Env {
	t.Helper()

	store, err := storage.NewSQLiteStore(storage.MemoryPath, storage.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))

	emb := embedder.NewHashProvider(nil)
	pool, err := embedpool.New(store, emb, embedpool.WithBatchSize(16), embedpool.WithInterval(0))
	require.NoError(t, err)

	cfg := searcher.DefaultConfig()
	cfg.CacheTTL = 0
	srch := searcher.New(store, emb, chat, cfg)

	idx := indexer.New(store, indexer.Config{Workers: 2})
	idx.OnChange(func(indexer.Change) { srch.InvalidateCache() })
	w := indexer.NewWatcher(idx, indexer.WatcherConfig{})

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	notesDir, err := storage.NormalizePath(dir)
	require.NoError(t, err)

	chatModel := ""
	if chat != nil {
		chatModel = "test-model"
	}
	svc := service.New(service.Deps{
		Store:     store,
		Indexer:   idx,
		Watcher:   w,
		Searcher:  srch,
		Pool:      pool,
		NotesDir:  notesDir,
		ChatModel: chatModel,
	})

	t.Cleanup(func() {
		_ = w.Stop()
		pool.Stop()
		_ = store.Close()
	})

	return &Env{
		Service:  svc,
		Store:    store,
		Indexer:  idx,
		Watcher:  w,
		Searcher: srch,
		Pool:     pool,
		NotesDir: notesDir,
	}
}

// WriteNote creates a file below the notes directory and returns its path.
func (e *Env) WriteNote(t *testing.T, rel, content string) string {
	t.Helper()
	path := filepath.Join(e.NotesDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
