// Package app assembles the application graph with fx. Every entry point
// (CLI commands, the MCP server, the HTTP API) is built from Module.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/dshills/notecontext/internal/chunker"
	"github.com/dshills/notecontext/internal/config"
	"github.com/dshills/notecontext/internal/embedder"
	"github.com/dshills/notecontext/internal/embedpool"
	"github.com/dshills/notecontext/internal/httpapi"
	"github.com/dshills/notecontext/internal/indexer"
	"github.com/dshills/notecontext/internal/llm"
	"github.com/dshills/notecontext/internal/logging"
	"github.com/dshills/notecontext/internal/mcp"
	"github.com/dshills/notecontext/internal/searcher"
	"github.com/dshills/notecontext/internal/service"
	"github.com/dshills/notecontext/internal/storage"
)

// Module combines all application modules. The caller supplies a
// *config.Config and a `name:"version"` string.
var Module = fx.Options(
	fx.Module("logging", fx.Provide(NewLogger)),
	fx.Module("storage", fx.Provide(NewStore)),
	fx.Module("embedder", fx.Provide(NewEmbedder, NewPool)),
	fx.Module("llm", fx.Provide(NewChatClient)),
	fx.Module("searcher", fx.Provide(NewSearcher)),
	fx.Module("indexer",
		fx.Provide(NewIndexer, NewWatcher),
		fx.Invoke(wireChangeHooks),
	),
	fx.Module("service", fx.Provide(NewService)),
	fx.Module("transport", fx.Provide(NewMCPServer, NewHTTPHandler)),
)

// Background starts the embedding pool when the app starts. Long-running
// commands include it; one-shot commands embed on demand instead.
var Background = fx.Invoke(startPool)

// New creates the application for cfg. opts typically carry fx.Populate or
// fx.Invoke calls that pick the entry point.
func New(cfg *config.Config, version string, opts ...fx.Option) *fx.App {
	all := []fx.Option{
		Module,
		fx.Supply(
			cfg,
			fx.Annotate(version, fx.ResultTags(`name:"version"`)),
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			if cfg.Log.Level == "debug" {
				return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
			}
			return fxevent.NopLogger
		}),
	}
	return fx.New(append(all, opts...)...)
}

// NewLogger builds the process logger from cfg and makes it the default.
// Logs go to stderr; stdout is reserved for command output and the MCP
// stdio transport.
func NewLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// NewStore creates the SQLite store. It is initialized on start and closed
// on stop.
func NewStore(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*storage.SQLiteStore, error) {
	if cfg.DBPath != storage.MemoryPath {
		if err := cfg.EnsureDirs(); err != nil {
			return nil, err
		}
	}
	opts := storage.DefaultOptions()
	opts.Chunker = chunker.Options{
		Size:      cfg.Chunk.Size,
		Overlap:   cfg.Chunk.Overlap,
		MinLength: cfg.Chunk.MinLength,
	}
	opts.StructuredChunks = cfg.Chunk.Structured
	opts.Logger = logger

	store, err := storage.NewSQLiteStore(cfg.DBPath, opts)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: store.Init,
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// NewEmbedder returns the configured embedder, or nil when embeddings are
// disabled. Retrieval is then lexical-only.
func NewEmbedder(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (embedder.Embedder, error) {
	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.Embedding.Provider,
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		BatchSize: cfg.Embedding.BatchSize,
		CacheSize: cfg.Embedding.CacheSize,
	})
	if errors.Is(err, embedder.ErrNoProviderEnabled) {
		logger.Info("embeddings disabled, search is lexical only")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(emb.Close))
	return emb, nil
}

// PoolParams are the dependencies of the embedding pool
type PoolParams struct {
	fx.In

	Config   *config.Config
	Store    *storage.SQLiteStore
	Embedder embedder.Embedder `optional:"true"`
	Logger   *slog.Logger
}

// NewPool creates the embedding pool, or nil without an embedder.
func NewPool(lc fx.Lifecycle, p PoolParams) (*embedpool.Pool, error) {
	if p.Embedder == nil {
		return nil, nil
	}
	pool, err := embedpool.New(p.Store, p.Embedder,
		embedpool.WithWorkers(p.Config.Embedding.Workers),
		embedpool.WithBatchSize(p.Config.Embedding.BatchSize),
		embedpool.WithLogger(p.Logger.With("component", "embedpool")),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(pool.Stop))
	return pool, nil
}

// NewChatClient returns the chat client, or nil when no model is configured.
func NewChatClient(cfg *config.Config) (llm.Client, error) {
	if cfg.LLM.Model == "" {
		return nil, nil
	}
	client, err := llm.New(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// SearcherParams are the dependencies of the searcher
type SearcherParams struct {
	fx.In

	Config   *config.Config
	Store    *storage.SQLiteStore
	Embedder embedder.Embedder `optional:"true"`
	Chat     llm.Client        `optional:"true"`
	Logger   *slog.Logger
}

func NewSearcher(p SearcherParams) *searcher.Searcher {
	scfg := searcher.DefaultConfig()
	scfg.Logger = p.Logger.With("component", "searcher")
	r := p.Config.Retrieval
	scfg.LexicalWeight = r.LexicalWeight
	scfg.VectorWeight = r.VectorWeight
	scfg.PerFileCap = r.PerFileCap
	scfg.CharBudget = r.CharBudget
	scfg.Candidates = r.Candidates
	scfg.HistoryTurns = r.HistoryTurns
	scfg.CacheSize = r.CacheSize
	scfg.CacheTTL = r.CacheTTL
	return searcher.New(p.Store, p.Embedder, p.Chat, scfg)
}

func NewIndexer(cfg *config.Config, store *storage.SQLiteStore) *indexer.Indexer {
	return indexer.New(store, indexer.Config{
		MaxDepth:    cfg.Watch.MaxDepth,
		MaxFileSize: cfg.Watch.MaxFileSize,
	})
}

// NewWatcher creates the directory watcher. It is closed with the app.
func NewWatcher(lc fx.Lifecycle, cfg *config.Config, idx *indexer.Indexer) *indexer.Watcher {
	w := indexer.NewWatcher(idx, indexer.WatcherConfig{Debounce: cfg.Watch.Debounce()})
	lc.Append(fx.StopHook(w.Close))
	return w
}

type hookParams struct {
	fx.In

	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	Pool     *embedpool.Pool `optional:"true"`
}

// wireChangeHooks drops cached retrievals and wakes the embedding pool
// whenever indexed content changes. Stored embeddings also drop the cache
// so repeated queries pick up the new vectors.
func wireChangeHooks(p hookParams) {
	p.Indexer.OnChange(func(indexer.Change) {
		p.Searcher.InvalidateCache()
		if p.Pool != nil {
			p.Pool.Trigger()
		}
	})
	if p.Pool != nil {
		p.Pool.OnStored(func(int) {
			p.Searcher.InvalidateCache()
		})
	}
}

func startPool(lc fx.Lifecycle, pool *embedpool.Pool) {
	if pool == nil {
		return
	}
	lc.Append(fx.StartHook(func() error {
		// The start context expires once startup is done; the pool must outlive it.
		return pool.Start(context.Background())
	}))
}

// ServiceParams are the dependencies of the service layer
type ServiceParams struct {
	fx.In

	Config   *config.Config
	Store    *storage.SQLiteStore
	Indexer  *indexer.Indexer
	Watcher  *indexer.Watcher
	Searcher *searcher.Searcher
	Pool     *embedpool.Pool `optional:"true"`
	Chat     llm.Client      `optional:"true"`
	Logger   *slog.Logger
}

func NewService(p ServiceParams) *service.Service {
	chatModel := ""
	if p.Chat != nil {
		chatModel = p.Chat.Model()
	}
	return service.New(service.Deps{
		Store:     p.Store,
		Indexer:   p.Indexer,
		Watcher:   p.Watcher,
		Searcher:  p.Searcher,
		Pool:      p.Pool,
		NotesDir:  p.Config.NotesDir,
		ChatModel: chatModel,
		Logger:    p.Logger,
	})
}

// TransportParams are the dependencies of the MCP server and HTTP API
type TransportParams struct {
	fx.In

	Service *service.Service
	Version string `name:"version"`
}

func NewMCPServer(p TransportParams) *mcp.Server {
	return mcp.NewServer(p.Service, p.Version)
}

func NewHTTPHandler(p TransportParams) http.Handler {
	return httpapi.NewRouter(&httpapi.Deps{Service: p.Service, Version: p.Version})
}
