package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/notecontext/internal/chunker"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrNotInitialized is returned by every data operation called before Init
	ErrNotInitialized = errors.New("store not initialized")
	// ErrInvalidVector is returned when a vector does not match its declared dimension
	ErrInvalidVector = errors.New("invalid vector")
)

// MemoryPath opens a private in-memory database; useful in tests.
const MemoryPath = ":memory:"

// Options configures a SQLiteStore
type Options struct {
	// Chunking parameters applied on every SaveFile
	Chunker chunker.Options

	// StructuredChunks enables heading-aware splitting of markdown notes
	StructuredChunks bool

	// OpenAttempts bounds the open retries before the file is recreated
	OpenAttempts int

	// OpenBackoff is the delay after the first failed attempt; it doubles each time
	OpenBackoff time.Duration

	Logger *slog.Logger
}

// DefaultOptions returns options with the standard chunk window
func DefaultOptions() Options {
	return Options{
		Chunker:          chunker.DefaultOptions(),
		StructuredChunks: true,
		OpenAttempts:     3,
		OpenBackoff:      50 * time.Millisecond,
	}
}

// SQLiteStore implements Store on top of a single SQLite database file.
type SQLiteStore struct {
	path    string
	opts    Options
	chunker *chunker.Chunker
	logger  *slog.Logger

	mu    sync.RWMutex
	db    *sql.DB
	ready atomic.Bool
	group singleflight.Group
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store for dbPath. Nothing is opened until Init.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	c, err := chunker.NewWithOptions(opts.Chunker)
	if err != nil {
		return nil, err
	}
	if opts.OpenAttempts <= 0 {
		opts.OpenAttempts = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		path:    dbPath,
		opts:    opts,
		chunker: c,
		logger:  logger.With("component", "storage"),
	}, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Init opens the database, applies migrations and validates the full-text
// index. Concurrent callers share one initialization; later calls are no-ops.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	_, err, _ := s.group.Do("init", func() (any, error) {
		if s.ready.Load() {
			return nil, nil
		}
		return nil, s.initialize(ctx)
	})
	return err
}

// EnsureReady initializes the store if that has not happened yet.
func (s *SQLiteStore) EnsureReady(ctx context.Context) error {
	return s.Init(ctx)
}

func (s *SQLiteStore) initialize(ctx context.Context) error {
	db, err := s.openWithRetry(ctx)
	if err != nil {
		s.logger.Warn("database unusable, recreating", "path", s.path, "error", err)
		if rerr := s.forceRecreate(ctx); rerr != nil {
			return fmt.Errorf("failed to recreate database: %w", rerr)
		}
		db, err = s.openAndMigrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to open database after recreate: %w", err)
		}
	}

	if err := checkFTS(ctx, db); err != nil {
		s.logger.Warn("full-text index failed integrity check, rebuilding", "error", err)
		if err := rebuildFTS(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to rebuild full-text index: %w", err)
		}
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	s.ready.Store(true)
	s.logger.Debug("store ready", "path", s.path, "driver", DriverName)
	return nil
}

// Close closes the database connection. The store may be initialized again.
func (s *SQLiteStore) Close() error {
	s.ready.Store(false)
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

// conn returns the open database or ErrNotInitialized.
func (s *SQLiteStore) conn() (*sql.DB, error) {
	if !s.ready.Load() {
		return nil, ErrNotInitialized
	}
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, ErrNotInitialized
	}
	return db, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(q querier) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return runTx(ctx, db, fn)
}

func runTx(ctx context.Context, db *sql.DB, fn func(q querier) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetStats reports row counts and the on-disk size of the database.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	err = db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM embeddings)
	`).Scan(&stats.FileCount, &stats.ChunkCount, &stats.EmbeddingCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	var pageCount, pageSize int64
	if err := db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page size: %w", err)
	}
	stats.IndexSizeBytes = pageCount * pageSize

	version, err := currentVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version.String()
	return stats, nil
}
