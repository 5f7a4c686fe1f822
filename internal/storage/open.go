package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sidecarSuffixes lists the files SQLite keeps next to the database.
var sidecarSuffixes = []string{"", "-wal", "-shm", "-journal"}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(ctx context.Context, dbPath string) (*sql.DB, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite benefits from a single writer; it also keeps :memory: alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return db, nil
}

func (s *SQLiteStore) openAndMigrate(ctx context.Context) (*sql.DB, error) {
	db, err := openDatabase(ctx, s.path)
	if err != nil {
		return nil, err
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return db, nil
}

// openWithRetry makes a bounded number of attempts with exponential backoff.
func (s *SQLiteStore) openWithRetry(ctx context.Context) (*sql.DB, error) {
	backoff := s.opts.OpenBackoff
	var lastErr error
	for attempt := 1; attempt <= s.opts.OpenAttempts; attempt++ {
		db, err := s.openAndMigrate(ctx)
		if err == nil {
			return db, nil
		}
		lastErr = err
		s.logger.Debug("open attempt failed", "attempt", attempt, "error", err)

		if attempt == s.opts.OpenAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, lastErr
}

// forceRecreate deletes the database and its sidecar files.
func (s *SQLiteStore) forceRecreate(ctx context.Context) error {
	if s.path == MemoryPath {
		return nil
	}
	for _, suffix := range sidecarSuffixes {
		if err := removeWithRetry(ctx, s.path+suffix, s.opts.OpenAttempts, s.opts.OpenBackoff); err != nil {
			return err
		}
	}
	return nil
}

// removeWithRetry tolerates transient failures such as a file still held open.
func removeWithRetry(ctx context.Context, path string, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = os.Remove(path)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed to remove %s: %w", path, err)
}
