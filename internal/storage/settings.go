package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetSetting returns the value stored under key; ok is false if unset.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	db, err := s.conn()
	if err != nil {
		return "", false, err
	}
	return getSettingWithQuerier(ctx, db, key)
}

func getSettingWithQuerier(ctx context.Context, q querier, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting stores value under key
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return setSettingWithQuerier(ctx, db, key, value)
}

func setSettingWithQuerier(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

func pinnedPathsWithQuerier(ctx context.Context, q querier) ([]string, error) {
	raw, ok, err := getSettingWithQuerier(ctx, q, SettingPinnedFiles)
	if err != nil || !ok {
		return nil, err
	}
	var paths []string
	if err := json.Unmarshal([]byte(raw), &paths); err != nil {
		return nil, fmt.Errorf("failed to decode pinned files: %w", err)
	}
	return paths, nil
}

func savePinnedPathsWithQuerier(ctx context.Context, q querier, paths []string) error {
	if paths == nil {
		paths = []string{}
	}
	raw, err := json.Marshal(paths)
	if err != nil {
		return err
	}
	return setSettingWithQuerier(ctx, q, SettingPinnedFiles, string(raw))
}

// PinFile adds path to the pinned set. Pinning twice is a no-op.
func (s *SQLiteStore) PinFile(ctx context.Context, path string) error {
	norm, err := NormalizePath(path)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(q querier) error {
		paths, err := pinnedPathsWithQuerier(ctx, q)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if p == norm {
				return nil
			}
		}
		return savePinnedPathsWithQuerier(ctx, q, append(paths, norm))
	})
}

// UnpinFile removes path from the pinned set
func (s *SQLiteStore) UnpinFile(ctx context.Context, path string) error {
	norm, err := NormalizePath(path)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(q querier) error {
		paths, err := pinnedPathsWithQuerier(ctx, q)
		if err != nil {
			return err
		}
		kept := paths[:0]
		for _, p := range paths {
			if p != norm {
				kept = append(kept, p)
			}
		}
		return savePinnedPathsWithQuerier(ctx, q, kept)
	})
}

// ListPinnedFiles returns the pinned files that are currently indexed, in
// pin order. Pins of files that are not in the store are skipped.
func (s *SQLiteStore) ListPinnedFiles(ctx context.Context) ([]*File, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	paths, err := pinnedPathsWithQuerier(ctx, db)
	if err != nil {
		return nil, err
	}
	var files []*File
	for _, p := range paths {
		f, err := getFileWithQuerier(ctx, db, p)
		if err != nil {
			return nil, err
		}
		if f != nil {
			files = append(files, f)
		}
	}
	return files, nil
}
