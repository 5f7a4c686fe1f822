package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/notecontext/pkg/types"
)

const fileColumns = "id, path, name, content, size, note_date, mtime_date, file_mtime, created_at, updated_at"

// fileListColumns omits the body, which listings never need.
const fileListColumns = "id, path, name, '', size, note_date, mtime_date, file_mtime, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (*File, error) {
	var (
		f                       File
		noteDate, mtimeDate     sql.NullString
		mtime, created, updated int64
	)
	err := row.Scan(&f.ID, &f.Path, &f.Name, &f.Content, &f.Size,
		&noteDate, &mtimeDate, &mtime, &created, &updated)
	if err != nil {
		return nil, err
	}
	f.NoteDate = noteDate.String
	f.MtimeDate = mtimeDate.String
	f.FileMtime = time.UnixMilli(mtime)
	f.CreatedAt = time.UnixMilli(created)
	f.UpdatedAt = time.UnixMilli(updated)
	return &f, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SaveFile upserts a note by path, replaces all of its chunks and drops the
// embeddings of the replaced chunks, all in one transaction. The modification
// time is read from disk when the file exists.
func (s *SQLiteStore) SaveFile(ctx context.Context, path, name, content string) (*File, error) {
	if _, err := s.conn(); err != nil {
		return nil, err
	}
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = filepath.Base(norm)
	}

	now := time.Now()
	mtime := now
	if info, err := os.Stat(norm); err == nil {
		mtime = info.ModTime()
	}

	file := &File{
		Path:      norm,
		Name:      name,
		Content:   content,
		Size:      int64(len(content)),
		NoteDate:  DeriveNoteDate(name, content),
		MtimeDate: mtime.In(time.Local).Format(types.DateLayout),
		FileMtime: time.UnixMilli(mtime.UnixMilli()),
		UpdatedAt: time.UnixMilli(now.UnixMilli()),
	}
	passages := s.chunker.ChunkDocument(name, content, s.opts.StructuredChunks)

	err = s.withTx(ctx, func(q querier) error {
		if err := upsertFileWithQuerier(ctx, q, file); err != nil {
			return err
		}
		return replaceChunksWithQuerier(ctx, q, file.ID, passages, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", norm, err)
	}

	s.logger.Debug("saved file", "path", norm, "chunks", len(passages), "note_date", file.NoteDate)
	return file, nil
}

func upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (path, name, content, size, note_date, mtime_date, file_mtime, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			content = excluded.content,
			size = excluded.size,
			note_date = excluded.note_date,
			mtime_date = excluded.mtime_date,
			file_mtime = excluded.file_mtime,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	var created int64
	err := q.QueryRowContext(ctx, query,
		file.Path, file.Name, file.Content, file.Size,
		nullString(file.NoteDate), file.MtimeDate, file.FileMtime.UnixMilli(),
		file.UpdatedAt.UnixMilli(), file.UpdatedAt.UnixMilli(),
	).Scan(&file.ID, &created)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	file.CreatedAt = time.UnixMilli(created)
	return nil
}

func replaceChunksWithQuerier(ctx context.Context, q querier, fileID int64, passages []types.Passage, now time.Time) error {
	if _, err := q.ExecContext(ctx,
		"DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE file_id = ?)", fileID); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	for _, p := range passages {
		_, err := q.ExecContext(ctx,
			"INSERT INTO chunks (file_id, chunk_index, content, heading_path, created_at) VALUES (?, ?, ?, ?, ?)",
			fileID, p.Index, p.Content, p.HeadingPath, now.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", p.Index, err)
		}
	}
	return nil
}

// GetFile returns the file stored under path, or nil if there is none.
func (s *SQLiteStore) GetFile(ctx context.Context, path string) (*File, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return getFileWithQuerier(ctx, db, norm)
}

func getFileWithQuerier(ctx context.Context, q querier, path string) (*File, error) {
	row := q.QueryRowContext(ctx, "SELECT "+fileColumns+" FROM files WHERE path = ?", path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// GetFileContent returns the stored body of a file; ok is false if absent.
func (s *SQLiteStore) GetFileContent(ctx context.Context, fileID int64) (string, bool, error) {
	db, err := s.conn()
	if err != nil {
		return "", false, err
	}
	var content string
	err = db.QueryRowContext(ctx, "SELECT content FROM files WHERE id = ?", fileID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get file content: %w", err)
	}
	return content, true, nil
}

// ListFiles returns every file without its content, ordered by path.
func (s *SQLiteStore) ListFiles(ctx context.Context) ([]*File, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT "+fileListColumns+" FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFileByPath removes a file with its chunks and embeddings. It reports
// whether a row existed.
func (s *SQLiteStore) DeleteFileByPath(ctx context.Context, path string) (bool, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	var deleted bool
	err = s.withTx(ctx, func(q querier) error {
		var id int64
		err := q.QueryRowContext(ctx, "SELECT id FROM files WHERE path = ?", norm).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := replaceChunksWithQuerier(ctx, q, id, nil, time.Now()); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", norm, err)
	}
	return deleted, nil
}

// ClearAllContent removes every file, chunk and embedding. Settings and
// conversations are kept.
func (s *SQLiteStore) ClearAllContent(ctx context.Context) error {
	err := s.withTx(ctx, func(q querier) error {
		for _, stmt := range []string{
			"DELETE FROM embeddings",
			"DELETE FROM chunks",
			"DELETE FROM files",
		} {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear content: %w", err)
	}
	s.logger.Info("cleared all indexed content")
	return nil
}

// NeedsProcessing reports whether a file is unknown or has a newer
// modification time than the stored one.
func (s *SQLiteStore) NeedsProcessing(ctx context.Context, path string, mtime time.Time) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}
	norm, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	var stored int64
	err = db.QueryRowContext(ctx, "SELECT file_mtime FROM files WHERE path = ?", norm).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read mtime: %w", err)
	}
	return mtime.UnixMilli() > stored, nil
}
