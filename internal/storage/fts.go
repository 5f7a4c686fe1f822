package storage

import (
	"context"
	"database/sql"
	"strings"
)

// ftsSchemaSQL (re)creates the external-content index over chunks and the
// triggers that keep it in sync. FTS5 external-content tables require the
// 'delete' command with the old column values to remove a row.
const ftsSchemaSQL = `
DROP TRIGGER IF EXISTS chunks_ai;
DROP TRIGGER IF EXISTS chunks_ad;
DROP TRIGGER IF EXISTS chunks_au;
DROP TABLE IF EXISTS chunks_fts;

CREATE VIRTUAL TABLE chunks_fts USING fts5(
    content,
    heading_path,
    content='chunks',
    content_rowid='id',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
    INSERT INTO chunks_fts(rowid, content, heading_path)
    VALUES (new.id, new.content, new.heading_path);
END;

CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content, heading_path)
    VALUES ('delete', old.id, old.content, old.heading_path);
END;

CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
    INSERT INTO chunks_fts(chunks_fts, rowid, content, heading_path)
    VALUES ('delete', old.id, old.content, old.heading_path);
    INSERT INTO chunks_fts(rowid, content, heading_path)
    VALUES (new.id, new.content, new.heading_path);
END;

INSERT INTO chunks_fts(chunks_fts) VALUES ('rebuild');
`

func createFTS(ctx context.Context, q querier) error {
	_, err := q.ExecContext(ctx, ftsSchemaSQL)
	return err
}

// rebuildFTS drops and regenerates the full-text index from the chunks table.
func rebuildFTS(ctx context.Context, db *sql.DB) error {
	return runTx(ctx, db, func(q querier) error {
		return createFTS(ctx, q)
	})
}

// checkFTS runs the FTS5 integrity check, comparing against the content table.
func checkFTS(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, "INSERT INTO chunks_fts(chunks_fts, rank) VALUES ('integrity-check', 1)")
	return err
}

// RebuildFTS regenerates the full-text index. Chunks are the source of truth.
func (s *SQLiteStore) RebuildFTS(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	s.logger.Info("rebuilding full-text index")
	return rebuildFTS(ctx, db)
}

// isFTSCorruption reports whether err indicates a damaged or missing index.
func isFTSCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"malformed",
		"corrupt",
		"no such table: chunks_fts",
		"fts5: missing row",
		"invalid fts5 file format",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
