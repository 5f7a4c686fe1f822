package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func columnNames(t *testing.T, db *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := db.Query("SELECT name FROM pragma_table_info('" + table + "')")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	names := map[string]bool{}
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names[n] = true
	}
	require.NoError(t, rows.Err())
	return names
}

func TestApplyMigrations_FreshAndIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := openDatabase(ctx, MemoryPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, ApplyMigrations(ctx, db))
	require.NoError(t, ApplyMigrations(ctx, db))

	v, err := currentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&applied))
	assert.Equal(t, len(AllMigrations), applied)

	assert.True(t, columnNames(t, db, "files")["note_date"])
	assert.True(t, columnNames(t, db, "chunks")["heading_path"])
	assert.True(t, columnNames(t, db, "conversations")["title"])
}

func TestApplyMigrations_UpgradesExistingData(t *testing.T) {
	ctx := context.Background()
	db, err := openDatabase(ctx, MemoryPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	// a database created by the first schema release
	_, err = db.Exec(migrationV1Up)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO schema_version (version, applied_at) VALUES ('1.0.0', 1)")
	require.NoError(t, err)

	mtime := time.Date(2024, 5, 6, 12, 0, 0, 0, time.Local)
	res, err := db.Exec(
		"INSERT INTO files (path, name, content, size, file_mtime, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		"/notes/old.md", "old.md", "legacy walrus note", 18, mtime.UnixMilli(), 1, 1)
	require.NoError(t, err)
	fileID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO chunks (file_id, chunk_index, content, created_at) VALUES (?, 0, ?, 1)",
		fileID, "legacy walrus note")
	require.NoError(t, err)

	require.NoError(t, ApplyMigrations(ctx, db))

	var mtimeDate string
	require.NoError(t, db.QueryRow("SELECT mtime_date FROM files WHERE id = ?", fileID).Scan(&mtimeDate))
	assert.Equal(t, "2024-05-06", mtimeDate)

	var heading string
	require.NoError(t, db.QueryRow("SELECT heading_path FROM chunks WHERE file_id = ?", fileID).Scan(&heading))
	assert.Empty(t, heading)

	results, err := searchFTSWithQuerier(ctx, db, sanitizeFTSQuery("walrus"), 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1, "index rebuilt over existing chunks")
}

func TestCurrentVersion_UsesHighestVersion(t *testing.T) {
	ctx := context.Background()
	db, err := openDatabase(ctx, MemoryPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	v, err := currentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", v.String())

	_, err = db.Exec("CREATE TABLE schema_version (version TEXT PRIMARY KEY, applied_at INTEGER NOT NULL)")
	require.NoError(t, err)
	// applied_at order disagrees with version order
	_, err = db.Exec("INSERT INTO schema_version VALUES ('1.10.0', 1), ('1.2.0', 5), ('1.9.0', 3)")
	require.NoError(t, err)

	v, err = currentVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", v.String())
}
