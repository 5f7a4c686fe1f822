package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkContents(t *testing.T, s *SQLiteStore, path string) []string {
	t.Helper()
	db, err := s.conn()
	require.NoError(t, err)
	rows, err := db.Query(`
		SELECT c.content FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE f.path = ? ORDER BY c.chunk_index`, path)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		out = append(out, c)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestSaveFile_ChunksLongText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file, err := s.SaveFile(ctx, "/notes/long.txt", "long.txt", prose(1200))
	require.NoError(t, err)
	assert.Positive(t, file.ID)
	assert.Equal(t, "/notes/long.txt", file.Path)
	assert.Equal(t, int64(1200), file.Size)

	chunks := chunkContents(t, s, "/notes/long.txt")
	assert.Len(t, chunks, 3)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)
	assert.Equal(t, 3, stats.ChunkCount)
}

func TestSaveFile_ResaveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	content := prose(900)

	first, err := s.SaveFile(ctx, "/notes/a.txt", "a.txt", content)
	require.NoError(t, err)
	before := chunkContents(t, s, "/notes/a.txt")

	second, err := s.SaveFile(ctx, "/notes/a.txt", "a.txt", content)
	require.NoError(t, err)
	after := chunkContents(t, s, "/notes/a.txt")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, before, after)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FileCount)
	assert.Equal(t, len(before), stats.ChunkCount)
}

func TestSaveFile_ResaveDropsEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveFile(ctx, "/notes/a.txt", "a.txt", "original kayak trip notes")
	require.NoError(t, err)
	pending, err := s.ListChunksNeedingEmbeddings(ctx, "test-model", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.NoError(t, s.UpsertEmbedding(ctx, pending[0].ChunkID, []float32{1, 0, 0}, 3, "test-model"))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EmbeddingCount)

	_, err = s.SaveFile(ctx, "/notes/a.txt", "a.txt", "rewritten kayak trip notes")
	require.NoError(t, err)

	stats, err = s.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EmbeddingCount)

	pending, err = s.ListChunksNeedingEmbeddings(ctx, "test-model", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "rewritten kayak trip notes", pending[0].Content)
}

func TestSaveFile_DerivesNoteDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	file, err := s.SaveFile(ctx, "/notes/2024-03-01 trip.md", "2024-03-01 trip.md", "went to the lake")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", file.NoteDate)
	assert.Equal(t, "2024-03-01", file.EffectiveDate())

	plain, err := s.SaveFile(ctx, "/notes/plain.md", "plain.md", "no date here")
	require.NoError(t, err)
	assert.Empty(t, plain.NoteDate)
	assert.Equal(t, time.Now().Format("2006-01-02"), plain.EffectiveDate())
}

func TestSaveFile_NameDefaultsToBase(t *testing.T) {
	s := newTestStore(t)
	file, err := s.SaveFile(context.Background(), "/notes/sub/idea.md", "", "an idea")
	require.NoError(t, err)
	assert.Equal(t, "idea.md", file.Name)
}

func TestSaveFile_StructuredMarkdownKeepsHeadingPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	content := "# Trip\n\nIntro paragraph about the trip.\n\n## Day 1\n\nWe rented a kayak at the harbor.\n"

	_, err := s.SaveFile(ctx, "/notes/trip.md", "trip.md", content)
	require.NoError(t, err)

	pending, err := s.ListChunksNeedingEmbeddings(ctx, "m", 10)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	var found bool
	for _, p := range pending {
		if p.HeadingPath == "# Trip > ## Day 1" {
			found = true
			assert.Contains(t, p.EmbedText(), "# Trip > ## Day 1\n\n")
		}
	}
	assert.True(t, found)
}

func TestGetFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.GetFile(ctx, "/notes/missing.md")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.SaveFile(ctx, "/notes/sub/../a.md", "a.md", "normalized path")
	require.NoError(t, err)

	f, err := s.GetFile(ctx, "/notes/a.md")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "normalized path", f.Content)

	content, ok, err := s.GetFileContent(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "normalized path", content)

	_, ok, err = s.GetFileContent(ctx, f.ID+100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"/notes/b.md", "/notes/a.md"} {
		_, err := s.SaveFile(ctx, p, "", "body of "+p)
		require.NoError(t, err)
	}

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "/notes/a.md", files[0].Path)
	assert.Equal(t, "/notes/b.md", files[1].Path)
	assert.Empty(t, files[0].Content)
}

func TestDeleteFileByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveFile(ctx, "/notes/a.md", "a.md", "kayak harbor sunrise")
	require.NoError(t, err)
	pending, err := s.ListChunksNeedingEmbeddings(ctx, "m", 10)
	require.NoError(t, err)
	require.NoError(t, s.UpsertEmbedding(ctx, pending[0].ChunkID, []float32{1, 2}, 2, "m"))

	deleted, err := s.DeleteFileByPath(ctx, "/notes/a.md")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteFileByPath(ctx, "/notes/a.md")
	require.NoError(t, err)
	assert.False(t, deleted)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.FileCount)
	assert.Zero(t, stats.ChunkCount)
	assert.Zero(t, stats.EmbeddingCount)

	results, err := s.SearchFTS(ctx, "kayak", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClearAllContent_KeepsSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveFile(ctx, "/notes/a.md", "a.md", "alpha content")
	require.NoError(t, err)
	require.NoError(t, s.SetSetting(ctx, "theme", "dark"))

	require.NoError(t, s.ClearAllContent(ctx))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.FileCount)
	assert.Zero(t, stats.ChunkCount)

	value, ok, err := s.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", value)

	results, err := s.SearchFTS(ctx, "alpha", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNeedsProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(path, []byte("on disk"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	needs, err := s.NeedsProcessing(ctx, path, info.ModTime())
	require.NoError(t, err)
	assert.True(t, needs, "unknown file")

	_, err = s.SaveFile(ctx, path, "", "on disk")
	require.NoError(t, err)

	needs, err = s.NeedsProcessing(ctx, path, info.ModTime())
	require.NoError(t, err)
	assert.False(t, needs, "same mtime")

	needs, err = s.NeedsProcessing(ctx, path, info.ModTime().Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, needs, "older mtime")

	needs, err = s.NeedsProcessing(ctx, path, info.ModTime().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, needs, "newer mtime")
}
