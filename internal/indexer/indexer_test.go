package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedPaths(t *testing.T, s *recordingStore) []string {
	t.Helper()
	files, err := s.ListFiles(context.Background())
	require.NoError(t, err)
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	sort.Strings(paths)
	return paths
}

func TestScan_IndexesQualifyingFiles(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "journal", "2024-03-01.md"), "# Friday\n\nWent kayaking on the lake.")
	writeFile(t, filepath.Join(root, "ideas.txt"), "Build a birdhouse.")
	writeFile(t, filepath.Join(root, ".hidden.md"), "secret")
	writeFile(t, filepath.Join(root, ".obsidian", "workspace.md"), "ui state")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(root, "photo.png"), "not really a png")
	writeFile(t, filepath.Join(root, "blob.dat"), "abc\x00def")

	s := newRecordingStore(t)
	idx := New(s, Config{Workers: 2})

	stats, err := idx.Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.FilesFound)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed, "binary content is reported, not fatal")
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "blob.dat")

	assert.Equal(t, []string{
		filepath.Join(root, "ideas.txt"),
		filepath.Join(root, "journal", "2024-03-01.md"),
	}, storedPaths(t, s))
}

func TestScan_Incremental(t *testing.T) {
	root := tempRoot(t)
	a := filepath.Join(root, "a.md")
	b := filepath.Join(root, "b.md")
	writeFile(t, a, "first note")
	writeFile(t, b, "second note")

	s := newRecordingStore(t)
	idx := New(s, Config{})
	ctx := context.Background()

	stats, err := idx.Scan(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)

	stats, err = idx.Scan(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesSkipped)

	writeFile(t, a, "first note, edited")
	touch(t, a, 2*time.Second)
	require.NoError(t, os.Remove(b))

	stats, err = idx.Scan(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, []string{a}, storedPaths(t, s))

	content, ok, err := s.GetFileContent(ctx, mustFile(t, s, a))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first note, edited", content)
}

func mustFile(t *testing.T, s *recordingStore, path string) int64 {
	t.Helper()
	f, err := s.GetFile(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f.ID
}

func TestScan_PruneOnlyUnderRoot(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "a.md"), "inside")

	s := newRecordingStore(t)
	_, err := s.SaveFile(context.Background(), "/elsewhere/other.md", "", "outside the root")
	require.NoError(t, err)

	stats, err := New(s, Config{}).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesRemoved)
	assert.Len(t, storedPaths(t, s), 2)
}

func TestScan_DepthLimit(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "l1", "a.md"), "one level")
	writeFile(t, filepath.Join(root, "l1", "l2", "l3", "b.md"), "three levels")

	s := newRecordingStore(t)
	stats, err := New(s, Config{MaxDepth: 2}).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
}

func TestScan_FailureDoesNotAbort(t *testing.T) {
	root := tempRoot(t)
	bad := filepath.Join(root, "bad.md")
	writeFile(t, bad, "this one fails")
	writeFile(t, filepath.Join(root, "good.md"), "this one works")

	s := newRecordingStore(t)
	s.failPath = bad

	stats, err := New(s, Config{}).Scan(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
}

func TestScan_Errors(t *testing.T) {
	s := newRecordingStore(t)
	idx := New(s, Config{})

	_, err := idx.Scan(context.Background(), filepath.Join(tempRoot(t), "missing"))
	assert.Error(t, err)

	require.True(t, idx.lock.TryAcquire())
	_, err = idx.Scan(context.Background(), tempRoot(t))
	assert.ErrorIs(t, err, ErrIndexingInProgress)
	idx.lock.Release()
}

func TestIndexer_Hooks(t *testing.T) {
	root := tempRoot(t)
	path := filepath.Join(root, "a.md")
	writeFile(t, path, "note")

	s := newRecordingStore(t)
	idx := New(s, Config{})
	var changes []Change
	idx.OnChange(func(c Change) { changes = append(changes, c) })
	ctx := context.Background()

	_, err := idx.IndexFile(ctx, path)
	require.NoError(t, err)
	removed, err := idx.RemoveFile(ctx, path)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = idx.RemoveFile(ctx, path)
	require.NoError(t, err)
	assert.False(t, removed)
	require.NoError(t, idx.Clear(ctx))

	assert.Equal(t, []Change{
		{Kind: ChangeSaved, Path: path},
		{Kind: ChangeRemoved, Path: path},
		{Kind: ChangeCleared},
	}, changes)
}

func TestIndexFile_Limits(t *testing.T) {
	root := tempRoot(t)
	big := filepath.Join(root, "big.txt")
	writeFile(t, big, strings.Repeat("x", 2048))

	idx := New(newRecordingStore(t), Config{MaxFileSize: 1024})
	_, err := idx.IndexFile(context.Background(), big)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = idx.IndexFile(context.Background(), root)
	assert.ErrorIs(t, err, ErrNotAFile)
}

func TestRemoveTree(t *testing.T) {
	s := newRecordingStore(t)
	ctx := context.Background()
	for _, p := range []string{"/notes/work/a.md", "/notes/work/sub/b.md", "/notes/home/c.md"} {
		_, err := s.SaveFile(ctx, p, "", "text")
		require.NoError(t, err)
	}

	n, err := New(s, Config{}).RemoveTree(ctx, "/notes/work")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"/notes/home/c.md"}, storedPaths(t, s))
}

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/root/notes/a.md", false},
		{"/root/notes/sub/b.txt", false},
		{"/root/notes/.hidden.md", true},
		{"/root/notes/.git/config", true},
		{"/root/notes/node_modules/x.md", true},
		{"/root/notes/img/photo.JPG", true},
		{"/root/notes/a.md~", true},
		{"/root/notes", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldIgnore("/root/notes", tt.path))
		})
	}

	// A hidden directory above the root does not hide everything
	assert.False(t, ShouldIgnore("/home/me/.notes", "/home/me/.notes/a.md"))
}
