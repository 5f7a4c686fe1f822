package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/notecontext/internal/storage"
)

// recordingStore wraps a real store and records mutating calls in order.
type recordingStore struct {
	*storage.SQLiteStore

	mu       sync.Mutex
	ops      []string
	failPath string
}

func (r *recordingStore) record(op string) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func (r *recordingStore) SaveFile(ctx context.Context, path, name, content string) (*storage.File, error) {
	if r.failPath != "" && path == r.failPath {
		return nil, os.ErrPermission
	}
	r.record("save:" + path)
	return r.SQLiteStore.SaveFile(ctx, path, name, content)
}

func (r *recordingStore) DeleteFileByPath(ctx context.Context, path string) (bool, error) {
	r.record("delete:" + path)
	return r.SQLiteStore.DeleteFileByPath(ctx, path)
}

func (r *recordingStore) ClearAllContent(ctx context.Context) error {
	r.record("clear")
	return r.SQLiteStore.ClearAllContent(ctx)
}

func (r *recordingStore) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *recordingStore) count(op string) int {
	n := 0
	for _, o := range r.Ops() {
		if o == op {
			n++
		}
	}
	return n
}

func newRecordingStore(t *testing.T) *recordingStore {
	t.Helper()
	s, err := storage.NewSQLiteStore(storage.MemoryPath, storage.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return &recordingStore{SQLiteStore: s}
}

// tempRoot returns a normalized temporary directory.
func tempRoot(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	root, err := storage.NormalizePath(dir)
	require.NoError(t, err)
	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// touch moves the modification time forward so NeedsProcessing sees a change
func touch(t *testing.T, path string, d time.Duration) {
	t.Helper()
	future := time.Now().Add(d)
	require.NoError(t, os.Chtimes(path, future, future))
}
