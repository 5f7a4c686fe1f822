package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 150 * time.Millisecond

func newTestWatcher(t *testing.T, s *recordingStore) (*Indexer, *Watcher) {
	t.Helper()
	idx := New(s, Config{Workers: 2})
	w := NewWatcher(idx, WatcherConfig{Debounce: testDebounce})
	t.Cleanup(func() { _ = w.Stop() })
	return idx, w
}

func TestWatcher_StateTransitions(t *testing.T) {
	root := tempRoot(t)
	_, w := newTestWatcher(t, newRecordingStore(t))

	assert.Equal(t, StateStopped, w.State())
	assert.Empty(t, w.Root())

	_, err := w.Watch(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, StateWatching, w.State())
	assert.Equal(t, root, w.Root())

	require.NoError(t, w.Stop())
	assert.Equal(t, StateStopped, w.State())
	assert.Empty(t, w.Root())
	require.NoError(t, w.Stop())
}

func TestWatcher_InitialScan(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "a.md"), "alpha")
	writeFile(t, filepath.Join(root, "sub", "b.md"), "beta")

	s := newRecordingStore(t)
	_, w := newTestWatcher(t, s)

	stats, err := w.Watch(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)

	_, err = w.Watch(context.Background(), filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	root := tempRoot(t)
	s := newRecordingStore(t)
	_, w := newTestWatcher(t, s)
	_, err := w.Watch(context.Background(), root)
	require.NoError(t, err)

	path := filepath.Join(root, "today.md")
	writeFile(t, path, "first draft")
	writeFile(t, path, "second draft")

	require.Eventually(t, func() bool {
		return s.count("save:"+path) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// Nothing else is pending for the path
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, s.count("save:"+path))

	f, err := s.GetFile(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "second draft", f.Content)

	w.mu.Lock()
	assert.Empty(t, w.gens)
	assert.Empty(t, w.timers)
	w.mu.Unlock()
}

func TestWatcher_RemovesDeletedFiles(t *testing.T) {
	root := tempRoot(t)
	path := filepath.Join(root, "gone.md")
	writeFile(t, path, "short lived")

	s := newRecordingStore(t)
	_, w := newTestWatcher(t, s)
	_, err := w.Watch(context.Background(), root)
	require.NoError(t, err)

	f, err := s.GetFile(context.Background(), path)
	require.NoError(t, err)
	require.NotNil(t, f)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool {
		f, err := s.GetFile(context.Background(), path)
		return err == nil && f == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_RemovesDeletedDirectory(t *testing.T) {
	root := tempRoot(t)
	dir := filepath.Join(root, "trip")
	writeFile(t, filepath.Join(dir, "day1.md"), "arrived")
	writeFile(t, filepath.Join(dir, "day2.md"), "hiked")
	writeFile(t, filepath.Join(root, "keep.md"), "stays")

	s := newRecordingStore(t)
	_, w := newTestWatcher(t, s)
	_, err := w.Watch(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))
	require.Eventually(t, func() bool {
		files, err := s.ListFiles(context.Background())
		return err == nil && len(files) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_NewDirectory(t *testing.T) {
	root := tempRoot(t)
	s := newRecordingStore(t)
	_, w := newTestWatcher(t, s)
	_, err := w.Watch(context.Background(), root)
	require.NoError(t, err)

	path := filepath.Join(root, "new", "note.md")
	writeFile(t, path, "created with its directory")

	require.Eventually(t, func() bool {
		f, err := s.GetFile(context.Background(), path)
		return err == nil && f != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWatcher_SwitchClearsFirst(t *testing.T) {
	a := tempRoot(t)
	b := tempRoot(t)
	writeFile(t, filepath.Join(a, "old.md"), "from the first directory")
	writeFile(t, filepath.Join(b, "new.md"), "from the second directory")

	s := newRecordingStore(t)
	idx, w := newTestWatcher(t, s)

	var filesAtClear atomic.Int64
	filesAtClear.Store(-1)
	idx.OnChange(func(c Change) {
		if c.Kind != ChangeCleared {
			return
		}
		stats, err := s.GetStats(context.Background())
		if err == nil {
			filesAtClear.Store(int64(stats.FileCount))
		}
	})

	ctx := context.Background()
	_, err := w.Watch(ctx, a)
	require.NoError(t, err)
	_, err = w.Watch(ctx, b)
	require.NoError(t, err)

	ops := s.Ops()
	clearAt := indexOf(ops, "clear")
	require.GreaterOrEqual(t, clearAt, 0, "switching directories clears the index")
	for i, op := range ops {
		if strings.HasPrefix(op, "save:"+b) {
			assert.Greater(t, i, clearAt, "no file from the new directory is saved before the clear")
		}
	}
	assert.Equal(t, int64(0), filesAtClear.Load())

	files, err := s.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(b, "new.md"), files[0].Path)
}

func TestWatcher_SubdirectoryIsNotASwitch(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "top.md"), "top level")
	writeFile(t, filepath.Join(root, "work", "plan.md"), "work plan")

	s := newRecordingStore(t)
	_, w := newTestWatcher(t, s)
	ctx := context.Background()

	_, err := w.Watch(ctx, root)
	require.NoError(t, err)
	_, err = w.Watch(ctx, filepath.Join(root, "work"))
	require.NoError(t, err)

	assert.Equal(t, -1, indexOf(s.Ops(), "clear"))
}

func TestWatcher_SwitchRemembered(t *testing.T) {
	a := tempRoot(t)
	b := tempRoot(t)
	s := newRecordingStore(t)
	ctx := context.Background()

	_, first := newTestWatcher(t, s)
	_, err := first.Watch(ctx, a)
	require.NoError(t, err)
	require.NoError(t, first.Stop())

	// A new watcher over the same store sees the previous root
	_, second := newTestWatcher(t, s)
	_, err = second.Watch(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 1, s.count("clear"))
}

func TestWatcher_StopCancelsPending(t *testing.T) {
	root := tempRoot(t)
	s := newRecordingStore(t)
	_, w := newTestWatcher(t, s)
	_, err := w.Watch(context.Background(), root)
	require.NoError(t, err)

	path := filepath.Join(root, "late.md")
	writeFile(t, path, "written right before stopping")
	require.NoError(t, w.Stop())

	time.Sleep(3 * testDebounce)
	assert.Equal(t, 0, s.count("save:"+path))
}

func TestWatcher_Close(t *testing.T) {
	root := tempRoot(t)
	_, w := newTestWatcher(t, newRecordingStore(t))
	_, err := w.Watch(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.Equal(t, StateStopped, w.State())

	_, err = w.Watch(context.Background(), root)
	assert.ErrorIs(t, err, ErrWatcherStopped)
}

func indexOf(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}
