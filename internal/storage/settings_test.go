package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "k", "v1"))
	require.NoError(t, s.SetSetting(ctx, "k", "v2"))
	v, ok, err := s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestPinnedFiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"/notes/a.md", "/notes/b.md"} {
		_, err := s.SaveFile(ctx, p, "", "content of "+p)
		require.NoError(t, err)
	}

	require.NoError(t, s.PinFile(ctx, "/notes/b.md"))
	require.NoError(t, s.PinFile(ctx, "/notes/sub/../a.md"))
	require.NoError(t, s.PinFile(ctx, "/notes/b.md"))
	require.NoError(t, s.PinFile(ctx, "/notes/not-indexed.md"))

	pinned, err := s.ListPinnedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, pinned, 2)
	assert.Equal(t, "/notes/b.md", pinned[0].Path)
	assert.Equal(t, "/notes/a.md", pinned[1].Path)
	assert.Equal(t, "content of /notes/a.md", pinned[1].Content)

	raw, ok, err := s.GetSetting(ctx, SettingPinnedFiles)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `["/notes/b.md","/notes/a.md","/notes/not-indexed.md"]`, raw)

	require.NoError(t, s.UnpinFile(ctx, "/notes/b.md"))
	pinned, err = s.ListPinnedFiles(ctx)
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, "/notes/a.md", pinned[0].Path)
}

func TestPinnedFiles_Empty(t *testing.T) {
	s := newTestStore(t)
	pinned, err := s.ListPinnedFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pinned)

	require.NoError(t, s.UnpinFile(context.Background(), "/notes/none.md"))
}
