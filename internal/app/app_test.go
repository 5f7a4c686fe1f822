package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/dshills/notecontext/internal/config"
	"github.com/dshills/notecontext/internal/embedpool"
	"github.com/dshills/notecontext/internal/mcp"
	"github.com/dshills/notecontext/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(cfg.DataDir, "notes.db")
	cfg.NotesDir = notes
	cfg.Log.Level = "error"
	return cfg
}

func TestAppModule(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.NotesDir, "boat.md"),
		[]byte("Repainted the hull of the sailboat before launch."), 0o644))

	var (
		svc  *service.Service
		srv  *mcp.Server
		pool *embedpool.Pool
	)
	app := New(cfg, "test", fx.Populate(&svc, &srv, &pool))

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	defer func() {
		require.NoError(t, app.Stop(ctx))
	}()

	assert.NotNil(t, srv)
	require.NotNil(t, pool)
	assert.FileExists(t, cfg.DBPath)

	stats, err := svc.Index(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)

	processed, _, err := svc.EmbedPending(ctx)
	require.NoError(t, err)
	assert.Positive(t, processed)

	r, err := svc.Search(ctx, "sailboat hull", 5)
	require.NoError(t, err)
	require.NotEmpty(t, r.Results)
	assert.Equal(t, "boat.md", r.Results[0].Name)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hash-384", st.EmbeddingModel)
	assert.Empty(t, st.ChatModel)
}

func TestAppModule_EmbeddingDropsCachedRetrieval(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.NotesDir, "garden.md"),
		[]byte("Planted tomatoes and basil along the south fence."), 0o644))

	var svc *service.Service
	app := New(cfg, "test", fx.Populate(&svc))

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	defer func() {
		require.NoError(t, app.Stop(ctx))
	}()

	_, err := svc.Index(ctx, "")
	require.NoError(t, err)

	before, err := svc.Search(ctx, "tomatoes basil", 5)
	require.NoError(t, err)
	assert.False(t, before.UsedVectors)
	assert.False(t, before.CacheHit)

	processed, _, err := svc.EmbedPending(ctx)
	require.NoError(t, err)
	require.Positive(t, processed)

	after, err := svc.Search(ctx, "tomatoes basil", 5)
	require.NoError(t, err)
	assert.False(t, after.CacheHit)
	assert.True(t, after.UsedVectors)
}

func TestAppModule_EmbeddingsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "none"

	var (
		svc  *service.Service
		pool *embedpool.Pool
	)
	app := New(cfg, "test", Background, fx.Populate(&svc, &pool))

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	defer func() {
		require.NoError(t, app.Stop(ctx))
	}()

	assert.Nil(t, pool)
	_, _, err := svc.EmbedPending(ctx)
	assert.ErrorIs(t, err, service.ErrEmbeddingsDisabled)
}

func TestAppModule_Background(t *testing.T) {
	cfg := testConfig(t)

	var pool *embedpool.Pool
	app := New(cfg, "test", Background, fx.Populate(&pool))

	ctx := context.Background()
	require.NoError(t, app.Start(ctx))
	require.NotNil(t, pool)
	assert.True(t, pool.Stats().Running)
	require.NoError(t, app.Stop(ctx))
}

func TestNewChatClient(t *testing.T) {
	cfg := config.Default()
	client, err := NewChatClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, client)

	cfg.LLM.Model = "llama-3.1-8b-instruct"
	client, err = NewChatClient(cfg)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.Equal(t, "llama-3.1-8b-instruct", client.Model())
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "loud"
	_, err := NewLogger(cfg)
	assert.Error(t, err)
}
