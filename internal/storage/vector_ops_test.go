package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeVector_RoundTrip(t *testing.T) {
	v := []float32{0, 1.5, -2.25, math.MaxFloat32, math.SmallestNonzeroFloat32}
	blob := serializeVector(v)
	assert.Len(t, blob, len(v)*4)
	assert.Equal(t, v, deserializeVector(blob))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"empty", nil, []float32{1}, 0},
		{"shared prefix", []float32{1, 0, 5}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func saveAndListPending(t *testing.T, s *SQLiteStore, contents ...string) []PendingChunk {
	t.Helper()
	ctx := context.Background()
	for i, c := range contents {
		_, err := s.SaveFile(ctx, "/notes/"+string(rune('a'+i))+".txt", "", c)
		require.NoError(t, err)
	}
	pending, err := s.ListChunksNeedingEmbeddings(ctx, "m", 100)
	require.NoError(t, err)
	require.Len(t, pending, len(contents))
	return pending
}

func TestUpsertEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pending := saveAndListPending(t, s, "first chunk of text")
	id := pending[0].ChunkID

	err := s.UpsertEmbedding(ctx, id, []float32{1, 2, 3}, 2, "m")
	assert.ErrorIs(t, err, ErrInvalidVector)

	err = s.UpsertEmbedding(ctx, id+1000, []float32{1, 2}, 2, "m")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertEmbedding(ctx, id, []float32{1, 2}, 2, "m"))
	require.NoError(t, s.UpsertEmbedding(ctx, id, []float32{3, 4}, 2, "m"))
	require.NoError(t, s.UpsertEmbedding(ctx, id, []float32{5, 6, 7}, 3, "other"))

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EmbeddingCount, "one vector per chunk and model")

	vectors, err := s.GetEmbeddings(ctx, []int64{id, id + 1000}, "m")
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float32{3, 4}, vectors[id])

	pending, err = s.ListChunksNeedingEmbeddings(ctx, "m", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = s.ListChunksNeedingEmbeddings(ctx, "third", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "pending is per model")
}

func TestListChunksNeedingEmbeddingsAfter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pending := saveAndListPending(t, s, "alpha text", "bravo text", "charlie text")

	page, err := s.ListChunksNeedingEmbeddingsAfter(ctx, "m", pending[0].ChunkID, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, pending[1].ChunkID, page[0].ChunkID)

	page, err = s.ListChunksNeedingEmbeddingsAfter(ctx, "m", pending[2].ChunkID, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestNearestEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	pending := saveAndListPending(t, s, "east facing", "north facing", "north east facing")

	require.NoError(t, s.UpsertEmbedding(ctx, pending[0].ChunkID, []float32{1, 0}, 2, "m"))
	require.NoError(t, s.UpsertEmbedding(ctx, pending[1].ChunkID, []float32{0, 1}, 2, "m"))
	require.NoError(t, s.UpsertEmbedding(ctx, pending[2].ChunkID, []float32{1, 1}, 2, "m"))
	require.NoError(t, s.UpsertEmbedding(ctx, pending[1].ChunkID, []float32{1, 0, 0}, 3, "wide"))

	nearest, err := s.NearestEmbeddings(ctx, "m", []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, nearest, 2)
	assert.Equal(t, pending[0].ChunkID, nearest[0].ChunkID)
	assert.Equal(t, pending[2].ChunkID, nearest[1].ChunkID)
	assert.Greater(t, nearest[0].Similarity, nearest[1].Similarity)
	assert.Equal(t, []float32{1, 0}, nearest[0].Vector)

	nearest, err = s.NearestEmbeddings(ctx, "m", nil, 2)
	require.NoError(t, err)
	assert.Empty(t, nearest)
}
