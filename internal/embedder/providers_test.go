package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHashProvider(nil)
	ctx := context.Background()

	a, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "Kayak trip on the lake"})
	require.NoError(t, err)
	b, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "kayak TRIP on the lake!"})
	require.NoError(t, err)

	assert.Len(t, a.Vector, HashDimension)
	assert.Equal(t, HashDimension, a.Dimension)
	assert.Equal(t, ProviderHash, a.Provider)
	assert.Equal(t, DefaultHashModel, a.Model)
	assert.Equal(t, a.Vector, b.Vector, "case and punctuation should not matter")
	assert.InDelta(t, 1.0, math.Sqrt(dot(a.Vector, a.Vector)), 1e-5)
}

func TestHashProvider_SharedVocabularyIsCloser(t *testing.T) {
	p := NewHashProvider(nil)
	ctx := context.Background()

	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{
		"paddled the kayak across the lake",
		"kayak lake paddled",
		"tomato soup recipe with basil",
	}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)

	q := resp.Embeddings[0].Vector
	assert.Greater(t, dot(q, resp.Embeddings[1].Vector), dot(q, resp.Embeddings[2].Vector))
}

func TestHashProvider_UsesCache(t *testing.T) {
	cache := NewCache(10)
	p := NewHashProvider(cache)

	_, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "cached text"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Size())

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "cached text"})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Size())
}

func TestHashProvider_Errors(t *testing.T) {
	p := NewHashProvider(nil)

	_, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyText)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
