package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("hash", func(t *testing.T) {
		emb, err := New(Config{Provider: "Hash", CacheSize: 10})
		require.NoError(t, err)
		assert.Equal(t, ProviderHash, emb.Provider())
		assert.Equal(t, HashDimension, emb.Dimension())
	})

	t.Run("openai defaults", func(t *testing.T) {
		emb, err := New(Config{Provider: "openai", BaseURL: "http://127.0.0.1:1/v1"})
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, DefaultOpenAIModel, emb.Model())
		assert.Equal(t, 0, emb.Dimension())
	})

	t.Run("batch too large", func(t *testing.T) {
		_, err := New(Config{Provider: "openai", BatchSize: MaxBatchSize + 1})
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("disabled", func(t *testing.T) {
		for _, p := range []string{"", "none", " NONE "} {
			emb, err := New(Config{Provider: p})
			assert.ErrorIs(t, err, ErrNoProviderEnabled)
			assert.Nil(t, emb)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{Provider: "jina"})
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})
}
