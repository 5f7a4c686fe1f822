package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Provider constants
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
	ProviderNone   = "none"

	// Default models
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultHashModel   = "hash-384"

	// Dimensions
	HashDimension = 384

	// Batch sizes
	DefaultBatchSize = 100
	MaxBatchSize     = 2048

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// HashProvider is a deterministic offline embedder. Each word is hashed into
// one of a fixed number of buckets with a sign bit and the result is
// normalized, so texts sharing vocabulary get similar vectors. It needs no
// network and is what tests and air-gapped setups use.
type HashProvider struct {
	model string
	dim   int
	cache *Cache
}

// NewHashProvider creates a hashing embedder with HashDimension buckets
func NewHashProvider(cache *Cache) *HashProvider {
	return &HashProvider{
		model: DefaultHashModel,
		dim:   HashDimension,
		cache: cache,
	}
}

func (h *HashProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash := ComputeHash(req.Text)
	if h.cache != nil {
		if emb, ok := h.cache.Get(h.model, req.Text); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    h.vectorize(req.Text),
		Dimension: h.dim,
		Provider:  ProviderHash,
		Model:     h.model,
		Hash:      hash,
	}
	if h.cache != nil {
		h.cache.Set(h.model, req.Text, emb)
	}
	return emb, nil
}

func (h *HashProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := h.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderHash,
		Model:      h.model,
	}, nil
}

func (h *HashProvider) vectorize(text string) []float32 {
	vector := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New64a()
		_, _ = f.Write([]byte(w))
		sum := f.Sum64()
		idx := sum % uint64(h.dim)
		if sum>>63 == 1 {
			vector[idx]--
		} else {
			vector[idx]++
		}
	}
	return NormalizeVector(vector)
}

func (h *HashProvider) Dimension() int {
	return h.dim
}

func (h *HashProvider) Provider() string {
	return ProviderHash
}

func (h *HashProvider) Model() string {
	return h.model
}

func (h *HashProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
