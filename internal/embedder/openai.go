package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIProvider embeds through any OpenAI-compatible /embeddings endpoint
// (OpenAI, LM Studio, Ollama, llama.cpp server).
type OpenAIProvider struct {
	model    string
	embedder embeddings.Embedder
	cache    *Cache
	retry    RetryConfig
	dim      atomic.Int64
	logger   *slog.Logger
}

// NewOpenAIProvider builds the langchaingo client for cfg. Local servers that
// need no key get the placeholder token "none".
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, batchSize, MaxBatchSize)
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return newOpenAIProvider(model, emb, cache, cfg.Dimension), nil
}

func newOpenAIProvider(model string, emb embeddings.Embedder, cache *Cache, dim int) *OpenAIProvider {
	p := &OpenAIProvider{
		model:    model,
		embedder: emb,
		cache:    cache,
		retry:    DefaultRetryConfig(),
		logger:   slog.Default().With("component", "openai-embedder"),
	}
	p.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		p.logger.Warn("embedding request failed, retrying", "attempt", attempt, "delay", delay, "err", err)
	}
	p.dim.Store(int64(dim))
	return p
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

// GenerateBatch serves cached texts locally and sends the rest in one call.
func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	results := make([]*Embedding, len(req.Texts))
	var (
		missTexts   []string
		missIndexes []int
	)
	for i, text := range req.Texts {
		if o.cache != nil {
			if emb, ok := o.cache.Get(o.model, text); ok {
				results[i] = emb
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIndexes = append(missIndexes, i)
	}

	if len(missTexts) > 0 {
		vectors, err := retryWithBackoff(ctx, o.retry, func() ([][]float32, error) {
			return o.embedder.EmbedDocuments(ctx, missTexts)
		})
		if err != nil {
			o.logger.Error("failed to generate embeddings", "count", len(missTexts), "err", err)
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		if len(vectors) != len(missTexts) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vectors), len(missTexts))
		}

		for j, vector := range vectors {
			if len(vector) == 0 {
				return nil, fmt.Errorf("%w: empty vector for text %d", ErrProviderFailed, missIndexes[j])
			}
			o.dim.CompareAndSwap(0, int64(len(vector)))
			hash := ComputeHash(missTexts[j])
			emb := &Embedding{
				Vector:    vector,
				Dimension: len(vector),
				Provider:  ProviderOpenAI,
				Model:     o.model,
				Hash:      hash,
			}
			if o.cache != nil {
				o.cache.Set(o.model, missTexts[j], emb)
			}
			results[missIndexes[j]] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: results,
		Provider:   ProviderOpenAI,
		Model:      o.model,
	}, nil
}

func (o *OpenAIProvider) Dimension() int {
	return int(o.dim.Load())
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	if o.cache != nil {
		o.cache.Clear()
	}
	return nil
}
