package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // openai, hash or none
	BaseURL   string // OpenAI-compatible server, e.g. http://localhost:1234/v1
	APIKey    string
	Model     string
	Dimension int // Optional; learned from the first response when 0
	BatchSize int
	CacheSize int
}

// New creates an embedder for cfg. The "none" provider (or an empty one)
// returns ErrNoProviderEnabled; callers then run without the vector leg.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderHash:
		return NewHashProvider(cache), nil
	case ProviderNone, "":
		return nil, ErrNoProviderEnabled
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}
