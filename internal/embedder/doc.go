// Package embedder turns note passages and search queries into vectors.
//
// Two providers are available:
//
//   - openai: any server speaking the OpenAI /embeddings API (OpenAI itself,
//     LM Studio, Ollama, llama.cpp). Requests go through langchaingo. The
//     vector dimension is learned from the first response.
//   - hash: a deterministic feature-hashing embedder that needs no network.
//     Texts that share words get similar vectors. Useful offline and in tests.
//
// The "none" provider disables embeddings entirely; New returns
// ErrNoProviderEnabled and retrieval runs lexical-only.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider: "openai",
//	    BaseURL:  "http://localhost:1234/v1",
//	    Model:    "nomic-embed-text",
//	})
//	if errors.Is(err, embedder.ErrNoProviderEnabled) {
//	    // lexical-only
//	}
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{
//	    Texts: []string{passage1, passage2},
//	})
//
// Results keep input order. Vectors are cached in an LRU keyed by the
// SHA-256 of the text, and transient provider failures are retried with
// exponential backoff before ErrProviderFailed is returned.
package embedder
