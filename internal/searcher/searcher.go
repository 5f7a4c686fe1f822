package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/notecontext/internal/chunker"
	"github.com/dshills/notecontext/internal/dateparse"
	"github.com/dshills/notecontext/internal/embedder"
	"github.com/dshills/notecontext/internal/llm"
	"github.com/dshills/notecontext/internal/storage"
	"github.com/dshills/notecontext/pkg/types"
)

// NothingFoundAnswer is returned instead of calling the model when retrieval
// produced no passages and no pinned files.
const NothingFoundAnswer = "I couldn't find anything relevant in your notes."

var (
	ErrEmptyQuery  = errors.New("query cannot be empty")
	ErrNoChatModel = errors.New("no chat model configured")
)

// Store is the part of the content store the retriever reads.
type Store interface {
	SearchFTS(ctx context.Context, query string, limit int, dateRange *types.DateRange) ([]storage.ChunkMatch, error)
	Search(ctx context.Context, query string, limit int) ([]storage.ChunkMatch, error)
	GetChunks(ctx context.Context, chunkIDs []int64) ([]storage.ChunkMatch, error)
	GetEmbeddings(ctx context.Context, chunkIDs []int64, model string) (map[int64][]float32, error)
	NearestEmbeddings(ctx context.Context, model string, query []float32, limit int) ([]storage.ScoredChunk, error)
	ListPinnedFiles(ctx context.Context) ([]*storage.File, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]storage.Message, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) (*storage.Message, error)
}

// Config holds the retrieval heuristics. The defaults are tuned values, not
// derived ones.
type Config struct {
	LexicalWeight      float64
	VectorWeight       float64
	PerFileCap         int
	CharBudget         int
	Candidates         int
	HistoryTurns       int
	PinnedSnippetChars int
	CacheSize          int
	CacheTTL           time.Duration // 0 disables the retrieval cache
	SystemPrompt       string
	Logger             *slog.Logger // defaults to slog.Default()
}

// DefaultSystemPrompt instructs the model to answer from the numbered passages.
const DefaultSystemPrompt = `You are a helpful assistant answering questions about the user's personal notes.
Answer using only the numbered passages provided. Cite passages by number like [1].
If the passages do not contain the answer, say so plainly.`

// DefaultConfig returns the default retrieval configuration
func DefaultConfig() Config {
	return Config{
		LexicalWeight:      0.4,
		VectorWeight:       0.6,
		PerFileCap:         2,
		CharBudget:         2400,
		Candidates:         20,
		HistoryTurns:       6,
		PinnedSnippetChars: 300,
		CacheSize:          256,
		CacheTTL:           5 * time.Minute,
		SystemPrompt:       DefaultSystemPrompt,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.LexicalWeight < 0 {
		c.LexicalWeight = d.LexicalWeight
	}
	if c.VectorWeight < 0 {
		c.VectorWeight = d.VectorWeight
	}
	if c.LexicalWeight == 0 && c.VectorWeight == 0 {
		c.LexicalWeight, c.VectorWeight = d.LexicalWeight, d.VectorWeight
	}
	if c.PerFileCap <= 0 {
		c.PerFileCap = d.PerFileCap
	}
	if c.CharBudget <= 0 {
		c.CharBudget = d.CharBudget
	}
	if c.Candidates <= 0 {
		c.Candidates = d.Candidates
	}
	if c.HistoryTurns < 0 {
		c.HistoryTurns = d.HistoryTurns
	}
	if c.PinnedSnippetChars <= 0 {
		c.PinnedSnippetChars = d.PinnedSnippetChars
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
}

// Retrieval is the ranked, capped context for one query
type Retrieval struct {
	Query        string
	SearchQuery  string // query with date phrases removed
	DateRange    *types.DateRange
	Results      []types.SearchResult
	Pinned       []types.SearchResult
	LexicalCount int
	VectorCount  int
	UsedVectors  bool
	CacheHit     bool
	Duration     time.Duration
}

// Empty reports whether there is nothing to ground an answer on
func (r *Retrieval) Empty() bool {
	return len(r.Results) == 0 && len(r.Pinned) == 0
}

// Passages returns pinned passages followed by ranked ones, in prompt order.
func (r *Retrieval) Passages() []types.SearchResult {
	out := make([]types.SearchResult, 0, len(r.Pinned)+len(r.Results))
	out = append(out, r.Pinned...)
	return append(out, r.Results...)
}

// Sources returns the attribution list in prompt order
func (r *Retrieval) Sources() []types.Source {
	passages := r.Passages()
	sources := make([]types.Source, len(passages))
	for i := range passages {
		sources[i] = passages[i].Source()
	}
	return sources
}

// Request is one question, optionally inside a conversation
type Request struct {
	Query   string
	History []llm.Message
	Now     time.Time // zero means time.Now()
}

// Answer is the model's reply plus what it was grounded on
type Answer struct {
	Text         string           `json:"answer"`
	Sources      []types.Source   `json:"sources"`
	DateRange    *types.DateRange `json:"-"`
	NothingFound bool             `json:"nothing_found,omitempty"`
	Retrieval    *Retrieval       `json:"-"`
}

type cacheEntry struct {
	retrieval *Retrieval
	expiresAt time.Time
}

// Searcher is the hybrid retriever. The embedder and chat client are
// optional; without an embedder retrieval is lexical-only and without a
// chat client only Retrieve is usable.
type Searcher struct {
	store    Store
	embedder embedder.Embedder
	chat     llm.Client
	cfg      Config
	logger   *slog.Logger

	cache   *lru.Cache[[32]byte, *cacheEntry]
	cacheMu sync.Mutex
}

// New creates a Searcher
func New(store Store, emb embedder.Embedder, chat llm.Client, cfg Config) *Searcher {
	cfg.applyDefaults()
	cache, err := lru.New[[32]byte, *cacheEntry](cfg.CacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "searcher")
	}
	return &Searcher{
		store:    store,
		embedder: emb,
		chat:     chat,
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
	}
}

// Config returns the effective configuration
func (s *Searcher) Config() Config {
	return s.cfg
}

// Retrieve runs lexical and semantic retrieval for query and returns the
// fused, per-file capped and budgeted passages plus pinned snippets.
// Individual retrieval paths that fail are logged and skipped.
func (s *Searcher) Retrieve(ctx context.Context, query string, now time.Time) (*Retrieval, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if now.IsZero() {
		now = time.Now()
	}

	r := &Retrieval{Query: query, SearchQuery: query}
	if dr := dateparse.Extract(query, now); dr != nil {
		r.DateRange = dr
		r.SearchQuery = dateparse.Strip(query)
	}

	key := cacheKey(r.SearchQuery, r.DateRange)
	if cached := s.checkCache(key); cached != nil {
		cached.Pinned = s.pinnedPassages(ctx)
		cached.CacheHit = true
		cached.Duration = time.Since(start)
		return cached, nil
	}

	var (
		lexical  []storage.ChunkMatch
		queryVec []float32
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical = s.lexicalSearch(gctx, r.SearchQuery, r.DateRange)
		return nil
	})
	if s.embedder != nil && r.SearchQuery != "" {
		g.Go(func() error {
			emb, err := s.embedder.GenerateEmbedding(gctx, embedder.EmbeddingRequest{Text: r.SearchQuery})
			if err != nil {
				s.logger.Warn("query embedding failed, using lexical results only", "err", err)
				return nil
			}
			queryVec = emb.Vector
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.LexicalCount = len(lexical)

	var similarities map[int64]float64
	var vectorOnly []storage.ChunkMatch
	if queryVec != nil {
		similarities, vectorOnly = s.vectorScores(ctx, queryVec, lexical, r.DateRange)
		r.UsedVectors = len(similarities) > 0
		r.VectorCount = len(similarities)
	}

	fused := s.fuse(lexical, vectorOnly, similarities)
	r.Results = s.capAndBudget(fused)
	r.Pinned = s.pinnedPassages(ctx)
	r.Duration = time.Since(start)

	s.storeInCache(key, r)
	return r, nil
}

// lexicalSearch prefers the ranked full-text index and falls back to the
// substring scan when it errors or finds nothing.
func (s *Searcher) lexicalSearch(ctx context.Context, query string, dr *types.DateRange) []storage.ChunkMatch {
	matches, err := s.store.SearchFTS(ctx, query, s.cfg.Candidates, dr)
	if err != nil {
		s.logger.Warn("full-text search failed, falling back to substring search", "err", err)
	}
	if len(matches) > 0 || query == "" {
		return matches
	}

	fallback, err := s.store.Search(ctx, query, s.cfg.Candidates)
	if err != nil {
		s.logger.Warn("substring search failed", "err", err)
		return nil
	}
	if dr == nil {
		return fallback
	}
	filtered := fallback[:0]
	for _, m := range fallback {
		if m.NoteDate != "" && dr.ContainsDay(m.NoteDate) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// vectorScores computes cosine similarity for the lexical candidates, or for
// the nearest stored vectors when there are no candidates.
func (s *Searcher) vectorScores(ctx context.Context, queryVec []float32, lexical []storage.ChunkMatch, dr *types.DateRange) (map[int64]float64, []storage.ChunkMatch) {
	model := s.embedder.Model()
	scores := make(map[int64]float64)

	if len(lexical) > 0 {
		ids := make([]int64, len(lexical))
		for i, m := range lexical {
			ids[i] = m.ChunkID
		}
		vectors, err := s.store.GetEmbeddings(ctx, ids, model)
		if err != nil {
			s.logger.Warn("failed to load candidate embeddings", "err", err)
			return nil, nil
		}
		for id, vec := range vectors {
			scores[id] = storage.CosineSimilarity(queryVec, vec)
		}
		return scores, nil
	}

	nearest, err := s.store.NearestEmbeddings(ctx, model, queryVec, s.cfg.Candidates)
	if err != nil {
		s.logger.Warn("global vector search failed", "err", err)
		return nil, nil
	}
	ids := make([]int64, 0, len(nearest))
	for _, n := range nearest {
		if n.Similarity <= 0 {
			continue
		}
		scores[n.ChunkID] = n.Similarity
		ids = append(ids, n.ChunkID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, err := s.store.GetChunks(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load vector matches", "err", err)
		return nil, nil
	}
	if dr != nil {
		kept := chunks[:0]
		for _, c := range chunks {
			if c.NoteDate != "" && dr.ContainsDay(c.NoteDate) {
				kept = append(kept, c)
			} else {
				delete(scores, c.ChunkID)
			}
		}
		chunks = kept
	}
	return scores, chunks
}

// fuse merges both legs by chunk id:
// score = lexicalWeight*(n-i)/n + vectorWeight*max(0, cosine).
func (s *Searcher) fuse(lexical, vectorOnly []storage.ChunkMatch, similarities map[int64]float64) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(lexical)+len(vectorOnly))
	seen := make(map[int64]bool, len(lexical))
	n := float64(len(lexical))

	for i, m := range lexical {
		lex := (n - float64(i)) / n
		vec := clampPositive(similarities[m.ChunkID])
		results = append(results, toResult(m, lex, vec, s.cfg.LexicalWeight*lex+s.cfg.VectorWeight*vec))
		seen[m.ChunkID] = true
	}
	for _, m := range vectorOnly {
		if seen[m.ChunkID] {
			continue
		}
		vec := clampPositive(similarities[m.ChunkID])
		if vec == 0 {
			continue
		}
		results = append(results, toResult(m, 0, vec, s.cfg.VectorWeight*vec))
		seen[m.ChunkID] = true
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// capAndBudget walks the ranked list keeping at most PerFileCap passages per
// file and skipping passages that would overflow the character budget.
func (s *Searcher) capAndBudget(ranked []types.SearchResult) []types.SearchResult {
	perFile := make(map[int64]int)
	used := 0
	out := make([]types.SearchResult, 0, len(ranked))

	for _, r := range ranked {
		if perFile[r.FileID] >= s.cfg.PerFileCap {
			continue
		}
		size := utf8.RuneCountInString(r.Content)
		if used+size > s.cfg.CharBudget && len(out) > 0 {
			continue
		}
		perFile[r.FileID]++
		used += size
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out
}

// pinnedPassages returns the leading snippet of every pinned file.
func (s *Searcher) pinnedPassages(ctx context.Context) []types.SearchResult {
	files, err := s.store.ListPinnedFiles(ctx)
	if err != nil {
		s.logger.Warn("failed to load pinned files", "err", err)
		return nil
	}

	out := make([]types.SearchResult, 0, len(files))
	for _, f := range files {
		text := leading(chunker.NormalizeWhitespace(f.Content), s.cfg.PinnedSnippetChars)
		if text == "" {
			continue
		}
		out = append(out, types.SearchResult{
			FileID:   f.ID,
			Rank:     len(out) + 1,
			Path:     f.Path,
			Name:     f.Name,
			Content:  text,
			NoteDate: f.EffectiveDate(),
			Pinned:   true,
		})
	}
	return out
}

func toResult(m storage.ChunkMatch, lex, vec, score float64) types.SearchResult {
	return types.SearchResult{
		ChunkID:      m.ChunkID,
		FileID:       m.FileID,
		LexicalScore: lex,
		VectorScore:  vec,
		Score:        score,
		Path:         m.Path,
		Name:         m.Name,
		HeadingPath:  m.HeadingPath,
		Content:      m.Content,
		Snippet:      m.Snippet,
		NoteDate:     m.NoteDate,
	}
}

func clampPositive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// leading returns the first n runes of s, cut back to a word boundary.
func leading(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	cut := string([]rune(s)[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

func cacheKey(query string, dr *types.DateRange) [32]byte {
	var data strings.Builder
	data.WriteString(strings.ToLower(query))
	data.WriteString("|")
	if dr != nil {
		data.WriteString(dr.String())
	}
	return sha256.Sum256([]byte(data.String()))
}

func (s *Searcher) checkCache(key [32]byte) *Retrieval {
	if s.cfg.CacheTTL <= 0 {
		return nil
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache.Get(key)
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		s.cache.Remove(key)
		return nil
	}
	return copyRetrieval(entry.retrieval)
}

func (s *Searcher) storeInCache(key [32]byte, r *Retrieval) {
	if s.cfg.CacheTTL <= 0 {
		return
	}
	s.cacheMu.Lock()
	s.cache.Add(key, &cacheEntry{retrieval: copyRetrieval(r), expiresAt: time.Now().Add(s.cfg.CacheTTL)})
	s.cacheMu.Unlock()
}

// InvalidateCache drops every cached retrieval. Called whenever the indexed
// content changes.
func (s *Searcher) InvalidateCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

func copyRetrieval(src *Retrieval) *Retrieval {
	dst := *src
	dst.Results = append([]types.SearchResult(nil), src.Results...)
	dst.Pinned = append([]types.SearchResult(nil), src.Pinned...)
	if src.DateRange != nil {
		dr := *src.DateRange
		dst.DateRange = &dr
	}
	return &dst
}
