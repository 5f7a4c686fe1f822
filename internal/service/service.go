// Package service is the application facade shared by the MCP server, the
// HTTP API and the CLI. It ties the store, indexer, watcher, searcher and
// embedding pool together behind task-level operations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dshills/notecontext/internal/embedpool"
	"github.com/dshills/notecontext/internal/indexer"
	"github.com/dshills/notecontext/internal/searcher"
	"github.com/dshills/notecontext/internal/storage"
)

// Deps holds the components a Service drives. Pool may be nil when
// embeddings are disabled.
type Deps struct {
	Store     storage.Store
	Indexer   *indexer.Indexer
	Watcher   *indexer.Watcher
	Searcher  *searcher.Searcher
	Pool      *embedpool.Pool
	NotesDir  string
	ChatModel string
	Logger    *slog.Logger
}

// Service implements the user-facing operations.
type Service struct {
	store     storage.Store
	indexer   *indexer.Indexer
	watcher   *indexer.Watcher
	searcher  *searcher.Searcher
	pool      *embedpool.Pool
	notesDir  string
	chatModel string
	logger    *slog.Logger
}

// New creates a Service
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default().With("component", "service")
	}
	return &Service{
		store:     d.Store,
		indexer:   d.Indexer,
		watcher:   d.Watcher,
		searcher:  d.Searcher,
		pool:      d.Pool,
		notesDir:  d.NotesDir,
		chatModel: d.ChatModel,
		logger:    logger,
	}
}

// NotesRoot is the watched directory, or the configured one when the
// watcher is stopped.
func (s *Service) NotesRoot() string {
	if s.watcher != nil {
		if root := s.watcher.Root(); root != "" {
			return root
		}
	}
	return s.notesDir
}

func (s *Service) resolveDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = s.NotesRoot()
	}
	if dir == "" {
		return "", ErrNoNotesDir
	}
	return storage.NormalizePath(dir)
}

// Index scans dir (the notes root when empty) and wakes the embedding pool.
func (s *Service) Index(ctx context.Context, dir string) (*indexer.Statistics, error) {
	root, err := s.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	stats, err := s.indexer.Scan(ctx, root)
	if err != nil {
		return nil, err
	}
	s.triggerEmbeddings()
	return stats, nil
}

// Watch switches the watcher to dir (the configured notes directory when
// empty). Switching to an unrelated directory clears the index first.
func (s *Service) Watch(ctx context.Context, dir string) (*indexer.Statistics, error) {
	if s.watcher == nil {
		return nil, errors.New("watcher not available")
	}
	if strings.TrimSpace(dir) == "" {
		dir = s.notesDir
	}
	if dir == "" {
		return nil, ErrNoNotesDir
	}
	stats, err := s.watcher.Watch(ctx, dir)
	if err != nil {
		return nil, err
	}
	s.triggerEmbeddings()
	return stats, nil
}

// StopWatching stops the watcher
func (s *Service) StopWatching() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Stop()
}

func (s *Service) triggerEmbeddings() {
	if s.pool != nil {
		s.pool.Trigger()
	}
}

// Search retrieves passages for query without asking the chat model. A
// positive limit truncates the fused results; pinned snippets are kept.
func (s *Service) Search(ctx context.Context, query string, limit int) (*searcher.Retrieval, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "query", Message: "must not be empty"}
	}
	r, err := s.searcher.Retrieve(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(r.Results) > limit {
		r.Results = r.Results[:limit]
	}
	return r, nil
}

// AskRequest is a question, optionally inside a stored conversation.
type AskRequest struct {
	Query          string
	ConversationID string
	// NewConversation starts a conversation titled after the question
	NewConversation bool
}

// AskResponse is an answer plus the conversation it was recorded in.
type AskResponse struct {
	*searcher.Answer
	ConversationID string `json:"conversation_id,omitempty"`
}

// Ask answers a question from the notes. onChunk, when set, receives the
// reply as it is generated.
func (s *Service) Ask(ctx context.Context, req AskRequest, onChunk func(string) error) (*AskResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &ValidationError{Field: "query", Message: "must not be empty"}
	}

	convID := req.ConversationID
	if convID == "" && req.NewConversation {
		conv, err := s.store.CreateConversation(ctx, conversationTitle(req.Query))
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		if err := s.store.SetActiveConversation(ctx, conv.ID); err != nil {
			return nil, err
		}
		convID = conv.ID
	}

	ans, err := s.searcher.Ask(ctx, convID, req.Query, onChunk)
	if err != nil {
		return nil, err
	}
	return &AskResponse{Answer: ans, ConversationID: convID}, nil
}

func conversationTitle(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	if r := []rune(title); len(r) > 60 {
		title = string(r[:60]) + "…"
	}
	return title
}

// Status describes the index and its background workers.
type Status struct {
	NotesDir          string           `json:"notes_dir"`
	WatchState        string           `json:"watch_state"`
	Indexing          bool             `json:"indexing"`
	Files             int              `json:"files"`
	Chunks            int              `json:"chunks"`
	Embeddings        int              `json:"embeddings"`
	IndexSizeBytes    int64            `json:"index_size_bytes"`
	IndexSize         string           `json:"index_size"`
	SchemaVersion     string           `json:"schema_version"`
	EmbeddingModel    string           `json:"embedding_model,omitempty"`
	EmbeddingCoverage float64          `json:"embedding_coverage"`
	ChatModel         string           `json:"chat_model,omitempty"`
	Pool              *embedpool.Stats `json:"embedding_pool,omitempty"`
}

// Status collects store statistics and worker state.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stats, err := s.store.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	st := &Status{
		NotesDir:       s.NotesRoot(),
		WatchState:     string(indexer.StateStopped),
		Indexing:       s.indexer.Scanning(),
		Files:          stats.FileCount,
		Chunks:         stats.ChunkCount,
		Embeddings:     stats.EmbeddingCount,
		IndexSizeBytes: stats.IndexSizeBytes,
		IndexSize:      humanize.Bytes(uint64(max(stats.IndexSizeBytes, 0))),
		SchemaVersion:  stats.SchemaVersion,
		ChatModel:      s.chatModel,
	}
	if s.watcher != nil {
		st.WatchState = string(s.watcher.State())
	}
	if stats.ChunkCount > 0 {
		st.EmbeddingCoverage = float64(stats.EmbeddingCount) / float64(stats.ChunkCount)
	}
	if s.pool != nil {
		ps := s.pool.Stats()
		st.Pool = &ps
		st.EmbeddingModel = ps.Model
	}
	return st, nil
}

// Summary renders a one-paragraph, human readable status.
func (st *Status) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s notes, %s passages, %s (%s)",
		humanize.Comma(int64(st.Files)), humanize.Comma(int64(st.Chunks)),
		st.IndexSize, st.WatchState)
	if st.NotesDir != "" {
		fmt.Fprintf(&b, "\nnotes directory: %s", st.NotesDir)
	}
	if st.EmbeddingModel != "" {
		fmt.Fprintf(&b, "\nembeddings: %.0f%% of passages (%s)", st.EmbeddingCoverage*100, st.EmbeddingModel)
		if st.Pool != nil && !st.Pool.LastPass.IsZero() {
			fmt.Fprintf(&b, ", last pass %s", humanize.Time(st.Pool.LastPass))
		}
	} else {
		b.WriteString("\nembeddings: disabled")
	}
	return b.String()
}

// SaveNote writes content to path inside the notes directory and indexes it
// right away. A relative path is taken from the notes root; a missing
// extension becomes ".md".
func (s *Service) SaveNote(ctx context.Context, path, content string) (*storage.File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ValidationError{Field: "path", Message: "must not be empty"}
	}
	root, err := s.resolveDir("")
	if err != nil {
		return nil, err
	}
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "~") {
		path = filepath.Join(root, path)
	}
	target, err := storage.NormalizePath(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(target) == "" {
		target += ".md"
	}
	if target == root || !storage.IsSubPath(target, root) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideNotesDir, target)
	}
	if indexer.ShouldIgnore(root, target) {
		return nil, fmt.Errorf("%w: %s", indexer.ErrIgnored, target)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write note: %w", err)
	}
	file, err := s.indexer.IndexFile(ctx, target)
	if err != nil {
		return nil, err
	}
	s.triggerEmbeddings()
	return file, nil
}

// Pin adds path to the pinned files
func (s *Service) Pin(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return &ValidationError{Field: "path", Message: "must not be empty"}
	}
	return s.store.PinFile(ctx, path)
}

// Unpin removes path from the pinned files
func (s *Service) Unpin(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return &ValidationError{Field: "path", Message: "must not be empty"}
	}
	return s.store.UnpinFile(ctx, path)
}

// Pins lists the pinned files that are indexed
func (s *Service) Pins(ctx context.Context) ([]*storage.File, error) {
	return s.store.ListPinnedFiles(ctx)
}

// Files lists every indexed file
func (s *Service) Files(ctx context.Context) ([]*storage.File, error) {
	return s.store.ListFiles(ctx)
}

// EmbedPending runs one embedding pass and waits for it.
func (s *Service) EmbedPending(ctx context.Context) (processed, failed int, err error) {
	if s.pool == nil {
		return 0, 0, ErrEmbeddingsDisabled
	}
	return s.pool.Drain(ctx)
}

// Conversations lists stored conversations
func (s *Service) Conversations(ctx context.Context) ([]storage.Conversation, error) {
	return s.store.ListConversations(ctx)
}

// ActiveConversation returns the active conversation or nil.
func (s *Service) ActiveConversation(ctx context.Context) (*storage.Conversation, error) {
	return s.store.ActiveConversation(ctx)
}
