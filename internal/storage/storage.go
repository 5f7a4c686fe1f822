package storage

import (
	"context"
	"time"

	"github.com/dshills/notecontext/pkg/types"
)

// Store defines the persistence contract for indexed notes.
//
// Every method except Init, EnsureReady and Close fails with ErrNotInitialized
// until Init has completed.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	EnsureReady(ctx context.Context) error
	Close() error

	// File operations
	SaveFile(ctx context.Context, path, name, content string) (*File, error)
	GetFile(ctx context.Context, path string) (*File, error)
	GetFileContent(ctx context.Context, fileID int64) (string, bool, error)
	ListFiles(ctx context.Context) ([]*File, error)
	DeleteFileByPath(ctx context.Context, path string) (bool, error)
	ClearAllContent(ctx context.Context) error
	NeedsProcessing(ctx context.Context, path string, mtime time.Time) (bool, error)

	// Search operations
	Search(ctx context.Context, query string, limit int) ([]ChunkMatch, error)
	SearchFTS(ctx context.Context, query string, limit int, dateRange *types.DateRange) ([]ChunkMatch, error)
	GetChunks(ctx context.Context, chunkIDs []int64) ([]ChunkMatch, error)
	RebuildFTS(ctx context.Context) error

	// Embedding operations
	ListChunksNeedingEmbeddings(ctx context.Context, model string, limit int) ([]PendingChunk, error)
	ListChunksNeedingEmbeddingsAfter(ctx context.Context, model string, afterID int64, limit int) ([]PendingChunk, error)
	UpsertEmbedding(ctx context.Context, chunkID int64, vector []float32, dim int, model string) error
	GetEmbeddings(ctx context.Context, chunkIDs []int64, model string) (map[int64][]float32, error)
	NearestEmbeddings(ctx context.Context, model string, query []float32, limit int) ([]ScoredChunk, error)

	// Settings and pins
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	PinFile(ctx context.Context, path string) error
	UnpinFile(ctx context.Context, path string) error
	ListPinnedFiles(ctx context.Context) ([]*File, error)

	// Conversations
	CreateConversation(ctx context.Context, title string) (*Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	SetActiveConversation(ctx context.Context, conversationID string) error
	ActiveConversation(ctx context.Context) (*Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error

	// Status
	GetStats(ctx context.Context) (*Stats, error)
}

// File represents one indexed note
type File struct {
	ID        int64
	Path      string
	Name      string
	Content   string
	Size      int64
	NoteDate  string // YYYY-MM-DD, empty when no date could be derived
	MtimeDate string // YYYY-MM-DD of FileMtime in local time
	FileMtime time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveDate returns the note date, falling back to the modification date.
func (f *File) EffectiveDate() string {
	if f.NoteDate != "" {
		return f.NoteDate
	}
	return f.MtimeDate
}

// Chunk is a stored passage of a file
type Chunk struct {
	ID          int64
	FileID      int64
	Index       int
	Content     string
	HeadingPath string
}

// ChunkMatch is a chunk returned by a lexical lookup, joined with its file.
type ChunkMatch struct {
	ChunkID     int64
	FileID      int64
	ChunkIndex  int
	Path        string
	Name        string
	Content     string
	HeadingPath string
	Snippet     string
	NoteDate    string  // note date, or the modification date when the note has none
	Score       float64 // higher is better; only ordering is meaningful
}

// PendingChunk is a chunk lacking an embedding for some model.
type PendingChunk struct {
	ChunkID     int64
	Content     string
	HeadingPath string
}

// EmbedText is the text sent to the embedding provider.
func (p PendingChunk) EmbedText() string {
	return types.Passage{Content: p.Content, HeadingPath: p.HeadingPath}.FullContent()
}

// ScoredChunk pairs a chunk id with its stored vector and cosine similarity.
type ScoredChunk struct {
	ChunkID    int64
	Vector     []float32
	Similarity float64
}

// Conversation is a stored chat thread
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn of a conversation
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Stats summarizes the contents of the store
type Stats struct {
	FileCount      int    `json:"file_count"`
	ChunkCount     int    `json:"chunk_count"`
	EmbeddingCount int    `json:"embedding_count"`
	IndexSizeBytes int64  `json:"index_size_bytes"`
	SchemaVersion  string `json:"schema_version"`
}

// Setting keys
const (
	SettingPinnedFiles        = "pinned_files"
	SettingActiveConversation = "active_conversation"
	SettingNotesRoot          = "notes_root"
)
