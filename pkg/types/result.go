package types

// SearchResult represents one retrieved passage with relevance information
type SearchResult struct {
	// Identification
	ChunkID int64
	FileID  int64
	Rank    int // Position in result set (1-based)

	// Scoring
	LexicalScore float64 // Normalized lexical rank in [0, 1]
	VectorScore  float64 // Cosine similarity clamped to [0, 1]
	Score        float64 // Fused score

	// Metadata
	Path        string
	Name        string
	HeadingPath string
	Content     string // Full chunk text
	Snippet     string // Highlighted excerpt when available
	NoteDate    string // YYYY-MM-DD, empty when the note has no date
	Pinned      bool
}

// Source identifies a passage handed to the language model, for UI attribution.
type Source struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Snippet string `json:"snippet"`
	Pinned  bool   `json:"pinned,omitempty"`
}

// Source converts the result into its attribution form.
func (sr *SearchResult) Source() Source {
	snippet := sr.Snippet
	if snippet == "" {
		snippet = sr.Content
	}
	return Source{Name: sr.Name, Path: sr.Path, Snippet: snippet, Pinned: sr.Pinned}
}
