package chunker

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/dshills/notecontext/pkg/types"
)

const (
	// DefaultSize is the window length in characters
	DefaultSize = 500

	// DefaultOverlap is the number of characters shared by consecutive windows
	DefaultOverlap = 100

	// DefaultMinLength is the shortest window kept when a text yields several windows
	DefaultMinLength = 50
)

// ErrInvalidOptions is returned when window options are inconsistent
var ErrInvalidOptions = errors.New("invalid chunker options")

// Options configures the sliding window
type Options struct {
	Size      int // Window length in characters
	Overlap   int // Characters shared with the previous window
	MinLength int // Windows shorter than this are dropped unless they are the only window
}

// DefaultOptions returns the 500/100/50 window
func DefaultOptions() Options {
	return Options{
		Size:      DefaultSize,
		Overlap:   DefaultOverlap,
		MinLength: DefaultMinLength,
	}
}

// Validate checks that the window advances on every step
func (o Options) Validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("%w: size must be positive", ErrInvalidOptions)
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w: overlap must be in [0, size)", ErrInvalidOptions)
	}
	if o.MinLength < 0 {
		return fmt.Errorf("%w: min length must be >= 0", ErrInvalidOptions)
	}
	return nil
}

// Chunker splits note text into overlapping passages
type Chunker struct {
	opts Options
	md   goldmark.Markdown
}

// New creates a Chunker with the default window
func New() *Chunker {
	return &Chunker{
		opts: DefaultOptions(),
		md:   goldmark.New(),
	}
}

// NewWithOptions creates a Chunker with a custom window
func NewWithOptions(opts Options) (*Chunker, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{
		opts: opts,
		md:   goldmark.New(),
	}, nil
}

// Options returns the window configuration
func (c *Chunker) Options() Options {
	return c.opts
}

// Chunk normalizes whitespace and slides the window across the whole text.
// Empty or whitespace-only input yields no passages.
func (c *Chunker) Chunk(text string) []types.Passage {
	windows := c.slide(NormalizeWhitespace(text))
	passages := make([]types.Passage, 0, len(windows))
	for i, w := range windows {
		passages = append(passages, types.Passage{Index: i, Content: w})
	}
	return passages
}

// ChunkDocument picks the structured variant for markdown files that contain
// headings and the plain window for everything else.
func (c *Chunker) ChunkDocument(name, text string, structured bool) []types.Passage {
	if structured && IsMarkdown(name) {
		if passages, ok := c.chunkSections(text); ok {
			return passages
		}
	}
	_, body := SplitFrontMatter(text)
	return c.Chunk(body)
}

// slide cuts normalized text into windows. Windows are measured in runes so
// multi-byte characters are never split.
func (c *Chunker) slide(normalized string) []string {
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	n := len(runes)
	if n <= c.opts.Size {
		return []string{normalized}
	}

	step := c.opts.Size - c.opts.Overlap
	windows := make([]string, 0, n/step+1)
	for start := 0; start < n; start += step {
		end := start + c.opts.Size
		if end > n {
			end = n
		}
		if end-start >= c.opts.MinLength || start == 0 {
			windows = append(windows, string(runes[start:end]))
		}
		if end == n {
			break
		}
	}
	return windows
}

// NormalizeWhitespace collapses every whitespace run to a single space and trims the ends
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// IsMarkdown reports whether the file name has a markdown extension
func IsMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdx":
		return true
	}
	return false
}
