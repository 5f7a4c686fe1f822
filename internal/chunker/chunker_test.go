package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/notecontext/pkg/types"
)

// sampleText builds deterministic prose of exactly n characters
func sampleText(n int) string {
	words := []string{"river", "lisbon", "coffee", "tram", "museum", "harbor", "sunset", "bakery"}
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(words[i%len(words)])
	}
	return b.String()[:n]
}

// reconstruct undoes the overlap between consecutive passages
func reconstruct(passages []types.Passage, overlap int) string {
	var b strings.Builder
	for i, p := range passages {
		r := []rune(p.Content)
		if i > 0 {
			r = r[overlap:]
		}
		b.WriteString(string(r))
	}
	return b.String()
}

func TestNew(t *testing.T) {
	c := New()
	require.NotNil(t, c)
	assert.Equal(t, DefaultOptions(), c.Options())
}

func TestChunk_1200Characters(t *testing.T) {
	text := sampleText(1200)
	require.Len(t, text, 1200)

	passages := New().Chunk(text)

	require.Len(t, passages, 3)
	for i, p := range passages {
		assert.Equal(t, i, p.Index)
		assert.GreaterOrEqual(t, p.Len(), DefaultMinLength)
	}
	assert.Equal(t, 500, passages[0].Len())
	assert.Equal(t, 500, passages[1].Len())
	assert.Equal(t, 400, passages[2].Len())
}

func TestChunk_EmptyInput(t *testing.T) {
	c := New()
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t  \r\n"))
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	passages := New().Chunk("  buy   milk\n")
	require.Len(t, passages, 1)
	assert.Equal(t, "buy milk", passages[0].Content)
}

func TestChunk_Coverage(t *testing.T) {
	c := New()
	for _, n := range []int{1, 49, 500, 501, 899, 900, 901, 1200, 4321} {
		text := sampleText(n)
		passages := c.Chunk(text)
		assert.Equal(t, NormalizeWhitespace(text), reconstruct(passages, DefaultOverlap), "length %d", n)
	}
}

func TestChunk_NormalizesWhitespace(t *testing.T) {
	passages := New().Chunk("alpha\n\n\tbeta    gamma\r\n")
	require.Len(t, passages, 1)
	assert.Equal(t, "alpha beta gamma", passages[0].Content)
}

func TestChunk_LongWordIsHardSliced(t *testing.T) {
	word := strings.Repeat("x", 2000)
	passages := New().Chunk(word)
	require.Len(t, passages, 5)
	for _, p := range passages[:4] {
		assert.Equal(t, DefaultSize, p.Len())
	}
	assert.Equal(t, word, reconstruct(passages, DefaultOverlap))
}

func TestChunk_MultiByteRunes(t *testing.T) {
	text := strings.Repeat("é", 900)
	passages := New().Chunk(text)
	require.Len(t, passages, 2)
	assert.Equal(t, 500, passages[0].Len())
	assert.Equal(t, text, reconstruct(passages, DefaultOverlap))
}

func TestChunk_DropsShortTrailingWindow(t *testing.T) {
	c, err := NewWithOptions(Options{Size: 100, Overlap: 20, MinLength: 50})
	require.NoError(t, err)

	passages := c.Chunk(strings.Repeat("a", 125))
	require.Len(t, passages, 1, "45-char tail is below the minimum")

	passages = c.Chunk(strings.Repeat("a", 130))
	require.Len(t, passages, 2, "50-char tail is kept")
}

func TestChunk_Deterministic(t *testing.T) {
	c := New()
	text := sampleText(2500)
	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestNewWithOptions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"zero size", Options{Size: 0, Overlap: 0}},
		{"overlap equals size", Options{Size: 100, Overlap: 100}},
		{"negative overlap", Options{Size: 100, Overlap: -1}},
		{"negative min", Options{Size: 100, Overlap: 10, MinLength: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithOptions(tt.opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, IsMarkdown("trip.md"))
	assert.True(t, IsMarkdown("Trip.MARKDOWN"))
	assert.False(t, IsMarkdown("todo.txt"))
	assert.False(t, IsMarkdown("noext"))
}
