package types

import "unicode/utf8"

// Passage is one chunk of a note as produced by the chunker, before it is stored.
type Passage struct {
	// Ordinal position within the file (0-based)
	Index int

	// Normalized passage text
	Content string

	// Heading path such as "# Trip > ## Day 1" when structured splitting is used
	HeadingPath string
}

// Len returns the passage length in characters (runes), not bytes.
func (p Passage) Len() int {
	return utf8.RuneCountInString(p.Content)
}

// FullContent returns the passage text prefixed by its heading path, which is
// what gets embedded so that section context contributes to similarity.
func (p Passage) FullContent() string {
	if p.HeadingPath == "" {
		return p.Content
	}
	return p.HeadingPath + "\n\n" + p.Content
}
