// Package chunker divides note text into overlapping passages for indexing and retrieval.
//
// The chunker is deterministic and has no dependencies on the rest of the
// system: the same text always produces the same passages, so re-saving an
// unchanged note yields an identical chunk set.
//
// # Basic Usage
//
//	c := chunker.New()
//	passages := c.Chunk(noteText)
//	for _, p := range passages {
//	    fmt.Printf("%d: %d chars\n", p.Index, p.Len())
//	}
//
// # Sliding Window
//
// Text is first normalized (every whitespace run becomes one space). A window
// of Size characters (default 500) then slides across it, advancing by
// Size-Overlap (default 400). Windows shorter than MinLength (default 50) are
// dropped unless the text yields only one window, in which case the whole,
// possibly short, text is returned. Lengths are counted in runes, and a single
// very long "word" is hard-sliced like any other text.
//
// Concatenating the first passage with every later passage minus its leading
// Overlap characters reconstructs the normalized text.
//
// # Structured Variant
//
// For markdown files, ChunkDocument and ChunkMarkdown parse the document with
// goldmark, track the heading stack, and slide the window within each heading
// section. Each passage carries a heading path such as
//
//	# Trip > ## Day 1
//
// Documents without headings fall back to the plain window. Leading YAML front
// matter is never chunked; SplitFrontMatter exposes it to callers that derive
// metadata from it.
package chunker
