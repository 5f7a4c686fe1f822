// Package types provides shared type definitions for notecontext.
//
// These are the value types that cross component boundaries: the chunker's
// output, the date range produced by the date extractor and consumed by the
// store, and the ranked results and sources returned by the retriever.
//
// # Passages
//
// Passage is a chunk of note text before it is persisted:
//
//	p := types.Passage{
//	    Index:       0,
//	    Content:     "Flew to Lisbon, hotel near the river...",
//	    HeadingPath: "# Trip > ## Day 1",
//	}
//
// # Date ranges
//
// DateRange is half-open. A note dated exactly at End is excluded, a note
// dated exactly at Start is included:
//
//	r := types.DateRange{Start: day, End: day.AddDate(0, 0, 1)}
//	r.ContainsDay("2024-03-01")
//
// # Search results
//
// SearchResult carries the lexical, vector and fused scores for one passage.
// Scores are normalized to the [0, 1] range, with higher values indicating
// better matches. Source is the trimmed form shown to users for citation.
package types
