// Package searcher implements hybrid retrieval over indexed notes and the
// question-answering flow built on it.
//
// # Retrieval
//
// Retrieve runs these steps for a query:
//
//  1. Extract an optional date range ("yesterday", "last 3 days",
//     "2024-03") and strip the phrase from the search text.
//  2. Run the full-text search (BM25) for up to Candidates chunks, limited
//     to the date range. When it fails or finds nothing, fall back to the
//     substring search. In parallel, embed the query.
//  3. With a query vector, load the stored vectors of the lexical candidates
//     and compute cosine similarity. With no candidates, use the nearest
//     stored vectors instead.
//  4. Fuse by chunk id:
//
//	score = LexicalWeight*(n-i)/n + VectorWeight*max(0, cosine)
//
//  5. Walk the fused list keeping at most PerFileCap passages per file and
//     skipping passages that overflow CharBudget.
//  6. Add the leading snippet of every pinned file.
//
// Each path that fails is logged and skipped, so a broken embedding server
// degrades to lexical results and a broken index to pinned files.
//
// # Answers
//
// RetrieveAndAnswer builds a prompt (current date, recent turns, the date
// note, numbered passages, the request) and calls the chat model. When
// retrieval found nothing at all the model is not called and the answer is
// NothingFoundAnswer. Ask does the same inside a stored conversation.
//
// # Caching
//
// Retrievals are cached in an LRU keyed by the search text and date range
// for CacheTTL. InvalidateCache must be called when indexed content changes;
// pinned snippets are always read fresh.
package searcher
