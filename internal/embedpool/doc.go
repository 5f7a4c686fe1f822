// Package embedpool generates vectors for stored chunks in the background.
//
// A Pool repeatedly asks the store for chunks that have no embedding for the
// active model, fans the embedding calls out over an ants worker pool and
// persists the results from a single goroutine. Workers never touch the
// store; they hand results back over a channel.
//
// A failed embedding is reported as an EventError and skipped for the rest
// of the pass. The next pass, started by Trigger or the periodic timer,
// picks it up again along with any chunk whose vector was invalidated by a
// re-save. Embedding is best-effort: with no pool running, retrieval simply
// stays lexical.
package embedpool
