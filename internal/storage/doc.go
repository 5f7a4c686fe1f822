// Package storage provides SQLite-based persistence for indexed notes.
//
// The storage layer manages:
//   - Files, keyed by normalized absolute path, with a derived note date
//   - Chunks, fully replaced whenever their file is saved
//   - Vector embeddings, at most one per chunk and model
//   - An FTS5 full-text index over chunks kept in sync by triggers
//   - Settings (pinned files, active conversation) and conversations
//
// # Database Schema
//
// Tables:
//   - schema_version: applied migrations (semantic versions)
//   - files: path, name, content, note_date, mtime_date, file_mtime
//   - chunks: file_id, chunk_index, content, heading_path
//   - chunks_fts: FTS5 external-content index over chunks
//   - embeddings: chunk_id, model, dimension, little-endian float32 blob
//   - settings: key/value pairs
//   - conversations, conversation_messages: chat history
//
// Deleting a file cascades to its chunks and their embeddings.
//
// # Lifecycle
//
//	store, err := storage.NewSQLiteStore("~/.notecontext/notes.db", storage.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	if err := store.Init(ctx); err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Every data operation returns ErrNotInitialized before Init succeeds. Init
// retries opening with backoff; if the file stays unusable it is deleted
// together with its -wal, -shm and -journal sidecars and created afresh.
// The full-text index is integrity checked on Init and rebuilt from chunks
// when damaged, and a search that hits a corrupted index triggers the same
// rebuild before retrying once.
//
// # Dates
//
// A note's effective date is its note_date when one could be derived (file
// name, front matter, or a date heading) and otherwise the local date of its
// modification time. Date-filtered searches compare effective dates against a
// half-open [start, end) range.
//
// # Build Modes
//
// With the sqlite_vec tag the mattn/go-sqlite3 driver is used and sqlite-vec
// ranks vectors with vec_distance_cosine. Otherwise modernc.org/sqlite is used
// and similarity is computed in Go.
package storage
