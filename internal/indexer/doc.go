// Package indexer keeps the note store in sync with a directory on disk.
//
// # Scanning
//
// Scan walks a root directory and saves every qualifying file that is new or
// has a newer modification time than its stored copy. Files that were
// indexed under the root but no longer exist are removed.
//
//	idx := indexer.New(store, indexer.Config{})
//	stats, err := idx.Scan(ctx, "~/notes")
//
// Hidden files and directories, version-control directories, files with a
// binary extension or content, and files over MaxFileSize are skipped. A
// file that fails to index is reported in Statistics.ErrorMessages and does
// not abort the scan. Only one scan runs at a time; a concurrent call gets
// ErrIndexingInProgress.
//
// # Watching
//
// A Watcher runs an initial scan and then follows filesystem events:
//
//	w := indexer.NewWatcher(idx, indexer.WatcherConfig{})
//	stats, err := w.Watch(ctx, "~/notes")
//	defer w.Stop()
//
// Creates and writes are debounced per path, so an editor saving a file
// several times in a row causes one reindex. Deletions and renames remove
// the file (or everything below a directory) right away.
//
// Watch remembers the root in the store. Pointing it at a directory that is
// not inside the previous one clears all indexed content before anything
// from the new directory is saved.
//
// # Change hooks
//
// OnChange registers callbacks that run after every store modification. The
// application uses them to drop cached retrievals and to wake the embedding
// pool.
package indexer
