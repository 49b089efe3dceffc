// Package indexer builds the search index for a workspace root.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, logger)
//	stats, err := idx.IndexWorkspace(ctx, "/path/to/project", &indexer.Config{
//	    Branch:       "main",
//	    IncludeTests: true,
//	})
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// # Pipeline
//
//  1. Discovery: walk the root, skipping hidden and dependency directories,
//     binaries and anything matched by .gitignore or .codectxignore
//  2. Incremental decision: compare SHA-256 content hashes, skip unchanged
//     files and drop files that no longer exist
//  3. Chunk and store: line-window chunks written one transaction per batch,
//     batches processed concurrently
//  4. Embed: chunks without an embedding are embedded in provider-sized
//     batches
//
// Each (root, branch) pair is its own project in the index, so switching
// branches and re-indexing does not disturb the other branch's entries.
//
// # Error Handling
//
// Only storage failures and cancellation abort a run. Unreadable files are
// counted in Statistics.FilesFailed. An embedding provider failure stops the
// embedding step and is counted in Statistics.EmbeddingsFailed; the affected
// chunks remain searchable by full text and are embedded on the next run.
//
// IndexLock rejects overlapping runs from the MCP and HTTP surfaces.
package indexer
