// Package storage provides SQLite-based persistence for the retrieval index.
//
// The storage layer manages:
//   - Projects: one row per indexed (workspace root, branch) pair
//   - Files: root-relative paths and SHA-256 content hashes
//   - Chunks: 1-based line ranges of files with their text
//   - Embeddings: float32 vectors per chunk, stored little-endian
//   - chunks_fts: FTS5 index over chunk text, kept in sync by triggers
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("/home/me/.codectx/index.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	scopes := []types.ScopeTag{{Directory: "/src/app", Branch: "main"}}
//	hits, err := store.SearchText(ctx, scopes, "parse config", 10, nil)
//
// # Scopes
//
// Every search is restricted to a set of ScopeTags. A tag with a known branch
// matches only that branch's project; a tag whose branch is types.BranchUnknown
// matches every indexed branch of the root. SearchFilters.Directory narrows
// results further to files under a directory, absolute or root-relative.
//
// # Transactions
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	if err := tx.UpsertFile(ctx, file); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// The database runs with a single open connection. Do not call the
// non-transactional Storage while holding a Tx on the same goroutine.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go) and ranks vectors in Go.
// Building with -tags sqlite_vec uses github.com/mattn/go-sqlite3 and pushes
// cosine distance into SQL when the sqlite-vec extension is present.
package storage
