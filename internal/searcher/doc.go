// Package searcher provides the default retrieval backends over the SQLite
// index.
//
// FullText queries the FTS5 table and returns the stored chunk text. Vector
// embeds the query, ranks stored embeddings by cosine similarity and reads
// each hit's text back from disk through the caller's file reader:
//
//	factory := searcher.NewVectorFactory(store, logger)
//	backend := factory(emb, workspace.ReadFile)
//	chunks, err := backend.Search(ctx, "parse config", 20, scopes, "")
//
// Both backends report absolute paths and 1-based line ranges taken from
// the same chunk rows, so a region found by both compares equal.
package searcher
