// Package embedder generates vector embeddings for code chunks and queries.
//
// Two providers are available:
//   - openai: any OpenAI-compatible embeddings endpoint via go-openai, with
//     retry, optional request throttling and an LRU cache
//   - local: an offline hashing embedder, deterministic and dependency free
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "how is the session token refreshed",
//	})
//
// # Batch Processing
//
// The indexer embeds chunks in batches of up to MaxBatchSize texts:
//
//	resp, err := emb.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
//
// Cached texts are served from memory; only misses reach the provider.
package embedder
