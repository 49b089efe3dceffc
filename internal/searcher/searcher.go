package searcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dshills/codebase-context/internal/embedder"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/internal/retrieval"
	"github.com/dshills/codebase-context/internal/storage"
	"github.com/dshills/codebase-context/pkg/types"
)

var (
	// ErrNoEmbedder is returned by a vector search built without an embedder
	ErrNoEmbedder = errors.New("embedder not initialized")

	// ErrStaleChunk means a stored line range no longer fits the file on disk
	ErrStaleChunk = errors.New("chunk range outside file")
)

// FullText ranks indexed chunks with the SQLite FTS5 index
type FullText struct {
	storage storage.Storage
}

// NewFullText creates a full-text backend over store
func NewFullText(store storage.Storage) *FullText {
	return &FullText{storage: store}
}

// Search returns up to budget chunks in BM25 order. Chunk text is the
// indexed text.
func (f *FullText) Search(ctx context.Context, query string, budget int, scopes []types.ScopeTag, directory string) ([]types.Chunk, error) {
	if budget <= 0 || len(scopes) == 0 || strings.TrimSpace(query) == "" {
		return []types.Chunk{}, nil
	}

	results, err := f.storage.SearchText(ctx, scopes, query, budget, filtersFor(directory))
	if err != nil {
		return nil, fmt.Errorf("text search failed: %w", err)
	}

	chunks := make([]types.Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, types.Chunk{
			FilePath:  absPath(r.Location),
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Content:   r.Content,
			Score:     r.BM25Score,
		})
	}
	return chunks, nil
}

// Vector ranks indexed chunks by cosine similarity to the query embedding.
// The index stores locations only, so chunk text is read back from disk.
type Vector struct {
	storage  storage.Storage
	embedder embedder.Embedder
	readFile retrieval.FileReader
	logger   *logging.Logger
}

// NewVector creates a vector backend
func NewVector(store storage.Storage, emb embedder.Embedder, read retrieval.FileReader) *Vector {
	return &Vector{storage: store, embedder: emb, readFile: read, logger: logging.Nop()}
}

// NewVectorFactory returns a factory that builds a Vector over store for
// each retrieval call
func NewVectorFactory(store storage.Storage, logger *logging.Logger) retrieval.VectorBackendFactory {
	if logger == nil {
		logger = logging.Nop()
	}
	return func(emb embedder.Embedder, read retrieval.FileReader) retrieval.VectorBackend {
		v := NewVector(store, emb, read)
		v.logger = logger
		return v
	}
}

// Search embeds query and returns up to budget chunks, most similar first.
// A file that cannot be read fails the whole search. Hits whose stored
// range no longer fits the file on disk are skipped until the next index
// run.
func (v *Vector) Search(ctx context.Context, query string, budget int, scopes []types.ScopeTag, directory string) ([]types.Chunk, error) {
	if v.embedder == nil {
		return nil, ErrNoEmbedder
	}
	if v.readFile == nil {
		return nil, errors.New("file reader not initialized")
	}
	if budget <= 0 || len(scopes) == 0 || strings.TrimSpace(query) == "" {
		return []types.Chunk{}, nil
	}

	emb, err := v.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	results, err := v.storage.SearchVector(ctx, scopes, emb.Vector, budget, filtersFor(directory))
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	// Several hits often come from one file
	lines := make(map[string][]string)
	chunks := make([]types.Chunk, 0, len(results))
	for _, r := range results {
		path := absPath(r.Location)

		fileLines, ok := lines[path]
		if !ok {
			data, err := v.readFile(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
			fileLines = SplitLines(string(data))
			lines[path] = fileLines
		}

		content, err := sliceLines(fileLines, r.StartLine, r.EndLine)
		if err != nil {
			v.logger.DebugContext(ctx, "skipping stale chunk",
				"path", path,
				"error", err,
			)
			continue
		}

		chunks = append(chunks, types.Chunk{
			FilePath:  path,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Content:   content,
			Score:     r.SimilarityScore,
		})
	}
	return chunks, nil
}

// SplitLines splits text into lines the same way the chunker numbers them
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}

// sliceLines joins lines start..end, 1-based and inclusive
func sliceLines(lines []string, start, end int) (string, error) {
	if start < 1 || end < start || end > len(lines) {
		return "", fmt.Errorf("%w: lines %d-%d of %d", ErrStaleChunk, start, end, len(lines))
	}
	return strings.Join(lines[start-1:end], "\n"), nil
}

func filtersFor(directory string) *storage.SearchFilters {
	if directory == "" {
		return nil
	}
	return &storage.SearchFilters{Directory: directory}
}

func absPath(loc storage.Location) string {
	return filepath.Join(loc.RootPath, filepath.FromSlash(loc.FilePath))
}
