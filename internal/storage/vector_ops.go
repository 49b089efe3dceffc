package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/codebase-context/pkg/types"
)

// maxMatchTerms caps the number of OR-ed terms sent to FTS5
const maxMatchTerms = 32

// searchVector performs vector similarity search using cosine similarity
func searchVector(ctx context.Context, q querier, scopes []types.ScopeTag, queryVector []float32, limit int, filters *SearchFilters) ([]VectorResult, error) {
	if limit <= 0 || len(queryVector) == 0 {
		return []VectorResult{}, nil
	}
	where, scopeArgs := scopeClause(scopes, filters)
	if where == "" {
		return []VectorResult{}, nil
	}

	if VectorExtensionAvailable {
		results, err := searchVectorOptimized(ctx, q, where, scopeArgs, queryVector, limit)
		if err == nil {
			return results, nil
		}
		// vec_distance_cosine is only present when the extension is loaded
	}
	return searchVectorFallback(ctx, q, where, scopeArgs, queryVector, limit)
}

// searchVectorOptimized computes similarity in SQL with the sqlite-vec extension
func searchVectorOptimized(ctx context.Context, q querier, where string, scopeArgs []interface{}, queryVector []float32, limit int) ([]VectorResult, error) {
	queryVectorBlob := serializeVector(queryVector)

	// vec_distance_cosine returns a distance; 1 - distance keeps scores comparable with the fallback
	query := `
		SELECT
			c.id, p.root_path, f.file_path, c.start_line, c.end_line,
			1.0 - vec_distance_cosine(e.vector, ?) AS similarity
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN files f ON c.file_id = f.id
		INNER JOIN projects p ON f.project_id = p.id
		WHERE e.dimension = ? AND ` + where
	args := append([]interface{}{queryVectorBlob, len(queryVector)}, scopeArgs...)

	query += " ORDER BY similarity DESC, c.id LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]VectorResult, 0, limit)
	for rows.Next() {
		var result VectorResult
		if err := rows.Scan(&result.ChunkID, &result.RootPath, &result.FilePath,
			&result.StartLine, &result.EndLine, &result.SimilarityScore); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// searchVectorFallback loads candidate vectors and ranks them in Go.
// Used for purego builds where the vector extension is unavailable.
func searchVectorFallback(ctx context.Context, q querier, where string, scopeArgs []interface{}, queryVector []float32, limit int) ([]VectorResult, error) {
	query := `
		SELECT
			c.id, p.root_path, f.file_path, c.start_line, c.end_line, e.vector
		FROM chunks c
		INNER JOIN embeddings e ON c.id = e.chunk_id
		INNER JOIN files f ON c.file_id = f.id
		INNER JOIN projects p ON f.project_id = p.id
		WHERE e.dimension = ? AND ` + where
	args := append([]interface{}{len(queryVector)}, scopeArgs...)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates, err := computeSimilarityScores(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortCandidates(candidates)
	return buildVectorResults(candidates, limit), nil
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, q querier, scopes []types.ScopeTag, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	match := buildMatchQuery(query)
	if match == "" || limit <= 0 {
		return []TextResult{}, nil
	}
	where, scopeArgs := scopeClause(scopes, filters)
	if where == "" {
		return []TextResult{}, nil
	}

	sqlQuery := `
		SELECT
			c.id, p.root_path, f.file_path, c.start_line, c.end_line, c.content,
			bm25(chunks_fts) AS score
		FROM chunks_fts
		INNER JOIN chunks c ON chunks_fts.rowid = c.id
		INNER JOIN files f ON c.file_id = f.id
		INNER JOIN projects p ON f.project_id = p.id
		WHERE chunks_fts MATCH ?
		AND ` + where
	args := append([]interface{}{match}, scopeArgs...)

	// bm25 is negative; lower is better
	sqlQuery += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows)
}

// Helper functions

// scopeClause builds a WHERE fragment matching rows of any of the scopes.
// A scope whose branch is unknown matches every indexed branch of its root.
// An empty fragment means nothing can match.
func scopeClause(scopes []types.ScopeTag, filters *SearchFilters) (string, []interface{}) {
	var dir string
	if filters != nil {
		dir = filters.Directory
	}

	parts := make([]string, 0, len(scopes))
	args := make([]interface{}, 0, len(scopes)*3)
	for _, scope := range scopes {
		prefix, ok := directoryPrefix(scope.Directory, dir)
		if !ok {
			continue
		}

		part := "p.root_path = ?"
		args = append(args, scope.Directory)
		if scope.Known() {
			part += " AND p.branch = ?"
			args = append(args, scope.Branch)
		}
		if prefix != "" {
			part += " AND f.file_path GLOB ?"
			args = append(args, globEscape(prefix)+"/*")
		}
		parts = append(parts, "("+part+")")
	}

	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// directoryPrefix maps a directory filter onto a root. It returns the
// slash-separated path prefix files must have, "" for the whole root, and
// ok=false when the filter excludes the root entirely. Relative filters are
// taken relative to each root.
func directoryPrefix(root, dir string) (string, bool) {
	if dir == "" {
		return "", true
	}
	if !filepath.IsAbs(dir) {
		rel := filepath.ToSlash(filepath.Clean(dir))
		if rel == "." {
			return "", true
		}
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return "", false
		}
		return rel, true
	}

	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	if !isOutside(rel) {
		return filepath.ToSlash(rel), true
	}

	// The filter may contain the root
	up, err := filepath.Rel(dir, root)
	if err == nil && !isOutside(up) {
		return "", true
	}
	return "", false
}

func isOutside(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// globEscape quotes GLOB metacharacters
func globEscape(s string) string {
	return strings.NewReplacer("[", "[[]", "*", "[*]", "?", "[?]").Replace(s)
}

// computeSimilarityScores processes rows and computes cosine similarity
func computeSimilarityScores(rows *sql.Rows, queryVector []float32) ([]candidate, error) {
	candidates := make([]candidate, 0, 256)

	for rows.Next() {
		var c candidate
		var vectorBlob []byte
		if err := rows.Scan(&c.chunkID, &c.loc.RootPath, &c.loc.FilePath,
			&c.loc.StartLine, &c.loc.EndLine, &vectorBlob); err != nil {
			return nil, err
		}

		vector := deserializeVector(vectorBlob)
		if len(vector) != len(queryVector) {
			continue
		}

		c.score = cosineSimilarity(queryVector, vector)
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// buildVectorResults keeps the top limit candidates
func buildVectorResults(candidates []candidate, limit int) []VectorResult {
	if limit > len(candidates) {
		limit = len(candidates)
	}

	results := make([]VectorResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = VectorResult{
			ChunkID:         candidates[i].chunkID,
			Location:        candidates[i].loc,
			SimilarityScore: candidates[i].score,
		}
	}
	return results
}

// collectTextResults processes text search results and normalizes scores
func collectTextResults(rows *sql.Rows) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var result TextResult
		if err := rows.Scan(&result.ChunkID, &result.RootPath, &result.FilePath,
			&result.StartLine, &result.EndLine, &result.Content, &result.BM25Score); err != nil {
			return nil, err
		}

		// BM25 scores are typically in [-50, 0]; map onto (0, 1]
		result.BM25Score = 1.0 / (1.0 + math.Abs(result.BM25Score)/50.0)
		results = append(results, result)
	}

	return results, rows.Err()
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// candidate represents a located chunk with its similarity score
type candidate struct {
	chunkID int64
	loc     Location
	score   float64
}

// sortCandidates sorts by score descending; ties keep chunk id order
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].chunkID < candidates[j].chunkID
	})
}

var matchTermPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// buildMatchQuery turns free text into an FTS5 expression of quoted terms
// joined with OR. Quoting neutralises FTS5 operators and syntax in the input.
func buildMatchQuery(query string) string {
	seen := make(map[string]bool)
	terms := make([]string, 0, 8)
	for _, term := range matchTermPattern.FindAllString(query, -1) {
		key := strings.ToLower(term)
		if seen[key] {
			continue
		}
		seen[key] = true
		terms = append(terms, `"`+term+`"`)
		if len(terms) == maxMatchTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

// SerializeVector is the exported form used by the indexer
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is the exported inverse of SerializeVector
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
