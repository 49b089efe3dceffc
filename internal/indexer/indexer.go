package indexer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codebase-context/internal/chunker"
	"github.com/dshills/codebase-context/internal/embedder"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/internal/storage"
	"github.com/dshills/codebase-context/pkg/types"
)

const (
	// DefaultBatchSize is the number of files committed per transaction
	DefaultBatchSize = 20

	// DefaultMaxFileBytes skips generated blobs and minified bundles
	DefaultMaxFileBytes = 1 << 20

	// sniffLen is how much of a file is checked for NUL bytes
	sniffLen = 8000
)

// skippedDirs are never descended into
var skippedDirs = map[string]bool{
	"node_modules": true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

// binaryExts are skipped without reading
var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".tgz": true, ".7z": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true,
	".class": true, ".jar": true, ".wasm": true, ".pyc": true,
	".db": true, ".sqlite": true, ".woff": true, ".woff2": true, ".ttf": true,
	".mp3": true, ".mp4": true, ".mov": true,
}

// Indexer coordinates the indexing pipeline: walk -> chunk -> store -> embed
type Indexer struct {
	chunker  *chunker.Chunker
	storage  storage.Storage
	embedder embedder.Embedder
	logger   *logging.Logger
}

// Config contains configuration for one indexing run
type Config struct {
	Branch        string // Branch the run is recorded under (default: types.BranchUnknown)
	Workers       int    // Number of concurrent batches (default: runtime.NumCPU())
	BatchSize     int    // Number of files to commit per transaction (default: 20)
	IncludeTests  bool   // Whether to index test files
	IncludeVendor bool   // Whether to index vendor directories
	MaxFileBytes  int64  // Larger files are skipped (default: 1 MiB)
	MaxTokens     int    // Chunk size budget (default: chunker.MaxTokensPerChunk)
}

// Statistics contains statistics about the indexing operation
type Statistics struct {
	FilesIndexed        int
	FilesSkipped        int
	FilesFailed         int
	FilesRemoved        int
	ChunksCreated       int
	EmbeddingsGenerated int
	EmbeddingsFailed    int
	Duration            time.Duration
	ErrorMessages       []string
}

// counters are shared by the batch goroutines
type counters struct {
	indexed atomic.Int32
	skipped atomic.Int32
	failed  atomic.Int32
	chunks  atomic.Int32

	mu     sync.Mutex
	errors []string
}

func (c *counters) fail(path string, err error) {
	c.failed.Add(1)
	c.mu.Lock()
	c.errors = append(c.errors, fmt.Sprintf("%s: %v", path, err))
	c.mu.Unlock()
}

// New creates an Indexer. emb may be nil, in which case chunks are stored
// without embeddings and only full-text search can find them.
func New(store storage.Storage, emb embedder.Embedder, logger *logging.Logger) *Indexer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Indexer{
		chunker:  chunker.New(0),
		storage:  store,
		embedder: emb,
		logger:   logger,
	}
}

// IndexWorkspace indexes every text file under rootPath for the configured
// branch. Unchanged files are skipped by content hash and files that
// disappeared are removed from the index. Per-file and embedding failures
// are reported in the statistics; only storage failures abort the run.
func (idx *Indexer) IndexWorkspace(ctx context.Context, rootPath string, config *Config) (*Statistics, error) {
	cfg := normalizeConfig(config)

	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}

	startTime := time.Now()
	idx.logger.InfoContext(ctx, "indexing workspace", "root", root, "branch", cfg.Branch)

	project, err := idx.getOrCreateProject(ctx, root, cfg.Branch)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create project: %w", err)
	}

	files, err := idx.discoverFiles(root, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	stats := &Statistics{ErrorMessages: make([]string, 0)}

	removed, err := idx.removeDeletedFiles(ctx, project, files)
	if err != nil {
		return nil, fmt.Errorf("failed to remove deleted files: %w", err)
	}
	stats.FilesRemoved = removed

	split := idx.chunker
	if cfg.MaxTokens > 0 {
		split = chunker.New(cfg.MaxTokens)
	}
	if err := idx.indexFiles(ctx, project, files, cfg, split, stats); err != nil {
		return nil, fmt.Errorf("failed to index files: %w", err)
	}

	if idx.embedder != nil {
		if err := idx.embedChunks(ctx, project, stats); err != nil {
			return nil, fmt.Errorf("failed to store embeddings: %w", err)
		}
	}

	if err := idx.updateProjectStats(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to update project stats: %w", err)
	}

	stats.Duration = time.Since(startTime)
	idx.logger.InfoContext(ctx, "indexing complete",
		"root", root,
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"failed", stats.FilesFailed,
		"removed", stats.FilesRemoved,
		"chunks", stats.ChunksCreated,
		"embeddings", stats.EmbeddingsGenerated,
		"duration", stats.Duration,
	)
	return stats, nil
}

func normalizeConfig(config *Config) Config {
	cfg := Config{IncludeTests: true}
	if config != nil {
		cfg = *config
	}
	if cfg.Branch == "" {
		cfg.Branch = types.BranchUnknown
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	return cfg
}

// getOrCreateProject retrieves the (root, branch) project or creates it
func (idx *Indexer) getOrCreateProject(ctx context.Context, root, branch string) (*storage.Project, error) {
	project, err := idx.storage.GetProject(ctx, root, branch)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	project = &storage.Project{
		RootPath:     root,
		Branch:       branch,
		IndexVersion: storage.CurrentSchemaVersion,
	}
	if err := idx.storage.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// discoverFiles finds indexable files under root
func (idx *Indexer) discoverFiles(root string, cfg Config) ([]string, error) {
	ignore := newIgnoreMatcher(root)
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") || skippedDirs[name] {
				return filepath.SkipDir
			}
			if !cfg.IncludeVendor && name == "vendor" {
				return filepath.SkipDir
			}
			if ignore.Match(path, true) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks and other special files are not followed
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(name, ".") || binaryExts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		if !cfg.IncludeTests && isTestFile(path) {
			return nil
		}
		if ignore.Match(path, false) {
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// isTestFile recognises common test naming conventions
func isTestFile(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	switch {
	case strings.HasSuffix(stem, "_test"), strings.HasPrefix(stem, "test_"):
		return true
	case strings.HasSuffix(stem, ".test"), strings.HasSuffix(stem, ".spec"):
		return true
	}
	for _, dir := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if dir == "__tests__" {
			return true
		}
	}
	return false
}

// removeDeletedFiles drops index entries for files no longer on disk
func (idx *Indexer) removeDeletedFiles(ctx context.Context, project *storage.Project, files []string) (int, error) {
	present := make(map[string]bool, len(files))
	for _, path := range files {
		rel, err := relativePath(project.RootPath, path)
		if err != nil {
			return 0, err
		}
		present[rel] = true
	}

	indexed, err := idx.storage.ListFiles(ctx, project.ID)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, file := range indexed {
		if present[file.FilePath] {
			continue
		}
		if err := idx.storage.DeleteFile(ctx, file.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// indexFiles indexes files in batches. Each batch is one transaction.
func (idx *Indexer) indexFiles(ctx context.Context, project *storage.Project, files []string, cfg Config, split *chunker.Chunker, stats *Statistics) error {
	c := &counters{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for i := 0; i < len(files); i += cfg.BatchSize {
		batch := files[i:min(i+cfg.BatchSize, len(files))]
		g.Go(func() error {
			return idx.indexBatch(gctx, project, batch, cfg, split, c)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats.FilesIndexed = int(c.indexed.Load())
	stats.FilesSkipped = int(c.skipped.Load())
	stats.FilesFailed = int(c.failed.Load())
	stats.ChunksCreated = int(c.chunks.Load())
	stats.ErrorMessages = append(stats.ErrorMessages, c.errors...)
	return nil
}

// pendingFile is a changed file ready to be written
type pendingFile struct {
	file     *storage.File
	existing *storage.File
	chunks   []chunker.Chunk
}

// indexBatch reads and chunks a batch outside the transaction, then writes
// the changed files in one transaction
func (idx *Indexer) indexBatch(ctx context.Context, project *storage.Project, files []string, cfg Config, split *chunker.Chunker, c *counters) error {
	pending := make([]*pendingFile, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := idx.prepareFile(ctx, project, path, cfg, split)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			idx.logger.WarnContext(ctx, "failed to index file", "path", path, "error", err)
			c.fail(path, err)
			continue
		}
		if p == nil {
			c.skipped.Add(1)
			continue
		}
		pending = append(pending, p)
	}

	if len(pending) == 0 {
		return nil
	}

	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range pending {
		if err := writeFile(ctx, tx, p); err != nil {
			return fmt.Errorf("failed to store %s: %w", p.file.FilePath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, p := range pending {
		c.indexed.Add(1)
		c.chunks.Add(int32(len(p.chunks)))
	}
	return nil
}

// prepareFile returns nil when the file is unchanged, too large or binary
func (idx *Indexer) prepareFile(ctx context.Context, project *storage.Project, path string, cfg Config, split *chunker.Chunker) (*pendingFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > cfg.MaxFileBytes {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, nil
	}

	rel, err := relativePath(project.RootPath, path)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(data)

	existing, err := idx.storage.GetFile(ctx, project.ID, rel)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, err
	case existing.ContentHash == hash:
		return nil, nil
	}

	return &pendingFile{
		file: &storage.File{
			ProjectID:   project.ID,
			FilePath:    rel,
			ContentHash: hash,
			ModTime:     info.ModTime(),
			SizeBytes:   info.Size(),
		},
		existing: existing,
		chunks:   split.Split(string(data)),
	}, nil
}

// writeFile replaces a file's chunks. Embeddings of old chunks cascade.
func writeFile(ctx context.Context, tx storage.Tx, p *pendingFile) error {
	if p.existing != nil {
		if err := tx.DeleteChunksByFile(ctx, p.existing.ID); err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
	}
	if err := tx.UpsertFile(ctx, p.file); err != nil {
		return err
	}
	for _, ch := range p.chunks {
		chunk := &storage.Chunk{
			FileID:      p.file.ID,
			Content:     ch.Content,
			ContentHash: ch.ContentHash,
			TokenCount:  ch.TokenCount,
			StartLine:   ch.StartLine,
			EndLine:     ch.EndLine,
		}
		if err := tx.UpsertChunk(ctx, chunk); err != nil {
			return fmt.Errorf("failed to store chunk: %w", err)
		}
	}
	return nil
}

// embedChunks embeds every chunk of the project that has no embedding yet.
// A provider failure stops embedding and is recorded in stats; the chunks
// stay searchable by full text and are retried on the next run.
func (idx *Indexer) embedChunks(ctx context.Context, project *storage.Project, stats *Statistics) error {
	for {
		pending, err := idx.storage.ListChunksWithoutEmbedding(ctx, project.ID, embedder.MaxBatchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		texts := make([]string, len(pending))
		for i, chunk := range pending {
			texts[i] = chunk.Content
		}

		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err == nil && len(resp.Embeddings) != len(pending) {
			err = fmt.Errorf("provider returned %d embeddings for %d chunks", len(resp.Embeddings), len(pending))
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			idx.logger.WarnContext(ctx, "embedding generation failed", "chunks", len(pending), "error", err)
			stats.EmbeddingsFailed += len(pending)
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("embeddings: %v", err))
			return nil
		}

		if err := idx.storeEmbeddings(ctx, pending, resp.Embeddings); err != nil {
			return err
		}
		stats.EmbeddingsGenerated += len(pending)
	}
}

func (idx *Indexer) storeEmbeddings(ctx context.Context, chunks []*storage.Chunk, embeddings []*embedder.Embedding) error {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, chunk := range chunks {
		emb := embeddings[i]
		if err := tx.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID:   chunk.ID,
			Vector:    storage.SerializeVector(emb.Vector),
			Dimension: len(emb.Vector),
			Provider:  emb.Provider,
			Model:     emb.Model,
		}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// updateProjectStats updates the project's file and chunk counts
func (idx *Indexer) updateProjectStats(ctx context.Context, project *storage.Project) error {
	status, err := idx.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return err
	}

	project.TotalFiles = status.FilesCount
	project.TotalChunks = status.ChunksCount
	project.LastIndexedAt = time.Now()
	return idx.storage.UpdateProject(ctx, project)
}

func relativePath(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data[:min(len(data), sniffLen)], 0) >= 0
}
