package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dshills/codebase-context/internal/config"
	"github.com/dshills/codebase-context/internal/embedder"
	"github.com/dshills/codebase-context/internal/indexer"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/internal/retrieval"
	"github.com/dshills/codebase-context/internal/searcher"
	"github.com/dshills/codebase-context/internal/storage"
	"github.com/dshills/codebase-context/internal/workspace"
	"github.com/dshills/codebase-context/pkg/types"
)

const (
	// Name is the server name reported to MCP clients
	Name = "codebase-context"
	// Version is the current release
	Version = "0.1.0"
)

// Path validation errors
var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)

// App owns the long-lived collaborators shared by the MCP server, the HTTP
// API and the CLI.
type App struct {
	cfg      config.Config
	logger   *logging.Logger
	storage  storage.Storage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	pipeline *retrieval.Pipeline
	branches workspace.BranchLookup
	lock     indexer.IndexLock
}

// IndexRequest describes one indexing run. A nil IncludeTests uses the
// configured default.
type IndexRequest struct {
	Path         string
	IncludeTests *bool
}

// IndexResult reports an indexing run.
type IndexResult struct {
	Path                string   `json:"path"`
	Branch              string   `json:"branch"`
	FilesIndexed        int      `json:"files_indexed"`
	FilesSkipped        int      `json:"files_skipped"`
	FilesFailed         int      `json:"files_failed"`
	FilesRemoved        int      `json:"files_removed"`
	ChunksCreated       int      `json:"chunks_created"`
	EmbeddingsGenerated int      `json:"embeddings_generated"`
	EmbeddingsFailed    int      `json:"embeddings_failed"`
	DurationMS          int64    `json:"duration_ms"`
	Errors              []string `json:"errors,omitempty"`
	ErrorCount          int      `json:"error_count,omitempty"`
}

// Status describes the index of one workspace root on its current branch.
type Status struct {
	Path          string     `json:"path"`
	Branch        string     `json:"branch"`
	Indexed       bool       `json:"indexed"`
	Indexing      bool       `json:"indexing"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
	Files         int        `json:"files_count"`
	Chunks        int        `json:"chunks_count"`
	Embeddings    int        `json:"embeddings_count"`
	IndexSizeMB   float64    `json:"index_size_mb"`
	Provider      string     `json:"embedding_provider"`
	Model         string     `json:"embedding_model"`
	Health        *Health    `json:"health,omitempty"`

	// Branches lists every indexed branch of the root. A retrieval whose
	// branch cannot be resolved searches all of them.
	Branches []BranchStatus `json:"branches,omitempty"`
}

// Health reports whether the index for the current branch is usable.
type Health struct {
	DatabaseAccessible  bool `json:"database_accessible"`
	EmbeddingsAvailable bool `json:"embeddings_available"`
	FTSIndexesBuilt     bool `json:"fts_indexes_built"`
}

// BranchStatus summarizes one indexed branch of a root.
type BranchStatus struct {
	Branch        string     `json:"branch"`
	Files         int        `json:"files_count"`
	Chunks        int        `json:"chunks_count"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
}

// maxReportedErrors caps the per-file errors echoed back to callers
const maxReportedErrors = 5

// New opens the index database and wires the retrieval pipeline.
func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.New(embedder.Config{
		Provider:          embedder.DetectProvider(cfg.Embedding.Provider, cfg.Embedding.APIKey, cfg.Embedding.BaseURL),
		Model:             cfg.Embedding.Model,
		APIKey:            cfg.Embedding.APIKey,
		BaseURL:           cfg.Embedding.BaseURL,
		Dimension:         cfg.Embedding.Dimension,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           cfg.Embedding.Timeout,
		CacheSize:         cfg.Embedding.CacheSize,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	roots, err := workspace.NewStaticRoots(cfg.Workspaces)
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, err
	}

	branches := workspace.GitBranchLookup{}
	pipeline, err := retrieval.New(retrieval.Config{
		Roots:          roots,
		Branches:       branches,
		BranchTimeout:  cfg.BranchTimeout,
		FullText:       searcher.NewFullText(store),
		NewVector:      searcher.NewVectorFactory(store, logger),
		Embedder:       emb,
		ReadFile:       workspace.ReadFile,
		NRetrieve:      cfg.NRetrieve,
		BackendTimeout: cfg.BackendTimeout,
		Logger:         logger,
	})
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("failed to build retrieval pipeline: %w", err)
	}

	logger.Info("application ready",
		"db", cfg.DBPath,
		"workspaces", len(cfg.Workspaces),
		"embedding_provider", emb.Provider(),
		"embedding_model", emb.Model(),
	)

	return &App{
		cfg:      cfg,
		logger:   logger,
		storage:  store,
		embedder: emb,
		indexer:  indexer.New(store, emb, logger),
		pipeline: pipeline,
		branches: branches,
	}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *logging.Logger {
	return a.logger
}

// Retrieve runs hybrid retrieval over the configured workspaces.
func (a *App) Retrieve(ctx context.Context, query, directory string) ([]types.ContextItem, error) {
	return a.pipeline.Retrieve(ctx, query, directory)
}

// Index indexes req.Path under its current git branch. Only one run may be
// in flight; a concurrent call returns indexer.ErrIndexingInProgress.
func (a *App) Index(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	if err := ValidatePath(req.Path); err != nil {
		return nil, err
	}

	includeTests := a.cfg.Index.IncludeTests
	if req.IncludeTests != nil {
		includeTests = *req.IncludeTests
	}
	branch := a.branches.Branch(ctx, req.Path)

	var stats *indexer.Statistics
	err := a.lock.Run(func() error {
		var err error
		stats, err = a.indexer.IndexWorkspace(ctx, req.Path, &indexer.Config{
			Branch:       branch,
			Workers:      a.cfg.Index.Workers,
			BatchSize:    a.cfg.Index.BatchSize,
			IncludeTests: includeTests,
			MaxFileBytes: a.cfg.Index.MaxFileBytes,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &IndexResult{
		Path:                filepath.Clean(req.Path),
		Branch:              branch,
		FilesIndexed:        stats.FilesIndexed,
		FilesSkipped:        stats.FilesSkipped,
		FilesFailed:         stats.FilesFailed,
		FilesRemoved:        stats.FilesRemoved,
		ChunksCreated:       stats.ChunksCreated,
		EmbeddingsGenerated: stats.EmbeddingsGenerated,
		EmbeddingsFailed:    stats.EmbeddingsFailed,
		DurationMS:          stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		result.Errors = stats.ErrorMessages
		if n > maxReportedErrors {
			result.Errors = stats.ErrorMessages[:maxReportedErrors]
			result.ErrorCount = n
		}
	}
	return result, nil
}

// Status reports the index of path on its current branch, plus every other
// indexed branch of the same root. A path that was never indexed is not an
// error.
func (a *App) Status(ctx context.Context, path string) (*Status, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}

	root := filepath.Clean(path)
	branch := a.branches.Branch(ctx, root)
	status := &Status{
		Path:     root,
		Branch:   branch,
		Indexing: a.lock.Locked(),
		Provider: a.embedder.Provider(),
		Model:    a.embedder.Model(),
	}

	projects, err := a.storage.ListProjects(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	var project *storage.Project
	for _, p := range projects {
		status.Branches = append(status.Branches, BranchStatus{
			Branch:        p.Branch,
			Files:         p.TotalFiles,
			Chunks:        p.TotalChunks,
			LastIndexedAt: timePtr(p.LastIndexedAt),
		})
		if p.Branch == branch {
			project = p
		}
	}
	if project == nil {
		return status, nil
	}

	ps, err := a.storage.GetStatus(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	status.Indexed = true
	status.Files = ps.FilesCount
	status.Chunks = ps.ChunksCount
	status.Embeddings = ps.EmbeddingsCount
	status.IndexSizeMB = ps.IndexSizeMB
	status.LastIndexedAt = timePtr(project.LastIndexedAt)
	status.Health = &Health{
		DatabaseAccessible:  ps.Health.DatabaseAccessible,
		EmbeddingsAvailable: ps.Health.EmbeddingsAvailable,
		FTSIndexesBuilt:     ps.Health.FTSIndexesBuilt,
	}
	return status, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Close releases the embedder and the database.
func (a *App) Close() error {
	return errors.Join(a.embedder.Close(), a.storage.Close())
}

// ValidatePath checks that path is an absolute, readable directory.
func ValidatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}
