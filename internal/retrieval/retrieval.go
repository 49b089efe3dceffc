package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/codebase-context/internal/embedder"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/internal/workspace"
	"github.com/dshills/codebase-context/pkg/types"
)

// DefaultNRetrieve is the retrieval budget used when Config.NRetrieve is zero.
const DefaultNRetrieve = 20

// Backend names used in logs.
const (
	BackendFullText = "fulltext"
	BackendVector   = "vector"
)

// WorkspaceRoots lists the directories a retrieval searches.
type WorkspaceRoots interface {
	Roots(ctx context.Context) ([]string, error)
}

// BranchLookup reports the branch of a workspace root.
type BranchLookup = workspace.BranchLookup

// FileReader reads a file's bytes. The vector backend uses it to recover
// chunk text from stored line ranges.
type FileReader func(ctx context.Context, path string) ([]byte, error)

// Backend is a ranked chunk source. Search returns at most budget chunks in
// the backend's own rank order, restricted to scopes and, when directory is
// non-empty, to files under directory.
type Backend interface {
	Search(ctx context.Context, query string, budget int, scopes []types.ScopeTag, directory string) ([]types.Chunk, error)
}

// FullTextBackend ranks chunks lexically.
type FullTextBackend interface {
	Backend
}

// VectorBackend ranks chunks by embedding similarity.
type VectorBackend interface {
	Backend
}

// VectorBackendFactory builds a vector backend for one retrieval call.
type VectorBackendFactory func(emb embedder.Embedder, read FileReader) VectorBackend

// BackendOutcome is the result of one backend call.
type BackendOutcome struct {
	Chunks []types.Chunk
	Err    error
}

// OK reports whether the backend call succeeded.
func (o BackendOutcome) OK() bool {
	return o.Err == nil
}

// Config wires a Pipeline's collaborators.
type Config struct {
	Roots         WorkspaceRoots
	Branches      BranchLookup
	BranchTimeout time.Duration // zero uses workspace.DefaultBranchTimeout

	FullText  FullTextBackend
	NewVector VectorBackendFactory
	Embedder  embedder.Embedder
	ReadFile  FileReader

	NRetrieve int // zero uses DefaultNRetrieve

	// BackendTimeout bounds each backend call. Zero leaves backends
	// unbounded apart from the caller's context.
	BackendTimeout time.Duration

	Logger *logging.Logger
}

// Pipeline runs hybrid retrieval.
type Pipeline struct {
	roots          WorkspaceRoots
	resolver       *workspace.Resolver
	fullText       FullTextBackend
	newVector      VectorBackendFactory
	embedder       embedder.Embedder
	readFile       FileReader
	nRetrieve      int
	backendTimeout time.Duration
	logger         *logging.Logger
}

// New validates cfg and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Roots == nil:
		return nil, errors.New("workspace roots are required")
	case cfg.Branches == nil:
		return nil, errors.New("branch lookup is required")
	case cfg.FullText == nil:
		return nil, errors.New("full-text backend is required")
	case cfg.NewVector == nil:
		return nil, errors.New("vector backend factory is required")
	case cfg.ReadFile == nil:
		return nil, errors.New("file reader is required")
	case cfg.NRetrieve < 0:
		return nil, fmt.Errorf("n_retrieve must not be negative, got %d", cfg.NRetrieve)
	case cfg.BackendTimeout < 0:
		return nil, fmt.Errorf("backend timeout must not be negative, got %s", cfg.BackendTimeout)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	n := cfg.NRetrieve
	if n == 0 {
		n = DefaultNRetrieve
	}

	return &Pipeline{
		roots:          cfg.Roots,
		resolver:       workspace.NewResolver(cfg.Branches, cfg.BranchTimeout, logger),
		fullText:       cfg.FullText,
		newVector:      cfg.NewVector,
		embedder:       cfg.Embedder,
		readFile:       cfg.ReadFile,
		nRetrieve:      n,
		backendTimeout: cfg.BackendTimeout,
		logger:         logger,
	}, nil
}

// Retrieve returns context items for query. scopeHint optionally restricts
// both backends to files under a directory.
//
// The result is non-empty and ends with the instructions item. Errors are
// types.ErrNoWorkspace, types.ErrNoResults, a full-text backend error, or
// ctx's error.
func (p *Pipeline) Retrieve(ctx context.Context, query, scopeHint string) ([]types.ContextItem, error) {
	roots, err := p.roots.Roots(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrNoWorkspace, err)
	}
	if len(roots) == 0 {
		return nil, types.ErrNoWorkspace
	}

	scopes := p.resolver.Resolve(ctx, roots)
	vector := p.newVector(p.embedder, p.readFile)

	var fullText, vec BackendOutcome
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fullText = p.search(gctx, p.fullText, query, p.nRetrieve/2, scopes, scopeHint)
		if !fullText.OK() {
			if ctx.Err() == nil {
				p.logger.ErrorContext(ctx, "search backend failed",
					"backend", BackendFullText,
					"query_length", len(query),
					"error", fullText.Err,
				)
			}
			return fmt.Errorf("full-text search: %w", fullText.Err)
		}
		return nil
	})

	g.Go(func() error {
		vec = p.search(gctx, vector, query, p.nRetrieve, scopes, scopeHint)
		if !vec.OK() {
			p.logger.WarnContext(ctx, "search backend failed, continuing without it",
				"backend", BackendVector,
				"query_length", len(query),
				"error", vec.Err,
			)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// A cancelled caller must not be mistaken for a vector failure.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := make([]types.Chunk, 0, len(fullText.Chunks)+len(vec.Chunks))
	merged = append(merged, fullText.Chunks...)
	if vec.OK() {
		merged = append(merged, vec.Chunks...)
	}
	unique := DeduplicateChunks(merged)

	p.logger.DebugContext(ctx, "retrieval complete",
		"scopes", len(scopes),
		"fulltext", len(fullText.Chunks),
		"vector", len(vec.Chunks),
		"unique", len(unique),
	)

	return Assemble(unique)
}

func (p *Pipeline) search(ctx context.Context, b Backend, query string, budget int, scopes []types.ScopeTag, directory string) BackendOutcome {
	if b == nil {
		return BackendOutcome{Err: errors.New("backend not configured")}
	}
	if p.backendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.backendTimeout)
		defer cancel()
	}

	chunks, err := b.Search(ctx, query, budget, scopes, directory)
	if err != nil {
		return BackendOutcome{Err: err}
	}
	if budget >= 0 && len(chunks) > budget {
		chunks = chunks[:budget]
	}
	return BackendOutcome{Chunks: chunks}
}
