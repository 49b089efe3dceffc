package storage

import (
	"context"
	"time"

	"github.com/dshills/codebase-context/pkg/types"
)

// Storage defines the interface for persisting and querying indexed workspaces
type Storage interface {
	// Project operations
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, rootPath, branch string) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error
	ListProjects(ctx context.Context, rootPath string) ([]*Project, error)

	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, projectID int64, filePath string) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
	ListFiles(ctx context.Context, projectID int64) ([]*File, error)

	// Chunk operations
	UpsertChunk(ctx context.Context, chunk *Chunk) error
	ListChunksWithoutEmbedding(ctx context.Context, projectID int64, limit int) ([]*Chunk, error)
	DeleteChunksByFile(ctx context.Context, fileID int64) error

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error

	// Search operations
	SearchVector(ctx context.Context, scopes []types.ScopeTag, vector []float32, limit int, filters *SearchFilters) ([]VectorResult, error)
	SearchText(ctx context.Context, scopes []types.ScopeTag, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Status operations
	GetStatus(ctx context.Context, projectID int64) (*ProjectStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Project is one indexed workspace root at one branch
type Project struct {
	ID            int64
	RootPath      string // Absolute
	Branch        string // types.BranchUnknown when HEAD is detached or not a git repo
	TotalFiles    int
	TotalChunks   int
	IndexVersion  string
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// File represents a tracked source file
type File struct {
	ID            int64
	ProjectID     int64
	FilePath      string // Relative to project root, slash separated
	ContentHash   [32]byte
	ModTime       time.Time
	SizeBytes     int64
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Chunk is a stored line range of a file
type Chunk struct {
	ID          int64
	FileID      int64
	Content     string
	ContentHash [32]byte
	TokenCount  int
	StartLine   int // 1-based
	EndLine     int // 1-based, inclusive
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Embedding represents a vector embedding for a chunk
type Embedding struct {
	ID        int64
	ChunkID   int64
	Vector    []byte // Serialized float32 array
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// SearchFilters contains filters for narrowing search results
type SearchFilters struct {
	Directory string // Absolute, or relative to each root
}

// Location identifies where a search hit lives on disk
type Location struct {
	RootPath  string
	FilePath  string // Relative to RootPath
	StartLine int
	EndLine   int
}

// VectorResult represents a result from vector similarity search.
// It carries no text; callers read it from disk.
type VectorResult struct {
	ChunkID int64
	Location
	SimilarityScore float64
}

// TextResult represents a result from full-text search
type TextResult struct {
	ChunkID int64
	Location
	Content   string
	BM25Score float64
}

// ProjectStatus contains statistics about an indexed project
type ProjectStatus struct {
	Project         *Project
	FilesCount      int
	ChunksCount     int
	EmbeddingsCount int
	IndexSizeMB     float64
	LastIndexedAt   time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible  bool
	EmbeddingsAvailable bool
	FTSIndexesBuilt     bool
}
