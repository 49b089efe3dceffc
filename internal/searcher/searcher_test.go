package searcher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codebase-context/internal/embedder"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/internal/storage"
	"github.com/dshills/codebase-context/internal/workspace"
	"github.com/dshills/codebase-context/pkg/types"
)

const testDimension = 64

type fixture struct {
	root  string
	store *storage.SQLiteStorage
	emb   embedder.Embedder
	scope []types.ScopeTag
}

// newFixture writes files under a temp root and indexes one chunk per
// entry of chunks, keyed by relative path.
func newFixture(t *testing.T, files map[string]string, chunks map[string][][2]int) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	emb, err := embedder.NewLocalProvider(testDimension, nil)
	require.NoError(t, err)

	root := t.TempDir()
	project := &storage.Project{RootPath: root, Branch: "main", IndexVersion: storage.CurrentSchemaVersion}
	require.NoError(t, store.CreateProject(ctx, project))

	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o600))

		file := &storage.File{
			ProjectID:   project.ID,
			FilePath:    rel,
			ContentHash: sha256.Sum256([]byte(content)),
			ModTime:     time.Now(),
			SizeBytes:   int64(len(content)),
		}
		require.NoError(t, store.UpsertFile(ctx, file))

		lines := SplitLines(content)
		for _, span := range chunks[rel] {
			text := strings.Join(lines[span[0]-1:span[1]], "\n")
			chunk := &storage.Chunk{
				FileID:      file.ID,
				Content:     text,
				ContentHash: sha256.Sum256([]byte(text)),
				TokenCount:  len(text) / 4,
				StartLine:   span[0],
				EndLine:     span[1],
			}
			require.NoError(t, store.UpsertChunk(ctx, chunk))

			vec, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
			require.NoError(t, err)
			require.NoError(t, store.UpsertEmbedding(ctx, &storage.Embedding{
				ChunkID:   chunk.ID,
				Vector:    storage.SerializeVector(vec.Vector),
				Dimension: vec.Dimension,
				Provider:  emb.Provider(),
				Model:     emb.Model(),
			}))
		}
	}

	return &fixture{
		root:  root,
		store: store,
		emb:   emb,
		scope: []types.ScopeTag{{Directory: root, Branch: "main"}},
	}
}

const configSource = `package config

func ParseConfig(path string) (*Config, error) {
	return load(path)
}

func unrelatedHelper() int {
	return 42
}`

func TestFullText_Search(t *testing.T) {
	f := newFixture(t,
		map[string]string{"internal/config/config.go": configSource},
		map[string][][2]int{"internal/config/config.go": {{1, 5}, {7, 9}}},
	)
	ft := NewFullText(f.store)

	chunks, err := ft.Search(context.Background(), "ParseConfig", 10, f.scope, "")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, filepath.Join(f.root, "internal", "config", "config.go"), chunks[0].FilePath)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 5, chunks[0].EndLine)
	assert.Contains(t, chunks[0].Content, "func ParseConfig")
	assert.Greater(t, chunks[0].Score, 0.0)
}

func TestFullText_EmptyInputs(t *testing.T) {
	f := newFixture(t,
		map[string]string{"a.go": configSource},
		map[string][][2]int{"a.go": {{1, 5}}},
	)
	ft := NewFullText(f.store)
	ctx := context.Background()

	for name, search := range map[string]func() ([]types.Chunk, error){
		"zero budget": func() ([]types.Chunk, error) { return ft.Search(ctx, "ParseConfig", 0, f.scope, "") },
		"no scopes":   func() ([]types.Chunk, error) { return ft.Search(ctx, "ParseConfig", 5, nil, "") },
		"blank query": func() ([]types.Chunk, error) { return ft.Search(ctx, "  ", 5, f.scope, "") },
	} {
		t.Run(name, func(t *testing.T) {
			chunks, err := search()
			require.NoError(t, err)
			assert.Empty(t, chunks)
		})
	}
}

func TestFullText_DirectoryFilter(t *testing.T) {
	f := newFixture(t,
		map[string]string{
			"pkg/a/a.go": "func Shared() {}",
			"pkg/b/b.go": "func Shared() {}",
		},
		map[string][][2]int{"pkg/a/a.go": {{1, 1}}, "pkg/b/b.go": {{1, 1}}},
	)
	ft := NewFullText(f.store)

	chunks, err := ft.Search(context.Background(), "Shared", 10, f.scope, filepath.Join(f.root, "pkg", "b"))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, filepath.Join(f.root, "pkg", "b", "b.go"), chunks[0].FilePath)
}

func TestVector_Search(t *testing.T) {
	f := newFixture(t,
		map[string]string{"internal/config/config.go": configSource},
		map[string][][2]int{"internal/config/config.go": {{1, 5}, {7, 9}}},
	)
	v := NewVector(f.store, f.emb, workspace.ReadFile)

	query := strings.Join(SplitLines(configSource)[6:9], "\n")
	chunks, err := v.Search(context.Background(), query, 10, f.scope, "")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 7, chunks[0].StartLine, "identical text ranks first")
	assert.Equal(t, 9, chunks[0].EndLine)
	assert.Equal(t, query, chunks[0].Content, "text comes from disk")
	assert.GreaterOrEqual(t, chunks[0].Score, chunks[1].Score)
}

func TestVector_SkipsStaleChunks(t *testing.T) {
	f := newFixture(t,
		map[string]string{"a.go": configSource, "b.go": configSource},
		map[string][][2]int{"a.go": {{7, 9}}, "b.go": {{1, 5}}},
	)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "a.go"), []byte("package config\n"), 0o600))

	var logs bytes.Buffer
	backend := NewVectorFactory(f.store, logging.NewWithWriter(&logs, logging.FormatText, "debug"))(f.emb, workspace.ReadFile)
	chunks, err := backend.Search(context.Background(), "unrelatedHelper", 10, f.scope, "")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, filepath.Join(f.root, "b.go"), chunks[0].FilePath)
	assert.Contains(t, logs.String(), "skipping stale chunk")
	assert.Contains(t, logs.String(), ErrStaleChunk.Error())
}

func TestVector_ReadFailure(t *testing.T) {
	f := newFixture(t,
		map[string]string{"a.go": configSource},
		map[string][][2]int{"a.go": {{1, 5}}},
	)
	readErr := errors.New("permission denied")
	read := func(context.Context, string) ([]byte, error) { return nil, readErr }

	v := NewVector(f.store, f.emb, read)
	_, err := v.Search(context.Background(), "ParseConfig", 10, f.scope, "")
	assert.ErrorIs(t, err, readErr)
}

func TestVector_ReadsEachFileOnce(t *testing.T) {
	f := newFixture(t,
		map[string]string{"a.go": configSource},
		map[string][][2]int{"a.go": {{1, 5}, {7, 9}}},
	)
	reads := 0
	read := func(ctx context.Context, path string) ([]byte, error) {
		reads++
		return workspace.ReadFile(ctx, path)
	}

	chunks, err := NewVector(f.store, f.emb, read).Search(context.Background(), "config", 10, f.scope, "")
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
	assert.Equal(t, 1, reads)
}

func TestVector_EmbedderFailure(t *testing.T) {
	f := newFixture(t, map[string]string{}, nil)

	_, err := NewVector(f.store, nil, workspace.ReadFile).Search(context.Background(), "q", 5, f.scope, "")
	assert.ErrorIs(t, err, ErrNoEmbedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewVector(f.store, f.emb, workspace.ReadFile).Search(ctx, "q", 5, f.scope, "")
	assert.Error(t, err)
}

func TestNewVectorFactory(t *testing.T) {
	f := newFixture(t, map[string]string{}, nil)

	backend := NewVectorFactory(f.store, nil)(f.emb, workspace.ReadFile)
	v, ok := backend.(*Vector)
	require.True(t, ok)
	assert.Same(t, f.store, v.storage)
	assert.Same(t, f.emb, v.embedder)
}

func TestSliceLines(t *testing.T) {
	lines := SplitLines("one\ntwo\nthree")

	got, err := sliceLines(lines, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "two\nthree", got)

	for _, span := range [][2]int{{0, 1}, {3, 2}, {2, 4}} {
		_, err := sliceLines(lines, span[0], span[1])
		assert.ErrorIs(t, err, ErrStaleChunk, "span %v", span)
	}
}
