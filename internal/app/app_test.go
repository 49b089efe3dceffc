package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codebase-context/internal/config"
	"github.com/dshills/codebase-context/internal/indexer"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/internal/retrieval"
	"github.com/dshills/codebase-context/pkg/types"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTestApp(t *testing.T, workspaces ...string) *App {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.Workspaces = workspaces
	cfg.Embedding.Provider = "local"
	cfg.Embedding.Dimension = 64
	cfg.Index.Workers = 2

	a, err := New(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_IndexThenRetrieve(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"auth/login.go":  "package auth\n\nfunc Authenticate(user, password string) bool {\n\treturn user != \"\" && password != \"\"\n}\n",
		"util/strings.go": "package util\n\nfunc Reverse(s string) string {\n\treturn s\n}\n",
	})
	a := newTestApp(t, root)
	ctx := context.Background()

	result, err := a.Index(ctx, IndexRequest{Path: root})
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.Equal(t, types.BranchUnknown, result.Branch)
	assert.Greater(t, result.ChunksCreated, 0)
	assert.Equal(t, result.ChunksCreated, result.EmbeddingsGenerated)

	items, err := a.Retrieve(ctx, "Authenticate", "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(items), 2)
	assert.Equal(t, "login.go (1-5)", items[0].Name)
	assert.Equal(t, filepath.Join(root, "auth", "login.go")+" (1-5)", items[0].Description)
	assert.Equal(t, retrieval.InstructionsName, items[len(items)-1].Name)
}

func TestApp_RetrieveWithoutIndexReturnsNoResults(t *testing.T) {
	a := newTestApp(t, t.TempDir())

	_, err := a.Retrieve(context.Background(), "anything", "")
	assert.ErrorIs(t, err, types.ErrNoResults)
}

func TestApp_IndexRejectsConcurrentRun(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"main.go": "package main\n"})
	a := newTestApp(t, root)

	require.True(t, a.lock.TryAcquire())
	_, err := a.Index(context.Background(), IndexRequest{Path: root})
	assert.ErrorIs(t, err, indexer.ErrIndexingInProgress)

	status, err := a.Status(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, status.Indexing)

	a.lock.Release()
	_, err = a.Index(context.Background(), IndexRequest{Path: root})
	assert.NoError(t, err)
}

func TestApp_IndexHonoursIncludeTests(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":      "package main\n\nfunc main() {}\n",
		"main_test.go": "package main\n\nfunc TestMain(t *testing.T) {}\n",
	})
	a := newTestApp(t, root)

	excluded := false
	result, err := a.Index(context.Background(), IndexRequest{Path: root, IncludeTests: &excluded})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesIndexed)
}

func TestApp_Status(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"main.go": "package main\n\nfunc main() {}\n"})
	a := newTestApp(t, root)
	ctx := context.Background()

	status, err := a.Status(ctx, root)
	require.NoError(t, err)
	assert.False(t, status.Indexed)
	assert.Nil(t, status.LastIndexedAt)
	assert.Equal(t, "local", status.Provider)

	_, err = a.Index(ctx, IndexRequest{Path: root})
	require.NoError(t, err)

	status, err = a.Status(ctx, root)
	require.NoError(t, err)
	assert.True(t, status.Indexed)
	assert.False(t, status.Indexing)
	assert.Equal(t, 1, status.Files)
	assert.Equal(t, 1, status.Chunks)
	assert.Equal(t, 1, status.Embeddings)
	assert.NotNil(t, status.LastIndexedAt)
	require.NotNil(t, status.Health)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.EmbeddingsAvailable)
	assert.True(t, status.Health.FTSIndexesBuilt)
	require.Len(t, status.Branches, 1)
	assert.Equal(t, status.Branch, status.Branches[0].Branch)
}

func TestApp_StatusListsIndexedBranches(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})
	a := newTestApp(t, root)
	ctx := context.Background()

	_, err := a.Index(ctx, IndexRequest{Path: root})
	require.NoError(t, err)
	_, err = a.indexer.IndexWorkspace(ctx, root, &indexer.Config{Branch: "feature"})
	require.NoError(t, err)

	status, err := a.Status(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, types.BranchUnknown, status.Branch)
	assert.True(t, status.Indexed)

	require.Len(t, status.Branches, 2)
	names := []string{status.Branches[0].Branch, status.Branches[1].Branch}
	assert.ElementsMatch(t, []string{types.BranchUnknown, "feature"}, names)
	for _, b := range status.Branches {
		assert.Equal(t, 2, b.Files, b.Branch)
		assert.NotNil(t, b.LastIndexedAt, b.Branch)
	}

	// Another root shares the database but none of its branches
	other := t.TempDir()
	status, err = a.Status(ctx, other)
	require.NoError(t, err)
	assert.False(t, status.Indexed)
	assert.Empty(t, status.Branches)
	assert.Nil(t, status.Health)
}

func TestValidatePath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "valid directory", path: dir},
		{name: "empty", path: "", wantErr: ErrPathRequired},
		{name: "relative", path: "some/dir", wantErr: ErrPathNotAbsolute},
		{name: "missing", path: filepath.Join(dir, "missing"), wantErr: ErrPathNotFound},
		{name: "file", path: file, wantErr: ErrNotDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_CreatesDatabaseDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "index.db")
	cfg.Workspaces = []string{t.TempDir()}
	cfg.Embedding.Provider = "local"

	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	_, err = os.Stat(cfg.DBPath)
	assert.NoError(t, err)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.Embedding.Provider = "bogus"

	_, err := New(cfg, nil)
	assert.Error(t, err)
}
