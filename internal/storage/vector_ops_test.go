package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codebase-context/pkg/types"
)

// seedSearchData indexes two roots; /repo/app on main and feature, /repo/lib on main
func seedSearchData(t *testing.T, s *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()

	add := func(root, branch, path string, start, end int, content string, vec []float32) {
		project, err := s.GetProject(ctx, root, branch)
		if err != nil {
			project = createTestProject(t, s, root, branch)
		}
		file, err := s.GetFile(ctx, project.ID, path)
		if err != nil {
			file = createTestFile(t, s, project.ID, path)
		}
		chunk := createTestChunk(t, s, file.ID, start, end, content)
		if vec != nil {
			require.NoError(t, s.UpsertEmbedding(ctx, &Embedding{
				ChunkID: chunk.ID, Vector: SerializeVector(vec), Dimension: len(vec),
				Provider: "local", Model: "test",
			}))
		}
	}

	add("/repo/app", "main", "src/auth/login.ts", 1, 20, "function login(user) { return authenticate(user) }", []float32{1, 0, 0})
	add("/repo/app", "main", "src/ui/button.ts", 1, 10, "export const Button = () => render()", []float32{0, 1, 0})
	add("/repo/app", "feature", "src/auth/logout.ts", 1, 8, "function logout(user) { session.end(user) }", []float32{0.9, 0.1, 0})
	add("/repo/lib", "main", "auth.go", 5, 30, "func authenticate(user User) error { return nil }", []float32{0.8, 0.2, 0})
}

func TestSearchText_ScopedByBranch(t *testing.T) {
	s := setupTestDB(t)
	seedSearchData(t, s)
	ctx := context.Background()

	scopes := []types.ScopeTag{{Directory: "/repo/app", Branch: "main"}}
	results, err := s.SearchText(ctx, scopes, "user", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "src/auth/login.ts", results[0].FilePath)
	assert.Equal(t, "/repo/app", results[0].RootPath)
	assert.Equal(t, 1, results[0].StartLine)
	assert.Equal(t, 20, results[0].EndLine)
	assert.Contains(t, results[0].Content, "login")
	assert.Greater(t, results[0].BM25Score, 0.0)
	assert.LessOrEqual(t, results[0].BM25Score, 1.0)
}

func TestSearchText_UnknownBranchMatchesAllBranches(t *testing.T) {
	s := setupTestDB(t)
	seedSearchData(t, s)

	scopes := []types.ScopeTag{{Directory: "/repo/app", Branch: types.BranchUnknown}}
	results, err := s.SearchText(context.Background(), scopes, "user", 10, nil)
	require.NoError(t, err)

	paths := make([]string, 0, len(results))
	for _, r := range results {
		paths = append(paths, r.FilePath)
	}
	assert.ElementsMatch(t, []string{"src/auth/login.ts", "src/auth/logout.ts"}, paths)
}

func TestSearchText_MultipleScopesAndLimit(t *testing.T) {
	s := setupTestDB(t)
	seedSearchData(t, s)

	scopes := []types.ScopeTag{
		{Directory: "/repo/app", Branch: "main"},
		{Directory: "/repo/lib", Branch: "main"},
	}
	results, err := s.SearchText(context.Background(), scopes, "authenticate user", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	limited, err := s.SearchText(context.Background(), scopes, "authenticate user", 1, nil)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSearchText_DirectoryFilter(t *testing.T) {
	s := setupTestDB(t)
	seedSearchData(t, s)
	ctx := context.Background()
	scopes := []types.ScopeTag{
		{Directory: "/repo/app", Branch: types.BranchUnknown},
		{Directory: "/repo/lib", Branch: "main"},
	}

	tests := []struct {
		name  string
		dir   string
		paths []string
	}{
		{name: "absolute subdirectory", dir: filepath.FromSlash("/repo/app/src/ui"), paths: []string{"src/ui/button.ts"}},
		{name: "relative subdirectory", dir: "src/auth", paths: []string{"src/auth/login.ts", "src/auth/logout.ts"}},
		{name: "parent of roots", dir: filepath.FromSlash("/repo"), paths: []string{
			"src/auth/login.ts", "src/auth/logout.ts", "src/ui/button.ts", "auth.go",
		}},
		{name: "unrelated directory", dir: filepath.FromSlash("/elsewhere"), paths: []string{}},
		{name: "escaping relative", dir: "../x", paths: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchText(ctx, scopes, "render user", 10, &SearchFilters{Directory: tt.dir})
			require.NoError(t, err)
			got := make([]string, 0, len(results))
			for _, r := range results {
				got = append(got, r.FilePath)
			}
			assert.ElementsMatch(t, tt.paths, got)
		})
	}
}

func TestSearchText_EdgeCases(t *testing.T) {
	s := setupTestDB(t)
	seedSearchData(t, s)
	ctx := context.Background()
	scopes := []types.ScopeTag{{Directory: "/repo/app", Branch: "main"}}

	results, err := s.SearchText(ctx, scopes, "   ??? ", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "no searchable terms")

	results, err = s.SearchText(ctx, nil, "user", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results, "no scopes")

	results, err = s.SearchText(ctx, scopes, "user", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	// FTS5 syntax in the query is treated as plain terms
	results, err = s.SearchText(ctx, scopes, `login AND "NOT" (user* OR NEAR)`, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchVector_RanksBySimilarity(t *testing.T) {
	s := setupTestDB(t)
	seedSearchData(t, s)

	scopes := []types.ScopeTag{
		{Directory: "/repo/app", Branch: "main"},
		{Directory: "/repo/lib", Branch: "main"},
	}
	results, err := s.SearchVector(context.Background(), scopes, []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "src/auth/login.ts", results[0].FilePath)
	assert.Equal(t, "auth.go", results[1].FilePath)
	assert.Equal(t, "src/ui/button.ts", results[2].FilePath)
	assert.InDelta(t, 1.0, results[0].SimilarityScore, 1e-6)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].SimilarityScore, results[i].SimilarityScore)
	}
}

func TestSearchVector_FiltersAndLimits(t *testing.T) {
	s := setupTestDB(t)
	seedSearchData(t, s)
	ctx := context.Background()
	scopes := []types.ScopeTag{{Directory: "/repo/app", Branch: types.BranchUnknown}}

	limited, err := s.SearchVector(ctx, scopes, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	under, err := s.SearchVector(ctx, scopes, []float32{1, 0, 0}, 10, &SearchFilters{Directory: "/repo/app/src/ui"})
	require.NoError(t, err)
	require.Len(t, under, 1)
	assert.Equal(t, "src/ui/button.ts", under[0].FilePath)

	wrongDim, err := s.SearchVector(ctx, scopes, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, wrongDim)

	none, err := s.SearchVector(ctx, scopes, []float32{1, 0, 0}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBuildMatchQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "how does login work", want: `"how" OR "does" OR "login" OR "work"`},
		{in: "Login login LOGIN", want: `"Login"`},
		{in: `a "quoted" (group)*`, want: `"a" OR "quoted" OR "group"`},
		{in: "parse_config()", want: `"parse_config"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, buildMatchQuery(tt.in), "input %q", tt.in)
	}
}

func TestDirectoryPrefix(t *testing.T) {
	root := filepath.FromSlash("/repo/app")
	tests := []struct {
		dir    string
		prefix string
		ok     bool
	}{
		{dir: "", prefix: "", ok: true},
		{dir: root, prefix: "", ok: true},
		{dir: filepath.Join(root, "src", "auth"), prefix: "src/auth", ok: true},
		{dir: filepath.FromSlash("/repo"), prefix: "", ok: true},
		{dir: filepath.FromSlash("/repo/application"), ok: false},
		{dir: "src", prefix: "src", ok: true},
		{dir: ".", prefix: "", ok: true},
		{dir: "..", ok: false},
	}
	for _, tt := range tests {
		prefix, ok := directoryPrefix(root, tt.dir)
		assert.Equal(t, tt.ok, ok, "dir %q", tt.dir)
		assert.Equal(t, tt.prefix, prefix, "dir %q", tt.dir)
	}
}

func TestGlobEscape(t *testing.T) {
	assert.Equal(t, "a[[]1][*]b[?]", globEscape("a[1]*b?"))
}

func TestSerializeVectorRoundTrip(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, v, DeserializeVector(SerializeVector(v)))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}
