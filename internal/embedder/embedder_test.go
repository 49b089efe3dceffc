package embedder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash("m1", "hello world")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ComputeHash("m1", "hello world"), "stable")
	assert.NotEqual(t, a, ComputeHash("m2", "hello world"), "model is part of the key")
	assert.NotEqual(t, ComputeHash("ab", "c"), ComputeHash("a", "bc"), "separator prevents collisions")
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "x"}))
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
}

func TestValidateBatchRequest(t *testing.T) {
	tests := []struct {
		name    string
		texts   []string
		wantErr error
	}{
		{name: "valid", texts: []string{"a", "b"}},
		{name: "empty batch", texts: nil, wantErr: ErrInvalidInput},
		{name: "empty text", texts: []string{"a", ""}, wantErr: ErrInvalidInput},
		{name: "too large", texts: make([]string, MaxBatchSize+1), wantErr: ErrBatchTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBatchRequest(BatchEmbeddingRequest{Texts: tt.texts})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCache(t *testing.T) {
	cache := NewCache(2)

	emb := &Embedding{Vector: []float32{1, 2}, Dimension: 2}
	cache.Set("a", emb)

	got, ok := cache.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got.Vector)

	// Returned copies do not alias the cached vector
	got.Vector[0] = 99
	again, _ := cache.Get("a")
	assert.Equal(t, float32(1), again.Vector[0])

	cache.Set("b", emb)
	cache.Set("c", emb)
	assert.Equal(t, 2, cache.Size())
	_, ok = cache.Get("a")
	assert.False(t, ok, "least recently used entry is evicted")

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestCache_NilIsSafe(t *testing.T) {
	var cache *Cache
	found, missing := cache.lookup("m", []string{"a", "b"})
	assert.Equal(t, []int{0, 1}, missing)
	assert.Len(t, found, 2)
	cache.store("m", "a", &Embedding{})
}

func TestLocalProvider(t *testing.T) {
	p, err := NewLocalProvider(0, NewCache(10))
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, LocalDimension, p.Dimension())
	assert.Equal(t, ProviderLocal, p.Provider())
	assert.Equal(t, DefaultLocalModel, p.Model())

	emb, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "parseConfig reads the config file"})
	require.NoError(t, err)
	assert.Len(t, emb.Vector, LocalDimension)
	assert.InDelta(t, 1.0, norm(emb.Vector), 1e-5)

	again, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "parseConfig reads the config file"})
	require.NoError(t, err)
	assert.Equal(t, emb.Vector, again.Vector, "deterministic")

	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestLocalProvider_SharedTermsAreCloser(t *testing.T) {
	p, err := NewLocalProvider(256, nil)
	require.NoError(t, err)
	ctx := context.Background()

	query, _ := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "parse config"})
	related, _ := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "func parseConfig(path string) (*Config, error)"})
	unrelated, _ := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "render button component with onClick handler"})

	assert.Greater(t, dot(query.Vector, related.Vector), dot(query.Vector, unrelated.Vector))
}

func TestLocalProvider_Batch(t *testing.T) {
	p, err := NewLocalProvider(64, nil)
	require.NoError(t, err)

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a b", "c d"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 2)
	assert.Equal(t, ProviderLocal, resp.Provider)
	for _, e := range resp.Embeddings {
		assert.Equal(t, 64, e.Dimension)
	}
}

func TestLocalProvider_CancelledContext(t *testing.T) {
	p, err := NewLocalProvider(8, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSplitCamel(t *testing.T) {
	assert.Equal(t, "parse Config File", splitCamel("parseConfigFile"))
	assert.Equal(t, "HTTPServer", splitCamel("HTTPServer"))
	assert.Equal(t, "snake_case", splitCamel("snake_case"))
}

func TestNormalizeVector(t *testing.T) {
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, NormalizeVector([]float32{3, 4}), 1e-6)
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
}

func TestRetryWithBackoff(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, BaseDelay: 1, MaxDelay: 2, Multiplier: 2}
	ctx := context.Background()

	calls := 0
	got, err := retryWithBackoff(ctx, cfg, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)

	calls = 0
	cfg.Retryable = func(err error) bool { return !strings.Contains(err.Error(), "fatal") }
	_, err = retryWithBackoff(ctx, cfg, func() (int, error) {
		calls++
		return 0, errors.New("fatal")
	})
	assert.EqualError(t, err, "fatal")
	assert.Equal(t, 1, calls, "non-retryable errors stop immediately")
}

func norm(v []float32) float64 {
	return dot(v, v)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
