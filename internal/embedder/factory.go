package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder configuration
type Config struct {
	Provider          string // openai or local
	Model             string
	APIKey            string
	BaseURL           string
	Dimension         int
	RequestsPerSecond float64
	Timeout           time.Duration
	CacheSize         int // 0 disables caching
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimension:         cfg.Dimension,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.Timeout,
		}, cache)
	case ProviderLocal, "":
		return NewLocalProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider picks openai when credentials or an endpoint are present, else local
func DetectProvider(requested, apiKey, baseURL string) string {
	if requested != "" {
		return strings.ToLower(requested)
	}
	if apiKey != "" || baseURL != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
