// Package config loads codectx settings from an optional TOML file, an
// optional .env file and CODECTX_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix for every environment variable.
const EnvPrefix = "CODECTX"

// Default values.
const (
	DefaultNRetrieve         = 20
	DefaultBranchTimeout     = 500 * time.Millisecond
	DefaultLogLevel          = "INFO"
	DefaultLogFormat         = "text"
	DefaultHTTPAddr          = "127.0.0.1:8765"
	DefaultEmbeddingTimeout  = 30 * time.Second
	DefaultRequestsPerSecond = 5
	DefaultCacheSize         = 10000
	DefaultIndexWorkers      = 4
	DefaultIndexBatchSize    = 20
	DefaultMaxFileBytes      = 1 << 20
)

// Config holds the full application configuration.
type Config struct {
	// DBPath is the SQLite index location.
	// Env: CODECTX_DB_PATH (default: ~/.codectx/index.db)
	DBPath string `envconfig:"DB_PATH" toml:"db_path"`

	// Workspaces are the workspace roots searched by retrieval.
	// Env: CODECTX_WORKSPACES (comma separated, default: current directory)
	Workspaces []string `envconfig:"WORKSPACES" toml:"workspaces"`

	// NRetrieve is the retrieval budget. Full-text search gets half of it.
	// Env: CODECTX_N_RETRIEVE (default: 20)
	NRetrieve int `envconfig:"N_RETRIEVE" toml:"n_retrieve"`

	// BranchTimeout bounds the whole branch lookup step.
	// Env: CODECTX_BRANCH_TIMEOUT (default: 500ms)
	BranchTimeout time.Duration `envconfig:"BRANCH_TIMEOUT" toml:"-"`

	// BackendTimeout bounds each search backend. Zero disables it.
	// Env: CODECTX_BACKEND_TIMEOUT (default: 0)
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" toml:"-"`

	// Env: CODECTX_LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" toml:"log_level"`

	// Env: CODECTX_LOG_FORMAT (default: text)
	LogFormat string `envconfig:"LOG_FORMAT" toml:"log_format"`

	// Env: CODECTX_HTTP_ADDR (default: 127.0.0.1:8765)
	HTTPAddr string `envconfig:"HTTP_ADDR" toml:"http_addr"`

	Embedding EmbeddingConfig `envconfig:"EMBEDDING" toml:"embedding"`
	Index     IndexConfig     `envconfig:"INDEX" toml:"index"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "local". Empty picks openai when a key or
	// base URL is set.
	// Env: CODECTX_EMBEDDING_PROVIDER
	Provider string `envconfig:"PROVIDER" toml:"provider"`

	// Env: CODECTX_EMBEDDING_MODEL
	Model string `envconfig:"MODEL" toml:"model"`

	// APIKey falls back to OPENAI_API_KEY.
	// Env: CODECTX_EMBEDDING_API_KEY
	APIKey string `envconfig:"API_KEY" toml:"api_key"`

	// BaseURL points at any OpenAI-compatible endpoint.
	// Env: CODECTX_EMBEDDING_BASE_URL
	BaseURL string `envconfig:"BASE_URL" toml:"base_url"`

	// Env: CODECTX_EMBEDDING_DIMENSION (default: provider default)
	Dimension int `envconfig:"DIMENSION" toml:"dimension"`

	// Env: CODECTX_EMBEDDING_REQUESTS_PER_SECOND (default: 5)
	RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" toml:"requests_per_second"`

	// Env: CODECTX_EMBEDDING_TIMEOUT (default: 30s)
	Timeout time.Duration `envconfig:"TIMEOUT" toml:"-"`

	// Env: CODECTX_EMBEDDING_CACHE_SIZE (default: 10000)
	CacheSize int `envconfig:"CACHE_SIZE" toml:"cache_size"`
}

// IndexConfig configures workspace indexing.
type IndexConfig struct {
	// Env: CODECTX_INDEX_WORKERS (default: 4)
	Workers int `envconfig:"WORKERS" toml:"workers"`

	// Env: CODECTX_INDEX_BATCH_SIZE (default: 20)
	BatchSize int `envconfig:"BATCH_SIZE" toml:"batch_size"`

	// Env: CODECTX_INDEX_INCLUDE_TESTS (default: true)
	IncludeTests bool `envconfig:"INCLUDE_TESTS" toml:"include_tests"`

	// Files larger than this are skipped.
	// Env: CODECTX_INDEX_MAX_FILE_BYTES (default: 1048576)
	MaxFileBytes int64 `envconfig:"MAX_FILE_BYTES" toml:"max_file_bytes"`
}

// fileDurations holds the duration keys of the TOML file. go-toml decodes
// them as strings and they are parsed with time.ParseDuration.
type fileDurations struct {
	BranchTimeout  string `toml:"branch_timeout"`
	BackendTimeout string `toml:"backend_timeout"`
	Embedding      struct {
		Timeout string `toml:"timeout"`
	} `toml:"embedding"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	dbPath := "codectx.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".codectx", "index.db")
	}
	return Config{
		DBPath:        dbPath,
		NRetrieve:     DefaultNRetrieve,
		BranchTimeout: DefaultBranchTimeout,
		LogLevel:      DefaultLogLevel,
		LogFormat:     DefaultLogFormat,
		HTTPAddr:      DefaultHTTPAddr,
		Embedding: EmbeddingConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			Timeout:           DefaultEmbeddingTimeout,
			CacheSize:         DefaultCacheSize,
		},
		Index: IndexConfig{
			Workers:      DefaultIndexWorkers,
			BatchSize:    DefaultIndexBatchSize,
			IncludeTests: true,
			MaxFileBytes: DefaultMaxFileBytes,
		},
	}
}

// Load builds the configuration. tomlPath and envPath are optional; a missing
// file is skipped. Later sources override earlier ones.
func Load(tomlPath, envPath string) (Config, error) {
	cfg := Default()

	if tomlPath != "" {
		if err := loadTOML(tomlPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := LoadDotEnv(envPath); err != nil {
		return Config{}, err
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if len(cfg.Workspaces) == 0 {
		if wd, err := os.Getwd(); err == nil {
			cfg.Workspaces = []string{wd}
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. Variables that
// are already set are not overridden. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadTOML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	var durations fileDurations
	if err := toml.Unmarshal(data, &durations); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{durations.BranchTimeout, &cfg.BranchTimeout},
		{durations.BackendTimeout, &cfg.BackendTimeout},
		{durations.Embedding.Timeout, &cfg.Embedding.Timeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		*d.dst = v
	}
	return nil
}

// Validate checks configuration bounds.
func (c Config) Validate() error {
	if c.NRetrieve < 1 {
		return fmt.Errorf("n_retrieve must be at least 1, got %d", c.NRetrieve)
	}
	if c.BranchTimeout <= 0 {
		return fmt.Errorf("branch timeout must be positive, got %s", c.BranchTimeout)
	}
	if c.BackendTimeout < 0 {
		return fmt.Errorf("backend timeout must not be negative, got %s", c.BackendTimeout)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.Index.Workers < 1 {
		return fmt.Errorf("index workers must be at least 1, got %d", c.Index.Workers)
	}
	if c.Index.BatchSize < 1 {
		return fmt.Errorf("index batch size must be at least 1, got %d", c.Index.BatchSize)
	}
	return nil
}

// Marshal renders cfg as TOML, used by `codectx config`. Durations are
// written as strings in the form loadTOML reads back.
func Marshal(cfg Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var durations fileDurations
	durations.BranchTimeout = cfg.BranchTimeout.String()
	durations.BackendTimeout = cfg.BackendTimeout.String()
	durations.Embedding.Timeout = cfg.Embedding.Timeout.String()

	doc["branch_timeout"] = durations.BranchTimeout
	doc["backend_timeout"] = durations.BackendTimeout
	embedding, ok := doc["embedding"].(map[string]any)
	if !ok {
		embedding = map[string]any{}
		doc["embedding"] = embedding
	}
	embedding["timeout"] = durations.Embedding.Timeout

	return toml.Marshal(doc)
}
