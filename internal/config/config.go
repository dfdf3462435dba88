// Package config loads and validates the engine configuration.
//
// Precedence, lowest to highest: built-in defaults, the YAML config
// file, QUARRY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quarry-search/quarry/internal/chunk"
	qerr "github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/logging"
)

// Index backends.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderStatic = "static"
)

// Config is the complete engine configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Index    IndexConfig    `yaml:"index"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Search   SearchConfig   `yaml:"search"`
	Retry    RetryConfig    `yaml:"retry"`
	Metadata MetadataConfig `yaml:"metadata"`
	Logging  logging.Config `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// AuthToken guards mutating endpoints. Empty disables auth.
	AuthToken string `yaml:"auth_token"`

	// IngestTimeout bounds one ingest request end to end.
	IngestTimeout time.Duration `yaml:"ingest_timeout"`
}

// IndexConfig configures the vector backend.
type IndexConfig struct {
	// Backend selects "qdrant" or "memory".
	Backend    string        `yaml:"backend"`
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Timeout    time.Duration `yaml:"timeout"`
	Collection string        `yaml:"collection"`
}

// EmbedderConfig configures the embedding provider.
type EmbedderConfig struct {
	// Provider selects "ollama" or "static".
	Provider   string        `yaml:"provider"`
	Host       string        `yaml:"host"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// ChunkingConfig sets default chunking parameters; requests may
// override them.
type ChunkingConfig struct {
	Strategy  string `yaml:"strategy"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
}

// SearchConfig sets query defaults.
type SearchConfig struct {
	TopK       int     `yaml:"top_k"`
	ScoreFloor float32 `yaml:"score_floor"`
	ScanLimit  int     `yaml:"scan_limit"`
	UseHybrid  bool    `yaml:"use_hybrid"`
}

// RetryConfig configures backend write retries.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// MetadataConfig configures the document record store.
type MetadataConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8000,
			IngestTimeout: 5 * time.Minute,
		},
		Index: IndexConfig{
			Backend:    BackendQdrant,
			Host:       "localhost",
			Port:       6333,
			Timeout:    90 * time.Second,
			Collection: "documents",
		},
		Embedder: EmbedderConfig{
			Provider:   ProviderOllama,
			Host:       "http://localhost:11434",
			Model:      "all-minilm",
			Dimensions: 384,
			BatchSize:  32,
			Timeout:    60 * time.Second,
			CacheSize:  1000,
		},
		Chunking: ChunkingConfig{
			Strategy:  string(chunk.StrategyFixed),
			ChunkSize: chunk.DefaultChunkSize,
			Overlap:   chunk.DefaultOverlap,
		},
		Search: SearchConfig{
			TopK:      5,
			ScanLimit: 1000,
			UseHybrid: true,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
		Metadata: MetadataConfig{
			Path: "quarry.db",
		},
		Logging: logging.Config{
			Level:         "info",
			WriteToStderr: true,
		},
	}
}

// Load reads the config file at path, if any, applies environment
// overrides and validates the result. An empty path loads defaults plus
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, qerr.Validation("failed to read config file", err).WithDetail("path", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, qerr.Validation("failed to parse config file", err).WithDetail("path", path)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config values from QUARRY_* environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("QUARRY_SERVER_HOST", &cfg.Server.Host)
	setInt("QUARRY_SERVER_PORT", &cfg.Server.Port)
	setString("QUARRY_AUTH_TOKEN", &cfg.Server.AuthToken)
	setDuration("QUARRY_INGEST_TIMEOUT", &cfg.Server.IngestTimeout)

	setString("QUARRY_INDEX_BACKEND", &cfg.Index.Backend)
	setString("QUARRY_INDEX_HOST", &cfg.Index.Host)
	setInt("QUARRY_INDEX_PORT", &cfg.Index.Port)
	setDuration("QUARRY_INDEX_TIMEOUT", &cfg.Index.Timeout)
	setString("QUARRY_INDEX_COLLECTION", &cfg.Index.Collection)

	setString("QUARRY_EMBEDDER_PROVIDER", &cfg.Embedder.Provider)
	setString("QUARRY_EMBEDDER_HOST", &cfg.Embedder.Host)
	setString("QUARRY_EMBEDDER_MODEL", &cfg.Embedder.Model)
	setInt("QUARRY_EMBEDDER_DIMENSIONS", &cfg.Embedder.Dimensions)

	setString("QUARRY_LOG_LEVEL", &cfg.Logging.Level)
	setString("QUARRY_LOG_FILE", &cfg.Logging.FilePath)
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return qerr.Validation(fmt.Sprintf("invalid server port: %d", c.Server.Port), nil)
	}
	switch c.Index.Backend {
	case BackendQdrant, BackendMemory:
	default:
		return qerr.Validation(fmt.Sprintf("unknown index backend: %q", c.Index.Backend), nil)
	}
	switch c.Embedder.Provider {
	case ProviderOllama, ProviderStatic:
	default:
		return qerr.Validation(fmt.Sprintf("unknown embedding provider: %q", c.Embedder.Provider), nil)
	}
	chunking := chunk.Options{
		Strategy:  chunk.Strategy(c.Chunking.Strategy),
		ChunkSize: c.Chunking.ChunkSize,
		Overlap:   c.Chunking.Overlap,
	}
	if err := chunking.Validate(); err != nil {
		return err
	}
	if c.Search.TopK <= 0 {
		return qerr.Validation(fmt.Sprintf("search top_k must be positive, got %d", c.Search.TopK), nil)
	}
	if c.Retry.MaxAttempts <= 0 {
		return qerr.Validation(fmt.Sprintf("retry max_attempts must be positive, got %d", c.Retry.MaxAttempts), nil)
	}
	return nil
}

// ChunkOptions returns the configured default chunking options.
func (c *Config) ChunkOptions() chunk.Options {
	return chunk.Options{
		Strategy:  chunk.Strategy(c.Chunking.Strategy),
		ChunkSize: c.Chunking.ChunkSize,
		Overlap:   c.Chunking.Overlap,
	}
}
