package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerr "github.com/quarry-search/quarry/internal/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, BackendQdrant, cfg.Index.Backend)
	assert.Equal(t, "documents", cfg.Index.Collection)
	assert.Equal(t, 90*time.Second, cfg.Index.Timeout)
	assert.Equal(t, ProviderOllama, cfg.Embedder.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Server.IngestTimeout)
	assert.True(t, cfg.Search.UseHybrid)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
index:
  backend: memory
embedder:
  provider: static
chunking:
  strategy: sliding
  chunk_size: 256
  overlap: 32
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Index.Backend)
	assert.Equal(t, ProviderStatic, cfg.Embedder.Provider)
	assert.Equal(t, 256, cfg.Chunking.ChunkSize)
	// Untouched values keep defaults.
	assert.Equal(t, "documents", cfg.Index.Collection)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o644))
	t.Setenv("QUARRY_SERVER_PORT", "9200")
	t.Setenv("QUARRY_INDEX_BACKEND", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Index.Backend)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, qerr.HasKind(err, qerr.KindValidation))
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad backend", func(c *Config) { c.Index.Backend = "cassandra" }},
		{"bad provider", func(c *Config) { c.Embedder.Provider = "gpt" }},
		{"bad strategy", func(c *Config) { c.Chunking.Strategy = "random" }},
		{"overlap too large", func(c *Config) {
			c.Chunking.Strategy = "sliding"
			c.Chunking.ChunkSize = 10
			c.Chunking.Overlap = 10
		}},
		{"bad top_k", func(c *Config) { c.Search.TopK = 0 }},
		{"bad retry", func(c *Config) { c.Retry.MaxAttempts = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, qerr.HasKind(err, qerr.KindValidation))
		})
	}
}
