package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Scalar.Backend)
	assert.Equal(t, "sqlitevec", cfg.Vector.Backend)
	assert.Equal(t, "hash", cfg.Embedding.Model)
	assert.Equal(t, DefaultSimilarityThreshold, cfg.Cache.SimilarityThreshold)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"threshold above one", func(c *Config) { c.Cache.SimilarityThreshold = 1.5 }},
		{"negative long threshold", func(c *Config) { c.Cache.ThresholdLong = -0.1 }},
		{"zero max size", func(c *Config) { c.Cache.MaxSize = 0 }},
		{"unknown metric", func(c *Config) { c.Cache.Metric = "manhattan" }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateFillsFallbacks(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Workers = 0
	cfg.Cache.PreProcess = ""
	cfg.Cache.PostProcess = ""

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Embedding.Workers)
	assert.Equal(t, "concat_content", cfg.Cache.PreProcess)
	assert.Equal(t, "first_answer", cfg.Cache.PostProcess)
}

func TestLoadMergesSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 6100
cache:
  similarity_threshold: 0.9
vector:
  backend: redis
`), 0o600))
	t.Setenv("SEMCACHE_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6100, cfg.Server.Port)
	assert.Equal(t, 0.9, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, "redis", cfg.Vector.Backend)
	// Untouched settings keep their defaults.
	assert.Equal(t, "sqlite", cfg.Scalar.Backend)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("SEMCACHE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache: ["), 0o600))
	t.Setenv("SEMCACHE_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SEMCACHE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("SEMCACHE_PORT", "7070")
	t.Setenv("SEMCACHE_VECTOR_BACKEND", "chroma")
	t.Setenv("SEMCACHE_PG_DSN", "postgres://cache@localhost/semcache")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "chroma", cfg.Vector.Backend)
	assert.Equal(t, "postgres://cache@localhost/semcache", cfg.Scalar.Postgres.DSN)
	assert.Equal(t, "postgres://cache@localhost/semcache", cfg.Vector.Postgres.DSN)
}
