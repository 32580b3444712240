// Package config provides configuration management for semcache.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the default HTTP port for the cache service.
	DefaultPort = 5000

	// DefaultMaxSize is the default per-model capacity of the memory tier.
	DefaultMaxSize = 100000

	// DefaultSimilarityThreshold admits a candidate when its score meets it.
	DefaultSimilarityThreshold = 0.95

	// DefaultLongQueryBoundary is the query length (in characters) beyond
	// which the long-query threshold applies.
	DefaultLongQueryBoundary = 100

	// DefaultAuditWorkers is the size of the async query-log writer pool.
	DefaultAuditWorkers = 6
)

// ServerConfig holds HTTP front-end settings.
type ServerConfig struct {
	Port         int     `yaml:"port"`
	RateLimit    float64 `yaml:"rate_limit"`
	RateBurst    int     `yaml:"rate_burst"`
	MaxBodyBytes int64   `yaml:"max_body_bytes"`
}

// CacheConfig holds the tunables of the cache engine itself.
type CacheConfig struct {
	Eviction            string  `yaml:"eviction"`     // arc | wtinylfu
	Metric              string  `yaml:"metric"`       // cosine | l2
	PreProcess          string  `yaml:"pre_process"`  // last_content | concat_content | content_with_role
	PostProcess         string  `yaml:"post_process"` // first_answer | nearest_answer | random_answer
	MaxSize             int     `yaml:"max_size"`
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	ThresholdLong       float64 `yaml:"similarity_threshold_long"`
	LongQueryBoundary   int     `yaml:"long_query_boundary"`
	Normalize           bool    `yaml:"normalize"`
}

// EmbeddingConfig selects and sizes the embedding pipeline.
type EmbeddingConfig struct {
	Model     string `yaml:"model"` // hash | openai
	Name      string `yaml:"name"`  // upstream model identifier for API backends
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	MaxTokens int    `yaml:"max_tokens"`
}

// SQLiteConfig configures the embedded SQLite backends.
type SQLiteConfig struct {
	Path     string `yaml:"path"`
	MaxConns int    `yaml:"max_conns"`
	WALMode  bool   `yaml:"wal_mode"`
}

// PostgresConfig configures the Postgres backends.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"max_conns"`
}

// RedisConfig configures the Redis vector backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	MaxIdle   int    `yaml:"max_idle"`
	MaxActive int    `yaml:"max_active"`
}

// ChromaConfig configures the Chroma HTTP vector backend.
type ChromaConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ScalarConfig selects the durable scalar store.
type ScalarConfig struct {
	Backend  string         `yaml:"backend"` // sqlite | postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Backend  string         `yaml:"backend"` // sqlitevec | pgvector | redis | chroma
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Chroma   ChromaConfig   `yaml:"chroma"`
}

// ObjectConfig selects the blob store for non-string payloads.
type ObjectConfig struct {
	Backend string `yaml:"backend"` // local
	Dir     string `yaml:"dir"`
}

// AuditConfig sizes the async query-log writer pool.
type AuditConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Scalar    ScalarConfig    `yaml:"scalar"`
	Vector    VectorConfig    `yaml:"vector"`
	Object    ObjectConfig    `yaml:"object"`
	Audit     AuditConfig     `yaml:"audit"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.semcache).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".semcache")
}

// SettingsPath returns the settings file path, honoring SEMCACHE_CONFIG.
func SettingsPath() string {
	if p := os.Getenv("SEMCACHE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DataDir(), "semcache.yaml")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         DefaultPort,
			RateLimit:    50,
			RateBurst:    100,
			MaxBodyBytes: 1 << 20,
		},
		Cache: CacheConfig{
			Eviction:            "wtinylfu",
			Metric:              "cosine",
			PreProcess:          "concat_content",
			PostProcess:         "first_answer",
			MaxSize:             DefaultMaxSize,
			TopK:                1,
			SimilarityThreshold: DefaultSimilarityThreshold,
			ThresholdLong:       DefaultSimilarityThreshold,
			LongQueryBoundary:   DefaultLongQueryBoundary,
			Normalize:           false,
		},
		Embedding: EmbeddingConfig{
			Model:     "hash",
			Dimension: 768,
			Workers:   1,
			QueueSize: 64,
			MaxTokens: 8191,
		},
		Scalar: ScalarConfig{
			Backend: "sqlite",
			SQLite: SQLiteConfig{
				Path:     filepath.Join(DataDir(), "semcache.db"),
				MaxConns: 4,
				WALMode:  true,
			},
			Postgres: PostgresConfig{MaxConns: 8},
		},
		Vector: VectorConfig{
			Backend: "sqlitevec",
			SQLite: SQLiteConfig{
				Path:     filepath.Join(DataDir(), "semcache-vectors.db"),
				MaxConns: 4,
				WALMode:  true,
			},
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				MaxIdle:   4,
				MaxActive: 16,
			},
			Chroma: ChromaConfig{BaseURL: "http://127.0.0.1:8000"},
		},
		Object: ObjectConfig{
			Backend: "local",
			Dir:     filepath.Join(DataDir(), "objects"),
		},
		Audit: AuditConfig{
			Workers:   DefaultAuditWorkers,
			QueueSize: 256,
		},
	}
}

// Load loads configuration from the settings file, merging with defaults.
// A missing file yields pure defaults; a malformed file is an error so a
// typo cannot silently fall back to a different backend.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", SettingsPath(), err)
	}

	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides a handful of settings from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SEMCACHE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("SEMCACHE_SCALAR_BACKEND"); v != "" {
		cfg.Scalar.Backend = v
	}
	if v := os.Getenv("SEMCACHE_VECTOR_BACKEND"); v != "" {
		cfg.Vector.Backend = v
	}
	if v := os.Getenv("SEMCACHE_PG_DSN"); v != "" {
		cfg.Scalar.Postgres.DSN = v
		cfg.Vector.Postgres.DSN = v
	}
	if v := os.Getenv("SEMCACHE_REDIS_ADDR"); v != "" {
		cfg.Vector.Redis.Addr = v
	}
	if v := os.Getenv("SEMCACHE_OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be within [0, 1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Cache.ThresholdLong < 0 || c.Cache.ThresholdLong > 1 {
		return fmt.Errorf("similarity_threshold_long must be within [0, 1], got %v", c.Cache.ThresholdLong)
	}
	if c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache max_size must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Cache.Metric != "cosine" && c.Cache.Metric != "l2" {
		return fmt.Errorf("unknown metric %q", c.Cache.Metric)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.Workers <= 0 {
		c.Embedding.Workers = 1
	}
	if c.Audit.Workers <= 0 {
		c.Audit.Workers = DefaultAuditWorkers
	}
	if c.Cache.PreProcess == "" {
		c.Cache.PreProcess = "concat_content"
	}
	if c.Cache.PostProcess == "" {
		c.Cache.PostProcess = "first_answer"
	}
	return nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		configMu.Lock()
		globalConfig = cfg
		configMu.Unlock()
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// setGlobal replaces the global configuration. Used by the settings watcher.
func setGlobal(cfg *Config) {
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}
