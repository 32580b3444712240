package vector

import (
	"fmt"

	"github.com/thebtf/semcache/internal/config"
	"github.com/thebtf/semcache/internal/vector/chroma"
	"github.com/thebtf/semcache/internal/vector/pgvecstore"
	"github.com/thebtf/semcache/internal/vector/redisstore"
	"github.com/thebtf/semcache/internal/vector/sqlitevec"
)

// Compile-time checks that every backend satisfies the Store interface.
var (
	_ Store = (*sqlitevec.Client)(nil)
	_ Store = (*pgvecstore.Client)(nil)
	_ Store = (*redisstore.Client)(nil)
	_ Store = (*chroma.Client)(nil)
)

// Open constructs the configured vector backend with the given metric and
// dimension, which stay fixed for the life of the store.
func Open(cfg config.VectorConfig, metric string, dimension int) (Store, error) {
	switch cfg.Backend {
	case "sqlitevec":
		return sqlitevec.New(sqlitevec.Config{
			Path:      cfg.SQLite.Path,
			Metric:    metric,
			Dimension: dimension,
			MaxConns:  cfg.SQLite.MaxConns,
			WALMode:   cfg.SQLite.WALMode,
		})
	case "pgvector":
		return pgvecstore.New(pgvecstore.Config{
			DSN:       cfg.Postgres.DSN,
			Metric:    metric,
			Dimension: dimension,
			MaxConns:  cfg.Postgres.MaxConns,
		})
	case "redis":
		return redisstore.New(redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			MaxIdle:   cfg.Redis.MaxIdle,
			MaxActive: cfg.Redis.MaxActive,
			Metric:    metric,
			Dimension: dimension,
		})
	case "chroma":
		return chroma.New(chroma.Config{
			BaseURL:   cfg.Chroma.BaseURL,
			Metric:    metric,
			Dimension: dimension,
		})
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
