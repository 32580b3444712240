package store

import (
	"fmt"

	"github.com/thebtf/semcache/internal/config"
	"github.com/thebtf/semcache/internal/store/postgres"
	"github.com/thebtf/semcache/internal/store/sqlite"
)

// Compile-time checks that every backend satisfies the Store interface.
var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// Open constructs the configured scalar backend.
func Open(cfg config.ScalarConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.New(sqlite.Config{
			Path:     cfg.SQLite.Path,
			MaxConns: cfg.SQLite.MaxConns,
			WALMode:  cfg.SQLite.WALMode,
		})
	case "postgres":
		return postgres.New(postgres.Config{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
		})
	default:
		return nil, fmt.Errorf("unknown scalar backend %q", cfg.Backend)
	}
}
