package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides scalar operations on PostgreSQL.
type Store struct {
	db    *gorm.DB
	sqlDB *sql.DB
}

// Config holds database configuration.
type Config struct {
	DSN      string
	MaxConns int
}

// New connects to PostgreSQL and runs schema migrations.
func New(cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:      logger.Default.LogMode(logger.Silent),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 8
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, sqlDB: sqlDB}, nil
}

// runMigrations runs all schema migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_cache_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&AnswerRow{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&QueryLogRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("modelcache_llm_answer", "modelcache_query_log")
			},
		},
	})

	return m.Migrate()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping checks if the database connection is alive.
func (s *Store) Ping() error {
	return s.sqlDB.Ping()
}
