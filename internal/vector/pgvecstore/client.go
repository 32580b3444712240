// Package pgvecstore provides the PostgreSQL vector backend on the pgvector
// extension. All model collections share one table; the ANN operators do
// the ranking server-side.
package pgvecstore

import (
	"context"
	"errors"
	"fmt"

	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thebtf/semcache/pkg/models"
)

// vectorRow is the GORM model for indexed embeddings.
type vectorRow struct {
	Model     string       `gorm:"primaryKey;column:model"`
	Embedding pgvec.Vector `gorm:"column:embedding"`
	ID        int64        `gorm:"primaryKey;column:id"`
}

func (vectorRow) TableName() string { return "modelcache_vectors" }

// collectionRow tracks which model scopes have been registered.
type collectionRow struct {
	Model string `gorm:"primaryKey;column:model"`
}

func (collectionRow) TableName() string { return "modelcache_collections" }

// Client provides vector operations via PostgreSQL+pgvector.
type Client struct {
	db        *gorm.DB
	metric    string
	dimension int
}

// Config holds configuration for the client.
type Config struct {
	DSN       string
	Metric    string // cosine | l2
	Dimension int
	MaxConns  int
}

// New connects to PostgreSQL, ensures the pgvector extension and the
// vector tables exist.
func New(cfg Config) (*Client, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Metric != "cosine" && cfg.Metric != "l2" {
		return nil, fmt.Errorf("unknown vector metric %q", cfg.Metric)
	}

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

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		return nil, fmt.Errorf("create pgvector extension: %w", err)
	}
	if err := db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS modelcache_vectors (
			model TEXT NOT NULL,
			id BIGINT NOT NULL,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (model, id)
		)`, cfg.Dimension)).Error; err != nil {
		return nil, fmt.Errorf("create vectors table: %w", err)
	}
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS modelcache_collections (
			model TEXT PRIMARY KEY
		)`).Error; err != nil {
		return nil, fmt.Errorf("create collections table: %w", err)
	}

	return &Client{db: db, metric: cfg.Metric, dimension: cfg.Dimension}, nil
}

// Create ensures the collection for model exists.
func (c *Client) Create(ctx context.Context, model string) (bool, error) {
	res := c.db.WithContext(ctx).Exec(
		`INSERT INTO modelcache_collections (model) VALUES (?) ON CONFLICT DO NOTHING`, model)
	if res.Error != nil {
		return false, fmt.Errorf("create collection %s: %w", model, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (c *Client) collectionExists(ctx context.Context, model string) (bool, error) {
	var row collectionRow
	err := c.db.WithContext(ctx).Where("model = ?", model).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", model, err)
	}
	return true, nil
}

// MulAdd upserts the given (id, embedding) pairs under model.
func (c *Client) MulAdd(ctx context.Context, model string, data []models.VectorData) error {
	if len(data) == 0 {
		return nil
	}

	rows := make([]vectorRow, 0, len(data))
	for _, vd := range data {
		if len(vd.Data) != c.dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", vd.ID, len(vd.Data), c.dimension)
		}
		rows = append(rows, vectorRow{
			Model:     model,
			ID:        vd.ID,
			Embedding: pgvec.NewVector(vd.Data),
		})
	}

	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if err := tx.Exec(`
				INSERT INTO modelcache_vectors (model, id, embedding) VALUES (?, ?, ?)
				ON CONFLICT (model, id) DO UPDATE SET embedding = EXCLUDED.embedding`,
				row.Model, row.ID, row.Embedding).Error; err != nil {
				return fmt.Errorf("index vector %d: %w", row.ID, err)
			}
		}
		return nil
	})
}

// Search ranks candidates server-side with the metric's pgvector operator.
func (c *Client) Search(ctx context.Context, model string, vec []float32, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = models.DefaultTopK
	}

	exists, err := c.collectionExists(ctx, model)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	// <=> is cosine distance, <-> is L2 distance; both rank best-first
	// ascending.
	op := "<->"
	if c.metric == "cosine" {
		op = "<=>"
	}

	type hit struct {
		ID       int64   `gorm:"column:id"`
		Distance float64 `gorm:"column:distance"`
	}
	var hits []hit
	query := fmt.Sprintf(`
		SELECT id, embedding %s ? AS distance
		FROM modelcache_vectors
		WHERE model = ?
		ORDER BY distance
		LIMIT ?`, op)
	if err := c.db.WithContext(ctx).Raw(query, pgvec.NewVector(vec), model, topK).Scan(&hits).Error; err != nil {
		return nil, fmt.Errorf("search collection %s: %w", model, err)
	}

	results := make([]models.SearchResult, len(hits))
	for i, h := range hits {
		d := float32(h.Distance)
		if c.metric == "cosine" {
			// Convert cosine distance to similarity so callers see one
			// convention per metric.
			d = 1 - d
		}
		results[i] = models.SearchResult{Distance: d, ID: h.ID}
	}
	return results, nil
}

// Delete removes the given ids from the model's collection.
func (c *Client) Delete(ctx context.Context, model string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := c.db.WithContext(ctx).
		Where("model = ? AND id IN ?", model, ids).
		Delete(&vectorRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete vectors: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Rebuild drops every vector in the model's collection in one transaction.
func (c *Client) Rebuild(ctx context.Context, model string) error {
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("model = ?", model).Delete(&vectorRow{}).Error; err != nil {
			return fmt.Errorf("drop vectors for %s: %w", model, err)
		}
		return tx.Exec(
			`INSERT INTO modelcache_collections (model) VALUES (?) ON CONFLICT DO NOTHING`, model).Error
	})
}

// Flush is a no-op: PostgreSQL commits every write before returning.
func (c *Client) Flush(ctx context.Context) error {
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
