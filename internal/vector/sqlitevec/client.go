// Package sqlitevec provides the embedded vector backend: embeddings are
// persisted as BLOB rows in SQLite and scanned exactly in process. It is
// the zero-dependency local backend; larger deployments use pgvector,
// Redis, or Chroma.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/thebtf/semcache/pkg/models"
	"github.com/thebtf/semcache/pkg/vectors"
)

// Client provides vector operations over an embedded SQLite database.
type Client struct {
	db        *sql.DB
	metric    string
	dimension int
	mu        sync.Mutex
}

// Config holds configuration for the client.
type Config struct {
	Path      string
	Metric    string // cosine | l2
	Dimension int
	MaxConns  int
	WALMode   bool
}

// New opens the vector database at cfg.Path and ensures the schema exists.
func New(cfg Config) (*Client, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Metric != "cosine" && cfg.Metric != "l2" {
		return nil, fmt.Errorf("unknown vector metric %q", cfg.Metric)
	}

	connStr := cfg.Path + "?_pragma=busy_timeout(5000)"
	if cfg.WALMode {
		connStr += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open vector database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			model TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS vectors (
			model TEXT NOT NULL,
			id INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			PRIMARY KEY (model, id)
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create vector schema: %w", err)
	}

	return &Client{
		db:        db,
		metric:    cfg.Metric,
		dimension: cfg.Dimension,
	}, nil
}

// Create ensures the collection for model exists.
func (c *Client) Create(ctx context.Context, model string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.collectionExists(ctx, model)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO collections (model, dimension) VALUES (?, ?)`, model, c.dimension); err != nil {
		return false, fmt.Errorf("create collection %s: %w", model, err)
	}
	return true, nil
}

func (c *Client) collectionExists(ctx context.Context, model string) (bool, error) {
	var dim int
	err := c.db.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE model = ?`, model).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", model, err)
	}
	return true, nil
}

// MulAdd indexes the given (id, embedding) pairs under model.
func (c *Client) MulAdd(ctx context.Context, model string, data []models.VectorData) error {
	if len(data) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mul add: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO vectors (model, id, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare mul add: %w", err)
	}
	defer stmt.Close()

	for _, vd := range data {
		if len(vd.Data) != c.dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", vd.ID, len(vd.Data), c.dimension)
		}
		if _, err := stmt.ExecContext(ctx, model, vd.ID, models.EncodeEmbedding(vd.Data)); err != nil {
			return fmt.Errorf("index vector %d: %w", vd.ID, err)
		}
	}

	return tx.Commit()
}

// Search scans the model's collection and scores every vector in process.
// Exact k-NN is fine at embedded scale; approximate indexes live in the
// server-backed stores.
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

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, embedding FROM vectors WHERE model = ?`, model)
	if err != nil {
		return nil, fmt.Errorf("scan collection %s: %w", model, err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		stored, err := models.DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decode vector %d: %w", id, err)
		}

		var score float32
		if c.metric == "cosine" {
			score = vectors.Cosine(vec, stored)
		} else {
			score = vectors.L2(vec, stored)
		}
		results = append(results, models.SearchResult{Distance: score, ID: id})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Cosine carries similarity (higher first); L2 carries distance
	// (lower first).
	sort.Slice(results, func(i, j int) bool {
		if c.metric == "cosine" {
			return results[i].Distance > results[j].Distance
		}
		return results[i].Distance < results[j].Distance
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes the given ids from the model's collection.
func (c *Client) Delete(ctx context.Context, model string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, model)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	// #nosec G201 -- placeholders are "?" strings, values are parameterized
	query := fmt.Sprintf(`DELETE FROM vectors WHERE model = ? AND id IN (%s)`,
		strings.Join(placeholders, ","))

	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete vectors: %w", err)
	}
	return res.RowsAffected()
}

// Rebuild drops every vector in the model's collection and recreates it
// empty, in one transaction.
func (c *Client) Rebuild(ctx context.Context, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE model = ?`, model); err != nil {
		return fmt.Errorf("drop vectors for %s: %w", model, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO collections (model, dimension) VALUES (?, ?)`, model, c.dimension); err != nil {
		return fmt.Errorf("recreate collection %s: %w", model, err)
	}

	return tx.Commit()
}

// Flush is a no-op: every write is committed before returning.
func (c *Client) Flush(ctx context.Context) error {
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}
