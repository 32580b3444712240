// Package redisstore provides the Redis vector backend. Each entry is a
// hash keyed by model and id; a per-model id set bounds the scan and a
// collections set records registered model scopes. Scoring happens client
// side over pipelined reads.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/thebtf/semcache/pkg/models"
	"github.com/thebtf/semcache/pkg/vectors"
)

const (
	collectionsKey = "semcache:collections"
	dialTimeout    = 5 * time.Second
)

// Client provides vector operations via Redis.
type Client struct {
	pool      *redis.Pool
	metric    string
	dimension int
}

// Config holds configuration for the client.
type Config struct {
	Addr      string
	Password  string
	DB        int
	MaxIdle   int
	MaxActive int
	Metric    string // cosine | l2
	Dimension int
}

// New creates a Redis-backed vector store and verifies connectivity.
func New(cfg Config) (*Client, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Metric != "cosine" && cfg.Metric != "l2" {
		return nil, fmt.Errorf("unknown vector metric %q", cfg.Metric)
	}

	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 4
	}
	maxActive := cfg.MaxActive
	if maxActive <= 0 {
		maxActive = 16
	}

	pool := &redis.Pool{
		MaxIdle:     maxIdle,
		MaxActive:   maxActive,
		IdleTimeout: 5 * time.Minute,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{
				redis.DialConnectTimeout(dialTimeout),
				redis.DialDatabase(cfg.DB),
			}
			if cfg.Password != "" {
				opts = append(opts, redis.DialPassword(cfg.Password))
			}
			return redis.Dial("tcp", cfg.Addr, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr, err)
	}

	return &Client{pool: pool, metric: cfg.Metric, dimension: cfg.Dimension}, nil
}

func idsKey(model string) string {
	return "semcache:" + model + ":ids"
}

func vecKey(model string, id int64) string {
	return fmt.Sprintf("semcache:%s:%d", model, id)
}

// Create ensures the collection for model exists.
func (c *Client) Create(ctx context.Context, model string) (bool, error) {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	added, err := redis.Int64(conn.Do("SADD", collectionsKey, model))
	if err != nil {
		return false, fmt.Errorf("create collection %s: %w", model, err)
	}
	return added > 0, nil
}

func (c *Client) collectionExists(conn redis.Conn, model string) (bool, error) {
	exists, err := redis.Bool(conn.Do("SISMEMBER", collectionsKey, model))
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", model, err)
	}
	return exists, nil
}

// MulAdd indexes the given (id, embedding) pairs under model. Writes are
// pipelined into one round trip.
func (c *Client) MulAdd(ctx context.Context, model string, data []models.VectorData) error {
	if len(data) == 0 {
		return nil
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, vd := range data {
		if len(vd.Data) != c.dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", vd.ID, len(vd.Data), c.dimension)
		}
		if err := conn.Send("HSET", vecKey(model, vd.ID), "embedding", models.EncodeEmbedding(vd.Data)); err != nil {
			return fmt.Errorf("queue vector %d: %w", vd.ID, err)
		}
		if err := conn.Send("SADD", idsKey(model), vd.ID); err != nil {
			return fmt.Errorf("queue id %d: %w", vd.ID, err)
		}
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("flush mul add: %w", err)
	}
	for range data {
		if _, err := conn.Receive(); err != nil {
			return fmt.Errorf("mul add reply: %w", err)
		}
		if _, err := conn.Receive(); err != nil {
			return fmt.Errorf("mul add reply: %w", err)
		}
	}
	return nil
}

// Search reads the model's id set, pipelines the embedding fetches, and
// scores candidates client side.
func (c *Client) Search(ctx context.Context, model string, vec []float32, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = models.DefaultTopK
	}

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	exists, err := c.collectionExists(conn, model)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	ids, err := redis.Int64s(conn.Do("SMEMBERS", idsKey(model)))
	if err != nil {
		return nil, fmt.Errorf("list ids for %s: %w", model, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	for _, id := range ids {
		if err := conn.Send("HGET", vecKey(model, id), "embedding"); err != nil {
			return nil, fmt.Errorf("queue read for %d: %w", id, err)
		}
	}
	if err := conn.Flush(); err != nil {
		return nil, fmt.Errorf("flush reads: %w", err)
	}

	var results []models.SearchResult
	for _, id := range ids {
		blob, err := redis.Bytes(conn.Receive())
		if err != nil {
			// Entry deleted between SMEMBERS and the read; skip it.
			continue
		}
		stored, err := models.DecodeEmbedding(blob)
		if err != nil {
			continue
		}

		var score float32
		if c.metric == "cosine" {
			score = vectors.Cosine(vec, stored)
		} else {
			score = vectors.L2(vec, stored)
		}
		results = append(results, models.SearchResult{Distance: score, ID: id})
	}

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

	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var count int64
	for _, id := range ids {
		removed, err := redis.Int64(conn.Do("DEL", vecKey(model, id)))
		if err != nil {
			return count, fmt.Errorf("delete vector %d: %w", id, err)
		}
		if _, err := conn.Do("SREM", idsKey(model), id); err != nil {
			return count, fmt.Errorf("unindex id %d: %w", id, err)
		}
		count += removed
	}
	return count, nil
}

// Rebuild drops every vector in the model's collection and re-registers it.
func (c *Client) Rebuild(ctx context.Context, model string) error {
	conn, err := c.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ids, err := redis.Int64s(conn.Do("SMEMBERS", idsKey(model)))
	if err != nil {
		return fmt.Errorf("list ids for %s: %w", model, err)
	}
	for _, id := range ids {
		if _, err := conn.Do("DEL", vecKey(model, id)); err != nil {
			return fmt.Errorf("drop vector %d: %w", id, err)
		}
	}
	if _, err := conn.Do("DEL", idsKey(model)); err != nil {
		return fmt.Errorf("drop id set for %s: %w", model, err)
	}
	if _, err := conn.Do("SADD", collectionsKey, model); err != nil {
		return fmt.Errorf("re-register collection %s: %w", model, err)
	}
	return nil
}

// Flush is a no-op: Redis applies every command before replying.
func (c *Client) Flush(ctx context.Context) error {
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.pool.Close()
}
