// Package chroma provides the Chroma vector backend over its HTTP REST
// API. Each model scope maps to one collection; points carry the scalar
// row id in metadata so deletes can address them by id.
package chroma

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/thebtf/semcache/pkg/models"
)

const httpTimeout = 30 * time.Second

// Client provides vector operations via a Chroma server.
type Client struct {
	http      *http.Client
	baseURL   string
	metric    string
	dimension int

	// collection name -> server-side collection id
	colIDs map[string]string
	colMu  sync.RWMutex
}

// Config holds configuration for the client.
type Config struct {
	BaseURL   string
	Metric    string // cosine | l2
	Dimension int
}

// New creates a Chroma client. No connection is made until the first call.
func New(cfg Config) (*Client, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Metric != "cosine" && cfg.Metric != "l2" {
		return nil, fmt.Errorf("unknown vector metric %q", cfg.Metric)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chroma base URL required")
	}

	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		metric:    cfg.Metric,
		dimension: cfg.Dimension,
		colIDs:    make(map[string]string),
	}, nil
}

func collectionName(model string) string {
	return "semcache_" + model
}

type collectionInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// doJSON performs one API call and decodes the response into out (when
// non-nil). Non-2xx responses surface a body snippet.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("chroma request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("chroma %s %s: status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode chroma response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Create ensures the collection for model exists.
func (c *Client) Create(ctx context.Context, model string) (bool, error) {
	name := collectionName(model)

	c.colMu.RLock()
	_, cached := c.colIDs[name]
	c.colMu.RUnlock()
	if cached {
		return false, nil
	}

	var info collectionInfo
	status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/collections/"+name, nil, &info)
	if err == nil {
		c.rememberCollection(name, info.ID)
		return false, nil
	}
	if status != http.StatusNotFound && status != http.StatusInternalServerError {
		return false, err
	}

	space := "cosine"
	if c.metric == "l2" {
		space = "l2"
	}
	req := map[string]any{
		"name":          name,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": space},
	}
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/v1/collections", req, &info); err != nil {
		return false, fmt.Errorf("create collection %s: %w", name, err)
	}
	c.rememberCollection(name, info.ID)
	return true, nil
}

func (c *Client) rememberCollection(name, id string) {
	c.colMu.Lock()
	c.colIDs[name] = id
	c.colMu.Unlock()
}

func (c *Client) forgetCollection(name string) {
	c.colMu.Lock()
	delete(c.colIDs, name)
	c.colMu.Unlock()
}

// lookupCollection resolves the server-side collection id, or "" when the
// collection does not exist.
func (c *Client) lookupCollection(ctx context.Context, model string) (string, error) {
	name := collectionName(model)

	c.colMu.RLock()
	id, ok := c.colIDs[name]
	c.colMu.RUnlock()
	if ok {
		return id, nil
	}

	var info collectionInfo
	status, err := c.doJSON(ctx, http.MethodGet, "/api/v1/collections/"+name, nil, &info)
	if err != nil {
		if status == http.StatusNotFound || status == http.StatusInternalServerError {
			return "", nil
		}
		return "", err
	}
	c.rememberCollection(name, info.ID)
	return info.ID, nil
}

// MulAdd indexes the given (id, embedding) pairs under model. Point ids
// are fresh uuids; the scalar id travels in metadata.
func (c *Client) MulAdd(ctx context.Context, model string, data []models.VectorData) error {
	if len(data) == 0 {
		return nil
	}

	colID, err := c.lookupCollection(ctx, model)
	if err != nil {
		return err
	}
	if colID == "" {
		return fmt.Errorf("collection for model %s does not exist", model)
	}

	ids := make([]string, len(data))
	embeddings := make([][]float32, len(data))
	metadatas := make([]map[string]any, len(data))
	for i, vd := range data {
		if len(vd.Data) != c.dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", vd.ID, len(vd.Data), c.dimension)
		}
		ids[i] = uuid.NewString()
		embeddings[i] = vd.Data
		metadatas[i] = map[string]any{"scalar_id": vd.ID}
	}

	req := map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"metadatas":  metadatas,
	}
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+colID+"/add", req, nil); err != nil {
		return fmt.Errorf("add vectors to %s: %w", model, err)
	}
	return nil
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float64        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

// Search queries the model's collection and converts Chroma's distances to
// the store convention: similarity for cosine, distance for L2.
func (c *Client) Search(ctx context.Context, model string, vec []float32, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		topK = models.DefaultTopK
	}

	colID, err := c.lookupCollection(ctx, model)
	if err != nil {
		return nil, err
	}
	if colID == "" {
		return nil, nil
	}

	req := map[string]any{
		"query_embeddings": [][]float32{vec},
		"n_results":        topK,
		"include":          []string{"metadatas", "distances"},
	}
	var resp queryResponse
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+colID+"/query", req, &resp); err != nil {
		return nil, fmt.Errorf("query %s: %w", model, err)
	}
	if len(resp.Distances) == 0 || len(resp.Metadatas) == 0 {
		return nil, nil
	}

	distances := resp.Distances[0]
	metadatas := resp.Metadatas[0]
	results := make([]models.SearchResult, 0, len(distances))
	for i := range distances {
		if i >= len(metadatas) {
			break
		}
		scalarID, ok := metadataScalarID(metadatas[i])
		if !ok {
			continue
		}

		d := distances[i]
		if c.metric == "cosine" {
			// Cosine space reports 1 - similarity.
			d = 1 - d
		} else {
			// L2 space reports squared distance.
			d = math.Sqrt(d)
		}
		results = append(results, models.SearchResult{Distance: float32(d), ID: scalarID})
	}
	return results, nil
}

func metadataScalarID(meta map[string]any) (int64, bool) {
	switch v := meta["scalar_id"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

// Delete removes the points whose scalar ids match via a metadata filter.
// Chroma does not report a deleted count, so the requested count is
// returned on success.
func (c *Client) Delete(ctx context.Context, model string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	colID, err := c.lookupCollection(ctx, model)
	if err != nil {
		return 0, err
	}
	if colID == "" {
		return 0, nil
	}

	req := map[string]any{
		"where": map[string]any{"scalar_id": map[string]any{"$in": ids}},
	}
	if _, err := c.doJSON(ctx, http.MethodPost, "/api/v1/collections/"+colID+"/delete", req, nil); err != nil {
		return 0, fmt.Errorf("delete vectors from %s: %w", model, err)
	}
	return int64(len(ids)), nil
}

// Rebuild drops and recreates the model's collection.
func (c *Client) Rebuild(ctx context.Context, model string) error {
	name := collectionName(model)

	status, err := c.doJSON(ctx, http.MethodDelete, "/api/v1/collections/"+name, nil, nil)
	if err != nil && status != http.StatusNotFound {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	c.forgetCollection(name)

	if _, err := c.Create(ctx, model); err != nil {
		return fmt.Errorf("recreate collection %s: %w", name, err)
	}
	return nil
}

// Flush is a no-op: the server applies every call before replying.
func (c *Client) Flush(ctx context.Context) error {
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}
