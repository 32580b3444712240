// Package vector defines the approximate nearest-neighbor tier of the
// cache: per-model collections of (id, embedding) pairs searched by
// similarity.
package vector

import (
	"context"

	"github.com/thebtf/semcache/pkg/models"
)

// Metrics supported by the vector tier. The metric is fixed per store
// instance at construction; thresholds are interpreted against it.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// DefaultTopK is the search breadth used when callers ask for the policy
// default by passing topK = -1. It lives in pkg/models so backends share
// the one constant without importing this package.
const DefaultTopK = models.DefaultTopK

// Store is the vector index over per-model collections. The dimension and
// metric are fixed at construction. Searching a model that was never
// created returns an empty result, not an error.
type Store interface {
	// Create ensures the collection for model exists. It reports whether
	// the collection was newly created and is idempotent.
	Create(ctx context.Context, model string) (bool, error)

	// MulAdd indexes the given (id, embedding) pairs under model.
	MulAdd(ctx context.Context, model string, data []models.VectorData) error

	// Search returns up to topK candidates ordered best first. topK <= 0
	// requests DefaultTopK. For cosine metrics Distance carries similarity
	// (higher is better); for L2 it carries distance (lower is better).
	Search(ctx context.Context, model string, vec []float32, topK int) ([]models.SearchResult, error)

	// Delete removes the given ids from the model's collection and reports
	// how many were removed.
	Delete(ctx context.Context, model string, ids []int64) (int64, error)

	// Rebuild drops and recreates the model's collection, atomically from
	// the caller's perspective.
	Rebuild(ctx context.Context, model string) error

	// Flush forces buffered writes to the index.
	Flush(ctx context.Context) error

	Close() error
}
