package cache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/semcache/internal/store"
	"github.com/thebtf/semcache/internal/vector"
	"github.com/thebtf/semcache/pkg/models"
)

// DatabaseCache coordinates the durable tiers: every admitted entry is
// written to the scalar store first (to obtain its id) and then indexed in
// the vector store under that id.
type DatabaseCache struct {
	scalar store.Store
	vector vector.Store
}

// NewDatabase pairs a scalar and a vector store.
func NewDatabase(scalar store.Store, vec vector.Store) *DatabaseCache {
	return &DatabaseCache{scalar: scalar, vector: vec}
}

// Scalar exposes the scalar tier for row reads, hit counting, and the
// audit log.
func (d *DatabaseCache) Scalar() store.Store { return d.scalar }

// BatchPut inserts the scalar rows, pairs each returned id with its
// embedding, and indexes the pairs. Rows without an embedding are
// persisted but stay unreachable by similarity search. Returns the scalar
// ids in input order.
func (d *DatabaseCache) BatchPut(ctx context.Context, model string, rows []*models.CacheRow, embeddings [][]float32) ([]int64, error) {
	if len(rows) != len(embeddings) {
		return nil, fmt.Errorf("%w: %d rows but %d embeddings", models.ErrParam, len(rows), len(embeddings))
	}

	ids, err := d.scalar.BatchInsert(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("scalar insert: %w", err)
	}

	vectorData := make([]models.VectorData, 0, len(ids))
	for i, id := range ids {
		if embeddings[i] == nil {
			continue
		}
		vectorData = append(vectorData, models.VectorData{ID: id, Data: embeddings[i]})
	}
	if len(vectorData) > 0 {
		if err := d.vector.MulAdd(ctx, model, vectorData); err != nil {
			// The scalar rows stay; they are merely unreachable by vector
			// lookup until the next truncate (invariant: scalar may
			// outlive its caches).
			return ids, fmt.Errorf("vector index: %w", err)
		}
	}

	return ids, nil
}

// Search delegates to the vector tier.
func (d *DatabaseCache) Search(ctx context.Context, model string, emb []float32, topK int) ([]models.SearchResult, error) {
	return d.vector.Search(ctx, model, emb, topK)
}

// CreateCollection ensures model's vector collection exists; reports
// whether it was newly created.
func (d *DatabaseCache) CreateCollection(ctx context.Context, model string) (bool, error) {
	return d.vector.Create(ctx, model)
}

// Delete removes the ids from the vector tier and then tombstones the
// scalar rows. Each side is independently error-caught and reported as a
// count, with -1 marking a failed side. A vector failure skips the scalar
// tombstone so the authoritative rows survive the partial removal.
func (d *DatabaseCache) Delete(ctx context.Context, model string, ids []int64) (scalarCount, vectorCount int64) {
	vectorCount, err := d.vector.Delete(ctx, model, ids)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("Vector delete failed")
		return -1, -1
	}

	scalarCount, err = d.scalar.MarkDeleted(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Str("model", model).Msg("Scalar tombstone failed")
		return -1, vectorCount
	}
	return scalarCount, vectorCount
}

// Truncate rebuilds model's vector collection and deletes its scalar
// rows, returning the number of rows removed.
func (d *DatabaseCache) Truncate(ctx context.Context, model string) (int64, error) {
	if err := d.vector.Rebuild(ctx, model); err != nil {
		return 0, fmt.Errorf("rebuild vector collection: %w", err)
	}
	count, err := d.scalar.DeleteModel(ctx, model)
	if err != nil {
		return 0, fmt.Errorf("delete scalar rows: %w", err)
	}
	return count, nil
}

// Flush forwards to both tiers.
func (d *DatabaseCache) Flush(ctx context.Context) error {
	if err := d.scalar.Flush(ctx); err != nil {
		return fmt.Errorf("flush scalar store: %w", err)
	}
	if err := d.vector.Flush(ctx); err != nil {
		return fmt.Errorf("flush vector store: %w", err)
	}
	return nil
}

// Close closes both tiers, reporting the first failure.
func (d *DatabaseCache) Close() error {
	var firstErr error
	if err := d.vector.Close(); err != nil {
		firstErr = fmt.Errorf("close vector store: %w", err)
	}
	if err := d.scalar.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close scalar store: %w", err)
	}
	return firstErr
}
