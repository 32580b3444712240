package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/semcache/internal/object"
	"github.com/thebtf/semcache/pkg/models"
	"github.com/thebtf/semcache/pkg/vectors"
)

// maxDepFetchBytes caps IMAGE_URL downloads.
const maxDepFetchBytes = 16 << 20

// DeleteResult reports how an explicit removal fared per tier.
type DeleteResult struct {
	// Status is "success" when both tiers applied the removal.
	Status string
	// Vector and Scalar carry a human-readable per-tier outcome:
	// "deleted: N", a failure message, or "unexecuted" for a scalar
	// tombstone skipped after a vector failure.
	Vector string
	Scalar string
}

// DataManager is the facade over all cache tiers. It owns embedding
// normalization, object offloading, and the memory/durable write order.
type DataManager struct {
	normalize bool
	objects   object.Store // may be nil; object payloads then stay inline
	mem       *MemoryCache
	db        *DatabaseCache
	http      *http.Client

	closeOnce sync.Once
	closeErr  error
}

// NewDataManager wires the facade. objects may be nil. normalize is fixed
// for the life of the manager and applied symmetrically on write and on
// query (stored and queried vectors must stay byte-identical).
func NewDataManager(db *DatabaseCache, policy string, maxsize int, objects object.Store, normalize bool) (*DataManager, error) {
	dm := &DataManager{
		normalize: normalize,
		objects:   objects,
		db:        db,
		http:      &http.Client{Timeout: 30 * time.Second},
	}

	mem, err := NewMemory(policy, maxsize, dm.evictIDs)
	if err != nil {
		return nil, err
	}
	dm.mem = mem
	return dm, nil
}

// evictIDs handles advisory evictions from the memory tier. The durable
// tiers keep their rows; only the hot set shrinks.
func (dm *DataManager) evictIDs(model string, ids []int64) {
	log.Debug().Str("model", model).Ints64("ids", ids).Msg("Memory tier evicted entries")
}

// Save admits the entries: object payloads are offloaded, IMAGE_URL deps
// fetched and rewritten to handles, embeddings normalized if configured,
// then rows are written through the durable tiers and recorded in memory.
// Returns the assigned scalar ids in input order.
func (dm *DataManager) Save(ctx context.Context, model string, entries []models.CacheData) ([]int64, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	rows := make([]*models.CacheRow, 0, len(entries))
	embeddings := make([][]float32, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		if len(entry.Answers) == 0 {
			return nil, fmt.Errorf("%w: entry %d has no answers", models.ErrParam, i)
		}

		if err := dm.resolveAnswers(ctx, entry.Answers); err != nil {
			return nil, err
		}
		if err := dm.resolveDeps(ctx, entry.Question.Deps); err != nil {
			return nil, err
		}

		emb := entry.Embedding
		if emb != nil && dm.normalize {
			emb = vectors.NormalizeL2(emb)
		}

		question, err := encodeQuestion(entry.Question)
		if err != nil {
			return nil, err
		}

		rows = append(rows, &models.CacheRow{
			Question:      question,
			Answer:        entry.Answers[0].Value,
			AnswerType:    entry.Answers[0].Type,
			Model:         model,
			EmbeddingData: models.EncodeEmbedding(emb),
		})
		embeddings = append(embeddings, emb)
	}

	ids, err := dm.db.BatchPut(ctx, model, rows, embeddings)
	if err != nil {
		return ids, err
	}

	pairs := make([]models.VectorData, 0, len(ids))
	for i, id := range ids {
		if embeddings[i] == nil {
			continue
		}
		pairs = append(pairs, models.VectorData{ID: id, Data: embeddings[i]})
	}
	dm.mem.BatchPut(pairs, model)

	return ids, nil
}

// resolveAnswers offloads non-string answer payloads to the object store,
// replacing the value with the handle.
func (dm *DataManager) resolveAnswers(ctx context.Context, answers []models.Answer) error {
	if dm.objects == nil {
		return nil
	}
	for i := range answers {
		if answers[i].Type == models.DataTypeStr {
			continue
		}
		handle, err := dm.objects.Put(ctx, []byte(answers[i].Value))
		if err != nil {
			return fmt.Errorf("offload answer payload: %w", err)
		}
		answers[i].Value = handle
	}
	return nil
}

// resolveDeps fetches IMAGE_URL deps and rewrites their data to object
// handles before persistence.
func (dm *DataManager) resolveDeps(ctx context.Context, deps []models.QuestionDep) error {
	for i := range deps {
		if deps[i].Type != models.DataTypeImageURL {
			continue
		}
		if dm.objects == nil {
			return fmt.Errorf("%w: image URL dep requires an object store", models.ErrParam)
		}

		payload, err := dm.fetchURL(ctx, deps[i].Data)
		if err != nil {
			return fmt.Errorf("fetch dep %s: %w", deps[i].Name, err)
		}
		handle, err := dm.objects.Put(ctx, payload)
		if err != nil {
			return fmt.Errorf("offload dep %s: %w", deps[i].Name, err)
		}
		deps[i].Data = handle
	}
	return nil
}

func (dm *DataManager) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := dm.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDepFetchBytes))
}

// encodeQuestion flattens a question for the scalar row: plain content
// stays a bare string, structured questions keep their deps as JSON.
func encodeQuestion(q models.Question) (string, error) {
	if len(q.Deps) == 0 {
		return q.Content, nil
	}
	data, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("encode question: %w", err)
	}
	return string(data), nil
}

// Search runs the similarity lookup, applying the same normalization as
// Save so stored and queried vectors agree.
func (dm *DataManager) Search(ctx context.Context, model string, emb []float32, topK int) ([]models.SearchResult, error) {
	if dm.normalize {
		emb = vectors.NormalizeL2(emb)
	}
	return dm.db.Search(ctx, model, emb, topK)
}

// GetScalarData returns the durable row behind a search candidate. A
// memory hit refreshes the entry's recency; the scalar tier stays
// authoritative for the stored text.
func (dm *DataManager) GetScalarData(ctx context.Context, id int64, model string) (*models.CacheRow, error) {
	dm.mem.Get(id, model)
	return dm.db.Scalar().GetByID(ctx, id)
}

// UpdateHitCount increments the hit counter of the given row.
func (dm *DataManager) UpdateHitCount(ctx context.Context, id int64) error {
	return dm.db.Scalar().UpdateHitCount(ctx, id)
}

// CreateVector ensures model's vector collection exists; reports whether
// it was newly created.
func (dm *DataManager) CreateVector(ctx context.Context, model string) (bool, error) {
	return dm.db.CreateCollection(ctx, model)
}

// Delete removes the entries from every tier: memory pop, vector delete,
// scalar tombstone. A vector failure short-circuits the scalar attempt.
func (dm *DataManager) Delete(ctx context.Context, model string, ids []int64) DeleteResult {
	dm.mem.Remove(ids, model)

	scalarCount, vectorCount := dm.db.Delete(ctx, model, ids)
	switch {
	case vectorCount == -1:
		return DeleteResult{
			Status: "failed",
			Vector: "delete failed",
			Scalar: "unexecuted",
		}
	case scalarCount == -1:
		return DeleteResult{
			Status: "failed",
			Vector: fmt.Sprintf("deleted: %d", vectorCount),
			Scalar: "tombstone failed",
		}
	default:
		return DeleteResult{
			Status: "success",
			Vector: fmt.Sprintf("deleted: %d", vectorCount),
			Scalar: fmt.Sprintf("deleted: %d", scalarCount),
		}
	}
}

// Truncate resets the whole model scope: memory cleared, vector
// collection rebuilt, scalar rows deleted. Returns the scalar row count
// removed.
func (dm *DataManager) Truncate(ctx context.Context, model string) (int64, error) {
	dm.mem.Clear(model)
	return dm.db.Truncate(ctx, model)
}

// Flush forwards to the durable tiers.
func (dm *DataManager) Flush(ctx context.Context) error {
	return dm.db.Flush(ctx)
}

// Close flushes and closes the durable tiers once; repeated calls return
// the first outcome. Failures are logged, not raised to callers beyond
// the error return.
func (dm *DataManager) Close() error {
	dm.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := dm.db.Flush(ctx); err != nil {
			log.Warn().Err(err).Msg("Flush on close failed")
		}
		if err := dm.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Store close failed")
			dm.closeErr = err
		}
	})
	return dm.closeErr
}
