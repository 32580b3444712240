package sqlitevec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semcache/pkg/models"
)

func newTestClient(t *testing.T, metric string) *Client {
	t.Helper()
	c, err := New(Config{
		Path:      filepath.Join(t.TempDir(), "vectors.db"),
		Metric:    metric,
		Dimension: 3,
		WALMode:   true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Path: "x.db", Metric: "cosine", Dimension: 0})
	assert.Error(t, err)

	_, err = New(Config{Path: "x.db", Metric: "dot", Dimension: 3})
	assert.Error(t, err)
}

func TestCreateIsIdempotent(t *testing.T) {
	c := newTestClient(t, "cosine")
	ctx := context.Background()

	created, err := c.Create(ctx, "gpt_4_1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Create(ctx, "gpt_4_1")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSearchUncreatedModelReturnsEmpty(t *testing.T) {
	c := newTestClient(t, "cosine")

	results, err := c.Search(context.Background(), "unknown", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchCosineOrdersBySimilarity(t *testing.T) {
	c := newTestClient(t, "cosine")
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "m", []models.VectorData{
		{ID: 1, Data: []float32{1, 0, 0}},
		{ID: 2, Data: []float32{0, 1, 0}},
		{ID: 3, Data: []float32{0.9, 0.1, 0}},
	})
	require.NoError(t, err)

	results, err := c.Search(ctx, "m", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, int64(3), results[1].ID)
	assert.InDelta(t, 1.0, float64(results[0].Distance), 1e-6)
}

func TestSearchL2OrdersByDistance(t *testing.T) {
	c := newTestClient(t, "l2")
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "m", []models.VectorData{
		{ID: 1, Data: []float32{0, 0, 0}},
		{ID: 2, Data: []float32{3, 4, 0}},
	})
	require.NoError(t, err)

	results, err := c.Search(ctx, "m", []float32{0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.InDelta(t, 5.0, float64(results[1].Distance), 1e-5)
}

func TestMulAddRejectsDimensionMismatch(t *testing.T) {
	c := newTestClient(t, "cosine")
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "m", []models.VectorData{{ID: 1, Data: []float32{1, 0}}})
	assert.Error(t, err)
}

func TestDeleteRemovesOnlyGivenIDs(t *testing.T) {
	c := newTestClient(t, "cosine")
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "m", []models.VectorData{
		{ID: 1, Data: []float32{1, 0, 0}},
		{ID: 2, Data: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	count, err := c.Delete(ctx, "m", []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	results, err := c.Search(ctx, "m", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestRebuildEmptiesCollection(t *testing.T) {
	c := newTestClient(t, "cosine")
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "m", []models.VectorData{{ID: 1, Data: []float32{1, 0, 0}}})
	require.NoError(t, err)

	require.NoError(t, c.Rebuild(ctx, "m"))

	results, err := c.Search(ctx, "m", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// The collection itself survives the rebuild.
	created, err := c.Create(ctx, "m")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestModelsAreIsolated(t *testing.T) {
	c := newTestClient(t, "cosine")
	ctx := context.Background()

	_, err := c.Create(ctx, "a")
	require.NoError(t, err)
	_, err = c.Create(ctx, "b")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "a", []models.VectorData{{ID: 1, Data: []float32{1, 0, 0}}})
	require.NoError(t, err)

	results, err := c.Search(ctx, "b", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchDefaultBreadth(t *testing.T) {
	c := newTestClient(t, "cosine")
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	data := make([]models.VectorData, 0, models.DefaultTopK+2)
	for i := 0; i < models.DefaultTopK+2; i++ {
		data = append(data, models.VectorData{
			ID:   int64(i + 1),
			Data: []float32{1, float32(i) / 100, 0},
		})
	}
	require.NoError(t, c.MulAdd(ctx, "m", data))

	results, err := c.Search(ctx, "m", []float32{1, 0, 0}, -1)
	require.NoError(t, err)
	assert.Len(t, results, models.DefaultTopK)
}
