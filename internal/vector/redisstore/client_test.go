package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semcache/pkg/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)

	c, err := New(Config{
		Addr:      mr.Addr(),
		Metric:    "cosine",
		Dimension: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCreateIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	created, err := c.Create(ctx, "gpt_4_1")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Create(ctx, "gpt_4_1")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSearchUncreatedModelReturnsEmpty(t *testing.T) {
	c := newTestClient(t)

	results, err := c.Search(context.Background(), "unknown", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMulAddAndSearch(t *testing.T) {
	c := newTestClient(t)
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

func TestMulAddRejectsDimensionMismatch(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "m", []models.VectorData{{ID: 1, Data: []float32{1}}})
	assert.Error(t, err)
}

func TestDeleteCountsRemovedEntries(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "m", []models.VectorData{
		{ID: 1, Data: []float32{1, 0, 0}},
		{ID: 2, Data: []float32{0, 1, 0}},
	})
	require.NoError(t, err)

	count, err := c.Delete(ctx, "m", []int64{1, 99})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	results, err := c.Search(ctx, "m", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].ID)
}

func TestRebuildEmptiesCollection(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.Create(ctx, "m")
	require.NoError(t, err)

	err = c.MulAdd(ctx, "m", []models.VectorData{{ID: 1, Data: []float32{1, 0, 0}}})
	require.NoError(t, err)

	require.NoError(t, c.Rebuild(ctx, "m"))

	results, err := c.Search(ctx, "m", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	created, err := c.Create(ctx, "m")
	require.NoError(t, err)
	assert.False(t, created, "rebuild keeps the collection registered")
}

func TestModelsAreIsolated(t *testing.T) {
	c := newTestClient(t)
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
