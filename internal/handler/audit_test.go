package handler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semcache/pkg/models"
)

type recordingSink struct {
	mu   sync.Mutex
	recs []*models.QueryLogRecord
}

func (r *recordingSink) BatchInsert(ctx context.Context, rows []*models.CacheRow) ([]int64, error) {
	return nil, nil
}

func (r *recordingSink) InsertQueryLog(ctx context.Context, rec *models.QueryLogRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func (r *recordingSink) UpdateHitCount(ctx context.Context, id int64) error { return nil }

func (r *recordingSink) MarkDeleted(ctx context.Context, ids []int64) (int64, error) { return 0, nil }

func (r *recordingSink) DeleteModel(ctx context.Context, model string) (int64, error) {
	return 0, nil
}

func (r *recordingSink) ClearDeleted(ctx context.Context) (int64, error) { return 0, nil }

func (r *recordingSink) Flush(ctx context.Context) error { return nil }

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

func TestAuditLoggerDrainsOnClose(t *testing.T) {
	sink := &recordingSink{}
	a := NewAuditLogger(sink, 2, 16)

	for i := 0; i < 10; i++ {
		a.Submit(&models.QueryLogRecord{Model: "m"})
	}
	a.Close()

	assert.Equal(t, 10, sink.count())
}

func TestAuditLoggerSubmitAfterCloseIsSafe(t *testing.T) {
	sink := &recordingSink{}
	a := NewAuditLogger(sink, 1, 4)
	a.Close()

	require.NotPanics(t, func() {
		a.Submit(&models.QueryLogRecord{Model: "m"})
	})
	assert.Zero(t, sink.count())
}

func TestAuditLoggerIgnoresNilRecords(t *testing.T) {
	sink := &recordingSink{}
	a := NewAuditLogger(sink, 1, 4)
	defer a.Close()

	require.NotPanics(t, func() { a.Submit(nil) })
}

func TestAuditLoggerCloseIsIdempotent(t *testing.T) {
	a := NewAuditLogger(&recordingSink{}, 1, 4)
	a.Close()
	require.NotPanics(t, a.Close)
}
