// Package store defines the durable scalar tier of the cache: the
// authoritative record of every (question, answer, embedding) the engine
// has admitted, partitioned by model scope and soft-deleted via tombstones.
package store

import (
	"context"

	"github.com/thebtf/semcache/pkg/models"
)

// Reader defines read operations on the scalar tier.
type Reader interface {
	// GetByID returns the row with the given id, or nil when the id is
	// unknown or tombstoned.
	GetByID(ctx context.Context, id int64) (*models.CacheRow, error)

	// IDs lists all row ids, optionally including tombstoned rows.
	IDs(ctx context.Context, includeDeleted bool) ([]int64, error)

	// Count reports the number of rows, optionally including tombstoned rows.
	Count(ctx context.Context, includeDeleted bool) (int64, error)
}

// Writer defines write operations on the scalar tier.
type Writer interface {
	// BatchInsert persists the rows and returns their assigned ids in
	// input order. Transactional batching is not required; id order is.
	BatchInsert(ctx context.Context, rows []*models.CacheRow) ([]int64, error)

	// InsertQueryLog appends one audit record.
	InsertQueryLog(ctx context.Context, rec *models.QueryLogRecord) error

	// UpdateHitCount increments the hit counter of the given row.
	UpdateHitCount(ctx context.Context, id int64) error

	// MarkDeleted tombstones the given rows and reports how many changed.
	MarkDeleted(ctx context.Context, ids []int64) (int64, error)

	// DeleteModel removes every row of the model scope and reports the count.
	DeleteModel(ctx context.Context, model string) (int64, error)

	// ClearDeleted purges tombstoned rows for good.
	ClearDeleted(ctx context.Context) (int64, error)

	// Flush forces buffered writes to durable storage.
	Flush(ctx context.Context) error
}

// Store combines read and write operations on the scalar tier.
// Implementations must be safe under concurrent callers.
type Store interface {
	Reader
	Writer
	Close() error
}
