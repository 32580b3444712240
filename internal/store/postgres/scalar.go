package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/semcache/pkg/models"
)

// BatchInsert persists rows with one Create call; GORM fills the primary
// keys back into the slice, which keeps ids in input order.
func (s *Store) BatchInsert(ctx context.Context, rows []*models.CacheRow) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]AnswerRow, len(rows))
	for i, row := range rows {
		records[i] = AnswerRow{
			Question:      row.Question,
			Answer:        row.Answer,
			AnswerType:    int(row.AnswerType),
			Model:         row.Model,
			EmbeddingData: row.EmbeddingData,
		}
	}

	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return nil, fmt.Errorf("batch insert: %w", err)
	}

	ids := make([]int64, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	return ids, nil
}

// GetByID returns the row with the given id, or nil when it is unknown or
// tombstoned.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.CacheRow, error) {
	var rec AnswerRow
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_deleted = false", id).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get row %d: %w", id, err)
	}

	return &models.CacheRow{
		ID:            rec.ID,
		GmtCreate:     rec.GmtCreate,
		GmtModified:   rec.GmtModified,
		Question:      rec.Question,
		Answer:        rec.Answer,
		AnswerType:    models.DataType(rec.AnswerType),
		HitCount:      rec.HitCount,
		Model:         rec.Model,
		EmbeddingData: rec.EmbeddingData,
	}, nil
}

// UpdateHitCount increments the hit counter of the given row.
func (s *Store) UpdateHitCount(ctx context.Context, id int64) error {
	err := s.db.WithContext(ctx).
		Model(&AnswerRow{}).
		Where("id = ?", id).
		UpdateColumn("hit_count", gorm.Expr("hit_count + 1")).Error
	if err != nil {
		return fmt.Errorf("update hit count for %d: %w", id, err)
	}
	return nil
}

// MarkDeleted tombstones the given rows.
func (s *Store) MarkDeleted(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).
		Model(&AnswerRow{}).
		Where("id IN ? AND is_deleted = false", ids).
		UpdateColumn("is_deleted", true)
	if res.Error != nil {
		return 0, fmt.Errorf("tombstone rows: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteModel removes every row of the model scope.
func (s *Store) DeleteModel(ctx context.Context, model string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("model = ?", model).
		Delete(&AnswerRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete model %s: %w", model, res.Error)
	}
	return res.RowsAffected, nil
}

// ClearDeleted purges tombstoned rows.
func (s *Store) ClearDeleted(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_deleted = true").
		Delete(&AnswerRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear deleted rows: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// IDs lists row ids, optionally including tombstoned rows.
func (s *Store) IDs(ctx context.Context, includeDeleted bool) ([]int64, error) {
	q := s.db.WithContext(ctx).Model(&AnswerRow{}).Order("id")
	if !includeDeleted {
		q = q.Where("is_deleted = false")
	}

	var ids []int64
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	return ids, nil
}

// Count reports the number of rows, optionally including tombstoned rows.
func (s *Store) Count(ctx context.Context, includeDeleted bool) (int64, error) {
	q := s.db.WithContext(ctx).Model(&AnswerRow{})
	if !includeDeleted {
		q = q.Where("is_deleted = false")
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

// InsertQueryLog appends one audit record.
func (s *Store) InsertQueryLog(ctx context.Context, rec *models.QueryLogRecord) error {
	row := QueryLogRow{
		ErrorCode: rec.ErrorCode,
		ErrorDesc: rec.ErrorDesc,
		CacheHit:  rec.CacheHit,
		DeltaTime: rec.DeltaTime,
		Model:     rec.Model,
		Query:     rec.Query,
		HitQuery:  rec.HitQuery,
		Answer:    rec.Answer,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// Flush is a no-op: PostgreSQL commits every write before returning.
func (s *Store) Flush(ctx context.Context) error {
	return nil
}
