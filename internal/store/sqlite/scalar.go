package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thebtf/semcache/pkg/models"
)

// BatchInsert persists rows inside one transaction and returns their ids in
// input order. SQLite allows a single writer, so the whole batch is
// serialized behind writeMu to avoid SQLITE_BUSY churn under load.
func (s *Store) BatchInsert(ctx context.Context, rows []*models.CacheRow) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO modelcache_llm_answer
			(gmt_create, gmt_modified, question, answer, answer_type, hit_count, model, embedding_data)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx,
			now, now, row.Question, row.Answer, int(row.AnswerType), row.Model, row.EmbeddingData)
		if err != nil {
			return nil, fmt.Errorf("insert row for model %s: %w", row.Model, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read inserted id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch insert: %w", err)
	}
	return ids, nil
}

// GetByID returns the row with the given id, or nil when it is unknown or
// tombstoned.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.CacheRow, error) {
	row := s.queryRowContext(ctx, `
		SELECT id, gmt_create, gmt_modified, question, answer, answer_type, hit_count, model, embedding_data
		FROM modelcache_llm_answer
		WHERE id = ? AND is_deleted = 0
	`, id)

	var (
		rec                    models.CacheRow
		gmtCreate, gmtModified string
		answerType             int
	)
	err := row.Scan(&rec.ID, &gmtCreate, &gmtModified, &rec.Question, &rec.Answer,
		&answerType, &rec.HitCount, &rec.Model, &rec.EmbeddingData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get row %d: %w", id, err)
	}
	rec.AnswerType = models.DataType(answerType)
	rec.GmtCreate, _ = time.Parse(time.RFC3339, gmtCreate)
	rec.GmtModified, _ = time.Parse(time.RFC3339, gmtModified)
	return &rec, nil
}

// UpdateHitCount increments the hit counter of the given row.
func (s *Store) UpdateHitCount(ctx context.Context, id int64) error {
	_, err := s.execContext(ctx, `
		UPDATE modelcache_llm_answer
		SET hit_count = hit_count + 1, gmt_modified = ?
		WHERE id = ?
	`, time.Now().UTC().Format(time.RFC3339), id)
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

	var count int64
	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range ids {
		res, err := s.execContext(ctx, `
			UPDATE modelcache_llm_answer
			SET is_deleted = 1, gmt_modified = ?
			WHERE id = ? AND is_deleted = 0
		`, now, id)
		if err != nil {
			return count, fmt.Errorf("tombstone row %d: %w", id, err)
		}
		n, _ := res.RowsAffected()
		count += n
	}
	return count, nil
}

// DeleteModel removes every row of the model scope.
func (s *Store) DeleteModel(ctx context.Context, model string) (int64, error) {
	res, err := s.execContext(ctx, `DELETE FROM modelcache_llm_answer WHERE model = ?`, model)
	if err != nil {
		return 0, fmt.Errorf("delete model %s: %w", model, err)
	}
	return res.RowsAffected()
}

// ClearDeleted purges tombstoned rows.
func (s *Store) ClearDeleted(ctx context.Context) (int64, error) {
	res, err := s.execContext(ctx, `DELETE FROM modelcache_llm_answer WHERE is_deleted = 1`)
	if err != nil {
		return 0, fmt.Errorf("clear deleted rows: %w", err)
	}
	return res.RowsAffected()
}

// IDs lists row ids, optionally including tombstoned rows.
func (s *Store) IDs(ctx context.Context, includeDeleted bool) ([]int64, error) {
	query := `SELECT id FROM modelcache_llm_answer WHERE is_deleted = 0 ORDER BY id`
	if includeDeleted {
		query = `SELECT id FROM modelcache_llm_answer ORDER BY id`
	}

	rows, err := s.queryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count reports the number of rows, optionally including tombstoned rows.
func (s *Store) Count(ctx context.Context, includeDeleted bool) (int64, error) {
	query := `SELECT COUNT(*) FROM modelcache_llm_answer WHERE is_deleted = 0`
	if includeDeleted {
		query = `SELECT COUNT(*) FROM modelcache_llm_answer`
	}

	var count int64
	if err := s.queryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

// InsertQueryLog appends one audit record.
func (s *Store) InsertQueryLog(ctx context.Context, rec *models.QueryLogRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.execContext(ctx, `
		INSERT INTO modelcache_query_log
			(gmt_create, gmt_modified, error_code, error_desc, cache_hit, delta_time, model, query, hit_query, answer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, now, now, rec.ErrorCode, rec.ErrorDesc, boolToInt(rec.CacheHit), rec.DeltaTime,
		rec.Model, rec.Query, rec.HitQuery, rec.Answer)
	if err != nil {
		return fmt.Errorf("insert query log: %w", err)
	}
	return nil
}

// Flush is a no-op: every write is committed before returning.
func (s *Store) Flush(ctx context.Context) error {
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
