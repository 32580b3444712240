// Package postgres provides the scalar store backed by PostgreSQL via GORM.
package postgres

import "time"

// AnswerRow is the GORM model for cached (question, answer) rows.
type AnswerRow struct {
	GmtCreate     time.Time `gorm:"autoCreateTime"`
	GmtModified   time.Time `gorm:"autoUpdateTime"`
	Question      string    `gorm:"type:text;not null"`
	Answer        string    `gorm:"type:text;not null"`
	Model         string    `gorm:"index:idx_llm_answer_model,priority:1;not null"`
	EmbeddingData []byte    `gorm:"type:bytea"`
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	AnswerType    int       `gorm:"default:0"`
	HitCount      int       `gorm:"default:0"`
	IsDeleted     bool      `gorm:"default:false;index:idx_llm_answer_model,priority:2"`
}

func (AnswerRow) TableName() string { return "modelcache_llm_answer" }

// QueryLogRow is the GORM model for the audit trail.
type QueryLogRow struct {
	GmtCreate   time.Time `gorm:"autoCreateTime"`
	GmtModified time.Time `gorm:"autoUpdateTime"`
	ErrorDesc   string    `gorm:"type:text"`
	Model       string    `gorm:"index;not null"`
	Query       string    `gorm:"type:text"`
	HitQuery    string    `gorm:"type:text"`
	Answer      string    `gorm:"type:text"`
	DeltaTime   float64   `gorm:"type:real;default:0"`
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	ErrorCode   int       `gorm:"default:0"`
	CacheHit    bool      `gorm:"default:false"`
}

func (QueryLogRow) TableName() string { return "modelcache_query_log" }
