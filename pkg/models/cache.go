// Package models contains domain models for semcache.
package models

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// DataType classifies the payload of a question dep or an answer.
type DataType int

const (
	DataTypeStr         DataType = 0
	DataTypeImageBase64 DataType = 1
	DataTypeImageURL    DataType = 2
)

// QuestionDep is an auxiliary payload attached to a structured question,
// for example an image referenced by the query text.
type QuestionDep struct {
	Name string   `json:"name"`
	Data string   `json:"data"`
	Type DataType `json:"dep_type"`
}

// Question is the cacheable form of a user query. Either a plain content
// string or a content plus ordered deps.
type Question struct {
	Content string        `json:"content"`
	Deps    []QuestionDep `json:"deps,omitempty"`
}

// Answer is one stored response. Non-string payloads are offloaded to the
// object store and Value becomes the handle.
type Answer struct {
	Value string   `json:"answer"`
	Type  DataType `json:"answer_type"`
}

// CacheData bundles one question with its answers and the embedding used
// for similarity lookup. At least one answer is required.
type CacheData struct {
	Question  Question
	Answers   []Answer
	Embedding []float32
}

// VectorData is the (id, embedding) pair written into the ANN index.
// The model collection is addressed by the store call, not the record.
type VectorData struct {
	ID   int64
	Data []float32
}

// DefaultTopK is the search breadth every vector backend falls back to
// when a caller asks for the default by passing topK <= 0.
const DefaultTopK = 10

// SearchResult is one vector-search candidate: the store-native distance
// (already converted to similarity for cosine metrics) and the scalar row
// id it points at. Results are ordered best first.
type SearchResult struct {
	Distance float32
	ID       int64
}

// CacheRow is a persisted scalar record of one cached (question, answer).
type CacheRow struct {
	GmtCreate     time.Time `json:"gmt_create"`
	GmtModified   time.Time `json:"gmt_modified"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	Model         string    `json:"model"`
	EmbeddingData []byte    `json:"embedding_data,omitempty"`
	ID            int64     `json:"id"`
	AnswerType    DataType  `json:"answer_type"`
	HitCount      int       `json:"hit_count"`
	IsDeleted     bool      `json:"is_deleted,omitempty"`
}

// QueryLogRecord is the best-effort audit trail of one request. Failure to
// persist it never aborts the request that produced it.
type QueryLogRecord struct {
	ErrorDesc string  `json:"error_desc"`
	Model     string  `json:"model"`
	Query     string  `json:"query"`
	HitQuery  string  `json:"hit_query"`
	Answer    string  `json:"answer"`
	DeltaTime float64 `json:"delta_time"`
	ErrorCode int     `json:"error_code"`
	CacheHit  bool    `json:"cache_hit"`
}

// NormalizeModel maps a free-form model name onto the scope identifier used
// for scalar partitioning and vector collection naming. Dashes and dots are
// not valid in collection names across backends.
func NormalizeModel(model string) string {
	model = strings.ReplaceAll(model, "-", "_")
	return strings.ReplaceAll(model, ".", "_")
}

// EncodeEmbedding serializes an embedding as little-endian float32 bytes.
// Both cache tiers share this representation so stored and indexed vectors
// stay byte-identical.
func EncodeEmbedding(vec []float32) []byte {
	if vec == nil {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding is the inverse of EncodeEmbedding.
func DecodeEmbedding(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
