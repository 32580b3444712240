// Package handler implements the cache request surface: parsing the JSON
// envelope, dispatching query/insert/remove/register, and the async audit
// trail behind every request.
package handler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/semcache/internal/cache"
	"github.com/thebtf/semcache/internal/config"
	"github.com/thebtf/semcache/internal/embedding"
	"github.com/thebtf/semcache/internal/processor"
	"github.com/thebtf/semcache/internal/similarity"
	"github.com/thebtf/semcache/pkg/models"
)

// BlacklistFunc short-circuits a request for a blocked model by returning a
// complete response body. A nil return admits the model.
type BlacklistFunc func(model string) []byte

// CacheConfigFunc supplies the current cache tunables, so threshold and
// top-k changes from the settings watcher take effect without a restart.
type CacheConfigFunc func() config.CacheConfig

// Handler is the single entry point of the cache engine.
type Handler struct {
	dm         *cache.DataManager
	dispatcher *embedding.Dispatcher
	audit      *AuditLogger
	metrics    *Metrics
	cacheCfg   CacheConfigFunc
	pre        processor.PreFunc
	post       processor.PostFunc
	blacklist  BlacklistFunc
	lookups    singleflight.Group
}

// New wires a handler. cfgFn must not be nil; blacklist may be.
func New(dm *cache.DataManager, dispatcher *embedding.Dispatcher, audit *AuditLogger, cfgFn CacheConfigFunc, blacklist BlacklistFunc) (*Handler, error) {
	cfg := cfgFn()

	pre, err := processor.NewPre(cfg.PreProcess)
	if err != nil {
		return nil, err
	}
	post, err := processor.NewPost(cfg.PostProcess)
	if err != nil {
		return nil, err
	}

	return &Handler{
		dm:         dm,
		dispatcher: dispatcher,
		audit:      audit,
		metrics:    NewMetrics(),
		cacheCfg:   cfgFn,
		pre:        pre,
		post:       post,
		blacklist:  blacklist,
	}, nil
}

// Metrics exposes the request counters.
func (h *Handler) Metrics() *Metrics { return h.metrics }

type queryResponse struct {
	ErrorCode int    `json:"errorCode"`
	ErrorDesc string `json:"errorDesc"`
	CacheHit  bool   `json:"cacheHit"`
	DeltaTime string `json:"delta_time"`
	HitQuery  string `json:"hit_query"`
	Answer    string `json:"answer"`
}

type insertResponse struct {
	ErrorCode   int    `json:"errorCode"`
	ErrorDesc   string `json:"errorDesc"`
	WriteStatus string `json:"writeStatus"`
}

type registerResponse struct {
	ErrorCode   int    `json:"errorCode"`
	ErrorDesc   string `json:"errorDesc"`
	Response    string `json:"response"`
	WriteStatus string `json:"writeStatus"`
}

type removeDetail struct {
	Status   string `json:"status"`
	VectorDB string `json:"VectorDB"`
	ScalarDB string `json:"ScalarDB"`
}

type removeResponse struct {
	ErrorCode    int          `json:"errorCode"`
	ErrorDesc    string       `json:"errorDesc"`
	Response     removeDetail `json:"response"`
	RemoveStatus string       `json:"removeStatus"`
}

// Handle processes one raw request and always returns a response body; it
// never panics out and never returns nil.
func (h *Handler) Handle(ctx context.Context, raw []byte) (out []byte) {
	start := time.Now()
	h.metrics.Requests.Add(1)

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Request handler panic")
			h.metrics.Errors.Add(1)
			out = marshal(queryResponse{
				ErrorCode: CodeGeneric,
				ErrorDesc: fmt.Sprintf("internal error: %v", r),
				DeltaTime: deltaTime(start),
			})
		}
	}()

	var req models.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		h.metrics.Errors.Add(1)
		resp := queryResponse{
			ErrorCode: CodeParse,
			ErrorDesc: "request parse failed: " + err.Error(),
			DeltaTime: deltaTime(start),
		}
		h.submitAudit(&resp, "", "", start)
		return marshal(resp)
	}

	if req.Scope == nil || req.Scope.Model == "" {
		h.metrics.Errors.Add(1)
		resp := queryResponse{
			ErrorCode: CodeBadRequest,
			ErrorDesc: "scope.model is required",
			DeltaTime: deltaTime(start),
		}
		h.submitAudit(&resp, "", "", start)
		return marshal(resp)
	}
	model := models.NormalizeModel(req.Scope.Model)

	if h.blacklist != nil {
		if body := h.blacklist(model); body != nil {
			return body
		}
	}

	switch req.Type {
	case models.RequestRegister:
		return h.handleRegister(ctx, model)
	case models.RequestInsert:
		return h.handleInsert(ctx, model, req.ChatInfo)
	case models.RequestQuery:
		return h.handleQuery(ctx, start, model, req.Query)
	case models.RequestRemove:
		return h.handleRemove(ctx, model, req.RemoveType, req.IDList)
	default:
		h.metrics.Errors.Add(1)
		resp := queryResponse{
			ErrorCode: CodeBadType,
			ErrorDesc: fmt.Sprintf("unsupported request type %q", req.Type),
			DeltaTime: deltaTime(start),
		}
		h.audit.Submit(&models.QueryLogRecord{
			ErrorCode: CodeBadType,
			ErrorDesc: resp.ErrorDesc,
			Model:     model,
		})
		return marshal(resp)
	}
}

func (h *Handler) handleRegister(ctx context.Context, model string) []byte {
	created, err := h.dm.CreateVector(ctx, model)
	if err != nil {
		h.metrics.Errors.Add(1)
		h.audit.Submit(&models.QueryLogRecord{
			ErrorCode: CodeRegisterFailed,
			ErrorDesc: err.Error(),
			Model:     model,
		})
		return marshal(registerResponse{
			ErrorCode:   CodeRegisterFailed,
			ErrorDesc:   "create collection failed: " + err.Error(),
			WriteStatus: "exception",
		})
	}

	status := "already_exists"
	if created {
		status = "create_success"
	}
	h.audit.Submit(&models.QueryLogRecord{Model: model})
	return marshal(registerResponse{
		Response:    status,
		WriteStatus: "success",
	})
}

func (h *Handler) handleInsert(ctx context.Context, model string, chatInfo []models.ChatTurn) []byte {
	if len(chatInfo) == 0 {
		h.metrics.Errors.Add(1)
		return marshal(insertResponse{
			ErrorCode:   CodeInsertFatal,
			ErrorDesc:   "chat_info is required for insert",
			WriteStatus: "exception",
		})
	}

	entries := make([]models.CacheData, 0, len(chatInfo))
	for i, turn := range chatInfo {
		text := h.pre(turn.Query)
		vec, err := h.embed(ctx, text)
		if err != nil {
			h.metrics.Errors.Add(1)
			h.audit.Submit(&models.QueryLogRecord{
				ErrorCode: CodeInsertAdapter,
				ErrorDesc: err.Error(),
				Model:     model,
				Query:     text,
			})
			return marshal(insertResponse{
				ErrorCode:   CodeInsertAdapter,
				ErrorDesc:   fmt.Sprintf("embed chat_info[%d] failed: %v", i, err),
				WriteStatus: "exception",
			})
		}
		entries = append(entries, models.CacheData{
			Question:  models.Question{Content: text},
			Answers:   []models.Answer{{Value: turn.Answer, Type: models.DataTypeStr}},
			Embedding: vec,
		})
	}

	if _, err := h.dm.Save(ctx, model, entries); err != nil {
		h.metrics.Errors.Add(1)
		h.audit.Submit(&models.QueryLogRecord{
			ErrorCode: CodeInsertFailed,
			ErrorDesc: err.Error(),
			Model:     model,
		})
		return marshal(insertResponse{
			ErrorCode:   CodeInsertFailed,
			ErrorDesc:   "save failed: " + err.Error(),
			WriteStatus: "exception",
		})
	}

	h.metrics.Inserts.Add(int64(len(entries)))
	h.audit.Submit(&models.QueryLogRecord{Model: model})
	return marshal(insertResponse{WriteStatus: "success"})
}

func (h *Handler) handleQuery(ctx context.Context, start time.Time, model string, query models.QueryText) []byte {
	cfg := h.cacheCfg()
	text := h.pre(query)

	miss := func(code int, desc string) []byte {
		if code != CodeSuccess {
			h.metrics.Errors.Add(1)
		}
		h.metrics.Misses.Add(1)
		resp := queryResponse{
			ErrorCode: code,
			ErrorDesc: desc,
			DeltaTime: deltaTime(start),
		}
		h.submitAudit(&resp, model, text, start)
		return marshal(resp)
	}

	vec, err := h.embed(ctx, text)
	if err != nil {
		return miss(CodeQueryAdapter, "embed query failed: "+err.Error())
	}

	results, err := h.search(ctx, model, text, vec, cfg.TopK)
	if err != nil {
		return miss(CodeQueryFatal, "vector search failed: "+err.Error())
	}

	eval, err := similarity.New(cfg.Metric, cfg.Normalize, similarity.Thresholds{
		Default:  float32(cfg.SimilarityThreshold),
		Long:     float32(cfg.ThresholdLong),
		Boundary: cfg.LongQueryBoundary,
	})
	if err != nil {
		return miss(CodeQueryFatal, err.Error())
	}

	threshold := eval.Threshold(len(text))
	candidates := make([]processor.Candidate, 0, len(results))
	for _, res := range results {
		score := eval.Eval(res.Distance)
		if score < threshold {
			continue
		}
		row, err := h.dm.GetScalarData(ctx, res.ID, model)
		if err != nil {
			return miss(CodeQueryFatal, "scalar fetch failed: "+err.Error())
		}
		if row == nil {
			// Deleted between search and fetch; recall for deleted
			// entries is explicitly not guaranteed.
			continue
		}
		candidates = append(candidates, processor.Candidate{
			ID:       row.ID,
			Question: row.Question,
			Answer:   row.Answer,
			Score:    score,
		})
	}

	winner, ok := h.post(candidates)
	if !ok {
		return miss(CodeSuccess, "")
	}

	h.metrics.Hits.Add(1)
	go func(id int64) {
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.dm.UpdateHitCount(hctx, id); err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("Hit count update failed")
		}
	}(winner.ID)

	resp := queryResponse{
		CacheHit:  true,
		DeltaTime: deltaTime(start),
		HitQuery:  winner.Question,
		Answer:    winner.Answer,
	}
	h.submitAudit(&resp, model, text, start)
	return marshal(resp)
}

// search coalesces identical concurrent lookups on (model, flattened query).
// Two requests racing on the same text share one vector-store round trip.
// The shared call runs detached from the caller's context: cancelling the
// request that happened to start it must not fail the coalesced waiters.
func (h *Handler) search(ctx context.Context, model, text string, vec []float32, topK int) ([]models.SearchResult, error) {
	key := model + "\x00" + text
	sctx := context.WithoutCancel(ctx)
	v, err, shared := h.lookups.Do(key, func() (interface{}, error) {
		return h.dm.Search(sctx, model, vec, topK)
	})
	if shared {
		h.metrics.Coalesced.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return v.([]models.SearchResult), nil
}

func (h *Handler) handleRemove(ctx context.Context, model, removeType string, ids []int64) []byte {
	switch removeType {
	case models.RemoveSingle:
		if len(ids) == 0 {
			h.metrics.Errors.Add(1)
			return marshal(removeResponse{
				ErrorCode:    CodeRemoveAdapter,
				ErrorDesc:    "id_list is required for single remove",
				RemoveStatus: "exception",
			})
		}

		res := h.dm.Delete(ctx, model, ids)
		detail := removeDetail{Status: res.Status, VectorDB: res.Vector, ScalarDB: res.Scalar}
		if res.Status != "success" {
			h.metrics.Errors.Add(1)
			h.audit.Submit(&models.QueryLogRecord{
				ErrorCode: CodeRemoveFailed,
				ErrorDesc: res.Vector + "; " + res.Scalar,
				Model:     model,
			})
			return marshal(removeResponse{
				ErrorCode:    CodeRemoveFailed,
				ErrorDesc:    "remove failed",
				Response:     detail,
				RemoveStatus: "exception",
			})
		}

		h.metrics.Removes.Add(int64(len(ids)))
		h.audit.Submit(&models.QueryLogRecord{Model: model})
		return marshal(removeResponse{
			Response:     detail,
			RemoveStatus: "success",
		})

	case models.RemoveAll:
		count, err := h.dm.Truncate(ctx, model)
		if err != nil {
			h.metrics.Errors.Add(1)
			h.audit.Submit(&models.QueryLogRecord{
				ErrorCode: CodeRemoveFailed,
				ErrorDesc: err.Error(),
				Model:     model,
			})
			return marshal(removeResponse{
				ErrorCode:    CodeRemoveFailed,
				ErrorDesc:    "truncate failed: " + err.Error(),
				Response:     removeDetail{Status: "failed", VectorDB: "rebuild failed", ScalarDB: "unexecuted"},
				RemoveStatus: "exception",
			})
		}

		h.metrics.Removes.Add(count)
		h.audit.Submit(&models.QueryLogRecord{Model: model})
		return marshal(removeResponse{
			Response: removeDetail{
				Status:   "success",
				VectorDB: "rebuilt",
				ScalarDB: fmt.Sprintf("deleted: %d", count),
			},
			RemoveStatus: "success",
		})

	default:
		h.metrics.Errors.Add(1)
		return marshal(removeResponse{
			ErrorCode:    CodeRemoveAdapter,
			ErrorDesc:    fmt.Sprintf("unsupported remove_type %q", removeType),
			RemoveStatus: "exception",
		})
	}
}

func (h *Handler) embed(ctx context.Context, text string) ([]float32, error) {
	fut, err := h.dispatcher.Submit(text)
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

func (h *Handler) submitAudit(resp *queryResponse, model, query string, start time.Time) {
	h.audit.Submit(&models.QueryLogRecord{
		ErrorCode: resp.ErrorCode,
		ErrorDesc: resp.ErrorDesc,
		CacheHit:  resp.CacheHit,
		Model:     model,
		Query:     query,
		HitQuery:  resp.HitQuery,
		Answer:    resp.Answer,
		DeltaTime: time.Since(start).Seconds(),
	})
}

func deltaTime(start time.Time) string {
	return fmt.Sprintf("%.2fs", time.Since(start).Seconds())
}

func marshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Response marshal failed")
		return []byte(`{"errorCode":101,"errorDesc":"response marshal failed"}`)
	}
	return data
}
