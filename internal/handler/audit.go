package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/semcache/internal/store"
	"github.com/thebtf/semcache/pkg/models"
)

const auditWriteTimeout = 5 * time.Second

// AuditLogger persists query-log records on a bounded worker pool. The log
// is best effort: a full queue drops the record and a failed write is only
// logged, never surfaced to the request that produced it.
type AuditLogger struct {
	sink  store.Writer
	queue chan *models.QueryLogRecord

	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewAuditLogger starts the writer pool.
func NewAuditLogger(sink store.Writer, workers, queueSize int) *AuditLogger {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	a := &AuditLogger{
		sink:  sink,
		queue: make(chan *models.QueryLogRecord, queueSize),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

// Submit enqueues a record without blocking. Records are dropped when the
// queue is full.
func (a *AuditLogger) Submit(rec *models.QueryLogRecord) {
	if rec == nil || a.closed.Load() {
		return
	}
	select {
	case a.queue <- rec:
	default:
		log.Debug().Str("model", rec.Model).Msg("Audit queue full, record dropped")
	}
}

func (a *AuditLogger) worker() {
	defer a.wg.Done()

	for rec := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		if err := a.sink.InsertQueryLog(ctx, rec); err != nil {
			log.Warn().Err(err).Str("model", rec.Model).Msg("Query log write failed")
		}
		cancel()
	}
}

// Close stops accepting records and drains the queue.
func (a *AuditLogger) Close() {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		close(a.queue)
		a.wg.Wait()
	})
}
