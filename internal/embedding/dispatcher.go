package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/semcache/internal/config"
)

// DefaultQueueSize bounds the dispatch queue when the configuration leaves
// it unset.
const DefaultQueueSize = 64

type result struct {
	vec []float32
	err error
}

// Future resolves to the embedding of one submitted text.
type Future struct {
	ch chan result
}

// Wait blocks until the embedding is ready or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-f.ch:
		return res.vec, res.err
	}
}

type job struct {
	text string
	fut  *Future
}

// Dispatcher is a bounded pool of workers, each owning one loaded model.
// Submissions queue up to the configured depth and resolve on any worker;
// no ordering between requests is guaranteed. A worker failure fails only
// the future it was serving.
type Dispatcher struct {
	jobs       chan job
	models     []Model
	dimensions int

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher loads one model per worker and starts the pool.
func NewDispatcher(cfg config.EmbeddingConfig) (*Dispatcher, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	models := make([]Model, 0, workers)
	for i := 0; i < workers; i++ {
		model, err := Open(cfg)
		if err != nil {
			for _, m := range models {
				_ = m.Close()
			}
			return nil, fmt.Errorf("load embedding model for worker %d: %w", i, err)
		}
		models = append(models, model)
	}

	dimensions := models[0].Dimensions()
	if cfg.Dimension > 0 && dimensions != cfg.Dimension {
		for _, m := range models {
			_ = m.Close()
		}
		return nil, fmt.Errorf("model dimension %d does not match configured %d", dimensions, cfg.Dimension)
	}

	d := &Dispatcher{
		jobs:       make(chan job, queueSize),
		models:     models,
		dimensions: dimensions,
	}

	for i, model := range models {
		d.wg.Add(1)
		go d.worker(i, model)
	}
	return d, nil
}

// Dimensions returns the fixed embedding size of the pool.
func (d *Dispatcher) Dimensions() int {
	return d.dimensions
}

// Submit enqueues text and returns a future for its embedding. It blocks
// only when the queue is full.
func (d *Dispatcher) Submit(text string) (*Future, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, fmt.Errorf("embedding dispatcher is closed")
	}

	fut := &Future{ch: make(chan result, 1)}
	d.jobs <- job{text: text, fut: fut}
	return fut, nil
}

func (d *Dispatcher) worker(id int, model Model) {
	defer d.wg.Done()

	for j := range d.jobs {
		vec, err := d.embedOne(model, j.text)
		if err != nil {
			log.Warn().Err(err).Int("worker", id).Msg("Embedding request failed")
		}
		j.fut.ch <- result{vec: vec, err: err}
	}
}

// embedOne runs one inference, containing panics so a bad input cannot
// take down the pool.
func (d *Dispatcher) embedOne(model Model, text string) (vec []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			vec, err = nil, fmt.Errorf("embedding model panic: %v", r)
		}
	}()

	vec, err = model.Embed(context.Background(), text)
	if err != nil {
		return nil, err
	}
	if len(vec) != d.dimensions {
		return nil, fmt.Errorf("embedding has dimension %d, want %d", len(vec), d.dimensions)
	}
	return vec, nil
}

// Close drains the queue, stops the workers, and releases the models.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	d.wg.Wait()

	var firstErr error
	for _, model := range d.models {
		if err := model.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
