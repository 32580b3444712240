// Package embedding provides text embedding generation with swappable
// models and a bounded worker pool dispatching requests onto them.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/thebtf/semcache/internal/config"
)

// Model represents a text embedding model.
type Model interface {
	// Name returns the human-readable model name.
	Name() string

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases model resources.
	Close() error
}

// ModelFactory creates a new model instance from configuration. The
// dispatcher calls it once per worker so workers never share state.
type ModelFactory func(cfg config.EmbeddingConfig) (Model, error)

// registry provides model lookup by name.
type registry struct {
	mu        sync.RWMutex
	factories map[string]ModelFactory
}

var defaultRegistry = &registry{factories: make(map[string]ModelFactory)}

// Register adds a model factory under the given name.
func Register(name string, factory ModelFactory) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.factories[name] = factory
}

// Open creates an instance of the configured model.
func Open(cfg config.EmbeddingConfig) (Model, error) {
	defaultRegistry.mu.RLock()
	factory, ok := defaultRegistry.factories[cfg.Model]
	defaultRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding model %q", cfg.Model)
	}
	return factory(cfg)
}
