// Package cache coordinates the cache tiers: the per-model in-memory
// policy caches, the write-through pairing of scalar and vector stores,
// and the DataManager facade over both.
package cache

import (
	"sync"

	"github.com/thebtf/semcache/internal/eviction"
	"github.com/thebtf/semcache/pkg/models"
)

// EvictFunc receives the model scope and ids dropped from a policy's
// active set. Eviction is advisory (the durable tiers keep their rows).
type EvictFunc func(model string, ids []int64)

// MemoryCache maps each model scope onto its own eviction policy over
// (id, embedding) pairs. Policies are created on first access.
type MemoryCache struct {
	policy  string
	maxsize int
	onEvict EvictFunc

	mu     sync.Mutex
	caches map[string]*modelCache
}

// modelCache serializes all access to one policy instance. The W-TinyLFU
// policy carries its own lock; ARC relies entirely on this one.
type modelCache struct {
	mu     sync.Mutex
	policy eviction.Policy
}

// NewMemory creates the per-model cache map. onEvict may be nil.
func NewMemory(policy string, maxsize int, onEvict EvictFunc) (*MemoryCache, error) {
	// Validate the policy name up front so a config typo fails at startup
	// rather than on the first insert.
	if _, err := eviction.New(policy, 1, nil); err != nil {
		return nil, err
	}

	return &MemoryCache{
		policy:  policy,
		maxsize: maxsize,
		onEvict: onEvict,
		caches:  make(map[string]*modelCache),
	}, nil
}

// getCache returns the policy cache for model, creating it on first access.
func (m *MemoryCache) getCache(model string) *modelCache {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.caches[model]
	if !ok {
		policy, _ := eviction.New(m.policy, m.maxsize, func(keys []int64) {
			if m.onEvict != nil {
				m.onEvict(model, keys)
			}
		})
		mc = &modelCache{policy: policy}
		m.caches[model] = mc
	}
	return mc
}

// Get returns the embedding recorded for id under model and refreshes its
// recency.
func (m *MemoryCache) Get(id int64, model string) ([]float32, bool) {
	mc := m.getCache(model)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.policy.Get(id)
}

// BatchPut records the (id, embedding) pairs under model.
func (m *MemoryCache) BatchPut(pairs []models.VectorData, model string) {
	mc := m.getCache(model)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, p := range pairs {
		mc.policy.Put(p.ID, p.Data)
	}
}

// Remove drops the ids from model's cache without firing the eviction
// callback. Used on explicit delete, where the durable tiers are handled
// separately.
func (m *MemoryCache) Remove(ids []int64, model string) {
	mc := m.getCache(model)
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, id := range ids {
		mc.policy.Remove(id)
	}
}

// Clear resets model's cache to empty.
func (m *MemoryCache) Clear(model string) {
	m.mu.Lock()
	mc, ok := m.caches[model]
	m.mu.Unlock()
	if !ok {
		return
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.policy.Clear()
}

// Len reports the number of entries held for model.
func (m *MemoryCache) Len(model string) int {
	m.mu.Lock()
	mc, ok := m.caches[model]
	m.mu.Unlock()
	if !ok {
		return 0
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.policy.Len()
}
