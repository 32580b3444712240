// Package eviction implements the in-memory admission and eviction policies
// that decide which cache entries stay resident.
package eviction

import (
	"container/list"
	"fmt"
)

// EvictFunc receives the ids dropped from a policy's active set. Eviction is
// advisory: the persistent tiers keep their copies and the owner decides what,
// if anything, to do downstream.
type EvictFunc func(keys []int64)

// Policy tracks which entries are worth keeping in memory. Keys are scalar
// row ids, values the embeddings stored alongside them.
type Policy interface {
	// Get returns the embedding for key and records the access.
	Get(key int64) ([]float32, bool)

	// Put admits key or refreshes its stored embedding.
	Put(key int64, value []float32)

	// Remove drops key without firing the eviction callback.
	Remove(key int64) bool

	// Keys lists the keys currently held in the active set.
	Keys() []int64

	// Len reports the number of active entries.
	Len() int

	// Clear resets the policy to empty.
	Clear()
}

// New constructs the named eviction policy. onEvict may be nil.
func New(name string, maxsize int, onEvict EvictFunc) (Policy, error) {
	switch name {
	case "arc":
		return NewARC(maxsize, onEvict), nil
	case "wtinylfu":
		return NewWTinyLFU(maxsize, onEvict), nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", name)
	}
}

type mapEntry struct {
	key   int64
	value []float32
}

// orderedMap pairs a hash map with a recency list. The list front is the LRU
// end, the back the MRU end.
type orderedMap struct {
	elems map[int64]*list.Element
	order *list.List
}

func newOrderedMap() *orderedMap {
	return &orderedMap{
		elems: make(map[int64]*list.Element),
		order: list.New(),
	}
}

func (m *orderedMap) Len() int { return len(m.elems) }

func (m *orderedMap) Contains(key int64) bool {
	_, ok := m.elems[key]
	return ok
}

// Get returns the value for key and marks it most recently used.
func (m *orderedMap) Get(key int64) ([]float32, bool) {
	el, ok := m.elems[key]
	if !ok {
		return nil, false
	}
	m.order.MoveToBack(el)
	return el.Value.(*mapEntry).value, true
}

// SetValue replaces the stored value for key without touching recency.
func (m *orderedMap) SetValue(key int64, value []float32) bool {
	el, ok := m.elems[key]
	if !ok {
		return false
	}
	el.Value.(*mapEntry).value = value
	return true
}

// Put inserts key at the MRU end, replacing any existing entry.
func (m *orderedMap) Put(key int64, value []float32) {
	if el, ok := m.elems[key]; ok {
		el.Value.(*mapEntry).value = value
		m.order.MoveToBack(el)
		return
	}
	m.elems[key] = m.order.PushBack(&mapEntry{key: key, value: value})
}

// PopLRU removes and returns the least recently used entry.
func (m *orderedMap) PopLRU() (int64, []float32, bool) {
	el := m.order.Front()
	if el == nil {
		return 0, nil, false
	}
	ent := el.Value.(*mapEntry)
	m.order.Remove(el)
	delete(m.elems, ent.key)
	return ent.key, ent.value, true
}

// Remove deletes key and returns its value.
func (m *orderedMap) Remove(key int64) ([]float32, bool) {
	el, ok := m.elems[key]
	if !ok {
		return nil, false
	}
	ent := el.Value.(*mapEntry)
	m.order.Remove(el)
	delete(m.elems, key)
	return ent.value, true
}

// Keys lists keys from least to most recently used.
func (m *orderedMap) Keys() []int64 {
	keys := make([]int64, 0, len(m.elems))
	for el := m.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*mapEntry).key)
	}
	return keys
}

func (m *orderedMap) Clear() {
	m.elems = make(map[int64]*list.Element)
	m.order.Init()
}
