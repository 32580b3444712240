// Package eviction implements the in-memory admission and eviction policies
// that decide which cache entries stay resident.
package eviction

import "sync"

// WTinyLFU is a windowed TinyLFU cache keyed by entry id.
//
// A small admission window absorbs new arrivals while the main space is
// split into probation and protected segments. A count-min sketch scores
// frequency; a key evicted from the window must beat the sketch estimate of
// its rival to earn a probation slot, and a probation hit promotes the entry
// into protected.
//
// All mutating operations, Get included, take the write lock. Len and Keys
// take the read lock.
type WTinyLFU struct {
	window    *orderedMap
	probation *orderedMap
	protected *orderedMap
	sketch    *cmSketch
	onEvict   EvictFunc

	windowSize    int
	probationSize int
	protectedSize int

	mu sync.RWMutex
}

var _ Policy = (*WTinyLFU)(nil)

// NewWTinyLFU creates a W-TinyLFU policy holding at most maxsize entries.
// The window takes 1% of maxsize (one slot minimum) and the remainder is
// split evenly between probation and protected.
func NewWTinyLFU(maxsize int, onEvict EvictFunc) *WTinyLFU {
	if maxsize < 1 {
		maxsize = 1
	}
	windowSize := max(1, maxsize/100)
	rest := maxsize - windowSize
	probationSize := rest / 2
	return &WTinyLFU{
		window:        newOrderedMap(),
		probation:     newOrderedMap(),
		protected:     newOrderedMap(),
		sketch:        newSketch(),
		onEvict:       onEvict,
		windowSize:    windowSize,
		probationSize: probationSize,
		protectedSize: rest - probationSize,
	}
}

// Get returns the embedding for key if cached. Window and protected hits
// refresh recency; a probation hit promotes the entry into protected,
// demoting protected's LRU entry back to probation when full.
func (c *WTinyLFU) Get(key int64) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.window.Get(key); ok {
		return v, true
	}
	if v, ok := c.protected.Get(key); ok {
		return v, true
	}
	if v, ok := c.probation.Remove(key); ok {
		if c.protectedSize == 0 {
			c.probation.Put(key, v)
			return v, true
		}
		if c.protected.Len() >= c.protectedSize {
			// The removal above freed a probation slot for the demoted entry.
			dk, dv, _ := c.protected.PopLRU()
			c.probation.Put(dk, dv)
		}
		c.protected.Put(key, v)
		return v, true
	}
	return nil, false
}

// Put records key in the sketch and admits it. A key already resident only
// has its value replaced. When the window is full its LRU victim duels the
// new key on sketch estimates: the winner enters probation, the loser is
// dropped.
func (c *WTinyLFU) Put(key int64, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sketch.Add(key)

	if c.window.SetValue(key, value) || c.probation.SetValue(key, value) || c.protected.SetValue(key, value) {
		return
	}

	if c.window.Len() < c.windowSize {
		c.window.Put(key, value)
		return
	}

	victimKey, victimValue, _ := c.window.PopLRU()
	winnerKey, winnerValue := key, value
	winnerWasResident := false
	var evicted []int64
	if c.sketch.Estimate(key) >= c.sketch.Estimate(victimKey) {
		evicted = append(evicted, victimKey)
	} else {
		winnerKey, winnerValue = victimKey, victimValue
		winnerWasResident = true
	}

	if c.probationSize > 0 {
		if c.probation.Len() >= c.probationSize {
			k, _, _ := c.probation.PopLRU()
			evicted = append(evicted, k)
		}
		c.probation.Put(winnerKey, winnerValue)
	} else if winnerWasResident {
		evicted = append(evicted, winnerKey)
	}

	if len(evicted) > 0 && c.onEvict != nil {
		c.onEvict(evicted)
	}
}

// Remove drops key from whichever segment holds it. No callback fires.
func (c *WTinyLFU) Remove(key int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.window.Remove(key); ok {
		return true
	}
	if _, ok := c.probation.Remove(key); ok {
		return true
	}
	if _, ok := c.protected.Remove(key); ok {
		return true
	}
	return false
}

// Keys lists resident keys: window, then probation, then protected, LRU
// first within each segment.
func (c *WTinyLFU) Keys() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]int64, 0, c.window.Len()+c.probation.Len()+c.protected.Len())
	keys = append(keys, c.window.Keys()...)
	keys = append(keys, c.probation.Keys()...)
	keys = append(keys, c.protected.Keys()...)
	return keys
}

// Len reports the resident entry count across all segments.
func (c *WTinyLFU) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.Len() + c.probation.Len() + c.protected.Len()
}

// Clear empties all segments and resets the sketch.
func (c *WTinyLFU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window.Clear()
	c.probation.Clear()
	c.protected.Clear()
	c.sketch.Reset()
}
