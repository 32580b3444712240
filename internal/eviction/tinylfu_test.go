// Package eviction implements the in-memory admission and eviction policies
// that decide which cache entries stay resident.
package eviction

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWTinyLFUSegmentSizes verifies the window/probation/protected split.
func TestWTinyLFUSegmentSizes(t *testing.T) {
	tests := []struct {
		maxsize   int
		window    int
		probation int
		protected int
	}{
		{1, 1, 0, 0},
		{2, 1, 0, 1},
		{3, 1, 1, 1},
		{10, 1, 4, 5},
		{100, 1, 49, 50},
		{1000, 10, 495, 495},
		{100000, 1000, 49500, 49500},
	}

	for _, tt := range tests {
		c := NewWTinyLFU(tt.maxsize, nil)
		assert.Equal(t, tt.window, c.windowSize, "maxsize %d window", tt.maxsize)
		assert.Equal(t, tt.probation, c.probationSize, "maxsize %d probation", tt.maxsize)
		assert.Equal(t, tt.protected, c.protectedSize, "maxsize %d protected", tt.maxsize)
	}
}

// TestWTinyLFUWindowAdmission verifies a fresh key enters the window.
func TestWTinyLFUWindowAdmission(t *testing.T) {
	c := NewWTinyLFU(100, nil)
	c.Put(1, []float32{0.1})

	assert.Equal(t, []int64{1}, c.window.Keys())
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1}, v)
	assert.Equal(t, 1, c.Len())
}

// TestWTinyLFUDuelNewWins verifies a tied duel favors the newcomer: the
// window victim is dropped and reported, the new key enters probation.
func TestWTinyLFUDuelNewWins(t *testing.T) {
	var evicted []int64
	calls := 0
	c := NewWTinyLFU(100, func(keys []int64) {
		calls++
		evicted = append(evicted, keys...)
	})

	c.Put(1, []float32{1})
	c.Put(2, []float32{2})

	assert.Equal(t, 0, c.window.Len())
	assert.Equal(t, []int64{2}, c.probation.Keys())
	assert.Equal(t, []int64{1}, evicted)
	assert.Equal(t, 1, calls)

	_, ok := c.Get(1)
	assert.False(t, ok)
	_, ok = c.Get(2)
	assert.True(t, ok)
}

// TestWTinyLFUDuelVictimWins verifies a frequent window occupant beats the
// newcomer and moves to probation; the newcomer is dropped silently.
func TestWTinyLFUDuelVictimWins(t *testing.T) {
	calls := 0
	c := NewWTinyLFU(100, func([]int64) { calls++ })

	c.Put(1, []float32{1})
	c.Put(1, []float32{1})
	c.Put(1, []float32{1})
	require.Equal(t, []int64{1}, c.window.Keys())
	require.Equal(t, uint32(3), c.sketch.Estimate(1))

	c.Put(2, []float32{2})

	assert.Equal(t, 0, c.window.Len())
	assert.Equal(t, []int64{1}, c.probation.Keys())
	assert.Equal(t, 0, calls, "a never-admitted key fires no callback")

	_, ok := c.Get(2)
	assert.False(t, ok)
	_, ok = c.Get(1)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, c.protected.Keys(), "probation hit promotes")
}

// TestWTinyLFUPromotionDemotion verifies probation hits promote into
// protected and a full protected demotes its LRU back to probation.
func TestWTinyLFUPromotionDemotion(t *testing.T) {
	var evicted []int64
	c := NewWTinyLFU(10, func(keys []int64) { evicted = append(evicted, keys...) })

	for k := int64(1); k <= 12; k++ {
		c.Put(k, []float32{float32(k)})
	}
	require.Equal(t, []int64{6, 8, 10, 12}, c.probation.Keys())
	require.Equal(t, []int64{1, 3, 5, 7, 9, 2, 11, 4}, evicted)

	for _, k := range []int64{6, 8, 10, 12} {
		_, ok := c.Get(k)
		require.True(t, ok)
	}
	require.Equal(t, 0, c.probation.Len())
	require.Equal(t, []int64{6, 8, 10, 12}, c.protected.Keys())

	for k := int64(21); k <= 30; k++ {
		c.Put(k, []float32{float32(k)})
	}
	require.Equal(t, []int64{24, 26, 28, 30}, c.probation.Keys())

	before := len(evicted)
	for _, k := range []int64{24, 26, 28, 30} {
		_, ok := c.Get(k)
		require.True(t, ok)
	}

	assert.Equal(t, []int64{6, 8, 10}, c.probation.Keys(), "demoted entries return to probation")
	assert.Equal(t, []int64{12, 24, 26, 28, 30}, c.protected.Keys())
	assert.Equal(t, before, len(evicted), "demotion is not an eviction")
}

// TestWTinyLFUHeavyHitters floods the cache with one-shot keys, then keys
// read nine more times after insert. Protected ends up owned by the
// re-read keys and the one-shot keys are fully churned out.
func TestWTinyLFUHeavyHitters(t *testing.T) {
	c := NewWTinyLFU(100, nil)

	for k := int64(1); k <= 200; k++ {
		c.Put(k, []float32{float32(k)})
	}
	for k := int64(1001); k <= 1200; k++ {
		c.Put(k, []float32{float32(k)})
		for i := 0; i < 9; i++ {
			_, _ = c.Get(k)
		}
	}

	assert.Equal(t, 0, c.window.Len())
	assert.Equal(t, 49, c.probation.Len())
	assert.Equal(t, 50, c.protected.Len())

	for _, k := range c.protected.Keys() {
		assert.GreaterOrEqual(t, k, int64(1001), "protected holds only re-read keys")
	}

	resident := make(map[int64]bool)
	for _, k := range c.Keys() {
		resident[k] = true
	}
	singles := 0
	for k := int64(1); k <= 200; k++ {
		if resident[k] {
			singles++
		}
	}
	assert.Equal(t, 0, singles, "one-shot keys are churned out")

	// every re-read key estimates at least as high as every one-shot key
	minHigh := c.sketch.Estimate(1001)
	for k := int64(1002); k <= 1200; k++ {
		if e := c.sketch.Estimate(k); e < minHigh {
			minHigh = e
		}
	}
	for k := int64(1); k <= 200; k++ {
		assert.GreaterOrEqual(t, minHigh, c.sketch.Estimate(k), "key %d", k)
	}
}

// TestWTinyLFUCapsUnderChurn verifies segment caps hold through a mixed
// workload and every resident key has been counted by the sketch.
func TestWTinyLFUCapsUnderChurn(t *testing.T) {
	const maxsize = 50
	c := NewWTinyLFU(maxsize, nil)

	seed := int64(7)
	for i := 0; i < 8000; i++ {
		seed = (seed*1103515245 + 12345) % (1 << 31)
		key := seed % 120
		if seed%3 == 0 {
			c.Get(key)
		} else {
			c.Put(key, []float32{float32(key)})
		}

		require.LessOrEqual(t, c.window.Len(), c.windowSize, "step %d", i)
		require.LessOrEqual(t, c.probation.Len(), c.probationSize, "step %d", i)
		require.LessOrEqual(t, c.protected.Len(), c.protectedSize, "step %d", i)
		require.LessOrEqual(t, c.Len(), maxsize, "step %d", i)
	}

	for _, k := range c.Keys() {
		require.GreaterOrEqual(t, c.sketch.Estimate(k), uint32(1), "resident key %d never counted", k)
	}
}

// TestWTinyLFURemove verifies removal from each segment without callbacks.
func TestWTinyLFURemove(t *testing.T) {
	calls := 0
	c := NewWTinyLFU(100, func([]int64) { calls++ })

	c.Put(1, []float32{1})
	c.Put(2, []float32{2}) // duel drops 1, 2 enters probation
	require.Equal(t, 1, calls)
	_, ok := c.Get(2) // promotes to protected
	require.True(t, ok)
	c.Put(3, []float32{3}) // window

	assert.True(t, c.Remove(3))
	assert.True(t, c.Remove(2))
	assert.False(t, c.Remove(1))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, calls, "Remove must not fire the eviction callback")
}

// TestWTinyLFUUpdateInPlace verifies a put of a resident key replaces the
// value and still counts in the sketch.
func TestWTinyLFUUpdateInPlace(t *testing.T) {
	c := NewWTinyLFU(100, nil)
	c.Put(1, []float32{1})
	c.Put(1, []float32{9})

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, uint32(2), c.sketch.Estimate(1))
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, []float32{9}, v)
}

// TestWTinyLFUClear verifies Clear empties segments and the sketch.
func TestWTinyLFUClear(t *testing.T) {
	c := NewWTinyLFU(100, nil)
	for k := int64(1); k <= 20; k++ {
		c.Put(k, []float32{float32(k)})
	}

	c.Clear()

	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
	assert.Equal(t, uint32(0), c.sketch.Estimate(1))
}

// TestWTinyLFUConcurrentAccess hammers the cache from several goroutines.
func TestWTinyLFUConcurrentAccess(t *testing.T) {
	const maxsize = 64
	c := NewWTinyLFU(maxsize, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := int64(g*500 + i)
				c.Put(key, []float32{float32(key)})
				c.Get(key)
				c.Get(int64(i % 100))
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), maxsize)
	assert.Equal(t, len(c.Keys()), c.Len())
}
