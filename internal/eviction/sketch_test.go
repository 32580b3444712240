// Package eviction implements the in-memory admission and eviction policies
// that decide which cache entries stay resident.
package eviction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSketchEstimateCounts verifies estimates track add counts for
// non-colliding keys.
func TestSketchEstimateCounts(t *testing.T) {
	s := newSketch()
	for k := int64(1); k <= 8; k++ {
		for i := int64(0); i < k; i++ {
			s.Add(k)
		}
	}

	for k := int64(1); k <= 8; k++ {
		assert.Equal(t, uint32(k), s.Estimate(k), "key %d", k)
	}
}

// TestSketchUnseenKey verifies an unseen key estimates to zero.
func TestSketchUnseenKey(t *testing.T) {
	s := newSketch()
	s.Add(1)
	assert.Equal(t, uint32(0), s.Estimate(999))
}

// TestSketchConservativeUpdate verifies only rows at the current minimum
// are incremented.
func TestSketchConservativeUpdate(t *testing.T) {
	s := newSketch()
	i0 := s.hash(99, 0)
	s.rows[0][i0] = 5

	s.Add(99)

	assert.Equal(t, uint32(5), s.rows[0][i0], "row above the minimum stays put")
	for row := 1; row < sketchDepth; row++ {
		assert.Equal(t, uint32(1), s.rows[row][s.hash(99, row)])
	}
	assert.Equal(t, uint32(1), s.Estimate(99))
}

// TestSketchDecay verifies decay halves counters.
func TestSketchDecay(t *testing.T) {
	s := newSketch()
	for i := 0; i < 7; i++ {
		s.Add(42)
	}
	assert.Equal(t, uint32(7), s.Estimate(42))

	s.decay()

	assert.Equal(t, uint32(3), s.Estimate(42))
}

// TestSketchAutoDecay verifies decay triggers on the add counter.
func TestSketchAutoDecay(t *testing.T) {
	s := newSketch()
	for i := 0; i < 6; i++ {
		s.Add(42)
	}
	s.adds = decayInterval - 1

	s.Add(42)

	assert.Equal(t, uint32(3), s.Estimate(42))
	assert.Equal(t, 0, s.adds)
}

// TestSketchOrdering verifies frequent keys estimate above rare ones.
func TestSketchOrdering(t *testing.T) {
	s := newSketch()
	for i := 0; i < 10; i++ {
		s.Add(1001)
	}
	s.Add(2002)

	assert.Equal(t, uint32(10), s.Estimate(1001))
	assert.Equal(t, uint32(1), s.Estimate(2002))
	assert.Greater(t, s.Estimate(1001), s.Estimate(2002))
}

// TestSketchReset verifies Reset zeroes counters and the add count.
func TestSketchReset(t *testing.T) {
	s := newSketch()
	for i := 0; i < 5; i++ {
		s.Add(7)
	}

	s.Reset()

	assert.Equal(t, uint32(0), s.Estimate(7))
	assert.Equal(t, 0, s.adds)
}
