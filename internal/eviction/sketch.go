// Package eviction implements the in-memory admission and eviction policies
// that decide which cache entries stay resident.
package eviction

import "math"

const (
	sketchWidth = 1024
	sketchDepth = 4

	// decayInterval is the number of adds between halvings of all counters.
	decayInterval = 10000
)

// Per-row seeds for the sketch hash. Distinct odd constants keep the rows
// independent.
var sketchSeeds = [sketchDepth]uint64{
	0x9e3779b97f4a7c15,
	0xbf58476d1ce4e5b9,
	0x94d049bb133111eb,
	0xd6e8feb86659fd93,
}

// cmSketch is a count-min frequency sketch over entry ids. Adds use a
// conservative update: only the rows sitting at the current minimum are
// incremented. Counters halve every decayInterval adds so stale frequency
// ages out.
type cmSketch struct {
	rows [sketchDepth][]uint32
	adds int
}

func newSketch() *cmSketch {
	s := &cmSketch{}
	for i := range s.rows {
		s.rows[i] = make([]uint32, sketchWidth)
	}
	return s
}

// hash maps key into row's counter range using seeded FNV-1a over the key
// bytes.
func (s *cmSketch) hash(key int64, row int) uint64 {
	h := uint64(14695981039346656037) ^ sketchSeeds[row]
	x := uint64(key)
	for i := 0; i < 8; i++ {
		h ^= x & 0xff
		h *= 1099511628211
		x >>= 8
	}
	return h % sketchWidth
}

// Add counts one occurrence of key and triggers decay when due.
func (s *cmSketch) Add(key int64) {
	var idx [sketchDepth]uint64
	est := uint32(math.MaxUint32)
	for i := range idx {
		idx[i] = s.hash(key, i)
		if v := s.rows[i][idx[i]]; v < est {
			est = v
		}
	}
	for i := range idx {
		if s.rows[i][idx[i]] == est {
			s.rows[i][idx[i]]++
		}
	}
	s.adds++
	if s.adds >= decayInterval {
		s.decay()
		s.adds = 0
	}
}

// Estimate returns the minimum counter for key across all rows.
func (s *cmSketch) Estimate(key int64) uint32 {
	est := uint32(math.MaxUint32)
	for i := 0; i < sketchDepth; i++ {
		if v := s.rows[i][s.hash(key, i)]; v < est {
			est = v
		}
	}
	return est
}

// decay right-shifts every counter by one.
func (s *cmSketch) decay() {
	for i := range s.rows {
		for j := range s.rows[i] {
			s.rows[i][j] >>= 1
		}
	}
}

// Reset zeroes all counters and the add count.
func (s *cmSketch) Reset() {
	for i := range s.rows {
		clear(s.rows[i])
	}
	s.adds = 0
}
