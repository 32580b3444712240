package handler

import "sync/atomic"

// Metrics holds the engine's request counters. All fields are updated with
// atomic increments on the hot path; Stats takes a consistent-enough
// snapshot for the stats endpoint.
type Metrics struct {
	Requests  atomic.Int64
	Hits      atomic.Int64
	Misses    atomic.Int64
	Inserts   atomic.Int64
	Removes   atomic.Int64
	Errors    atomic.Int64
	Coalesced atomic.Int64
}

// NewMetrics returns zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Stats snapshots the counters.
func (m *Metrics) Stats() map[string]int64 {
	return map[string]int64{
		"requests":          m.Requests.Load(),
		"cache_hits":        m.Hits.Load(),
		"cache_misses":      m.Misses.Load(),
		"inserts":           m.Inserts.Load(),
		"removes":           m.Removes.Load(),
		"errors":            m.Errors.Load(),
		"coalesced_lookups": m.Coalesced.Load(),
	}
}
