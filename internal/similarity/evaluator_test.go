// Package similarity converts raw vector-store distances into admission
// decisions against configurable thresholds.
package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCosineEvaluator verifies the native similarity passthrough clips
// into [0,1].
func TestCosineEvaluator(t *testing.T) {
	e, err := New("cosine", false, Thresholds{Default: 0.9, Long: 0.95, Boundary: 100})
	require.NoError(t, err)

	tests := []struct {
		name     string
		distance float32
		want     float32
	}{
		{name: "identical", distance: 1.0, want: 1.0},
		{name: "partial", distance: 0.42, want: 0.42},
		{name: "orthogonal", distance: 0, want: 0},
		{name: "negative clipped", distance: -0.3, want: 0},
		{name: "overflow clipped", distance: 1.2, want: 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.Eval(tt.distance), 1e-6)
		})
	}
}

// TestDistanceEvaluator verifies the L2 mapping against the maximum
// possible distance.
func TestDistanceEvaluator(t *testing.T) {
	e, err := New("l2", true, Thresholds{Default: 0.95, Long: 0.95, Boundary: 100})
	require.NoError(t, err)

	tests := []struct {
		name     string
		distance float32
		want     float32
	}{
		{name: "exact match", distance: 0, want: 1.0},
		{name: "halfway", distance: 1.0, want: 0.5},
		{name: "maximum", distance: 2.0, want: 0},
		{name: "beyond maximum clipped", distance: 3.5, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, e.Eval(tt.distance), 1e-6)
		})
	}
}

// TestDistanceEvaluatorUnnormalized verifies the wider bound for raw
// vectors.
func TestDistanceEvaluatorUnnormalized(t *testing.T) {
	e, err := New("l2", false, Thresholds{Default: 0.95})
	require.NoError(t, err)

	assert.InDelta(t, 0.5, e.Eval(2.0), 1e-6)
	assert.InDelta(t, 0, e.Eval(4.0), 1e-6)
}

// TestThresholdLongQuery verifies the long-query threshold takes over past
// the boundary.
func TestThresholdLongQuery(t *testing.T) {
	th := Thresholds{Default: 0.9, Long: 0.97, Boundary: 100}

	e, err := New("cosine", false, th)
	require.NoError(t, err)

	assert.InDelta(t, 0.9, e.Threshold(0), 1e-6)
	assert.InDelta(t, 0.9, e.Threshold(100), 1e-6)
	assert.InDelta(t, 0.97, e.Threshold(101), 1e-6)
}

// TestThresholdZeroBoundary verifies an unset boundary never switches to
// the long threshold.
func TestThresholdZeroBoundary(t *testing.T) {
	th := Thresholds{Default: 0.9, Long: 0.97}
	assert.InDelta(t, 0.9, th.For(10000), 1e-6)
}

// TestNewUnknownMetric verifies the factory rejects unknown metrics.
func TestNewUnknownMetric(t *testing.T) {
	_, err := New("hamming", false, Thresholds{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hamming")
}
