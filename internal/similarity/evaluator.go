// Package similarity converts raw vector-store distances into admission
// decisions against configurable thresholds.
package similarity

import "fmt"

// DefaultMaxDistance bounds the score mapping for unnormalized L2 inputs.
const DefaultMaxDistance = 4.0

// NormalizedMaxDistance is the largest L2 distance between unit vectors.
const NormalizedMaxDistance = 2.0

// Thresholds holds the admission bounds. Long replaces Default once the raw
// query length exceeds Boundary.
type Thresholds struct {
	Default  float32
	Long     float32
	Boundary int
}

// For returns the admission threshold for a query of the given raw length.
func (t Thresholds) For(queryLen int) float32 {
	if t.Boundary > 0 && queryLen > t.Boundary {
		return t.Long
	}
	return t.Default
}

// Evaluator scores search candidates and supplies the admission threshold.
type Evaluator interface {
	// Eval maps a raw store distance into a similarity score in [0,1],
	// higher meaning more similar.
	Eval(distance float32) float32

	// Threshold returns the admission bound for a query of the given raw
	// length. A candidate is a hit when Eval(distance) >= Threshold(len).
	Threshold(queryLen int) float32
}

// New constructs the evaluator for the configured metric. Cosine stores
// already return similarity; L2 stores return distances that are mapped
// against the largest possible distance.
func New(metric string, normalized bool, th Thresholds) (Evaluator, error) {
	switch metric {
	case "cosine":
		return &CosineEvaluator{thresholds: th}, nil
	case "l2":
		maxDistance := float32(DefaultMaxDistance)
		if normalized {
			maxDistance = NormalizedMaxDistance
		}
		return &DistanceEvaluator{thresholds: th, maxDistance: maxDistance}, nil
	default:
		return nil, fmt.Errorf("unknown similarity metric %q", metric)
	}
}

// CosineEvaluator passes through store-native cosine similarity, clipped
// to [0,1].
type CosineEvaluator struct {
	thresholds Thresholds
}

var _ Evaluator = (*CosineEvaluator)(nil)

// Eval clips the store similarity into [0,1]. Negative similarity scores
// zero.
func (e *CosineEvaluator) Eval(distance float32) float32 {
	return clip01(distance)
}

// Threshold returns the admission bound for the query length.
func (e *CosineEvaluator) Threshold(queryLen int) float32 {
	return e.thresholds.For(queryLen)
}

// DistanceEvaluator maps an L2-style distance into [0,1]: zero distance
// scores one, maxDistance and beyond score zero.
type DistanceEvaluator struct {
	thresholds  Thresholds
	maxDistance float32
}

var _ Evaluator = (*DistanceEvaluator)(nil)

// Eval converts distance into a similarity score.
func (e *DistanceEvaluator) Eval(distance float32) float32 {
	if e.maxDistance <= 0 {
		return 0
	}
	return clip01(1 - distance/e.maxDistance)
}

// Threshold returns the admission bound for the query length.
func (e *DistanceEvaluator) Threshold(queryLen int) float32 {
	return e.thresholds.For(queryLen)
}

func clip01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
