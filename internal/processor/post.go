// Package processor holds the pre-embedding and post-search transforms
// applied around the vector lookup.
package processor

import (
	"fmt"
	"math/rand"
)

// Candidate is a search hit that already cleared the similarity threshold.
type Candidate struct {
	ID       int64
	Question string
	Answer   string
	Score    float32
}

// PostFunc selects the winning candidate from the thresholded hits.
type PostFunc func(candidates []Candidate) (Candidate, bool)

// NewPost returns the named post-search selector.
func NewPost(name string) (PostFunc, error) {
	switch name {
	case "first_answer":
		return FirstAnswer, nil
	case "nearest_answer":
		return NearestAnswer, nil
	case "random_answer":
		return RandomAnswer, nil
	default:
		return nil, fmt.Errorf("unknown post-search selector %q", name)
	}
}

// FirstAnswer picks the first candidate in store rank order.
func FirstAnswer(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

// NearestAnswer picks the candidate with the highest similarity score.
func NearestAnswer(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}

// RandomAnswer picks a uniformly random candidate.
func RandomAnswer(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}
