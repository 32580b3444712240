package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/thebtf/semcache/internal/config"
	"github.com/thebtf/semcache/pkg/vectors"
)

func init() {
	Register("hash", newHashModel)
}

// hashModel is the deterministic fallback model: embeddings are derived
// from an FNV-1a hash of the text, so identical texts always map to the
// same unit vector and the engine can run with no external service. It
// carries no semantics beyond exact-text identity and exists for tests
// and local smoke runs.
type hashModel struct {
	dimensions int
}

var _ Model = (*hashModel)(nil)

func newHashModel(cfg config.EmbeddingConfig) (Model, error) {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 768
	}
	return &hashModel{dimensions: dim}, nil
}

func (m *hashModel) Name() string    { return "hash" }
func (m *hashModel) Dimensions() int { return m.dimensions }
func (m *hashModel) Close() error    { return nil }

// Embed fills the vector from an xorshift stream seeded by the text hash
// and normalizes it to unit length.
func (m *hashModel) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	state := h.Sum64()
	if state == 0 {
		state = 0x9e3779b97f4a7c15
	}

	vec := make([]float32, m.dimensions)
	for i := range vec {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		// Map onto [-1, 1).
		vec[i] = float32(int64(state)) / float32(math.MaxInt64)
	}
	return vectors.NormalizeL2(vec), nil
}
