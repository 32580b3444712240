// Package vectors provides float32 vector math shared by the cache tiers.
package vectors

import "math"

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Returns 0 when either vector has zero magnitude or lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// L2 returns the Euclidean distance between a and b.
// Returns +Inf when lengths differ so mismatched vectors never rank first.
func L2(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// Norm returns the L2 magnitude of v.
func Norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// NormalizeL2 returns a unit-length copy of v. The zero vector is returned
// unchanged. The input is never mutated; callers rely on symmetric
// application at write and query time producing identical bytes.
func NormalizeL2(v []float32) []float32 {
	n := Norm(v)
	out := make([]float32, len(v))
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// ToFloat32 casts a float64 slice down to float32, the dtype both cache
// tiers persist.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
