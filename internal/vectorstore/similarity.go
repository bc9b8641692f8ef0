package vectorstore

import (
	"fmt"
	"math"

	"studyrag/internal/domain"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// It is exactly 0 when either vector has zero magnitude or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return ClampScore(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// ClampScore pins a cosine score to [-1, 1] against rounding error.
func ClampScore(score float64) float64 {
	return math.Max(-1, math.Min(1, score))
}

// Magnitude returns the L2 norm of v.
func Magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Flatten coerces a batch-shaped embedding into a single 1-D vector by
// concatenating its rows in order.
func Flatten(batch [][]float32) []float32 {
	n := 0
	for _, row := range batch {
		n += len(row)
	}
	out := make([]float32, 0, n)
	for _, row := range batch {
		out = append(out, row...)
	}
	return out
}

// Validate rejects empty vectors and vectors holding NaN or infinite values.
func Validate(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrInvalidEmbedding)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at %d", domain.ErrInvalidEmbedding, i)
		}
	}
	return nil
}
