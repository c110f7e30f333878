// Package vectors holds the small amount of float math shared by the
// pipeline, enrollment and retrieval: unit normalization, centroids and
// cosine similarity over fixed-dimension embeddings.
package vectors

import (
	"fmt"
	"math"
)

// Normalize returns x scaled to unit L2 norm. A zero vector has no direction,
// so it returns nil; callers store nil vectors as NULL.
func Normalize(x []float32) []float32 {
	n := Norm(x)
	if n == 0 {
		return nil
	}
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(float64(v) / n)
	}
	return out
}

func Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Mean averages a non-empty set of equal-length vectors.
func Mean(vecs [][]float32) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, fmt.Errorf("mean of zero vectors")
	}
	dim := len(vecs[0])
	acc := make([]float64, dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("dimension mismatch: %d != %d", len(v), dim)
		}
		for i, f := range v {
			acc[i] += float64(f)
		}
	}
	out := make([]float32, dim)
	for i, s := range acc {
		out[i] = float32(s / float64(len(vecs)))
	}
	return out, nil
}

// Centroid is Mean followed by Normalize.
func Centroid(vecs [][]float32) ([]float32, error) {
	m, err := Mean(vecs)
	if err != nil {
		return nil, err
	}
	return Normalize(m), nil
}

// CosineSimilarity assumes nothing about the norms of its inputs.
func CosineSimilarity(a, b []float32) float64 {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
