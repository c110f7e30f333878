package vectors

import (
	"math"
	"testing"
)

func TestNormalizeUnitNorm(t *testing.T) {
	cases := []struct {
		name string
		in   []float32
	}{
		{name: "simple", in: []float32{3, 4}},
		{name: "negative", in: []float32{-1, 2, -3, 4}},
		{name: "tiny", in: []float32{1e-4, 2e-4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Normalize(tc.in)
			if out == nil {
				t.Fatalf("Normalize(%v) = nil, want unit vector", tc.in)
			}
			if got := Norm(out); math.Abs(got-1) > 1e-3 {
				t.Fatalf("Norm(Normalize(%v)) = %v, want 1", tc.in, got)
			}
		})
	}
}

func TestNormalizeFixpoint(t *testing.T) {
	v := Normalize([]float32{0.2, 0.5, 0.1, 0.9})
	again := Normalize(v)
	for i := range v {
		if math.Abs(float64(v[i]-again[i])) > 1e-6 {
			t.Fatalf("Normalize not a fixpoint at %d: %v vs %v", i, v[i], again[i])
		}
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	if out := Normalize([]float32{0, 0, 0}); out != nil {
		t.Fatalf("Normalize(zero) = %v, want nil", out)
	}
}

func TestCentroid(t *testing.T) {
	vecs := [][]float32{
		{1, 0},
		{0, 1},
	}
	c, err := Centroid(vecs)
	if err != nil {
		t.Fatalf("Centroid: %v", err)
	}
	want := float32(1 / math.Sqrt2)
	for i, got := range c {
		if math.Abs(float64(got-want)) > 1e-6 {
			t.Fatalf("Centroid[%d] = %v, want %v", i, got, want)
		}
	}
}

func TestCentroidDeterministic(t *testing.T) {
	vecs := [][]float32{
		{0.3, 0.1, 0.8},
		{0.5, 0.5, 0.2},
		{0.9, 0.2, 0.4},
	}
	a, err := Centroid(vecs)
	if err != nil {
		t.Fatalf("Centroid: %v", err)
	}
	b, err := Centroid(vecs)
	if err != nil {
		t.Fatalf("Centroid: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Centroid not deterministic at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestMeanDimensionMismatch(t *testing.T) {
	if _, err := Mean([][]float32{{1, 2}, {1, 2, 3}}); err == nil {
		t.Fatalf("Mean with mismatched dims returned nil error")
	}
}

func TestCosineSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CosineSimilarity(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("CosineSimilarity = %v, want %v", got, tc.want)
			}
		})
	}
}
