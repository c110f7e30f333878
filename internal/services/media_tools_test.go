package services

import (
	"math"
	"testing"
)

func TestIntervalsFromCuts(t *testing.T) {
	tests := []struct {
		name      string
		cuts      []float64
		durationS float64
		want      []SceneInterval
	}{
		{
			name:      "no cuts yields one full interval",
			cuts:      nil,
			durationS: 30,
			want:      []SceneInterval{{0, 30}},
		},
		{
			name:      "cuts partition the duration",
			cuts:      []float64{4, 12.5},
			durationS: 30,
			want:      []SceneInterval{{0, 4}, {4, 12.5}, {12.5, 30}},
		},
		{
			name:      "near-duplicate cut is merged",
			cuts:      []float64{4, 4.0004, 12.5},
			durationS: 30,
			want:      []SceneInterval{{0, 4}, {4, 12.5}, {12.5, 30}},
		},
		{
			name:      "sub-millisecond tail folds into the last interval",
			cuts:      []float64{10, 19.9996},
			durationS: 20,
			want:      []SceneInterval{{0, 10}, {10, 20}},
		},
		{
			name:      "cut just before the end keeps a real tail",
			cuts:      []float64{10, 19.9},
			durationS: 20,
			want:      []SceneInterval{{0, 10}, {10, 19.9}, {19.9, 20}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := intervalsFromCuts(tt.cuts, tt.durationS)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d intervals %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if math.Abs(got[i].StartS-tt.want[i].StartS) > 1e-9 ||
					math.Abs(got[i].EndS-tt.want[i].EndS) > 1e-9 {
					t.Fatalf("interval %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}

			// Contiguity and coverage hold for every outcome.
			if got[0].StartS != 0 {
				t.Fatalf("first interval starts at %v, want 0", got[0].StartS)
			}
			if got[len(got)-1].EndS != tt.durationS {
				t.Fatalf("last interval ends at %v, want %v", got[len(got)-1].EndS, tt.durationS)
			}
			for i := 1; i < len(got); i++ {
				if got[i].StartS != got[i-1].EndS {
					t.Fatalf("gap between interval %d and %d: %v != %v", i-1, i, got[i-1].EndS, got[i].StartS)
				}
			}
		})
	}
}
