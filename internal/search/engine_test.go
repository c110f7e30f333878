package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/scenedex-backend/internal/config"
)

func testEngine(features config.Features) *Engine {
	return &Engine{
		cfg: config.Config{
			Features: features,
			Search: config.SearchConfig{
				FinalLimit: 20,
			},
		},
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestSearchRejectsEmptyQuery(t *testing.T) {
	e := testEngine(config.Features{})
	if _, err := e.Search(context.Background(), Request{Query: "   "}); err != ErrEmptyQuery {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestSearchModeGates(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		features config.Features
		wantErr  error
	}{
		{"semantic off", ModeSemantic, config.Features{}, ErrSemanticDisabled},
		{"hybrid off", ModeHybrid, config.Features{SemanticSearch: true}, ErrHybridDisabled},
		{"hybrid without semantic", ModeHybrid, config.Features{HybridRRF: true}, ErrHybridDisabled},
		{"unknown mode", Mode("fuzzy"), config.Features{}, ErrUnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEngine(tt.features)
			_, err := e.Search(context.Background(), Request{Query: "sunset", Mode: tt.mode})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-3, defaultLimit},
		{1, 1},
		{42, 42},
		{100, 100},
		{250, maxLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampWeightOverrides(t *testing.T) {
	if got := clampWeight(nil, 0.5); got != 0.5 {
		t.Fatalf("nil override = %v, want configured 0.5", got)
	}
	if got := clampWeight(floatPtr(0.9), 0.5); got != 0.9 {
		t.Fatalf("override = %v, want 0.9", got)
	}
	if got := clampWeight(floatPtr(-0.2), 0.5); got != 0 {
		t.Fatalf("negative override = %v, want 0", got)
	}
	if got := clampWeight(floatPtr(1.7), 0.5); got != 1 {
		t.Fatalf("oversized override = %v, want 1", got)
	}
}

// All the optional request knobs must survive construction and flatten to
// the sentinels the SQL paths test against.
func TestRequestFilterFlattening(t *testing.T) {
	pid := uuid.New()
	req := Request{
		OwnerID:      uuid.New(),
		Query:        "sunset",
		PersonID:     &pid,
		MinDurationS: floatPtr(2.5),
		MaxDurationS: floatPtr(30),
		TextWeight:   floatPtr(0.6),
		VisionWeight: floatPtr(0.4),
		Limit:        25,
		Offset:       50,
	}
	if got := personFilter(req); got != pid {
		t.Fatalf("personFilter = %v, want %v", got, pid)
	}
	minDur, maxDur := durationBounds(req)
	if minDur != 2.5 || maxDur != 30 {
		t.Fatalf("durationBounds = (%v, %v), want (2.5, 30)", minDur, maxDur)
	}

	empty := Request{OwnerID: req.OwnerID, Query: "sunset"}
	if got := personFilter(empty); got != uuid.Nil {
		t.Fatalf("personFilter without filter = %v, want Nil", got)
	}
	minDur, maxDur = durationBounds(empty)
	if minDur != -1 || maxDur != -1 {
		t.Fatalf("durationBounds without filter = (%v, %v), want (-1, -1)", minDur, maxDur)
	}
}

// A scene that ranks modestly in both lists beats one that dominates a
// single list: rank (10, 1) outscores rank (1, 5) under the default
// weights because the vector side carries 0.7 of the mass.
func TestRRFScoreFusion(t *testing.T) {
	const (
		bm25W = 0.3
		vecW  = 0.7
		k     = 60
	)
	scoreA := RRFScore(bm25W, vecW, k, 1, 5)
	scoreB := RRFScore(bm25W, vecW, k, 10, 1)
	if scoreA >= scoreB {
		t.Fatalf("scoreA=%f should be below scoreB=%f", scoreA, scoreB)
	}

	wantA := bm25W/61.0 + vecW/65.0
	if diff := scoreA - wantA; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("scoreA = %v, want %v", scoreA, wantA)
	}
}

func TestRRFScoreSingleListMembership(t *testing.T) {
	lexOnly := RRFScore(0.3, 0.7, 60, 3, 0)
	vecOnly := RRFScore(0.3, 0.7, 60, 0, 3)
	if math.Abs(lexOnly-0.3/63.0) > 1e-12 {
		t.Fatalf("lexOnly = %v, want %v", lexOnly, 0.3/63.0)
	}
	if math.Abs(vecOnly-0.7/63.0) > 1e-12 {
		t.Fatalf("vecOnly = %v, want %v", vecOnly, 0.7/63.0)
	}
	if both := RRFScore(0.3, 0.7, 60, 3, 3); math.Abs(both-(lexOnly+vecOnly)) > 1e-12 {
		t.Fatalf("both = %v, want %v", both, lexOnly+vecOnly)
	}
}
