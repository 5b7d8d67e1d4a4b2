package domain

import "testing"

func TestScoreNeverUsed(t *testing.T) {
	p := &Principle{}
	if got := p.Score(); got != 0.5 {
		t.Errorf("never-used score = %f, want 0.5", got)
	}
}

func TestScoreBounds(t *testing.T) {
	tests := []struct {
		name    string
		use     float64
		success float64
	}{
		{"all successes", 100, 100},
		{"all failures", 100, 0},
		{"fractional credit", 7, 3.4},
		{"single perfect use", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Principle{UseCount: tt.use, SuccessCount: tt.success}
			got := p.Score()
			if got <= 0 || got >= 1 {
				t.Errorf("score = %f, want strictly inside (0, 1)", got)
			}
		})
	}
}

func TestScoreMonotoneInSuccess(t *testing.T) {
	low := &Principle{UseCount: 10, SuccessCount: 2}
	high := &Principle{UseCount: 10, SuccessCount: 8}
	if low.Score() >= high.Score() {
		t.Errorf("more successes must score higher: %f vs %f", low.Score(), high.Score())
	}
}

func TestHasTriple(t *testing.T) {
	tr := Triple{Subject: "api", Relation: "returns", Object: "json"}
	p := &Principle{Triples: []Triple{tr}}

	if !p.HasTriple(tr) {
		t.Error("expected exact triple to match")
	}
	if p.HasTriple(Triple{Subject: "api", Relation: "returns", Object: "xml"}) {
		t.Error("structurally different triple must not match")
	}
}

func TestClampCredit(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}

	for _, tt := range tests {
		if got := ClampCredit(tt.in); got != tt.want {
			t.Errorf("ClampCredit(%f) = %f, want %f", tt.in, got, tt.want)
		}
	}
}
