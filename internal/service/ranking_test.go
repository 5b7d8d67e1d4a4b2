package service

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

func TestTagJaccard(t *testing.T) {
	tests := []struct {
		name string
		a    []string
		b    []string
		want float64
	}{
		{
			name: "partial overlap",
			a:    []string{"debugging", "bug"},
			b:    []string{"debugging", "golang", "bug"},
			want: 2.0 / 3.0,
		},
		{"identical", []string{"go"}, []string{"go"}, 1},
		{"disjoint", []string{"go"}, []string{"rust"}, 0},
		{"both empty", nil, nil, 0},
		{"one empty", []string{"go"}, nil, 0},
		{
			name: "duplicates in candidate do not inflate",
			a:    []string{"go"},
			b:    []string{"go", "go"},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TagJaccard(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TagJaccard(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTripleMatchFraction(t *testing.T) {
	t1 := domain.Triple{Subject: "api", Relation: "uses", Object: "pgx"}
	t2 := domain.Triple{Subject: "api", Relation: "uses", Object: "chi"}
	p := &domain.Principle{Triples: []domain.Triple{t1}}

	if got := TripleMatchFraction(nil, p); got != 1 {
		t.Errorf("no query triples should give 1, got %f", got)
	}
	if got := TripleMatchFraction([]domain.Triple{t1, t2}, p); got != 0.5 {
		t.Errorf("half matched should give 0.5, got %f", got)
	}
	if got := TripleMatchFraction([]domain.Triple{t2}, p); got != 0 {
		t.Errorf("no match should give 0, got %f", got)
	}
}

func TestRankWithoutEmbeddingRenormalizes(t *testing.T) {
	// With no embedding signal the remaining weights (0.2, 0.15, 0.15)
	// renormalize: an unconstrained query with a never-used candidate
	// gives (0.2*1 + 0.15*1 + 0.15*0.5) / 0.5 = 0.85.
	ranker := NewRanker(zap.NewNop())
	candidates := []domain.Principle{{ID: uuid.New(), Text: "p"}}

	ranked := ranker.Rank(RankQuery{}, candidates)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 result, got %d", len(ranked))
	}
	if math.Abs(ranked[0].Relevance-0.85) > 1e-9 {
		t.Errorf("relevance = %f, want 0.85", ranked[0].Relevance)
	}
	if ranked[0].Signals.Embedding != nil {
		t.Error("embedding signal should be absent")
	}
}

func TestRankOrdersByFusedRelevance(t *testing.T) {
	ranker := NewRanker(zap.NewNop())
	matching := domain.Principle{ID: uuid.New(), Text: "matching", Tags: []string{"debugging"}}
	offTopic := domain.Principle{ID: uuid.New(), Text: "off topic", Tags: []string{"frontend"}}

	ranked := ranker.Rank(RankQuery{Tags: []string{"debugging"}}, []domain.Principle{offTopic, matching})
	if ranked[0].Text != "matching" {
		t.Errorf("tag-matching candidate should rank first, got %s", ranked[0].Text)
	}
	if ranked[0].Signals.TagsJaccard != 1 || ranked[1].Signals.TagsJaccard != 0 {
		t.Errorf("tag signals = %f, %f", ranked[0].Signals.TagsJaccard, ranked[1].Signals.TagsJaccard)
	}
}

func TestRankUsesEmbeddingWhenPresent(t *testing.T) {
	ranker := NewRanker(zap.NewNop())
	near := domain.Principle{ID: uuid.New(), Text: "near", Embedding: []float32{1, 0}}
	far := domain.Principle{ID: uuid.New(), Text: "far", Embedding: []float32{0, 1}}

	ranked := ranker.Rank(RankQuery{Embedding: []float32{1, 0}}, []domain.Principle{far, near})
	if ranked[0].Text != "near" {
		t.Errorf("semantically close candidate should rank first, got %s", ranked[0].Text)
	}
	if ranked[0].Signals.Embedding == nil || *ranked[0].Signals.Embedding != 1 {
		t.Errorf("embedding signal = %v, want 1", ranked[0].Signals.Embedding)
	}
}

func TestRankDeterministic(t *testing.T) {
	ranker := NewRanker(zap.NewNop())
	var candidates []domain.Principle
	for i := 0; i < 5; i++ {
		candidates = append(candidates, domain.Principle{ID: uuid.New(), UseCount: float64(i), SuccessCount: float64(i)})
	}
	q := RankQuery{Tags: []string{"go"}}

	a := ranker.Rank(q, candidates)
	b := ranker.Rank(q, candidates)
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("ranking not deterministic at %d", i)
		}
	}
}

func TestDiversifyPrefersDissimilar(t *testing.T) {
	// Two near-duplicates lead the ranking; with MMR the second slot
	// should go to the dissimilar candidate despite its lower relevance.
	ranker := NewRanker(zap.NewNop())
	dup := []string{"debugging", "go"}
	ranked := []RankedPrinciple{
		{Principle: domain.Principle{ID: uuid.New(), Text: "top", Tags: dup}, Relevance: 0.90},
		{Principle: domain.Principle{ID: uuid.New(), Text: "duplicate", Tags: dup}, Relevance: 0.89},
		{Principle: domain.Principle{ID: uuid.New(), Text: "different", Tags: []string{"deploys"}}, Relevance: 0.50},
	}

	got := ranker.Diversify(ranked, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Text != "top" || got[1].Text != "different" {
		t.Errorf("got %s, %s; want top, different", got[0].Text, got[1].Text)
	}
}

func TestDiversifyLimitHandling(t *testing.T) {
	ranker := NewRanker(zap.NewNop())
	ranked := []RankedPrinciple{
		{Principle: domain.Principle{ID: uuid.New()}, Relevance: 0.9},
		{Principle: domain.Principle{ID: uuid.New()}, Relevance: 0.8},
	}

	if got := ranker.Diversify(ranked, 10); len(got) != 2 {
		t.Errorf("oversized limit should return all, got %d", len(got))
	}
	if got := ranker.Diversify(ranked, 0); len(got) != 2 {
		t.Errorf("non-positive limit should return all, got %d", len(got))
	}
	if got := ranker.Diversify(nil, 3); len(got) != 0 {
		t.Errorf("empty input should stay empty, got %d", len(got))
	}
}
