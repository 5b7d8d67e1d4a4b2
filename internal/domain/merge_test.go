package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestUnionTags(t *testing.T) {
	tests := []struct {
		name     string
		a        []string
		b        []string
		expected []string
	}{
		{
			name:     "disjoint sets concatenate",
			a:        []string{"debugging", "go"},
			b:        []string{"testing"},
			expected: []string{"debugging", "go", "testing"},
		},
		{
			name:     "duplicates collapse keeping first occurrence order",
			a:        []string{"debugging", "go"},
			b:        []string{"go", "debugging", "testing"},
			expected: []string{"debugging", "go", "testing"},
		},
		{
			name:     "both empty",
			a:        nil,
			b:        nil,
			expected: []string{},
		},
		{
			name:     "duplicates within one side collapse",
			a:        []string{"go", "go"},
			b:        nil,
			expected: []string{"go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnionTags(tt.a, tt.b)
			if len(got) != len(tt.expected) {
				t.Fatalf("got %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("index %d: got %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestUnionTriples(t *testing.T) {
	t1 := Triple{Subject: "service", Relation: "uses", Object: "postgres"}
	t2 := Triple{Subject: "cache", Relation: "backs", Object: "retrieval"}
	t3 := Triple{Subject: "service", Relation: "uses", Object: "redis"}

	got := UnionTriples([]Triple{t1, t2}, []Triple{t2, t3, t1})
	if len(got) != 3 {
		t.Fatalf("expected 3 triples, got %d: %v", len(got), got)
	}
	if !got[0].Equal(t1) || !got[1].Equal(t2) || !got[2].Equal(t3) {
		t.Errorf("union order wrong: %v", got)
	}
}

func TestCapExamplesKeepsHighestSimilarity(t *testing.T) {
	examples := []Example{
		{TraceID: uuid.New(), SimilarityScore: 0.70},
		{TraceID: uuid.New(), SimilarityScore: 0.95},
		{TraceID: uuid.New(), SimilarityScore: 0.85},
		{TraceID: uuid.New(), SimilarityScore: 0.90},
	}

	capped := CapExamples(examples, 2)
	if len(capped) != 2 {
		t.Fatalf("expected 2 examples, got %d", len(capped))
	}
	if capped[0].SimilarityScore != 0.95 || capped[1].SimilarityScore != 0.90 {
		t.Errorf("kept wrong examples: %+v", capped)
	}
}

func TestCapExamplesUnderCapUntouched(t *testing.T) {
	examples := []Example{
		{TraceID: uuid.New(), SimilarityScore: 0.5},
	}
	capped := CapExamples(examples, 5)
	if len(capped) != 1 {
		t.Fatalf("expected 1 example, got %d", len(capped))
	}
}

func TestMergeObservation(t *testing.T) {
	conf := 0.6
	target := &Principle{
		ID:           uuid.New(),
		Text:         "Read the failing test before editing code",
		Tags:         []string{"debugging"},
		UseCount:     4,
		SuccessCount: 3,
		Confidence:   &conf,
		Version:      2,
	}
	traceID := uuid.New()

	MergeObservation(target, CandidatePrinciple{
		Text:       "Always read the failing test first",
		Tags:       []string{"debugging", "testing"},
		Confidence: 0.9,
		Rationale:  "saved a wrong fix",
		TraceID:    traceID,
	}, 0.91, DefaultMaxExamples)

	if target.UseCount != 4 || target.SuccessCount != 3 {
		t.Errorf("counters must not change on observation merge: use=%f success=%f",
			target.UseCount, target.SuccessCount)
	}
	if len(target.Tags) != 2 {
		t.Errorf("expected unioned tags, got %v", target.Tags)
	}
	if len(target.Examples) != 1 || target.Examples[0].TraceID != traceID {
		t.Errorf("expected one new example, got %+v", target.Examples)
	}
	if target.Examples[0].SimilarityScore != 0.91 {
		t.Errorf("example similarity = %f, want 0.91", target.Examples[0].SimilarityScore)
	}
	if target.Version != 3 {
		t.Errorf("version = %d, want 3", target.Version)
	}
	if target.Confidence == nil || *target.Confidence != 0.9 {
		t.Errorf("confidence should take the max, got %v", target.Confidence)
	}
}

func TestMergePrinciplesSumsCounters(t *testing.T) {
	srcConf := 0.7
	target := &Principle{
		ID:           uuid.New(),
		Tags:         []string{"debugging"},
		UseCount:     10,
		SuccessCount: 7.5,
		Version:      1,
	}
	source := &Principle{
		ID:           uuid.New(),
		Tags:         []string{"testing"},
		UseCount:     4,
		SuccessCount: 2,
		Confidence:   &srcConf,
		Examples: []Example{
			{TraceID: uuid.New(), SimilarityScore: 0.88},
		},
	}

	MergePrinciples(target, source, DefaultMaxExamples)

	if target.UseCount != 14 {
		t.Errorf("use_count = %f, want 14", target.UseCount)
	}
	if target.SuccessCount != 9.5 {
		t.Errorf("success_count = %f, want 9.5", target.SuccessCount)
	}
	if len(target.Tags) != 2 {
		t.Errorf("expected unioned tags, got %v", target.Tags)
	}
	if len(target.Examples) != 1 {
		t.Errorf("expected source examples carried over, got %d", len(target.Examples))
	}
	if target.Version != 2 {
		t.Errorf("version = %d, want 2", target.Version)
	}
	if target.Confidence == nil || *target.Confidence != 0.7 {
		t.Errorf("confidence should take the max, got %v", target.Confidence)
	}
}

func TestMergePrinciplesRecapsExamples(t *testing.T) {
	target := &Principle{ID: uuid.New()}
	source := &Principle{ID: uuid.New()}
	for i := 0; i < 4; i++ {
		target.Examples = append(target.Examples, Example{TraceID: uuid.New(), SimilarityScore: 0.9})
		source.Examples = append(source.Examples, Example{TraceID: uuid.New(), SimilarityScore: 0.8})
	}

	MergePrinciples(target, source, DefaultMaxExamples)

	if len(target.Examples) != DefaultMaxExamples {
		t.Fatalf("expected %d examples after re-cap, got %d", DefaultMaxExamples, len(target.Examples))
	}
	for _, ex := range target.Examples[:4] {
		if ex.SimilarityScore != 0.9 {
			t.Errorf("high-similarity examples should survive the cap, got %+v", ex)
		}
	}
}
