package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

type mockPrincipleStoreForDedupe struct {
	principles []domain.Principle
	similar    func(embedding []float32, exclude uuid.UUID) []domain.PrincipleWithScore
	missing    []domain.Principle

	created    []domain.Principle
	updated    []domain.Principle
	absorbed   [][2]uuid.UUID
	embeddings map[uuid.UUID][]float32
}

func newMockPrincipleStoreForDedupe() *mockPrincipleStoreForDedupe {
	return &mockPrincipleStoreForDedupe{
		embeddings: make(map[uuid.UUID][]float32),
	}
}

func (m *mockPrincipleStoreForDedupe) Create(ctx context.Context, p *domain.Principle) error {
	p.ID = uuid.New()
	p.Version = 1
	m.created = append(m.created, *p)
	m.principles = append(m.principles, *p)
	return nil
}

func (m *mockPrincipleStoreForDedupe) GetByID(ctx context.Context, id uuid.UUID) (*domain.Principle, error) {
	for i := range m.principles {
		if m.principles[i].ID == id {
			p := m.principles[i]
			return &p, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockPrincipleStoreForDedupe) Update(ctx context.Context, p *domain.Principle) error {
	m.updated = append(m.updated, *p)
	for i := range m.principles {
		if m.principles[i].ID == p.ID {
			m.principles[i] = *p
		}
	}
	return nil
}

func (m *mockPrincipleStoreForDedupe) Delete(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (m *mockPrincipleStoreForDedupe) List(ctx context.Context) ([]domain.Principle, error) {
	out := make([]domain.Principle, len(m.principles))
	copy(out, m.principles)
	return out, nil
}

func (m *mockPrincipleStoreForDedupe) Search(ctx context.Context, q domain.PrincipleQuery) ([]domain.Principle, error) {
	return m.List(ctx)
}

func (m *mockPrincipleStoreForDedupe) FindSimilar(ctx context.Context, embedding []float32, threshold float64, exclude uuid.UUID) ([]domain.PrincipleWithScore, error) {
	if m.similar == nil {
		return nil, nil
	}
	return m.similar(embedding, exclude), nil
}

func (m *mockPrincipleStoreForDedupe) ListMissingEmbeddings(ctx context.Context) ([]domain.Principle, error) {
	return m.missing, nil
}

func (m *mockPrincipleStoreForDedupe) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	m.embeddings[id] = embedding
	return nil
}

func (m *mockPrincipleStoreForDedupe) Absorb(ctx context.Context, targetID, sourceID uuid.UUID, maxExamples int) error {
	m.absorbed = append(m.absorbed, [2]uuid.UUID{targetID, sourceID})
	kept := m.principles[:0]
	for _, p := range m.principles {
		if p.ID != sourceID {
			kept = append(kept, p)
		}
	}
	m.principles = kept
	return nil
}

func (m *mockPrincipleStoreForDedupe) PruneLowScore(ctx context.Context, threshold, minUsage float64) ([]uuid.UUID, error) {
	return nil, nil
}

type mockEmbedderForDedupe struct {
	vector []float32
	err    error
	calls  int
}

func (m *mockEmbedderForDedupe) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.vector, nil
}

func TestIngestCreatesNewPrinciple(t *testing.T) {
	store := newMockPrincipleStoreForDedupe()
	embedder := &mockEmbedderForDedupe{vector: []float32{1, 0}}
	svc := NewDedupeService(store, embedder, zap.NewNop())
	traceID := uuid.New()

	result, err := svc.Ingest(context.Background(), domain.CandidatePrinciple{
		Text:       "Pin dependency versions before debugging build failures",
		Tags:       []string{"builds"},
		Confidence: 0.8,
		Rationale:  "version skew caused the failure",
		TraceID:    traceID,
		Source:     "distilled",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if result.Merged {
		t.Error("expected a create, not a merge")
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 created principle, got %d", len(store.created))
	}
	created := store.created[0]
	if len(created.Examples) != 1 || created.Examples[0].TraceID != traceID {
		t.Errorf("expected one origin example, got %+v", created.Examples)
	}
	if created.Examples[0].SimilarityScore != 1.0 {
		t.Errorf("origin example similarity = %f, want 1.0", created.Examples[0].SimilarityScore)
	}
	if created.Confidence == nil || *created.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", created.Confidence)
	}
}

func TestIngestMergesIntoBestMatch(t *testing.T) {
	store := newMockPrincipleStoreForDedupe()
	existing := domain.Principle{
		ID:           uuid.New(),
		Text:         "Read failing tests before changing code",
		Tags:         []string{"debugging"},
		UseCount:     6,
		SuccessCount: 4,
		Version:      1,
		Embedding:    []float32{1, 0},
	}
	store.principles = append(store.principles, existing)
	store.similar = func(embedding []float32, exclude uuid.UUID) []domain.PrincipleWithScore {
		return []domain.PrincipleWithScore{{Principle: existing, Score: 0.92}}
	}
	embedder := &mockEmbedderForDedupe{vector: []float32{1, 0}}
	svc := NewDedupeService(store, embedder, zap.NewNop())

	result, err := svc.Ingest(context.Background(), domain.CandidatePrinciple{
		Text:    "Always read the failing test first",
		Tags:    []string{"testing"},
		TraceID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if !result.Merged {
		t.Fatal("expected a merge")
	}
	if len(store.created) != 0 {
		t.Errorf("merge must not create, got %d creates", len(store.created))
	}
	if len(store.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(store.updated))
	}
	merged := store.updated[0]
	if merged.UseCount != 6 || merged.SuccessCount != 4 {
		t.Errorf("counters must be untouched by observation merge: %f/%f", merged.UseCount, merged.SuccessCount)
	}
	if len(merged.Tags) != 2 {
		t.Errorf("tags should union, got %v", merged.Tags)
	}
	if merged.Version != 2 {
		t.Errorf("version = %d, want 2", merged.Version)
	}
	if len(merged.Examples) != 1 || merged.Examples[0].SimilarityScore != 0.92 {
		t.Errorf("expected example at match similarity, got %+v", merged.Examples)
	}
}

func TestIngestSurvivesEmbedderFailure(t *testing.T) {
	store := newMockPrincipleStoreForDedupe()
	embedder := &mockEmbedderForDedupe{err: errors.New("provider down")}
	svc := NewDedupeService(store, embedder, zap.NewNop())

	result, err := svc.Ingest(context.Background(), domain.CandidatePrinciple{
		Text: "Check the provider status page first",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.Merged {
		t.Error("expected a create")
	}
	if len(store.created) != 1 || store.created[0].Embedding != nil {
		t.Errorf("expected principle created without embedding, got %+v", store.created)
	}
}

func TestRunBackfillsMissingEmbeddings(t *testing.T) {
	store := newMockPrincipleStoreForDedupe()
	bare := domain.Principle{ID: uuid.New(), Text: "no vector yet"}
	store.missing = []domain.Principle{bare}
	embedder := &mockEmbedderForDedupe{vector: []float32{0, 1}}
	svc := NewDedupeService(store, embedder, zap.NewNop())

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Backfilled != 1 {
		t.Errorf("backfilled = %d, want 1", result.Backfilled)
	}
	if _, ok := store.embeddings[bare.ID]; !ok {
		t.Error("expected embedding stored for the bare principle")
	}
}

func TestRunMergesGreedyFirstSeen(t *testing.T) {
	store := newMockPrincipleStoreForDedupe()
	a := domain.Principle{ID: uuid.New(), Text: "a", Embedding: []float32{1, 0}}
	b := domain.Principle{ID: uuid.New(), Text: "b", Embedding: []float32{0.99, 0.01}}
	c := domain.Principle{ID: uuid.New(), Text: "c", Embedding: []float32{0, 1}}
	store.principles = []domain.Principle{a, b, c}
	store.similar = func(embedding []float32, exclude uuid.UUID) []domain.PrincipleWithScore {
		// a and b are near-duplicates of each other; c matches nothing.
		switch exclude {
		case a.ID:
			return []domain.PrincipleWithScore{{Principle: b, Score: 0.99}}
		case b.ID:
			return []domain.PrincipleWithScore{{Principle: a, Score: 0.99}}
		}
		return nil
	}
	svc := NewDedupeService(store, &mockEmbedderForDedupe{vector: []float32{1, 0}}, zap.NewNop())

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Scanned != 3 {
		t.Errorf("scanned = %d, want 3", result.Scanned)
	}
	if result.Merged != 1 {
		t.Errorf("merged = %d, want 1", result.Merged)
	}
	if len(store.absorbed) != 1 || store.absorbed[0] != [2]uuid.UUID{a.ID, b.ID} {
		t.Errorf("expected a to absorb b exactly once, got %v", store.absorbed)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	store := newMockPrincipleStoreForDedupe()
	store.principles = []domain.Principle{
		{ID: uuid.New(), Embedding: []float32{1, 0}},
	}
	svc := NewDedupeService(store, &mockEmbedderForDedupe{vector: []float32{1, 0}}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
