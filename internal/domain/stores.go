package domain

import (
	"context"

	"github.com/google/uuid"
)

type PrincipleStore interface {
	Create(ctx context.Context, p *Principle) error
	GetByID(ctx context.Context, id uuid.UUID) (*Principle, error)
	// Update rewrites every mutable field, preserves created_at and bumps
	// updated_at and version.
	Update(ctx context.Context, p *Principle) error
	// Delete removes the principle; usage events cascade.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]Principle, error)
	Search(ctx context.Context, q PrincipleQuery) ([]Principle, error)
	// FindSimilar returns principles whose embedding cosine similarity to
	// the given vector is at least threshold, best first. exclude skips a
	// single id (the candidate itself during dedupe).
	FindSimilar(ctx context.Context, embedding []float32, threshold float64, exclude uuid.UUID) ([]PrincipleWithScore, error)
	ListMissingEmbeddings(ctx context.Context) ([]Principle, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	// Absorb merges source into target and deletes source, all in one
	// transaction. Both rows are re-read under lock inside the
	// transaction so concurrent usage recording is never lost.
	Absorb(ctx context.Context, targetID, sourceID uuid.UUID, maxExamples int) error
	// PruneLowScore deletes principles with score below threshold and
	// use_count at or above minUsage, returning the removed ids.
	PruneLowScore(ctx context.Context, threshold, minUsage float64) ([]uuid.UUID, error)
}

type TraceStore interface {
	Create(ctx context.Context, t *Trace) error
	GetByID(ctx context.Context, id uuid.UUID) (*Trace, error)
	List(ctx context.Context) ([]Trace, error)
	Search(ctx context.Context, q TraceQuery) ([]Trace, error)
	CountUndistilled(ctx context.Context) (int, error)
	ListUndistilled(ctx context.Context, limit int) ([]Trace, error)
	MarkDistilled(ctx context.Context, id uuid.UUID) error
}

type UsageStore interface {
	// RecordUsage inserts a usage event and increments the principle's
	// counters in a single transaction. Credit is clamped to [0, 1]
	// before accumulation. If the principle no longer exists (absorbed by
	// a concurrent merge) it returns (nil, nil).
	RecordUsage(ctx context.Context, principleID uuid.UUID, traceID *uuid.UUID, credit float64) (*UsageEvent, error)
	HistoryByPrinciple(ctx context.Context, principleID uuid.UUID) ([]UsageEvent, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ExtractedPrinciple is one candidate statement in an analyzer response.
type ExtractedPrinciple struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// TraceExtraction is the analyzer's full response for one trace.
type TraceExtraction struct {
	Classification string               `json:"classification"`
	Principles     []ExtractedPrinciple `json:"principles"`
	Triples        []Triple             `json:"triples,omitempty"`
	Tags           []string             `json:"tags,omitempty"`
}

// TraceAnalyzer extracts candidate principles from a single trace. Its
// output is parsed defensively: a malformed response fails that trace
// only, never the surrounding batch.
type TraceAnalyzer interface {
	Analyze(ctx context.Context, trace Trace) (*TraceExtraction, error)
}
