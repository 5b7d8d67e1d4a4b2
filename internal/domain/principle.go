package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxExamples caps how many trace examples a principle keeps.
// When a merge pushes the list over the cap, the lowest-similarity
// examples are evicted first.
const DefaultMaxExamples = 5

// Triple is a single semantic fact attached to a principle or trace.
type Triple struct {
	Subject  string `json:"subject"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// Equal reports exact structural equality of two triples.
func (t Triple) Equal(other Triple) bool {
	return t.Subject == other.Subject &&
		t.Relation == other.Relation &&
		t.Object == other.Object
}

// Example links a principle back to a trace it was distilled from or
// reinforced by.
type Example struct {
	TraceID         uuid.UUID `json:"trace_id"`
	RelevanceNote   string    `json:"relevance_note,omitempty"`
	SimilarityScore float64   `json:"similarity_score,omitempty"`
}

// Principle is a distilled strategic statement with usage statistics.
// use_count and success_count are real-valued: RecordUsage adds 1 to
// use_count and the fractional credit to success_count, so the smoothed
// score (success+1)/(use+2) stays in [0, 1] by construction.
type Principle struct {
	ID           uuid.UUID `json:"id"`
	Text         string    `json:"text"`
	Tags         []string  `json:"tags,omitempty"`
	Triples      []Triple  `json:"triples,omitempty"`
	Examples     []Example `json:"examples,omitempty"`
	UseCount     float64   `json:"use_count"`
	SuccessCount float64   `json:"success_count"`
	Embedding    []float32 `json:"-"`
	Confidence   *float64  `json:"confidence,omitempty"`
	Source       string    `json:"source,omitempty"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Score returns the Laplace-smoothed success rate. A never-used
// principle scores exactly 0.5.
func (p *Principle) Score() float64 {
	return (p.SuccessCount + 1) / (p.UseCount + 2)
}

// HasTag reports whether the principle carries the given tag.
func (p *Principle) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasTriple reports whether the principle carries a structurally equal triple.
func (p *Principle) HasTriple(t Triple) bool {
	for _, own := range p.Triples {
		if own.Equal(t) {
			return true
		}
	}
	return false
}

// CandidatePrinciple is a principle extracted from a single trace by the
// analyzer, before deduplication decides whether it becomes a new row or
// an observation merged into an existing one.
type CandidatePrinciple struct {
	Text       string
	Tags       []string
	Triples    []Triple
	Confidence float64
	Rationale  string
	TraceID    uuid.UUID
	Source     string
}

// PrincipleWithScore pairs a principle with a similarity or relevance score.
type PrincipleWithScore struct {
	Principle
	Score float64 `json:"score"`
}
