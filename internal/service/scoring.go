package service

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

// Score is the Laplace-smoothed success rate: (success+1)/(use+2).
// A principle that has never been used scores exactly 0.5.
func Score(useCount, successCount float64) float64 {
	return (successCount + 1) / (useCount + 2)
}

// RankedScore is one entry of the full score table.
type RankedScore struct {
	PrincipleID  uuid.UUID `json:"principle_id"`
	Text         string    `json:"text"`
	Score        float64   `json:"score"`
	UseCount     float64   `json:"use_count"`
	SuccessCount float64   `json:"success_count"`
	Rank         int       `json:"rank"`
}

// ScoreDistribution summarizes the score population.
type ScoreDistribution struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
	Max    float64 `json:"max"`
}

type ScoringService struct {
	principles domain.PrincipleStore
	logger     *zap.Logger
}

func NewScoringService(principles domain.PrincipleStore, logger *zap.Logger) *ScoringService {
	return &ScoringService{principles: principles, logger: logger}
}

// PrincipleScores computes the score for every principle and ranks
// descending with a 1-based rank. Ties keep insertion order (the store
// lists in created_at, id order and the sort is stable), so repeated
// calls without mutation return identical rankings.
func (s *ScoringService) PrincipleScores(ctx context.Context) ([]RankedScore, error) {
	principles, err := s.principles.List(ctx)
	if err != nil {
		return nil, err
	}

	scores := make([]RankedScore, 0, len(principles))
	for _, p := range principles {
		scores = append(scores, RankedScore{
			PrincipleID:  p.ID,
			Text:         p.Text,
			Score:        p.Score(),
			UseCount:     p.UseCount,
			SuccessCount: p.SuccessCount,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
	return scores, nil
}

// Distribution computes percentile statistics over all scores by
// sorting ascending and indexing at floor(percentile/100 * n).
func (s *ScoringService) Distribution(ctx context.Context) (*ScoreDistribution, error) {
	principles, err := s.principles.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(principles) == 0 {
		return &ScoreDistribution{}, nil
	}

	sorted := make([]float64, 0, len(principles))
	for _, p := range principles {
		sorted = append(sorted, p.Score())
	}
	sort.Float64s(sorted)

	return &ScoreDistribution{
		Count:  len(sorted),
		Min:    sorted[0],
		P25:    percentile(sorted, 25),
		Median: percentile(sorted, 50),
		P75:    percentile(sorted, 75),
		P90:    percentile(sorted, 90),
		P99:    percentile(sorted, 99),
		Max:    sorted[len(sorted)-1],
	}, nil
}

func percentile(sorted []float64, pct float64) float64 {
	idx := int(math.Floor(pct / 100 * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ExplorationCandidates returns the k least-used principles, preferring
// the most recently updated among equals. This is a deterministic
// exploration policy that keeps data flowing to under-tested
// principles; it is not a randomized bandit.
func (s *ScoringService) ExplorationCandidates(ctx context.Context, k int) ([]domain.Principle, error) {
	if k <= 0 {
		return nil, nil
	}
	principles, err := s.principles.List(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(principles, func(i, j int) bool {
		if principles[i].UseCount != principles[j].UseCount {
			return principles[i].UseCount < principles[j].UseCount
		}
		return principles[i].UpdatedAt.After(principles[j].UpdatedAt)
	})

	if k > len(principles) {
		k = len(principles)
	}
	return principles[:k], nil
}

// Prune removes principles scoring below threshold whose use_count has
// reached the minimum floor, so a principle is never dropped before it
// had a fair chance to accumulate evidence.
func (s *ScoringService) Prune(ctx context.Context, threshold, minUsage float64) ([]uuid.UUID, error) {
	removed, err := s.principles.PruneLowScore(ctx, threshold, minUsage)
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		s.logger.Info("pruned low-score principles",
			zap.Int("removed", len(removed)),
			zap.Float64("threshold", threshold),
			zap.Float64("min_usage", minUsage))
	}
	return removed, nil
}
