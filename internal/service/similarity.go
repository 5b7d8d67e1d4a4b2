package service

import (
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

// ErrDimensionMismatch is a validation error: the two vectors cannot be
// compared.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity returns the normalized dot product of two vectors,
// in [-1, 1]. Vectors of different lengths are a validation error; a
// zero-magnitude vector yields similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

type SimilarityService struct {
	logger *zap.Logger
}

func NewSimilarityService(logger *zap.Logger) *SimilarityService {
	return &SimilarityService{logger: logger}
}

// FindSimilar linearly scans candidates and keeps those whose embedding
// similarity to target is at least threshold, best first. Candidates
// without an embedding or with a mismatched dimension are skipped, not
// errors: the scan must survive a partially embedded corpus.
func (s *SimilarityService) FindSimilar(target []float32, candidates []domain.Principle, threshold float64) []domain.PrincipleWithScore {
	var matches []domain.PrincipleWithScore
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		sim, err := CosineSimilarity(target, c.Embedding)
		if err != nil {
			s.logger.Debug("skipping candidate with mismatched embedding",
				zap.String("principle_id", c.ID.String()),
				zap.Int("dim", len(c.Embedding)))
			continue
		}
		if sim >= threshold {
			matches = append(matches, domain.PrincipleWithScore{Principle: c, Score: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}
