package service

import (
	"sort"

	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

// Default fusion weights. They are renormalized per candidate over the
// signals actually applicable, so dropping the embedding signal rescales
// the rest proportionally.
const (
	defaultEmbeddingWeight = 0.5
	defaultTagWeight       = 0.2
	defaultTripleWeight    = 0.15
	defaultScoreWeight     = 0.15

	// DefaultMMRLambda trades relevance against redundancy during
	// diversity re-ranking.
	DefaultMMRLambda = 0.7
)

// RankQuery is the ranker's view of a retrieval query. The embedding is
// resolved by the caller; a nil embedding drops the semantic signal.
type RankQuery struct {
	Embedding []float32
	Tags      []string
	Triples   []domain.Triple
}

// SignalBreakdown records the individual fusion inputs for one
// candidate.
type SignalBreakdown struct {
	Embedding   *float64 `json:"embedding,omitempty"`
	TagsJaccard float64  `json:"tags_jaccard"`
	TripleMatch float64  `json:"triple_match"`
	BayesScore  float64  `json:"bayes_score"`
}

// RankedPrinciple pairs a candidate with its fused relevance.
type RankedPrinciple struct {
	domain.Principle
	Relevance float64         `json:"relevance"`
	Signals   SignalBreakdown `json:"signals"`
}

type RankWeights struct {
	Embedding float64
	Tags      float64
	Triples   float64
	Score     float64
}

func DefaultRankWeights() RankWeights {
	return RankWeights{
		Embedding: defaultEmbeddingWeight,
		Tags:      defaultTagWeight,
		Triples:   defaultTripleWeight,
		Score:     defaultScoreWeight,
	}
}

type Ranker struct {
	logger  *zap.Logger
	Weights RankWeights
	Lambda  float64
}

func NewRanker(logger *zap.Logger) *Ranker {
	return &Ranker{
		logger:  logger,
		Weights: DefaultRankWeights(),
		Lambda:  DefaultMMRLambda,
	}
}

// TagJaccard is |intersection| / |union| of two tag sets; 0 when both
// are empty.
func TagJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	inter := 0
	union := len(set)
	seen := make(map[string]struct{}, len(b))
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := set[t]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// TripleMatchFraction is the fraction of query triples present verbatim
// in the candidate.
func TripleMatchFraction(query []domain.Triple, p *domain.Principle) float64 {
	if len(query) == 0 {
		return 1
	}
	matched := 0
	for _, t := range query {
		if p.HasTriple(t) {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

// Rank fuses up to four signals per candidate and sorts by relevance
// descending. Without a query embedding the ranking is a pure function
// of (query, corpus): identical inputs give identical orderings.
func (r *Ranker) Rank(q RankQuery, candidates []domain.Principle) []RankedPrinciple {
	ranked := make([]RankedPrinciple, 0, len(candidates))
	for i := range candidates {
		p := candidates[i]
		rp := RankedPrinciple{Principle: p}

		// Tag and triple signals default to full relevance when the
		// query does not constrain them.
		rp.Signals.TagsJaccard = 1
		if len(q.Tags) > 0 {
			rp.Signals.TagsJaccard = TagJaccard(q.Tags, p.Tags)
		}
		rp.Signals.TripleMatch = TripleMatchFraction(q.Triples, &p)
		rp.Signals.BayesScore = p.Score()

		weightSum := r.Weights.Tags + r.Weights.Triples + r.Weights.Score
		relevance := r.Weights.Tags*rp.Signals.TagsJaccard +
			r.Weights.Triples*rp.Signals.TripleMatch +
			r.Weights.Score*rp.Signals.BayesScore

		if len(q.Embedding) > 0 && len(p.Embedding) > 0 {
			sim, err := CosineSimilarity(q.Embedding, p.Embedding)
			if err != nil {
				r.logger.Debug("dropping embedding signal for candidate",
					zap.String("principle_id", p.ID.String()), zap.Error(err))
			} else {
				rp.Signals.Embedding = &sim
				weightSum += r.Weights.Embedding
				relevance += r.Weights.Embedding * sim
			}
		}

		if weightSum > 0 {
			rp.Relevance = relevance / weightSum
		}
		ranked = append(ranked, rp)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})
	return ranked
}

// interSimilarity measures redundancy between two principles: the
// average of tag Jaccard and embedding cosine, or tag Jaccard alone
// when either embedding is missing.
func interSimilarity(a, b *domain.Principle) float64 {
	tagSim := TagJaccard(a.Tags, b.Tags)
	if len(a.Embedding) == 0 || len(b.Embedding) == 0 {
		return tagSim
	}
	cos, err := CosineSimilarity(a.Embedding, b.Embedding)
	if err != nil {
		return tagSim
	}
	return (tagSim + cos) / 2
}

// Diversify applies Maximal Marginal Relevance: the top candidate is
// taken first, then each round picks the remaining candidate maximizing
// lambda*relevance - (1-lambda)*maxSimilarityToSelected.
func (r *Ranker) Diversify(ranked []RankedPrinciple, limit int) []RankedPrinciple {
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	if len(ranked) <= 1 {
		return ranked[:limit]
	}

	lambda := r.Lambda
	remaining := make([]RankedPrinciple, len(ranked))
	copy(remaining, ranked)

	selected := make([]RankedPrinciple, 0, limit)
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(lambda, &remaining[0], selected)
		for i := 1; i < len(remaining); i++ {
			if score := mmrScore(lambda, &remaining[i], selected); score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func mmrScore(lambda float64, cand *RankedPrinciple, selected []RankedPrinciple) float64 {
	maxSim := 0.0
	for i := range selected {
		if sim := interSimilarity(&cand.Principle, &selected[i].Principle); sim > maxSim {
			maxSim = sim
		}
	}
	return lambda*cand.Relevance - (1-lambda)*maxSim
}
