package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

const defaultRetrievalLimit = 10

// RetrievalService is the single query surface over the experience
// base: it embeds the query, pulls candidates through the store's
// pre-filters, ranks by signal fusion, optionally diversifies with MMR
// and reserves exploration slots for under-tested principles.
type RetrievalService struct {
	principles domain.PrincipleStore
	traces     domain.TraceStore
	usage      domain.UsageStore
	scoring    *ScoringService
	ranker     *Ranker
	embedder   domain.EmbeddingClient
	logger     *zap.Logger
}

func NewRetrievalService(
	principles domain.PrincipleStore,
	traces domain.TraceStore,
	usage domain.UsageStore,
	scoring *ScoringService,
	ranker *Ranker,
	embedder domain.EmbeddingClient,
	logger *zap.Logger,
) *RetrievalService {
	return &RetrievalService{
		principles: principles,
		traces:     traces,
		usage:      usage,
		scoring:    scoring,
		ranker:     ranker,
		embedder:   embedder,
		logger:     logger,
	}
}

// SearchPrinciples answers a retrieval query. An embedding-provider
// failure degrades to tag/triple/score ranking instead of failing the
// query. The store's min-score pre-filter is approximate, so it is
// re-verified here against the exact Bayesian score.
func (s *RetrievalService) SearchPrinciples(ctx context.Context, q domain.RetrievalQuery) ([]RankedPrinciple, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}

	candidates, err := s.principles.Search(ctx, domain.PrincipleQuery{MinScore: q.MinScore})
	if err != nil {
		return nil, err
	}
	if q.MinScore > 0 {
		exact := candidates[:0]
		for _, p := range candidates {
			if p.Score() >= q.MinScore {
				exact = append(exact, p)
			}
		}
		candidates = exact
	}

	var queryEmbedding []float32
	if q.Text != "" && s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			s.logger.Warn("query embedding failed, ranking without semantic signal",
				zap.String("session_id", q.SessionID), zap.Error(err))
		} else {
			queryEmbedding = emb
		}
	}

	ranked := s.ranker.Rank(RankQuery{
		Embedding: queryEmbedding,
		Tags:      q.Tags,
		Triples:   q.Triples,
	}, candidates)

	if q.Diversify {
		ranked = s.ranker.Diversify(ranked, limit)
	} else if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if q.ExplorationSlots > 0 {
		ranked, err = s.reserveExplorationSlots(ctx, ranked, limit, q.ExplorationSlots)
		if err != nil {
			return nil, err
		}
	}
	return ranked, nil
}

// reserveExplorationSlots replaces the tail of the result with the
// least-used principles not already present, so under-tested principles
// keep collecting evidence.
func (s *RetrievalService) reserveExplorationSlots(ctx context.Context, ranked []RankedPrinciple, limit, slots int) ([]RankedPrinciple, error) {
	if slots > limit {
		slots = limit
	}

	chosen := make(map[uuid.UUID]bool, len(ranked))
	for _, rp := range ranked {
		chosen[rp.ID] = true
	}

	// Ask for enough candidates to survive overlap with the ranked set.
	explore, err := s.scoring.ExplorationCandidates(ctx, limit+slots)
	if err != nil {
		return nil, err
	}

	var fillers []RankedPrinciple
	for _, p := range explore {
		if len(fillers) == slots {
			break
		}
		if chosen[p.ID] {
			continue
		}
		fillers = append(fillers, RankedPrinciple{
			Principle: p,
			Signals:   SignalBreakdown{BayesScore: p.Score()},
		})
	}
	if len(fillers) == 0 {
		return ranked, nil
	}

	keep := limit - len(fillers)
	if keep > len(ranked) {
		keep = len(ranked)
	}
	return append(ranked[:keep], fillers...), nil
}

func (s *RetrievalService) SearchTraces(ctx context.Context, q domain.TraceQuery) ([]domain.Trace, error) {
	return s.traces.Search(ctx, q)
}

func (s *RetrievalService) RecordUsage(ctx context.Context, principleID uuid.UUID, traceID *uuid.UUID, credit float64) (*domain.UsageEvent, error) {
	return s.usage.RecordUsage(ctx, principleID, traceID, credit)
}

func (s *RetrievalService) PrincipleUsageHistory(ctx context.Context, principleID uuid.UUID) ([]domain.UsageEvent, error) {
	return s.usage.HistoryByPrinciple(ctx, principleID)
}

func (s *RetrievalService) PrincipleScores(ctx context.Context) ([]RankedScore, error) {
	return s.scoring.PrincipleScores(ctx)
}

func (s *RetrievalService) Prune(ctx context.Context, threshold, minUsage float64) ([]uuid.UUID, error) {
	return s.scoring.Prune(ctx, threshold, minUsage)
}
