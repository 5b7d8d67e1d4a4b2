package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

const (
	// DefaultSimilarityThreshold is the minimum cosine similarity for two
	// principles to be considered duplicates.
	DefaultSimilarityThreshold = 0.85

	defaultDedupeInterval = 6 * time.Hour
)

// DedupeResult summarizes one offline pass.
type DedupeResult struct {
	Scanned    int `json:"scanned"`
	Backfilled int `json:"backfilled"`
	Merged     int `json:"merged"`
}

// IngestResult reports what happened to one candidate principle.
type IngestResult struct {
	Principle *domain.Principle `json:"principle"`
	Merged    bool              `json:"merged"`
}

// DedupeService keeps the principle corpus free of near-duplicates.
// The online path folds each newly analyzed candidate into its best
// existing match; the offline pass greedily clusters the whole corpus.
type DedupeService struct {
	principles domain.PrincipleStore
	embedder   domain.EmbeddingClient
	logger     *zap.Logger

	Threshold   float64
	MaxExamples int

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDedupeService(principles domain.PrincipleStore, embedder domain.EmbeddingClient, logger *zap.Logger) *DedupeService {
	return &DedupeService{
		principles:  principles,
		embedder:    embedder,
		logger:      logger,
		Threshold:   DefaultSimilarityThreshold,
		MaxExamples: domain.DefaultMaxExamples,
		interval:    defaultDedupeInterval,
		stopCh:      make(chan struct{}),
	}
}

func (s *DedupeService) SetInterval(d time.Duration) {
	s.interval = d
}

// Ingest runs the online path for one candidate extracted from a single
// trace: merge it into the best match above the threshold if one
// exists, otherwise create a new principle with one example.
func (s *DedupeService) Ingest(ctx context.Context, cand domain.CandidatePrinciple) (*IngestResult, error) {
	var embedding []float32
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, cand.Text)
		if err != nil {
			// Storage still works without an embedding; the offline pass
			// backfills it later.
			s.logger.Warn("embedding generation failed for candidate", zap.Error(err))
		} else {
			embedding = emb
		}
	}

	if len(embedding) > 0 {
		matches, err := s.principles.FindSimilar(ctx, embedding, s.Threshold, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			best := matches[0]
			target, err := s.principles.GetByID(ctx, best.ID)
			if err != nil {
				return nil, err
			}
			domain.MergeObservation(target, cand, best.Score, s.MaxExamples)
			if err := s.principles.Update(ctx, target); err != nil {
				return nil, err
			}
			s.logger.Debug("merged candidate into existing principle",
				zap.String("principle_id", target.ID.String()),
				zap.Float64("similarity", best.Score))
			return &IngestResult{Principle: target, Merged: true}, nil
		}
	}

	p := &domain.Principle{
		Text:      cand.Text,
		Tags:      cand.Tags,
		Triples:   cand.Triples,
		Embedding: embedding,
		Source:    cand.Source,
	}
	if cand.Confidence > 0 {
		c := cand.Confidence
		p.Confidence = &c
	}
	if cand.TraceID != uuid.Nil {
		p.Examples = []domain.Example{{
			TraceID:       cand.TraceID,
			RelevanceNote: cand.Rationale,
			// A fresh principle is its own origin.
			SimilarityScore: 1.0,
		}}
	}
	if err := s.principles.Create(ctx, p); err != nil {
		return nil, err
	}
	return &IngestResult{Principle: p, Merged: false}, nil
}

// Run executes the offline pass: backfill missing embeddings, then walk
// the corpus in stable order and let each not-yet-absorbed principle
// absorb everything still above the threshold. Greedy first-seen
// clustering is order dependent and not globally optimal; the guarantee
// is only that nothing is merged twice and no counters or examples are
// lost. The context is checked between principles so a cancelled pass
// never leaves a merge half applied.
func (s *DedupeService) Run(ctx context.Context) (*DedupeResult, error) {
	result := &DedupeResult{}

	missing, err := s.principles.ListMissingEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range missing {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if s.embedder == nil {
			break
		}
		emb, err := s.embedder.Embed(ctx, p.Text)
		if err != nil {
			s.logger.Warn("embedding backfill failed",
				zap.String("principle_id", p.ID.String()), zap.Error(err))
			continue
		}
		if err := s.principles.SetEmbedding(ctx, p.ID, emb); err != nil {
			s.logger.Warn("failed to store backfilled embedding",
				zap.String("principle_id", p.ID.String()), zap.Error(err))
			continue
		}
		result.Backfilled++
	}

	principles, err := s.principles.List(ctx)
	if err != nil {
		return nil, err
	}
	result.Scanned = len(principles)

	absorbed := make(map[uuid.UUID]bool)
	for _, p := range principles {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if absorbed[p.ID] || len(p.Embedding) == 0 {
			continue
		}

		matches, err := s.principles.FindSimilar(ctx, p.Embedding, s.Threshold, p.ID)
		if err != nil {
			return result, err
		}
		for _, m := range matches {
			if absorbed[m.ID] {
				continue
			}
			if err := s.principles.Absorb(ctx, p.ID, m.ID, s.MaxExamples); err != nil {
				s.logger.Warn("merge failed",
					zap.String("target", p.ID.String()),
					zap.String("source", m.ID.String()),
					zap.Error(err))
				continue
			}
			absorbed[m.ID] = true
			result.Merged++
		}
	}

	s.logger.Info("dedupe pass complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("backfilled", result.Backfilled),
		zap.Int("merged", result.Merged))
	return result, nil
}

// Start begins the periodic background pass.
func (s *DedupeService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := s.Run(context.Background()); err != nil {
					s.logger.Error("dedupe pass failed", zap.Error(err))
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *DedupeService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
