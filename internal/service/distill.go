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
	// DefaultDistillThreshold is how many undistilled traces accumulate
	// before a batch run is worthwhile.
	DefaultDistillThreshold = 10
	// DefaultDistillBatchSize bounds one batch.
	DefaultDistillBatchSize = 50

	defaultDistillInterval = time.Hour
)

// ShouldDistill is the trigger predicate over store state: run a batch
// once enough traces have piled up. Pure so it can be tested apart from
// any scheduling.
func ShouldDistill(undistilled, threshold int) bool {
	return threshold > 0 && undistilled >= threshold
}

// TraceFailure records an analyzer failure for a single trace. One bad
// trace never aborts the batch.
type TraceFailure struct {
	TraceID uuid.UUID `json:"trace_id"`
	Reason  string    `json:"reason"`
}

// DistillReport summarizes one batch run.
type DistillReport struct {
	Processed int            `json:"processed"`
	Extracted int            `json:"extracted"`
	Merged    int            `json:"merged"`
	Created   int            `json:"created"`
	Failures  []TraceFailure `json:"failures,omitempty"`
}

// DistillService turns raw traces into candidate principles via the
// analyzer and feeds them through dedupe ingestion. A channel-backed
// queue replaces fire-and-forget process spawning: callers Notify after
// writing traces, and the worker decides whether the threshold is met.
type DistillService struct {
	traces   domain.TraceStore
	dedupe   *DedupeService
	analyzer domain.TraceAnalyzer
	logger   *zap.Logger

	Threshold int
	BatchSize int

	interval time.Duration
	queue    chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewDistillService(traces domain.TraceStore, dedupe *DedupeService, analyzer domain.TraceAnalyzer, logger *zap.Logger) *DistillService {
	return &DistillService{
		traces:    traces,
		dedupe:    dedupe,
		analyzer:  analyzer,
		logger:    logger,
		Threshold: DefaultDistillThreshold,
		BatchSize: DefaultDistillBatchSize,
		interval:  defaultDistillInterval,
		queue:     make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

func (s *DistillService) SetInterval(d time.Duration) {
	s.interval = d
}

// Notify nudges the worker that new traces exist. Non-blocking; a
// pending nudge coalesces with the next.
func (s *DistillService) Notify() {
	select {
	case s.queue <- struct{}{}:
	default:
	}
}

// RunBatch analyzes up to BatchSize undistilled traces. Analyzer
// failures are per-trace: recorded in the report with the trace id and
// the trace is left undistilled for a later retry.
func (s *DistillService) RunBatch(ctx context.Context) (*DistillReport, error) {
	report := &DistillReport{}

	traces, err := s.traces.ListUndistilled(ctx, s.BatchSize)
	if err != nil {
		return nil, err
	}

	for _, trace := range traces {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		extraction, err := s.analyzer.Analyze(ctx, trace)
		if err != nil {
			s.logger.Error("trace analysis failed",
				zap.String("trace_id", trace.ID.String()), zap.Error(err))
			report.Failures = append(report.Failures, TraceFailure{
				TraceID: trace.ID,
				Reason:  err.Error(),
			})
			continue
		}

		for _, ext := range extraction.Principles {
			if ext.Text == "" {
				continue
			}
			result, err := s.dedupe.Ingest(ctx, domain.CandidatePrinciple{
				Text:       ext.Text,
				Tags:       domain.UnionTags(extraction.Tags, trace.Tags),
				Triples:    domain.UnionTriples(extraction.Triples, trace.Triples),
				Confidence: ext.Confidence,
				Rationale:  ext.Rationale,
				TraceID:    trace.ID,
				Source:     "distilled",
			})
			if err != nil {
				report.Failures = append(report.Failures, TraceFailure{
					TraceID: trace.ID,
					Reason:  err.Error(),
				})
				continue
			}
			report.Extracted++
			if result.Merged {
				report.Merged++
			} else {
				report.Created++
			}
		}

		if err := s.traces.MarkDistilled(ctx, trace.ID); err != nil {
			s.logger.Warn("failed to mark trace distilled",
				zap.String("trace_id", trace.ID.String()), zap.Error(err))
		}
		report.Processed++
	}

	s.logger.Info("distillation batch complete",
		zap.Int("processed", report.Processed),
		zap.Int("extracted", report.Extracted),
		zap.Int("merged", report.Merged),
		zap.Int("created", report.Created),
		zap.Int("failures", len(report.Failures)))
	return report, nil
}

// Start runs the worker: each nudge or tick re-evaluates the trigger
// predicate and runs a batch when it fires.
func (s *DistillService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.queue:
				s.maybeRun()
			case <-ticker.C:
				s.maybeRun()
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *DistillService) maybeRun() {
	ctx := context.Background()
	count, err := s.traces.CountUndistilled(ctx)
	if err != nil {
		s.logger.Error("failed to count undistilled traces", zap.Error(err))
		return
	}
	if !ShouldDistill(count, s.Threshold) {
		return
	}
	if _, err := s.RunBatch(ctx); err != nil {
		s.logger.Error("distillation batch failed", zap.Error(err))
	}
}

func (s *DistillService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
