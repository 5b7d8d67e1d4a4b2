package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/praxislabs/tenet/internal/domain"
)

// MockAnalyzer is a deterministic analyzer for tests and local runs.
// It derives one principle per trace from the task summary.
type MockAnalyzer struct{}

func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{}
}

func (m *MockAnalyzer) Analyze(_ context.Context, trace domain.Trace) (*domain.TraceExtraction, error) {
	classification := "other"
	summary := strings.ToLower(trace.TaskSummary)
	switch {
	case strings.Contains(summary, "bug") || strings.Contains(summary, "debug") || strings.Contains(summary, "fix"):
		classification = "debugging"
	case strings.Contains(summary, "implement") || strings.Contains(summary, "add"):
		classification = "implementation"
	case strings.Contains(summary, "refactor"):
		classification = "refactoring"
	}

	confidence := 0.6
	if trace.Outcome.Status == domain.OutcomeSuccess {
		confidence = 0.8
	}

	return &domain.TraceExtraction{
		Classification: classification,
		Principles: []domain.ExtractedPrinciple{
			{
				Text:       fmt.Sprintf("When handling %q tasks, %s", classification, trace.TaskSummary),
				Confidence: confidence,
				Rationale:  "derived from task summary (mock)",
			},
		},
		Tags: []string{classification},
	}, nil
}
