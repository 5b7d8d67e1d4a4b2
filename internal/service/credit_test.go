package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

type mockUsageStoreForCredit struct {
	recorded map[uuid.UUID]float64
	missing  map[uuid.UUID]bool
}

func newMockUsageStoreForCredit() *mockUsageStoreForCredit {
	return &mockUsageStoreForCredit{
		recorded: make(map[uuid.UUID]float64),
		missing:  make(map[uuid.UUID]bool),
	}
}

func (m *mockUsageStoreForCredit) RecordUsage(ctx context.Context, principleID uuid.UUID, traceID *uuid.UUID, credit float64) (*domain.UsageEvent, error) {
	if m.missing[principleID] {
		return nil, nil
	}
	clamped := domain.ClampCredit(credit)
	m.recorded[principleID] = clamped
	return &domain.UsageEvent{
		ID:            uuid.New(),
		PrincipleID:   principleID,
		TraceID:       traceID,
		Credit:        clamped,
		WasSuccessful: clamped >= 0.5,
		CreatedAt:     time.Now(),
	}, nil
}

func (m *mockUsageStoreForCredit) HistoryByPrinciple(ctx context.Context, principleID uuid.UUID) ([]domain.UsageEvent, error) {
	return nil, nil
}

func boolPtr(b bool) *bool { return &b }

func TestComputeSignalsNoToolCalls(t *testing.T) {
	sig := ComputeSignals(Episode{})

	if sig.ToolSuccessRate != 1 {
		t.Errorf("tool success rate without calls = %f, want 1", sig.ToolSuccessRate)
	}
	if sig.AvgSentiment != 0.5 {
		t.Errorf("sentiment without feedback = %f, want 0.5", sig.AvgSentiment)
	}
	if sig.MadeEdits || sig.ErrorCount != 0 {
		t.Errorf("unexpected signals: %+v", sig)
	}
}

func TestComputeSignalsExplicitFlags(t *testing.T) {
	// Explicit flags on any call switch the whole episode to explicit
	// mode: unflagged calls count as successes even with scary output.
	sig := ComputeSignals(Episode{ToolCalls: []domain.ToolCall{
		{Tool: "bash", Success: boolPtr(false)},
		{Tool: "bash", Success: boolPtr(true)},
		{Tool: "bash", Output: "error: something failed"},
	}})

	if sig.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", sig.ErrorCount)
	}
	if math.Abs(sig.ToolSuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("success rate = %f, want 2/3", sig.ToolSuccessRate)
	}
}

func TestComputeSignalsOutputHeuristics(t *testing.T) {
	tests := []struct {
		name       string
		call       domain.ToolCall
		wantFailed bool
	}{
		{"recorded error field", domain.ToolCall{Tool: "bash", Error: "exit 1"}, true},
		{"failure keyword in output", domain.ToolCall{Tool: "bash", Output: "FATAL: connection refused"}, true},
		{"exculpated failure talk", domain.ToolCall{Tool: "bash", Output: "fixed the error, tests pass"}, false},
		{"no errors phrasing", domain.ToolCall{Tool: "bash", Output: "completed with no errors"}, false},
		{"clean output", domain.ToolCall{Tool: "bash", Output: "done"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := ComputeSignals(Episode{ToolCalls: []domain.ToolCall{tt.call}})
			failed := sig.ErrorCount == 1
			if failed != tt.wantFailed {
				t.Errorf("failed = %v, want %v", failed, tt.wantFailed)
			}
		})
	}
}

func TestComputeSignalsEdits(t *testing.T) {
	sig := ComputeSignals(Episode{ToolCalls: []domain.ToolCall{
		{Tool: "edit", Input: `{"file_path": "main.go"}`},
		{Tool: "edit", Input: `{"file_path": "main.go"}`},
		{Tool: "write_file", Input: `{"path": "store.go"}`},
		{Tool: "bash", Input: "go version"},
	}})

	if !sig.MadeEdits || sig.EditCount != 3 {
		t.Errorf("edit count = %d, want 3", sig.EditCount)
	}
	if sig.FilesTouched != 2 {
		t.Errorf("files touched = %d, want 2", sig.FilesTouched)
	}
}

func TestComputeSignalsSentiment(t *testing.T) {
	sig := ComputeSignals(Episode{Feedback: []domain.FeedbackEvent{
		{Sentiment: 0.9},
		{Sentiment: 0.3},
	}})
	if math.Abs(sig.AvgSentiment-0.6) > 1e-9 {
		t.Errorf("avg sentiment = %f, want 0.6", sig.AvgSentiment)
	}
}

func TestOutcomeScoreStatus(t *testing.T) {
	tests := []struct {
		name   string
		sig    domain.OutcomeSignals
		status domain.OutcomeStatus
	}{
		{
			name: "clean run is a success",
			sig: domain.OutcomeSignals{
				ToolSuccessRate: 1, AvgSentiment: 0.5, MadeEdits: false,
			},
			status: domain.OutcomeSuccess,
		},
		{
			name: "error-ridden run degrades to partial",
			sig: domain.OutcomeSignals{
				ToolSuccessRate: 1, AvgSentiment: 0.5, ErrorCount: 5,
			},
			status: domain.OutcomePartial,
		},
		{
			name: "failed tools and unhappy user is a failure",
			sig: domain.OutcomeSignals{
				ToolSuccessRate: 0, AvgSentiment: 0.1, ErrorCount: 5,
			},
			status: domain.OutcomeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, status := OutcomeScore(tt.sig)
			if status != tt.status {
				t.Errorf("status = %s (score %f), want %s", status, score, tt.status)
			}
			if score < 0 || score > 1 {
				t.Errorf("score %f outside [0, 1]", score)
			}
		})
	}
}

func TestOutcomeScoreWeights(t *testing.T) {
	// 0.25*1 + 0.35*0.5 + 0.2*0.3 + 0.2*1 = 0.685
	score, _ := OutcomeScore(domain.OutcomeSignals{ToolSuccessRate: 1, AvgSentiment: 0.5})
	if math.Abs(score-0.685) > 1e-9 {
		t.Errorf("score = %f, want 0.685", score)
	}
}

func TestPrincipleCreditBlendsLocalRate(t *testing.T) {
	// Outcome 0.7 blended with a perfect local success rate:
	// 0.7*0.6 + 1.0*0.4 = 0.82.
	attributed := []domain.ToolCall{
		{Tool: "bash", Output: "ok"},
		{Tool: "bash", Output: "ok"},
	}
	credit := PrincipleCredit(0.7, domain.OutcomeSignals{}, attributed, false)
	if math.Abs(credit-0.82) > 1e-9 {
		t.Errorf("credit = %f, want 0.82", credit)
	}
}

func TestPrincipleCreditSentimentBlend(t *testing.T) {
	sig := domain.OutcomeSignals{
		Feedback:     []domain.FeedbackEvent{{Sentiment: 1}},
		AvgSentiment: 1,
	}
	// No attributed calls: 0.5*0.7 + 1.0*0.3 = 0.65.
	credit := PrincipleCredit(0.5, sig, nil, false)
	if math.Abs(credit-0.65) > 1e-9 {
		t.Errorf("credit = %f, want 0.65", credit)
	}
}

func TestPrincipleCreditClamped(t *testing.T) {
	credit := PrincipleCredit(1.5, domain.OutcomeSignals{}, nil, false)
	if credit != 1 {
		t.Errorf("credit = %f, want clamped to 1", credit)
	}
}

func TestAssignRecordsUsagePerPrinciple(t *testing.T) {
	usage := newMockUsageStoreForCredit()
	svc := NewCreditService(usage, zap.NewNop())
	p1, p2 := uuid.New(), uuid.New()

	report, err := svc.Assign(context.Background(), Episode{
		ToolCalls: []domain.ToolCall{
			{Tool: "bash", Output: "ok"},
			{Tool: "edit", Input: `{"file_path": "a.go"}`, Output: "ok"},
		},
		InjectedPrinciples: []uuid.UUID{p1, p2},
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if len(report.Credits) != 2 {
		t.Fatalf("expected 2 credits, got %d", len(report.Credits))
	}
	if len(report.Events) != 2 {
		t.Fatalf("expected 2 usage events, got %d", len(report.Events))
	}
	for id, credit := range report.Credits {
		if credit < 0 || credit > 1 {
			t.Errorf("credit for %s = %f outside [0, 1]", id, credit)
		}
		if usage.recorded[id] != credit {
			t.Errorf("store recorded %f for %s, report says %f", usage.recorded[id], id, credit)
		}
	}
}

func TestAssignSkipsAbsorbedPrinciple(t *testing.T) {
	usage := newMockUsageStoreForCredit()
	gone := uuid.New()
	alive := uuid.New()
	usage.missing[gone] = true
	svc := NewCreditService(usage, zap.NewNop())

	report, err := svc.Assign(context.Background(), Episode{
		InjectedPrinciples: []uuid.UUID{gone, alive},
	})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if len(report.Events) != 1 {
		t.Errorf("expected 1 event, got %d", len(report.Events))
	}
	if len(report.Credits) != 2 {
		t.Errorf("credits should still cover both principles, got %d", len(report.Credits))
	}
}

func TestAttributedCallsScoping(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	calls := []domain.ToolCall{
		{Tool: "bash", ActivePrinciples: []uuid.UUID{p1}},
		{Tool: "bash", ActivePrinciples: []uuid.UUID{p1, p2}},
		{Tool: "bash", ActivePrinciples: []uuid.UUID{p2}},
	}

	ep := Episode{ToolCalls: calls}
	if got := attributedCalls(ep, p1); len(got) != 2 {
		t.Errorf("p1 attribution = %d calls, want 2", len(got))
	}
	if got := attributedCalls(ep, p2); len(got) != 2 {
		t.Errorf("p2 attribution = %d calls, want 2", len(got))
	}

	// No active sets anywhere: every call counts for every principle.
	coarse := Episode{ToolCalls: []domain.ToolCall{{Tool: "bash"}, {Tool: "bash"}}}
	if got := attributedCalls(coarse, p1); len(got) != 2 {
		t.Errorf("coarse attribution = %d calls, want 2", len(got))
	}
}
