package service

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxislabs/tenet/internal/domain"
)

// Outcome score weights and thresholds.
const (
	toolSuccessWeight = 0.25
	sentimentWeight   = 0.35
	editWeight        = 0.20
	errorWeight       = 0.20

	editScoreWithEdits    = 0.8
	editScoreWithoutEdits = 0.3
	errorPenaltyPerError  = 0.15

	successScoreThreshold = 0.6
	failureScoreThreshold = 0.35

	// Credit blending: outcome vs. per-principle local rate, then
	// outcome vs. user sentiment.
	localRateBlend = 0.4
	sentimentBlend = 0.3

	neutralSentiment = 0.5
)

// failurePattern flags tool output that looks like an error report.
// exculpatoryPattern suppresses the flag when the output is talking
// about an error rather than raising one (fixing it, confirming its
// absence); plain keyword matching badly over-counts failures
// otherwise.
var (
	failurePattern     = regexp.MustCompile(`(?i)\b(error|errors|failed|failure|exception|traceback|fatal|panic|denied|refused|cannot|unable)\b`)
	exculpatoryPattern = regexp.MustCompile(`(?i)\b(fixed|fixes|fixing|resolved|resolves|resolving|handled|handling|recovered|no errors?|without errors?|error-free|zero errors|successfully)\b`)
)

// editTools is the set of tool names treated as file edits.
var editTools = map[string]bool{
	"edit":          true,
	"edit_file":     true,
	"write":         true,
	"write_file":    true,
	"create_file":   true,
	"apply_patch":   true,
	"str_replace":   true,
	"notebook_edit": true,
}

// Episode is everything credit assignment needs about one completed
// problem-solving episode.
type Episode struct {
	TraceID            *uuid.UUID
	ToolCalls          []domain.ToolCall
	Feedback           []domain.FeedbackEvent
	InjectedPrinciples []uuid.UUID
	PromptCount        int
}

// callFailed decides whether a single call counts as failed. Explicit
// flags win; otherwise a recorded error or a failure-looking output
// (not exculpated) counts.
func callFailed(call domain.ToolCall, explicitFlags bool) bool {
	if call.Success != nil {
		return !*call.Success
	}
	if explicitFlags {
		// Explicit mode: unflagged calls count as successes.
		return false
	}
	if call.Error != "" {
		return true
	}
	if failurePattern.MatchString(call.Output) && !exculpatoryPattern.MatchString(call.Output) {
		return true
	}
	return false
}

func hasExplicitFlags(calls []domain.ToolCall) bool {
	for _, c := range calls {
		if c.Success != nil {
			return true
		}
	}
	return false
}

// editFilePath pulls a file path out of a tool-call input. Inputs are
// commonly JSON objects; fall back to the raw input string.
func editFilePath(input string) string {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(input), &parsed); err == nil {
		for _, key := range []string{"file_path", "path", "file", "filename"} {
			if v, ok := parsed[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return input
}

// ComputeSignals derives the raw outcome signals from one episode. An
// episode without tool calls reports a clean success rate of 1; an
// episode without feedback reports neutral sentiment.
func ComputeSignals(ep Episode) domain.OutcomeSignals {
	sig := domain.OutcomeSignals{
		Feedback:     ep.Feedback,
		AvgSentiment: neutralSentiment,
		PromptCount:  ep.PromptCount,
	}

	explicit := hasExplicitFlags(ep.ToolCalls)
	files := make(map[string]struct{})
	succeeded := 0
	for _, call := range ep.ToolCalls {
		if callFailed(call, explicit) {
			sig.ErrorCount++
		} else {
			succeeded++
		}
		if editTools[call.Tool] {
			sig.EditCount++
			files[editFilePath(call.Input)] = struct{}{}
		}
	}
	sig.MadeEdits = sig.EditCount > 0
	sig.FilesTouched = len(files)

	if len(ep.ToolCalls) > 0 {
		sig.ToolSuccessRate = float64(succeeded) / float64(len(ep.ToolCalls))
	} else {
		sig.ToolSuccessRate = 1
	}

	if len(ep.Feedback) > 0 {
		var sum float64
		for _, f := range ep.Feedback {
			sum += f.Sentiment
		}
		sig.AvgSentiment = sum / float64(len(ep.Feedback))
	}
	return sig
}

// OutcomeScore fuses the signals into a scalar in [0, 1] and maps it to
// a status: >= 0.6 success, <= 0.35 failure, else partial.
func OutcomeScore(sig domain.OutcomeSignals) (float64, domain.OutcomeStatus) {
	editScore := editScoreWithoutEdits
	if sig.MadeEdits {
		editScore = editScoreWithEdits
	}

	errorScore := 1 - errorPenaltyPerError*float64(sig.ErrorCount)
	if errorScore < 0 {
		errorScore = 0
	}

	score := toolSuccessWeight*sig.ToolSuccessRate +
		sentimentWeight*sig.AvgSentiment +
		editWeight*editScore +
		errorWeight*errorScore

	switch {
	case score >= successScoreThreshold:
		return score, domain.OutcomeSuccess
	case score <= failureScoreThreshold:
		return score, domain.OutcomeFailure
	default:
		return score, domain.OutcomePartial
	}
}

// attributedCalls returns the calls a principle was active for. When no
// call in the episode carries an active-set, every injected principle
// is treated as active for every call: a deliberately coarse default,
// kept until finer-grained attribution is recorded upstream.
func attributedCalls(ep Episode, principleID uuid.UUID) []domain.ToolCall {
	anyActiveSets := false
	for _, call := range ep.ToolCalls {
		if len(call.ActivePrinciples) > 0 {
			anyActiveSets = true
			break
		}
	}
	if !anyActiveSets {
		return ep.ToolCalls
	}

	var attributed []domain.ToolCall
	for _, call := range ep.ToolCalls {
		for _, id := range call.ActivePrinciples {
			if id == principleID {
				attributed = append(attributed, call)
				break
			}
		}
	}
	return attributed
}

// PrincipleCredit computes the fractional credit for one principle.
// Principles are overlapping influences, not exclusive causes: several
// can each earn high credit for the same success.
func PrincipleCredit(outcomeScore float64, sig domain.OutcomeSignals, attributed []domain.ToolCall, explicitFlags bool) float64 {
	credit := outcomeScore

	if len(attributed) > 0 {
		succeeded := 0
		for _, call := range attributed {
			if !callFailed(call, explicitFlags) {
				succeeded++
			}
		}
		localRate := float64(succeeded) / float64(len(attributed))
		credit = credit*(1-localRateBlend) + localRate*localRateBlend
	}

	if len(sig.Feedback) > 0 {
		credit = credit*(1-sentimentBlend) + sig.AvgSentiment*sentimentBlend
	}

	return domain.ClampCredit(credit)
}

// CreditReport is the full result of assigning one episode.
type CreditReport struct {
	Signals      domain.OutcomeSignals `json:"signals"`
	OutcomeScore float64               `json:"outcome_score"`
	Status       domain.OutcomeStatus  `json:"status"`
	Credits      map[uuid.UUID]float64 `json:"credits"`
	Events       []domain.UsageEvent   `json:"events"`
}

type CreditService struct {
	usage  domain.UsageStore
	logger *zap.Logger
}

func NewCreditService(usage domain.UsageStore, logger *zap.Logger) *CreditService {
	return &CreditService{usage: usage, logger: logger}
}

// Assign computes signals, the outcome score, and per-principle credit
// for an episode, then records one usage event per injected principle.
// A principle deleted mid-flight (concurrent merge) is skipped quietly.
func (s *CreditService) Assign(ctx context.Context, ep Episode) (*CreditReport, error) {
	sig := ComputeSignals(ep)
	score, status := OutcomeScore(sig)
	explicit := hasExplicitFlags(ep.ToolCalls)

	report := &CreditReport{
		Signals:      sig,
		OutcomeScore: score,
		Status:       status,
		Credits:      make(map[uuid.UUID]float64, len(ep.InjectedPrinciples)),
	}

	for _, id := range ep.InjectedPrinciples {
		credit := PrincipleCredit(score, sig, attributedCalls(ep, id), explicit)
		report.Credits[id] = credit

		event, err := s.usage.RecordUsage(ctx, id, ep.TraceID, credit)
		if err != nil {
			return nil, err
		}
		if event == nil {
			s.logger.Debug("skipped usage for absorbed principle",
				zap.String("principle_id", id.String()))
			continue
		}
		report.Events = append(report.Events, *event)
	}

	s.logger.Debug("episode credit assigned",
		zap.Float64("outcome_score", score),
		zap.String("status", string(status)),
		zap.Int("principles", len(ep.InjectedPrinciples)))
	return report, nil
}
