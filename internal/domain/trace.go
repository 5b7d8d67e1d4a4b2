package domain

import (
	"time"

	"github.com/google/uuid"
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
	OutcomePartial OutcomeStatus = "partial"
)

func ValidOutcomeStatus(s string) bool {
	switch OutcomeStatus(s) {
	case OutcomeSuccess, OutcomeFailure, OutcomePartial:
		return true
	}
	return false
}

// ToolCall is one entry in a trace's tool-call log.
type ToolCall struct {
	Tool      string    `json:"tool"`
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Duration  *int64    `json:"duration_ms,omitempty"`
	Error     string    `json:"error,omitempty"`
	// Success, when present, is the explicit per-call success flag and
	// takes precedence over output-pattern heuristics.
	Success *bool `json:"success,omitempty"`
	// ActivePrinciples lists the principles active for this call. When
	// empty on every call of an episode, all injected principles are
	// treated as active for all calls.
	ActivePrinciples []uuid.UUID `json:"active_principles,omitempty"`
}

// Outcome is the recorded result of one episode.
type Outcome struct {
	Status      OutcomeStatus `json:"status"`
	Score       float64       `json:"score"`
	Explanation string        `json:"explanation,omitempty"`
}

// Trace is an immutable record of one problem-solving episode.
type Trace struct {
	ID                   uuid.UUID         `json:"id"`
	TaskSummary          string            `json:"task_summary"`
	ProblemDescription   string            `json:"problem_description,omitempty"`
	ToolCalls            []ToolCall        `json:"tool_calls,omitempty"`
	IntermediateThoughts []string          `json:"intermediate_thoughts,omitempty"`
	FinalAnswer          string            `json:"final_answer,omitempty"`
	Outcome              Outcome           `json:"outcome"`
	DurationMs           int64             `json:"duration_ms"`
	ModelUsed            string            `json:"model_used,omitempty"`
	SessionID            string            `json:"session_id,omitempty"`
	AgentID              string            `json:"agent_id,omitempty"`
	Tags                 []string          `json:"tags,omitempty"`
	Triples              []Triple          `json:"triples,omitempty"`
	Context              map[string]string `json:"context,omitempty"`
	DistilledAt          *time.Time        `json:"distilled_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

// FeedbackEvent is one piece of user feedback during an episode, with a
// sentiment in [0, 1].
type FeedbackEvent struct {
	Message   string    `json:"message,omitempty"`
	Sentiment float64   `json:"sentiment"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// OutcomeSignals are the raw signals computed from a completed episode.
// They are ephemeral: consumed immediately by credit assignment, never
// persisted as their own entity.
type OutcomeSignals struct {
	ToolSuccessRate float64
	ErrorCount      int
	MadeEdits       bool
	EditCount       int
	FilesTouched    int
	Feedback        []FeedbackEvent
	AvgSentiment    float64
	PromptCount     int
}
