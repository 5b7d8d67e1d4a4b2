package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/praxislabs/tenet/internal/domain"
	"github.com/praxislabs/tenet/internal/service"
)

// LearningHandler covers the feedback loop: usage recording, episode
// credit assignment, scores and pruning.
type LearningHandler struct {
	retrieval *service.RetrievalService
	credit    *service.CreditService
	scoring   *service.ScoringService
}

func NewLearningHandler(retrieval *service.RetrievalService, credit *service.CreditService, scoring *service.ScoringService) *LearningHandler {
	return &LearningHandler{retrieval: retrieval, credit: credit, scoring: scoring}
}

type recordUsageRequest struct {
	PrincipleID uuid.UUID  `json:"principle_id"`
	TraceID     *uuid.UUID `json:"trace_id,omitempty"`
	Credit      float64    `json:"credit"`
}

func (h *LearningHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req recordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PrincipleID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "principle_id is required")
		return
	}

	event, err := h.retrieval.RecordUsage(r.Context(), req.PrincipleID, req.TraceID, req.Credit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record usage")
		return
	}
	if event == nil {
		// Principle was absorbed by a merge in the meantime; the call
		// no-ops rather than failing.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

type assignCreditRequest struct {
	TraceID            *uuid.UUID             `json:"trace_id,omitempty"`
	ToolCalls          []domain.ToolCall      `json:"tool_calls,omitempty"`
	Feedback           []domain.FeedbackEvent `json:"feedback,omitempty"`
	InjectedPrinciples []uuid.UUID            `json:"injected_principles"`
	PromptCount        int                    `json:"prompt_count,omitempty"`
}

func (h *LearningHandler) AssignCredit(w http.ResponseWriter, r *http.Request) {
	var req assignCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.credit.Assign(r.Context(), service.Episode{
		TraceID:            req.TraceID,
		ToolCalls:          req.ToolCalls,
		Feedback:           req.Feedback,
		InjectedPrinciples: req.InjectedPrinciples,
		PromptCount:        req.PromptCount,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to assign credit")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *LearningHandler) Scores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.retrieval.PrincipleScores(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute scores")
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *LearningHandler) ScoreDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.scoring.Distribution(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute distribution")
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

type pruneRequest struct {
	Threshold float64 `json:"threshold"`
	MinUsage  float64 `json:"min_usage"`
}

type pruneResponse struct {
	RemovedIDs []uuid.UUID `json:"removed_ids"`
}

func (h *LearningHandler) Prune(w http.ResponseWriter, r *http.Request) {
	var req pruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Threshold <= 0 || req.Threshold >= 1 {
		writeError(w, http.StatusBadRequest, "threshold must be in (0, 1)")
		return
	}

	removed, err := h.retrieval.Prune(r.Context(), req.Threshold, req.MinUsage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to prune principles")
		return
	}
	if removed == nil {
		removed = []uuid.UUID{}
	}
	writeJSON(w, http.StatusOK, pruneResponse{RemovedIDs: removed})
}
