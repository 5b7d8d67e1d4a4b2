package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/praxislabs/tenet/internal/domain"
	"github.com/praxislabs/tenet/internal/service"
	"github.com/praxislabs/tenet/internal/store"
)

type TraceHandler struct {
	traces  domain.TraceStore
	distill *service.DistillService
}

func NewTraceHandler(traces domain.TraceStore, distill *service.DistillService) *TraceHandler {
	return &TraceHandler{traces: traces, distill: distill}
}

func (h *TraceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var t domain.Trace
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if t.TaskSummary == "" {
		writeError(w, http.StatusBadRequest, "task_summary is required")
		return
	}
	if t.Outcome.Status != "" && !domain.ValidOutcomeStatus(string(t.Outcome.Status)) {
		writeError(w, http.StatusBadRequest, "invalid outcome status")
		return
	}

	if err := h.traces.Create(r.Context(), &t); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create trace")
		return
	}

	// Nudge the distillation worker; it decides whether the batch
	// threshold is met.
	if h.distill != nil {
		h.distill.Notify()
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TraceHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid trace id")
		return
	}

	t, err := h.traces.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trace not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get trace")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TraceHandler) Search(w http.ResponseWriter, r *http.Request) {
	var q domain.TraceQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	traces, err := h.traces.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search traces")
		return
	}
	writeJSON(w, http.StatusOK, traces)
}
