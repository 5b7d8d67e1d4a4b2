package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/praxislabs/tenet/internal/domain"
	"github.com/praxislabs/tenet/internal/store"
)

type PrincipleHandler struct {
	principles domain.PrincipleStore
	usage      domain.UsageStore
}

func NewPrincipleHandler(principles domain.PrincipleStore, usage domain.UsageStore) *PrincipleHandler {
	return &PrincipleHandler{principles: principles, usage: usage}
}

type createPrincipleRequest struct {
	Text       string          `json:"text"`
	Tags       []string        `json:"tags,omitempty"`
	Triples    []domain.Triple `json:"triples,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Source     string          `json:"source,omitempty"`
}

func (h *PrincipleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPrincipleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	p := &domain.Principle{
		Text:       req.Text,
		Tags:       req.Tags,
		Triples:    req.Triples,
		Confidence: req.Confidence,
		Source:     req.Source,
	}
	if p.Source == "" {
		p.Source = "manual"
	}

	if err := h.principles.Create(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create principle")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PrincipleHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid principle id")
		return
	}

	p, err := h.principles.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "principle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get principle")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updatePrincipleRequest struct {
	Text       *string          `json:"text,omitempty"`
	Tags       *[]string        `json:"tags,omitempty"`
	Triples    *[]domain.Triple `json:"triples,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	Source     *string          `json:"source,omitempty"`
}

func (h *PrincipleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid principle id")
		return
	}

	var req updatePrincipleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.principles.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "principle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get principle")
		return
	}

	if req.Text != nil {
		p.Text = *req.Text
	}
	if req.Tags != nil {
		p.Tags = *req.Tags
	}
	if req.Triples != nil {
		p.Triples = *req.Triples
	}
	if req.Confidence != nil {
		p.Confidence = req.Confidence
	}
	if req.Source != nil {
		p.Source = *req.Source
	}

	if err := h.principles.Update(r.Context(), p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "principle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update principle")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PrincipleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid principle id")
		return
	}

	if err := h.principles.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "principle not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete principle")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PrincipleHandler) List(w http.ResponseWriter, r *http.Request) {
	principles, err := h.principles.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list principles")
		return
	}
	writeJSON(w, http.StatusOK, principles)
}

func (h *PrincipleHandler) Search(w http.ResponseWriter, r *http.Request) {
	var q domain.PrincipleQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principles, err := h.principles.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search principles")
		return
	}
	writeJSON(w, http.StatusOK, principles)
}

func (h *PrincipleHandler) UsageHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid principle id")
		return
	}

	events, err := h.usage.HistoryByPrinciple(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get usage history")
		return
	}
	writeJSON(w, http.StatusOK, events)
}
