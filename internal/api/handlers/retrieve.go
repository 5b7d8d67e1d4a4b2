package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/praxislabs/tenet/internal/domain"
	"github.com/praxislabs/tenet/internal/service"
)

type RetrieveHandler struct {
	retrieval *service.RetrievalService
	dedupe    *service.DedupeService
	distill   *service.DistillService
}

func NewRetrieveHandler(retrieval *service.RetrievalService, dedupe *service.DedupeService, distill *service.DistillService) *RetrieveHandler {
	return &RetrieveHandler{retrieval: retrieval, dedupe: dedupe, distill: distill}
}

func (h *RetrieveHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var q domain.RetrievalQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.retrieval.SearchPrinciples(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}
	if results == nil {
		results = []service.RankedPrinciple{}
	}
	writeJSON(w, http.StatusOK, results)
}

// RunDedupe triggers an offline deduplication pass synchronously.
func (h *RetrieveHandler) RunDedupe(w http.ResponseWriter, r *http.Request) {
	result, err := h.dedupe.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "dedupe pass failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunDistill triggers a distillation batch synchronously, regardless of
// the trigger threshold.
func (h *RetrieveHandler) RunDistill(w http.ResponseWriter, r *http.Request) {
	report, err := h.distill.RunBatch(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "distillation batch failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
