package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/AgriBot-NLU/internal/application/nlu"
	"github.com/turtacn/AgriBot-NLU/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/AgriBot-NLU/internal/intelligence/agri_extractor"
	"github.com/turtacn/AgriBot-NLU/pkg/errors"
)

// NLUHandler serves entity extraction and intent classification.
type NLUHandler struct {
	svc    nlu.Service
	logger logging.Logger
}

// NewNLUHandler creates a new NLUHandler.
func NewNLUHandler(svc nlu.Service, logger logging.Logger) *NLUHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &NLUHandler{svc: svc, logger: logger.Named("nlu_handler")}
}

// RegisterRoutes mounts the NLU endpoints on r.
func (h *NLUHandler) RegisterRoutes(r chi.Router) {
	r.Post("/ner/extract", h.Extract)
	r.Post("/ner/extract/batch", h.ExtractBatch)
	r.Get("/ner/labels", h.Labels)
	r.Get("/ner/rules", h.Rules)
	r.Post("/intent/classify", h.ClassifyIntent)
	r.Post("/analyze", h.Analyze)
}

// TextRequest is the body of single-text endpoints.
type TextRequest struct {
	Text string `json:"text"`
	TopK int    `json:"top_k,omitempty"`
}

// BatchRequest is the body of POST /ner/extract/batch.
type BatchRequest struct {
	Texts []string `json:"texts"`
}

// BatchResponse holds one result per input text, in input order.
type BatchResponse struct {
	Results          []*agri_extractor.ExtractionResult `json:"results"`
	Count            int                                `json:"count"`
	ProcessingTimeMs float64                            `json:"processing_time_ms"`
}

// RulesResponse lists the rule table.
type RulesResponse struct {
	Rules []agri_extractor.RuleSpec `json:"rules"`
}

// Extract handles POST /api/v1/ner/extract.
func (h *NLUHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	res, err := h.svc.ExtractEntities(r.Context(), req.Text)
	if err != nil {
		h.logFailure(r, "extract", err)
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExtractBatch handles POST /api/v1/ner/extract/batch.
func (h *NLUHandler) ExtractBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	start := time.Now()
	results, err := h.svc.ExtractBatch(r.Context(), req.Texts)
	if err != nil {
		h.logFailure(r, "extract_batch", err)
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BatchResponse{
		Results:          results,
		Count:            len(results),
		ProcessingTimeMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}

// ClassifyIntent handles POST /api/v1/intent/classify.
func (h *NLUHandler) ClassifyIntent(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	res, err := h.svc.ClassifyIntent(r.Context(), req.Text, req.TopK)
	if err != nil {
		h.logFailure(r, "classify_intent", err)
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Analyze handles POST /api/v1/analyze.
func (h *NLUHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	res, err := h.svc.Analyze(r.Context(), req.Text, req.TopK)
	if err != nil {
		h.logFailure(r, "analyze", err)
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Labels handles GET /api/v1/ner/labels.
func (h *NLUHandler) Labels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Labels())
}

// Rules handles GET /api/v1/ner/rules.
func (h *NLUHandler) Rules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RulesResponse{Rules: h.svc.Rules()})
}

// logFailure logs server-side failures; client errors are already covered by
// the request log.
func (h *NLUHandler) logFailure(r *http.Request, op string, err error) {
	if errors.IsClientError(errors.GetCode(err)) {
		return
	}
	h.logger.Error("NLU operation failed",
		logging.String("op", op),
		logging.String("request_id", nlu.RequestMetaFrom(r.Context()).RequestID),
		logging.Err(err))
}

//Personal.AI order the ending
