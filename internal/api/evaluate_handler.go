package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/fleetcost/rightsize/internal/evaluation"
)

// evaluateHandler serves stateless trace evaluation for traces that
// were not produced by this server.
type evaluateHandler struct {
	evaluator Evaluator
	observer  EvaluationObserver
}

func newEvaluateHandler(evaluator Evaluator, observer EvaluationObserver) *evaluateHandler {
	return &evaluateHandler{evaluator: evaluator, observer: observer}
}

type evaluateRequest struct {
	Query     string   `json:"query"`
	Response  string   `json:"response"`
	ToolsUsed []string `json:"tools_used"`
}

// Evaluate handles POST /api/v1/evaluate. The caller supplies the
// trace fields directly; nothing is persisted.
func (h *evaluateHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query is required")
		return
	}

	results, err := h.evaluator.Evaluate(r.Context(), req.Query, req.Response, req.ToolsUsed, nil)
	if err != nil {
		if errors.Is(err, evaluation.ErrJudgeUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "evaluation_unavailable", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "evaluation failed")
		return
	}

	if h.observer != nil {
		for metric, res := range results {
			h.observer.ObserveEvaluation(metric, res.Score, res.Passed)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}
