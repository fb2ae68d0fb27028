package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/fleetcost/rightsize/internal/dataset"
	"github.com/fleetcost/rightsize/internal/evaluation"
	"github.com/fleetcost/rightsize/internal/history"
	"github.com/fleetcost/rightsize/internal/pipeline"
	"github.com/fleetcost/rightsize/internal/trace"
)

// Runner executes one pipeline run. Implemented by
// pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, query string, records []dataset.VMRecord) (*pipeline.Result, error)
}

// RunRecorder accepts completed runs for archival. Implemented by
// history.Archiver.
type RunRecorder interface {
	Record(run *pipeline.Result)
}

// RunStore reads and writes the run archive. Implemented by
// history.Store.
type RunStore interface {
	GetRun(ctx context.Context, id string) (*history.RunRecord, error)
	ListRuns(ctx context.Context, q history.ListQuery) ([]*history.RunRecord, string, error)
	ListRecommendations(ctx context.Context, runID string) ([]*history.RecommendationRecord, error)
	ListToolCalls(ctx context.Context, runID string) ([]*history.ToolCallRecord, error)
	SaveEvaluation(ctx context.Context, runID string, results map[string]evaluation.Result) error
	GetEvaluation(ctx context.Context, runID string) (map[string]history.EvaluationRecord, error)
}

// Evaluator scores a run. Implemented by evaluation.Evaluator.
type Evaluator interface {
	Evaluate(ctx context.Context, query, response string, toolsUsed []string, tr *trace.Trace) (map[string]evaluation.Result, error)
}

// EvaluationObserver is an optional sink for evaluation metrics.
type EvaluationObserver interface {
	ObserveEvaluation(metric string, score float64, passed bool)
}

// runCache keeps recent in-flight results in memory so traces are
// servable before the archiver has flushed them. Bounded FIFO.
type runCache struct {
	mu    sync.Mutex
	order []string
	runs  map[string]*pipeline.Result
	size  int
}

func newRunCache(size int) *runCache {
	return &runCache{
		runs: make(map[string]*pipeline.Result, size),
		size: size,
	}
}

func (c *runCache) put(run *pipeline.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.runs[run.RunID]; !ok {
		c.order = append(c.order, run.RunID)
	}
	c.runs[run.RunID] = run
	for len(c.order) > c.size {
		delete(c.runs, c.order[0])
		c.order = c.order[1:]
	}
}

func (c *runCache) get(id string) *pipeline.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[id]
}

// runsHandler groups run-related HTTP handlers.
type runsHandler struct {
	runner    Runner
	recorder  RunRecorder
	store     RunStore
	evaluator Evaluator
	observer  EvaluationObserver
	recent    *runCache
}

func newRunsHandler(runner Runner, recorder RunRecorder, store RunStore, evaluator Evaluator, observer EvaluationObserver) *runsHandler {
	return &runsHandler{
		runner:    runner,
		recorder:  recorder,
		store:     store,
		evaluator: evaluator,
		observer:  observer,
		recent:    newRunCache(128),
	}
}

type createRunRequest struct {
	Query   string             `json:"query"`
	Records []dataset.VMRecord `json:"records,omitempty"`
	CSV     string             `json:"csv,omitempty"`
}

type createRunResponse struct {
	RunID           string                    `json:"run_id"`
	State           pipeline.State            `json:"state"`
	Response        string                    `json:"response"`
	Summary         pipeline.SavingsSummary   `json:"summary"`
	Recommendations []pipeline.Recommendation `json:"recommendations"`
	RowErrors       []dataset.RowError        `json:"row_errors,omitempty"`
}

// CreateRun handles POST /api/v1/runs. The dataset arrives either as
// structured records or as raw CSV text; malformed rows are rejected
// individually and reported back, not fatal.
func (h *runsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_query", "query is required")
		return
	}

	records, rowErrs, err := h.ingest(req)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	result, err := h.runner.Run(r.Context(), req.Query, records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "run_failed", err.Error())
		return
	}

	h.recent.put(result)
	if h.recorder != nil {
		h.recorder.Record(result)
	}

	writeJSON(w, http.StatusCreated, createRunResponse{
		RunID:           result.RunID,
		State:           result.State,
		Response:        result.Response,
		Summary:         result.Summary,
		Recommendations: result.Recommendations,
		RowErrors:       rowErrs,
	})
}

// ingest turns the request payload into validated records.
func (h *runsHandler) ingest(req createRunRequest) ([]dataset.VMRecord, []dataset.RowError, error) {
	if req.CSV != "" {
		records, rowErrs, err := dataset.ReadCSV(strings.NewReader(req.CSV))
		if err != nil {
			return nil, rowErrs, err
		}
		return records, rowErrs, nil
	}

	var records []dataset.VMRecord
	var rowErrs []dataset.RowError
	for i, rec := range req.Records {
		if err := dataset.Validate(rec); err != nil {
			rowErrs = append(rowErrs, dataset.RowError{Line: i + 1, VMID: rec.VMID, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, rowErrs, dataset.ErrNoValidRows
	}
	return records, rowErrs, nil
}

// ListRuns handles GET /api/v1/runs.
func (h *runsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := history.ListQuery{
		State:  r.URL.Query().Get("state"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	from, err := parseTimeParam(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "from must be YYYY-MM-DD or RFC3339")
		return
	}
	q.From = from
	to, err := parseTimeParam(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", "to must be YYYY-MM-DD or RFC3339")
		return
	}
	q.To = to
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		q.Limit = l
	}

	runs, nextCursor, err := h.store.ListRuns(r.Context(), q)
	if err != nil {
		if strings.Contains(err.Error(), "invalid cursor") {
			writeError(w, http.StatusBadRequest, "invalid_cursor", "cursor is malformed")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}

	resp := map[string]interface{}{
		"runs": runs,
	}
	if nextCursor != "" {
		resp["next_cursor"] = nextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseTimeParam accepts a date (YYYY-MM-DD) or full RFC3339 timestamp.
// An empty input yields the zero time.
func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// GetRun handles GET /api/v1/runs/{id}. Recent runs are served from
// memory; older ones from the archive.
func (h *runsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if run := h.recent.get(id); run != nil {
		writeJSON(w, http.StatusOK, run)
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get run")
		return
	}
	recs, err := h.store.ListRecommendations(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get recommendations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":             run,
		"recommendations": recs,
	})
}

// GetTrace handles GET /api/v1/runs/{id}/trace.
func (h *runsHandler) GetTrace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if run := h.recent.get(id); run != nil && run.Trace != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"run_id":   id,
			"query":    run.Trace.Query,
			"response": run.Trace.Response(),
			"calls":    run.Trace.Calls(),
		})
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get run")
		return
	}
	calls, err := h.store.ListToolCalls(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get trace")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":   id,
		"query":    run.Query,
		"response": run.Response,
		"calls":    calls,
	})
}

// EvaluateRun handles POST /api/v1/runs/{id}/evaluate. Evaluation is
// decoupled from the pipeline: it runs on demand against the archived
// or in-memory trace and never touches the run itself.
func (h *runsHandler) EvaluateRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	query, response, tools, tr, ok := h.loadForEvaluation(w, r, id)
	if !ok {
		return
	}

	results, err := h.evaluator.Evaluate(r.Context(), query, response, tools, tr)
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
	if err := h.store.SaveEvaluation(r.Context(), id, results); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to save evaluation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  id,
		"results": results,
	})
}

// GetEvaluation handles GET /api/v1/runs/{id}/evaluation.
func (h *runsHandler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	results, err := h.store.GetEvaluation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get evaluation")
		return
	}
	if len(results) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "run has not been evaluated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  id,
		"results": results,
	})
}

// loadForEvaluation gathers the evaluation inputs from memory or the
// archive. Writes the error response itself when the run is missing.
func (h *runsHandler) loadForEvaluation(w http.ResponseWriter, r *http.Request, id string) (query, response string, tools []string, tr *trace.Trace, ok bool) {
	if run := h.recent.get(id); run != nil && run.Trace != nil {
		return run.Query, run.Response, run.Trace.ToolNames(), run.Trace, true
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "run not found")
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to get run")
		}
		return "", "", nil, nil, false
	}
	calls, err := h.store.ListToolCalls(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get trace")
		return "", "", nil, nil, false
	}
	tools = make([]string, len(calls))
	for i, c := range calls {
		tools[i] = c.Tool
	}
	return run.Query, run.Response, tools, nil, true
}
