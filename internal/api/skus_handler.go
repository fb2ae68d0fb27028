package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/fleetcost/rightsize/internal/catalog"
)

// skusHandler groups SKU catalog HTTP handlers.
type skusHandler struct {
	service *catalog.Service
}

func newSKUsHandler(svc *catalog.Service) *skusHandler {
	return &skusHandler{service: svc}
}

// ListSKUs handles GET /api/v1/skus.
func (h *skusHandler) ListSKUs(w http.ResponseWriter, r *http.Request) {
	params := catalog.ListParams{
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		params.Limit = l
	}

	skus, nextCursor, err := h.service.List(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list skus")
		return
	}

	resp := map[string]interface{}{
		"skus": skus,
	}
	if nextCursor != "" {
		resp["next_cursor"] = nextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSKU handles GET /api/v1/skus/{name}.
func (h *skusHandler) GetSKU(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_name", "sku name is required")
		return
	}

	sku, err := h.service.GetByName(r.Context(), name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "sku not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get sku")
		return
	}
	writeJSON(w, http.StatusOK, sku)
}

// UpsertSKU handles PUT /api/v1/admin/skus/{name}.
func (h *skusHandler) UpsertSKU(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_name", "sku name is required")
		return
	}

	var input catalog.UpsertSKUInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	input.Name = name

	sku, err := h.service.Upsert(r.Context(), input)
	if err != nil {
		if isValidationError(err) {
			writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to upsert sku")
		return
	}
	writeJSON(w, http.StatusOK, sku)
}

// DeleteSKU handles DELETE /api/v1/admin/skus/{name}.
func (h *skusHandler) DeleteSKU(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_name", "sku name is required")
		return
	}

	if err := h.service.Delete(r.Context(), name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "sku not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete sku")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// isValidationError checks whether the error is a known validation
// error from the catalog service.
func isValidationError(err error) bool {
	return errors.Is(err, catalog.ErrNameRequired) ||
		errors.Is(err, catalog.ErrCoresInvalid) ||
		errors.Is(err, catalog.ErrRAMInvalid) ||
		errors.Is(err, catalog.ErrPriceInvalid)
}
