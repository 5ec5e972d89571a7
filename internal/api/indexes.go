package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/indexes"
)

// IndexValueInput is one monthly factor to store.
type IndexValueInput struct {
	ReferenceDate Date    `json:"referenceDate"`
	Value         float64 `json:"value"`
}

// IndexValuesRequest is the request body for POST /t/{tenantID}/indexes/{indexCode}/values.
type IndexValuesRequest struct {
	Values []IndexValueInput `json:"values"`
}

// IndexValueOutput is a stored index factor.
type IndexValueOutput struct {
	ReferenceDate Date      `json:"referenceDate"`
	Value         float64   `json:"value"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func indexValueOutputs(values []domain.IndexValue) []IndexValueOutput {
	out := make([]IndexValueOutput, len(values))
	for i, v := range values {
		out[i] = IndexValueOutput{
			ReferenceDate: NewDate(v.ReferenceDate),
			Value:         v.Value,
			UpdatedAt:     v.UpdatedAt,
		}
	}
	return out
}

// ListIndexValues handles GET /t/{tenantID}/indexes/{indexCode}/values.
func (h *Handler) ListIndexValues(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()

	values, err := h.indexes.ListIndexValues(ctx, GetTenantID(ctx), chi.URLParam(r, "indexCode"))
	if err != nil {
		handleError(w, r, "list index values", err)
		return
	}
	writeJSON(w, http.StatusOK, indexValueOutputs(values))
}

// UpsertIndexValues handles POST /t/{tenantID}/indexes/{indexCode}/values.
// Reference dates are stored as the first day of their month.
func (h *Handler) UpsertIndexValues(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	indexCode := indexes.NormalizeCode(chi.URLParam(r, "indexCode"))

	var req IndexValuesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Values) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one index value must be provided")
		return
	}

	values := make([]domain.IndexValue, len(req.Values))
	for i, v := range req.Values {
		values[i] = domain.IndexValue{ReferenceDate: v.ReferenceDate.Time, Value: v.Value}
	}

	stored, err := h.indexes.Upsert(ctx, tenantID, indexCode, values)
	if err != nil {
		handleError(w, r, "upsert index values", err)
		return
	}
	writeJSON(w, http.StatusCreated, indexValueOutputs(stored))
}
