package api

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/repository"
)

// FinancialSettingsRequest is the request body for PUT /t/{tenantID}/settings/financial.
// Omitted fields keep their current value.
type FinancialSettingsRequest struct {
	PeriodsPerYear         *int     `json:"periodsPerYear"`
	DefaultMultiplier      *float64 `json:"defaultMultiplier"`
	CancellationMultiplier *float64 `json:"cancellationMultiplier"`
}

// FinancialSettingsResponse reports the effective settings of a tenant.
type FinancialSettingsResponse struct {
	domain.FinancialSettings
	Source string `json:"source"` // "tenant" or "default"
}

// resolveSettings returns the tenant's stored settings, or the configured defaults.
func (h *Handler) resolveSettings(ctx context.Context, tenantID string) (*domain.FinancialSettings, bool, error) {
	stored, err := h.repo.GetFinancialSettings(ctx, tenantID)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	return &domain.FinancialSettings{
		TenantID:               tenantID,
		PeriodsPerYear:         h.defaults.PeriodsPerYear,
		DefaultMultiplier:      h.defaults.DefaultMultiplier,
		CancellationMultiplier: h.defaults.CancellationMultiplier,
	}, false, nil
}

func settingsResponse(s *domain.FinancialSettings, stored bool) FinancialSettingsResponse {
	source := "default"
	if stored {
		source = "tenant"
	}
	return FinancialSettingsResponse{FinancialSettings: *s, Source: source}
}

// GetFinancialSettings handles GET /t/{tenantID}/settings/financial.
func (h *Handler) GetFinancialSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()

	settings, stored, err := h.resolveSettings(ctx, GetTenantID(ctx))
	if err != nil {
		handleError(w, r, "get financial settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(settings, stored))
}

// PutFinancialSettings handles PUT /t/{tenantID}/settings/financial.
func (h *Handler) PutFinancialSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req FinancialSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	settings, _, err := h.resolveSettings(ctx, tenantID)
	if err != nil {
		handleError(w, r, "get financial settings", err)
		return
	}

	if req.PeriodsPerYear != nil {
		if *req.PeriodsPerYear <= 0 || *req.PeriodsPerYear > 366 {
			writeError(w, r, http.StatusBadRequest, "periodsPerYear must be between 1 and 366")
			return
		}
		settings.PeriodsPerYear = *req.PeriodsPerYear
	}
	if req.DefaultMultiplier != nil {
		if !validMultiplier(*req.DefaultMultiplier) {
			writeError(w, r, http.StatusBadRequest, "defaultMultiplier must be a non-negative number")
			return
		}
		settings.DefaultMultiplier = *req.DefaultMultiplier
	}
	if req.CancellationMultiplier != nil {
		if !validMultiplier(*req.CancellationMultiplier) {
			writeError(w, r, http.StatusBadRequest, "cancellationMultiplier must be a non-negative number")
			return
		}
		settings.CancellationMultiplier = *req.CancellationMultiplier
	}

	if err := h.repo.SaveFinancialSettings(ctx, tenantID, settings); err != nil {
		handleError(w, r, "save financial settings", err)
		return
	}

	saved, err := h.repo.GetFinancialSettings(ctx, tenantID)
	if err != nil {
		handleError(w, r, "get financial settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse(saved, true))
}

func validMultiplier(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
