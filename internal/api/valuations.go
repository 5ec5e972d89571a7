package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/finance"
)

// CashflowInput is one receivable of a valuation snapshot.
type CashflowInput struct {
	DueDate                 Date     `json:"dueDate"`
	Amount                  float64  `json:"amount"`
	PaidAmount              *float64 `json:"paidAmount,omitempty"`
	ProbabilityDefault      float64  `json:"probabilityDefault"`
	ProbabilityCancellation float64  `json:"probabilityCancellation"`
}

// ScenarioInput is a named valuation scenario. Omitted multipliers use the tenant settings.
type ScenarioInput struct {
	Code                   string   `json:"code"`
	DiscountRate           float64  `json:"discountRate"`
	DefaultMultiplier      *float64 `json:"defaultMultiplier,omitempty"`
	CancellationMultiplier *float64 `json:"cancellationMultiplier,omitempty"`
}

// ValuationRequest is the request body for POST /t/{tenantID}/valuations/snapshots/{snapshotID}/results.
type ValuationRequest struct {
	Cashflows []CashflowInput `json:"cashflows"`
	Scenarios []ScenarioInput `json:"scenarios"`
}

// ScenarioResult is the valuation of the snapshot under one scenario.
type ScenarioResult struct {
	Code string `json:"code"`
	domain.PortfolioValue
}

// ValuationResponse is the response of a snapshot valuation.
type ValuationResponse struct {
	TenantID   string           `json:"tenantId"`
	SnapshotID string           `json:"snapshotId"`
	Results    []ScenarioResult `json:"results"`
}

func validProbability(p float64) bool {
	return p >= 0 && p <= 1
}

// EvaluateSnapshot handles POST /t/{tenantID}/valuations/snapshots/{snapshotID}/results.
func (h *Handler) EvaluateSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	snapshotID := chi.URLParam(r, "snapshotID")

	var req ValuationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cashflows := make([]domain.Cashflow, len(req.Cashflows))
	for i, cf := range req.Cashflows {
		switch {
		case cf.DueDate.IsZero():
			writeError(w, r, http.StatusBadRequest, "every cashflow needs a dueDate")
			return
		case cf.Amount <= 0:
			writeError(w, r, http.StatusBadRequest, "cashflow amount must be positive")
			return
		case !validProbability(cf.ProbabilityDefault), !validProbability(cf.ProbabilityCancellation):
			writeError(w, r, http.StatusBadRequest, "cashflow probabilities must be between 0 and 1")
			return
		case cf.PaidAmount != nil && *cf.PaidAmount < 0:
			writeError(w, r, http.StatusBadRequest, "paidAmount must be non-negative")
			return
		}
		cashflows[i] = domain.Cashflow{
			DueDate:                 cf.DueDate.Time,
			Amount:                  cf.Amount,
			PaidAmount:              cf.PaidAmount,
			ProbabilityDefault:      cf.ProbabilityDefault,
			ProbabilityCancellation: cf.ProbabilityCancellation,
		}
	}

	settings, _, err := h.resolveSettings(ctx, tenantID)
	if err != nil {
		handleError(w, r, "resolve financial settings", err)
		return
	}

	results := make([]ScenarioResult, 0, len(req.Scenarios))
	for _, sc := range req.Scenarios {
		if strings.TrimSpace(sc.Code) == "" {
			writeError(w, r, http.StatusBadRequest, "scenario code is required")
			return
		}
		if sc.DiscountRate < 0 {
			writeError(w, r, http.StatusBadRequest, "scenario discountRate must be non-negative")
			return
		}

		scenario := domain.PortfolioScenario{
			Code:                   sc.Code,
			DiscountRate:           sc.DiscountRate,
			DefaultMultiplier:      settings.DefaultMultiplier,
			CancellationMultiplier: settings.CancellationMultiplier,
		}
		if sc.DefaultMultiplier != nil {
			scenario.DefaultMultiplier = *sc.DefaultMultiplier
		}
		if sc.CancellationMultiplier != nil {
			scenario.CancellationMultiplier = *sc.CancellationMultiplier
		}
		if !validMultiplier(scenario.DefaultMultiplier) || !validMultiplier(scenario.CancellationMultiplier) {
			writeError(w, r, http.StatusBadRequest, "scenario multipliers must be non-negative")
			return
		}

		results = append(results, ScenarioResult{
			Code:           sc.Code,
			PortfolioValue: finance.EvaluatePortfolio(cashflows, scenario, settings.PeriodsPerYear),
		})
	}

	writeJSON(w, http.StatusOK, ValuationResponse{
		TenantID:   tenantID,
		SnapshotID: snapshotID,
		Results:    results,
	})
}
