package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/safv/internal/domain"
)

// PlanTemplateRequest is the request body for POST /t/{tenantID}/plan-templates.
// Posting an existing ID replaces that template.
type PlanTemplateRequest struct {
	ID           string               `json:"id,omitempty"`
	ProductCode  string               `json:"productCode"`
	Name         string               `json:"name,omitempty"`
	Description  string               `json:"description,omitempty"`
	Principal    float64              `json:"principal"`
	DiscountRate float64              `json:"discountRate"`
	Installments []domain.Installment `json:"installments"`
	Active       *bool                `json:"active,omitempty"`
}

// validate also rewrites ID into canonical lowercase hyphenated form.
func (req *PlanTemplateRequest) validate() error {
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			return badRequest("id must be a UUID")
		}
		req.ID = id.String()
	}
	code := strings.TrimSpace(req.ProductCode)
	switch {
	case code == "":
		return badRequest("productCode is required")
	case len(code) > maxProductCodeLength:
		return badRequest("productCode must be at most %d characters", maxProductCodeLength)
	case req.Principal <= 0:
		return badRequest("principal must be positive")
	case req.DiscountRate < 0:
		return badRequest("discountRate must be non-negative")
	case len(req.Installments) == 0:
		return badRequest("at least one installment is required")
	}
	for i, inst := range req.Installments {
		if inst.Period < 0 {
			return badRequest("installments[%d].period must be non-negative", i)
		}
		if inst.Amount <= 0 {
			return badRequest("installments[%d].amount must be positive", i)
		}
	}
	return nil
}

// CreatePlanTemplate handles POST /t/{tenantID}/plan-templates.
func (h *Handler) CreatePlanTemplate(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req PlanTemplateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		re := err.(*requestError)
		writeError(w, r, re.status, re.message)
		return
	}

	tpl := &domain.PlanTemplate{
		ID:           req.ID,
		ProductCode:  strings.TrimSpace(req.ProductCode),
		Name:         req.Name,
		Description:  req.Description,
		Principal:    req.Principal,
		DiscountRate: req.DiscountRate,
		Installments: req.Installments,
		Active:       req.Active == nil || *req.Active,
	}
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}

	if err := h.repo.SavePlanTemplate(ctx, tenantID, tpl); err != nil {
		handleError(w, r, "save plan template", err)
		return
	}
	writeJSON(w, http.StatusCreated, tpl)
}

// ListPlanTemplates handles GET /t/{tenantID}/plan-templates.
func (h *Handler) ListPlanTemplates(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()

	templates, err := h.repo.ListPlanTemplates(ctx, GetTenantID(ctx))
	if err != nil {
		handleError(w, r, "list plan templates", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": templates,
		"count":     len(templates),
	})
}

// GetPlanTemplate handles GET /t/{tenantID}/plan-templates/{id}.
func (h *Handler) GetPlanTemplate(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()

	id := chi.URLParam(r, "id")
	if parsed, err := uuid.Parse(id); err == nil {
		id = parsed.String()
	}
	tpl, err := h.repo.GetPlanTemplate(ctx, GetTenantID(ctx), id)
	if err != nil {
		handleError(w, r, "get plan template", err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}
