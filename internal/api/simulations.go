package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/finance"
	"github.com/opensource-finance/safv/internal/indexes"
)

// InstallmentInput is one scheduled payment, placed by period or by due date.
type InstallmentInput struct {
	DueDate *Date   `json:"dueDate,omitempty"`
	Period  *int    `json:"period,omitempty"`
	Amount  float64 `json:"amount"`
}

// AdjustmentInput binds a plan to a tenant index.
type AdjustmentInput struct {
	BaseDate    Date    `json:"baseDate"`
	Index       string  `json:"index"`
	Periodicity string  `json:"periodicity"`
	AddonRate   float64 `json:"addonRate"`
}

// PlanInput is one plan of a batch simulation.
type PlanInput struct {
	Key          string             `json:"key,omitempty"`
	Label        string             `json:"label,omitempty"`
	ProductCode  string             `json:"productCode,omitempty"`
	Principal    float64            `json:"principal"`
	DiscountRate float64            `json:"discountRate"`
	Adjustment   *AdjustmentInput   `json:"adjustment,omitempty"`
	Installments []InstallmentInput `json:"installments"`
}

// TemplateReference selects a stored plan template by ID or product code.
type TemplateReference struct {
	TemplateID  string `json:"templateId,omitempty"`
	ProductCode string `json:"productCode,omitempty"`
}

// SimulationRequest is the request body for POST /t/{tenantID}/simulations.
// A body carrying plans or templates is a batch; otherwise it is a single plan.
type SimulationRequest struct {
	Principal    *float64           `json:"principal,omitempty"`
	DiscountRate *float64           `json:"discountRate,omitempty"`
	Adjustment   *AdjustmentInput   `json:"adjustment,omitempty"`
	Installments []InstallmentInput `json:"installments,omitempty"`

	Plans     []PlanInput         `json:"plans,omitempty"`
	Templates []TemplateReference `json:"templates,omitempty"`
}

// PlanSnapshot echoes the schedule a result was computed from.
type PlanSnapshot struct {
	Principal    float64              `json:"principal"`
	DiscountRate float64              `json:"discountRate"`
	Installments []domain.Installment `json:"installments"`
}

// SimulationOutcome is the result of one simulated plan.
type SimulationOutcome struct {
	Source      string                   `json:"source"` // "input" or "template"
	PlanKey     string                   `json:"planKey,omitempty"`
	Label       string                   `json:"label,omitempty"`
	ProductCode string                   `json:"productCode,omitempty"`
	TemplateID  string                   `json:"templateId,omitempty"`
	Plan        PlanSnapshot             `json:"plan"`
	Result      domain.SimulationMetrics `json:"result"`
}

// SimulationResponse is the response for POST /t/{tenantID}/simulations.
type SimulationResponse struct {
	TenantID string              `json:"tenantId"`
	Outcomes []SimulationOutcome `json:"outcomes"`
}

const (
	sourceInput    = "input"
	sourceTemplate = "template"

	maxPlanKeyLength     = 64
	maxProductCodeLength = 128
)

// requestError is a client mistake reported with its own status.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// validatePlan checks the plan-level fields shared by single and batch plans.
func validatePlan(principal, discountRate float64, installments []InstallmentInput, adj *AdjustmentInput) error {
	if principal <= 0 {
		return badRequest("principal must be positive")
	}
	if discountRate < 0 {
		return badRequest("discountRate must be non-negative")
	}
	for i, inst := range installments {
		if inst.Amount <= 0 {
			return badRequest("installments[%d].amount must be positive", i)
		}
		if inst.Period == nil && inst.DueDate == nil {
			return badRequest("installments[%d] must include dueDate or period", i)
		}
		if inst.Period != nil && *inst.Period < 0 {
			return badRequest("installments[%d].period must be non-negative", i)
		}
	}
	if adj != nil {
		if adj.BaseDate.IsZero() {
			return badRequest("adjustment.baseDate is required")
		}
		if strings.TrimSpace(adj.Index) == "" {
			return badRequest("adjustment.index is required")
		}
		if !domain.Periodicity(adj.Periodicity).Valid() {
			return badRequest("adjustment.periodicity must be monthly or anniversary")
		}
		if adj.AddonRate < 0 {
			return badRequest("adjustment.addonRate must be non-negative")
		}
	}
	return nil
}

// resolveSchedule converts installments into period offsets. Due dates count
// whole months from the adjustment base date, or from the earliest due date.
func resolveSchedule(installments []InstallmentInput, adj *AdjustmentInput) []domain.Installment {
	var origin time.Time
	if adj != nil {
		origin = adj.BaseDate.Time
	} else {
		for _, inst := range installments {
			if inst.Period == nil && inst.DueDate != nil && (origin.IsZero() || inst.DueDate.Before(origin)) {
				origin = inst.DueDate.Time
			}
		}
	}

	schedule := make([]domain.Installment, len(installments))
	for i, inst := range installments {
		var period int
		if inst.Period != nil {
			period = *inst.Period
		} else {
			period = finance.MonthsBetween(origin, inst.DueDate.Time)
		}
		schedule[i] = domain.Installment{Period: period, Amount: inst.Amount}
	}
	return schedule
}

// simulate runs one plan and builds its outcome skeleton.
func (h *Handler) simulate(ctx context.Context, tenantID string, periodsPerYear int, principal, discountRate float64, schedule []domain.Installment, adj *AdjustmentInput) (PlanSnapshot, domain.SimulationMetrics, error) {
	plan := &finance.Plan{
		Principal:      principal,
		DiscountRate:   discountRate,
		Installments:   schedule,
		PeriodsPerYear: periodsPerYear,
	}

	if adj != nil {
		adjuster, err := finance.LoadAdjuster(ctx, h.indexes, tenantID, domain.AdjustmentSpec{
			BaseDate:    adj.BaseDate.Time,
			IndexCode:   indexes.NormalizeCode(adj.Index),
			Periodicity: domain.Periodicity(adj.Periodicity),
			AddonRate:   adj.AddonRate,
		})
		if err != nil {
			return PlanSnapshot{}, domain.SimulationMetrics{}, err
		}
		plan.Adjuster = adjuster
	}

	metrics, err := plan.Metrics()
	if err != nil {
		return PlanSnapshot{}, domain.SimulationMetrics{}, err
	}

	snapshot := PlanSnapshot{
		Principal:    principal,
		DiscountRate: discountRate,
		Installments: schedule,
	}
	return snapshot, metrics, nil
}

func (h *Handler) templateOutcome(tpl *domain.PlanTemplate, planKey string, periodsPerYear int) (SimulationOutcome, error) {
	schedule := make([]domain.Installment, len(tpl.Installments))
	copy(schedule, tpl.Installments)
	plan := &finance.Plan{
		Principal:      tpl.Principal,
		DiscountRate:   tpl.DiscountRate,
		Installments:   schedule,
		PeriodsPerYear: periodsPerYear,
	}
	metrics, err := plan.Metrics()
	if err != nil {
		return SimulationOutcome{}, err
	}
	return SimulationOutcome{
		Source:      sourceTemplate,
		PlanKey:     planKey,
		Label:       tpl.Name,
		ProductCode: tpl.ProductCode,
		TemplateID:  tpl.ID,
		Plan: PlanSnapshot{
			Principal:    tpl.Principal,
			DiscountRate: tpl.DiscountRate,
			Installments: schedule,
		},
		Result: metrics,
	}, nil
}

// Simulate handles POST /t/{tenantID}/simulations.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w, r) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req SimulationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	settings, _, err := h.resolveSettings(ctx, tenantID)
	if err != nil {
		handleError(w, r, "resolve financial settings", err)
		return
	}

	var outcomes []SimulationOutcome
	if len(req.Plans) > 0 || len(req.Templates) > 0 {
		outcomes, err = h.simulateBatch(ctx, tenantID, settings.PeriodsPerYear, &req)
	} else if req.Principal != nil {
		outcomes, err = h.simulateSingle(ctx, tenantID, settings.PeriodsPerYear, &req)
	} else {
		err = badRequest("at least one plan or template must be provided")
	}
	if err != nil {
		if re, ok := err.(*requestError); ok {
			writeError(w, r, re.status, re.message)
			return
		}
		handleError(w, r, "simulation", err)
		return
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("simulation.outcomes", len(outcomes)))
	writeJSON(w, http.StatusOK, SimulationResponse{
		TenantID: tenantID,
		Outcomes: outcomes,
	})
}

func (h *Handler) simulateSingle(ctx context.Context, tenantID string, periodsPerYear int, req *SimulationRequest) ([]SimulationOutcome, error) {
	if req.DiscountRate == nil {
		return nil, badRequest("discountRate is required")
	}
	discountRate := *req.DiscountRate
	if err := validatePlan(*req.Principal, discountRate, req.Installments, req.Adjustment); err != nil {
		return nil, err
	}

	schedule := resolveSchedule(req.Installments, req.Adjustment)
	snapshot, metrics, err := h.simulate(ctx, tenantID, periodsPerYear, *req.Principal, discountRate, schedule, req.Adjustment)
	if err != nil {
		return nil, err
	}
	return []SimulationOutcome{{
		Source: sourceInput,
		Plan:   snapshot,
		Result: metrics,
	}}, nil
}

func (h *Handler) simulateBatch(ctx context.Context, tenantID string, periodsPerYear int, req *SimulationRequest) ([]SimulationOutcome, error) {
	idSet := map[string]struct{}{}
	codeSet := map[string]struct{}{}

	for i, p := range req.Plans {
		if len(p.Key) > maxPlanKeyLength {
			return nil, badRequest("plans[%d].key must be at most %d characters", i, maxPlanKeyLength)
		}
		if len(p.ProductCode) > maxProductCodeLength {
			return nil, badRequest("plans[%d].productCode must be at most %d characters", i, maxProductCodeLength)
		}
		if err := validatePlan(p.Principal, p.DiscountRate, p.Installments, p.Adjustment); err != nil {
			return nil, err
		}
		if code := strings.ToLower(strings.TrimSpace(p.ProductCode)); code != "" {
			codeSet[code] = struct{}{}
		}
	}
	for i, ref := range req.Templates {
		code := strings.ToLower(strings.TrimSpace(ref.ProductCode))
		switch {
		case ref.TemplateID != "":
			id, err := uuid.Parse(ref.TemplateID)
			if err != nil {
				return nil, badRequest("templates[%d].templateId is not a valid UUID", i)
			}
			req.Templates[i].TemplateID = id.String()
			idSet[id.String()] = struct{}{}
		case code != "":
			codeSet[code] = struct{}{}
		default:
			return nil, badRequest("templates[%d] needs templateId or productCode", i)
		}
	}

	byID := map[string]*domain.PlanTemplate{}
	byCode := map[string]*domain.PlanTemplate{}
	index := func(list []*domain.PlanTemplate) {
		for _, tpl := range list {
			byID[tpl.ID] = tpl
			byCode[strings.ToLower(tpl.ProductCode)] = tpl
		}
	}

	if len(idSet) > 0 {
		list, err := h.repo.ListPlanTemplatesByIDs(ctx, tenantID, setKeys(idSet))
		if err != nil {
			return nil, err
		}
		index(list)
	}
	if len(codeSet) > 0 {
		list, err := h.repo.ListPlanTemplatesByProductCodes(ctx, tenantID, setKeys(codeSet))
		if err != nil {
			return nil, err
		}
		index(list)
	}

	outcomes := make([]SimulationOutcome, 0, len(req.Plans)+len(req.Templates))
	included := map[string]bool{}

	for _, p := range req.Plans {
		schedule := resolveSchedule(p.Installments, p.Adjustment)
		snapshot, metrics, err := h.simulate(ctx, tenantID, periodsPerYear, p.Principal, p.DiscountRate, schedule, p.Adjustment)
		if err != nil {
			return nil, err
		}
		productCode := strings.TrimSpace(p.ProductCode)
		outcomes = append(outcomes, SimulationOutcome{
			Source:      sourceInput,
			PlanKey:     p.Key,
			Label:       p.Label,
			ProductCode: productCode,
			Plan:        snapshot,
			Result:      metrics,
		})

		if productCode == "" {
			continue
		}
		tpl := byCode[strings.ToLower(productCode)]
		if tpl == nil || included[tpl.ID] {
			continue
		}
		outcome, err := h.templateOutcome(tpl, p.Key, periodsPerYear)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
		included[tpl.ID] = true
	}

	for _, ref := range req.Templates {
		var tpl *domain.PlanTemplate
		if ref.TemplateID != "" {
			tpl = byID[ref.TemplateID]
		} else {
			tpl = byCode[strings.ToLower(strings.TrimSpace(ref.ProductCode))]
		}
		if tpl == nil {
			return nil, &requestError{status: http.StatusNotFound, message: "payment plan template not found"}
		}
		if included[tpl.ID] {
			continue
		}
		outcome, err := h.templateOutcome(tpl, "", periodsPerYear)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
		included[tpl.ID] = true
	}

	return outcomes, nil
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	return keys
}
