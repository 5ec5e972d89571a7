package domain

import (
	"time"
)

// DefaultPeriodsPerYear is the compounding frequency used when none is configured.
const DefaultPeriodsPerYear = 12

// Installment is one entry of a payment plan schedule.
// Period is an offset in compounding periods (usually months) from the plan origin.
type Installment struct {
	Period int     `json:"period"`
	Amount float64 `json:"amount"`
}

// Cashflow is a single expected receivable used in portfolio valuation.
type Cashflow struct {
	DueDate                 time.Time `json:"dueDate"`
	Amount                  float64   `json:"amount"`
	PaidAmount              *float64  `json:"paidAmount,omitempty"`
	ProbabilityDefault      float64   `json:"probabilityDefault"`
	ProbabilityCancellation float64   `json:"probabilityCancellation"`
}

// Periodicity controls how often index corrections are compounded.
type Periodicity string

const (
	// PeriodicityMonthly applies the index factor of every elapsed month.
	PeriodicityMonthly Periodicity = "monthly"

	// PeriodicityAnniversary applies accumulated factors once per completed contract year.
	PeriodicityAnniversary Periodicity = "anniversary"
)

// Valid reports whether p is a supported periodicity.
func (p Periodicity) Valid() bool {
	return p == PeriodicityMonthly || p == PeriodicityAnniversary
}

// AdjustmentSpec binds a simulation plan to a financial index.
type AdjustmentSpec struct {
	BaseDate    time.Time   `json:"baseDate"`
	IndexCode   string      `json:"index"`
	Periodicity Periodicity `json:"periodicity"`
	AddonRate   float64     `json:"addonRate"` // annualized, compounded on top of index factors
}

// IndexValue is one monthly factor of a tenant-managed financial index (1.01 = +1%).
type IndexValue struct {
	ReferenceDate time.Time `json:"referenceDate"`
	Value         float64   `json:"value"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// PortfolioScenario is a named stress or base scenario applied to a cashflow set.
type PortfolioScenario struct {
	Code                   string  `json:"code"`
	DiscountRate           float64 `json:"discountRate"`
	DefaultMultiplier      float64 `json:"defaultMultiplier"`
	CancellationMultiplier float64 `json:"cancellationMultiplier"`
}

// SimulationMetrics is the per-plan metrics bundle. All values are rounded to cents.
type SimulationMetrics struct {
	PresentValue         float64  `json:"presentValue"`
	PresentValueAdjusted *float64 `json:"presentValueAdjusted,omitempty"`
	FutureValue          float64  `json:"futureValue"`
	Payment              float64  `json:"payment"`
	AverageInstallment   float64  `json:"averageInstallment"`
	MeanTermMonths       float64  `json:"meanTermMonths"`
}

// PortfolioValue is the risk-adjusted valuation of a cashflow set.
//
// GrossPresentValue is already probability-adjusted and NetPresentValue
// subtracts the undiscounted expected losses once more. Clients depend on
// this naming, keep it.
type PortfolioValue struct {
	GrossPresentValue float64 `json:"grossPresentValue"`
	NetPresentValue   float64 `json:"netPresentValue"`
	ExpectedLosses    float64 `json:"expectedLosses"`
}

// FinancialSettings holds per-tenant calculation defaults.
type FinancialSettings struct {
	TenantID               string    `json:"tenantId"`
	PeriodsPerYear         int       `json:"periodsPerYear"`
	DefaultMultiplier      float64   `json:"defaultMultiplier"`
	CancellationMultiplier float64   `json:"cancellationMultiplier"`
	UpdatedAt              time.Time `json:"updatedAt,omitempty"`
}

// PlanTemplate is a stored payment plan that simulations can reference by ID or product code.
type PlanTemplate struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenantId"`
	ProductCode  string        `json:"productCode"`
	Name         string        `json:"name,omitempty"`
	Description  string        `json:"description,omitempty"`
	Principal    float64       `json:"principal"`
	DiscountRate float64       `json:"discountRate"`
	Installments []Installment `json:"installments"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"createdAt,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt,omitempty"`
}
