package finance

import (
	"fmt"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

// Plan is a payment plan ready to be simulated.
type Plan struct {
	Principal      float64
	DiscountRate   float64
	Installments   []domain.Installment
	PeriodsPerYear int

	// Adjuster is optional; when set the index-adjusted present value is reported too.
	Adjuster *Adjuster
}

// Metrics computes the plan's metrics bundle.
// Only the adjusted present value is surfaced from the adjusted schedule.
func (p *Plan) Metrics() (domain.SimulationMetrics, error) {
	metrics := CalculateSimulationMetrics(p.Principal, p.DiscountRate, p.Installments, p.PeriodsPerYear)
	if p.Adjuster == nil {
		return metrics, nil
	}

	adjusted, err := p.Adjuster.Apply(p.Installments)
	if err != nil {
		return domain.SimulationMetrics{}, fmt.Errorf("failed to adjust schedule: %w", err)
	}
	pv := CalculateSimulationMetrics(p.Principal, p.DiscountRate, adjusted, p.PeriodsPerYear).PresentValue
	metrics.PresentValueAdjusted = &pv
	return metrics, nil
}

// EvaluatePortfolio values cashflows under a scenario.
func EvaluatePortfolio(cashflows []domain.Cashflow, scenario domain.PortfolioScenario, periodsPerYear int) domain.PortfolioValue {
	return CalculatePortfolioValue(
		cashflows,
		scenario.DiscountRate,
		scenario.DefaultMultiplier,
		scenario.CancellationMultiplier,
		periodsPerYear,
	)
}

// MonthsBetween counts the calendar months from start to end, ignoring days.
// It returns 0 when end precedes start.
func MonthsBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
}
