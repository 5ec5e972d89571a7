package finance

import (
	"math"
	"sort"

	"github.com/opensource-finance/safv/internal/domain"
)

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

// SurvivalProbability is the share of a cashflow expected to be collected
// once the scenario multipliers are applied.
func SurvivalProbability(cf domain.Cashflow, defaultMultiplier, cancellationMultiplier float64) float64 {
	pd := clamp01(cf.ProbabilityDefault * defaultMultiplier)
	pc := clamp01(cf.ProbabilityCancellation * cancellationMultiplier)
	return 1 - math.Min(pd+pc, 1)
}

// CalculatePortfolioValue values a cashflow set under one scenario.
//
// Flows are sorted by due date and discounted by their 1-based rank in that
// order, not by their calendar distance. Expected losses are undiscounted.
// The input slice is not modified.
func CalculatePortfolioValue(cashflows []domain.Cashflow, discountRate, defaultMultiplier, cancellationMultiplier float64, periodsPerYear int) domain.PortfolioValue {
	sorted := make([]domain.Cashflow, len(cashflows))
	copy(sorted, cashflows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DueDate.Before(sorted[j].DueDate)
	})

	rate := ratePerPeriod(discountRate, periodsPerYear)
	var gross, losses float64
	for i, cf := range sorted {
		expected := cf.Amount * SurvivalProbability(cf, defaultMultiplier, cancellationMultiplier)
		gross += expected / math.Pow(1+rate, float64(i+1))
		losses += cf.Amount - expected
	}

	return domain.PortfolioValue{
		GrossPresentValue: Round2(gross),
		NetPresentValue:   Round2(gross - losses),
		ExpectedLosses:    Round2(losses),
	}
}
