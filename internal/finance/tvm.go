// Package finance implements the time-value-of-money engine, index-linked
// installment adjustment and risk-adjusted portfolio valuation.
//
// Everything in this package is pure computation: no I/O, no shared state.
package finance

import (
	"math"
	"strconv"

	"github.com/opensource-finance/safv/internal/domain"
)

// Round2 rounds v to two decimal places, ties to even on the exact binary value.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}

func ratePerPeriod(discountRate float64, periodsPerYear int) float64 {
	if periodsPerYear <= 0 {
		periodsPerYear = domain.DefaultPeriodsPerYear
	}
	return discountRate / float64(periodsPerYear)
}

// PresentValue discounts every installment by (1 + rate/periodsPerYear)^period and sums them.
func PresentValue(schedule []domain.Installment, discountRate float64, periodsPerYear int) float64 {
	rate := ratePerPeriod(discountRate, periodsPerYear)
	total := 0.0
	for _, inst := range schedule {
		total += inst.Amount / math.Pow(1+rate, float64(inst.Period))
	}
	return total
}

// Payment returns the annuity installment that amortizes principal over periods.
// A zero periodic rate falls back to straight-line amortization.
func Payment(principal, discountRate float64, periods int, periodsPerYear int) float64 {
	rate := ratePerPeriod(discountRate, periodsPerYear)
	if periods <= 0 {
		return 0
	}
	if rate == 0 {
		return principal / float64(periods)
	}
	growth := math.Pow(1+rate, float64(periods))
	return principal * (rate * growth) / (growth - 1)
}

// FutureValue compounds principal over periods.
func FutureValue(principal, discountRate float64, periods int, periodsPerYear int) float64 {
	rate := ratePerPeriod(discountRate, periodsPerYear)
	return principal * math.Pow(1+rate, float64(periods))
}

// AverageInstallmentAmount is the arithmetic mean of installment amounts.
func AverageInstallmentAmount(installments []domain.Installment) float64 {
	if len(installments) == 0 {
		return 0
	}
	total := 0.0
	for _, inst := range installments {
		total += inst.Amount
	}
	return total / float64(len(installments))
}

// MeanTermMonths is the amount-weighted average period. Zero when the total amount is zero.
func MeanTermMonths(installments []domain.Installment) float64 {
	var weighted, total float64
	for _, inst := range installments {
		weighted += float64(inst.Period) * inst.Amount
		total += inst.Amount
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// CalculateSimulationMetrics builds the canonical per-plan metrics bundle.
// The installment count is used as the term for payment and future value.
func CalculateSimulationMetrics(principal, discountRate float64, installments []domain.Installment, periodsPerYear int) domain.SimulationMetrics {
	n := len(installments)
	return domain.SimulationMetrics{
		PresentValue:       Round2(PresentValue(installments, discountRate, periodsPerYear)),
		FutureValue:        Round2(FutureValue(principal, discountRate, n, periodsPerYear)),
		Payment:            Round2(Payment(principal, discountRate, n, periodsPerYear)),
		AverageInstallment: Round2(AverageInstallmentAmount(installments)),
		MeanTermMonths:     Round2(MeanTermMonths(installments)),
	}
}
