package finance

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

func cashflow(due time.Time, amount, pd, pc float64) domain.Cashflow {
	return domain.Cashflow{DueDate: due, Amount: amount, ProbabilityDefault: pd, ProbabilityCancellation: pc}
}

func TestCalculatePortfolioValue(t *testing.T) {
	t.Run("NoRiskMeansNoLosses", func(t *testing.T) {
		flows := []domain.Cashflow{
			cashflow(date(2024, 2, 1), 1000, 0, 0),
			cashflow(date(2024, 3, 1), 1000, 0, 0),
		}
		v := CalculatePortfolioValue(flows, 0.12, 1, 1, 12)
		want := Round2(1000/1.01 + 1000/math.Pow(1.01, 2))
		if v.ExpectedLosses != 0 {
			t.Errorf("expected no losses, got %v", v.ExpectedLosses)
		}
		if v.GrossPresentValue != want || v.NetPresentValue != want {
			t.Errorf("expected gross=net=%v, got %+v", want, v)
		}
	})

	t.Run("DiscountsByRankNotDate", func(t *testing.T) {
		// Two years apart, but still ranks 1 and 2.
		flows := []domain.Cashflow{
			cashflow(date(2026, 1, 1), 500, 0, 0),
			cashflow(date(2024, 1, 1), 1000, 0, 0),
		}
		v := CalculatePortfolioValue(flows, 0.12, 1, 1, 12)
		want := Round2(1000/1.01 + 500/math.Pow(1.01, 2))
		if v.GrossPresentValue != want {
			t.Errorf("expected %v, got %v", want, v.GrossPresentValue)
		}
	})

	t.Run("LossesAreUndiscounted", func(t *testing.T) {
		flows := []domain.Cashflow{cashflow(date(2024, 6, 1), 1000, 0.1, 0.05)}
		v := CalculatePortfolioValue(flows, 0.12, 1, 1, 12)
		if v.ExpectedLosses != 150 {
			t.Errorf("expected losses 150, got %v", v.ExpectedLosses)
		}
		gross := 850 / 1.01
		if v.GrossPresentValue != Round2(gross) {
			t.Errorf("expected gross %v, got %v", Round2(gross), v.GrossPresentValue)
		}
		if v.NetPresentValue != Round2(gross-150) {
			t.Errorf("expected net %v, got %v", Round2(gross-150), v.NetPresentValue)
		}
	})

	t.Run("MultipliersAreClamped", func(t *testing.T) {
		flows := []domain.Cashflow{cashflow(date(2024, 6, 1), 1000, 0.4, 0.4)}
		v := CalculatePortfolioValue(flows, 0, 3, 3, 12)
		if v.GrossPresentValue != 0 {
			t.Errorf("expected a fully lost flow, got gross %v", v.GrossPresentValue)
		}
		if v.ExpectedLosses != 1000 {
			t.Errorf("expected losses capped at the amount, got %v", v.ExpectedLosses)
		}
	})

	t.Run("NegativeMultipliersClampToZero", func(t *testing.T) {
		flows := []domain.Cashflow{cashflow(date(2024, 6, 1), 1000, 0.3, 0.2)}
		v := CalculatePortfolioValue(flows, 0, -1, -2, 12)
		if v.ExpectedLosses != 0 || v.GrossPresentValue != 1000 {
			t.Errorf("expected no risk after clamping, got %+v", v)
		}
	})

	t.Run("NetNeverExceedsGross", func(t *testing.T) {
		flows := []domain.Cashflow{
			cashflow(date(2024, 1, 10), 300, 0.02, 0.01),
			cashflow(date(2024, 2, 10), 300, 0.05, 0),
			cashflow(date(2024, 3, 10), 300, 0, 0.2),
		}
		for _, mult := range []float64{0, 0.5, 1, 2} {
			v := CalculatePortfolioValue(flows, 0.2, mult, mult, 12)
			if v.NetPresentValue > v.GrossPresentValue {
				t.Errorf("multiplier %v: net %v > gross %v", mult, v.NetPresentValue, v.GrossPresentValue)
			}
			if v.ExpectedLosses < 0 {
				t.Errorf("multiplier %v: negative losses %v", mult, v.ExpectedLosses)
			}
		}
	})

	t.Run("InputNotReordered", func(t *testing.T) {
		flows := []domain.Cashflow{
			cashflow(date(2025, 1, 1), 1, 0, 0),
			cashflow(date(2024, 1, 1), 2, 0, 0),
		}
		_ = CalculatePortfolioValue(flows, 0.1, 1, 1, 12)
		if flows[0].Amount != 1 {
			t.Error("input slice was sorted in place")
		}
	})

	t.Run("Empty", func(t *testing.T) {
		v := CalculatePortfolioValue(nil, 0.1, 1, 1, 12)
		if v != (domain.PortfolioValue{}) {
			t.Errorf("expected zero value, got %+v", v)
		}
	})
}

func TestSurvivalProbability(t *testing.T) {
	cf := cashflow(date(2024, 1, 1), 100, 0.1, 0.2)
	if got := SurvivalProbability(cf, 1, 1); !almostEqual(got, 0.7, 1e-12) {
		t.Errorf("expected 0.7, got %v", got)
	}
	if got := SurvivalProbability(cf, 5, 5); got != 0 {
		t.Errorf("expected 0 when combined risk exceeds 1, got %v", got)
	}
}

func TestEvaluatePortfolio(t *testing.T) {
	flows := []domain.Cashflow{cashflow(date(2024, 6, 1), 1000, 0.1, 0.05)}
	scenario := domain.PortfolioScenario{Code: "stress", DiscountRate: 0.12, DefaultMultiplier: 2, CancellationMultiplier: 1}

	got := EvaluatePortfolio(flows, scenario, 12)
	want := CalculatePortfolioValue(flows, 0.12, 2, 1, 12)
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if got.ExpectedLosses != 250 {
		t.Errorf("expected stressed losses 250, got %v", got.ExpectedLosses)
	}
}
