package finance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

// ErrUnsupportedPeriodicity is returned when an adjustment names an unknown periodicity.
var ErrUnsupportedPeriodicity = errors.New("unsupported adjustment periodicity")

// monthStride approximates one month when walking from the base date.
// Output compatibility depends on this exact stride; do not replace it with calendar months.
const monthStride = 31

// IndexValueProvider supplies the ordered values of a tenant index.
type IndexValueProvider interface {
	ListIndexValues(ctx context.Context, tenantID string, indexCode string) ([]domain.IndexValue, error)
}

type monthKey struct {
	year  int
	month time.Month
}

func monthOf(t time.Time) monthKey {
	return monthKey{year: t.Year(), month: t.Month()}
}

// Adjuster applies index-linked corrections to installment schedules.
// The factor table is built once and never mutated, so an Adjuster is safe for concurrent use.
type Adjuster struct {
	spec    domain.AdjustmentSpec
	base    time.Time
	factors map[monthKey]float64
}

// NewAdjuster builds an adjuster from the index values of spec.IndexCode.
// Reference dates are truncated to their month; a later value for the same month wins.
func NewAdjuster(spec domain.AdjustmentSpec, values []domain.IndexValue) *Adjuster {
	factors := make(map[monthKey]float64, len(values))
	for _, v := range values {
		factors[monthOf(v.ReferenceDate)] = v.Value
	}
	base := spec.BaseDate
	return &Adjuster{
		spec:    spec,
		base:    time.Date(base.Year(), base.Month(), base.Day(), 0, 0, 0, 0, time.UTC),
		factors: factors,
	}
}

// LoadAdjuster fetches the index table from provider and builds an adjuster for spec.
func LoadAdjuster(ctx context.Context, provider IndexValueProvider, tenantID string, spec domain.AdjustmentSpec) (*Adjuster, error) {
	values, err := provider.ListIndexValues(ctx, tenantID, spec.IndexCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load index %s: %w", spec.IndexCode, err)
	}
	return NewAdjuster(spec, values), nil
}

// Spec returns the adjustment the adjuster was built for.
func (a *Adjuster) Spec() domain.AdjustmentSpec {
	return a.spec
}

// factor returns the index factor of the month m strides after the base date, or 1.0.
func (a *Adjuster) factor(m int) float64 {
	d := a.base.AddDate(0, 0, monthStride*m)
	if f, ok := a.factors[monthOf(d)]; ok {
		return f
	}
	return 1.0
}

// Apply returns a new schedule with every amount corrected.
//
// Without index values the addon rate is compounded annually pro rata,
// whatever the periodicity. Otherwise monthly periodicity multiplies the
// factors of months 1..P, and anniversary periodicity only corrects
// installments after a completed contract year.
func (a *Adjuster) Apply(schedule []domain.Installment) ([]domain.Installment, error) {
	if len(a.factors) == 0 {
		out := make([]domain.Installment, len(schedule))
		for i, inst := range schedule {
			out[i] = domain.Installment{
				Period: inst.Period,
				Amount: inst.Amount * math.Pow(1+a.spec.AddonRate, float64(inst.Period)/12),
			}
		}
		return out, nil
	}

	switch a.spec.Periodicity {
	case domain.PeriodicityMonthly:
		return a.applyMonthly(schedule), nil
	case domain.PeriodicityAnniversary:
		return a.applyAnniversary(schedule), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPeriodicity, a.spec.Periodicity)
	}
}

func (a *Adjuster) applyMonthly(schedule []domain.Installment) []domain.Installment {
	out := make([]domain.Installment, len(schedule))
	for i, inst := range schedule {
		correction := 1.0
		for m := 1; m <= inst.Period; m++ {
			correction *= a.factor(m)
		}
		addon := math.Pow(1+a.spec.AddonRate, float64(inst.Period)/12)
		out[i] = domain.Installment{Period: inst.Period, Amount: inst.Amount * correction * addon}
	}
	return out
}

func (a *Adjuster) applyAnniversary(schedule []domain.Installment) []domain.Installment {
	out := make([]domain.Installment, len(schedule))
	for i, inst := range schedule {
		years := inst.Period / 12
		if years == 0 {
			out[i] = inst
			continue
		}
		correction := 1.0
		for year := 0; year < years; year++ {
			for m := 1; m <= 12; m++ {
				correction *= a.factor(year*12 + m)
			}
		}
		addon := math.Pow(1+a.spec.AddonRate, float64(years))
		out[i] = domain.Installment{Period: inst.Period, Amount: inst.Amount * correction * addon}
	}
	return out
}
