package finance

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAdjusterFallback(t *testing.T) {
	spec := domain.AdjustmentSpec{
		BaseDate:    date(2024, 1, 15),
		IndexCode:   "INCC-CUSTOM",
		Periodicity: domain.PeriodicityMonthly,
		AddonRate:   0.12,
	}

	t.Run("ClosedFormWithoutIndexValues", func(t *testing.T) {
		adj := NewAdjuster(spec, nil)
		in := schedule(0, 1000, 1, 1000, 12, 1000, 30, 750)

		out, err := adj.Apply(in)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		for i, inst := range in {
			want := inst.Amount * math.Pow(1.12, float64(inst.Period)/12)
			if out[i].Period != inst.Period {
				t.Errorf("period changed: %d -> %d", inst.Period, out[i].Period)
			}
			if !almostEqual(out[i].Amount, want, 1e-9) {
				t.Errorf("period %d: expected %v, got %v", inst.Period, want, out[i].Amount)
			}
		}
		if !almostEqual(out[2].Amount, 1120, 1e-9) {
			t.Errorf("expected one full year at 12%% to give 1120, got %v", out[2].Amount)
		}
	})

	t.Run("FallbackIgnoresPeriodicity", func(t *testing.T) {
		bad := spec
		bad.Periodicity = "quarterly"
		out, err := NewAdjuster(bad, nil).Apply(schedule(12, 1000))
		if err != nil {
			t.Fatalf("expected fallback to ignore periodicity, got %v", err)
		}
		if !almostEqual(out[0].Amount, 1120, 1e-9) {
			t.Errorf("expected 1120, got %v", out[0].Amount)
		}
	})

	t.Run("InputNotMutated", func(t *testing.T) {
		in := schedule(12, 1000)
		_, _ = NewAdjuster(spec, nil).Apply(in)
		if in[0].Amount != 1000 {
			t.Errorf("input schedule was modified: %v", in[0].Amount)
		}
	})
}

func TestAdjusterMonthly(t *testing.T) {
	values := []domain.IndexValue{
		{ReferenceDate: date(2024, 2, 1), Value: 1.01},
		{ReferenceDate: date(2024, 3, 1), Value: 1.02},
		{ReferenceDate: date(2024, 4, 1), Value: 1.005},
	}
	spec := domain.AdjustmentSpec{
		BaseDate:    date(2024, 1, 15),
		IndexCode:   "INCC-CUSTOM",
		Periodicity: domain.PeriodicityMonthly,
		AddonRate:   0.12,
	}
	adj := NewAdjuster(spec, values)

	t.Run("CompoundsElapsedMonths", func(t *testing.T) {
		out, err := adj.Apply(schedule(3, 1000))
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		want := 1000 * 1.01 * 1.02 * 1.005 * math.Pow(1.12, 3.0/12)
		if !almostEqual(out[0].Amount, want, 1e-9) {
			t.Errorf("expected %v, got %v", want, out[0].Amount)
		}
	})

	t.Run("MissingMonthsDefaultToOne", func(t *testing.T) {
		// months 5..6 have no factor
		out, _ := adj.Apply(schedule(6, 1000))
		want := 1000 * 1.01 * 1.02 * 1.005 * math.Pow(1.12, 6.0/12)
		if !almostEqual(out[0].Amount, want, 1e-9) {
			t.Errorf("expected %v, got %v", want, out[0].Amount)
		}
	})

	t.Run("PeriodZeroUnchanged", func(t *testing.T) {
		out, _ := adj.Apply(schedule(0, 1000))
		if out[0].Amount != 1000 {
			t.Errorf("expected 1000, got %v", out[0].Amount)
		}
	})

	t.Run("ReferenceDatesTruncatedToMonth", func(t *testing.T) {
		midMonth := []domain.IndexValue{{ReferenceDate: date(2024, 2, 20), Value: 1.5}}
		noAddon := spec
		noAddon.AddonRate = 0
		out, _ := NewAdjuster(noAddon, midMonth).Apply(schedule(1, 100))
		if !almostEqual(out[0].Amount, 150, 1e-9) {
			t.Errorf("expected 150, got %v", out[0].Amount)
		}
	})
}

func TestAdjusterUsesFixedStride(t *testing.T) {
	// From Jan 31 the first 31-day step lands on Mar 2, so February is never visited.
	spec := domain.AdjustmentSpec{
		BaseDate:    date(2024, 1, 31),
		IndexCode:   "IPCA",
		Periodicity: domain.PeriodicityMonthly,
	}
	values := []domain.IndexValue{
		{ReferenceDate: date(2024, 2, 1), Value: 2.0},
		{ReferenceDate: date(2024, 3, 1), Value: 1.1},
	}

	out, err := NewAdjuster(spec, values).Apply(schedule(1, 100, 2, 100))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !almostEqual(out[0].Amount, 110, 1e-9) {
		t.Errorf("month 1: expected 110, got %v", out[0].Amount)
	}
	// second step lands on Apr 2
	if !almostEqual(out[1].Amount, 110, 1e-9) {
		t.Errorf("month 2: expected 110, got %v", out[1].Amount)
	}
}

func TestAdjusterAnniversary(t *testing.T) {
	var values []domain.IndexValue
	product := 1.0
	for m := 0; m < 12; m++ {
		v := 1.005 + float64(m)*0.0001
		values = append(values, domain.IndexValue{ReferenceDate: date(2024, time.Month(m+1), 1), Value: v})
		product *= v
	}
	spec := domain.AdjustmentSpec{
		BaseDate:    date(2023, 12, 15),
		IndexCode:   "IGPM-CUSTOM",
		Periodicity: domain.PeriodicityAnniversary,
		AddonRate:   0.10,
	}
	adj := NewAdjuster(spec, values)

	t.Run("FirstYearIsIdentity", func(t *testing.T) {
		in := schedule(0, 1000, 1, 1000, 11, 1000)
		out, err := adj.Apply(in)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		for i := range in {
			if out[i] != in[i] {
				t.Errorf("expected %+v unchanged, got %+v", in[i], out[i])
			}
		}
	})

	t.Run("AppliesCompletedYear", func(t *testing.T) {
		out, _ := adj.Apply(schedule(13, 1000))
		want := 1000 * product * 1.10
		if !almostEqual(out[0].Amount, want, 1e-9) {
			t.Errorf("expected %v, got %v", want, out[0].Amount)
		}
	})

	t.Run("SecondYearWithoutValuesOnlyAddsAddon", func(t *testing.T) {
		out, _ := adj.Apply(schedule(24, 1000))
		want := 1000 * product * math.Pow(1.10, 2)
		if !almostEqual(out[0].Amount, want, 1e-9) {
			t.Errorf("expected %v, got %v", want, out[0].Amount)
		}
	})
}

func TestAdjusterUnsupportedPeriodicity(t *testing.T) {
	spec := domain.AdjustmentSpec{
		BaseDate:    date(2024, 1, 1),
		IndexCode:   "IPCA",
		Periodicity: "weekly",
	}
	values := []domain.IndexValue{{ReferenceDate: date(2024, 2, 1), Value: 1.01}}

	_, err := NewAdjuster(spec, values).Apply(schedule(1, 100))
	if !errors.Is(err, ErrUnsupportedPeriodicity) {
		t.Errorf("expected ErrUnsupportedPeriodicity, got %v", err)
	}
}

type stubProvider struct {
	values   []domain.IndexValue
	err      error
	calls    int
	tenantID string
	code     string
}

func (s *stubProvider) ListIndexValues(ctx context.Context, tenantID string, indexCode string) ([]domain.IndexValue, error) {
	s.calls++
	s.tenantID = tenantID
	s.code = indexCode
	return s.values, s.err
}

func TestLoadAdjuster(t *testing.T) {
	spec := domain.AdjustmentSpec{BaseDate: date(2024, 1, 15), IndexCode: "INCC", Periodicity: domain.PeriodicityMonthly}

	t.Run("QueriesProviderOnce", func(t *testing.T) {
		p := &stubProvider{}
		adj, err := LoadAdjuster(context.Background(), p, "tenant-001", spec)
		if err != nil {
			t.Fatalf("LoadAdjuster failed: %v", err)
		}
		if p.calls != 1 || p.tenantID != "tenant-001" || p.code != "INCC" {
			t.Errorf("unexpected provider usage: %+v", p)
		}
		if adj.Spec().IndexCode != "INCC" {
			t.Errorf("unexpected spec: %+v", adj.Spec())
		}
	})

	t.Run("PropagatesErrors", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := LoadAdjuster(context.Background(), &stubProvider{err: boom}, "tenant-001", spec)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped provider error, got %v", err)
		}
	})
}
