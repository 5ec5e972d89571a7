package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/safv/internal/api"
	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/finance"
	"github.com/opensource-finance/safv/internal/indexes"
)

type indexValueInput struct {
	ReferenceDate api.Date `json:"referenceDate"`
	Value         float64  `json:"value"`
}

type adjustmentInput struct {
	BaseDate    api.Date           `json:"baseDate"`
	Index       string             `json:"index"`
	Periodicity domain.Periodicity `json:"periodicity"`
	AddonRate   float64            `json:"addonRate"`
}

// simulationFile is the input of "safvctl simulate". Index values are
// supplied inline since there is no tenant store to read them from.
type simulationFile struct {
	Principal      float64              `json:"principal"`
	DiscountRate   float64              `json:"discountRate"`
	PeriodsPerYear int                  `json:"periodsPerYear"`
	Installments   []domain.Installment `json:"installments"`
	Adjustment     *adjustmentInput     `json:"adjustment,omitempty"`
	IndexValues    []indexValueInput    `json:"indexValues,omitempty"`
}

func (f *simulationFile) plan() (*finance.Plan, error) {
	if f.Principal <= 0 {
		return nil, errors.New("principal must be positive")
	}
	if f.DiscountRate < 0 {
		return nil, errors.New("discountRate must be non-negative")
	}
	for i, inst := range f.Installments {
		if inst.Period < 0 || inst.Amount <= 0 {
			return nil, fmt.Errorf("installments[%d]: period must be non-negative and amount positive", i)
		}
	}

	p := &finance.Plan{
		Principal:      f.Principal,
		DiscountRate:   f.DiscountRate,
		Installments:   f.Installments,
		PeriodsPerYear: f.PeriodsPerYear,
	}
	if p.PeriodsPerYear <= 0 {
		p.PeriodsPerYear = domain.DefaultPeriodsPerYear
	}

	if adj := f.Adjustment; adj != nil {
		if !adj.Periodicity.Valid() {
			return nil, fmt.Errorf("%w: %q", finance.ErrUnsupportedPeriodicity, adj.Periodicity)
		}
		values := make([]domain.IndexValue, len(f.IndexValues))
		for i, v := range f.IndexValues {
			values[i] = domain.IndexValue{ReferenceDate: v.ReferenceDate.Time, Value: v.Value}
		}
		p.Adjuster = finance.NewAdjuster(domain.AdjustmentSpec{
			BaseDate:    adj.BaseDate.Time,
			IndexCode:   indexes.NormalizeCode(adj.Index),
			Periodicity: adj.Periodicity,
			AddonRate:   adj.AddonRate,
		}, values)
	}
	return p, nil
}

func simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate [plan.json|-]",
		Short: "Compute the metrics of a payment plan",
		Long: `Compute present value, future value, payment, average installment and
mean term of a payment plan. When the plan has an adjustment, the
index-adjusted present value is reported as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in simulationFile
			if err := readJSONFile(cmd, args[0], &in); err != nil {
				return err
			}
			plan, err := in.plan()
			if err != nil {
				return err
			}
			metrics, err := plan.Metrics()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), metrics)
		},
	}
}
