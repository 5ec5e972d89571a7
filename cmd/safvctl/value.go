package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/safv/internal/api"
	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/finance"
)

type valuationFile struct {
	PeriodsPerYear int                 `json:"periodsPerYear"`
	Cashflows      []api.CashflowInput `json:"cashflows"`
	Scenarios      []api.ScenarioInput `json:"scenarios"`
}

func valueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value [snapshot.json|-]",
		Short: "Value a cashflow snapshot under one or more scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in valuationFile
			if err := readJSONFile(cmd, args[0], &in); err != nil {
				return err
			}
			if len(in.Scenarios) == 0 {
				return errors.New("at least one scenario is required")
			}

			defaultMult, _ := cmd.Flags().GetFloat64("default-multiplier")
			cancelMult, _ := cmd.Flags().GetFloat64("cancellation-multiplier")
			periods := in.PeriodsPerYear
			if periods <= 0 {
				periods = domain.DefaultPeriodsPerYear
			}

			cashflows := make([]domain.Cashflow, len(in.Cashflows))
			for i, cf := range in.Cashflows {
				if cf.DueDate.IsZero() {
					return fmt.Errorf("cashflows[%d].dueDate is required", i)
				}
				cashflows[i] = domain.Cashflow{
					DueDate:                 cf.DueDate.Time,
					Amount:                  cf.Amount,
					PaidAmount:              cf.PaidAmount,
					ProbabilityDefault:      cf.ProbabilityDefault,
					ProbabilityCancellation: cf.ProbabilityCancellation,
				}
			}

			results := make([]api.ScenarioResult, 0, len(in.Scenarios))
			for _, sc := range in.Scenarios {
				scenario := domain.PortfolioScenario{
					Code:                   sc.Code,
					DiscountRate:           sc.DiscountRate,
					DefaultMultiplier:      defaultMult,
					CancellationMultiplier: cancelMult,
				}
				if sc.DefaultMultiplier != nil {
					scenario.DefaultMultiplier = *sc.DefaultMultiplier
				}
				if sc.CancellationMultiplier != nil {
					scenario.CancellationMultiplier = *sc.CancellationMultiplier
				}
				results = append(results, api.ScenarioResult{
					Code:           sc.Code,
					PortfolioValue: finance.EvaluatePortfolio(cashflows, scenario, periods),
				})
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().Float64("default-multiplier", 1.0, "Default multiplier for scenarios that omit one")
	cmd.Flags().Float64("cancellation-multiplier", 1.0, "Cancellation multiplier for scenarios that omit one")

	return cmd
}
