package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/safv/internal/benchmark"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [dataset.csv|dataset.xlsx]",
		Short: "Aggregate a benchmarking dataset locally",
		Long: `Parse a CSV or XLSX dataset, bucket segments and regions, and print
the aggregated groups that meet the minimum group size. Nothing is stored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read dataset: %w", err)
			}

			tenantID, _ := cmd.Flags().GetString("tenant")
			batchID, _ := cmd.Flags().GetString("batch")
			asJSON, _ := cmd.Flags().GetBool("json")

			svc := benchmark.NewService(benchmark.NewMemoryRepository())
			result, err := svc.Ingest(cmd.Context(), tenantID, batchID, filepath.Base(args[0]), content)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, result)
			}

			fmt.Fprintf(out, "Rows: %d total, %d discarded\n\n", result.TotalRows, result.DiscardedRows)
			if len(result.Aggregations) == 0 {
				fmt.Fprintln(out, "No group reached the minimum size.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METRIC\tSEGMENT\tREGION\tCOUNT\tAVG\tMIN\tMAX")
			for _, a := range result.Aggregations {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.2f\t%.2f\t%.2f\n",
					a.MetricCode, a.SegmentBucket, a.RegionBucket, a.Count, a.AverageValue, a.MinValue, a.MaxValue)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringP("tenant", "t", "local", "Tenant ID recorded on the result")
	cmd.Flags().StringP("batch", "b", "local", "Batch ID recorded on the result")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}
