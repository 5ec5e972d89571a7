// SAFV - Financial simulation, valuation and anonymized benchmarking.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command safvctl runs SAFV calculations locally, without a server.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "safvctl",
		Short:         "safvctl - local payment plan simulation, valuation and benchmarking",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(valueCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "safvctl %s (%s)\n", Version, Commit)
		},
	}
}

// readJSONFile decodes a JSON document from path, or stdin when path is "-".
func readJSONFile(cmd *cobra.Command, path string, v any) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
