package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/opensource-finance/safv/internal/api"
	"github.com/opensource-finance/safv/internal/domain"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestSimulateCommand(t *testing.T) {
	path := writeTemp(t, "plan.json", `{
		"principal": 2500,
		"discountRate": 0.12,
		"installments": [
			{"period": 0, "amount": 1000},
			{"period": 12, "amount": 1000},
			{"period": 24, "amount": 1000}
		]
	}`)

	out, err := runCmd(t, "", "simulate", path)
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	var metrics domain.SimulationMetrics
	if err := json.Unmarshal([]byte(out), &metrics); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
	if metrics.PresentValue != 2675.02 {
		t.Errorf("expected present value 2675.02, got %v", metrics.PresentValue)
	}
	if metrics.PresentValueAdjusted != nil {
		t.Error("expected no adjusted value without adjustment")
	}
}

func TestSimulateCommandStdinWithAdjustment(t *testing.T) {
	plan := `{
		"principal": 1000,
		"discountRate": 0,
		"installments": [{"period": 2, "amount": 100}],
		"adjustment": {"baseDate": "2024-01-01", "index": "ipca", "periodicity": "monthly"},
		"indexValues": [
			{"referenceDate": "2024-02-01", "value": 1.1},
			{"referenceDate": "2024-03-01", "value": 1.1}
		]
	}`

	out, err := runCmd(t, plan, "simulate", "-")
	if err != nil {
		t.Fatalf("simulate failed: %v", err)
	}
	var metrics domain.SimulationMetrics
	if err := json.Unmarshal([]byte(out), &metrics); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
	if metrics.PresentValueAdjusted == nil || *metrics.PresentValueAdjusted != 121 {
		t.Errorf("expected adjusted present value 121, got %+v", metrics.PresentValueAdjusted)
	}
}

func TestSimulateCommandRejectsInvalidPlan(t *testing.T) {
	if _, err := runCmd(t, `{"principal": 0}`, "simulate", "-"); err == nil {
		t.Error("expected error for zero principal")
	}
	if _, err := runCmd(t, "not json", "simulate", "-"); err == nil {
		t.Error("expected parse error")
	}
}

func TestValueCommand(t *testing.T) {
	path := writeTemp(t, "snapshot.json", `{
		"cashflows": [{"dueDate": "2024-02-01", "amount": 100, "probabilityDefault": 0.1}],
		"scenarios": [
			{"code": "base", "discountRate": 0},
			{"code": "stress", "discountRate": 0, "defaultMultiplier": 3}
		]
	}`)

	out, err := runCmd(t, "", "value", path, "--default-multiplier", "2")
	if err != nil {
		t.Fatalf("value failed: %v", err)
	}
	var results []api.ScenarioResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].GrossPresentValue != 80 || results[0].NetPresentValue != 60 {
		t.Errorf("expected flag multiplier on base, got %+v", results[0])
	}
	if results[1].GrossPresentValue != 70 {
		t.Errorf("expected explicit multiplier on stress, got %+v", results[1])
	}
}

func TestIngestCommand(t *testing.T) {
	path := writeTemp(t, "dataset.csv", "metric_code,segment,region,value\n"+
		"default_rate,PME Financas,Sudeste,1.5\n"+
		"DEFAULT_RATE,PME Financas,Sul,2.5\n"+
		"default_rate,,Sudeste,3.0\n"+
		"Default_Rate,PME Financas,Sudeste,3.5\n"+
		"default_rate,PME Financas,Sul,4.5\n")

	t.Run("Table", func(t *testing.T) {
		out, err := runCmd(t, "", "ingest", path)
		if err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
		if !strings.Contains(out, "5 total, 1 discarded") || !strings.Contains(out, "DEFAULT_RATE") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		out, err := runCmd(t, "", "ingest", path, "--json", "--batch", "b-7")
		if err != nil {
			t.Fatalf("ingest failed: %v", err)
		}
		var result domain.BenchmarkIngestResult
		if err := json.Unmarshal([]byte(out), &result); err != nil {
			t.Fatalf("failed to parse output %q: %v", out, err)
		}
		if result.BatchID != "b-7" || len(result.Aggregations) != 1 || result.Aggregations[0].Count != 4 {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		pdf := writeTemp(t, "dataset.pdf", "%PDF")
		if _, err := runCmd(t, "", "ingest", pdf); err == nil {
			t.Error("expected error for unsupported format")
		}
	})
}

func TestVersionCommand(t *testing.T) {
	out, err := runCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "safvctl dev") {
		t.Errorf("unexpected version output %q", out)
	}
}
