package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "safv-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("IndexValues", func(t *testing.T) {
		values, err := repo.UpsertIndexValues(ctx, tenantID, "IPCA", []domain.IndexValue{
			{ReferenceDate: time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC), Value: 1.02},
			{ReferenceDate: month(2024, 1), Value: 1.01},
		})
		if err != nil {
			t.Fatalf("UpsertIndexValues failed: %v", err)
		}
		if len(values) != 2 {
			t.Fatalf("expected 2 values, got %d", len(values))
		}
		if !values[0].ReferenceDate.Equal(month(2024, 1)) || !values[1].ReferenceDate.Equal(month(2024, 3)) {
			t.Errorf("expected ordered first-of-month dates, got %v and %v", values[0].ReferenceDate, values[1].ReferenceDate)
		}

		// Same month again replaces the value.
		values, err = repo.UpsertIndexValues(ctx, tenantID, "IPCA", []domain.IndexValue{
			{ReferenceDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Value: 1.03},
		})
		if err != nil {
			t.Fatalf("UpsertIndexValues failed: %v", err)
		}
		if len(values) != 2 || values[1].Value != 1.03 {
			t.Errorf("expected March to be replaced, got %+v", values)
		}

		other, err := repo.ListIndexValues(ctx, "tenant-002", "IPCA")
		if err != nil {
			t.Fatalf("ListIndexValues failed: %v", err)
		}
		if other == nil || len(other) != 0 {
			t.Errorf("expected empty list for another tenant, got %#v", other)
		}
	})

	t.Run("FinancialSettings", func(t *testing.T) {
		_, err := repo.GetFinancialSettings(ctx, tenantID)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound before save, got %v", err)
		}

		settings := &domain.FinancialSettings{PeriodsPerYear: 12, DefaultMultiplier: 1.5, CancellationMultiplier: 0.8}
		if err := repo.SaveFinancialSettings(ctx, tenantID, settings); err != nil {
			t.Fatalf("SaveFinancialSettings failed: %v", err)
		}
		settings.DefaultMultiplier = 2
		if err := repo.SaveFinancialSettings(ctx, tenantID, settings); err != nil {
			t.Fatalf("SaveFinancialSettings update failed: %v", err)
		}

		got, err := repo.GetFinancialSettings(ctx, tenantID)
		if err != nil {
			t.Fatalf("GetFinancialSettings failed: %v", err)
		}
		if got.TenantID != tenantID || got.DefaultMultiplier != 2 || got.CancellationMultiplier != 0.8 {
			t.Errorf("unexpected settings %+v", got)
		}

		if err := repo.SaveFinancialSettings(ctx, tenantID, &domain.FinancialSettings{}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for zero periodsPerYear, got %v", err)
		}
	})

	t.Run("PlanTemplates", func(t *testing.T) {
		tpl := &domain.PlanTemplate{
			ID:           "tpl-001",
			ProductCode:  "LOT-12X",
			Name:         "Lot 12x",
			Principal:    12000,
			DiscountRate: 0.12,
			Active:       true,
			Installments: []domain.Installment{{Period: 2, Amount: 500}, {Period: 1, Amount: 500}},
		}
		if err := repo.SavePlanTemplate(ctx, tenantID, tpl); err != nil {
			t.Fatalf("SavePlanTemplate failed: %v", err)
		}

		got, err := repo.GetPlanTemplate(ctx, tenantID, "tpl-001")
		if err != nil {
			t.Fatalf("GetPlanTemplate failed: %v", err)
		}
		if got.Name != "Lot 12x" || got.Principal != 12000 || !got.Active {
			t.Errorf("unexpected template %+v", got)
		}
		if len(got.Installments) != 2 || got.Installments[0].Period != 1 {
			t.Errorf("expected installments ordered by period, got %+v", got.Installments)
		}

		byCode, err := repo.ListPlanTemplatesByProductCodes(ctx, tenantID, []string{"  lot-12x ", ""})
		if err != nil {
			t.Fatalf("ListPlanTemplatesByProductCodes failed: %v", err)
		}
		if len(byCode) != 1 || byCode[0].ID != "tpl-001" {
			t.Errorf("expected case-insensitive product code match, got %+v", byCode)
		}

		inactive := &domain.PlanTemplate{ID: "tpl-002", ProductCode: "OLD", Principal: 1, Active: false}
		if err := repo.SavePlanTemplate(ctx, tenantID, inactive); err != nil {
			t.Fatalf("SavePlanTemplate failed: %v", err)
		}
		byID, err := repo.ListPlanTemplatesByIDs(ctx, tenantID, []string{"tpl-001", "tpl-002", "missing"})
		if err != nil {
			t.Fatalf("ListPlanTemplatesByIDs failed: %v", err)
		}
		if len(byID) != 1 || byID[0].ID != "tpl-001" {
			t.Errorf("expected only the active template, got %+v", byID)
		}

		all, err := repo.ListPlanTemplates(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListPlanTemplates failed: %v", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 templates, got %d", len(all))
		}

		// Replacing installments
		tpl.Installments = []domain.Installment{{Period: 6, Amount: 1000}}
		if err := repo.SavePlanTemplate(ctx, tenantID, tpl); err != nil {
			t.Fatalf("SavePlanTemplate update failed: %v", err)
		}
		got, _ = repo.GetPlanTemplate(ctx, tenantID, "tpl-001")
		if len(got.Installments) != 1 || got.Installments[0].Period != 6 {
			t.Errorf("expected installments to be replaced, got %+v", got.Installments)
		}
	})

	t.Run("PlanTemplateConflicts", func(t *testing.T) {
		dup := &domain.PlanTemplate{ID: "tpl-003", ProductCode: "lot-12x", Principal: 1}
		if err := repo.SavePlanTemplate(ctx, tenantID, dup); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate product code, got %v", err)
		}

		stolen := &domain.PlanTemplate{ID: "tpl-001", ProductCode: "MINE", Principal: 1}
		if err := repo.SavePlanTemplate(ctx, "tenant-002", stolen); !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for another tenant's ID, got %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetPlanTemplate(ctx, "tenant-002", "tpl-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("Benchmarks", func(t *testing.T) {
		result := &domain.BenchmarkIngestResult{
			TenantID:      tenantID,
			BatchID:       "batch-001",
			TotalRows:     10,
			DiscardedRows: 1,
			Aggregations: []domain.AggregatedBenchmark{
				{MetricCode: "Z", SegmentBucket: "PME*", RegionBucket: "SU*", Count: 5, AverageValue: 2.5, MinValue: 1, MaxValue: 4},
				{MetricCode: "A", SegmentBucket: "PME*", RegionBucket: "SU*", Count: 4, AverageValue: 1, MinValue: 1, MaxValue: 1},
			},
		}
		if err := repo.StoreBenchmark(ctx, result); err != nil {
			t.Fatalf("StoreBenchmark failed: %v", err)
		}

		aggs, err := repo.ListBenchmarkAggregations(ctx, tenantID, "batch-001")
		if err != nil {
			t.Fatalf("ListBenchmarkAggregations failed: %v", err)
		}
		if len(aggs) != 2 || aggs[0] != result.Aggregations[0] || aggs[1] != result.Aggregations[1] {
			t.Errorf("expected aggregations in stored order, got %+v", aggs)
		}

		result.Aggregations = result.Aggregations[1:]
		if err := repo.StoreBenchmark(ctx, result); err != nil {
			t.Fatalf("StoreBenchmark replace failed: %v", err)
		}
		aggs, _ = repo.ListBenchmarkAggregations(ctx, tenantID, "batch-001")
		if len(aggs) != 1 || aggs[0].MetricCode != "A" {
			t.Errorf("expected replaced aggregations, got %+v", aggs)
		}

		empty, err := repo.ListBenchmarkAggregations(ctx, "tenant-002", "batch-001")
		if err != nil || empty == nil || len(empty) != 0 {
			t.Errorf("expected empty list for another tenant, got %#v, %v", empty, err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if _, err := repo.ListIndexValues(ctx, "", "IPCA"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.SavePlanTemplate(ctx, "", &domain.PlanTemplate{ID: "x", ProductCode: "x"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.StoreBenchmark(ctx, &domain.BenchmarkIngestResult{BatchID: "b"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t WHERE id IN (" + placeholders(3) + ")", "SELECT * FROM t WHERE id IN ($1, $2, $3)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("expected sqlite queries untouched, got %q", got)
	}
}

func TestFirstOfMonth(t *testing.T) {
	in := time.Date(2024, 2, 29, 23, 59, 0, 0, time.FixedZone("BRT", -3*3600))
	if got := FirstOfMonth(in); !got.Equal(month(2024, 2)) {
		t.Errorf("expected 2024-02-01, got %v", got)
	}
}
