package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/opensource-finance/safv/internal/benchmark"
	"github.com/opensource-finance/safv/internal/bus"
	"github.com/opensource-finance/safv/internal/domain"
)

const sampleCSV = "metric_code,segment,region,value\n" +
	"DEFAULT_RATE,PME,SUL,1.5\n" +
	"DEFAULT_RATE,PME Varejo,Sudeste,2.5\n" +
	"DEFAULT_RATE,PMEs,SUL,3.5\n" +
	"DEFAULT_RATE,PME,SUL,4.5\n" +
	"DEFAULT_RATE,,SUL,x\n"

func publishJob(t *testing.T, b domain.EventBus, tenantID string, job domain.BenchmarkIngestJob) {
	t.Helper()
	payload, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := b.Publish(context.Background(), tenantID, domain.TopicBenchmarkIngest, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	repo := benchmark.NewMemoryRepository()
	service := benchmark.NewService(repo)

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, service)
		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 {
			t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicBenchmarkIngest {
			t.Errorf("unexpected topic %q", stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("IngestJob", func(t *testing.T) {
		w := NewWorker(eventBus, service)
		w.Start(Config{TenantIDs: []string{"tenant-test"}})
		defer w.Stop()

		var received atomic.Bool
		var resultPayload atomic.Value

		eventBus.Subscribe(context.Background(), "tenant-test", domain.TopicBenchmarkIngested, func(ctx context.Context, msg *domain.Message) error {
			resultPayload.Store(msg.Payload)
			received.Store(true)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		publishJob(t, eventBus, "tenant-test", domain.BenchmarkIngestJob{
			TenantID: "tenant-test",
			BatchID:  "batch-001",
			Filename: "data.csv",
			Content:  []byte(sampleCSV),
			TraceID:  "trace-001",
		})

		time.Sleep(100 * time.Millisecond)

		if !received.Load() {
			t.Fatal("expected ingestion result to be published")
		}

		var result domain.BenchmarkIngestResult
		if err := json.Unmarshal(resultPayload.Load().([]byte), &result); err != nil {
			t.Fatalf("failed to parse result: %v", err)
		}
		if result.BatchID != "batch-001" || result.TotalRows != 5 || result.DiscardedRows != 1 {
			t.Errorf("unexpected result %+v", result)
		}

		stored, _ := repo.ListBenchmarkAggregations(context.Background(), "tenant-test", "batch-001")
		if len(stored) != 1 || stored[0].Count != 4 {
			t.Errorf("expected one stored group of 4, got %+v", stored)
		}
		if got := w.GetStats().Processed; got != 1 {
			t.Errorf("expected 1 processed job, got %d", got)
		}
	})

	t.Run("FailedJobPublished", func(t *testing.T) {
		w := NewWorker(eventBus, service)
		w.Start(Config{TenantIDs: []string{"tenant-fail"}})
		defer w.Stop()

		var failure atomic.Value
		eventBus.Subscribe(context.Background(), "tenant-fail", domain.TopicBenchmarkFailed, func(ctx context.Context, msg *domain.Message) error {
			failure.Store(msg.Payload)
			return nil
		})

		time.Sleep(50 * time.Millisecond)

		publishJob(t, eventBus, "tenant-fail", domain.BenchmarkIngestJob{
			TenantID: "tenant-fail",
			BatchID:  "batch-pdf",
			Filename: "report.pdf",
			Content:  []byte("%PDF"),
		})

		time.Sleep(100 * time.Millisecond)

		payload, ok := failure.Load().([]byte)
		if !ok {
			t.Fatal("expected failure to be published")
		}
		var f domain.BenchmarkIngestFailure
		if err := json.Unmarshal(payload, &f); err != nil {
			t.Fatalf("failed to parse failure: %v", err)
		}
		if f.BatchID != "batch-pdf" || f.Error == "" {
			t.Errorf("unexpected failure %+v", f)
		}
		if got := w.GetStats().Failed; got != 1 {
			t.Errorf("expected 1 failed job, got %d", got)
		}
	})

	t.Run("GlobalWorker", func(t *testing.T) {
		w := NewWorker(eventBus, service)
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		time.Sleep(50 * time.Millisecond)

		publishJob(t, eventBus, "tenant-x", domain.BenchmarkIngestJob{
			BatchID:  "batch-x",
			Filename: "x.csv",
			Content:  []byte(sampleCSV),
		})

		time.Sleep(100 * time.Millisecond)

		stored, _ := repo.ListBenchmarkAggregations(context.Background(), "tenant-x", "batch-x")
		if len(stored) != 1 {
			t.Errorf("expected global worker to ingest for message tenant, got %+v", stored)
		}
	})

	t.Run("MultiTenant", func(t *testing.T) {
		w := NewWorker(eventBus, service)
		w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}})
		defer w.Stop()

		if stats := w.GetStats(); stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
		}
	})
}

func TestProcessJobTenantMismatch(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, benchmark.NewService(nil))
	payload, _ := json.Marshal(domain.BenchmarkIngestJob{TenantID: "intruder", BatchID: "b"})

	err := w.processJob(context.Background(), "tenant-001", &domain.Message{ID: "m1", TenantID: "tenant-001", Payload: payload})
	if !errors.Is(err, ErrTenantMismatch) {
		t.Errorf("expected ErrTenantMismatch, got %v", err)
	}
}

func TestProcessJobBadPayload(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, benchmark.NewService(nil))
	if err := w.processJob(context.Background(), "tenant-001", &domain.Message{ID: "m1", Payload: []byte("{")}); err == nil {
		t.Error("expected decode error")
	}
	if got := w.GetStats().Failed; got != 1 {
		t.Errorf("expected 1 failed job, got %d", got)
	}
}

func TestThrottle(t *testing.T) {
	w := NewWorker(bus.NewChannelBus(10), benchmark.NewService(nil))
	if err := w.Start(Config{TenantIDs: []string{"t"}, JobsPerSecond: 2}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if w.limiter == nil {
		t.Fatal("expected limiter to be configured")
	}
	if w.limiter.Burst() != 1 {
		t.Errorf("expected burst to default to 1, got %d", w.limiter.Burst())
	}

	cfg := ConfigFrom(domain.WorkerConfig{TenantIDs: []string{"a"}, JobsPerSecond: 3, Burst: 4})
	if cfg.JobsPerSecond != 3 || cfg.Burst != 4 || len(cfg.TenantIDs) != 1 {
		t.Errorf("unexpected config %+v", cfg)
	}
}
