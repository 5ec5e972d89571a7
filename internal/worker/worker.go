// Package worker provides async benchmark ingestion for the Pro tier.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/opensource-finance/safv/internal/benchmark"
	"github.com/opensource-finance/safv/internal/domain"
)

// ErrTenantMismatch is returned when a job names a tenant other than the one it was published for.
var ErrTenantMismatch = errors.New("job tenant does not match message tenant")

// Worker ingests benchmark datasets queued on the EventBus.
type Worker struct {
	bus     domain.EventBus
	service *benchmark.Service
	limiter *rate.Limiter

	processed atomic.Int64
	failed    atomic.Int64

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all tenants via the global subscription)
	TenantIDs []string

	// JobsPerSecond caps ingestion throughput; zero or less disables throttling.
	JobsPerSecond float64
	Burst         int
}

// ConfigFrom converts the service configuration section.
func ConfigFrom(cfg domain.WorkerConfig) Config {
	return Config{
		TenantIDs:     cfg.TenantIDs,
		JobsPerSecond: cfg.JobsPerSecond,
		Burst:         cfg.Burst,
	}
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *benchmark.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing jobs for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if cfg.JobsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(cfg.JobsPerSecond), burst)
	}

	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(domain.GlobalTenantID)
	}

	started := 0
	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant worker could be started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"jobs_per_second", cfg.JobsPerSecond,
	)

	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicBenchmarkIngest, func(ctx context.Context, msg *domain.Message) error {
		return w.processJob(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("benchmark worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicBenchmarkIngest,
	)
	return nil
}

// processJob runs one queued ingestion and publishes its outcome.
func (w *Worker) processJob(ctx context.Context, subscribedTenant string, msg *domain.Message) error {
	start := time.Now()

	var job domain.BenchmarkIngestJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse benchmark job",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tenantID := job.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	if subscribedTenant != domain.GlobalTenantID && tenantID != subscribedTenant {
		w.failed.Add(1)
		return fmt.Errorf("%w: %s on %s", ErrTenantMismatch, tenantID, subscribedTenant)
	}

	traceID := job.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			w.failed.Add(1)
			return err
		}
	}

	result, err := w.service.Ingest(ctx, tenantID, job.BatchID, job.Filename, job.Content)
	if err != nil {
		w.failed.Add(1)
		slog.Warn("benchmark job failed",
			"tenant_id", tenantID,
			"batch_id", job.BatchID,
			"trace_id", traceID,
			"error", err,
		)
		w.publish(ctx, tenantID, domain.TopicBenchmarkFailed, domain.BenchmarkIngestFailure{
			TenantID: tenantID,
			BatchID:  job.BatchID,
			Error:    err.Error(),
		})
		return nil
	}

	w.processed.Add(1)
	w.publish(ctx, tenantID, domain.TopicBenchmarkIngested, result)

	slog.Info("benchmark job processed",
		"tenant_id", tenantID,
		"batch_id", job.BatchID,
		"trace_id", traceID,
		"aggregations", len(result.Aggregations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) publish(ctx context.Context, tenantID, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode job outcome", "topic", topic, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish job outcome",
			"tenant_id", tenantID,
			"topic", topic,
			"error", err,
		)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
