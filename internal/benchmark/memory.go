package benchmark

import (
	"context"
	"sync"

	"github.com/opensource-finance/safv/internal/domain"
)

type batchKey struct {
	tenantID, batchID string
}

// MemoryRepository keeps benchmark aggregations in process memory.
// It is used by the CLI and tests, and is safe for concurrent use.
type MemoryRepository struct {
	mu      sync.RWMutex
	batches map[batchKey][]domain.AggregatedBenchmark
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{batches: make(map[batchKey][]domain.AggregatedBenchmark)}
}

// StoreBenchmark replaces the aggregations of the result's batch.
func (r *MemoryRepository) StoreBenchmark(ctx context.Context, result *domain.BenchmarkIngestResult) error {
	aggs := make([]domain.AggregatedBenchmark, len(result.Aggregations))
	copy(aggs, result.Aggregations)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[batchKey{result.TenantID, result.BatchID}] = aggs
	return nil
}

// ListBenchmarkAggregations returns a copy of a batch's aggregations, empty when unknown.
func (r *MemoryRepository) ListBenchmarkAggregations(ctx context.Context, tenantID string, batchID string) ([]domain.AggregatedBenchmark, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.batches[batchKey{tenantID, batchID}]
	out := make([]domain.AggregatedBenchmark, len(stored))
	copy(out, stored)
	return out, nil
}

// Clear drops every stored batch.
func (r *MemoryRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = make(map[batchKey][]domain.AggregatedBenchmark)
}
