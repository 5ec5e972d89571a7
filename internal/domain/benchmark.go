package domain

import (
	"context"
	"time"
)

// BenchmarkRecord is a normalized, bucketed dataset row. It only lives until aggregation.
type BenchmarkRecord struct {
	MetricCode string
	Segment    string
	Region     string
	Value      float64
}

// AggregatedBenchmark is the anonymized statistic of one (metric, segment, region) group.
type AggregatedBenchmark struct {
	MetricCode    string  `json:"metricCode"`
	SegmentBucket string  `json:"segmentBucket"`
	RegionBucket  string  `json:"regionBucket"`
	Count         int     `json:"count"`
	AverageValue  float64 `json:"averageValue"`
	MinValue      float64 `json:"minValue"`
	MaxValue      float64 `json:"maxValue"`
}

// BenchmarkIngestResult is the outcome of one ingestion call.
type BenchmarkIngestResult struct {
	TenantID      string                `json:"tenantId"`
	BatchID       string                `json:"batchId"`
	TotalRows     int                   `json:"totalRows"`
	DiscardedRows int                   `json:"discardedRows"`
	Aggregations  []AggregatedBenchmark `json:"aggregations"`
	IngestedAt    time.Time             `json:"ingestedAt,omitempty"`
}

// BenchmarkRepository stores ingestion results keyed by (tenantID, batchID).
// Storing a batch again replaces its aggregations.
type BenchmarkRepository interface {
	StoreBenchmark(ctx context.Context, result *BenchmarkIngestResult) error
	ListBenchmarkAggregations(ctx context.Context, tenantID string, batchID string) ([]AggregatedBenchmark, error)
}

// BenchmarkIngestJob is the bus payload for asynchronous ingestion.
type BenchmarkIngestJob struct {
	TenantID string `json:"tenantId"`
	BatchID  string `json:"batchId"`
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
	TraceID  string `json:"traceId,omitempty"`
}

// BenchmarkIngestFailure is published when an asynchronous ingestion job fails.
type BenchmarkIngestFailure struct {
	TenantID string `json:"tenantId"`
	BatchID  string `json:"batchId"`
	Error    string `json:"error"`
}
