package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

// StoreBenchmark saves a batch summary and replaces its aggregations.
func (r *SQLRepository) StoreBenchmark(ctx context.Context, result *domain.BenchmarkIngestResult) error {
	if result == nil || result.TenantID == "" || result.BatchID == "" {
		return fmt.Errorf("%w: tenantID and batchID are required", ErrInvalidInput)
	}

	ingestedAt := result.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}

	batchQuery := `
		INSERT INTO benchmark_batches (tenant_id, batch_id, total_rows, discarded_rows, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, batch_id) DO UPDATE SET
			total_rows = excluded.total_rows,
			discarded_rows = excluded.discarded_rows,
			ingested_at = excluded.ingested_at
	`
	aggQuery := `
		INSERT INTO benchmark_aggregations (
			tenant_id, batch_id, position, metric_code, segment_bucket, region_bucket,
			group_count, average_value, min_value, max_value
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, r.rebind(batchQuery),
			result.TenantID, result.BatchID, result.TotalRows, result.DiscardedRows, ingestedAt,
		); err != nil {
			return fmt.Errorf("failed to save benchmark batch: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM benchmark_aggregations WHERE tenant_id = ? AND batch_id = ?`),
			result.TenantID, result.BatchID,
		); err != nil {
			return err
		}

		for i, a := range result.Aggregations {
			if _, err := tx.ExecContext(ctx, r.rebind(aggQuery),
				result.TenantID, result.BatchID, i,
				a.MetricCode, a.SegmentBucket, a.RegionBucket,
				a.Count, a.AverageValue, a.MinValue, a.MaxValue,
			); err != nil {
				return fmt.Errorf("failed to save benchmark aggregation: %w", err)
			}
		}
		return nil
	})
}

// ListBenchmarkAggregations returns a batch's aggregations in ingestion order, empty when unknown.
func (r *SQLRepository) ListBenchmarkAggregations(ctx context.Context, tenantID string, batchID string) ([]domain.AggregatedBenchmark, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT metric_code, segment_bucket, region_bucket, group_count, average_value, min_value, max_value
		FROM benchmark_aggregations
		WHERE tenant_id = ? AND batch_id = ?
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggs := []domain.AggregatedBenchmark{}
	for rows.Next() {
		var a domain.AggregatedBenchmark
		if err := rows.Scan(
			&a.MetricCode, &a.SegmentBucket, &a.RegionBucket,
			&a.Count, &a.AverageValue, &a.MinValue, &a.MaxValue,
		); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}

	return aggs, rows.Err()
}
