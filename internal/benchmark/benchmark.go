// Package benchmark ingests tenant benchmarking datasets and publishes
// k-anonymous aggregates of them.
//
// A dataset is a CSV or XLSX table with the columns metric_code, segment,
// region and value. Rows are validated, their segment and region are
// coarsened into buckets, and only groups with at least MinGroupSize rows
// are ever returned or stored.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/safv/internal/domain"
)

// MaxDatasetSize is the largest accepted dataset, in bytes.
const MaxDatasetSize = 2 * 1024 * 1024

var (
	// ErrDatasetTooLarge is returned for datasets above MaxDatasetSize.
	ErrDatasetTooLarge = errors.New("dataset exceeds maximum size of 2MB")

	// ErrUnsupportedFormat is returned when the filename extension is neither .csv nor .xlsx.
	ErrUnsupportedFormat = errors.New("unsupported file format, use CSV or XLSX")

	// ErrFormatUnavailable is returned for spreadsheets when no spreadsheet parser is configured.
	ErrFormatUnavailable = errors.New("spreadsheet support is not available")

	// ErrMalformedDataset is returned when the file cannot be decoded at all.
	ErrMalformedDataset = errors.New("malformed dataset")

	// ErrInvalidRow marks a row that is counted as discarded.
	ErrInvalidRow = errors.New("invalid row")
)

var tracer = otel.Tracer("safv-benchmark")

// Format is a supported dataset file format.
type Format int

const (
	FormatCSV Format = iota + 1
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// DetectFormat maps a filename to its format using the case-insensitive extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

// Option configures a Service.
type Option func(*Service)

// WithSpreadsheetParser sets the XLSX parser. Passing nil disables spreadsheet ingestion.
func WithSpreadsheetParser(p SpreadsheetParser) Option {
	return func(s *Service) {
		s.spreadsheet = p
	}
}

// WithClock overrides the ingestion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service runs dataset ingestion and serves stored aggregations.
type Service struct {
	repo        domain.BenchmarkRepository
	spreadsheet SpreadsheetParser
	now         func() time.Time
}

// NewService creates a benchmarking service. A nil repo falls back to a MemoryRepository.
func NewService(repo domain.BenchmarkRepository, opts ...Option) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	s := &Service{
		repo:        repo,
		spreadsheet: ExcelParser{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest parses, validates, buckets and aggregates a dataset, then stores the
// result under (tenantID, batchID), replacing any earlier ingestion of that batch.
// Invalid rows never fail the call; they are reported in DiscardedRows.
func (s *Service) Ingest(ctx context.Context, tenantID, batchID, filename string, content []byte) (*domain.BenchmarkIngestResult, error) {
	if tenantID == "" || batchID == "" {
		return nil, fmt.Errorf("tenantID and batchID are required")
	}

	ctx, span := tracer.Start(ctx, "benchmark.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("batch_id", batchID),
		attribute.Int("dataset_bytes", len(content)),
	)

	result, err := s.ingest(ctx, tenantID, batchID, filename, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("total_rows", result.TotalRows),
		attribute.Int("discarded_rows", result.DiscardedRows),
		attribute.Int("groups", len(result.Aggregations)),
	)
	slog.Info("benchmark batch ingested",
		"tenant_id", tenantID,
		"batch_id", batchID,
		"total_rows", result.TotalRows,
		"discarded_rows", result.DiscardedRows,
		"groups", len(result.Aggregations),
	)
	return result, nil
}

func (s *Service) ingest(ctx context.Context, tenantID, batchID, filename string, content []byte) (*domain.BenchmarkIngestResult, error) {
	if len(content) > MaxDatasetSize {
		return nil, ErrDatasetTooLarge
	}

	rows, err := s.parse(filename, content)
	if err != nil {
		return nil, err
	}

	records := make([]domain.BenchmarkRecord, 0, len(rows))
	discarded := 0
	for i, row := range rows {
		rec, err := normalizeRow(row)
		if err != nil {
			slog.Debug("benchmark row discarded", "batch_id", batchID, "row", i+1, "error", err)
			discarded++
			continue
		}
		records = append(records, rec)
	}

	result := &domain.BenchmarkIngestResult{
		TenantID:      tenantID,
		BatchID:       batchID,
		TotalRows:     len(rows),
		DiscardedRows: discarded,
		Aggregations:  Aggregate(records),
		IngestedAt:    s.now().UTC(),
	}

	if err := s.repo.StoreBenchmark(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to store benchmark batch: %w", err)
	}
	return result, nil
}

func (s *Service) parse(filename string, content []byte) ([]Row, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		return ParseCSV(content)
	case FormatXLSX:
		if s.spreadsheet == nil {
			return nil, ErrFormatUnavailable
		}
		return s.spreadsheet.Parse(content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// ListAggregations returns the stored aggregations of a batch, empty when unknown.
func (s *Service) ListAggregations(ctx context.Context, tenantID, batchID string) ([]domain.AggregatedBenchmark, error) {
	if tenantID == "" || batchID == "" {
		return nil, fmt.Errorf("tenantID and batchID are required")
	}
	aggs, err := s.repo.ListBenchmarkAggregations(ctx, tenantID, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmark aggregations: %w", err)
	}
	if aggs == nil {
		aggs = []domain.AggregatedBenchmark{}
	}
	return aggs, nil
}
