package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/opensource-finance/safv/internal/benchmark"
	"github.com/opensource-finance/safv/internal/domain"
)

const (
	defaultDatasetName = "dataset.bin"

	// multipartOverhead leaves room for boundaries and part headers around the file.
	multipartOverhead = 64 << 10
)

// BenchmarkAggregationsResponse lists the stored aggregations of a batch.
type BenchmarkAggregationsResponse struct {
	TenantID     string                       `json:"tenantId"`
	BatchID      string                       `json:"batchId"`
	Aggregations []domain.AggregatedBenchmark `json:"aggregations"`
}

// BenchmarkQueuedResponse acknowledges an asynchronous ingestion.
type BenchmarkQueuedResponse struct {
	TenantID string `json:"tenantId"`
	BatchID  string `json:"batchId"`
	Status   string `json:"status"`
}

// readDataset extracts the uploaded dataset: a multipart "file" part or the raw body.
func readDataset(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := int64(benchmark.MaxDatasetSize) + 1
	filename := r.URL.Query().Get("filename")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return "", nil, benchmark.ErrDatasetTooLarge
			}
			return "", nil, badRequest("multipart body needs a file part")
		}
		defer file.Close()

		content, err := io.ReadAll(io.LimitReader(file, limit))
		if err != nil {
			return "", nil, err
		}
		if header.Filename != "" {
			filename = header.Filename
		}
		if filename == "" {
			filename = defaultDatasetName
		}
		return filename, content, nil
	}

	content, err := io.ReadAll(io.LimitReader(r.Body, limit))
	if err != nil {
		return "", nil, err
	}
	if len(content) == 0 {
		return "", nil, badRequest("file content required")
	}
	if filename == "" {
		filename = defaultDatasetName
	}
	return filename, content, nil
}

// IngestBenchmark handles POST /t/{tenantID}/benchmarking/batches/{batchID}/ingest.
// With ?async=true the dataset is queued on the event bus and 202 is returned.
func (h *Handler) IngestBenchmark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := strings.TrimSpace(chi.URLParam(r, "batchID"))
	if batchID == "" {
		writeError(w, r, http.StatusBadRequest, "batch id is required")
		return
	}

	filename, content, err := readDataset(w, r)
	if err != nil {
		var re *requestError
		if errors.As(err, &re) {
			writeError(w, r, re.status, re.message)
			return
		}
		handleError(w, r, "read dataset", err)
		return
	}

	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	if async {
		h.queueBenchmark(w, r, tenantID, batchID, filename, content)
		return
	}

	result, err := h.benchmarks.Ingest(ctx, tenantID, batchID, filename, content)
	if err != nil {
		handleError(w, r, "benchmark ingestion", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) queueBenchmark(w http.ResponseWriter, r *http.Request, tenantID, batchID, filename string, content []byte) {
	if h.bus == nil {
		writeError(w, r, http.StatusServiceUnavailable, "asynchronous ingestion not available")
		return
	}
	if len(content) > benchmark.MaxDatasetSize {
		handleError(w, r, "queue benchmark", benchmark.ErrDatasetTooLarge)
		return
	}
	if _, err := benchmark.DetectFormat(filename); err != nil {
		handleError(w, r, "queue benchmark", err)
		return
	}

	payload, err := json.Marshal(domain.BenchmarkIngestJob{
		TenantID: tenantID,
		BatchID:  batchID,
		Filename: filename,
		Content:  content,
		TraceID:  GetTraceID(r.Context()),
	})
	if err != nil {
		handleError(w, r, "encode benchmark job", err)
		return
	}

	if err := h.bus.Publish(r.Context(), tenantID, domain.TopicBenchmarkIngest, payload); err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			writeError(w, r, http.StatusServiceUnavailable, "failed to queue ingestion")
			return
		}
		handleError(w, r, "queue benchmark", err)
		return
	}

	writeJSON(w, http.StatusAccepted, BenchmarkQueuedResponse{
		TenantID: tenantID,
		BatchID:  batchID,
		Status:   "queued",
	})
}

// ListBenchmarkAggregations handles GET /t/{tenantID}/benchmarking/batches/{batchID}/aggregations.
func (h *Handler) ListBenchmarkAggregations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "batchID")

	aggs, err := h.benchmarks.ListAggregations(ctx, tenantID, batchID)
	if err != nil {
		handleError(w, r, "list benchmark aggregations", err)
		return
	}
	writeJSON(w, http.StatusOK, BenchmarkAggregationsResponse{
		TenantID:     tenantID,
		BatchID:      batchID,
		Aggregations: aggs,
	})
}
