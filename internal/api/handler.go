package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/opensource-finance/safv/internal/benchmark"
	"github.com/opensource-finance/safv/internal/bus"
	"github.com/opensource-finance/safv/internal/domain"
	"github.com/opensource-finance/safv/internal/finance"
	"github.com/opensource-finance/safv/internal/indexes"
	"github.com/opensource-finance/safv/internal/repository"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	benchmarks *benchmark.Service
	indexes    *indexes.Service
	defaults   domain.FinancialDefaults
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, opts Options) *Handler {
	var benchRepo domain.BenchmarkRepository
	if repo != nil {
		benchRepo = repo
	}

	defaults := opts.Financial
	if defaults.PeriodsPerYear <= 0 {
		defaults.PeriodsPerYear = domain.DefaultPeriodsPerYear
	}

	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		benchmarks: benchmark.NewService(benchRepo),
		indexes:    indexes.NewService(repo, cache, opts.IndexTTL),
		defaults:   defaults,
		version:    opts.Version,
	}
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Detail    any    `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	if err := h.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// requireRepo answers 503 when no repository is wired.
func (h *Handler) requireRepo(w http.ResponseWriter, r *http.Request) bool {
	if h.repo == nil {
		writeError(w, r, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: GetRequestID(r.Context()),
	})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, bus.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, indexes.ErrInvalidValue),
		errors.Is(err, finance.ErrUnsupportedPeriodicity),
		errors.Is(err, benchmark.ErrDatasetTooLarge),
		errors.Is(err, benchmark.ErrUnsupportedFormat),
		errors.Is(err, benchmark.ErrFormatUnavailable),
		errors.Is(err, benchmark.ErrMalformedDataset):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes err with its mapped status. Unexpected errors are logged and masked.
func handleError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed",
			"tenant_id", GetTenantID(r.Context()),
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, r, status, "internal server error")
		return
	}
	writeError(w, r, status, err.Error())
}
