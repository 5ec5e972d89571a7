// Package indexes serves tenant financial index tables from the cache,
// falling back to the repository.
package indexes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

// DefaultTTL is used when no cache TTL is configured.
const DefaultTTL = 10 * time.Minute

// ErrInvalidValue is returned for index values that cannot be used as factors.
var ErrInvalidValue = errors.New("invalid index value")

// Store is the persistence a Service reads from and writes through.
type Store interface {
	ListIndexValues(ctx context.Context, tenantID string, indexCode string) ([]domain.IndexValue, error)
	UpsertIndexValues(ctx context.Context, tenantID string, indexCode string, values []domain.IndexValue) ([]domain.IndexValue, error)
}

// Service is a cache-aside index value provider.
type Service struct {
	store Store
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates an index service. A nil cache reads straight from the store.
func NewService(store Store, cache domain.Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, cache: cache, ttl: ttl}
}

// NormalizeCode upper-cases and trims an index code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ListIndexValues returns the index table ordered by reference date.
// Cache failures are logged and never fail the read.
func (s *Service) ListIndexValues(ctx context.Context, tenantID string, indexCode string) ([]domain.IndexValue, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	code := NormalizeCode(indexCode)

	if s.cache != nil {
		values, err := s.cache.GetIndexValues(ctx, tenantID, code)
		if err != nil {
			slog.Warn("index cache read failed",
				"tenant_id", tenantID,
				"index_code", code,
				"error", err,
			)
		} else if values != nil {
			return values, nil
		}
	}

	values, err := s.store.ListIndexValues(ctx, tenantID, code)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, tenantID, code, values)
	return values, nil
}

// Upsert validates and stores index values, then refreshes the cached table.
func (s *Service) Upsert(ctx context.Context, tenantID string, indexCode string, values []domain.IndexValue) ([]domain.IndexValue, error) {
	code := NormalizeCode(indexCode)
	if code == "" {
		return nil, fmt.Errorf("%w: index code is required", ErrInvalidValue)
	}
	for _, v := range values {
		if v.ReferenceDate.IsZero() {
			return nil, fmt.Errorf("%w: referenceDate is required", ErrInvalidValue)
		}
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) || v.Value <= 0 {
			return nil, fmt.Errorf("%w: value for %s must be a positive factor",
				ErrInvalidValue, v.ReferenceDate.Format("2006-01"))
		}
	}

	stored, err := s.store.UpsertIndexValues(ctx, tenantID, code, values)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, tenantID, domain.IndexCacheKey(code)); err != nil {
			slog.Warn("index cache invalidation failed",
				"tenant_id", tenantID,
				"index_code", code,
				"error", err,
			)
		}
	}
	s.fill(ctx, tenantID, code, stored)

	slog.Info("index values upserted",
		"tenant_id", tenantID,
		"index_code", code,
		"count", len(values),
	)
	return stored, nil
}

func (s *Service) fill(ctx context.Context, tenantID, code string, values []domain.IndexValue) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetIndexValues(ctx, tenantID, code, values, s.ttl); err != nil {
		slog.Warn("index cache write failed",
			"tenant_id", tenantID,
			"index_code", code,
			"error", err,
		)
	}
}
