package indexes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/safv/internal/cache"
	"github.com/opensource-finance/safv/internal/domain"
)

type countingStore struct {
	lists  int
	tables map[string][]domain.IndexValue
	err    error
}

func (s *countingStore) ListIndexValues(ctx context.Context, tenantID, indexCode string) ([]domain.IndexValue, error) {
	s.lists++
	if s.err != nil {
		return nil, s.err
	}
	values := s.tables[tenantID+"/"+indexCode]
	if values == nil {
		values = []domain.IndexValue{}
	}
	return values, nil
}

func (s *countingStore) UpsertIndexValues(ctx context.Context, tenantID, indexCode string, values []domain.IndexValue) ([]domain.IndexValue, error) {
	if s.tables == nil {
		s.tables = map[string][]domain.IndexValue{}
	}
	key := tenantID + "/" + indexCode
	s.tables[key] = append(s.tables[key], values...)
	return s.tables[key], nil
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestListIndexValues(t *testing.T) {
	ctx := context.Background()

	t.Run("CacheAside", func(t *testing.T) {
		store := &countingStore{tables: map[string][]domain.IndexValue{
			"tenant-001/IPCA": {{ReferenceDate: month(2024, 1), Value: 1.01}},
		}}
		svc := NewService(store, cache.NewLRUCache(100), time.Minute)

		for i := 0; i < 3; i++ {
			values, err := svc.ListIndexValues(ctx, "tenant-001", " ipca ")
			if err != nil {
				t.Fatalf("ListIndexValues failed: %v", err)
			}
			if len(values) != 1 || values[0].Value != 1.01 {
				t.Fatalf("unexpected values %+v", values)
			}
		}
		if store.lists != 1 {
			t.Errorf("expected a single store read, got %d", store.lists)
		}
	})

	t.Run("EmptyTableIsCached", func(t *testing.T) {
		store := &countingStore{}
		svc := NewService(store, cache.NewLRUCache(100), time.Minute)

		svc.ListIndexValues(ctx, "tenant-001", "IGPM")
		values, err := svc.ListIndexValues(ctx, "tenant-001", "IGPM")
		if err != nil || len(values) != 0 {
			t.Fatalf("expected empty table, got %v, %v", values, err)
		}
		if store.lists != 1 {
			t.Errorf("expected empty table to be served from cache, got %d reads", store.lists)
		}
	})

	t.Run("WithoutCache", func(t *testing.T) {
		store := &countingStore{}
		svc := NewService(store, nil, 0)
		svc.ListIndexValues(ctx, "tenant-001", "IPCA")
		svc.ListIndexValues(ctx, "tenant-001", "IPCA")
		if store.lists != 2 {
			t.Errorf("expected every read to hit the store, got %d", store.lists)
		}
		if svc.ttl != DefaultTTL {
			t.Errorf("expected default TTL, got %v", svc.ttl)
		}
	})

	t.Run("StoreError", func(t *testing.T) {
		boom := errors.New("boom")
		svc := NewService(&countingStore{err: boom}, cache.NewLRUCache(10), time.Minute)
		if _, err := svc.ListIndexValues(ctx, "tenant-001", "IPCA"); !errors.Is(err, boom) {
			t.Errorf("expected store error, got %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		svc := NewService(&countingStore{}, nil, 0)
		if _, err := svc.ListIndexValues(ctx, "", "IPCA"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})
}

func TestUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("RefreshesCache", func(t *testing.T) {
		store := &countingStore{}
		svc := NewService(store, cache.NewLRUCache(100), time.Minute)

		if values, _ := svc.ListIndexValues(ctx, "tenant-001", "IPCA"); len(values) != 0 {
			t.Fatalf("expected empty table, got %+v", values)
		}

		if _, err := svc.Upsert(ctx, "tenant-001", "ipca", []domain.IndexValue{
			{ReferenceDate: month(2024, 3), Value: 1.004},
		}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		values, _ := svc.ListIndexValues(ctx, "tenant-001", "IPCA")
		if len(values) != 1 || values[0].Value != 1.004 {
			t.Errorf("expected refreshed table, got %+v", values)
		}
		if store.lists != 1 {
			t.Errorf("expected refreshed table to come from cache, got %d reads", store.lists)
		}
	})

	t.Run("RejectsInvalidValues", func(t *testing.T) {
		svc := NewService(&countingStore{}, nil, 0)

		tests := []struct {
			name   string
			code   string
			values []domain.IndexValue
		}{
			{"MissingCode", " ", []domain.IndexValue{{ReferenceDate: month(2024, 1), Value: 1}}},
			{"MissingDate", "IPCA", []domain.IndexValue{{Value: 1}}},
			{"ZeroFactor", "IPCA", []domain.IndexValue{{ReferenceDate: month(2024, 1), Value: 0}}},
			{"NegativeFactor", "IPCA", []domain.IndexValue{{ReferenceDate: month(2024, 1), Value: -1.01}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := svc.Upsert(ctx, "tenant-001", tt.code, tt.values); !errors.Is(err, ErrInvalidValue) {
					t.Errorf("expected ErrInvalidValue, got %v", err)
				}
			})
		}
	})
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  cdi "); got != "CDI" {
		t.Errorf("expected CDI, got %q", got)
	}
}
