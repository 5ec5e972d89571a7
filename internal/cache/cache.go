package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/opensource-finance/safv/internal/domain"
)

// New creates a new cache based on configuration.
// For Community tier: returns LRU cache.
// For Pro tier with two-phase: returns TwoPhaseCache wrapping LRU + Redis.
// For Pro tier without two-phase: returns Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

type byteStore interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
}

// getIndexValues reads an index table stored as a JSON array.
// A stored empty array decodes to an empty non-nil slice.
func getIndexValues(ctx context.Context, s byteStore, tenantID, indexCode string) ([]domain.IndexValue, error) {
	data, err := s.Get(ctx, tenantID, domain.IndexCacheKey(indexCode))
	if err != nil || data == nil {
		return nil, err
	}

	values := []domain.IndexValue{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode cached index %s: %w", indexCode, err)
	}
	return values, nil
}

func setIndexValues(ctx context.Context, s byteStore, tenantID, indexCode string, values []domain.IndexValue, ttl time.Duration) error {
	if values == nil {
		values = []domain.IndexValue{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return s.Set(ctx, tenantID, domain.IndexCacheKey(indexCode), data, ttl)
}

// TwoPhaseCache implements the two-phase caching strategy.
// L1: Local LRU cache for fast reads
// L2: Redis for distributed caching and persistence
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache with LRU + Redis.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{
		local:  local,
		remote: remote,
		l1TTL:  l1TTL,
	}
}

// Get retrieves from L1 first, then L2. Populates L1 on L2 hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		return val, nil
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}

	return val, nil
}

// Set writes to both L1 and L2. L1 never outlives the requested TTL.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, tenantID, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

// GetIndexValues retrieves a cached index table through both levels.
func (c *TwoPhaseCache) GetIndexValues(ctx context.Context, tenantID string, indexCode string) ([]domain.IndexValue, error) {
	return getIndexValues(ctx, c, tenantID, indexCode)
}

// SetIndexValues caches an index table in both levels.
func (c *TwoPhaseCache) SetIndexValues(ctx context.Context, tenantID string, indexCode string, values []domain.IndexValue, ttl time.Duration) error {
	return setIndexValues(ctx, c, tenantID, indexCode, values, ttl)
}

// IncrementCounter uses Redis for distributed atomic counters.
// L1 is not used for counters to ensure accuracy across nodes.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// Ping checks both L1 and L2 health.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 cache statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
