package api

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/opensource-finance/safv/internal/domain"
)

// RateLimiter is a fixed-window limiter keyed by client IP and request path.
// Windows are aligned to the clock so every node sharing the cache agrees on them.
type RateLimiter struct {
	cache    domain.Cache
	limit    int
	window   time.Duration
	excluded map[string]struct{}
	now      func() time.Time
}

// NewRateLimiter creates a limiter counting through cache.
func NewRateLimiter(cache domain.Cache, cfg domain.RateLimitConfig) *RateLimiter {
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	excluded := make(map[string]struct{}, len(cfg.ExcludedPaths))
	for _, p := range cfg.ExcludedPaths {
		excluded[p] = struct{}{}
	}
	return &RateLimiter{
		cache:    cache,
		limit:    cfg.Requests,
		window:   window,
		excluded: excluded,
		now:      time.Now,
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "anonymous"
	}
	return host
}

// Middleware enforces the limit. Counter failures let the request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if _, skip := l.excluded[r.URL.Path]; skip {
			next.ServeHTTP(w, r)
			return
		}

		now := l.now()
		seconds := int64(l.window / time.Second)
		n := now.Unix() / seconds
		resetAt := (n + 1) * seconds
		key := "ratelimit:" + clientIP(r) + ":" + r.URL.Path + ":" + strconv.FormatInt(n, 10)

		count, err := l.cache.IncrementCounter(r.Context(), domain.GlobalTenantID, key, l.window)
		if err != nil {
			slog.Warn("rate limit counter unavailable", "path", r.URL.Path, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := int64(l.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if count > int64(l.limit) {
			retryAfter := resetAt - now.Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))

			slog.Warn("rate limit exceeded",
				"client_ip", clientIP(r),
				"path", r.URL.Path,
				"retry_after", retryAfter,
				"request_id", GetRequestID(r.Context()),
			)
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:     "Too many requests",
				Code:      "rate_limit_exceeded",
				Detail:    map[string]int64{"retry_after": retryAfter},
				RequestID: GetRequestID(r.Context()),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
