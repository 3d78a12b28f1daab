package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiterConfig bounds request rates per owner (falling back to the
// client IP when no identity is present yet).
type RateLimiterConfig struct {
	RPS   rate.Limit    // default: 5
	Burst int           // default: 10
	TTL   time.Duration // idle eviction, default: 10m
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter creates a per-key token bucket limiter middleware.
func RateLimiter(config RateLimiterConfig) echo.MiddlewareFunc {
	if config.RPS <= 0 {
		config.RPS = 5
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}

	var mu sync.Mutex
	entries := make(map[string]*limiterEntry)

	allow := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		entry, ok := entries[key]
		if !ok {
			entry = &limiterEntry{limiter: rate.NewLimiter(config.RPS, config.Burst)}
			entries[key] = entry

			// Piggyback idle eviction on insertion to keep the map bounded.
			for k, e := range entries {
				if now.Sub(e.lastSeen) > config.TTL {
					delete(entries, k)
				}
			}
		}
		entry.lastSeen = now
		return entry.limiter.Allow()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(OwnerHeader)
			if key == "" {
				key = c.RealIP()
			}
			if !allow(key) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded, try again shortly")
			}
			return next(c)
		}
	}
}
