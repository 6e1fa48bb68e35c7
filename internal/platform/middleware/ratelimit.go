package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig tunes the per-client token bucket. Zero values fall
// back to 100 requests per second with a burst of 200.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 100
	}
	if c.BurstSize <= 0 {
		c.BurstSize = 200
	}
	return c
}

type bucket struct {
	tokens float64
	last   time.Time
}

// ipLimiter lazily allocates one token bucket per client key.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   float64
}

func newIPLimiter(cfg RateLimitConfig) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*bucket),
		rate:    cfg.RequestsPerSecond,
		burst:   float64(cfg.BurstSize),
	}
}

// allow takes a token for key. When the bucket is empty it reports the
// wait in whole seconds until a token becomes available.
func (l *ipLimiter) allow(key string, now time.Time) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	return false, int((1-b.tokens)/l.rate) + 1
}

// RateLimit throttles requests per client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	cfg = cfg.withDefaults()
	lim := newIPLimiter(cfg)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, wait := lim.allow(c.RealIP(), time.Now())
			c.Response().Header().Set("X-RateLimit-Limit", limitHeader)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(wait))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
