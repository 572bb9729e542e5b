package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig controls the per-client edge limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns the edge limiter defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// clientBucket is a token bucket refilled continuously from the time elapsed
// since the previous take.
type clientBucket struct {
	mu       sync.Mutex
	tokens   float64
	last     time.Time
	lastSeen time.Time
}

func newClientBucket(burst int) *clientBucket {
	now := time.Now()
	return &clientBucket{tokens: float64(burst), last: now, lastSeen: now}
}

// take refills the bucket and spends one token. When the bucket is empty it
// reports how long until the next token accrues.
func (b *clientBucket) take(rate, burst float64) (ok bool, retryAfter time.Duration, remaining int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens = math.Min(burst, b.tokens+now.Sub(b.last).Seconds()*rate)
	b.last = now
	b.lastSeen = now

	if b.tokens < 1 {
		wait := time.Second
		if rate > 0 {
			wait = time.Duration((1 - b.tokens) / rate * float64(time.Second))
		}
		return false, wait, 0
	}
	b.tokens--
	return true, 0, int(b.tokens)
}

const (
	bucketIdleAfter = 10 * time.Minute
	sweepEvery      = 4096
)

// bucketTable maps client addresses to buckets. Idle entries are swept on a
// fixed cadence so the table does not grow with every address that ever
// connected.
type bucketTable struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	burst   int
	ops     int
}

func newBucketTable(burst int) *bucketTable {
	return &bucketTable{buckets: make(map[string]*clientBucket), burst: burst}
}

func (t *bucketTable) get(key string) *clientBucket {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ops++
	if t.ops%sweepEvery == 0 {
		t.sweepLocked(time.Now().Add(-bucketIdleAfter))
	}

	b, exists := t.buckets[key]
	if !exists {
		b = newClientBucket(t.burst)
		t.buckets[key] = b
	}
	return b
}

func (t *bucketTable) sweepLocked(cutoff time.Time) {
	for k, b := range t.buckets {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(t.buckets, k)
		}
	}
}

// RateLimit returns per-client-IP limiting middleware. This is the edge guard
// in front of the orchestrator's per-caller window: it keys on the network
// address, not on the caller identity inside the request body.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	table := newBucketTable(cfg.BurstSize)
	limitHeader := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retryAfter, remaining := table.get(c.RealIP()).take(cfg.RequestsPerSecond, float64(cfg.BurstSize))

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limitHeader)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
