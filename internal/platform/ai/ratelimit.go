package ai

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig holds per-caller request window settings.
type RateLimiterConfig struct {
	Limit  int           // admitted requests per caller per window
	Window time.Duration // window duration
}

// DefaultRateLimiterConfig returns the default window settings.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Limit:  60,
		Window: time.Minute,
	}
}

// rateWindow tracks one caller's current window. The count is only ever
// mutated under mu so two concurrent admits cannot both pass the limit.
type rateWindow struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// RateLimiter enforces a fixed request window per caller. Windows are created
// lazily on the caller's first request and reset once the window has fully
// elapsed.
type RateLimiter struct {
	mu      sync.RWMutex
	windows map[string]*rateWindow
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewRateLimiter creates a RateLimiter from cfg.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRateLimiterConfig().Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultRateLimiterConfig().Window
	}
	return &RateLimiter{
		windows: make(map[string]*rateWindow),
		limit:   cfg.Limit,
		window:  cfg.Window,
		now:     time.Now,
	}
}

func (l *RateLimiter) getWindow(callerID string) *rateWindow {
	l.mu.RLock()
	w, ok := l.windows[callerID]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring write lock
	if w, ok := l.windows[callerID]; ok {
		return w
	}
	w = &rateWindow{windowStart: l.now()}
	l.windows[callerID] = w
	return w
}

// Allow admits or rejects one request for callerID. On rejection it returns
// the time remaining until the caller's window resets. The count never
// exceeds the limit: the check happens before the increment.
func (l *RateLimiter) Allow(callerID string) (bool, time.Duration) {
	w := l.getWindow(callerID)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	windowEnd := w.windowStart.Add(l.window)
	if now.After(windowEnd) {
		w.windowStart = now
		w.count = 0
		windowEnd = now.Add(l.window)
	}

	if w.count >= l.limit {
		retryAfter := windowEnd.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	w.count++
	return true, 0
}

// Window returns the configured window duration.
func (l *RateLimiter) Window() time.Duration {
	return l.window
}

// LimitedCallers returns the number of callers currently at their limit
// inside an active window.
func (l *RateLimiter) LimitedCallers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	n := 0
	for _, w := range l.windows {
		w.mu.Lock()
		if !now.After(w.windowStart.Add(l.window)) && w.count >= l.limit {
			n++
		}
		w.mu.Unlock()
	}
	return n
}

// StartCleanup runs a background goroutine that periodically drops windows
// that have been idle for more than a full window. It stops when the context
// is cancelled.
func (l *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.prune()
			}
		}
	}()
}

func (l *RateLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, w := range l.windows {
		w.mu.Lock()
		stale := now.Sub(w.windowStart) > 2*l.window
		w.mu.Unlock()
		if stale {
			delete(l.windows, id)
		}
	}
}
