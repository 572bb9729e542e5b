package ai

import (
	"sync"
	"time"
)

// ProviderMetrics is a point-in-time snapshot of one provider's counters.
type ProviderMetrics struct {
	Provider          string     `json:"provider"`
	TotalRequests     int64      `json:"total_requests"`
	SuccessCount      int64      `json:"success_count"`
	FailureCount      int64      `json:"failure_count"`
	SuccessRate       float64    `json:"success_rate"`
	AvgResponseTimeMs float64    `json:"avg_response_time_ms"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

type providerStats struct {
	total      int64
	success    int64
	failure    int64
	avgMs      float64
	lastUsedAt time.Time
}

// MetricsCollector tracks per-provider call outcomes. The response time
// average is maintained incrementally so no per-call history is kept. A
// provider with no recorded calls reports a success rate of 1.0, which lets
// selection give new providers a chance.
type MetricsCollector struct {
	mu        sync.RWMutex
	providers map[string]*providerStats
	order     []string
	now       func() time.Time
}

// NewMetricsCollector creates an empty MetricsCollector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		providers: make(map[string]*providerStats),
		now:       time.Now,
	}
}

// Register creates zeroed stats for the given providers so snapshots list
// them in a stable order before any traffic arrives.
func (m *MetricsCollector) Register(providers ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range providers {
		m.statsLocked(p)
	}
}

// statsLocked returns the stats for a provider, creating them if needed.
// Callers must hold m.mu.
func (m *MetricsCollector) statsLocked(provider string) *providerStats {
	s, ok := m.providers[provider]
	if !ok {
		s = &providerStats{}
		m.providers[provider] = s
		m.order = append(m.order, provider)
	}
	return s
}

// Record counts one completed provider attempt and folds its latency into
// the running average.
func (m *MetricsCollector) Record(provider string, success bool, latency time.Duration) {
	ms := latency.Seconds() * 1000

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.statsLocked(provider)
	s.total++
	if success {
		s.success++
	} else {
		s.failure++
	}
	s.avgMs += (ms - s.avgMs) / float64(s.total)
	s.lastUsedAt = m.now()
}

// SuccessRate returns successes over total requests, or 1.0 for a provider
// that has not been tried yet.
func (m *MetricsCollector) SuccessRate(provider string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.providers[provider]
	if !ok || s.total == 0 {
		return 1.0
	}
	return float64(s.success) / float64(s.total)
}

// AvgResponseTime returns the running mean latency in milliseconds, or 0
// for a provider that has not been tried yet.
func (m *MetricsCollector) AvgResponseTime(provider string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.providers[provider]
	if !ok {
		return 0
	}
	return s.avgMs
}

// Snapshot returns per-provider metrics in registration order.
func (m *MetricsCollector) Snapshot() []ProviderMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderMetrics, 0, len(m.order))
	for _, name := range m.order {
		s := m.providers[name]
		pm := ProviderMetrics{
			Provider:          name,
			TotalRequests:     s.total,
			SuccessCount:      s.success,
			FailureCount:      s.failure,
			SuccessRate:       1.0,
			AvgResponseTimeMs: s.avgMs,
		}
		if s.total > 0 {
			pm.SuccessRate = float64(s.success) / float64(s.total)
		}
		if !s.lastUsedAt.IsZero() {
			at := s.lastUsedAt
			pm.LastUsedAt = &at
		}
		out = append(out, pm)
	}
	return out
}
