package ai

// SelectorConfig holds provider selection settings.
type SelectorConfig struct {
	// Margin is the success-rate lead one provider needs over the other
	// before rates are considered different. Within the margin the faster
	// provider wins.
	Margin float64
}

// DefaultSelectorConfig returns the default selection settings.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{Margin: 0.10}
}

// ProviderSelector picks the primary provider for a request by comparing
// recorded success rates, falling back to average latency when the rates are
// close. It deliberately ignores circuit breaker state: a selected provider
// whose breaker is open is short-circuited downstream, which keeps the
// fallback path in one place.
type ProviderSelector struct {
	metrics   *MetricsCollector
	primary   string
	secondary string
	margin    float64
}

// NewProviderSelector creates a selector choosing between the configured
// default provider and its fallback, in that order of preference.
func NewProviderSelector(metrics *MetricsCollector, defaultProvider, fallbackProvider string, cfg SelectorConfig) *ProviderSelector {
	if cfg.Margin <= 0 {
		cfg.Margin = DefaultSelectorConfig().Margin
	}
	return &ProviderSelector{
		metrics:   metrics,
		primary:   primaryOr(defaultProvider, fallbackProvider),
		secondary: fallbackProvider,
		margin:    cfg.Margin,
	}
}

func primaryOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// SelectPrimary returns the provider to try first for the given task type.
// Success rate dominates: a provider leading by more than the margin wins
// outright. Rates within the margin tie-break on lower average response
// time, and a full tie keeps the configured default.
func (s *ProviderSelector) SelectPrimary(taskType TaskType) string {
	if s.secondary == "" || s.secondary == s.primary {
		return s.primary
	}

	pRate := s.metrics.SuccessRate(s.primary)
	fRate := s.metrics.SuccessRate(s.secondary)
	if pRate-fRate > s.margin {
		return s.primary
	}
	if fRate-pRate > s.margin {
		return s.secondary
	}

	if s.metrics.AvgResponseTime(s.secondary) < s.metrics.AvgResponseTime(s.primary) {
		return s.secondary
	}
	return s.primary
}

// Fallback returns the alternate provider for the one given: selecting the
// default yields the fallback and vice versa. It returns "" when no distinct
// alternate is configured.
func (s *ProviderSelector) Fallback(provider string) string {
	if s.secondary == "" || s.secondary == s.primary {
		return ""
	}
	if provider == s.primary {
		return s.secondary
	}
	return s.primary
}

// Providers returns the configured candidates in preference order.
func (s *ProviderSelector) Providers() []string {
	if s.secondary == "" || s.secondary == s.primary {
		return []string{s.primary}
	}
	return []string{s.primary, s.secondary}
}
