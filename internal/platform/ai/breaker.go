package ai

import (
	"sync"
	"time"
)

// BreakerState is the circuit state of one provider.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerConfig holds the failure threshold and open cooldown shared by all
// per-provider breakers.
type BreakerConfig struct {
	Threshold   int           // consecutive failures before opening
	OpenTimeout time.Duration // cooldown before a half-open trial
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:   5,
		OpenTimeout: 30 * time.Second,
	}
}

// BreakerStatus is a point-in-time snapshot of one provider's breaker.
type BreakerStatus struct {
	Provider            string       `json:"provider"`
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastFailureAt       *time.Time   `json:"last_failure_at,omitempty"`
}

// TransitionFunc observes breaker state changes. Funcs run outside the
// breaker's lock and must not block for long; slow consumers should hand off
// to their own goroutine.
type TransitionFunc func(provider string, from, to BreakerState)

type breaker struct {
	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	lastFailureAt       time.Time
	probeInFlight       bool
	probeStartedAt      time.Time
}

// BreakerSet holds one circuit breaker per provider, created lazily. The
// half-open trial is singular: while a probe is in flight every other caller
// is rejected.
type BreakerSet struct {
	mu          sync.RWMutex
	breakers    map[string]*breaker
	order       []string
	onChange    []TransitionFunc
	threshold   int
	openTimeout time.Duration
	now         func() time.Time
}

// NewBreakerSet creates a BreakerSet from cfg.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultBreakerConfig().Threshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}
	return &BreakerSet{
		breakers:    make(map[string]*breaker),
		threshold:   cfg.Threshold,
		openTimeout: cfg.OpenTimeout,
		now:         time.Now,
	}
}

// Notify registers a transition observer.
func (s *BreakerSet) Notify(fn TransitionFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Register creates breakers for the given providers up front so snapshots
// list them in a stable order before any traffic arrives.
func (s *BreakerSet) Register(providers ...string) {
	for _, p := range providers {
		s.getBreaker(p)
	}
}

func (s *BreakerSet) getBreaker(provider string) *breaker {
	s.mu.RLock()
	b, ok := s.breakers[provider]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[provider]; ok {
		return b
	}
	b = &breaker{state: BreakerClosed}
	s.breakers[provider] = b
	s.order = append(s.order, provider)
	return b
}

func (s *BreakerSet) fire(provider string, from, to BreakerState) {
	s.mu.RLock()
	observers := s.onChange
	s.mu.RUnlock()
	for _, fn := range observers {
		fn(provider, from, to)
	}
}

// Allow reports whether a call to the provider may proceed. After the open
// cooldown elapses the first caller becomes the half-open trial; everyone
// else is rejected until the trial reports back via OnSuccess or OnFailure.
func (s *BreakerSet) Allow(provider string) error {
	b := s.getBreaker(provider)

	b.mu.Lock()
	now := s.now()
	switch b.state {
	case BreakerOpen:
		if now.Sub(b.lastFailureAt) < s.openTimeout {
			b.mu.Unlock()
			return &ServiceUnavailableError{Provider: provider}
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		b.probeStartedAt = now
		b.mu.Unlock()
		s.fire(provider, BreakerOpen, BreakerHalfOpen)
		return nil
	case BreakerHalfOpen:
		// A trial that never reports back must not wedge the breaker:
		// after a full cooldown it is treated as lost and replaced.
		if b.probeInFlight && now.Sub(b.probeStartedAt) < s.openTimeout {
			b.mu.Unlock()
			return &ServiceUnavailableError{Provider: provider}
		}
		b.probeInFlight = true
		b.probeStartedAt = now
		b.mu.Unlock()
		return nil
	default:
		b.mu.Unlock()
		return nil
	}
}

// OnSuccess records a successful attempt: failures reset and the breaker
// closes from any state.
func (s *BreakerSet) OnSuccess(provider string) {
	b := s.getBreaker(provider)

	b.mu.Lock()
	from := b.state
	b.state = BreakerClosed
	b.consecutiveFailures = 0
	b.probeInFlight = false
	b.mu.Unlock()

	if from != BreakerClosed {
		s.fire(provider, from, BreakerClosed)
	}
}

// OnFailure records a failed attempt. A half-open trial failure reopens the
// breaker immediately; in the closed state the breaker opens once the
// consecutive-failure threshold is reached.
func (s *BreakerSet) OnFailure(provider string) {
	b := s.getBreaker(provider)

	b.mu.Lock()
	from := b.state
	b.consecutiveFailures++
	b.lastFailureAt = s.now()
	b.probeInFlight = false
	switch from {
	case BreakerHalfOpen:
		b.state = BreakerOpen
	case BreakerClosed:
		if b.consecutiveFailures >= s.threshold {
			b.state = BreakerOpen
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		s.fire(provider, from, to)
	}
}

// State returns the current state of the provider's breaker.
func (s *BreakerSet) State(provider string) BreakerState {
	b := s.getBreaker(provider)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns per-provider breaker statuses in registration order.
func (s *BreakerSet) Snapshot() []BreakerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]BreakerStatus, 0, len(s.order))
	for _, name := range s.order {
		b := s.breakers[name]
		b.mu.Lock()
		st := BreakerStatus{
			Provider:            name,
			State:               b.state,
			ConsecutiveFailures: b.consecutiveFailures,
		}
		if !b.lastFailureAt.IsZero() {
			at := b.lastFailureAt
			st.LastFailureAt = &at
		}
		b.mu.Unlock()
		out = append(out, st)
	}
	return out
}

// Reset closes every breaker and clears its failure history.
func (s *BreakerSet) Reset() {
	type change struct {
		provider string
		from     BreakerState
	}
	var changed []change

	s.mu.RLock()
	for _, name := range s.order {
		b := s.breakers[name]
		b.mu.Lock()
		from := b.state
		b.state = BreakerClosed
		b.consecutiveFailures = 0
		b.lastFailureAt = time.Time{}
		b.probeInFlight = false
		b.mu.Unlock()
		if from != BreakerClosed {
			changed = append(changed, change{provider: name, from: from})
		}
	}
	s.mu.RUnlock()

	for _, c := range changed {
		s.fire(c.provider, c.from, BreakerClosed)
	}
}
