// Package ai implements the resilient outbound-request pipeline between
// domain services and external AI providers: per-caller rate limiting,
// per-provider circuit breaking, response caching, metrics-driven provider
// selection, and single-fallback execution.
package ai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/carescribe/carescribe/internal/platform/ai/provider"
)

const (
	// MaxPromptLength bounds accepted prompts in bytes.
	MaxPromptLength = 8000
	// MaxCallerIDLength bounds accepted caller ids in bytes.
	MaxCallerIDLength = 128
)

// ---------------------------------------------------------------------------
// Request / Result
// ---------------------------------------------------------------------------

// Request is one generation request from a domain service.
type Request struct {
	TaskType TaskType          `json:"task_type"`
	Prompt   string            `json:"prompt"`
	CallerID string            `json:"caller_id"`
	Aux      map[string]string `json:"aux_data,omitempty"` // folded into the cache key
	// Preferred overrides metrics-driven provider selection; the named
	// provider still goes through the breaker and fallback path.
	Preferred string `json:"provider,omitempty"`
}

// Validate checks the request without touching any shared state.
func (r Request) Validate() error {
	if !r.TaskType.Valid() {
		return &ValidationError{Field: "task_type", Reason: fmt.Sprintf("unknown task type %q", string(r.TaskType))}
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}
	if len(r.Prompt) > MaxPromptLength {
		return &ValidationError{Field: "prompt", Reason: fmt.Sprintf("exceeds maximum length of %d bytes", MaxPromptLength)}
	}
	if r.CallerID == "" {
		return &ValidationError{Field: "caller_id", Reason: "must not be empty"}
	}
	if len(r.CallerID) > MaxCallerIDLength {
		return &ValidationError{Field: "caller_id", Reason: fmt.Sprintf("exceeds maximum length of %d bytes", MaxCallerIDLength)}
	}
	for _, c := range r.CallerID {
		if !callerIDRune(c) {
			return &ValidationError{Field: "caller_id", Reason: "contains invalid characters"}
		}
	}
	return nil
}

func callerIDRune(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == ':', c == '@':
		return true
	}
	return false
}

// Result is the outcome of one successful (or cache-served) generation.
type Result struct {
	RequestID    string    `json:"request_id"`
	TaskType     TaskType  `json:"task_type"`
	CallerID     string    `json:"caller_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model,omitempty"`
	Content      string    `json:"content"`
	Confidence   float64   `json:"confidence"`
	TokensUsed   int       `json:"tokens_used,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	UsedFallback bool      `json:"used_fallback"`
	Cached       bool      `json:"cached"`
	CreatedAt    time.Time `json:"created_at"`
}

// Status aggregates the orchestrator's observable state for health and
// admin endpoints.
type Status struct {
	Providers          []ProviderMetrics `json:"providers"`
	Breakers           []BreakerStatus   `json:"breakers"`
	CacheEntries       int               `json:"cache_entries"`
	RateLimitedCallers int               `json:"rate_limited_callers"`
}

// ProviderHealth reports one adapter's liveness probe.
type ProviderHealth struct {
	Provider  string       `json:"provider"`
	Healthy   bool         `json:"healthy"`
	LatencyMs int64        `json:"latency_ms"`
	Breaker   BreakerState `json:"breaker"`
	Error     string       `json:"error,omitempty"`
}

// Outcome is the audit record of one Execute call, emitted for successes and
// failures alike. It carries request metadata only, never generated clinical
// content.
type Outcome struct {
	RequestID    string
	TaskType     TaskType
	CallerID     string
	Provider     string
	Model        string
	Confidence   float64
	TokensUsed   int
	LatencyMs    int64
	UsedFallback bool
	Cached       bool
	ErrorKind    string
	ErrorMessage string
	CreatedAt    time.Time
}

// OutcomeSink receives every Execute outcome. Implementations must return
// quickly; slow persistence belongs on the implementation's own goroutine.
type OutcomeSink interface {
	RecordOutcome(ctx context.Context, oc Outcome)
}

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

// OrchestratorConfig wires together the settings of every pipeline stage.
type OrchestratorConfig struct {
	DefaultProvider  string
	FallbackProvider string
	RateLimit        RateLimiterConfig
	Breaker          BreakerConfig
	Cache            CacheConfig
	Selector         SelectorConfig
	Confidence       ConfidenceConfig
}

// Orchestrator executes generation requests against AI providers with
// bounded failure blast-radius. It is safe for concurrent use; no lock is
// held across a provider call.
type Orchestrator struct {
	adapters   map[string]provider.Adapter
	tasks      *TaskConfigSet
	limiter    *RateLimiter
	breakers   *BreakerSet
	cache      *ResponseCache
	metrics    *MetricsCollector
	selector   *ProviderSelector
	prom       *PromMetrics
	sink       OutcomeSink
	confidence ConfidenceConfig
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
}

// NewOrchestrator builds an orchestrator from config, adapters, and a cache
// backend. A nil store defaults to in-memory; a nil task set defaults to the
// built-in task configs; prom may be nil to disable instrumentation.
func NewOrchestrator(
	cfg OrchestratorConfig,
	adapters map[string]provider.Adapter,
	tasks *TaskConfigSet,
	store Store,
	prom *PromMetrics,
	logger zerolog.Logger,
) (*Orchestrator, error) {
	if len(adapters) == 0 {
		return nil, errors.New("orchestrator: no provider adapters configured")
	}
	if cfg.DefaultProvider == "" {
		return nil, errors.New("orchestrator: default provider not configured")
	}
	if _, ok := adapters[cfg.DefaultProvider]; !ok {
		return nil, fmt.Errorf("orchestrator: no adapter for default provider %q", cfg.DefaultProvider)
	}
	if cfg.FallbackProvider != "" {
		if _, ok := adapters[cfg.FallbackProvider]; !ok {
			return nil, fmt.Errorf("orchestrator: no adapter for fallback provider %q", cfg.FallbackProvider)
		}
	}
	if tasks == nil {
		tasks = DefaultTaskConfigs()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if cfg.Confidence == (ConfidenceConfig{}) {
		cfg.Confidence = DefaultConfidenceConfig()
	}

	metrics := NewMetricsCollector()
	breakers := NewBreakerSet(cfg.Breaker)
	known := []string{cfg.DefaultProvider}
	if cfg.FallbackProvider != "" && cfg.FallbackProvider != cfg.DefaultProvider {
		known = append(known, cfg.FallbackProvider)
	}
	metrics.Register(known...)
	breakers.Register(known...)

	o := &Orchestrator{
		adapters:   adapters,
		tasks:      tasks,
		limiter:    NewRateLimiter(cfg.RateLimit),
		breakers:   breakers,
		cache:      NewResponseCache(store, cfg.Cache),
		metrics:    metrics,
		selector:   NewProviderSelector(metrics, cfg.DefaultProvider, cfg.FallbackProvider, cfg.Selector),
		prom:       prom,
		confidence: cfg.Confidence,
		logger:     logger,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}

	breakers.Notify(func(providerID string, from, to BreakerState) {
		o.prom.ObserveBreakerState(providerID, to)
		o.logger.Warn().
			Str("provider", providerID).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("circuit breaker state change")
	})
	return o, nil
}

// OnBreakerChange registers an observer of circuit breaker transitions.
func (o *Orchestrator) OnBreakerChange(fn TransitionFunc) {
	o.breakers.Notify(fn)
}

// SetOutcomeSink installs the audit sink. Call before serving traffic; the
// sink is read without a lock.
func (o *Orchestrator) SetOutcomeSink(sink OutcomeSink) {
	o.sink = sink
}

// StartMaintenance launches the background janitor that drops idle rate
// limit windows. It stops when ctx is cancelled.
func (o *Orchestrator) StartMaintenance(ctx context.Context) {
	interval := 2 * o.limiter.Window()
	if interval < time.Minute {
		interval = time.Minute
	}
	o.limiter.StartCleanup(ctx, interval)
}

// Execute runs one generation request through the full pipeline: validate,
// rate limit, cache lookup, provider selection, breaker check, adapter
// call, and single fallback. Every call, failed or not, is offered to the
// outcome sink when one is installed.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (Result, error) {
	start := o.now()
	requestID := o.newID()

	res, err := o.execute(ctx, requestID, req, start)
	if o.sink != nil {
		o.sink.RecordOutcome(ctx, o.outcomeOf(requestID, req, res, err, start))
	}
	return res, err
}

func (o *Orchestrator) execute(ctx context.Context, requestID string, req Request, start time.Time) (Result, error) {
	// Validation first: a bad request has no side effects at all.
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if req.Preferred != "" {
		if _, ok := o.adapters[req.Preferred]; !ok {
			return Result{}, &ValidationError{Field: "preferred", Reason: fmt.Sprintf("unknown provider %q", req.Preferred)}
		}
	}

	// The rate limit is charged whether or not the cache ends up serving
	// the request; it protects the caller's quota, not the providers.
	allowed, retryAfter := o.limiter.Allow(req.CallerID)
	if !allowed {
		o.prom.ObserveRateLimited()
		o.logger.Debug().
			Str("caller", req.CallerID).
			Dur("retry_after", retryAfter).
			Msg("request rate limited")
		return Result{}, &RateLimitError{CallerID: req.CallerID, RetryAfter: retryAfter}
	}

	key := CacheKey(req.TaskType, req.Prompt, req.Aux)
	if cached, ok, err := o.cache.Get(ctx, key); err != nil {
		// A broken cache backend degrades to a miss instead of failing
		// the request.
		o.logger.Warn().Err(err).Msg("cache lookup failed")
	} else if ok {
		o.prom.ObserveCacheHit()
		res := cached
		res.RequestID = requestID
		res.CallerID = req.CallerID
		res.Cached = true
		res.LatencyMs = o.now().Sub(start).Milliseconds()
		return res, nil
	}
	o.prom.ObserveCacheMiss()

	primary := req.Preferred
	if primary == "" {
		primary = o.selector.SelectPrimary(req.TaskType)
	}
	fallback := o.selector.Fallback(primary)

	taskCfg, ok := o.tasks.Get(req.TaskType)
	if !ok {
		return Result{}, &ValidationError{Field: "task_type", Reason: fmt.Sprintf("no task config for %q", string(req.TaskType))}
	}

	primaryAttempt := o.attempt(ctx, primary, req, taskCfg)
	if primaryAttempt.err == nil {
		return o.finish(ctx, requestID, req, key, primary, false, primaryAttempt, start), nil
	}
	if primaryAttempt.cancelled {
		return Result{}, &CancelledError{Provider: primary, Cause: primaryAttempt.err}
	}
	if fallback == "" {
		if primaryAttempt.rejected {
			return Result{}, primaryAttempt.err
		}
		return Result{}, &ProviderFailureError{Primary: primary, PrimaryErr: primaryAttempt.err}
	}

	o.prom.ObserveFallback(primary, fallback)
	o.logger.Info().
		Str("primary", primary).
		Str("fallback", fallback).
		Str("task_type", string(req.TaskType)).
		Msg("falling back to alternate provider")

	fallbackAttempt := o.attempt(ctx, fallback, req, taskCfg)
	if fallbackAttempt.err == nil {
		return o.finish(ctx, requestID, req, key, fallback, true, fallbackAttempt, start), nil
	}
	if fallbackAttempt.cancelled {
		return Result{}, &CancelledError{Provider: fallback, Cause: fallbackAttempt.err}
	}
	return Result{}, &ProviderFailureError{
		Primary:     primary,
		PrimaryErr:  primaryAttempt.err,
		Fallback:    fallback,
		FallbackErr: fallbackAttempt.err,
	}
}

type attemptResult struct {
	resp      provider.Response
	err       error
	rejected  bool // breaker refused; the adapter was never invoked
	cancelled bool
	latency   time.Duration
}

// attempt runs the breaker check and adapter call for one provider and
// records the outcome. Breaker rejections leave metrics untouched because
// no attempt was made.
func (o *Orchestrator) attempt(ctx context.Context, providerID string, req Request, cfg TaskConfig) attemptResult {
	if err := o.breakers.Allow(providerID); err != nil {
		o.logger.Debug().
			Str("provider", providerID).
			Msg("circuit breaker rejected request")
		return attemptResult{err: err, rejected: true}
	}

	adapter := o.adapters[providerID]
	started := o.now()
	resp, err := adapter.Generate(ctx, provider.Request{
		Prompt:      req.Prompt,
		System:      cfg.SystemPrompt,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	latency := o.now().Sub(started)

	success := err == nil
	o.metrics.Record(providerID, success, latency)
	o.prom.ObserveAttempt(providerID, req.TaskType, success, latency)
	if success {
		o.breakers.OnSuccess(providerID)
		return attemptResult{resp: resp, latency: latency}
	}
	o.breakers.OnFailure(providerID)

	// A cancelled call still counted against the provider above: a
	// provider too slow for the caller's deadline is unhealthy.
	cancelled := errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil

	o.logger.Warn().Err(err).
		Str("provider", providerID).
		Str("task_type", string(req.TaskType)).
		Dur("latency", latency).
		Bool("cancelled", cancelled).
		Msg("provider attempt failed")

	return attemptResult{err: err, cancelled: cancelled, latency: latency}
}

// finish scores, caches, and packages a successful attempt.
func (o *Orchestrator) finish(ctx context.Context, requestID string, req Request, key, providerID string, usedFallback bool, at attemptResult, start time.Time) Result {
	res := Result{
		RequestID:    requestID,
		TaskType:     req.TaskType,
		CallerID:     req.CallerID,
		Provider:     providerID,
		Model:        at.resp.Model,
		Content:      at.resp.Text,
		Confidence:   o.scoreConfidence(req.TaskType, at.resp.Text),
		TokensUsed:   at.resp.TokensUsed,
		LatencyMs:    o.now().Sub(start).Milliseconds(),
		UsedFallback: usedFallback,
		CreatedAt:    o.now(),
	}

	if err := o.cache.Set(ctx, key, res); err != nil {
		o.logger.Warn().Err(err).Msg("cache store failed")
	} else if n, err := o.cache.Len(ctx); err == nil {
		o.prom.ObserveCacheEntries(n)
	}

	o.logger.Info().
		Str("request_id", res.RequestID).
		Str("provider", providerID).
		Str("task_type", string(req.TaskType)).
		Bool("used_fallback", usedFallback).
		Int64("latency_ms", res.LatencyMs).
		Float64("confidence", res.Confidence).
		Msg("generation completed")

	return res
}

// outcomeOf flattens an Execute result or error into the audit record.
func (o *Orchestrator) outcomeOf(requestID string, req Request, res Result, err error, start time.Time) Outcome {
	if err == nil {
		return Outcome{
			RequestID:    res.RequestID,
			TaskType:     res.TaskType,
			CallerID:     res.CallerID,
			Provider:     res.Provider,
			Model:        res.Model,
			Confidence:   res.Confidence,
			TokensUsed:   res.TokensUsed,
			LatencyMs:    res.LatencyMs,
			UsedFallback: res.UsedFallback,
			Cached:       res.Cached,
			CreatedAt:    o.now(),
		}
	}

	oc := Outcome{
		RequestID:    requestID,
		TaskType:     req.TaskType,
		CallerID:     req.CallerID,
		LatencyMs:    o.now().Sub(start).Milliseconds(),
		ErrorKind:    KindOf(err),
		ErrorMessage: err.Error(),
		CreatedAt:    o.now(),
	}
	var (
		sue *ServiceUnavailableError
		pfe *ProviderFailureError
		ce  *CancelledError
	)
	switch {
	case errors.As(err, &ce):
		oc.Provider = ce.Provider
	case errors.As(err, &pfe):
		oc.Provider = pfe.Primary
		oc.UsedFallback = pfe.Fallback != ""
	case errors.As(err, &sue):
		oc.Provider = sue.Provider
	}
	return oc
}

func (o *Orchestrator) scoreConfidence(taskType TaskType, content string) float64 {
	var keywords []string
	if cfg, ok := o.tasks.Get(taskType); ok {
		keywords = cfg.Keywords
	}
	return ScoreConfidence(o.confidence, content, keywords)
}

// Status reports per-provider metrics, breaker states, cache size, and
// currently limited callers.
func (o *Orchestrator) Status(ctx context.Context) Status {
	entries, err := o.cache.Len(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("cache size unavailable")
		entries = 0
	}
	return Status{
		Providers:          o.metrics.Snapshot(),
		Breakers:           o.breakers.Snapshot(),
		CacheEntries:       entries,
		RateLimitedCallers: o.limiter.LimitedCallers(),
	}
}

// ResetBreakers closes every provider breaker.
func (o *Orchestrator) ResetBreakers() {
	o.breakers.Reset()
	o.logger.Info().Msg("circuit breakers reset")
}

// ClearCache drops every cached response.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if err := o.cache.Clear(ctx); err != nil {
		return err
	}
	o.prom.ObserveCacheEntries(0)
	o.logger.Info().Msg("response cache cleared")
	return nil
}

// Providers returns all configured adapter ids, sorted.
func (o *Orchestrator) Providers() []string {
	ids := make([]string, 0, len(o.adapters))
	for id := range o.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// probeTimeout bounds each provider health probe.
const probeTimeout = 10 * time.Second

// ProbeProviders runs a minimal generation against every adapter in
// parallel and reports liveness. Probes bypass the pipeline entirely: no
// rate limiting, caching, metrics, or breaker updates.
func (o *Orchestrator) ProbeProviders(ctx context.Context) []ProviderHealth {
	ids := o.Providers()
	out := make([]ProviderHealth, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()

			started := time.Now()
			_, err := o.adapters[id].Generate(probeCtx, provider.Request{
				Prompt:    "Health check. Reply with OK.",
				MaxTokens: 8,
			})
			health := ProviderHealth{
				Provider:  id,
				Healthy:   err == nil,
				LatencyMs: time.Since(started).Milliseconds(),
				Breaker:   o.breakers.State(id),
			}
			if err != nil {
				health.Error = err.Error()
			}
			out[i] = health
			return nil
		})
	}
	_ = g.Wait()
	return out
}
