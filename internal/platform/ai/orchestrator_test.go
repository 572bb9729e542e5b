package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carescribe/carescribe/internal/platform/ai/provider"
)

// stubAdapter counts calls and answers with a canned response unless a
// respond func is installed.
type stubAdapter struct {
	id      string
	mu      sync.Mutex
	calls   int
	respond func(ctx context.Context, req provider.Request) (provider.Response, error)
}

func (s *stubAdapter) ID() string { return s.id }

func (s *stubAdapter) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.respond != nil {
		return s.respond(ctx, req)
	}
	return provider.Response{
		Text:       "Patient is stable, vitals within normal limits.",
		Model:      s.id + "-default",
		TokensUsed: 42,
	}, nil
}

func (s *stubAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func failAlways(message string) func(context.Context, provider.Request) (provider.Response, error) {
	return func(context.Context, provider.Request) (provider.Response, error) {
		return provider.Response{}, errors.New(message)
	}
}

func newTestOrchestrator(t *testing.T, cfg OrchestratorConfig, adapters ...*stubAdapter) *Orchestrator {
	t.Helper()
	m := make(map[string]provider.Adapter, len(adapters))
	for _, a := range adapters {
		m[a.id] = a
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = adapters[0].id
	}
	o, err := NewOrchestrator(cfg, m, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewOrchestrator: unexpected error: %v", err)
	}
	return o
}

func soapRequest(prompt, caller string) Request {
	return Request{TaskType: TaskSOAPNote, Prompt: prompt, CallerID: caller}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func TestExecute_RejectsInvalidRequests(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{}, primary)

	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"unknown task type", Request{TaskType: "poetry", Prompt: "p", CallerID: "c"}, "task_type"},
		{"empty prompt", Request{TaskType: TaskSOAPNote, Prompt: "   ", CallerID: "c"}, "prompt"},
		{"oversized prompt", Request{TaskType: TaskSOAPNote, Prompt: strings.Repeat("a", MaxPromptLength+1), CallerID: "c"}, "prompt"},
		{"empty caller", Request{TaskType: TaskSOAPNote, Prompt: "p"}, "caller_id"},
		{"oversized caller", Request{TaskType: TaskSOAPNote, Prompt: "p", CallerID: strings.Repeat("c", MaxCallerIDLength+1)}, "caller_id"},
		{"caller with spaces", Request{TaskType: TaskSOAPNote, Prompt: "p", CallerID: "unit a"}, "caller_id"},
		{"unknown preferred provider", Request{TaskType: TaskSOAPNote, Prompt: "p", CallerID: "c", Preferred: "bard"}, "preferred"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Execute(context.Background(), tc.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, ve.Field)
			}
		})
	}

	if n := primary.callCount(); n != 0 {
		t.Errorf("expected no adapter calls for invalid requests, got %d", n)
	}
	status := o.Status(context.Background())
	if status.Providers[0].TotalRequests != 0 {
		t.Errorf("invalid requests must not touch metrics, got %d recorded", status.Providers[0].TotalRequests)
	}
}

func TestExecute_AcceptsCallerIDPunctuation(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{}, primary)

	_, err := o.Execute(context.Background(), soapRequest("note", "ward-3:nurse_7@unit.icu"))
	if err != nil {
		t.Fatalf("expected caller id to validate, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestExecute_RateLimitBoundary(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		RateLimit: RateLimiterConfig{Limit: 3, Window: time.Minute},
	}, primary)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := o.Execute(ctx, soapRequest(fmt.Sprintf("note %d", i), "unit-7")); err != nil {
			t.Fatalf("request %d: expected admit, got %v", i+1, err)
		}
	}

	_, err := o.Execute(ctx, soapRequest("one too many", "unit-7"))
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError on request 4, got %v", err)
	}
	if rle.CallerID != "unit-7" {
		t.Errorf("expected caller unit-7, got %q", rle.CallerID)
	}
	if rle.RetryAfter <= 0 || rle.RetryAfter > time.Minute {
		t.Errorf("expected retry-after within (0, 1m], got %v", rle.RetryAfter)
	}

	// Another caller is unaffected.
	if _, err := o.Execute(ctx, soapRequest("other ward", "unit-8")); err != nil {
		t.Fatalf("expected second caller to be admitted, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Caching
// ---------------------------------------------------------------------------

func TestExecute_ServesRepeatFromCache(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{}, primary)

	seq := 0
	o.newID = func() string { seq++; return fmt.Sprintf("req-%d", seq) }

	ctx := context.Background()
	first, err := o.Execute(ctx, soapRequest("progress note for bed 12", "unit-7"))
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if first.Cached {
		t.Error("first result should not be cached")
	}

	second, err := o.Execute(ctx, soapRequest("progress note for bed 12", "unit-9"))
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !second.Cached {
		t.Error("second result should be served from cache")
	}
	if n := primary.callCount(); n != 1 {
		t.Errorf("expected exactly 1 adapter call, got %d", n)
	}
	if second.RequestID == first.RequestID {
		t.Error("cached replay must carry a fresh request id")
	}
	if second.CallerID != "unit-9" {
		t.Errorf("cached replay must carry the current caller, got %q", second.CallerID)
	}
	if second.Provider != first.Provider || second.Content != first.Content {
		t.Error("cached replay must preserve the stored provider and content")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("cached replay must preserve the original creation time")
	}
}

func TestExecute_NormalizedPromptsShareCacheEntry(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{}, primary)

	ctx := context.Background()
	if _, err := o.Execute(ctx, soapRequest("Progress   Note\tfor bed 12", "unit-7")); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	res, err := o.Execute(ctx, soapRequest("progress note for BED 12", "unit-7"))
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !res.Cached {
		t.Error("case and whitespace variants should hit the same cache entry")
	}
	if n := primary.callCount(); n != 1 {
		t.Errorf("expected 1 adapter call, got %d", n)
	}
}

func TestExecute_CacheHitConsumesQuota(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		RateLimit: RateLimiterConfig{Limit: 2, Window: time.Minute},
	}, primary)

	ctx := context.Background()
	req := soapRequest("progress note for bed 12", "unit-7")
	if _, err := o.Execute(ctx, req); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	res, err := o.Execute(ctx, req)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if !res.Cached {
		t.Fatal("second result should be served from cache")
	}

	// The replay spent the caller's quota even though no adapter ran.
	_, err = o.Execute(ctx, req)
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected RateLimitError on request 3, got %v", err)
	}
	if n := primary.callCount(); n != 1 {
		t.Errorf("expected 1 adapter call, got %d", n)
	}
}

func TestExecute_CacheExpiresAfterTTL(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		Cache: CacheConfig{TTL: time.Minute, MaxEntries: 10},
	}, primary)

	base := time.Now()
	clock := base
	o.cache.now = func() time.Time { return clock }

	ctx := context.Background()
	req := soapRequest("discharge summary draft", "unit-7")
	if _, err := o.Execute(ctx, req); err != nil {
		t.Fatalf("first execute: %v", err)
	}

	// At exactly the TTL the entry is still fresh.
	clock = base.Add(time.Minute)
	res, err := o.Execute(ctx, req)
	if err != nil {
		t.Fatalf("execute at ttl: %v", err)
	}
	if !res.Cached {
		t.Error("entry aged exactly to the ttl should still be served")
	}
	if n := primary.callCount(); n != 1 {
		t.Errorf("expected 1 adapter call, got %d", n)
	}

	// One step past the TTL it is gone.
	clock = base.Add(time.Minute + time.Nanosecond)
	res, err = o.Execute(ctx, req)
	if err != nil {
		t.Fatalf("execute past ttl: %v", err)
	}
	if res.Cached {
		t.Error("entry past the ttl should be refetched")
	}
	if n := primary.callCount(); n != 2 {
		t.Errorf("expected 2 adapter calls after expiry, got %d", n)
	}
}

func TestExecute_EvictsOldestWhenCacheFull(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		Cache: CacheConfig{TTL: time.Hour, MaxEntries: 2},
	}, primary)

	clock := time.Now()
	o.cache.now = func() time.Time { c := clock; clock = clock.Add(time.Second); return c }

	ctx := context.Background()
	prompts := []string{"note one", "note two", "note three"}
	for _, p := range prompts {
		if _, err := o.Execute(ctx, soapRequest(p, "unit-7")); err != nil {
			t.Fatalf("execute %q: %v", p, err)
		}
	}
	if n := primary.callCount(); n != 3 {
		t.Fatalf("expected 3 adapter calls, got %d", n)
	}

	// The first prompt was evicted to make room for the third.
	res, err := o.Execute(ctx, soapRequest("note one", "unit-7"))
	if err != nil {
		t.Fatalf("re-execute evicted prompt: %v", err)
	}
	if res.Cached {
		t.Error("oldest entry should have been evicted")
	}

	// The two newest survive. "note three" is clearly retained; "note two"
	// was just evicted by the re-fetch above, so check only the newest.
	res, err = o.Execute(ctx, soapRequest("note three", "unit-7"))
	if err != nil {
		t.Fatalf("re-execute newest prompt: %v", err)
	}
	if !res.Cached {
		t.Error("newest entry should still be cached")
	}
}

func TestClearCache_ForcesRefetch(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	o := newTestOrchestrator(t, OrchestratorConfig{}, primary)

	ctx := context.Background()
	req := soapRequest("risk screening", "unit-7")
	if _, err := o.Execute(ctx, req); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if err := o.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	res, err := o.Execute(ctx, req)
	if err != nil {
		t.Fatalf("execute after clear: %v", err)
	}
	if res.Cached {
		t.Error("expected refetch after cache clear")
	}
	if n := primary.callCount(); n != 2 {
		t.Errorf("expected 2 adapter calls, got %d", n)
	}
}

// ---------------------------------------------------------------------------
// Circuit breaking
// ---------------------------------------------------------------------------

func TestExecute_OpensBreakerAfterConsecutiveFailures(t *testing.T) {
	primary := &stubAdapter{id: "openai", respond: failAlways("upstream 500")}
	o := newTestOrchestrator(t, OrchestratorConfig{
		Breaker: BreakerConfig{Threshold: 3, OpenTimeout: 30 * time.Second},
	}, primary)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := o.Execute(ctx, soapRequest("note", "unit-7"))
		var pfe *ProviderFailureError
		if !errors.As(err, &pfe) {
			t.Fatalf("attempt %d: expected ProviderFailureError, got %v", i+1, err)
		}
	}
	if state := o.breakers.State("openai"); state != BreakerOpen {
		t.Fatalf("expected breaker open after 3 failures, got %s", state)
	}

	// With the circuit open the adapter is no longer invoked.
	_, err := o.Execute(ctx, soapRequest("note", "unit-7"))
	var sue *ServiceUnavailableError
	if !errors.As(err, &sue) {
		t.Fatalf("expected ServiceUnavailableError while open, got %v", err)
	}
	if sue.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", sue.Provider)
	}
	if n := primary.callCount(); n != 3 {
		t.Errorf("expected adapter untouched while open, got %d calls", n)
	}
}

func TestExecute_HalfOpenTrialClosesBreaker(t *testing.T) {
	failures := 1
	primary := &stubAdapter{id: "openai"}
	primary.respond = func(context.Context, provider.Request) (provider.Response, error) {
		if failures > 0 {
			failures--
			return provider.Response{}, errors.New("upstream 500")
		}
		return provider.Response{Text: "recovered", Model: "gpt"}, nil
	}

	o := newTestOrchestrator(t, OrchestratorConfig{
		Breaker: BreakerConfig{Threshold: 1, OpenTimeout: 30 * time.Second},
	}, primary)

	clock := time.Now()
	o.breakers.now = func() time.Time { return clock }

	ctx := context.Background()
	if _, err := o.Execute(ctx, soapRequest("note a", "unit-7")); err == nil {
		t.Fatal("expected first attempt to fail")
	}
	if state := o.breakers.State("openai"); state != BreakerOpen {
		t.Fatalf("expected breaker open, got %s", state)
	}

	clock = clock.Add(30 * time.Second)
	res, err := o.Execute(ctx, soapRequest("note b", "unit-7"))
	if err != nil {
		t.Fatalf("expected half-open trial to succeed, got %v", err)
	}
	if res.Content != "recovered" {
		t.Errorf("expected trial response, got %q", res.Content)
	}
	if state := o.breakers.State("openai"); state != BreakerClosed {
		t.Errorf("expected breaker closed after successful trial, got %s", state)
	}
}

func TestResetBreakers_RestoresService(t *testing.T) {
	primary := &stubAdapter{id: "openai", respond: failAlways("upstream 500")}
	o := newTestOrchestrator(t, OrchestratorConfig{
		Breaker: BreakerConfig{Threshold: 1, OpenTimeout: time.Hour},
	}, primary)

	ctx := context.Background()
	if _, err := o.Execute(ctx, soapRequest("note", "unit-7")); err == nil {
		t.Fatal("expected failure")
	}
	if state := o.breakers.State("openai"); state != BreakerOpen {
		t.Fatalf("expected breaker open, got %s", state)
	}

	o.ResetBreakers()
	primary.respond = nil

	res, err := o.Execute(ctx, soapRequest("another note", "unit-7"))
	if err != nil {
		t.Fatalf("expected execute to succeed after reset, got %v", err)
	}
	if res.Provider != "openai" {
		t.Errorf("expected openai, got %q", res.Provider)
	}
}

// ---------------------------------------------------------------------------
// Fallback
// ---------------------------------------------------------------------------

func TestExecute_FallsBackWhenPrimaryFails(t *testing.T) {
	primary := &stubAdapter{id: "openai", respond: failAlways("upstream 500")}
	fallback := &stubAdapter{id: "anthropic"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
	}, primary, fallback)

	res, err := o.Execute(context.Background(), soapRequest("note", "unit-7"))
	if err != nil {
		t.Fatalf("expected fallback to rescue the request, got %v", err)
	}
	if !res.UsedFallback {
		t.Error("expected used_fallback to be set")
	}
	if res.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %q", res.Provider)
	}

	byID := map[string]ProviderMetrics{}
	for _, pm := range o.metrics.Snapshot() {
		byID[pm.Provider] = pm
	}
	if pm := byID["openai"]; pm.TotalRequests != 1 || pm.FailureCount != 1 {
		t.Errorf("openai: expected 1 request / 1 failure, got %d / %d", pm.TotalRequests, pm.FailureCount)
	}
	if pm := byID["anthropic"]; pm.TotalRequests != 1 || pm.SuccessCount != 1 {
		t.Errorf("anthropic: expected 1 request / 1 success, got %d / %d", pm.TotalRequests, pm.SuccessCount)
	}
}

func TestExecute_ReportsBothFailures(t *testing.T) {
	primary := &stubAdapter{id: "openai", respond: failAlways("primary exploded")}
	fallback := &stubAdapter{id: "anthropic", respond: failAlways("fallback exploded")}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
	}, primary, fallback)

	_, err := o.Execute(context.Background(), soapRequest("note", "unit-7"))
	var pfe *ProviderFailureError
	if !errors.As(err, &pfe) {
		t.Fatalf("expected ProviderFailureError, got %v", err)
	}
	if pfe.Primary != "openai" || pfe.Fallback != "anthropic" {
		t.Errorf("expected openai/anthropic, got %q/%q", pfe.Primary, pfe.Fallback)
	}
	msg := err.Error()
	if !strings.Contains(msg, "primary exploded") || !strings.Contains(msg, "fallback exploded") {
		t.Errorf("expected both failure messages, got %q", msg)
	}

	byID := map[string]ProviderMetrics{}
	for _, pm := range o.metrics.Snapshot() {
		byID[pm.Provider] = pm
	}
	if byID["openai"].FailureCount != 1 || byID["anthropic"].FailureCount != 1 {
		t.Error("expected one recorded failure per provider")
	}
}

func TestExecute_BothCircuitsOpenReportsBoth(t *testing.T) {
	primary := &stubAdapter{id: "openai", respond: failAlways("primary exploded")}
	fallback := &stubAdapter{id: "anthropic", respond: failAlways("fallback exploded")}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
		Breaker:          BreakerConfig{Threshold: 1, OpenTimeout: time.Hour},
	}, primary, fallback)

	ctx := context.Background()
	if _, err := o.Execute(ctx, soapRequest("note", "unit-7")); err == nil {
		t.Fatal("expected first request to fail")
	}

	// Both breakers are now open; neither adapter is reached again.
	_, err := o.Execute(ctx, soapRequest("note", "unit-7"))
	var pfe *ProviderFailureError
	if !errors.As(err, &pfe) {
		t.Fatalf("expected ProviderFailureError, got %v", err)
	}
	msg := err.Error()
	if strings.Count(msg, "circuit open") != 2 {
		t.Errorf("expected both circuit-open messages, got %q", msg)
	}
	if primary.callCount() != 1 || fallback.callCount() != 1 {
		t.Errorf("expected no further adapter calls, got %d / %d", primary.callCount(), fallback.callCount())
	}
}

func TestExecute_BreakerRejectionSkipsMetrics(t *testing.T) {
	primary := &stubAdapter{id: "openai", respond: failAlways("upstream 500")}
	fallback := &stubAdapter{id: "anthropic"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
		Breaker:          BreakerConfig{Threshold: 1, OpenTimeout: time.Hour},
	}, primary, fallback)

	ctx := context.Background()
	// Opens the openai breaker, rescued by anthropic.
	if _, err := o.Execute(ctx, soapRequest("note a", "unit-7")); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	// Pin openai as primary so its open breaker is consulted again; the
	// rejection must not count as a provider call.
	second := soapRequest("note b", "unit-7")
	second.Preferred = "openai"
	if _, err := o.Execute(ctx, second); err != nil {
		t.Fatalf("second execute: %v", err)
	}

	byID := map[string]ProviderMetrics{}
	for _, pm := range o.metrics.Snapshot() {
		byID[pm.Provider] = pm
	}
	if pm := byID["openai"]; pm.TotalRequests != 1 {
		t.Errorf("openai: breaker rejection must not be recorded, got %d requests", pm.TotalRequests)
	}
	if pm := byID["anthropic"]; pm.TotalRequests != 2 || pm.SuccessCount != 2 {
		t.Errorf("anthropic: expected 2 requests / 2 successes, got %d / %d", pm.TotalRequests, pm.SuccessCount)
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestExecute_CancelledCallSkipsFallback(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	primary.respond = func(ctx context.Context, _ provider.Request) (provider.Response, error) {
		return provider.Response{}, context.Canceled
	}
	fallback := &stubAdapter{id: "anthropic"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
	}, primary, fallback)

	_, err := o.Execute(context.Background(), soapRequest("note", "unit-7"))
	var ce *CancelledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CancelledError, got %v", err)
	}
	if ce.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", ce.Provider)
	}
	if n := fallback.callCount(); n != 0 {
		t.Errorf("a caller-side cancellation must not trigger fallback, got %d calls", n)
	}
}

// ---------------------------------------------------------------------------
// Selection and preferences
// ---------------------------------------------------------------------------

func TestExecute_PreferredProviderOverridesSelection(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	secondary := &stubAdapter{id: "anthropic"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
	}, primary, secondary)

	req := soapRequest("note", "unit-7")
	req.Preferred = "anthropic"
	res, err := o.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Provider != "anthropic" {
		t.Errorf("expected preferred provider anthropic, got %q", res.Provider)
	}
	if res.UsedFallback {
		t.Error("a preferred provider is a primary, not a fallback")
	}
	if primary.callCount() != 0 {
		t.Errorf("expected openai untouched, got %d calls", primary.callCount())
	}
}

func TestExecute_SelectionFollowsSuccessRate(t *testing.T) {
	primary := &stubAdapter{id: "openai", respond: failAlways("upstream 500")}
	secondary := &stubAdapter{id: "anthropic"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
	}, primary, secondary)

	ctx := context.Background()
	// Three failed openai attempts (each rescued by anthropic) drive the
	// openai success rate to 0 while anthropic sits at 1.
	for i := 0; i < 3; i++ {
		if _, err := o.Execute(ctx, soapRequest(fmt.Sprintf("note %d", i), "unit-7")); err != nil {
			t.Fatalf("warmup %d: %v", i, err)
		}
	}
	primaryCalls := primary.callCount()

	res, err := o.Execute(ctx, soapRequest("fresh note", "unit-7"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Provider != "anthropic" || res.UsedFallback {
		t.Errorf("expected anthropic selected as primary, got %q (fallback=%v)", res.Provider, res.UsedFallback)
	}
	if primary.callCount() != primaryCalls {
		t.Error("expected openai not attempted once anthropic leads on success rate")
	}
}

// ---------------------------------------------------------------------------
// Status, probes, confidence
// ---------------------------------------------------------------------------

func TestStatus_ReflectsPipelineState(t *testing.T) {
	primary := &stubAdapter{id: "openai"}
	fallback := &stubAdapter{id: "anthropic"}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
		RateLimit:        RateLimiterConfig{Limit: 1, Window: time.Minute},
	}, primary, fallback)

	ctx := context.Background()
	if _, err := o.Execute(ctx, soapRequest("note", "unit-7")); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if _, err := o.Execute(ctx, soapRequest("note", "unit-7")); err == nil {
		t.Fatal("expected second request to be rate limited")
	}

	status := o.Status(ctx)
	if len(status.Providers) != 2 {
		t.Fatalf("expected 2 provider snapshots, got %d", len(status.Providers))
	}
	if status.Providers[0].Provider != "openai" || status.Providers[1].Provider != "anthropic" {
		t.Errorf("expected registration order openai, anthropic; got %s, %s",
			status.Providers[0].Provider, status.Providers[1].Provider)
	}
	if len(status.Breakers) != 2 {
		t.Errorf("expected 2 breaker snapshots, got %d", len(status.Breakers))
	}
	for _, b := range status.Breakers {
		if b.State != BreakerClosed {
			t.Errorf("breaker %s: expected closed, got %s", b.Provider, b.State)
		}
	}
	if status.CacheEntries != 1 {
		t.Errorf("expected 1 cache entry, got %d", status.CacheEntries)
	}
	if status.RateLimitedCallers != 1 {
		t.Errorf("expected 1 rate limited caller, got %d", status.RateLimitedCallers)
	}
}

func TestProbeProviders_ReportsHealthWithoutSideEffects(t *testing.T) {
	healthy := &stubAdapter{id: "openai"}
	broken := &stubAdapter{id: "anthropic", respond: failAlways("connection refused")}
	o := newTestOrchestrator(t, OrchestratorConfig{
		DefaultProvider:  "openai",
		FallbackProvider: "anthropic",
	}, healthy, broken)

	probes := o.ProbeProviders(context.Background())
	if len(probes) != 2 {
		t.Fatalf("expected 2 probes, got %d", len(probes))
	}
	// Providers() sorts ids, so anthropic comes first.
	if probes[0].Provider != "anthropic" || probes[0].Healthy {
		t.Errorf("expected anthropic unhealthy, got %+v", probes[0])
	}
	if !strings.Contains(probes[0].Error, "connection refused") {
		t.Errorf("expected probe error message, got %q", probes[0].Error)
	}
	if probes[1].Provider != "openai" || !probes[1].Healthy {
		t.Errorf("expected openai healthy, got %+v", probes[1])
	}

	for _, pm := range o.metrics.Snapshot() {
		if pm.TotalRequests != 0 {
			t.Errorf("probes must not touch metrics, %s recorded %d", pm.Provider, pm.TotalRequests)
		}
	}
	for _, b := range o.breakers.Snapshot() {
		if b.State != BreakerClosed || b.ConsecutiveFailures != 0 {
			t.Errorf("probes must not touch breakers, %s is %s", b.Provider, b.State)
		}
	}
}

func TestExecute_ScoresConfidence(t *testing.T) {
	long := strings.Repeat("assessment of the patient plan and subjective findings. ", 5)
	primary := &stubAdapter{id: "openai"}
	primary.respond = func(context.Context, provider.Request) (provider.Response, error) {
		return provider.Response{Text: long, Model: "gpt"}, nil
	}
	o := newTestOrchestrator(t, OrchestratorConfig{}, primary)

	res, err := o.Execute(context.Background(), soapRequest("note", "unit-7"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Confidence <= 0.5 || res.Confidence > 1 {
		t.Errorf("expected keyword and length bonuses above the base score, got %v", res.Confidence)
	}
}

func TestOnBreakerChange_SeesTransitions(t *testing.T) {
	primary := &stubAdapter{id: "openai", respond: failAlways("upstream 500")}
	o := newTestOrchestrator(t, OrchestratorConfig{
		Breaker: BreakerConfig{Threshold: 1, OpenTimeout: time.Hour},
	}, primary)

	var mu sync.Mutex
	var seen []string
	o.OnBreakerChange(func(providerID string, from, to BreakerState) {
		mu.Lock()
		seen = append(seen, fmt.Sprintf("%s:%s->%s", providerID, from, to))
		mu.Unlock()
	})

	if _, err := o.Execute(context.Background(), soapRequest("note", "unit-7")); err == nil {
		t.Fatal("expected failure")
	}
	o.ResetBreakers()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"openai:closed->open", "openai:open->closed"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d transitions, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

type recordingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *recordingSink) RecordOutcome(_ context.Context, oc Outcome) {
	s.mu.Lock()
	s.outcomes = append(s.outcomes, oc)
	s.mu.Unlock()
}

func (s *recordingSink) all() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outcomes...)
}

func TestExecute_EmitsOutcomesForEveryCall(t *testing.T) {
	calls := 0
	primary := &stubAdapter{id: "openai"}
	primary.respond = func(context.Context, provider.Request) (provider.Response, error) {
		calls++
		if calls == 1 {
			return provider.Response{Text: "draft note", Model: "gpt"}, nil
		}
		return provider.Response{}, errors.New("upstream 500")
	}
	o := newTestOrchestrator(t, OrchestratorConfig{
		RateLimit: RateLimiterConfig{Limit: 3, Window: time.Minute},
	}, primary)

	sink := &recordingSink{}
	o.SetOutcomeSink(sink)

	ctx := context.Background()
	if _, err := o.Execute(ctx, soapRequest("note", "unit-7")); err != nil {
		t.Fatalf("success execute: %v", err)
	}
	if _, err := o.Execute(ctx, soapRequest("note", "unit-7")); err != nil {
		t.Fatalf("cached execute: %v", err)
	}
	if _, err := o.Execute(ctx, soapRequest("other note", "unit-7")); err == nil {
		t.Fatal("expected provider failure")
	}
	if _, err := o.Execute(ctx, soapRequest("third note", "unit-7")); err == nil {
		t.Fatal("expected rate limit rejection")
	}
	if _, err := o.Execute(ctx, Request{TaskType: "poetry", Prompt: "p", CallerID: "c"}); err == nil {
		t.Fatal("expected validation rejection")
	}

	outcomes := sink.all()
	if len(outcomes) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(outcomes))
	}
	checks := []struct {
		kind     string
		cached   bool
		provider string
	}{
		{"", false, "openai"},
		{"", true, "openai"},
		{KindProviderFailure, false, "openai"},
		{KindRateLimitExceeded, false, ""},
		{KindValidation, false, ""},
	}
	seen := map[string]bool{}
	for i, want := range checks {
		oc := outcomes[i]
		if oc.ErrorKind != want.kind {
			t.Errorf("outcome %d: expected kind %q, got %q", i, want.kind, oc.ErrorKind)
		}
		if oc.Cached != want.cached {
			t.Errorf("outcome %d: expected cached=%v", i, want.cached)
		}
		if oc.Provider != want.provider {
			t.Errorf("outcome %d: expected provider %q, got %q", i, want.provider, oc.Provider)
		}
		if oc.RequestID == "" {
			t.Errorf("outcome %d: missing request id", i)
		}
		if seen[oc.RequestID] {
			t.Errorf("outcome %d: request id %s reused", i, oc.RequestID)
		}
		seen[oc.RequestID] = true
	}
	if msg := outcomes[2].ErrorMessage; !strings.Contains(msg, "upstream 500") {
		t.Errorf("expected failure message in outcome, got %q", msg)
	}
}

func TestKindOf_LabelsAggregateFailures(t *testing.T) {
	err := &ProviderFailureError{
		Primary:     "openai",
		PrimaryErr:  &ServiceUnavailableError{Provider: "openai"},
		Fallback:    "anthropic",
		FallbackErr: &ServiceUnavailableError{Provider: "anthropic"},
	}
	if kind := KindOf(err); kind != KindProviderFailure {
		t.Errorf("expected %s for a double circuit-open aggregate, got %s", KindProviderFailure, kind)
	}
	if kind := KindOf(&ServiceUnavailableError{Provider: "openai"}); kind != KindServiceUnavailable {
		t.Errorf("expected %s for a lone circuit-open, got %s", KindServiceUnavailable, kind)
	}
}

func TestNewOrchestrator_RejectsBadConfig(t *testing.T) {
	adapters := map[string]provider.Adapter{"openai": &stubAdapter{id: "openai"}}

	if _, err := NewOrchestrator(OrchestratorConfig{DefaultProvider: "openai"}, nil, nil, nil, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for missing adapters")
	}
	if _, err := NewOrchestrator(OrchestratorConfig{}, adapters, nil, nil, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for missing default provider")
	}
	if _, err := NewOrchestrator(OrchestratorConfig{DefaultProvider: "bard"}, adapters, nil, nil, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown default provider")
	}
	if _, err := NewOrchestrator(OrchestratorConfig{DefaultProvider: "openai", FallbackProvider: "bard"}, adapters, nil, nil, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown fallback provider")
	}
}
