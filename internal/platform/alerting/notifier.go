// Package alerting delivers operational alerts to a configured webhook
// endpoint. Alerts are HMAC-SHA256 signed and every delivery attempt is
// recorded, so an operator can audit what was sent and when.
package alerting

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Alert kinds.
const (
	KindBreakerTransition = "breaker_transition"
	KindProviderProbe     = "provider_probe_failed"
)

// Alert is one operational event worth a webhook call.
type Alert struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Provider  string    `json:"provider,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Delivery records a single attempt to POST an alert.
type Delivery struct {
	ID           string        `json:"id"`
	AlertID      string        `json:"alert_id"`
	Kind         string        `json:"kind"`
	Payload      []byte        `json:"payload"`
	Signature    string        `json:"signature,omitempty"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	Status       string        `json:"status"` // "success" or "failed"
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// DeliveryStore persists delivery attempts.
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, d *Delivery) error
	ListDeliveries(ctx context.Context, limit, offset int) ([]*Delivery, int, error)
}

// ---------------------------------------------------------------------------
// MemoryDeliveryLog
// ---------------------------------------------------------------------------

// MemoryDeliveryLog is a bounded, thread-safe in-memory DeliveryStore. When
// full it drops the oldest entry.
type MemoryDeliveryLog struct {
	mu         sync.RWMutex
	deliveries []*Delivery
	maxEntries int
}

// NewMemoryDeliveryLog creates a log bounded to maxEntries; values <= 0 use
// the default of 1000.
func NewMemoryDeliveryLog(maxEntries int) *MemoryDeliveryLog {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryDeliveryLog{maxEntries: maxEntries}
}

func (l *MemoryDeliveryLog) RecordDelivery(_ context.Context, d *Delivery) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries = append(l.deliveries, d)
	if len(l.deliveries) > l.maxEntries {
		l.deliveries = l.deliveries[len(l.deliveries)-l.maxEntries:]
	}
	return nil
}

// ListDeliveries returns attempts newest first.
func (l *MemoryDeliveryLog) ListDeliveries(_ context.Context, limit, offset int) ([]*Delivery, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := len(l.deliveries)
	if offset >= total {
		return []*Delivery{}, total, nil
	}
	out := make([]*Delivery, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.deliveries[i])
	}
	return out, total, nil
}

// ---------------------------------------------------------------------------
// Signature helpers
// ---------------------------------------------------------------------------

// SignPayload computes the hex-encoded HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the HMAC-SHA256 of
// payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) NotifierOption {
	return func(n *Notifier) { n.httpClient = c }
}

// WithDeliveryStore overrides the default in-memory delivery log.
func WithDeliveryStore(s DeliveryStore) NotifierOption {
	return func(n *Notifier) { n.store = s }
}

// WithTimeout bounds each asynchronous delivery.
func WithTimeout(d time.Duration) NotifierOption {
	return func(n *Notifier) { n.timeout = d }
}

// Notifier signs and POSTs alerts to one configured endpoint. A Notifier
// with an empty URL is valid and drops every alert, so callers never need a
// nil check.
type Notifier struct {
	url        string
	secret     string
	httpClient *http.Client
	store      DeliveryStore
	timeout    time.Duration
	logger     zerolog.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a Notifier for the given endpoint. An empty rawURL
// disables delivery; a non-empty one must be http or https.
func NewNotifier(rawURL, secret string, logger zerolog.Logger, opts ...NotifierOption) (*Notifier, error) {
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("alert webhook url: %w", err)
		}
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return nil, fmt.Errorf("alert webhook url scheme must be http or https, got %q", u.Scheme)
		}
	}
	n := &Notifier{
		url:        rawURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		store:      NewMemoryDeliveryLog(0),
		timeout:    10 * time.Second,
		logger:     logger,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Enabled reports whether an endpoint is configured.
func (n *Notifier) Enabled() bool { return n.url != "" }

// NotifyBreakerTransition builds a breaker alert and delivers it on its own
// goroutine, so it is safe to call from a breaker transition listener.
func (n *Notifier) NotifyBreakerTransition(provider, from, to string) {
	if !n.Enabled() {
		return
	}
	alert := Alert{
		ID:        uuid.New().String(),
		Kind:      KindBreakerTransition,
		Provider:  provider,
		From:      from,
		To:        to,
		Message:   fmt.Sprintf("circuit breaker for provider %s moved from %s to %s", provider, from, to),
		Timestamp: time.Now(),
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.Deliver(ctx, alert)
	}()
}

// Flush waits for in-flight asynchronous deliveries. Intended for shutdown
// and tests.
func (n *Notifier) Flush() { n.wg.Wait() }

// Deliver signs and POSTs one alert, recording the attempt. The returned
// Delivery is already stored; callers only need it for inspection.
func (n *Notifier) Deliver(ctx context.Context, alert Alert) *Delivery {
	payload, _ := json.Marshal(alert)
	now := time.Now()

	d := &Delivery{
		ID:        uuid.New().String(),
		AlertID:   alert.ID,
		Kind:      alert.Kind,
		Payload:   payload,
		CreatedAt: now,
	}
	if n.secret != "" {
		d.Signature = SignPayload(payload, n.secret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		n.fail(ctx, d, err.Error())
		return d
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-ID", alert.ID)
	req.Header.Set("X-Alert-Timestamp", now.UTC().Format(time.RFC3339))
	if d.Signature != "" {
		req.Header.Set("X-Alert-Signature", "sha256="+d.Signature)
	}

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	d.Duration = time.Since(start)
	if err != nil {
		n.fail(ctx, d, err.Error())
		return d
	}
	defer resp.Body.Close()

	d.StatusCode = resp.StatusCode
	// Keep at most 1KB of the response for the log.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	d.ResponseBody = string(body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.Status = "success"
	} else {
		d.Status = "failed"
		d.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
		n.logger.Warn().
			Str("alert", alert.ID).
			Str("kind", alert.Kind).
			Int("status_code", resp.StatusCode).
			Msg("alert delivery rejected")
	}

	if err := n.store.RecordDelivery(ctx, d); err != nil {
		n.logger.Error().Err(err).Str("alert", alert.ID).Msg("failed to record alert delivery")
	}
	return d
}

func (n *Notifier) fail(ctx context.Context, d *Delivery, msg string) {
	d.Status = "failed"
	d.Error = msg
	n.logger.Warn().
		Str("alert", d.AlertID).
		Str("kind", d.Kind).
		Str("error", msg).
		Msg("alert delivery failed")
	if err := n.store.RecordDelivery(ctx, d); err != nil {
		n.logger.Error().Err(err).Str("alert", d.AlertID).Msg("failed to record alert delivery")
	}
}

// Deliveries returns recent delivery attempts, newest first.
func (n *Notifier) Deliveries(ctx context.Context, limit, offset int) ([]*Delivery, int, error) {
	return n.store.ListDeliveries(ctx, limit, offset)
}
