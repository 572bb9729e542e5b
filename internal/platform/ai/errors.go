package ai

import (
	"errors"
	"fmt"
	"time"
)

// Error kind labels carried in outcomes and call-log rows.
const (
	KindValidation         = "validation_error"
	KindRateLimitExceeded  = "rate_limit_exceeded"
	KindServiceUnavailable = "service_unavailable"
	KindProviderFailure    = "provider_failure"
	KindCancelled          = "cancelled"
)

// ValidationError reports a rejected Execute input. It is returned before any
// limiter, cache, breaker, or metrics state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitError reports that the caller exhausted its request window.
// RetryAfter is the time remaining until the window resets.
type RateLimitError struct {
	CallerID   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for caller %s, retry after %s", e.CallerID, e.RetryAfter)
}

// ServiceUnavailableError reports a circuit-open rejection for one provider.
// It surfaces to callers only when no fallback could be attempted.
type ServiceUnavailableError struct {
	Provider string
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("provider %s unavailable: circuit open", e.Provider)
}

// ProviderFailureError reports that the attempted providers all failed. When a
// fallback was tried, both underlying messages are carried; when only one
// provider was configured, Fallback and FallbackErr are empty.
type ProviderFailureError struct {
	Primary     string
	PrimaryErr  error
	Fallback    string
	FallbackErr error
}

func (e *ProviderFailureError) Error() string {
	if e.Fallback == "" {
		return fmt.Sprintf("provider %s failed: %v", e.Primary, e.PrimaryErr)
	}
	return fmt.Sprintf("provider %s failed: %v; fallback %s failed: %v",
		e.Primary, e.PrimaryErr, e.Fallback, e.FallbackErr)
}

func (e *ProviderFailureError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.PrimaryErr != nil {
		errs = append(errs, e.PrimaryErr)
	}
	if e.FallbackErr != nil {
		errs = append(errs, e.FallbackErr)
	}
	return errs
}

// CancelledError reports that the caller's context ended while a provider call
// was in flight. The attempt is still recorded as a failure against the
// provider; no fallback is tried because the caller is gone.
type CancelledError struct {
	Provider string
	Cause    error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("request cancelled during call to provider %s: %v", e.Provider, e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// PipelineError reports whether err carries one of the orchestrator's error
// types. Domain handlers use it to tell pipeline failures apart from their
// own input validation errors.
func PipelineError(err error) bool {
	var (
		ve *ValidationError
		re *RateLimitError
		se *ServiceUnavailableError
		pe *ProviderFailureError
		ce *CancelledError
	)
	return errors.As(err, &ve) || errors.As(err, &re) || errors.As(err, &ce) ||
		errors.As(err, &pe) || errors.As(err, &se)
}

// KindOf maps an orchestrator error to its outcome label. Unknown errors map
// to provider_failure so no failure leaves the orchestrator unlabelled.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var (
		ve *ValidationError
		re *RateLimitError
		se *ServiceUnavailableError
		pe *ProviderFailureError
		ce *CancelledError
	)
	// ProviderFailure is matched before ServiceUnavailable: an aggregate
	// failure can wrap circuit-open causes and must keep its own label.
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &re):
		return KindRateLimitExceeded
	case errors.As(err, &ce):
		return KindCancelled
	case errors.As(err, &pe):
		return KindProviderFailure
	case errors.As(err, &se):
		return KindServiceUnavailable
	default:
		return KindProviderFailure
	}
}
