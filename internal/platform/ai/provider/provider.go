// Package provider contains the outbound adapters for external AI services.
// Each adapter exposes a single Generate capability; resilience (rate
// limiting, circuit breaking, fallback) lives upstream in the orchestrator.
package provider

import (
	"context"
	"fmt"
)

// Request carries one generation call to an adapter. The fields mirror the
// per-task configuration the orchestrator passes through without
// interpreting.
type Request struct {
	Prompt      string
	System      string
	Model       string // empty means the adapter's configured default
	Temperature float64
	MaxTokens   int
}

// Response is the adapter's answer to a generation request.
type Response struct {
	Text       string
	Model      string // model that actually served the request
	TokensUsed int
}

// Adapter is implemented by every AI provider integration.
type Adapter interface {
	ID() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// StatusError reports a non-2xx answer from a provider API.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: request failed with status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: request failed with status %d: %s", e.Provider, e.StatusCode, e.Message)
}
