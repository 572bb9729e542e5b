package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Scripted is an offline adapter that fabricates deterministic responses.
// It backs local development and sandbox deployments where no provider
// credentials exist, and produces the same JSON shape real providers are
// prompted for.
type Scripted struct {
	id    string
	model string
	delay time.Duration
}

// NewScripted creates a Scripted adapter answering as the given provider id
// after the given artificial delay.
func NewScripted(id string, delay time.Duration) *Scripted {
	return &Scripted{
		id:    id,
		model: "scripted-v1",
		delay: delay,
	}
}

// ID returns the provider identifier.
func (s *Scripted) ID() string {
	return s.id
}

// Generate fabricates a structured response derived from the prompt. The
// artificial delay honors context cancellation.
func (s *Scripted) Generate(ctx context.Context, req Request) (Response, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	excerpt := excerptOf(req.Prompt, 140)
	instruction := excerptOf(req.System, 80)
	if instruction == "" {
		instruction = "Draft clinical documentation."
	}

	doc := map[string]string{
		"note":    fmt.Sprintf("Scripted draft for review. %s Source: %s", instruction, excerpt),
		"summary": excerpt,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return Response{}, fmt.Errorf("%s: encode scripted response: %w", s.id, err)
	}

	model := req.Model
	if model == "" {
		model = s.model
	}
	return Response{
		Text:       string(body),
		Model:      model,
		TokensUsed: (len(req.Prompt) + len(body)) / 4,
	}, nil
}

// excerptOf collapses whitespace and truncates to at most n characters.
func excerptOf(s string, n int) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if len(collapsed) <= n {
		return collapsed
	}
	return collapsed[:n]
}
