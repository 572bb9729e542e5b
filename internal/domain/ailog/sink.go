package ailog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/carescribe/carescribe/internal/platform/ai"
)

const defaultInsertTimeout = 5 * time.Second

// Sink persists orchestrator outcomes without blocking the request path.
// Each outcome is written on its own goroutine; the orchestrator hands off
// and moves on. A failed insert is logged and dropped, never retried, so a
// database outage cannot back up generation traffic.
type Sink struct {
	svc     *Service
	logger  zerolog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewSink(svc *Service, logger zerolog.Logger) *Sink {
	return &Sink{
		svc:     svc,
		logger:  logger.With().Str("component", "ailog").Logger(),
		timeout: defaultInsertTimeout,
	}
}

// RecordOutcome satisfies the orchestrator's outcome sink. The incoming
// context belongs to the HTTP request and may be cancelled the moment the
// response is written, so the insert runs under its own deadline instead.
func (s *Sink) RecordOutcome(_ context.Context, oc ai.Outcome) {
	rec := NewCallRecord(oc)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.svc.RecordCall(ctx, rec); err != nil {
			s.logger.Error().
				Err(err).
				Str("request_id", rec.RequestID).
				Str("task_type", rec.TaskType).
				Msg("failed to persist ai call record")
		}
	}()
}

// Flush waits for in-flight inserts. Intended for shutdown and tests.
func (s *Sink) Flush() { s.wg.Wait() }
