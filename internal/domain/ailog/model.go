package ailog

import (
	"time"

	"github.com/google/uuid"

	"github.com/carescribe/carescribe/internal/platform/ai"
)

// CallRecord is one persisted orchestrator execution. It mirrors the
// orchestrator outcome and carries request metadata only; prompts and
// generated text never reach this table.
type CallRecord struct {
	ID           uuid.UUID `db:"id" json:"id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	TaskType     string    `db:"task_type" json:"task_type"`
	CallerID     string    `db:"caller_id" json:"caller_id"`
	Provider     string    `db:"provider" json:"provider"`
	Model        string    `db:"model" json:"model"`
	Confidence   float64   `db:"confidence" json:"confidence"`
	TokensUsed   int       `db:"tokens_used" json:"tokens_used"`
	LatencyMs    int64     `db:"latency_ms" json:"latency_ms"`
	UsedFallback bool      `db:"used_fallback" json:"used_fallback"`
	Cached       bool      `db:"cached" json:"cached"`
	ErrorKind    string    `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Succeeded reports whether the underlying execution produced a result.
func (r *CallRecord) Succeeded() bool {
	return r.ErrorKind == ""
}

// NewCallRecord converts an orchestrator outcome into a persistable record.
func NewCallRecord(oc ai.Outcome) *CallRecord {
	created := oc.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return &CallRecord{
		ID:           uuid.New(),
		RequestID:    oc.RequestID,
		TaskType:     string(oc.TaskType),
		CallerID:     oc.CallerID,
		Provider:     oc.Provider,
		Model:        oc.Model,
		Confidence:   oc.Confidence,
		TokensUsed:   oc.TokensUsed,
		LatencyMs:    oc.LatencyMs,
		UsedFallback: oc.UsedFallback,
		Cached:       oc.Cached,
		ErrorKind:    oc.ErrorKind,
		ErrorMessage: oc.ErrorMessage,
		CreatedAt:    created,
	}
}
