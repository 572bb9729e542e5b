package ailog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type CallLogRepository interface {
	Insert(ctx context.Context, rec *CallRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*CallRecord, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*CallRecord, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
