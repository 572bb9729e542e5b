package risk

import (
	"context"

	"github.com/google/uuid"
)

type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Report, int, error)
}
