package nursing

import (
	"context"

	"github.com/google/uuid"
)

type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error)
	Update(ctx context.Context, a *Assessment) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error)
}
