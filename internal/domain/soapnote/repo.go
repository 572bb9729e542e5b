package soapnote

import (
	"context"

	"github.com/google/uuid"
)

type NoteRepository interface {
	Create(ctx context.Context, n *Note) error
	GetByID(ctx context.Context, id uuid.UUID) (*Note, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Note, int, error)
}
