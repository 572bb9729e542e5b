package ailog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	repo CallLogRepository
}

func NewService(repo CallLogRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) RecordCall(ctx context.Context, rec *CallRecord) error {
	if rec.TaskType == "" {
		return fmt.Errorf("task_type is required")
	}
	if rec.CallerID == "" {
		return fmt.Errorf("caller_id is required")
	}
	return s.repo.Insert(ctx, rec)
}

func (s *Service) GetCall(ctx context.Context, id uuid.UUID) (*CallRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchCalls(ctx context.Context, params map[string]string, limit, offset int) ([]*CallRecord, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

// PurgeCalls deletes call records older than the retention period and returns
// how many were removed. The log holds request metadata only, but retention
// still applies: callers and patients are identifiable from it.
func (s *Service) PurgeCalls(ctx context.Context, retainDays int) (int64, error) {
	if retainDays <= 0 {
		return 0, fmt.Errorf("retain_days must be positive")
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retainDays)
	return s.repo.DeleteOlderThan(ctx, cutoff)
}
