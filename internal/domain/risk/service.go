package risk

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carescribe/carescribe/internal/platform/ai"
)

// generator is the slice of the AI orchestrator this domain consumes.
type generator interface {
	Execute(ctx context.Context, req ai.Request) (ai.Result, error)
}

// ReportRequest is the input for generating a risk analysis narrative.
type ReportRequest struct {
	PatientID string `json:"patient_id"`
	AuthorID  string `json:"author_id"`
	Factors   string `json:"factors"`
	// Provider optionally pins a specific AI provider for this report.
	Provider string `json:"provider,omitempty"`
}

type Service struct {
	repo ReportRepository
	gen  generator
}

func NewService(repo ReportRepository, gen generator) *Service {
	return &Service{repo: repo, gen: gen}
}

// CreateReport generates a risk narrative from the documented factors and
// persists it together with its generation metadata.
func (s *Service) CreateReport(ctx context.Context, req ReportRequest) (*Report, error) {
	if req.PatientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if req.AuthorID == "" {
		return nil, fmt.Errorf("author_id is required")
	}
	if strings.TrimSpace(req.Factors) == "" {
		return nil, fmt.Errorf("factors are required")
	}

	res, err := s.gen.Execute(ctx, ai.Request{
		TaskType:  ai.TaskRiskAnalysis,
		Prompt:    req.Factors,
		CallerID:  req.AuthorID,
		Aux:       map[string]string{"patient_id": req.PatientID},
		Preferred: req.Provider,
	})
	if err != nil {
		return nil, err
	}

	rep := &Report{
		ID:         uuid.New(),
		PatientID:  req.PatientID,
		AuthorID:   req.AuthorID,
		Factors:    req.Factors,
		Narrative:  res.Content,
		Provider:   res.Provider,
		Model:      res.Model,
		Confidence: res.Confidence,
	}
	if err := s.repo.Create(ctx, rep); err != nil {
		return nil, fmt.Errorf("persist risk report: %w", err)
	}
	return rep, nil
}

func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchReports(ctx context.Context, params map[string]string, limit, offset int) ([]*Report, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}
