package nursing

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

// DraftRequest is the input for generating an assessment draft.
type DraftRequest struct {
	PatientID    string `json:"patient_id"`
	AuthorID     string `json:"author_id"`
	Observations string `json:"observations"`
	// Provider optionally pins a specific AI provider for this draft.
	Provider string `json:"provider,omitempty"`
}

type Service struct {
	repo AssessmentRepository
	gen  generator
}

func NewService(repo AssessmentRepository, gen generator) *Service {
	return &Service{repo: repo, gen: gen}
}

// CreateDraft generates an assessment narrative from the recorded
// observations and persists it in draft status. The patient id is folded
// into the generation request so identical observations for different
// patients never share a cached response.
func (s *Service) CreateDraft(ctx context.Context, req DraftRequest) (*Assessment, error) {
	if req.PatientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if req.AuthorID == "" {
		return nil, fmt.Errorf("author_id is required")
	}
	if strings.TrimSpace(req.Observations) == "" {
		return nil, fmt.Errorf("observations are required")
	}

	res, err := s.gen.Execute(ctx, ai.Request{
		TaskType:  ai.TaskNursingAssessment,
		Prompt:    req.Observations,
		CallerID:  req.AuthorID,
		Aux:       map[string]string{"patient_id": req.PatientID},
		Preferred: req.Provider,
	})
	if err != nil {
		return nil, err
	}

	a := &Assessment{
		ID:           uuid.New(),
		PatientID:    req.PatientID,
		AuthorID:     req.AuthorID,
		Observations: req.Observations,
		Draft:        res.Content,
		Status:       StatusDraft,
		Provider:     res.Provider,
		Model:        res.Model,
		Confidence:   res.Confidence,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("persist assessment: %w", err)
	}
	return a, nil
}

func (s *Service) GetAssessment(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchAssessments(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

// Finalize marks an assessment as signed off. A non-empty draft argument
// replaces the generated text with the nurse's edited version first.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID, draft string) (*Assessment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Final() {
		return nil, fmt.Errorf("assessment is already final")
	}
	if strings.TrimSpace(draft) != "" {
		a.Draft = draft
	}
	a.Status = StatusFinal
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
