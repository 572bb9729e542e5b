package soapnote

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

// NoteRequest is the input for generating a SOAP note from a transcript.
type NoteRequest struct {
	PatientID   string `json:"patient_id"`
	EncounterID string `json:"encounter_id,omitempty"`
	AuthorID    string `json:"author_id"`
	Transcript  string `json:"transcript"`
	// Provider optionally pins a specific AI provider for this note.
	Provider string `json:"provider,omitempty"`
}

type Service struct {
	repo NoteRepository
	gen  generator
}

func NewService(repo NoteRepository, gen generator) *Service {
	return &Service{repo: repo, gen: gen}
}

// CreateFromTranscript turns an encounter transcript into a sectioned SOAP
// note. The patient and encounter ids are folded into the generation request
// so transcripts never share cached responses across patients.
func (s *Service) CreateFromTranscript(ctx context.Context, req NoteRequest) (*Note, error) {
	if req.PatientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}
	if req.AuthorID == "" {
		return nil, fmt.Errorf("author_id is required")
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, fmt.Errorf("transcript is required")
	}

	aux := map[string]string{"patient_id": req.PatientID}
	if req.EncounterID != "" {
		aux["encounter_id"] = req.EncounterID
	}

	res, err := s.gen.Execute(ctx, ai.Request{
		TaskType:  ai.TaskSOAPNote,
		Prompt:    req.Transcript,
		CallerID:  req.AuthorID,
		Aux:       aux,
		Preferred: req.Provider,
	})
	if err != nil {
		return nil, err
	}

	n := &Note{
		ID:          uuid.New(),
		PatientID:   req.PatientID,
		EncounterID: req.EncounterID,
		AuthorID:    req.AuthorID,
		Provider:    res.Provider,
		Model:       res.Model,
		Confidence:  res.Confidence,
	}
	n.ApplySections(res.Content)

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("persist soap note: %w", err)
	}
	return n, nil
}

func (s *Service) GetNote(ctx context.Context, id uuid.UUID) (*Note, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchNotes(ctx context.Context, params map[string]string, limit, offset int) ([]*Note, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}
