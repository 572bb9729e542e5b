package soapnote

import (
	"time"

	"github.com/google/uuid"

	"github.com/carescribe/carescribe/internal/platform/ai"
)

// Note maps to the soap_notes table.
type Note struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   string    `db:"patient_id" json:"patient_id"`
	EncounterID string    `db:"encounter_id" json:"encounter_id,omitempty"`
	AuthorID    string    `db:"author_id" json:"author_id"`
	Subjective  string    `db:"subjective" json:"subjective"`
	Objective   string    `db:"objective" json:"objective"`
	Assessment  string    `db:"assessment" json:"assessment"`
	Plan        string    `db:"plan" json:"plan"`
	Structured  bool      `db:"structured" json:"structured"`
	Provider    string    `db:"provider" json:"provider"`
	Model       string    `db:"model" json:"model,omitempty"`
	Confidence  float64   `db:"confidence" json:"confidence"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ApplySections fills the four sections from generated content. Structured
// output carrying at least one recognized section key maps field by field.
// Anything else lands verbatim in subjective with the note flagged
// unstructured, so reviewers know it still needs sectioning.
func (n *Note) ApplySections(content string) {
	p := ai.ParseContent(content)
	if p.Kind == ai.ContentStructured {
		subj := p.Field("subjective")
		obj := p.Field("objective")
		assess := p.Field("assessment")
		plan := p.Field("plan")
		if subj != "" || obj != "" || assess != "" || plan != "" {
			n.Subjective = subj
			n.Objective = obj
			n.Assessment = assess
			n.Plan = plan
			n.Structured = true
			return
		}
	}
	n.Subjective = content
	n.Structured = false
}
