package nursing

import (
	"time"

	"github.com/google/uuid"
)

// Assessment statuses. A generated draft stays editable until the authoring
// nurse finalizes it.
const (
	StatusDraft = "draft"
	StatusFinal = "final"
)

// Assessment maps to the nursing_assessments table. The draft narrative is
// generated from the nurse's recorded observations; the observations are kept
// verbatim so the draft can always be audited against its source.
type Assessment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    string    `db:"patient_id" json:"patient_id"`
	AuthorID     string    `db:"author_id" json:"author_id"`
	Observations string    `db:"observations" json:"observations"`
	Draft        string    `db:"draft" json:"draft"`
	Status       string    `db:"status" json:"status"`
	Provider     string    `db:"provider" json:"provider"`
	Model        string    `db:"model" json:"model,omitempty"`
	Confidence   float64   `db:"confidence" json:"confidence"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Final reports whether the assessment has been signed off.
func (a *Assessment) Final() bool {
	return a.Status == StatusFinal
}
