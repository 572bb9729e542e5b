package risk

import (
	"time"

	"github.com/google/uuid"
)

// Report maps to the risk_reports table. The narrative is the generated risk
// analysis; numeric scoring lives in upstream clinical tooling, not here.
type Report struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  string    `db:"patient_id" json:"patient_id"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	Factors    string    `db:"factors" json:"factors"`
	Narrative  string    `db:"narrative" json:"narrative"`
	Provider   string    `db:"provider" json:"provider"`
	Model      string    `db:"model" json:"model,omitempty"`
	Confidence float64   `db:"confidence" json:"confidence"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
