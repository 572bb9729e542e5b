package nursing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type AssessmentRepoPG struct {
	db queryable
}

func NewAssessmentRepoPG(pool *pgxpool.Pool) *AssessmentRepoPG {
	return &AssessmentRepoPG{db: pool}
}

const assessmentCols = `id, patient_id, author_id, observations, draft, status,
	provider, model, confidence, created_at, updated_at`

func scanAssessment(row pgx.Row) (*Assessment, error) {
	var a Assessment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.AuthorID, &a.Observations, &a.Draft, &a.Status,
		&a.Provider, &a.Model, &a.Confidence, &a.CreatedAt, &a.UpdatedAt,
	)
	return &a, err
}

func (r *AssessmentRepoPG) Create(ctx context.Context, a *Assessment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO nursing_assessments (
			id, patient_id, author_id, observations, draft, status,
			provider, model, confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.AuthorID, a.Observations, a.Draft, a.Status,
		a.Provider, a.Model, a.Confidence,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AssessmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Assessment, error) {
	q := fmt.Sprintf("SELECT %s FROM nursing_assessments WHERE id = $1", assessmentCols)
	return scanAssessment(r.db.QueryRow(ctx, q, id))
}

func (r *AssessmentRepoPG) Update(ctx context.Context, a *Assessment) error {
	_, err := r.db.Exec(ctx, `
		UPDATE nursing_assessments SET
			draft = $2, status = $3, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Draft, a.Status,
	)
	return err
}

func (r *AssessmentRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Assessment, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if v, ok := params["patient_id"]; ok {
		where = append(where, fmt.Sprintf("patient_id = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["author_id"]; ok {
		where = append(where, fmt.Sprintf("author_id = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["status"]; ok {
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, v)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM nursing_assessments %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM nursing_assessments %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		assessmentCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}
