package soapnote

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

type NoteRepoPG struct {
	db queryable
}

func NewNoteRepoPG(pool *pgxpool.Pool) *NoteRepoPG {
	return &NoteRepoPG{db: pool}
}

const noteCols = `id, patient_id, encounter_id, author_id,
	subjective, objective, assessment, plan, structured,
	provider, model, confidence, created_at`

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	err := row.Scan(
		&n.ID, &n.PatientID, &n.EncounterID, &n.AuthorID,
		&n.Subjective, &n.Objective, &n.Assessment, &n.Plan, &n.Structured,
		&n.Provider, &n.Model, &n.Confidence, &n.CreatedAt,
	)
	return &n, err
}

func (r *NoteRepoPG) Create(ctx context.Context, n *Note) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO soap_notes (
			id, patient_id, encounter_id, author_id,
			subjective, objective, assessment, plan, structured,
			provider, model, confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`,
		n.ID, n.PatientID, n.EncounterID, n.AuthorID,
		n.Subjective, n.Objective, n.Assessment, n.Plan, n.Structured,
		n.Provider, n.Model, n.Confidence,
	).Scan(&n.CreatedAt)
}

func (r *NoteRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Note, error) {
	q := fmt.Sprintf("SELECT %s FROM soap_notes WHERE id = $1", noteCols)
	return scanNote(r.db.QueryRow(ctx, q, id))
}

func (r *NoteRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Note, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if v, ok := params["patient_id"]; ok {
		where = append(where, fmt.Sprintf("patient_id = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["encounter_id"]; ok {
		where = append(where, fmt.Sprintf("encounter_id = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["author_id"]; ok {
		where = append(where, fmt.Sprintf("author_id = $%d", idx))
		args = append(args, v)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM soap_notes %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM soap_notes %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		noteCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}
