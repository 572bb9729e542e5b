package risk

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

type ReportRepoPG struct {
	db queryable
}

func NewReportRepoPG(pool *pgxpool.Pool) *ReportRepoPG {
	return &ReportRepoPG{db: pool}
}

const reportCols = `id, patient_id, author_id, factors, narrative,
	provider, model, confidence, created_at`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	err := row.Scan(
		&r.ID, &r.PatientID, &r.AuthorID, &r.Factors, &r.Narrative,
		&r.Provider, &r.Model, &r.Confidence, &r.CreatedAt,
	)
	return &r, err
}

func (r *ReportRepoPG) Create(ctx context.Context, rep *Report) error {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO risk_reports (
			id, patient_id, author_id, factors, narrative,
			provider, model, confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		rep.ID, rep.PatientID, rep.AuthorID, rep.Factors, rep.Narrative,
		rep.Provider, rep.Model, rep.Confidence,
	).Scan(&rep.CreatedAt)
}

func (r *ReportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	q := fmt.Sprintf("SELECT %s FROM risk_reports WHERE id = $1", reportCols)
	return scanReport(r.db.QueryRow(ctx, q, id))
}

func (r *ReportRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Report, int, error) {
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

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM risk_reports %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM risk_reports %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		reportCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rep)
	}
	return items, total, rows.Err()
}
