package ailog

import (
	"context"
	"fmt"
	"strings"
	"time"

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

type CallLogRepoPG struct {
	db queryable
}

func NewCallLogRepoPG(pool *pgxpool.Pool) *CallLogRepoPG {
	return &CallLogRepoPG{db: pool}
}

const callCols = `id, request_id, task_type, caller_id, provider, model,
	confidence, tokens_used, latency_ms, used_fallback, cached,
	error_kind, error_message, created_at`

func scanCall(row pgx.Row) (*CallRecord, error) {
	var r CallRecord
	err := row.Scan(
		&r.ID, &r.RequestID, &r.TaskType, &r.CallerID, &r.Provider, &r.Model,
		&r.Confidence, &r.TokensUsed, &r.LatencyMs, &r.UsedFallback, &r.Cached,
		&r.ErrorKind, &r.ErrorMessage, &r.CreatedAt,
	)
	return &r, err
}

func (r *CallLogRepoPG) Insert(ctx context.Context, rec *CallRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO ai_call_log (
			id, request_id, task_type, caller_id, provider, model,
			confidence, tokens_used, latency_ms, used_fallback, cached,
			error_kind, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		)`,
		rec.ID, rec.RequestID, rec.TaskType, rec.CallerID, rec.Provider, rec.Model,
		rec.Confidence, rec.TokensUsed, rec.LatencyMs, rec.UsedFallback, rec.Cached,
		rec.ErrorKind, rec.ErrorMessage, rec.CreatedAt,
	)
	return err
}

func (r *CallLogRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CallRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM ai_call_log WHERE id = $1", callCols)
	return scanCall(r.db.QueryRow(ctx, q, id))
}

func (r *CallLogRepoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*CallRecord, int, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if v, ok := params["caller_id"]; ok {
		where = append(where, fmt.Sprintf("caller_id = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["task_type"]; ok {
		where = append(where, fmt.Sprintf("task_type = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["provider"]; ok {
		where = append(where, fmt.Sprintf("provider = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["error_kind"]; ok {
		where = append(where, fmt.Sprintf("error_kind = $%d", idx))
		args = append(args, v)
		idx++
	}
	if v, ok := params["cached"]; ok {
		where = append(where, fmt.Sprintf("cached = $%d", idx))
		args = append(args, v == "true")
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM ai_call_log %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM ai_call_log %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		callCols, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *CallLogRepoPG) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM ai_call_log WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
