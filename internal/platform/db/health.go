package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthProbeTimeout = 5 * time.Second

// poolSnapshot captures the pool counters that matter when diagnosing
// saturation: how many connections exist, how many sit idle, and how often
// callers had to wait for one.
type poolSnapshot struct {
	TotalConns    int32  `json:"total_conns"`
	IdleConns     int32  `json:"idle_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	MaxConns      int32  `json:"max_conns"`
	AcquireCount  int64  `json:"acquire_count"`
	AcquireWait   string `json:"acquire_wait"`
	EmptyAcquires int64  `json:"empty_acquires"`
}

type healthReport struct {
	Status string       `json:"status"`
	PingMs int64        `json:"ping_ms,omitempty"`
	Error  string       `json:"error,omitempty"`
	Pool   poolSnapshot `json:"pool"`
}

func snapshotPool(pool *pgxpool.Pool) poolSnapshot {
	stat := pool.Stat()
	return poolSnapshot{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		AcquireCount:  stat.AcquireCount(),
		AcquireWait:   stat.AcquireDuration().String(),
		EmptyAcquires: stat.EmptyAcquireCount(),
	}
}

// buildReport maps a ping outcome to the health response. Health is judged by
// the ping alone: a pool that has opened no connections yet is still healthy
// as long as the server answers.
func buildReport(pingErr error, pingMs int64, snap poolSnapshot) (int, healthReport) {
	if pingErr != nil {
		return http.StatusServiceUnavailable, healthReport{
			Status: "unhealthy",
			Error:  pingErr.Error(),
			Pool:   snap,
		}
	}
	return http.StatusOK, healthReport{
		Status: "healthy",
		PingMs: pingMs,
		Pool:   snap,
	}
}

// HealthHandler serves the database health endpoint: a bounded ping plus a
// snapshot of the connection pool.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthProbeTimeout)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		pingMs := time.Since(start).Milliseconds()

		code, report := buildReport(err, pingMs, snapshotPool(pool))
		return c.JSON(code, report)
	}
}
