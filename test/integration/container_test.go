package integration

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	pgImage       = "postgres:16-alpine"
	pgUser        = "carescribe"
	pgPassword    = "carescribe"
	pgDatabase    = "carescribe_test"
	startPatience = 30 * time.Second
)

// dockerAvailable reports whether the Docker CLI can reach a daemon.
func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

// startDockerPostgres runs a throwaway Postgres container bound to loopback
// and returns its connection string plus a cleanup that removes the
// container. Data lives on a tmpfs, so startup is fast and nothing survives
// the run.
func startDockerPostgres(ctx context.Context) (string, func(), error) {
	port, err := freeLocalPort()
	if err != nil {
		return "", nil, fmt.Errorf("pick port: %w", err)
	}
	name := fmt.Sprintf("carescribe-it-%d", port)

	// A container left over from an interrupted run would still hold the name.
	_ = exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()

	out, err := exec.CommandContext(ctx, "docker", "run",
		"--name", name,
		"-d",
		"-p", fmt.Sprintf("127.0.0.1:%d:5432", port),
		"-e", "POSTGRES_USER="+pgUser,
		"-e", "POSTGRES_PASSWORD="+pgPassword,
		"-e", "POSTGRES_DB="+pgDatabase,
		"--tmpfs", "/var/lib/postgresql/data",
		pgImage,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run: %w: %s", err, strings.TrimSpace(string(out)))
	}
	containerID := strings.TrimSpace(string(out))

	cleanup := func() {
		_ = exec.Command("docker", "rm", "-f", containerID).Run()
	}

	connStr := fmt.Sprintf("postgres://%s:%s@127.0.0.1:%d/%s?sslmode=disable",
		pgUser, pgPassword, port, pgDatabase)
	if err := waitForPostgres(ctx, connStr, startPatience); err != nil {
		cleanup()
		return "", nil, err
	}
	return connStr, cleanup, nil
}

func freeLocalPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitForPostgres polls until the server answers a ping or patience runs out.
// The last probe error is wrapped into the failure so the cause is visible.
func waitForPostgres(ctx context.Context, connStr string, patience time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, patience)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("postgres not ready after %v: %w", patience, lastErr)
			}
			return fmt.Errorf("postgres not ready after %v", patience)
		case <-ticker.C:
			if lastErr = pingOnce(ctx, connStr); lastErr == nil {
				return nil
			}
		}
	}
}

// pingOnce dials a single short-lived connection. A pool would be overkill
// for a readiness probe.
func pingOnce(ctx context.Context, connStr string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}
