//go:build postgres

package storage

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func startEphemeralPostgres(t *testing.T) (string, func()) {
	t.Helper()

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("SOUNDCRATE_TEST_POSTGRES_DSN not set and docker unavailable")
	}

	user := envOr("SOUNDCRATE_TEST_POSTGRES_USER", "soundcrate")
	password := envOr("SOUNDCRATE_TEST_POSTGRES_PASSWORD", "soundcrate")
	db := envOr("SOUNDCRATE_TEST_POSTGRES_DB", "soundcrate_test")
	port := envOr("SOUNDCRATE_TEST_POSTGRES_PORT", "54331")
	image := envOr("SOUNDCRATE_TEST_POSTGRES_IMAGE", "postgres:16-alpine")

	containerName := fmt.Sprintf("soundcrate-postgres-test-%d", time.Now().UnixNano())
	args := []string{
		"run",
		"--rm",
		"--detach",
		"--name", containerName,
		"--publish", fmt.Sprintf("%s:5432", port),
		"--env", fmt.Sprintf("POSTGRES_USER=%s", user),
		"--env", fmt.Sprintf("POSTGRES_PASSWORD=%s", password),
		"--env", fmt.Sprintf("POSTGRES_DB=%s", db),
		"--health-cmd", fmt.Sprintf("pg_isready -U %s -d %s", user, db),
		"--health-interval", "2s",
		"--health-timeout", "5s",
		"--health-retries", "15",
		image,
	}
	if output, err := exec.Command("docker", args...).CombinedOutput(); err != nil {
		t.Skipf("start postgres container: %v: %s", err, string(output))
	}

	cleanup := func() {
		_ = exec.Command("docker", "rm", "-f", containerName).Run()
	}

	if err := waitForHealthyContainer(containerName, 60*time.Second); err != nil {
		logs, _ := exec.Command("docker", "logs", containerName).CombinedOutput()
		cleanup()
		t.Fatalf("%v: %s", err, string(logs))
	}

	dsn := fmt.Sprintf("postgres://%s:%s@127.0.0.1:%s/%s?sslmode=disable", user, password, port, db)
	return dsn, cleanup
}

func waitForHealthyContainer(name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		output, err := exec.Command("docker", "inspect", "--format", "{{.State.Health.Status}}", name).CombinedOutput()
		status := strings.TrimSpace(string(output))
		if err == nil && status == "healthy" {
			return nil
		}
		if status == "unhealthy" {
			return fmt.Errorf("container %s unhealthy", name)
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("container %s did not become healthy", name)
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// postgresRepositoryFactory opens a Postgres-backed repository for integration
// scenarios. It applies the embedded migrations and truncates the catalog
// before and after each test. SOUNDCRATE_TEST_POSTGRES_DSN selects an existing
// database; otherwise a throwaway container is started through docker.
func postgresRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()

	dsn := os.Getenv("SOUNDCRATE_TEST_POSTGRES_DSN")
	var cleanupFns []func()
	if strings.TrimSpace(dsn) == "" {
		var dockerCleanup func()
		dsn, dockerCleanup = startEphemeralPostgres(t)
		cleanupFns = append(cleanupFns, dockerCleanup)
		t.Setenv("SOUNDCRATE_TEST_POSTGRES_DSN", dsn)
	}

	ctx := context.Background()
	if _, err := ApplyPostgresMigrations(ctx, dsn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres pool: %v", err)
	}
	if err := truncatePostgresCatalog(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("truncate tables: %v", err)
	}

	defaults := []Option{WithClock(newStepClock())}
	repo, err := NewPostgresRepository(ctx, dsn, append(defaults, opts...)...)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := truncatePostgresCatalog(context.Background(), pool); err != nil {
			t.Errorf("truncate tables: %v", err)
		}
		if err := repo.Close(context.Background()); err != nil {
			t.Errorf("close repository: %v", err)
		}
		pool.Close()
		for i := len(cleanupFns) - 1; i >= 0; i-- {
			cleanupFns[i]()
		}
	}
	return repo, cleanup, nil
}
