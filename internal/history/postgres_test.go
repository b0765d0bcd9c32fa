package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestPostgresIntegration runs the store against a real Postgres container.
// It requires Docker to be running.
func TestPostgresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// testcontainers panics when the docker socket is missing
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("skin_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	s, err := NewPostgres(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	older := result("older", 72)
	newer := result("newer", 85)
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)

	if err := s.Save(ctx, OriginCamera, older); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Save(ctx, OriginUpload, newer); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// Saving the same ID again is a no-op
	if err := s.Save(ctx, OriginUpload, older); err != nil {
		t.Fatalf("Duplicate save failed: %v", err)
	}

	entries, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Result.ID != "newer" {
		t.Errorf("Expected newest first, got %s", entries[0].Result.ID)
	}

	e, err := s.Get(ctx, "older")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Origin != OriginCamera || e.Result.OverallScore != 72 {
		t.Errorf("Unexpected entry %+v", e)
	}
	if len(e.Result.Concerns) != 1 || e.Result.Concerns[0].Name != "acne" {
		t.Errorf("Concerns not round-tripped: %+v", e.Result.Concerns)
	}
	if !e.Result.Provenance.Mock {
		t.Error("Expected mock provenance preserved")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
