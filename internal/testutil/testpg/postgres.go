// Package testpg runs a throwaway PostGIS database for the point and media
// store tests.
package testpg

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const image = "postgis/postgis:17-3.5"

// StartPostgres starts a PostGIS container and returns its DSN once the
// postgis extension can be created.
func StartPostgres(tb testing.TB) string {
	tb.Helper()

	ctx := context.Background()
	container, err := postgres.Run(ctx, image,
		postgres.WithDatabase("chatmap"),
		postgres.WithUsername("chatmap"),
		postgres.WithPassword("chatmap"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90*time.Second),
		),
	)
	if err != nil {
		tb.Fatalf("testpg: start container: %v", err)
	}
	tb.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			tb.Errorf("testpg: terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		tb.Fatalf("testpg: connection string: %v", err)
	}
	if err := waitForPostGIS(ctx, dsn); err != nil {
		tb.Fatalf("testpg: postgis not ready: %v", err)
	}
	return dsn
}

// Open starts a container and returns a gorm handle on it, closed on cleanup.
func Open(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(gormpostgres.Open(StartPostgres(tb)), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		tb.Fatalf("testpg: open: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// waitForPostGIS retries until the server accepts connections and the postgis
// extension is installable; the image restarts once during init.
func waitForPostGIS(ctx context.Context, dsn string) error {
	deadline := time.Now().Add(30 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		conn, err := pgx.Connect(attemptCtx, dsn)
		if err == nil {
			_, lastErr = conn.Exec(attemptCtx, "CREATE EXTENSION IF NOT EXISTS postgis")
			_ = conn.Close(attemptCtx)
		} else {
			lastErr = err
		}
		cancel()
		if lastErr == nil {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = context.DeadlineExceeded
	}
	return lastErr
}
