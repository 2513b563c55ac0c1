// Package testutil opens the Postgres database the repository tests run
// against.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/wb-go/wbf/dbpg"
)

const testDBLockID int64 = 734120551

// NewTestDB connects to TEST_DATABASE_URL and skips the test when it is not
// set or the server is unreachable. The connection holds an advisory lock
// so packages running in parallel do not share the schema.
func NewTestDB(t *testing.T) *dbpg.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping Postgres integration tests")
	}

	db, err := dbpg.New(dsn, nil, &dbpg.Options{MaxOpenConns: 8, MaxIdleConns: 4, ConnMaxLifetime: time.Minute})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Master.PingContext(ctx); err != nil {
		_ = db.Master.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	t.Cleanup(func() { _ = db.Master.Close() })

	lock(t, db)
	return db
}

func lock(t *testing.T, db *dbpg.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := db.Master.Conn(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		_ = conn.Close()
		t.Fatalf("acquire test lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		_ = conn.Close()
	})
}

// MigrationsDir is the absolute path of migrations/postgres.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations", "postgres")
}

// TruncateAll empties every table the migrations create.
func TruncateAll(t *testing.T, db *dbpg.DB) {
	t.Helper()
	_, err := db.Master.ExecContext(context.Background(), `
		TRUNCATE payments, banquet_seats, banquet_registrations, banquet_slabs,
		         workshop_selections, workshop_registrations, workshops,
		         accompany_persons, accompanies, abstract_submissions, event_registrations,
		         quotas, categories, discount_codes, registration_slabs, events CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
