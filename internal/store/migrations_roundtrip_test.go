package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("TABLERO_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TABLERO_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	migrations, err := loadMigrations(migrationsDir)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}

	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if got := countApplied(ctx, t, db); got != len(migrations) {
		t.Fatalf("expected %d applied migrations, got %d", len(migrations), got)
	}

	// a second run is a no-op
	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("reapply up migrations: %v", err)
	}

	if err := RollbackMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("roll back migrations: %v", err)
	}
	if got := countApplied(ctx, t, db); got != 0 {
		t.Fatalf("expected no applied migrations after rollback, got %d", got)
	}
	var usersTable sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('public.users')::text`).Scan(&usersTable); err != nil {
		t.Fatalf("inspect users table: %v", err)
	}
	if usersTable.Valid {
		t.Fatal("expected users table to be dropped by the down scripts")
	}

	if err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func countApplied(ctx context.Context, t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	return n
}

// resetPublicSchema drops every table so migrations start from an empty database.
func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
