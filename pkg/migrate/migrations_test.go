package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestLibrarySchemaMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_library_schema")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS books",
		"CHECK (available_copies >= 0 AND available_copies <= total_copies)",
		"CHECK (total_copies >= 1)",
		"CREATE TABLE IF NOT EXISTS loans",
		"'return_requested'",
		"CREATE INDEX IF NOT EXISTS idx_loans_status_due_date",
		"CREATE INDEX IF NOT EXISTS idx_loans_status_reservation_expiry",
		"DROP TABLE IF EXISTS loans",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationListsEveryLoanEvent(t *testing.T) {
	content := readMigration(t, "create_outbox_tables")
	for _, event := range []string{
		"reservation_created",
		"collection_confirmed",
		"return_requested",
		"return_confirmed",
		"reservation_cancelled",
		"reservation_expired",
	} {
		if !strings.Contains(content, "'"+event+"'") {
			t.Errorf("event_type_enum missing %q", event)
		}
	}
}

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations should validate: %v", err)
	}
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Loan Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_loan_notes.sql") {
		t.Fatalf("unexpected migration path %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename to fail validation")
	}
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20260101000000_no_down.sql":    "-- +goose Up\nSELECT 1;\n",
		"20260102000000_unbalanced.sql": "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		"notes.sql":                     "-- +goose Up\n-- +goose Down\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	err := ValidateDir(dir)
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"notes.sql", "missing \"-- +goose Down\"", "1 StatementBegin but 0 StatementEnd"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestListMigrationsSortsByVersion(t *testing.T) {
	files, err := ListMigrations("migrations")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(files) < 3 {
		t.Fatalf("expected shipped migrations, got %d", len(files))
	}
	for i := 1; i < len(files); i++ {
		if files[i-1].Version >= files[i].Version {
			t.Fatalf("migrations out of order: %s before %s", files[i-1].Name, files[i].Name)
		}
	}
}

func TestCreateSQLMigrationRejectsStaleVersion(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	if _, err := createSQLMigrationAt(dir, "first", now); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := createSQLMigrationAt(dir, "second", now); err == nil {
		t.Fatalf("expected same-second migration to be rejected")
	}
	if _, err := createSQLMigrationAt(dir, "!!!", now.Add(time.Minute)); err == nil {
		t.Fatalf("expected empty slug to be rejected")
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	entries, err := Embedded.ReadDir(embedDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	onDisk, err := ListMigrations("migrations")
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(entries) != len(onDisk) {
		t.Fatalf("embedded %d migrations, disk has %d", len(entries), len(onDisk))
	}
}

func TestLiveReservationIndexMigration(t *testing.T) {
	content := readMigration(t, "add_live_reservation_index")
	for _, sub := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS " + LiveReservationIndex,
		"ON loans (user_id, book_id)",
		"WHERE status = 'reserved'",
		"DROP INDEX IF EXISTS " + LiveReservationIndex,
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
