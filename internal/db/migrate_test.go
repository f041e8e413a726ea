// Package db tests for database migration management.
package db

import (
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"V1__create_a.up.sql": {Data: []byte("CREATE TABLE a (id INTEGER PRIMARY KEY);")},
		"V2__create_b.up.sql": {Data: []byte("CREATE TABLE b (id INTEGER PRIMARY KEY);")},
		"README.md":           {Data: []byte("not a migration")},
		"Vx__broken.up.sql":   {Data: []byte("SELECT 1;")},
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query failed: %v", err)
	}
	return n == 1
}

// TestInitialize verifies schema_migrations table creation.
func TestInitialize(t *testing.T) {
	db := openMemoryDB(t)
	m := NewMigrator(db, testMigrations())

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if !tableExists(t, db, "schema_migrations") {
		t.Fatal("schema_migrations table not found")
	}

	// Checksums must be sha256 hex
	_, err := db.Exec("INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		1, 123456, "test_migration", "short")
	if err == nil {
		t.Error("expected CHECK constraint failure for short checksum")
	}

	// Initialize is idempotent
	if err := m.Initialize(); err != nil {
		t.Errorf("second Initialize() failed: %v", err)
	}
}

// TestUp verifies migrations are applied in order and recorded.
func TestUp(t *testing.T) {
	db := openMemoryDB(t)
	m := NewMigrator(db, testMigrations())
	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	if !tableExists(t, db, "a") || !tableExists(t, db, "b") {
		t.Error("expected tables a and b to exist")
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations() failed: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("applied migrations = %d, want 2", len(applied))
	}
	if applied[0].Description != "create_a" || applied[1].Description != "create_b" {
		t.Errorf("descriptions = %q, %q", applied[0].Description, applied[1].Description)
	}
	if len(applied[0].Checksum) != 64 {
		t.Errorf("checksum length = %d, want 64", len(applied[0].Checksum))
	}

	// Re-running applies nothing new
	if err := m.Up(); err != nil {
		t.Errorf("second Up() failed: %v", err)
	}
	version, _ := m.CurrentVersion()
	if version != 2 {
		t.Errorf("CurrentVersion() = %d, want 2", version)
	}
}

// TestUp_failingMigration verifies a bad migration is rolled back and reported.
func TestUp_failingMigration(t *testing.T) {
	db := openMemoryDB(t)
	source := fstest.MapFS{
		"V1__bad.up.sql": {Data: []byte("CREATE TABLE oops (;")},
	}
	m := NewMigrator(db, source)
	m.Initialize()

	err := m.Up()
	if err == nil {
		t.Fatal("Up() should fail on invalid SQL")
	}
	if !strings.Contains(err.Error(), "V1") {
		t.Errorf("error %q should name the migration version", err)
	}

	version, _ := m.CurrentVersion()
	if version != 0 {
		t.Errorf("CurrentVersion() = %d, want 0", version)
	}
}

// TestParseVersion verifies migration filename parsing.
func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"V1__init.up.sql", 1, true},
		{"V12__add_index.up.sql", 12, true},
		{"V0__zero.up.sql", 0, false},
		{"Vx__broken.up.sql", 0, false},
		{"V3__.up.sql", 0, false},
		{"V3.up.sql", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseVersion(tt.name, ".up.sql")
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseVersion(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestEmbeddedMigrations verifies the shipped schema applies cleanly.
func TestEmbeddedMigrations(t *testing.T) {
	db := openMemoryDB(t)
	m := NewMigrator(db, Migrations())
	m.Initialize()

	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}
	if !tableExists(t, db, "pending_operations") {
		t.Error("pending_operations table not created")
	}
}

// TestMigrate_failureCode verifies migration failures carry MIGRATION_FAILED.
func TestMigrate_failureCode(t *testing.T) {
	db := openMemoryDB(t)
	source := fstest.MapFS{
		"V1__bad.up.sql": {Data: []byte("CREATE TABLE oops (;")},
	}

	err := migrate(db, source)
	if !apperrors.Is(err, apperrors.ErrMigration) {
		t.Errorf("migrate() error = %v, want MIGRATION_FAILED", err)
	}

	if err := migrate(db, Migrations()); err != nil {
		t.Errorf("migrate() with embedded migrations failed: %v", err)
	}
}
