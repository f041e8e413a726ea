// Package db provides the sqlite-backed store for pending sync operations.
package db

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/kimhsiao/memonexus/contentsync/internal/errors"
)

// FileName is the database file created inside the data directory.
const FileName = "contentsync.db"

// DB wraps the sql.DB with the sync core's sqlite configuration.
type DB struct {
	*sql.DB
}

// Open opens the sqlite database under dataDir.
// The database is opened with:
// - WAL mode for concurrent reads/writes
// - a single connection, since sqlite has one writer
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, FileName)

	// modernc.org/sqlite is pure Go, so mobile builds need no CGO toolchain for sqlite
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

// OpenMigrated opens the database under dataDir and applies the embedded migrations.
func OpenMigrated(dataDir string) (*DB, error) {
	database, err := Open(dataDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to open database", err)
	}

	if err := migrate(database.DB, Migrations()); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// migrate brings the schema up to date with source.
func migrate(db *sql.DB, source fs.FS) error {
	migrator := NewMigrator(db, source)
	if err := migrator.Initialize(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to initialize migrator", err)
	}
	if err := migrator.Up(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to apply migrations", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
