package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/goodtune/sitebudget/internal/storage"
	_ "modernc.org/sqlite"
)

// Store implements storage.Backend on a single-row SQLite table.
type Store struct {
	db *sql.DB
}

// Open creates the database at path and runs migrations
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite limitation
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Read returns the stored document or storage.ErrNotFound
func (s *Store) Read(ctx context.Context) (*storage.Document, error) {
	var doc storage.Document
	err := s.db.QueryRowContext(ctx,
		"SELECT data, revision FROM quota_document WHERE id = 1",
	).Scan(&doc.Data, &doc.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &doc, nil
}

// Write replaces the document inside a transaction
func (s *Store) Write(ctx context.Context, data []byte, expected uint64) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current uint64
	err = tx.QueryRowContext(ctx, "SELECT revision FROM quota_document WHERE id = 1").Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read revision: %w", err)
	}

	if expected != storage.AnyRevision && expected != current {
		return 0, storage.ErrRevisionConflict
	}

	next := current + 1
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO quota_document (id, data, revision, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`, data, next); err != nil {
		return 0, fmt.Errorf("write document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit document: %w", err)
	}
	return next, nil
}

// runMigrations applies all database migrations
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for version, migration := range migrations {
		if version+1 <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", version+1, err)
		}
		if _, err := tx.Exec(migration); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", version+1, err)
		}
		if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version+1, err)
		}
	}

	return nil
}

// migrations are applied in slice order; version is index+1
var migrations = []string{
	migration001QuotaDocument,
}

const migration001QuotaDocument = `
CREATE TABLE IF NOT EXISTS quota_document (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	data BLOB NOT NULL,
	revision INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
