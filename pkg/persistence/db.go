// Package persistence provides SQLite-based storage for sessions, progress
// entries, and memory records.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"dwagent/pkg/logx"
)

// Store wraps the database connection. One Store is shared by all sessions;
// SQLite's single-writer model serializes writes.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (or creates) the database at dbPath with WAL mode and busy
// timeout, and brings the schema to the current version. Idempotent and safe
// to call against an existing database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("Database initialized: %s", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// DB exposes the raw connection for components that run their own statements
// (the stand-in warehouse executor uses this in tests).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection. Should be called during shutdown.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
