package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteArchive implements AttendanceArchive using SQLite.
// It uses the pure Go modernc.org/sqlite driver.
type SQLiteArchive struct {
	db *sql.DB
}

var _ AttendanceArchive = (*SQLiteArchive)(nil)

// NewSQLiteArchive opens (or creates) an attendance archive at dbPath.
func NewSQLiteArchive(dbPath string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteArchive{db: db}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS attendance (
		session_id    TEXT NOT NULL,
		class_id      TEXT NOT NULL,
		principal     TEXT NOT NULL,
		recorded_at   DATETIME NOT NULL,
		has_location  BOOLEAN NOT NULL DEFAULT 0,
		latitude      REAL,
		longitude     REAL,
		device_ip     TEXT,
		device_ua     TEXT,
		browser       TEXT,
		os            TEXT,
		device_type   TEXT,
		net_ip        TEXT,
		net_city      TEXT,
		net_country   TEXT,
		net_latitude  REAL,
		net_longitude REAL,
		net_mismatch  BOOLEAN NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, principal)
	);

	CREATE TABLE IF NOT EXISTS archived_sessions (
		session_id TEXT PRIMARY KEY,
		class_id   TEXT NOT NULL,
		owner_id   TEXT NOT NULL,
		ended_at   DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_class
		ON attendance (class_id, recorded_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: failed to create schema: %w", err)
	}
	return nil
}

// SaveAttendance stores the session and its entries; rows already archived
// are left untouched.
func (s *SQLiteArchive) SaveAttendance(ctx context.Context, session ArchivedSession, entries []Entry) error {
	stmts := archiveStatements{
		insertSession: `INSERT OR IGNORE INTO archived_sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?)`,
		insertEntry:   `INSERT OR IGNORE INTO attendance (` + archiveColumns + `) VALUES (` + archiveEntryPlaceholders + `)`,
	}

	if err := saveArchive(ctx, s.db, stmts, session, entries); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return nil
}

// ListAttendance returns an archived session and its entries.
func (s *SQLiteArchive) ListAttendance(ctx context.Context, sessionID string) (ArchivedSession, []Entry, error) {
	session, entries, err := loadArchive(ctx, s.db, sessionID)
	if err != nil {
		return ArchivedSession{}, nil, fmt.Errorf("sqlite: %w", err)
	}
	return session, entries, nil
}

// Close closes the database connection.
func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}
