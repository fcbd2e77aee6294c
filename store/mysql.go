package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MySQLArchive implements AttendanceArchive using MySQL.
type MySQLArchive struct {
	db *sql.DB
}

var _ AttendanceArchive = (*MySQLArchive)(nil)

// NewMySQLArchive creates the attendance schema on an open connection pool.
// The pool must be opened with parseTime enabled.
func NewMySQLArchive(db *sql.DB) (*MySQLArchive, error) {
	if err := createMySQLSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &MySQLArchive{db: db}, nil
}

// NewMySQLArchiveFromDSN creates a MySQL attendance archive from a DSN.
// The DSN format is: user:password@tcp(host:port)/database
func NewMySQLArchiveFromDSN(dsn string) (*MySQLArchive, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: invalid DSN: %w", err)
	}
	cfg.ParseTime = true

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to create connector: %w", err)
	}
	db := sql.OpenDB(connector)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: failed to connect: %w", err)
	}

	return NewMySQLArchive(db)
}

func createMySQLSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS attendance (
		session_id    VARCHAR(64) NOT NULL,
		class_id      VARCHAR(255) NOT NULL,
		principal     VARCHAR(255) NOT NULL,
		recorded_at   DATETIME(6) NOT NULL,
		has_location  BOOLEAN NOT NULL DEFAULT FALSE,
		latitude      DECIMAL(10, 8),
		longitude     DECIMAL(11, 8),
		device_ip     VARCHAR(45),
		device_ua     TEXT,
		browser       VARCHAR(100),
		os            VARCHAR(100),
		device_type   VARCHAR(20),
		net_ip        VARCHAR(45),
		net_city      VARCHAR(100),
		net_country   VARCHAR(100),
		net_latitude  DECIMAL(10, 8),
		net_longitude DECIMAL(11, 8),
		net_mismatch  BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (session_id, principal),
		INDEX idx_attendance_class (class_id, recorded_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`

	sessions := `
	CREATE TABLE IF NOT EXISTS archived_sessions (
		session_id VARCHAR(64) PRIMARY KEY,
		class_id   VARCHAR(255) NOT NULL,
		owner_id   VARCHAR(255) NOT NULL,
		ended_at   DATETIME(6) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`

	// The driver runs one statement per Exec unless multiStatements is set.
	for _, stmt := range []string{schema, sessions} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("mysql: failed to create schema: %w", err)
		}
	}
	return nil
}

// SaveAttendance stores the session and its entries; rows already archived
// are left untouched.
func (m *MySQLArchive) SaveAttendance(ctx context.Context, session ArchivedSession, entries []Entry) error {
	stmts := archiveStatements{
		insertSession: `INSERT IGNORE INTO archived_sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?)`,
		insertEntry:   `INSERT IGNORE INTO attendance (` + archiveColumns + `) VALUES (` + archiveEntryPlaceholders + `)`,
	}

	if err := saveArchive(ctx, m.db, stmts, session, entries); err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	return nil
}

// ListAttendance returns an archived session and its entries.
func (m *MySQLArchive) ListAttendance(ctx context.Context, sessionID string) (ArchivedSession, []Entry, error) {
	session, entries, err := loadArchive(ctx, m.db, sessionID)
	if err != nil {
		return ArchivedSession{}, nil, fmt.Errorf("mysql: %w", err)
	}
	return session, entries, nil
}

// Close closes the database connection.
func (m *MySQLArchive) Close() error {
	return m.db.Close()
}
