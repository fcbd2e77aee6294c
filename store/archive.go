package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const archiveColumns = `session_id, class_id, principal, recorded_at, has_location, latitude, longitude,
		device_ip, device_ua, browser, os, device_type,
		net_ip, net_city, net_country, net_latitude, net_longitude, net_mismatch`

const archiveEntryPlaceholders = `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`

const sessionColumns = `session_id, class_id, owner_id, ended_at`

// archiveStatements holds the dialect-specific inserts. Both must leave rows
// already present untouched.
type archiveStatements struct {
	insertSession string
	insertEntry   string
}

// saveArchive writes the session marker and its entries in one transaction.
func saveArchive(ctx context.Context, db *sql.DB, stmts archiveStatements, session ArchivedSession, entries []Entry) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmts.insertSession,
		session.ID,
		session.ClassID,
		session.OwnerID,
		session.EndedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
	}

	if len(entries) > 0 {
		stmt, err := tx.PrepareContext(ctx, stmts.insertEntry)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			_, err := stmt.ExecContext(ctx,
				e.SessionID,
				session.ClassID,
				e.Principal,
				e.RecordedAt.UTC(),
				e.HasLocation,
				e.Latitude,
				e.Longitude,
				e.DeviceIP,
				e.DeviceUA,
				e.Browser,
				e.OS,
				e.DeviceType,
				e.NetIP,
				e.NetCity,
				e.NetCountry,
				e.NetLatitude,
				e.NetLongitude,
				e.NetMismatch,
			)
			if err != nil {
				return fmt.Errorf("failed to insert attendance for %s: %w", e.Principal, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit attendance: %w", err)
	}
	return nil
}

// loadArchive reads the session marker and its entries, oldest first.
func loadArchive(ctx context.Context, db *sql.DB, sessionID string) (ArchivedSession, []Entry, error) {
	query := `SELECT ` + sessionColumns + ` FROM archived_sessions WHERE session_id = ?`

	var session ArchivedSession
	err := db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.ClassID,
		&session.OwnerID,
		&session.EndedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ArchivedSession{}, nil, ErrNotFound
	}
	if err != nil {
		return ArchivedSession{}, nil, fmt.Errorf("failed to query session: %w", err)
	}

	entries, err := queryEntries(ctx, db, sessionID)
	if err != nil {
		return ArchivedSession{}, nil, err
	}
	return session, entries, nil
}

func queryEntries(ctx context.Context, db *sql.DB, sessionID string) ([]Entry, error) {
	query := `SELECT ` + archiveColumns + `
	FROM attendance
	WHERE session_id = ?
	ORDER BY recorded_at ASC, principal ASC`

	rows, err := db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attendance: %w", err)
	}
	return entries, nil
}

// scanEntry scans an attendance row from sql.Rows.
func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e       Entry
		classID string
	)
	err := rows.Scan(
		&e.SessionID,
		&classID,
		&e.Principal,
		&e.RecordedAt,
		&e.HasLocation,
		&e.Latitude,
		&e.Longitude,
		&e.DeviceIP,
		&e.DeviceUA,
		&e.Browser,
		&e.OS,
		&e.DeviceType,
		&e.NetIP,
		&e.NetCity,
		&e.NetCountry,
		&e.NetLatitude,
		&e.NetLongitude,
		&e.NetMismatch,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to scan attendance: %w", err)
	}
	return e, nil
}
