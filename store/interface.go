package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a session does not exist in the store.
	ErrNotFound = errors.New("store: session not found")

	// ErrEnded is returned when a mutation targets a session that has ended.
	ErrEnded = errors.New("store: session already ended")

	// ErrInvalidToken is returned when no active session holds a token right now.
	ErrInvalidToken = errors.New("store: token not current")

	// ErrInvalidWindow is returned when a session window is empty or out of range.
	ErrInvalidWindow = errors.New("store: invalid session window")

	// ErrAlreadyRecorded is returned to every attendance write after the first
	// for the same session and principal.
	ErrAlreadyRecorded = errors.New("store: attendance already recorded")

	// ErrTokenCollision is returned when the token source keeps producing
	// values that are already indexed.
	ErrTokenCollision = errors.New("store: token collision")
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Geofence is a circular region around a centre point.
// This mirrors the public Geofence type to avoid circular imports.
type Geofence struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// CreateInput carries everything needed to allocate a session.
type CreateInput struct {
	ID          string
	ClassID     string
	OwnerID     string
	Roster      []string
	WindowStart time.Time
	WindowEnd   time.Time
	Geofence    *Geofence
	Now         time.Time
}

// Snapshot is a consistent copy of a session taken under its lock.
type Snapshot struct {
	ID          string
	ClassID     string
	OwnerID     string
	Roster      []string
	Token       string
	TokenExpiry time.Time
	WindowStart time.Time
	WindowEnd   time.Time
	Geofence    *Geofence
	Status      Status
	CreatedAt   time.Time
	EndedAt     time.Time
}

// TokenSource produces opaque rotation tokens.
type TokenSource interface {
	Issue() (token string, generatedAt time.Time, err error)
}

// SessionStore defines the registry of live sessions.
// Implementations must be safe for concurrent use and must serialize
// mutations of a single session without blocking unrelated sessions.
type SessionStore interface {
	// Create allocates a new active session with a fresh token.
	Create(in CreateInput) (Snapshot, error)

	// Rotate replaces the current token of an active session.
	Rotate(sessionID string) (token string, expiry time.Time, err error)

	// LookupByToken resolves a current, unexpired token to its active session.
	LookupByToken(token string, now time.Time) (Snapshot, error)

	// WithToken resolves a token like LookupByToken and runs fn while the
	// session is held against concurrent Rotate and End.
	WithToken(token string, now time.Time, fn func(Redemption) error) error

	// Get returns a session by ID regardless of status.
	Get(sessionID string) (Snapshot, error)

	// End transitions a session to ended. Ending an ended session is a no-op;
	// the returned bool reports whether this call made the transition.
	End(sessionID string, now time.Time) (bool, error)

	// ReplaceRoster swaps the roster of an active session in one step.
	ReplaceRoster(sessionID string, roster []string) error

	// ActiveIDs lists the IDs of sessions that are currently active.
	ActiveIDs() []string

	// Sweep ends active sessions whose window has closed and removes
	// sessions that ended more than the retention period ago.
	Sweep(now time.Time) (ended, removed []string)
}

// Entry is a single attendance mark held by a Ledger.
type Entry struct {
	SessionID    string
	Principal    string
	RecordedAt   time.Time
	HasLocation  bool
	Latitude     float64
	Longitude    float64
	DeviceIP     string
	DeviceUA     string
	Browser      string
	OS           string
	DeviceType   string
	NetIP        string
	NetCity      string
	NetCountry   string
	NetLatitude  float64
	NetLongitude float64
	NetMismatch  bool
}

// Ledger records at most one attendance entry per session and principal.
// Implementations must be safe for concurrent use.
type Ledger interface {
	// Record inserts the entry unless the principal is already recorded for
	// the session, in which case ErrAlreadyRecorded is returned.
	Record(entry Entry) error

	// List returns the session's entries ordered by RecordedAt ascending.
	List(sessionID string) []Entry

	// Drop discards every entry for the session.
	Drop(sessionID string)
}

// ArchivedSession identifies a session whose tally has been archived.
type ArchivedSession struct {
	ID      string
	ClassID string
	OwnerID string
	EndedAt time.Time
}

// AttendanceArchive persists the final tally of ended sessions.
type AttendanceArchive interface {
	// SaveAttendance stores the session and its entries. Saving the same
	// session twice must not create duplicates. A session with no entries is
	// still recorded.
	SaveAttendance(ctx context.Context, session ArchivedSession, entries []Entry) error

	// ListAttendance returns the archived session and its entries ordered by
	// RecordedAt ascending, or ErrNotFound if the session was never archived.
	ListAttendance(ctx context.Context, sessionID string) (ArchivedSession, []Entry, error)

	// Close releases any resources held by the archive.
	Close() error
}

// RosterSource resolves the principals enrolled in a class.
type RosterSource interface {
	Roster(ctx context.Context, classID string) ([]string, error)
}
