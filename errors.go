package rollcall

import "errors"

var (
	// ErrInvalidWindow is returned when a session window is empty, starts too
	// far in the past or exceeds the maximum session duration.
	ErrInvalidWindow = errors.New("rollcall: invalid session window")

	// ErrInvalidGeofence is returned when a geofence has an invalid centre or
	// a negative radius.
	ErrInvalidGeofence = errors.New("rollcall: invalid geofence")

	// ErrInvalidToken is returned when no active session holds the token.
	ErrInvalidToken = errors.New("rollcall: invalid token")

	// ErrOutsideWindow is returned when a redemption falls outside the session window.
	ErrOutsideWindow = errors.New("rollcall: outside attendance window")

	// ErrNotEnrolled is returned when the principal is not on the session roster.
	ErrNotEnrolled = errors.New("rollcall: principal not enrolled")

	// ErrLocationRequired is returned when a geofenced session is redeemed
	// without a location.
	ErrLocationRequired = errors.New("rollcall: location required")

	// ErrOutOfRange is returned when the presented location is outside the geofence.
	ErrOutOfRange = errors.New("rollcall: location out of range")

	// ErrAlreadyMarked is returned when the principal already redeemed this session.
	ErrAlreadyMarked = errors.New("rollcall: attendance already marked")

	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("rollcall: session not found")

	// ErrSessionEnded is returned when rotating or resyncing an ended session.
	ErrSessionEnded = errors.New("rollcall: session already ended")

	// ErrSessionActive is returned when archiving a session that has not ended.
	ErrSessionActive = errors.New("rollcall: session still active")

	// ErrTokenSource is returned when the randomness source fails.
	ErrTokenSource = errors.New("rollcall: token source unavailable")

	// ErrTimeout is returned when an operation exceeds its deadline before
	// making any change. The caller may retry.
	ErrTimeout = errors.New("rollcall: operation timed out")

	// ErrRosterUnavailable is returned when the roster collaborator fails.
	ErrRosterUnavailable = errors.New("rollcall: roster unavailable")

	// ErrRosterNotConfigured is returned when a roster lookup is attempted
	// without a RosterSource.
	ErrRosterNotConfigured = errors.New("rollcall: roster source not configured")

	// ErrArchiveNotConfigured is returned when archiving is attempted
	// without an AttendanceArchive.
	ErrArchiveNotConfigured = errors.New("rollcall: attendance archive not configured")

	// ErrGeoIPDatabaseNotConfigured is returned when GeoIP lookup is attempted
	// without configuring the GeoIP database path.
	ErrGeoIPDatabaseNotConfigured = errors.New("rollcall: GeoIP database path not configured")

	// ErrGeoIPLookupFailed is returned when IP geolocation lookup fails.
	ErrGeoIPLookupFailed = errors.New("rollcall: GeoIP lookup failed")

	// ErrInvalidIP is returned when an invalid IP address is provided.
	ErrInvalidIP = errors.New("rollcall: invalid IP address")
)

// ErrorClass groups errors by who is expected to act on them.
type ErrorClass int

const (
	// ClassUnknown is reported for nil errors.
	ClassUnknown ErrorClass = iota
	// ClassClient covers rejected input; report verbatim, never retry.
	ClassClient
	// ClassLookup covers sessions that no longer match the caller's view.
	ClassLookup
	// ClassInfrastructure covers failures of randomness or collaborators.
	ClassInfrastructure
)

func (c ErrorClass) String() string {
	switch c {
	case ClassClient:
		return "client"
	case ClassLookup:
		return "lookup"
	case ClassInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

var clientErrors = []error{
	ErrInvalidWindow,
	ErrInvalidGeofence,
	ErrInvalidToken,
	ErrOutsideWindow,
	ErrNotEnrolled,
	ErrLocationRequired,
	ErrOutOfRange,
	ErrAlreadyMarked,
}

// Classify returns the class of err.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return ClassClient
		}
	}
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionEnded) || errors.Is(err, ErrSessionActive) {
		return ClassLookup
	}
	return ClassInfrastructure
}

// IsRetryable reports whether the failed operation left no state behind and
// may be attempted again as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout)
}
