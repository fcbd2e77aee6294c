package rollcall

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusActive sessions accept rotations and redemptions.
	StatusActive Status = "active"
	// StatusEnded sessions are read-only until they are removed.
	StatusEnded Status = "ended"
)

// Session is a snapshot of a lecture session.
type Session struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	OwnerID     string    `json:"owner_id"`
	Roster      []string  `json:"roster"`
	Token       string    `json:"token,omitempty"`
	TokenExpiry time.Time `json:"token_expiry,omitempty"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Geofence    *Geofence `json:"geofence,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	EndedAt     time.Time `json:"ended_at,omitempty"`
}

// IsEnded returns true once the session has been ended.
func (s *Session) IsEnded() bool {
	return s.Status == StatusEnded
}

// Enrolled reports whether principal is on the roster snapshot.
func (s *Session) Enrolled(principal string) bool {
	for _, p := range s.Roster {
		if p == principal {
			return true
		}
	}
	return false
}

// DeviceInfo contains device information extracted from the HTTP request.
type DeviceInfo struct {
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"` // mobile, desktop, tablet, bot
}

// NetworkLocation is the coarse location of a client IP address.
type NetworkLocation struct {
	IP        string  `json:"ip"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CreateSessionRequest describes a new lecture session.
type CreateSessionRequest struct {
	ClassID     string
	OwnerID     string
	Roster      []string // ignored by CreateSessionForClass
	WindowStart time.Time
	WindowEnd   time.Time
	Geofence    *Geofence
}

// RedeemRequest is a redemption attempt by a verified principal.
type RedeemRequest struct {
	Token     string
	Principal string

	// Location is the client-reported position. Required when the session
	// has a geofence.
	Location *Point

	// Device and Network are recorded with the attendance mark.
	Device  DeviceInfo
	Network NetworkLocation
}

// AttendanceRecord is a successful redemption.
type AttendanceRecord struct {
	SessionID  string          `json:"session_id"`
	Principal  string          `json:"principal"`
	RecordedAt time.Time       `json:"recorded_at"`
	Location   *Point          `json:"location,omitempty"`
	Device     DeviceInfo      `json:"device"`
	Network    NetworkLocation `json:"network"`

	// NetworkMismatch is true when the client IP geolocates further than
	// Config.NetworkMismatchKM from the geofence centre.
	NetworkMismatch bool `json:"network_mismatch"`
}
