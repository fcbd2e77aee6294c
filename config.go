package rollcall

import (
	"time"

	"github.com/aadithya-v/rollcall/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config contains configuration options for the Engine.
type Config struct {
	// RotationInterval is how often the background driver rotates the token
	// of every active session.
	// Default: 10 seconds.
	RotationInterval time.Duration

	// TokenTTL is how long a token stays valid if it is never rotated.
	// Should be at least RotationInterval so that a healthy driver always
	// replaces tokens before they lapse.
	// Default: 15 seconds.
	TokenTTL time.Duration

	// TokenBytes is the amount of randomness per token.
	// Default: 16.
	TokenBytes int

	// SweepInterval is how often the background driver sweeps the store.
	// Default: 1 minute.
	SweepInterval time.Duration

	// Retention is how long an ended session stays readable before removal.
	// Default: 30 minutes.
	Retention time.Duration

	// MaxStartSkew is how far in the past a session window may start.
	// Default: 5 minutes.
	MaxStartSkew time.Duration

	// MaxSessionDuration caps the length of a session window.
	// Default: 12 hours.
	MaxSessionDuration time.Duration

	// RedeemTimeout bounds a single redemption.
	// Default: 2 seconds.
	RedeemTimeout time.Duration

	// RosterTimeout bounds a call to RosterSource.
	// Default: 3 seconds.
	RosterTimeout time.Duration

	// ArchiveTimeout bounds a call to AttendanceArchive.
	// Default: 5 seconds.
	ArchiveTimeout time.Duration

	// NetworkMismatchKM flags redemptions whose IP geolocates further than
	// this from the geofence centre. Zero disables the check.
	NetworkMismatchKM float64

	// GeoIPDatabasePath is the path to MaxMind GeoLite2-City.mmdb file.
	// Required for IP-based network location.
	GeoIPDatabasePath string

	// ArchiveDatabasePath enables the default SQLite attendance archive.
	// Only used if Archive is nil.
	ArchiveDatabasePath string

	// Sessions is the session registry.
	// Default: in-memory store built from the options above.
	Sessions store.SessionStore

	// Ledger is the attendance ledger.
	// Default: in-memory ledger.
	Ledger store.Ledger

	// Archive persists the attendance of ended sessions. Optional.
	Archive store.AttendanceArchive

	// Rosters resolves class rosters for CreateSessionForClass and ResyncRoster. Optional.
	Rosters store.RosterSource

	// Logger receives engine logs.
	// Default: the global zerolog logger.
	Logger *zerolog.Logger

	// Registerer receives the engine's metrics.
	// Default: a private registry.
	Registerer prometheus.Registerer

	// Now returns the current time.
	// Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RotationInterval:   10 * time.Second,
		TokenTTL:           15 * time.Second,
		TokenBytes:         DefaultTokenBytes,
		SweepInterval:      time.Minute,
		Retention:          30 * time.Minute,
		MaxStartSkew:       5 * time.Minute,
		MaxSessionDuration: 12 * time.Hour,
		RedeemTimeout:      2 * time.Second,
		RosterTimeout:      3 * time.Second,
		ArchiveTimeout:     5 * time.Second,
	}
}

// applyDefaults fills in default values for zero-value fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.RotationInterval <= 0 {
		c.RotationInterval = defaults.RotationInterval
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaults.TokenTTL
	}
	if c.TokenBytes <= 0 {
		c.TokenBytes = defaults.TokenBytes
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.Retention <= 0 {
		c.Retention = defaults.Retention
	}
	if c.MaxStartSkew <= 0 {
		c.MaxStartSkew = defaults.MaxStartSkew
	}
	if c.MaxSessionDuration <= 0 {
		c.MaxSessionDuration = defaults.MaxSessionDuration
	}
	if c.RedeemTimeout <= 0 {
		c.RedeemTimeout = defaults.RedeemTimeout
	}
	if c.RosterTimeout <= 0 {
		c.RosterTimeout = defaults.RosterTimeout
	}
	if c.ArchiveTimeout <= 0 {
		c.ArchiveTimeout = defaults.ArchiveTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
