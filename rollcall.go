// Package rollcall issues rotating proof-of-presence tokens for lecture
// sessions and validates their redemption.
package rollcall

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aadithya-v/rollcall/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine owns the lifecycle of lecture sessions: creation, token rotation,
// redemption, ending and reclamation.
type Engine struct {
	config   Config
	log      zerolog.Logger
	sessions store.SessionStore
	ledger   store.Ledger
	archive  store.AttendanceArchive
	rosters  store.RosterSource
	geoip    *GeoIPReader
	metrics  *metrics
	registry prometheus.Registerer

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New creates a new Engine with the given configuration.
// If Sessions or Ledger are not provided, in-memory defaults are used.
// If Archive is not provided but ArchiveDatabasePath is, a SQLite archive is opened.
// On failure New releases only what it opened itself.
func New(cfg Config) (*Engine, error) {
	cfg.applyDefaults()

	e := &Engine{
		config:  cfg,
		archive: cfg.Archive,
		rosters: cfg.Rosters,
		stop:    make(chan struct{}),
	}

	if cfg.Logger != nil {
		e.log = *cfg.Logger
	} else {
		e.log = log.With().Str("component", "rollcall").Logger()
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("rollcall: failed to register metrics: %w", err)
	}
	e.metrics = m
	e.registry = reg

	if cfg.Sessions != nil {
		e.sessions = cfg.Sessions
	} else {
		e.sessions = store.NewMemorySessionStore(
			NewTokenIssuer(cfg.TokenBytes, cfg.Now),
			store.MemoryOptions{
				TokenTTL:           cfg.TokenTTL,
				Retention:          cfg.Retention,
				MaxStartSkew:       cfg.MaxStartSkew,
				MaxSessionDuration: cfg.MaxSessionDuration,
			},
		)
	}

	if cfg.Ledger != nil {
		e.ledger = cfg.Ledger
	} else {
		e.ledger = store.NewMemoryLedger()
	}

	var opened *store.SQLiteArchive
	if e.archive == nil && cfg.ArchiveDatabasePath != "" {
		archive, err := store.NewSQLiteArchive(cfg.ArchiveDatabasePath)
		if err != nil {
			m.unregister(reg)
			return nil, fmt.Errorf("rollcall: failed to initialize SQLite archive: %w", err)
		}
		e.archive = archive
		opened = archive
	}

	if cfg.GeoIPDatabasePath != "" {
		geoip, err := NewGeoIPReader(cfg.GeoIPDatabasePath)
		if err != nil {
			if opened != nil {
				opened.Close()
			}
			m.unregister(reg)
			return nil, fmt.Errorf("rollcall: failed to initialize GeoIP: %w", err)
		}
		e.geoip = geoip
	}

	return e, nil
}

// Close stops the background drivers and releases all resources held by
// the Engine. Should be called when the application shuts down.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
	e.metrics.unregister(e.registry)

	var errs []error

	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if closer, ok := e.rosters.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if e.geoip != nil {
		if err := e.geoip.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("rollcall: errors during close: %w", errors.Join(errs...))
	}
	return nil
}

// ExtractRequestInfo extracts device and network location from an HTTP request.
// If GeoIP is not configured or the address is private, the network location
// contains only the IP address.
func (e *Engine) ExtractRequestInfo(r *http.Request, trustProxy bool) (DeviceInfo, NetworkLocation) {
	device := ExtractDeviceInfo(r, trustProxy)

	if e.geoip == nil || IsPrivateIP(device.IP) {
		return device, NetworkLocation{IP: device.IP}
	}

	network, err := e.geoip.Lookup(device.IP)
	if err != nil {
		e.log.Debug().Err(err).Str("ip", device.IP).Msg("geoip lookup failed")
		return device, NetworkLocation{IP: device.IP}
	}
	return device, network
}

// CreateSession starts a new active session with its first token.
func (e *Engine) CreateSession(req CreateSessionRequest) (*Session, error) {
	if req.Geofence != nil && !req.Geofence.Valid() {
		return nil, ErrInvalidGeofence
	}

	snap, err := e.sessions.Create(store.CreateInput{
		ID:          uuid.NewString(),
		ClassID:     req.ClassID,
		OwnerID:     req.OwnerID,
		Roster:      req.Roster,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Geofence:    geofenceToStore(req.Geofence),
		Now:         e.config.Now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidWindow) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidWindow, err)
		}
		e.log.Error().Err(err).Str("class_id", req.ClassID).Msg("failed to create session")
		return nil, fmt.Errorf("rollcall: failed to create session: %w", err)
	}

	e.metrics.sessionsCreated.Inc()
	e.metrics.sessionsActive.Inc()
	e.log.Info().
		Str("session_id", snap.ID).
		Str("class_id", snap.ClassID).
		Str("owner_id", snap.OwnerID).
		Int("roster_size", len(snap.Roster)).
		Time("window_end", snap.WindowEnd).
		Msg("session created")

	return snapshotToSession(snap), nil
}

// CreateSessionForClass creates a session whose roster is loaded from the
// configured RosterSource. req.Roster is ignored.
func (e *Engine) CreateSessionForClass(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	roster, err := e.loadRoster(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	req.Roster = roster
	return e.CreateSession(req)
}

// ResyncRoster replaces the roster snapshot of an active session with the
// current class roster. The swap is atomic with respect to redemptions.
func (e *Engine) ResyncRoster(ctx context.Context, sessionID string) error {
	snap, err := e.sessions.Get(sessionID)
	if err != nil {
		return mapStoreError(err)
	}
	if snap.Status == store.StatusEnded {
		return ErrSessionEnded
	}

	roster, err := e.loadRoster(ctx, snap.ClassID)
	if err != nil {
		return err
	}
	if err := e.sessions.ReplaceRoster(sessionID, roster); err != nil {
		return mapStoreError(err)
	}

	e.log.Info().Str("session_id", sessionID).Int("roster_size", len(roster)).Msg("roster resynced")
	return nil
}

func (e *Engine) loadRoster(ctx context.Context, classID string) ([]string, error) {
	if e.rosters == nil {
		return nil, ErrRosterNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.RosterTimeout)
	defer cancel()

	roster, err := e.rosters.Roster(ctx, classID)
	if err != nil {
		e.log.Error().Err(err).Str("class_id", classID).Msg("roster lookup failed")
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: roster lookup: %w", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrRosterUnavailable, err)
	}
	return roster, nil
}

// RotateToken replaces the token of an active session. The previous token
// stops working the moment this returns.
func (e *Engine) RotateToken(sessionID string) (string, time.Time, error) {
	token, expiry, err := e.sessions.Rotate(sessionID)
	if err != nil {
		err = mapStoreError(err)
		if Classify(err) == ClassInfrastructure {
			e.log.Error().Err(err).Str("session_id", sessionID).Msg("token rotation failed")
		}
		return "", time.Time{}, err
	}

	e.metrics.rotations.Inc()
	return token, expiry, nil
}

// GetSession returns the current snapshot of a session.
func (e *Engine) GetSession(sessionID string) (*Session, error) {
	snap, err := e.sessions.Get(sessionID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return snapshotToSession(snap), nil
}

// Redeem validates a redemption attempt and records attendance.
//
// Checks run in a fixed order and stop at the first failure: token, window,
// roster, geofence, then the ledger write. The ledger write is the only
// mutation, so a rejected attempt leaves no trace. The session cannot be
// rotated or ended while the attempt is being evaluated.
func (e *Engine) Redeem(ctx context.Context, req RedeemRequest) (*AttendanceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.RedeemTimeout)
	defer cancel()

	record, err := e.redeem(ctx, req)
	e.metrics.redemptions.WithLabelValues(redemptionOutcome(err)).Inc()

	switch Classify(err) {
	case ClassUnknown:
		e.log.Info().
			Str("session_id", record.SessionID).
			Str("principal", record.Principal).
			Msg("attendance recorded")
	case ClassInfrastructure:
		e.log.Error().Err(err).Str("principal", req.Principal).Msg("redemption failed")
	default:
		e.log.Debug().Err(err).Str("principal", req.Principal).Msg("redemption rejected")
	}

	return record, err
}

func (e *Engine) redeem(ctx context.Context, req RedeemRequest) (*AttendanceRecord, error) {
	now := e.config.Now()

	var record *AttendanceRecord
	err := e.sessions.WithToken(req.Token, now, func(s store.Redemption) error {
		if now.Before(s.WindowStart()) || now.After(s.WindowEnd()) {
			return ErrOutsideWindow
		}

		if !s.Enrolled(req.Principal) {
			return ErrNotEnrolled
		}

		mismatch := false
		if fence := s.Geofence(); fence != nil {
			if req.Location == nil {
				return ErrLocationRequired
			}
			gf := geofenceFromStore(fence)
			if !req.Location.Valid() || !WithinRadius(gf.Center(), *req.Location, gf.RadiusMeters) {
				return ErrOutOfRange
			}
			mismatch = IsDistantNetwork(*gf, req.Network, e.config.NetworkMismatchKM)
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}

		rec := AttendanceRecord{
			SessionID:       s.SessionID(),
			Principal:       req.Principal,
			RecordedAt:      now,
			Location:        copyPoint(req.Location),
			Device:          req.Device,
			Network:         req.Network,
			NetworkMismatch: mismatch,
		}
		if err := e.ledger.Record(recordToEntry(rec)); err != nil {
			if errors.Is(err, store.ErrAlreadyRecorded) {
				return ErrAlreadyMarked
			}
			return fmt.Errorf("rollcall: failed to record attendance: %w", err)
		}

		record = &rec
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return record, nil
}

// EndSession stops a session. Its token is withdrawn immediately and its
// attendance stays readable until the retention period elapses. Ending an
// ended session is a no-op.
//
// When an archive is configured the attendance is saved; an archive failure
// is logged and does not undo the end. Use ArchiveSession to retry.
func (e *Engine) EndSession(ctx context.Context, sessionID string) error {
	ended, err := e.sessions.End(sessionID, e.config.Now())
	if err != nil {
		return mapStoreError(err)
	}
	if !ended {
		return nil
	}

	e.metrics.sessionsActive.Dec()
	e.log.Info().Str("session_id", sessionID).Msg("session ended")

	if e.archive != nil {
		if err := e.ArchiveSession(ctx, sessionID); err != nil {
			e.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to archive attendance")
		}
	}
	return nil
}

// ArchiveSession saves an ended session and its attendance to the configured
// archive. Saving twice does not duplicate entries, and a session nobody
// attended is archived with an empty tally.
func (e *Engine) ArchiveSession(ctx context.Context, sessionID string) error {
	if e.archive == nil {
		return ErrArchiveNotConfigured
	}

	snap, err := e.sessions.Get(sessionID)
	if err != nil {
		return mapStoreError(err)
	}
	if snap.Status != store.StatusEnded {
		return ErrSessionActive
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.ArchiveTimeout)
	defer cancel()

	session := store.ArchivedSession{
		ID:      snap.ID,
		ClassID: snap.ClassID,
		OwnerID: snap.OwnerID,
		EndedAt: snap.EndedAt,
	}
	if err := e.archive.SaveAttendance(ctx, session, e.ledger.List(sessionID)); err != nil {
		e.metrics.archiveFailures.Inc()
		if ctx.Err() != nil {
			return fmt.Errorf("%w: archive: %w", ErrTimeout, err)
		}
		return fmt.Errorf("rollcall: failed to archive attendance: %w", err)
	}
	return nil
}

// ListAttendance returns the attendance of a session ordered by recording
// time. Once a session has been removed from memory the archive, if any,
// answers instead.
func (e *Engine) ListAttendance(ctx context.Context, sessionID string) ([]AttendanceRecord, error) {
	_, err := e.sessions.Get(sessionID)
	switch {
	case err == nil:
		return entriesToRecords(e.ledger.List(sessionID)), nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, mapStoreError(err)
	case e.archive == nil:
		return nil, ErrSessionNotFound
	}

	_, entries, err := e.readArchive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return entriesToRecords(entries), nil
}

// SessionOwner returns the owner of a session, live or archived.
func (e *Engine) SessionOwner(ctx context.Context, sessionID string) (string, error) {
	snap, err := e.sessions.Get(sessionID)
	switch {
	case err == nil:
		return snap.OwnerID, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", mapStoreError(err)
	case e.archive == nil:
		return "", ErrSessionNotFound
	}

	session, _, err := e.readArchive(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.OwnerID, nil
}

func (e *Engine) readArchive(ctx context.Context, sessionID string) (store.ArchivedSession, []store.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.ArchiveTimeout)
	defer cancel()

	session, entries, err := e.archive.ListAttendance(ctx, sessionID)
	switch {
	case err == nil:
		return session, entries, nil
	case errors.Is(err, store.ErrNotFound):
		return store.ArchivedSession{}, nil, ErrSessionNotFound
	case ctx.Err() != nil:
		return store.ArchivedSession{}, nil, fmt.Errorf("%w: archive: %w", ErrTimeout, err)
	default:
		return store.ArchivedSession{}, nil, fmt.Errorf("rollcall: failed to read archive: %w", err)
	}
}

// Sweep ends every active session whose window closed at or before now,
// removes sessions that ended more than the retention period ago and
// returns the number of sessions ended.
func (e *Engine) Sweep(now time.Time) int {
	ended, removed := e.sessions.Sweep(now)

	for _, id := range ended {
		e.metrics.sessionsActive.Dec()
		if e.archive == nil {
			continue
		}
		if err := e.ArchiveSession(context.Background(), id); err != nil {
			e.log.Error().Err(err).Str("session_id", id).Msg("failed to archive attendance")
		}
	}

	for _, id := range removed {
		e.ledger.Drop(id)
	}

	e.metrics.sweepEnded.Add(float64(len(ended)))
	e.metrics.sweepRemoved.Add(float64(len(removed)))
	if len(ended) > 0 || len(removed) > 0 {
		e.log.Info().Int("ended", len(ended)).Int("removed", len(removed)).Msg("sweep finished")
	}

	return len(ended)
}

// mapStoreError translates store errors to the package's error kinds.
func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, store.ErrEnded):
		return ErrSessionEnded
	case errors.Is(err, store.ErrInvalidToken):
		return ErrInvalidToken
	default:
		return err
	}
}
