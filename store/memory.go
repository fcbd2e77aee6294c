package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const maxIssueAttempts = 3

// MemoryOptions tunes a MemorySessionStore. Zero values fall back to defaults.
type MemoryOptions struct {
	// TokenTTL bounds how long a token stays valid if it is never rotated.
	// Default: 15 seconds.
	TokenTTL time.Duration

	// Retention is how long an ended session stays readable before removal.
	// Default: 30 minutes.
	Retention time.Duration

	// MaxStartSkew is how far in the past a window may start.
	// Default: 5 minutes.
	MaxStartSkew time.Duration

	// MaxSessionDuration caps the window length.
	// Default: 12 hours.
	MaxSessionDuration time.Duration

	// Shards is the number of buckets for the session table and token index.
	// Default: 32.
	Shards int
}

func (o *MemoryOptions) applyDefaults() {
	if o.TokenTTL <= 0 {
		o.TokenTTL = 15 * time.Second
	}
	if o.Retention <= 0 {
		o.Retention = 30 * time.Minute
	}
	if o.MaxStartSkew <= 0 {
		o.MaxStartSkew = 5 * time.Minute
	}
	if o.MaxSessionDuration <= 0 {
		o.MaxSessionDuration = 12 * time.Hour
	}
	if o.Shards <= 0 {
		o.Shards = defaultShards
	}
}

// session is the mutable record behind a Snapshot. Immutable fields are set
// before the record is published; everything below mu is guarded by it.
type session struct {
	id          string
	classID     string
	ownerID     string
	windowStart time.Time
	windowEnd   time.Time
	geofence    *Geofence
	createdAt   time.Time

	mu          sync.RWMutex
	roster      map[string]struct{}
	token       string
	tokenExpiry time.Time
	status      Status
	endedAt     time.Time
}

type sessionShard struct {
	mu sync.RWMutex
	m  map[string]*session // sessionID -> session
}

type tokenShard struct {
	mu sync.RWMutex
	m  map[string]*session // current token -> session
}

// MemorySessionStore implements SessionStore with sharded maps and a lock
// per session. The token index and the session table always point at the
// same record; a token is only honoured if it equals the record's current
// token when read under the record's lock.
type MemorySessionStore struct {
	opts     MemoryOptions
	tokens   TokenSource
	sessions []sessionShard
	index    []tokenShard
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty session registry that draws tokens
// from the given source.
func NewMemorySessionStore(tokens TokenSource, opts MemoryOptions) *MemorySessionStore {
	opts.applyDefaults()

	s := &MemorySessionStore{
		opts:     opts,
		tokens:   tokens,
		sessions: make([]sessionShard, opts.Shards),
		index:    make([]tokenShard, opts.Shards),
	}
	for i := range s.sessions {
		s.sessions[i].m = make(map[string]*session)
		s.index[i].m = make(map[string]*session)
	}
	return s
}

func (s *MemorySessionStore) sessionShard(id string) *sessionShard {
	return &s.sessions[shardIndex(id, len(s.sessions))]
}

func (s *MemorySessionStore) tokenShard(token string) *tokenShard {
	return &s.index[shardIndex(token, len(s.index))]
}

// validateWindow rejects empty windows, windows that start too far in the
// past and windows longer than the configured maximum.
func (s *MemorySessionStore) validateWindow(start, end, now time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidWindow,
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	if start.Before(now.Add(-s.opts.MaxStartSkew)) {
		return fmt.Errorf("%w: start %s is in the past", ErrInvalidWindow, start.Format(time.RFC3339))
	}
	if end.Sub(start) > s.opts.MaxSessionDuration {
		return fmt.Errorf("%w: window exceeds %s", ErrInvalidWindow, s.opts.MaxSessionDuration)
	}
	return nil
}

// Create allocates a new active session with a fresh token.
func (s *MemorySessionStore) Create(in CreateInput) (Snapshot, error) {
	if in.ID == "" {
		return Snapshot{}, errors.New("store: session id required")
	}
	if err := s.validateWindow(in.WindowStart, in.WindowEnd, in.Now); err != nil {
		return Snapshot{}, err
	}

	rec := &session{
		id:          in.ID,
		classID:     in.ClassID,
		ownerID:     in.OwnerID,
		windowStart: in.WindowStart,
		windowEnd:   in.WindowEnd,
		geofence:    copyGeofence(in.Geofence),
		createdAt:   in.Now,
		roster:      rosterSet(in.Roster),
		status:      StatusActive,
	}

	// Hold the record until its token is installed so that readers reaching
	// it through either map never observe it half-built.
	rec.mu.Lock()
	defer rec.mu.Unlock()

	shard := s.sessionShard(rec.id)
	shard.mu.Lock()
	if _, exists := shard.m[rec.id]; exists {
		shard.mu.Unlock()
		return Snapshot{}, fmt.Errorf("store: duplicate session id %s", rec.id)
	}
	shard.m[rec.id] = rec
	shard.mu.Unlock()

	if err := s.installToken(rec); err != nil {
		shard.mu.Lock()
		delete(shard.m, rec.id)
		shard.mu.Unlock()
		return Snapshot{}, err
	}

	return rec.snapshot(), nil
}

// installToken issues a token that is not already indexed, points the index
// at rec and retires rec's previous token. rec.mu must be held for writing.
func (s *MemorySessionStore) installToken(rec *session) error {
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		token, generatedAt, err := s.tokens.Issue()
		if err != nil {
			return err
		}

		shard := s.tokenShard(token)
		shard.mu.Lock()
		if _, taken := shard.m[token]; taken {
			shard.mu.Unlock()
			continue
		}
		shard.m[token] = rec
		shard.mu.Unlock()

		previous := rec.token
		rec.token = token
		rec.tokenExpiry = generatedAt.Add(s.opts.TokenTTL)
		if previous != "" {
			s.dropToken(previous, rec)
		}
		return nil
	}
	return ErrTokenCollision
}

// dropToken removes a token from the index if it still belongs to rec.
func (s *MemorySessionStore) dropToken(token string, rec *session) {
	shard := s.tokenShard(token)
	shard.mu.Lock()
	if shard.m[token] == rec {
		delete(shard.m, token)
	}
	shard.mu.Unlock()
}

func (s *MemorySessionStore) byID(id string) *session {
	shard := s.sessionShard(id)
	shard.mu.RLock()
	rec := shard.m[id]
	shard.mu.RUnlock()
	return rec
}

func (s *MemorySessionStore) byToken(token string) *session {
	if token == "" {
		return nil
	}
	shard := s.tokenShard(token)
	shard.mu.RLock()
	rec := shard.m[token]
	shard.mu.RUnlock()
	return rec
}

// Rotate replaces the current token of an active session.
func (s *MemorySessionStore) Rotate(sessionID string) (string, time.Time, error) {
	rec := s.byID(sessionID)
	if rec == nil {
		return "", time.Time{}, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.status == StatusEnded {
		return "", time.Time{}, ErrEnded
	}
	if err := s.installToken(rec); err != nil {
		return "", time.Time{}, err
	}
	return rec.token, rec.tokenExpiry, nil
}

// holdsToken reports whether rec currently honours token. rec.mu must be held.
func (rec *session) holdsToken(token string, now time.Time) bool {
	return rec.status == StatusActive && rec.token == token && now.Before(rec.tokenExpiry)
}

// LookupByToken resolves a current, unexpired token to its active session.
func (s *MemorySessionStore) LookupByToken(token string, now time.Time) (Snapshot, error) {
	rec := s.byToken(token)
	if rec == nil {
		return Snapshot{}, ErrInvalidToken
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()

	if !rec.holdsToken(token, now) {
		return Snapshot{}, ErrInvalidToken
	}
	return rec.snapshot(), nil
}

// WithToken runs fn against the session currently holding token. The session
// cannot be rotated or ended until fn returns.
func (s *MemorySessionStore) WithToken(token string, now time.Time, fn func(Redemption) error) error {
	rec := s.byToken(token)
	if rec == nil {
		return ErrInvalidToken
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()

	if !rec.holdsToken(token, now) {
		return ErrInvalidToken
	}
	return fn(Redemption{rec: rec})
}

// Get returns a session by ID regardless of status.
func (s *MemorySessionStore) Get(sessionID string) (Snapshot, error) {
	rec := s.byID(sessionID)
	if rec == nil {
		return Snapshot{}, ErrNotFound
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.snapshot(), nil
}

// End transitions a session to ended and drops its token from the index.
func (s *MemorySessionStore) End(sessionID string, now time.Time) (bool, error) {
	rec := s.byID(sessionID)
	if rec == nil {
		return false, ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	return s.endLocked(rec, now), nil
}

// endLocked ends rec if it is still active. rec.mu must be held for writing.
func (s *MemorySessionStore) endLocked(rec *session, now time.Time) bool {
	if rec.status == StatusEnded {
		return false
	}
	rec.status = StatusEnded
	rec.endedAt = now
	if rec.token != "" {
		s.dropToken(rec.token, rec)
	}
	rec.token = ""
	rec.tokenExpiry = time.Time{}
	return true
}

// ReplaceRoster swaps the roster of an active session in one step.
func (s *MemorySessionStore) ReplaceRoster(sessionID string, roster []string) error {
	rec := s.byID(sessionID)
	if rec == nil {
		return ErrNotFound
	}

	next := rosterSet(roster)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.status == StatusEnded {
		return ErrEnded
	}
	rec.roster = next
	return nil
}

// records copies the records of one shard so they can be inspected
// without holding the shard lock.
func (shard *sessionShard) records() []*session {
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	out := make([]*session, 0, len(shard.m))
	for _, rec := range shard.m {
		out = append(out, rec)
	}
	return out
}

// ActiveIDs lists the IDs of sessions that are currently active.
func (s *MemorySessionStore) ActiveIDs() []string {
	var ids []string
	for i := range s.sessions {
		for _, rec := range s.sessions[i].records() {
			rec.mu.RLock()
			if rec.status == StatusActive {
				ids = append(ids, rec.id)
			}
			rec.mu.RUnlock()
		}
	}
	return ids
}

// Sweep visits one shard at a time. Each session is examined under its own
// lock, so only the session being examined is ever paused.
func (s *MemorySessionStore) Sweep(now time.Time) (ended, removed []string) {
	for i := range s.sessions {
		shard := &s.sessions[i]

		var expired []*session
		for _, rec := range shard.records() {
			rec.mu.Lock()
			switch {
			case rec.status == StatusActive && !now.Before(rec.windowEnd):
				s.endLocked(rec, now)
				ended = append(ended, rec.id)
			case rec.status == StatusEnded && now.Sub(rec.endedAt) > s.opts.Retention:
				expired = append(expired, rec)
			}
			rec.mu.Unlock()
		}

		if len(expired) == 0 {
			continue
		}
		shard.mu.Lock()
		for _, rec := range expired {
			if shard.m[rec.id] == rec {
				delete(shard.m, rec.id)
				removed = append(removed, rec.id)
			}
		}
		shard.mu.Unlock()
	}
	return ended, removed
}

// snapshot copies rec. rec.mu must be held.
func (rec *session) snapshot() Snapshot {
	roster := make([]string, 0, len(rec.roster))
	for p := range rec.roster {
		roster = append(roster, p)
	}
	sort.Strings(roster)

	return Snapshot{
		ID:          rec.id,
		ClassID:     rec.classID,
		OwnerID:     rec.ownerID,
		Roster:      roster,
		Token:       rec.token,
		TokenExpiry: rec.tokenExpiry,
		WindowStart: rec.windowStart,
		WindowEnd:   rec.windowEnd,
		Geofence:    copyGeofence(rec.geofence),
		Status:      rec.status,
		CreatedAt:   rec.createdAt,
		EndedAt:     rec.endedAt,
	}
}

// Redemption is a read-only view of a session handed to WithToken callbacks.
// It must not be retained after the callback returns.
type Redemption struct {
	rec *session
}

func (r Redemption) SessionID() string      { return r.rec.id }
func (r Redemption) ClassID() string        { return r.rec.classID }
func (r Redemption) WindowStart() time.Time { return r.rec.windowStart }
func (r Redemption) WindowEnd() time.Time   { return r.rec.windowEnd }

// Geofence returns a copy of the session's geofence, or nil.
func (r Redemption) Geofence() *Geofence { return copyGeofence(r.rec.geofence) }

// Enrolled reports whether principal is on the session's roster.
func (r Redemption) Enrolled(principal string) bool {
	_, ok := r.rec.roster[principal]
	return ok
}

func rosterSet(roster []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roster))
	for _, p := range roster {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return set
}

func copyGeofence(g *Geofence) *Geofence {
	if g == nil {
		return nil
	}
	cp := *g
	return &cp
}
