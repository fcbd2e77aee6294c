package store

import (
	"sort"
	"sync"
)

type sessionLedger struct {
	mu      sync.Mutex
	byPrinc map[string]struct{}
	entries []Entry // in insertion order
}

type ledgerShard struct {
	mu       sync.Mutex
	sessions map[string]*sessionLedger // sessionID -> ledger
}

// MemoryLedger implements Ledger with one lock per session, so concurrent
// marks against different sessions never contend.
type MemoryLedger struct {
	shards []ledgerShard
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty in-memory attendance ledger.
func NewMemoryLedger() *MemoryLedger {
	l := &MemoryLedger{shards: make([]ledgerShard, defaultShards)}
	for i := range l.shards {
		l.shards[i].sessions = make(map[string]*sessionLedger)
	}
	return l
}

func (l *MemoryLedger) shard(sessionID string) *ledgerShard {
	return &l.shards[shardIndex(sessionID, len(l.shards))]
}

// session returns the ledger for sessionID, creating it when create is set.
func (l *MemoryLedger) session(sessionID string, create bool) *sessionLedger {
	shard := l.shard(sessionID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	sl := shard.sessions[sessionID]
	if sl == nil && create {
		sl = &sessionLedger{byPrinc: make(map[string]struct{})}
		shard.sessions[sessionID] = sl
	}
	return sl
}

// Record inserts entry unless its principal is already recorded for the
// session. Exactly one of any set of concurrent callers succeeds.
func (l *MemoryLedger) Record(entry Entry) error {
	sl := l.session(entry.SessionID, true)

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if _, dup := sl.byPrinc[entry.Principal]; dup {
		return ErrAlreadyRecorded
	}
	sl.byPrinc[entry.Principal] = struct{}{}
	sl.entries = append(sl.entries, entry)
	return nil
}

// List returns a copy of the session's entries ordered by RecordedAt.
func (l *MemoryLedger) List(sessionID string) []Entry {
	sl := l.session(sessionID, false)
	if sl == nil {
		return nil
	}

	sl.mu.Lock()
	out := make([]Entry, len(sl.entries))
	copy(out, sl.entries)
	sl.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out
}

// Drop discards every entry for the session.
func (l *MemoryLedger) Drop(sessionID string) {
	shard := l.shard(sessionID)
	shard.mu.Lock()
	delete(shard.sessions, sessionID)
	shard.mu.Unlock()
}
