package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRosterSource serves class rosters from a map.
// This is useful for testing and for embedding a fixed roster set.
type MemoryRosterSource struct {
	mu      sync.RWMutex
	rosters map[string][]string // classID -> principals
}

var _ RosterSource = (*MemoryRosterSource)(nil)

// NewMemoryRosterSource creates a roster source with no classes.
func NewMemoryRosterSource() *MemoryRosterSource {
	return &MemoryRosterSource{rosters: make(map[string][]string)}
}

// Set replaces the roster of a class.
func (m *MemoryRosterSource) Set(classID string, principals []string) {
	cp := append([]string(nil), principals...)

	m.mu.Lock()
	m.rosters[classID] = cp
	m.mu.Unlock()
}

// Roster returns the principals enrolled in classID.
func (m *MemoryRosterSource) Roster(ctx context.Context, classID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	roster, ok := m.rosters[classID]
	if !ok {
		return nil, fmt.Errorf("roster: unknown class %s", classID)
	}
	return append([]string(nil), roster...), nil
}
