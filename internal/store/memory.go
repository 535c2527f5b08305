package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

// MemoryStore is an in-process Store. Profiles are deep-copied on the way in
// and out, so callers never share mutable state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]memoryEntry
}

type memoryEntry struct {
	profile  *preference.Profile
	revision uint64
}

// NewMemoryStore creates an empty in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]memoryEntry),
	}
}

// Load returns a copy of the user's profile and its revision token.
func (m *MemoryStore) Load(ctx context.Context, userID string) (*preference.Profile, uint64, error) {
	if userID == "" {
		return nil, 0, preference.ErrEmptyUserID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.profiles[userID]
	if !ok {
		return nil, 0, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return entry.profile.Clone(), entry.revision, nil
}

// Save persists the profile under optimistic concurrency.
func (m *MemoryStore) Save(ctx context.Context, profile *preference.Profile, revision uint64) (uint64, error) {
	if profile == nil {
		return 0, fmt.Errorf("nil profile")
	}
	if err := profile.Validate(); err != nil {
		return 0, fmt.Errorf("invalid profile: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.profiles[profile.UserID]
	switch {
	case !exists && revision != 0:
		return 0, fmt.Errorf("user %q: revision %d on missing profile: %w", profile.UserID, revision, ErrVersionConflict)
	case exists && revision != entry.revision:
		return 0, fmt.Errorf("user %q: revision %d, current %d: %w", profile.UserID, revision, entry.revision, ErrVersionConflict)
	}

	next := revision + 1
	m.profiles[profile.UserID] = memoryEntry{
		profile:  profile.Clone(),
		revision: next,
	}
	return next, nil
}

// Delete removes the user's profile.
func (m *MemoryStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return preference.ErrEmptyUserID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[userID]; !ok {
		return fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	delete(m.profiles, userID)
	return nil
}

// Len reports how many profiles the store holds.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}

// Ensure interface is implemented.
var _ Store = (*MemoryStore)(nil)
