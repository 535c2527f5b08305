// Package store persists user preference profiles.
//
// Two implementations exist: an in-memory store for tests and single-process
// deployments, and a NATS JetStream key-value store for anything durable.
// Both expose the same optimistic concurrency contract: every Load returns a
// revision token, every Save requires the token from the Load it was derived
// from, and a stale token fails with ErrVersionConflict so the caller can
// reload and retry.
package store

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

// Common errors for profile storage.
var (
	// ErrNotFound means no profile exists for the user.
	ErrNotFound = errors.New("profile not found")

	// ErrVersionConflict means the profile changed since it was loaded.
	// Callers reload and re-derive their update.
	ErrVersionConflict = errors.New("profile version conflict")
)

// Store is the persistence contract for preference profiles.
//
// The revision token is storage-level and opaque; it is not the profile's
// semantic Version field, though both advance together in practice.
type Store interface {
	// Load returns a copy of the user's profile and its revision token.
	// Returns ErrNotFound if the user has no profile yet.
	Load(ctx context.Context, userID string) (*preference.Profile, uint64, error)

	// Save persists the profile. A revision of 0 asserts the profile is
	// new; otherwise revision must match the token from the Load the
	// update was derived from. Returns the new revision token, or
	// ErrVersionConflict on a stale revision.
	Save(ctx context.Context, profile *preference.Profile, revision uint64) (uint64, error)

	// Delete removes the user's profile. Administrative surface only;
	// reconciliation never deletes. Returns ErrNotFound for unknown users.
	Delete(ctx context.Context, userID string) error
}
