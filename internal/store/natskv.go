package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prefd/internal/preference"
)

// DefaultBucket is the JetStream KV bucket profiles live in.
const DefaultBucket = "preference_profiles"

// NATSStore persists profiles in a NATS JetStream key-value bucket. The
// bucket revision doubles as the optimistic concurrency token: Update with a
// stale revision is rejected server-side, so two engine instances can share
// a bucket without coordination.
type NATSStore struct {
	kv     nats.KeyValue
	logger *zap.Logger
}

// NewNATSStore creates a profile store on the given connection, creating the
// bucket if it does not exist. The connection's lifecycle belongs to the
// caller.
func NewNATSStore(nc *nats.Conn, bucket string, logger *zap.Logger) (*NATSStore, error) {
	if nc == nil {
		return nil, errors.New("nats connection is required")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("getting jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "user preference profiles",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening bucket %q: %w", bucket, err)
	}

	logger.Info("nats profile store ready", zap.String("bucket", bucket))

	return &NATSStore{
		kv:     kv,
		logger: logger,
	}, nil
}

// Load returns the user's profile and the bucket revision it was read at.
func (s *NATSStore) Load(ctx context.Context, userID string) (*preference.Profile, uint64, error) {
	if userID == "" {
		return nil, 0, preference.ErrEmptyUserID
	}

	entry, err := s.kv.Get(userID)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, 0, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("loading profile for %q: %w", userID, err)
	}

	var profile preference.Profile
	if err := json.Unmarshal(entry.Value(), &profile); err != nil {
		return nil, 0, fmt.Errorf("decoding profile for %q: %w", userID, err)
	}
	if profile.Records == nil {
		profile.Records = make(map[preference.Category]preference.Record)
	}

	return &profile, entry.Revision(), nil
}

// Save persists the profile at the expected revision. Revision 0 creates.
func (s *NATSStore) Save(ctx context.Context, profile *preference.Profile, revision uint64) (uint64, error) {
	if profile == nil {
		return 0, errors.New("nil profile")
	}
	if err := profile.Validate(); err != nil {
		return 0, fmt.Errorf("invalid profile: %w", err)
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return 0, fmt.Errorf("encoding profile for %q: %w", profile.UserID, err)
	}

	var next uint64
	if revision == 0 {
		next, err = s.kv.Create(profile.UserID, data)
		if errors.Is(err, nats.ErrKeyExists) {
			return 0, fmt.Errorf("user %q: profile already exists: %w", profile.UserID, ErrVersionConflict)
		}
	} else {
		next, err = s.kv.Update(profile.UserID, data, revision)
		if isWrongLastSequence(err) {
			return 0, fmt.Errorf("user %q: revision %d is stale: %w", profile.UserID, revision, ErrVersionConflict)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("saving profile for %q: %w", profile.UserID, err)
	}

	s.logger.Debug("profile saved",
		zap.String("user_id", profile.UserID),
		zap.Uint64("version", profile.Version),
		zap.Uint64("revision", next))

	return next, nil
}

// Delete removes the user's profile.
func (s *NATSStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return preference.ErrEmptyUserID
	}

	// KV deletes are soft and succeed for missing keys, so probe first to
	// keep ErrNotFound semantics aligned with the memory store.
	_, err := s.kv.Get(userID)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking profile for %q: %w", userID, err)
	}

	if err := s.kv.Purge(userID); err != nil {
		return fmt.Errorf("deleting profile for %q: %w", userID, err)
	}
	return nil
}

// isWrongLastSequence reports whether err is JetStream's compare-and-set
// rejection for an unexpected revision.
func isWrongLastSequence(err error) bool {
	var apiErr *nats.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == nats.JSErrCodeStreamWrongLastSequence
}

// Ensure interface is implemented.
var _ Store = (*NATSStore)(nil)
