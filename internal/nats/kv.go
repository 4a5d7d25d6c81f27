package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
	"github.com/capitalize-ai/neighborhood-advisor/internal/session"
)

// ProfileBucket is the key-value bucket holding client profiles.
const ProfileBucket = "advisor-profiles"

// ProfileStore is a session.Store on a JetStream key-value bucket. Each
// named profile lives under its own key.
type ProfileStore struct {
	kv  jetstream.KeyValue
	key string
}

// NewProfileStore opens the profile bucket, creating it if needed. An empty
// name selects the default profile.
func NewProfileStore(ctx context.Context, client *Client, name string) (*ProfileStore, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, ProfileBucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      ProfileBucket,
			Description: "Neighborhood advisor user profiles",
			History:     5,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open profile bucket: %w", err)
	}

	return &ProfileStore{kv: kv, key: ProfileKey(name)}, nil
}

// ProfileKey returns the bucket key of a named profile.
func ProfileKey(name string) string {
	if name == "" {
		return model.ProfileKey
	}
	return model.ProfileKey + "." + subjectToken(name)
}

// Load implements session.Store.
func (s *ProfileStore) Load(ctx context.Context) (*model.Profile, error) {
	entry, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, session.ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile model.Profile
	if err := json.Unmarshal(entry.Value(), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &profile, nil
}

// Save implements session.Store.
func (s *ProfileStore) Save(ctx context.Context, profile *model.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if _, err := s.kv.Put(ctx, s.key, data); err != nil {
		return fmt.Errorf("failed to put profile: %w", err)
	}
	return nil
}
