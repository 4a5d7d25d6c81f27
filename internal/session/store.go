package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/capitalize-ai/neighborhood-advisor/internal/model"
)

// ErrNoProfile is returned by Store.Load when nothing has been saved yet.
var ErrNoProfile = errors.New("no saved profile")

// Store persists the single profile record of a session under
// model.ProfileKey.
type Store interface {
	Load(ctx context.Context) (*model.Profile, error)
	Save(ctx context.Context, profile *model.Profile) error
}

// MemoryStore keeps the profile in memory.
type MemoryStore struct {
	mu      sync.Mutex
	profile *model.Profile
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(context.Context) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil, ErrNoProfile
	}
	p := *s.profile
	return &p, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, profile *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *profile
	s.profile = &p
	return nil
}

// FileStore keeps the profile in a YAML file.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type profileFile struct {
	Key     string        `yaml:"key"`
	Profile model.Profile `yaml:"profile"`
}

// Load implements Store.
func (s *FileStore) Load(context.Context) (*model.Profile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoProfile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", s.path, err)
	}
	if f.Key != model.ProfileKey {
		return nil, fmt.Errorf("profile %s has unexpected key %q", s.path, f.Key)
	}

	return &f.Profile, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, profile *model.Profile) error {
	data, err := yaml.Marshal(&profileFile{Key: model.ProfileKey, Profile: *profile})
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".profile-*")
	if err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}

	return nil
}
