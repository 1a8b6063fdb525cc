// Package credentials keeps the local endpoint identity of the client.
//
// The identity is a small JSON file holding the endpoint name the client
// registers with. Factory reset wipes it; the next run creates a new one.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IdentityVersion is the current version of the identity file format.
const IdentityVersion = 1

// EndpointPrefix starts every generated endpoint name.
const EndpointPrefix = "m2m-"

// ErrInvalidIdentity is returned for an identity file that cannot be used.
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is the persisted endpoint identity.
type Identity struct {
	// Version is the file format version.
	Version int `json:"version"`

	// EndpointName is the name the client registers with.
	EndpointName string `json:"endpoint_name"`

	// CreatedAt is when the identity was generated.
	CreatedAt time.Time `json:"created_at"`
}

// Store manages the identity file. A Store with an empty path keeps the
// identity in memory only.
type Store struct {
	mu     sync.Mutex
	path   string
	memory *Identity
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the identity file path.
func (s *Store) Path() string { return s.path }

// Load reads the identity. Returns nil, nil if none exists.
func (s *Store) Load() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save writes the identity.
func (s *Store) Save(id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(id)
}

// EnsureIdentity returns the stored identity, creating and saving a new
// one when none exists.
func (s *Store) EnsureIdentity() (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.load()
	if err != nil {
		return nil, err
	}
	if id != nil {
		return id, nil
	}

	id = &Identity{
		EndpointName: EndpointPrefix + uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.save(id); err != nil {
		return nil, err
	}
	return id, nil
}

// FactoryReset removes the identity. Resetting a store without an
// identity succeeds.
func (s *Store) FactoryReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memory = nil
	if s.path == "" {
		return nil
	}
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("factory reset: %w", err)
	}
	return nil
}

func (s *Store) load() (*Identity, error) {
	if s.path == "" {
		if s.memory == nil {
			return nil, nil
		}
		id := *s.memory
		return &id, nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	id := &Identity{}
	if err := json.Unmarshal(data, id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if id.EndpointName == "" {
		return nil, fmt.Errorf("%w: empty endpoint name", ErrInvalidIdentity)
	}
	return id, nil
}

func (s *Store) save(id *Identity) error {
	if id == nil || id.EndpointName == "" {
		return fmt.Errorf("%w: empty endpoint name", ErrInvalidIdentity)
	}
	id.Version = IdentityVersion
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}

	if s.path == "" {
		cp := *id
		s.memory = &cp
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}
