// Package secrets keeps the generated passwords of a deployment.
package secrets

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Backend persists the whole secret mapping. Load is called once when the
// store is opened and Save rewrites everything.
type Backend interface {
	Load() (map[string]string, error)
	Save(values map[string]string) error
}

// Generator returns a new secret value
type Generator func() (string, error)

// UUIDGenerator returns random version 4 UUIDs
func UUIDGenerator() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return id.String(), nil
}

// Store is an in-memory snapshot of a Backend. Values are generated lazily by
// GetOrCreate and never rotated: an existing value is always returned as-is.
type Store struct {
	backend   Backend
	generate  Generator
	values    map[string]string
	generated []string
	dirty     bool
}

// Option configures a Store
type Option func(*Store)

// WithGenerator replaces the UUID generator
func WithGenerator(g Generator) Option {
	return func(s *Store) {
		s.generate = g
	}
}

// Open loads the backend content into a new store
func Open(backend Backend, opts ...Option) (*Store, error) {
	values, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	if values == nil {
		values = make(map[string]string)
	}

	s := &Store{
		backend:  backend,
		generate: UUIDGenerator,
		values:   values,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns a secret without creating it
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// GetOrCreate returns the secret stored under name, generating and recording
// it first when absent
func (s *Store) GetOrCreate(name string) (string, error) {
	if v, ok := s.values[name]; ok {
		return v, nil
	}

	v, err := s.generate()
	if err != nil {
		return "", err
	}
	s.values[name] = v
	s.generated = append(s.generated, name)
	s.dirty = true
	return v, nil
}

// Delete removes name and reports whether it existed
func (s *Store) Delete(name string) bool {
	if _, ok := s.values[name]; !ok {
		return false
	}
	delete(s.values, name)
	s.dirty = true
	return true
}

// Generated lists the names created since the store was opened
func (s *Store) Generated() []string {
	out := make([]string, len(s.generated))
	copy(out, s.generated)
	return out
}

// Dirty reports whether the store differs from what was loaded
func (s *Store) Dirty() bool {
	return s.dirty
}

// Names returns the secret names, sorted
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of every secret
func (s *Store) Snapshot() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Save rewrites the backend with the current content
func (s *Store) Save() error {
	if err := s.backend.Save(s.Snapshot()); err != nil {
		return fmt.Errorf("failed to save secrets: %w", err)
	}
	s.dirty = false
	return nil
}

// MemoryBackend keeps secrets in memory, for tests and dry runs
type MemoryBackend struct {
	Values map[string]string
	Saves  int
}

// Load returns a copy of Values
func (m *MemoryBackend) Load() (map[string]string, error) {
	out := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		out[k] = v
	}
	return out, nil
}

// Save replaces Values
func (m *MemoryBackend) Save(values map[string]string) error {
	m.Values = make(map[string]string, len(values))
	for k, v := range values {
		m.Values[k] = v
	}
	m.Saves++
	return nil
}
