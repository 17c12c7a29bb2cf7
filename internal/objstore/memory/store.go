// Package memory stores attachment objects in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/licitatech/pncp-harvester/internal/pncp"
)

// Store keeps objects in a map and returns pseudo URLs. It mirrors the GCS
// store's conflict semantics: a Put to an occupied path fails with
// pncp.ErrObjectExists.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory object store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put stores data under path, refusing occupied paths.
func (s *Store) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[path]; ok {
		return "", fmt.Errorf("put %s: %w", path, pncp.ErrObjectExists)
	}
	s.data[path] = append([]byte(nil), data...)
	return "memory://" + path, nil
}

// Delete removes the object at path. Deleting an absent path is a no-op.
func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, path)
	return nil
}

// Get returns the stored bytes for path.
func (s *Store) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Len reports the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
