package artifact

import (
	"sort"
	"sync"
)

// InMemoryStore keeps derived artifacts in a nested map guarded by an
// RWMutex. Bytes are copied on save and on retrieval so callers can never
// mutate stored buffers.
//
// Layout: workflowID -> artifactID -> raw bytes
//
// It enforces no retention limits or quotas. For artifacts that must outlive
// the process use SQLiteStore instead.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][]byte)}
}

// Save stores (or overwrites) the artifact bytes under the given workflow
// and artifact id. The input slice is copied before storage.
func (s *InMemoryStore) Save(workflowID, artifactID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[workflowID]; !exists {
		s.artifacts[workflowID] = make(map[string][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.artifacts[workflowID][artifactID] = cp
	return nil
}

// Get returns a copy of the stored artifact bytes or ErrNotFound.
func (s *InMemoryStore) Get(workflowID, artifactID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.artifacts[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := m[artifactID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List returns the artifact ids stored for the workflow in sorted order.
// The slice is a snapshot and safe for caller mutation.
func (s *InMemoryStore) List(workflowID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.artifacts[workflowID]
	if !ok {
		return []string{}, nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the artifact if present or returns ErrNotFound.
func (s *InMemoryStore) Delete(workflowID, artifactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.artifacts[workflowID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[artifactID]; !ok {
		return ErrNotFound
	}
	delete(m, artifactID)
	return nil
}
