// Package orgsync owns the canonical employee record set and reconciles drag
// gestures against a remote persistence API.
package orgsync

import (
	"sync"

	"organiflow/api/internal/hierarchy"
)

// RecordStore holds the flat record set the tree is built from. Readers get
// copies; only the Controller writes.
type RecordStore struct {
	mu      sync.RWMutex
	records []hierarchy.Employee
	version uint64
	loaded  bool
	loadErr error
}

func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// Snapshot returns a deep copy of the current records.
func (s *RecordStore) Snapshot() []hierarchy.Employee {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hierarchy.CloneAll(s.records)
}

// Forest builds the tree view of the current records.
func (s *RecordStore) Forest() hierarchy.Forest {
	return hierarchy.Build(s.Snapshot())
}

// Version increases on every write.
func (s *RecordStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Loaded reports whether records were ever fetched successfully.
func (s *RecordStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// LoadErr is the error of the last failed initial fetch, if any.
func (s *RecordStore) LoadErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func (s *RecordStore) replace(records []hierarchy.Employee) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = hierarchy.CloneAll(records)
	s.loaded = true
	s.loadErr = nil
	s.version++
	return s.version
}

// restore puts a snapshot back exactly as it was taken.
func (s *RecordStore) restore(snapshot []hierarchy.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = hierarchy.CloneAll(snapshot)
	s.version++
}

func (s *RecordStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.loaded = false
	s.loadErr = err
	s.version++
}
