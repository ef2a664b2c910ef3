package raftstore

import (
	"sync"

	"github.com/quorumkit/raftcore/internal/raft"
)

// MemStore is an in-memory Store, semantically identical to BoltStore
// (spec.md §4.C: "in-memory implementation is semantically identical"),
// used in tests and by MemLog-backed nodes.
type MemStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	ready bool
	closed bool
}

// NewMemStore constructs a ready, empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte), ready: true}
}

// Write implements Store.
func (m *MemStore) Write(patch map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return raft.ErrNotReady
	}
	if m.closed {
		return raft.ErrInternal
	}
	for k, v := range patch {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// Get implements Store.
func (m *MemStore) Get(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, false, raft.ErrNotReady
	}
	v, ok := m.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Delete implements Store.
func (m *MemStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return raft.ErrNotReady
	}
	delete(m.data, string(key))
	return nil
}

// Ready implements Store.
func (m *MemStore) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// Close implements Store.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.ready = false
	return nil
}
