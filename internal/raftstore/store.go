// Package raftstore implements the durable small key/value store from
// spec.md §4.C: atomic patch writes, fsync-before-signal durability,
// and a not-ready gate until the backing store has opened.
package raftstore

import (
	"github.com/quorumkit/raftcore/internal/raft"
)

// Store is the properties-store contract. Implementations must reject
// every operation with raft.ErrNotReady until Ready() would return
// true.
type Store interface {
	// Write commits patch atomically: all keys land or none do.
	Write(patch map[string][]byte) error

	// Get returns the value for key, or ok=false if absent.
	Get(key []byte) (value []byte, ok bool, err error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key []byte) error

	// Ready reports whether the store has finished opening.
	Ready() bool

	// Close releases the backing store. Idempotent.
	Close() error
}
