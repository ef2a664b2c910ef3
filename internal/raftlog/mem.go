package raftlog

import (
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftkey"
)

// memBackend stores both keyspaces in one immutable radix tree, the
// in-memory analog of boltBackend's single bucket. Each read takes the
// current root, and since go-immutable-radix trees never mutate in
// place, a read never observes a half-applied batch. A whole Slice is
// consistent because Slice holds the log's mutex while it reads, so it
// never interleaves with an Append.
type memBackend struct {
	mu   sync.RWMutex
	tree *iradix.Tree
}

func newMemBackend() *memBackend {
	return &memBackend{tree: iradix.New()}
}

func (b *memBackend) snapshot() *iradix.Tree {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree
}

func (b *memBackend) getEntry(index raft.Index) (raft.Entry, bool, error) {
	raw, ok := b.snapshot().Get(raftkey.Log(index))
	if !ok {
		return raft.Entry{}, false, nil
	}
	e, err := decodeEntry(raw.([]byte))
	if err != nil {
		return raft.Entry{}, false, err
	}
	return e, true, nil
}

func (b *memBackend) getProperty(name string) ([]byte, bool, error) {
	raw, ok := b.snapshot().Get(raftkey.Property(name))
	if !ok {
		return nil, false, nil
	}
	return raw.([]byte), true, nil
}

func (b *memBackend) putEntryBatch(entry raft.Entry, lastIndex raft.Index, clusterConfigIndex *raft.Index) error {
	encoded, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	txn := b.tree.Txn()
	txn.Insert(raftkey.Log(entry.Index), encoded)
	txn.Insert(raftkey.Property(raftkey.LastLogIndex), encodeIndex(lastIndex))
	if clusterConfigIndex != nil {
		txn.Insert(raftkey.Property(raftkey.ClusterConfigKey), encodeIndex(*clusterConfigIndex))
	}
	b.tree = txn.Commit()
	return nil
}

func (b *memBackend) close() error { return nil }

// MemLog is the in-memory command log (spec.md §4.E): same contract as
// BoltLog, used in tests and for nodes awaiting a snapshot install.
type MemLog struct {
	*core
}

// OpenMemLog constructs an in-memory command log. bootstrap non-nil
// means mode 1 (fresh with bootstrap config); nil means mode 2 (fresh,
// empty, awaiting snapshot) — a MemLog is always "fresh", since it has
// no persistent backing to recover from (mode 3 never applies).
func OpenMemLog(bootstrap *raft.ClusterConfig) (*MemLog, error) {
	c, err := open(newMemBackend(), bootstrap)
	if err != nil {
		return nil, err
	}
	return &MemLog{core: c}, nil
}
