// Package raftlog implements the replicated command log from
// spec.md §4.D/§4.E: append with the consistency check and
// cluster-config-chain-aware truncation, bounded slice reads, and the
// three open modes. BoltLog and MemLog share this file's algorithm
// against the entryBackend seam, differing only in how entries and the
// two reserved properties (last_log_index, cluster_config_index) are
// actually stored.
//
// Grounded on the teacher's Node.setLog/reconcileLogs/commitRecords
// (internal/node/node.go), generalized from "rewrite the whole log
// file" to "one atomic batch per entry, fsynced before the next
// begins" (spec.md §4.D's ordering guarantee).
package raftlog

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftiter"
	"github.com/quorumkit/raftcore/internal/raftkey"
)

// AppendRequest is the consistency-checked batch append from spec.md
// §4.D. Term is the requesting leader's current term, bounding every
// incoming entry's term; CommitIndex is the leader's state-machine
// commit index, used for the post-commit check.
type AppendRequest struct {
	Term        raft.Term
	PrevIndex   raft.Index
	PrevTerm    raft.Term
	Entries     []raft.Entry
	CommitIndex raft.Index
}

// Log is the command-log contract shared by the durable and in-memory
// implementations.
type Log interface {
	// Append runs the consistency check, pair-walk, truncation, and
	// per-entry batched write described in spec.md §4.D. smCommitIndex
	// is the state machine's current commit index, used only to guard
	// against truncating already-committed entries.
	Append(req AppendRequest, smCommitIndex raft.Index) error

	// Slice returns entries with start <= index < min(end, last+1), in
	// order. end of nil means unbounded.
	Slice(start raft.Index, end *raft.Index) (raftiter.Seq, error)

	// Last returns a snapshot of the last entry (the index-0 sentinel
	// if the log holds only the bootstrap entry).
	Last() raft.Entry

	// ClusterConfig returns the cluster config installed by the most
	// recent Configure entry at or below Last().Index.
	ClusterConfig() raft.ClusterConfig

	// AwaitingSnapshot reports whether the log was opened fresh
	// without a bootstrap config, and so rejects Append until a
	// snapshot install populates it.
	AwaitingSnapshot() bool

	// Close releases the backing store. Idempotent.
	Close() error
}

// entryBackend is the storage seam both concrete logs implement.
// putEntryBatch must be atomic: the entry, the last-index property,
// and (when non-nil) the cluster-config-index property land together
// or not at all, and the call must not return until durable (for
// BoltLog; MemLog is synchronously "durable" by construction).
type entryBackend interface {
	getEntry(index raft.Index) (raft.Entry, bool, error)
	getProperty(name string) ([]byte, bool, error)
	putEntryBatch(entry raft.Entry, lastIndex raft.Index, clusterConfigIndex *raft.Index) error
	close() error
}

type core struct {
	backend entryBackend

	mu                 sync.Mutex
	lastEntry          raft.Entry
	nextIndex          raft.Index
	clusterConfig      raft.ClusterConfig
	clusterConfigIndex raft.Index
	awaitingSnapshot   bool
	closed             bool
}

// open implements the three open modes from spec.md §4.D. bootstrap
// non-nil with no existing state means mode 1 (fresh with bootstrap);
// bootstrap nil with no existing state means mode 2 (fresh, empty,
// awaiting snapshot); any existing last_log_index property means mode
// 3 (recover from backend).
func open(backend entryBackend, bootstrap *raft.ClusterConfig) (*core, error) {
	l := &core{backend: backend}

	lastIdxRaw, hasLast, err := backend.getProperty(raftkey.LastLogIndex)
	if err != nil {
		return nil, err
	}

	if !hasLast {
		if bootstrap == nil {
			l.awaitingSnapshot = true
			return l, nil
		}
		entry := raft.BootstrapEntry(*bootstrap)
		zero := raft.Index(0)
		if err := backend.putEntryBatch(entry, 0, &zero); err != nil {
			return nil, err
		}
		l.lastEntry = entry
		l.nextIndex = 1
		l.clusterConfig = entry.Command.Cluster.Clone()
		l.clusterConfigIndex = 0
		return l, nil
	}

	lastIdx := decodeIndex(lastIdxRaw)
	lastEntry, ok, err := backend.getEntry(lastIdx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, raft.WrapIndex(raft.ErrInternal, lastIdx, "last_log_index points at missing entry")
	}
	l.lastEntry = lastEntry
	l.nextIndex = lastIdx + 1

	cfgIdxRaw, hasCfgIdx, err := backend.getProperty(raftkey.ClusterConfigKey)
	if err != nil {
		return nil, err
	}
	var cfgIdx raft.Index
	if hasCfgIdx {
		cfgIdx = decodeIndex(cfgIdxRaw)
	}
	cfgEntry, ok, err := backend.getEntry(cfgIdx)
	if err != nil {
		return nil, err
	}
	if !ok || cfgEntry.Command.Kind != raft.CommandConfigure {
		// Cache mismatch: rebuild by scanning backward from last_entry,
		// per spec.md §9's "verify the cache ... on mismatch, rebuild".
		log.Warn().Uint64("cachedIndex", uint64(cfgIdx)).Msg("raftlog: cluster-config cache miss, rebuilding")
		cfgIdx, cfgEntry, err = l.rebuildClusterConfigIndex(lastIdx)
		if err != nil {
			return nil, err
		}
	}
	l.clusterConfigIndex = cfgIdx
	l.clusterConfig = cfgEntry.Command.Cluster.Clone()
	return l, nil
}

func (l *core) rebuildClusterConfigIndex(from raft.Index) (raft.Index, raft.Entry, error) {
	for i := from; ; i-- {
		e, ok, err := l.backend.getEntry(i)
		if err != nil {
			return 0, raft.Entry{}, err
		}
		if ok && e.Command.Kind == raft.CommandConfigure {
			return i, e, nil
		}
		if i == 0 {
			break
		}
	}
	return 0, raft.Entry{}, raft.ErrInternal
}

// rangeSeq reads existing log entries from the backend over a
// contiguous index range, adapting entryBackend to raftiter.Seq.
type rangeSeq struct {
	backend    entryBackend
	next, stop raft.Index
}

func (s *rangeSeq) Next() (raft.Entry, bool, error) {
	if s.next >= s.stop {
		return raft.Entry{}, false, nil
	}
	e, ok, err := s.backend.getEntry(s.next)
	if err != nil {
		return raft.Entry{}, false, err
	}
	if !ok {
		return raft.Entry{}, false, raft.WrapIndex(raft.ErrInternal, s.next, "expected contiguous entry missing")
	}
	s.next++
	return e, true, nil
}

// Append implements Log.
func (l *core) Append(req AppendRequest, smCommitIndex raft.Index) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return raft.ErrInternal
	}
	if l.awaitingSnapshot {
		return raft.ErrNotReady
	}

	// 1. Consistency check.
	prevEntry, ok, err := l.backend.getEntry(req.PrevIndex)
	if err != nil {
		return err
	}
	if !ok {
		return raft.WrapIndex(raft.ErrTermMismatch, req.PrevIndex, "no entry at prev index")
	}
	if prevEntry.Term != req.PrevTerm {
		return raft.WrapTerm(raft.ErrTermMismatch, req.PrevTerm, "prev term mismatch")
	}

	// 2. Pair-walk.
	merger := raftiter.NewMerger(
		raftiter.NewSliceSeq(req.Entries),
		&rangeSeq{backend: l.backend, next: req.PrevIndex + 1, stop: l.nextIndex},
	)
	defer merger.Close()

	expected := req.PrevIndex + 1
	prevSeenTerm := req.PrevTerm
	truncated := false

	var lastWrittenIndex raft.Index
	haveWritten := false

	for {
		pair, done, err := merger.Next()
		if err != nil {
			return err
		}
		if done {
			break
		}
		if !pair.LeftPresent {
			// Stale tail entry on the right with no incoming
			// replacement; ignored (invisible once last_index/next
			// appends overwrite the visible range).
			continue
		}

		entry := *pair.Left

		// Validate entry invariants before any write for this pair.
		if entry.Index != expected {
			return raft.WrapIndex(raft.ErrInvalidIndex, entry.Index, "non-contiguous entry index")
		}
		if entry.Term < prevSeenTerm {
			return raft.WrapTerm(raft.ErrInvalidTerm, entry.Term, "entry term decreases along log")
		}
		if entry.Term > req.Term {
			return raft.WrapTerm(raft.ErrInvalidTerm, entry.Term, "entry term exceeds request term")
		}
		expected++

		if pair.RightPresent && !truncated {
			if entry.Term == pair.Right.Term {
				// Already present; nothing to write.
				lastWrittenIndex = entry.Index
				haveWritten = true
				prevSeenTerm = entry.Term
				continue
			}

			// Conflicting entry at the same index: truncate.
			if smCommitIndex >= entry.Index {
				return raft.WrapIndex(raft.ErrInternal, entry.Index, "truncate before commit")
			}
			for entry.Index <= l.clusterConfigIndex {
				curCfg, ok, err := l.backend.getEntry(l.clusterConfigIndex)
				if err != nil {
					return err
				}
				if !ok {
					return raft.ErrInternal
				}
				prevIdx := curCfg.Command.PrevConfigIndex
				prevCfgEntry, ok, err := l.backend.getEntry(prevIdx)
				if err != nil {
					return err
				}
				if !ok {
					return raft.ErrInternal
				}
				l.clusterConfigIndex = prevIdx
				l.clusterConfig = prevCfgEntry.Command.Cluster.Clone()
			}
			truncated = true
		}

		// 3. Per-entry write.
		toWrite := entry
		var newClusterConfigIndex *raft.Index
		if toWrite.Command.Kind == raft.CommandConfigure && toWrite.Index > l.clusterConfigIndex {
			toWrite.Command.PrevConfigIndex = l.clusterConfigIndex
			toWrite.Command.Cluster.ClogIndex = toWrite.Index
			idx := toWrite.Index
			newClusterConfigIndex = &idx
		}

		if err := l.backend.putEntryBatch(toWrite, toWrite.Index, newClusterConfigIndex); err != nil {
			return err
		}

		l.lastEntry = toWrite
		l.nextIndex = toWrite.Index + 1
		if newClusterConfigIndex != nil {
			l.clusterConfigIndex = *newClusterConfigIndex
			l.clusterConfig = toWrite.Command.Cluster.Clone()
		}
		lastWrittenIndex = toWrite.Index
		haveWritten = true
		prevSeenTerm = toWrite.Term
	}

	// 4. Post-commit check.
	tail := l.lastEntry.Index
	if haveWritten {
		tail = lastWrittenIndex
	}
	if tail < req.CommitIndex {
		return raft.WrapIndex(raft.ErrInvalidIndex, req.CommitIndex, "commit ahead of last entry")
	}
	return nil
}

// Slice implements Log.
func (l *core) Slice(start raft.Index, end *raft.Index) (raftiter.Seq, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	clamp := l.lastEntry.Index + 1
	if l.awaitingSnapshot {
		clamp = 0
	}

	stop := clamp
	if end != nil && *end < stop {
		stop = *end
	}
	if stop <= start {
		return raftiter.NewSliceSeq(nil), nil
	}

	entries := make([]raft.Entry, 0, stop-start)
	for i := start; i < stop; i++ {
		e, ok, err := l.backend.getEntry(i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, raft.WrapIndex(raft.ErrInternal, i, "expected contiguous entry missing during slice")
		}
		entries = append(entries, e)
	}
	return raftiter.NewSliceSeq(entries), nil
}

// Last implements Log.
func (l *core) Last() raft.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.lastEntry
	e.Command.Cluster = e.Command.Cluster.Clone()
	return e
}

// ClusterConfig implements Log.
func (l *core) ClusterConfig() raft.ClusterConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clusterConfig.Clone()
}

// AwaitingSnapshot implements Log.
func (l *core) AwaitingSnapshot() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.awaitingSnapshot
}

// Close implements Log.
func (l *core) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.backend.close()
}
