// Package raftiter implements the pairs merger from spec.md §4.B: a
// lazy walk of two index-sorted entry streams, yielding (left?, right?)
// pairs aligned by index. It replaces the teacher's inlined
// overlapping-entries loop (reconcileLogs) with the explicit lazy
// iterator spec.md §9 calls for, so raftlog.Append can drive it with a
// plain for-loop and no shared mutable counters.
package raftiter

import (
	"github.com/quorumkit/raftcore/internal/raft"
)

// Seq is a finite, index-sorted sequence of entries, pulled one at a
// time. Next returns (entry, true, nil) while entries remain,
// (zero, false, nil) at exhaustion, or a non-nil error that must be
// propagated immediately (eager propagation, per spec.md §4.B).
type Seq interface {
	Next() (raft.Entry, bool, error)
}

// SliceSeq adapts an in-memory slice of already-sorted entries to Seq.
type SliceSeq struct {
	entries []raft.Entry
	pos     int
}

// NewSliceSeq wraps entries (assumed sorted by Index) as a Seq.
func NewSliceSeq(entries []raft.Entry) *SliceSeq {
	return &SliceSeq{entries: entries}
}

// Next implements Seq.
func (s *SliceSeq) Next() (raft.Entry, bool, error) {
	if s.pos >= len(s.entries) {
		return raft.Entry{}, false, nil
	}
	e := s.entries[s.pos]
	s.pos++
	return e, true, nil
}

// Pair is one step of the merge: at least one of Left/Right is
// present.
type Pair struct {
	Left, Right   *raft.Entry
	LeftPresent   bool
	RightPresent  bool
}

// Merger pulls aligned pairs out of two Seqs until both are exhausted.
type Merger struct {
	left, right Seq

	leftHead, rightHead   *raft.Entry
	leftDone, rightDone    bool
	err                    error
}

// NewMerger constructs a Merger over two index-sorted sequences.
func NewMerger(left, right Seq) *Merger {
	return &Merger{left: left, right: right}
}

func (m *Merger) fillLeft() error {
	if m.leftHead != nil || m.leftDone {
		return nil
	}
	e, ok, err := m.left.Next()
	if err != nil {
		return err
	}
	if !ok {
		m.leftDone = true
		return nil
	}
	m.leftHead = &e
	return nil
}

func (m *Merger) fillRight() error {
	if m.rightHead != nil || m.rightDone {
		return nil
	}
	e, ok, err := m.right.Next()
	if err != nil {
		return err
	}
	if !ok {
		m.rightDone = true
		return nil
	}
	m.rightHead = &e
	return nil
}

// Next returns the next aligned pair, or done=true once both sequences
// are exhausted. Errors from either underlying Seq abort immediately
// and are not retried.
func (m *Merger) Next() (pair Pair, done bool, err error) {
	if m.err != nil {
		return Pair{}, false, m.err
	}

	if err := m.fillLeft(); err != nil {
		m.err = err
		return Pair{}, false, err
	}
	if err := m.fillRight(); err != nil {
		m.err = err
		return Pair{}, false, err
	}

	switch {
	case m.leftHead == nil && m.rightHead == nil:
		return Pair{}, true, nil

	case m.leftHead != nil && m.rightHead != nil && m.leftHead.Index == m.rightHead.Index:
		l, r := m.leftHead, m.rightHead
		m.leftHead, m.rightHead = nil, nil
		return Pair{Left: l, Right: r, LeftPresent: true, RightPresent: true}, false, nil

	case m.rightHead == nil || (m.leftHead != nil && m.leftHead.Index < m.rightHead.Index):
		l := m.leftHead
		m.leftHead = nil
		return Pair{Left: l, LeftPresent: true}, false, nil

	default: // m.leftHead == nil || m.rightHead.Index < m.leftHead.Index
		r := m.rightHead
		m.rightHead = nil
		return Pair{Right: r, RightPresent: true}, false, nil
	}
}

// Close releases both cursors on early termination. Seq implementations
// in this package hold no resources, but callers driving a Merger over
// store-backed cursors should call Close from a defer as soon as they
// stop pulling pairs.
func (m *Merger) Close() {
	m.leftHead, m.rightHead = nil, nil
	m.leftDone, m.rightDone = true, true
}
