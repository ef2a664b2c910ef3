package raft

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, one per spec error category. Use errors.Is
// against these; the errors that raftlog/raftnode raise themselves are
// one of these or wrap one with call-specific context via
// fmt.Errorf("...: %w", ...). Errors from a backing store are passed
// through as the store reports them and wrap none of these.
var (
	// ErrInvalidTerm: an incoming entry's term exceeds the request
	// term, or entry terms decrease along the log. A request whose term
	// is behind is not reported with this error: RequestVote and
	// AppendEntries answer it with a refusal carrying the current term.
	ErrInvalidTerm = errors.New("invalid term")

	// ErrInvalidIndex: non-monotonic index, or commit index ahead of
	// the last entry.
	ErrInvalidIndex = errors.New("invalid index")

	// ErrTermMismatch: the append consistency check failed; caller
	// should retry at a lower prevIndex.
	ErrTermMismatch = errors.New("term mismatch")

	// ErrNotLeader: a client submission arrived at a non-leader.
	ErrNotLeader = errors.New("not leader")

	// ErrNotReady: a component was used before it signalled readiness.
	ErrNotReady = errors.New("not ready")

	// ErrInternal: an attempted truncation at or below the state
	// machine's commit index, use of a closed log, or a stored entry
	// missing where the log's own state says one exists.
	ErrInternal = errors.New("internal error")
)

// WrapIndex annotates a sentinel with the index that triggered it.
func WrapIndex(kind error, index Index, msg string) error {
	return fmt.Errorf("%s (index=%d): %w", msg, index, kind)
}

// WrapTerm annotates a sentinel with the term that triggered it.
func WrapTerm(kind error, term Term, msg string) error {
	return fmt.Errorf("%s (term=%d): %w", msg, term, kind)
}
