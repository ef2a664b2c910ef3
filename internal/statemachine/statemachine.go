// Package statemachine defines the external collaborator from
// spec.md §6: the user-supplied state machine that executes committed
// commands. The core only depends on this interface; it is named here,
// not implemented, per spec.md §1 ("the user-supplied state machine" is
// explicitly out of core scope). A small in-memory reference
// implementation is provided for tests, mirroring the teacher's
// db.Database (Set/Delete called from commitRecords/applyCommittedLogs).
package statemachine

import "github.com/quorumkit/raftcore/internal/raft"

// StateMachine executes committed log entries in order, starting at
// CommitIndex()+1, with no gaps.
type StateMachine interface {
	// CommitIndex is the index of the last entry this state machine
	// has executed.
	CommitIndex() raft.Index

	// Execute applies entries, in order, advancing CommitIndex as it
	// goes. entries[0].Index must equal CommitIndex()+1.
	Execute(entries []raft.Entry) error
}
