package statemachine

import (
	"sync"

	"github.com/quorumkit/raftcore/internal/raft"
)

// MemStateMachine is a trivial reference StateMachine for tests. Each
// executed User command's payload becomes the new value of Data, the
// same "last applied command becomes the state" shape spec.md §8's
// scenarios assert against (e.g. "state_machine.data == 'foo'").
// Configure commands advance CommitIndex without touching Data, the
// same as the teacher's applyCommittedLogs skipping non-SET/DEL
// actions.
type MemStateMachine struct {
	mu          sync.Mutex
	commitIndex raft.Index
	Data        string
}

// NewMemStateMachine constructs an empty MemStateMachine.
func NewMemStateMachine() *MemStateMachine {
	return &MemStateMachine{}
}

// CommitIndex implements StateMachine.
func (m *MemStateMachine) CommitIndex() raft.Index {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitIndex
}

// Execute implements StateMachine.
func (m *MemStateMachine) Execute(entries []raft.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.Command.Kind == raft.CommandUser {
			m.Data = string(e.Command.Payload)
		}
		m.commitIndex = e.Index
	}
	return nil
}
