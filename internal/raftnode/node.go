// Package raftnode implements the Raft role state machine from
// spec.md §4.F: role transitions, the RequestVote/AppendEntries RPC
// handlers, client submission, and the leader's replication driver. It
// is the counterpart to internal/raftlog's command log — the log
// stores the history, raftnode decides what goes in it and when it is
// safe to execute.
//
// Grounded on the teacher's Node (internal/node/node.go): the same
// Term/votedFor/State fields, the same embedded-mutex serialization of
// client-facing methods (n.Lock()/n.Unlock() around Set/Delete),
// generalized from the teacher's 2-role (Leader/Follower) model to the
// full 3-role model spec.md requires, and from direct gRPC calls
// (ForeignNode.Client) to the raftbus.Bus adapter.
package raftnode

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftbus"
	"github.com/quorumkit/raftcore/internal/raftkey"
	"github.com/quorumkit/raftcore/internal/raftlog"
	"github.com/quorumkit/raftcore/internal/raftstore"
	"github.com/quorumkit/raftcore/internal/raftticker"
	"github.com/quorumkit/raftcore/internal/statemachine"
)

// Role is one of the three states spec.md §4.F names. Candidate is a
// real role here (unlike the teacher, which treats it as virtual),
// since spec.md requires RequestVote to distinguish "already an
// election in progress" from "quiescent follower".
type Role string

const (
	Follower  Role = "Follower"
	Candidate Role = "Candidate"
	Leader    Role = "Leader"
)

// Config bundles a Node's collaborators. ID must match the ID this
// node is addressed by in every ClusterConfig it will ever see.
type Config struct {
	ID    string
	Store raftstore.Store
	Log   raftlog.Log
	Bus   *raftbus.Bus
	SM    statemachine.StateMachine

	// TickMin/TickMax bound the randomized election timeout, in tick
	// units (spec.md §4.G). Required.
	TickMin int
	TickMax int
}

// Node is one member of a Raft cluster. All mutable state is guarded
// by the embedded mutex, which stands in for the "mailbox" spec.md §5
// requires: RequestVote, AppendEntries, ClientRequest, and Tick all run
// under it, so term/vote/role updates are linearized the way a
// single-threaded cooperative scheduler would linearize them.
type Node struct {
	sync.Mutex

	id string

	store raftstore.Store
	log   raftlog.Log
	bus   *raftbus.Bus
	sm    statemachine.StateMachine
	ticker *raftticker.Ticker

	role        Role
	currentTerm raft.Term
	votedFor    string
	leaderID    string

	// peerIndexes is leader-only: next index to send to each peer.
	peerIndexes map[string]raft.Index

	// waiters lets ClientRequest block until its entry commits (or the
	// node steps down from leader before it does).
	waiters map[raft.Index]chan struct{}
}

// New constructs a Node in the Follower role, recovering currentTerm
// and votedFor from cfg.Store if present (spec.md §3: these are
// durable properties, read back on startup the same way the teacher's
// NewNode calls ReadTerm).
func New(cfg Config) (*Node, error) {
	n := &Node{
		id:          cfg.ID,
		store:       cfg.Store,
		log:         cfg.Log,
		bus:         cfg.Bus,
		sm:          cfg.SM,
		ticker:      raftticker.New(cfg.TickMin, cfg.TickMax, nil),
		role:        Follower,
		peerIndexes: make(map[string]raft.Index),
		waiters:     make(map[raft.Index]chan struct{}),
	}

	termRaw, ok, err := cfg.Store.Get(raftkey.Property(raftkey.CurrentTerm))
	if err != nil {
		return nil, err
	}
	if ok {
		n.currentTerm = decodeTerm(termRaw)
	}
	votedRaw, ok, err := cfg.Store.Get(raftkey.Property(raftkey.VotedFor))
	if err != nil {
		return nil, err
	}
	if ok {
		n.votedFor = string(votedRaw)
	}

	log.Info().
		Str("id", n.id).
		Uint64("term", uint64(n.currentTerm)).
		Str("votedFor", n.votedFor).
		Msg("raftnode: loaded")

	return n, nil
}

// ID returns this node's identity.
func (n *Node) ID() string { return n.id }

// Role reports the current role, for tests and diagnostics.
func (n *Node) Role() Role {
	n.Lock()
	defer n.Unlock()
	return n.role
}

// Term reports currentTerm, for tests and diagnostics.
func (n *Node) Term() raft.Term {
	n.Lock()
	defer n.Unlock()
	return n.currentTerm
}

// LeaderHint returns the best-known leader ID, for redirecting clients
// that contacted a non-leader (spec.md §4.F client_request step 1,
// "fail NotLeader with the best-known leader_id").
func (n *Node) LeaderHint() string {
	n.Lock()
	defer n.Unlock()
	return n.leaderID
}

func (n *Node) persistTermLocked() error {
	patch := map[string][]byte{
		string(raftkey.Property(raftkey.CurrentTerm)): encodeTerm(n.currentTerm),
		string(raftkey.Property(raftkey.VotedFor)):    []byte(n.votedFor),
	}
	return n.store.Write(patch)
}

// entryAtLocked fetches a single entry by index via Slice, since Log
// exposes no direct point lookup.
func (n *Node) entryAtLocked(idx raft.Index) (raft.Entry, error) {
	end := idx + 1
	seq, err := n.log.Slice(idx, &end)
	if err != nil {
		return raft.Entry{}, err
	}
	e, ok, err := seq.Next()
	if err != nil {
		return raft.Entry{}, err
	}
	if !ok {
		return raft.Entry{}, raft.WrapIndex(raft.ErrInternal, idx, "expected entry missing")
	}
	return e, nil
}

// applyCommittedLocked executes the log range (sm.CommitIndex(),
// target] on the state machine, per spec.md §4.F append_entries step 6
// and the replication driver's commit-index advance. No-op if target
// is not ahead of the current commit index.
func (n *Node) applyCommittedLocked(target raft.Index) error {
	current := n.sm.CommitIndex()
	if target <= current {
		return nil
	}
	end := target + 1
	seq, err := n.log.Slice(current+1, &end)
	if err != nil {
		return err
	}
	var entries []raft.Entry
	for {
		e, ok, err := seq.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := n.sm.Execute(entries); err != nil {
		return err
	}
	n.signalWaitersLocked(n.sm.CommitIndex())
	return nil
}

func (n *Node) signalWaitersLocked(through raft.Index) {
	for idx, ch := range n.waiters {
		if idx <= through {
			close(ch)
			delete(n.waiters, idx)
		}
	}
}

func (n *Node) failAllWaitersLocked() {
	for idx, ch := range n.waiters {
		close(ch)
		delete(n.waiters, idx)
	}
}
