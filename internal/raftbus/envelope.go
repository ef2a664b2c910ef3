package raftbus

import "github.com/quorumkit/raftcore/internal/raft"

// AppendEntriesReq is the replication/heartbeat RPC body (spec.md §6).
// A heartbeat is an AppendEntriesReq with Entries == nil, per spec.md
// §9's "Heartbeat vs. replication payload is not distinguished in the
// source; this spec unifies them".
type AppendEntriesReq struct {
	Term         raft.Term
	LeaderID     string
	PrevLogIndex raft.Index
	PrevLogTerm  raft.Term
	Entries      []raft.Entry
	CommitIndex  raft.Index
}

// AppendEntriesResp answers an AppendEntriesReq.
type AppendEntriesResp struct {
	Term    raft.Term
	Success bool
}

// RequestVoteReq is the election RPC body.
type RequestVoteReq struct {
	Term         raft.Term
	CandidateID  string
	LastLogIndex raft.Index
	LastLogTerm  raft.Term
}

// RequestVoteResp answers a RequestVoteReq.
type RequestVoteResp struct {
	Term        raft.Term
	VoteGranted bool
}

// InstallSnapshotReq is opaque to the core (spec.md §1/§6: the
// snapshot producer/installer is a named external collaborator, not an
// in-scope component). Body is left to the Snapshotter implementation.
type InstallSnapshotReq struct {
	LeaderID string
	Body     any
}

// InstallSnapshotResp answers an InstallSnapshotReq.
type InstallSnapshotResp struct {
	Term    raft.Term
	Success bool
}

// Snapshotter installs a snapshot stream and reports the log index it
// leaves the node at. After a successful install, the command log is
// reopened in mode 3 (existing state), per spec.md §6.
type Snapshotter interface {
	Install(req InstallSnapshotReq) (raft.Index, error)
}
