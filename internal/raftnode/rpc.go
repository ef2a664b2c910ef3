package raftnode

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftbus"
	"github.com/quorumkit/raftcore/internal/raftlog"
	"github.com/quorumkit/raftcore/internal/raftticker"
)

// RequestVote implements spec.md §4.F request_vote. Grounded on the
// teacher's HandleVote, generalized to the full term_changed/grant
// ordering spec.md specifies (the teacher's "same-term leader bumps
// its own term" quirk is a workaround for its 2-role model and is not
// reproduced here).
func (n *Node) RequestVote(req raftbus.RequestVoteReq) raftbus.RequestVoteResp {
	n.Lock()
	defer n.Unlock()

	if req.Term < n.currentTerm {
		return raftbus.RequestVoteResp{Term: n.currentTerm, VoteGranted: false}
	}

	termChanged := false
	if req.Term > n.currentTerm {
		termChanged = true
		n.currentTerm = req.Term
		n.votedFor = ""
		if n.role != Follower {
			n.becomeFollowerRoleLocked()
		}
	}

	var grant bool
	if n.votedFor != "" && n.votedFor == req.CandidateID {
		grant = true
	} else if n.votedFor == "" {
		last := n.log.Last()
		upToDate := last.Term < req.LastLogTerm ||
			(last.Term == req.LastLogTerm && last.Index <= req.LastLogIndex)
		grant = upToDate
	}

	if grant {
		n.votedFor = req.CandidateID
	}

	if grant || termChanged {
		if err := n.persistTermLocked(); err != nil {
			log.Error().Err(err).Msg("raftnode: failed to persist term/vote")
			return raftbus.RequestVoteResp{Term: n.currentTerm, VoteGranted: false}
		}
	}

	if grant {
		n.ticker.Reset(false)
	}

	log.Info().
		Str("candidate", req.CandidateID).
		Uint64("term", uint64(req.Term)).
		Bool("granted", grant).
		Msg("raftnode: vote request")

	return raftbus.RequestVoteResp{Term: n.currentTerm, VoteGranted: grant}
}

// AppendEntries implements spec.md §4.F append_entries.
func (n *Node) AppendEntries(req raftbus.AppendEntriesReq) (raftbus.AppendEntriesResp, error) {
	n.Lock()
	defer n.Unlock()

	if req.Term < n.currentTerm {
		return raftbus.AppendEntriesResp{Term: n.currentTerm, Success: false}, nil
	}

	if req.Term > n.currentTerm {
		n.currentTerm = req.Term
		n.votedFor = ""
		if err := n.persistTermLocked(); err != nil {
			return raftbus.AppendEntriesResp{}, err
		}
	}

	n.leaderID = req.LeaderID
	if n.role != Follower {
		n.becomeFollowerRoleLocked()
	}
	n.ticker.Reset(false)

	logReq := raftlog.AppendRequest{
		Term:        req.Term,
		PrevIndex:   req.PrevLogIndex,
		PrevTerm:    req.PrevLogTerm,
		Entries:     req.Entries,
		CommitIndex: req.CommitIndex,
	}
	if err := n.log.Append(logReq, n.sm.CommitIndex()); err != nil {
		if errors.Is(err, raft.ErrTermMismatch) || errors.Is(err, raft.ErrInvalidIndex) {
			return raftbus.AppendEntriesResp{Term: n.currentTerm, Success: false}, nil
		}
		return raftbus.AppendEntriesResp{}, err
	}

	if req.CommitIndex > n.sm.CommitIndex() {
		target := req.CommitIndex
		if last := n.log.Last(); target > last.Index {
			target = last.Index
		}
		if err := n.applyCommittedLocked(target); err != nil {
			return raftbus.AppendEntriesResp{}, err
		}
	}

	return raftbus.AppendEntriesResp{Term: n.currentTerm, Success: true}, nil
}

// ClientRequestResult answers a client submission.
type ClientRequestResult struct {
	LeaderID   string
	EntryTerm  raft.Term
	EntryIndex raft.Index
	Success    bool
}

// ClientRequest implements spec.md §4.F client_request: append locally,
// replicate, and block until a majority of voting peers have stored
// the entry and the state machine has executed it (closing the race
// hazard spec.md §9 flags — "client_request executes on the state
// machine without waiting for majority replication" — by gating return
// on applyCommittedLocked having run for this index).
func (n *Node) ClientRequest(command raft.Command) (ClientRequestResult, error) {
	n.Lock()
	if n.role != Leader {
		hint := n.leaderID
		n.Unlock()
		return ClientRequestResult{LeaderID: hint}, raft.ErrNotLeader
	}

	term := n.currentTerm
	last := n.log.Last()
	idx := last.Index + 1
	entry := raft.Entry{Index: idx, Term: term, Command: command}

	logReq := raftlog.AppendRequest{
		Term:      term,
		PrevIndex: last.Index,
		PrevTerm:  last.Term,
		Entries:   []raft.Entry{entry},
	}
	if err := n.log.Append(logReq, n.sm.CommitIndex()); err != nil {
		n.Unlock()
		return ClientRequestResult{}, err
	}

	waitCh := make(chan struct{})
	n.waiters[idx] = waitCh
	n.broadcastReplicateLocked()
	// Covers the single-voter cluster case (and any case where this
	// node alone already satisfies majority): replication responses are
	// the only other trigger for tryAdvanceCommitLocked, and a
	// single-node cluster has none.
	n.tryAdvanceCommitLocked()
	n.Unlock()

	<-waitCh

	n.Lock()
	defer n.Unlock()
	if n.sm.CommitIndex() >= idx {
		return ClientRequestResult{
			LeaderID:   n.id,
			EntryTerm:  term,
			EntryIndex: idx,
			Success:    true,
		}, nil
	}
	return ClientRequestResult{LeaderID: n.leaderID}, raft.ErrNotLeader
}

// Tick advances the election/heartbeat countdown by one unit. Callers
// drive this periodically (e.g. from a time.Ticker loop); raftnode
// itself owns no goroutines, matching the teacher's split between Node
// (pure state) and an external timer driver.
func (n *Node) Tick() {
	n.Lock()
	expired := n.ticker.Tick() == raftticker.Expired
	role := n.role
	n.Unlock()

	if !expired {
		return
	}

	if role == Leader {
		n.Lock()
		n.ticker.Reset(true)
		n.broadcastReplicateLocked()
		n.Unlock()
		return
	}

	n.startElection()
}
