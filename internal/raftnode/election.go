package raftnode

import (
	"github.com/rs/zerolog/log"

	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftbus"
)

// startElection implements the Follower/Candidate "ticker expires"
// transition from spec.md §4.F: become Candidate, vote for self, and
// request votes from every other peer in the current cluster config.
// Grounded on the teacher's DoElection, generalized from a synchronous
// WaitGroup-joined gRPC fan-out to raftbus's async Send/callback model.
func (n *Node) startElection() {
	n.Lock()
	n.currentTerm++
	n.role = Candidate
	n.votedFor = n.id
	n.leaderID = ""
	n.bus.CancelAll()
	if err := n.persistTermLocked(); err != nil {
		log.Error().Err(err).Msg("raftnode: failed to persist term on election start")
	}
	n.ticker.Reset(false)

	electionTerm := n.currentTerm
	last := n.log.Last()
	cluster := n.log.ClusterConfig()
	votingIDs := cluster.VotingIDs()

	votes := map[string]bool{}
	if votingIDs[n.id] {
		votes[n.id] = true
	}

	log.Info().
		Uint64("term", uint64(electionTerm)).
		Int("clusterSize", len(cluster.Peers)).
		Int("needed", cluster.Majority()).
		Msg("raftnode: becoming candidate")

	if hasMajority(votes, votingIDs, cluster.Majority()) {
		n.becomeLeaderLocked()
		n.Unlock()
		return
	}
	n.Unlock()

	for id, peer := range cluster.Peers {
		if id == n.id {
			continue
		}
		id, addr := id, peer.Addr
		req := raftbus.RequestVoteReq{
			Term:         electionTerm,
			CandidateID:  n.id,
			LastLogIndex: last.Index,
			LastLogTerm:  last.Term,
		}
		n.bus.Send(addr, req, func(resp any, err error) {
			n.Lock()
			defer n.Unlock()
			if err != nil {
				return
			}
			if n.role != Candidate || n.currentTerm != electionTerm {
				return // stale response from a completed or superseded election
			}
			reply, ok := resp.(raftbus.RequestVoteResp)
			if !ok {
				return
			}
			if reply.Term > n.currentTerm {
				n.stepDownLocked(reply.Term)
				return
			}
			if !reply.VoteGranted {
				return
			}
			votes[id] = true
			if hasMajority(votes, votingIDs, cluster.Majority()) {
				n.becomeLeaderLocked()
			}
		})
	}
}

func hasMajority(votes map[string]bool, votingIDs map[string]bool, majority int) bool {
	count := 0
	for id := range votingIDs {
		if votes[id] {
			count++
		}
	}
	return count >= majority
}

// becomeLeaderLocked implements the Candidate → Leader transition.
func (n *Node) becomeLeaderLocked() {
	n.role = Leader
	n.leaderID = n.id
	n.bus.CancelAll()
	n.ticker.Reset(true)

	last := n.log.Last()
	cluster := n.log.ClusterConfig()
	n.peerIndexes = make(map[string]raft.Index, len(cluster.Peers))
	for id := range cluster.Peers {
		if id == n.id {
			continue
		}
		n.peerIndexes[id] = last.Index + 1
	}

	log.Info().Uint64("term", uint64(n.currentTerm)).Msg("raftnode: election succeeded, became leader")
	n.broadcastReplicateLocked()
}

// becomeFollowerRoleLocked demotes the node to Follower without
// touching term/vote (used when an RPC at the current term reveals a
// Leader or Candidate is behind the times, e.g. an AppendEntries from
// the real leader arrives while this node is mid-election).
func (n *Node) becomeFollowerRoleLocked() {
	prevRole := n.role
	n.role = Follower
	n.bus.CancelAll()
	if prevRole == Leader {
		n.failAllWaitersLocked()
	}
}

// stepDownLocked implements the "any role observes term > currentTerm"
// transition from spec.md §4.F: update term, clear vote and leader
// hint, become Follower.
func (n *Node) stepDownLocked(newTerm raft.Term) {
	prevRole := n.role
	n.currentTerm = newTerm
	n.votedFor = ""
	n.role = Follower
	n.leaderID = ""
	n.bus.CancelAll()
	n.ticker.Reset(false)
	if err := n.persistTermLocked(); err != nil {
		log.Error().Err(err).Msg("raftnode: failed to persist term on step-down")
	}
	if prevRole == Leader {
		n.failAllWaitersLocked()
	}
}
