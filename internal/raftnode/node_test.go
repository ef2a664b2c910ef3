package raftnode

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftbus"
	"github.com/quorumkit/raftcore/internal/raftlog"
	"github.com/quorumkit/raftcore/internal/raftstore"
	"github.com/quorumkit/raftcore/internal/statemachine"
)

type cluster struct {
	nodes     []*Node
	sms       []*statemachine.MemStateMachine
	transport *raftbus.LossyTransport
}

func newTestCluster(t *testing.T, n int) *cluster {
	t.Helper()

	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("r%d", i)
	}
	cfg := raft.ClusterConfig{Peers: make(map[string]raft.Peer, n)}
	for _, id := range ids {
		cfg.Peers[id] = raft.Peer{ID: id, Addr: id, Voting: true}
	}

	transport := raftbus.NewLossyTransport(0, rand.New(rand.NewSource(7)))
	c := &cluster{transport: transport}

	for _, id := range ids {
		memLog, err := raftlog.OpenMemLog(&cfg)
		require.NoError(t, err)
		store := raftstore.NewMemStore()
		sm := statemachine.NewMemStateMachine()
		bus := raftbus.New(transport)

		node, err := New(Config{
			ID: id, Store: store, Log: memLog, Bus: bus, SM: sm,
			TickMin: 3, TickMax: 6,
		})
		require.NoError(t, err)
		transport.Register(id, node.Handler)

		c.nodes = append(c.nodes, node)
		c.sms = append(c.sms, sm)
	}
	return c
}

func (c *cluster) tickAll() {
	for _, n := range c.nodes {
		n.Tick()
	}
}

func (c *cluster) leader() *Node {
	for _, n := range c.nodes {
		if n.Role() == Leader {
			return n
		}
	}
	return nil
}

func (c *cluster) electLeader(t *testing.T) *Node {
	t.Helper()
	var found *Node
	require.Eventually(t, func() bool {
		c.tickAll()
		found = c.leader()
		return found != nil
	}, 2*time.Second, time.Millisecond)
	return found
}

// Scenario 1/2 (spec.md §8): 3-node election, client submission, and
// replication to every follower's state machine.
func TestElectionAndReplication(t *testing.T) {
	c := newTestCluster(t, 3)
	leader := c.electLeader(t)
	require.NotNil(t, leader)

	result, err := leader.ClientRequest(raft.Command{Kind: raft.CommandUser, Payload: []byte("foo")})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, leader.ID(), result.LeaderID)
	assert.EqualValues(t, 1, result.EntryIndex)

	require.Eventually(t, func() bool {
		c.tickAll()
		for _, sm := range c.sms {
			if sm.Data != "foo" {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond)
}

// Only one node should ever believe itself leader in a given term
// (spec.md §8 invariant: single-leader safety).
func TestSingleLeaderPerTerm(t *testing.T) {
	c := newTestCluster(t, 5)
	leader := c.electLeader(t)
	require.NotNil(t, leader)

	term := leader.Term()
	leaders := 0
	for _, n := range c.nodes {
		if n.Role() == Leader {
			assert.Equal(t, term, n.Term())
			leaders++
		}
	}
	assert.Equal(t, 1, leaders)
}

// Scenario (isolated leader): an isolated leader has no way to learn
// it has been superseded, so it remains Leader locally, while the
// remaining majority partition elects a new one.
func TestIsolatedLeaderRemainsLeaderLocally(t *testing.T) {
	c := newTestCluster(t, 5)
	oldLeader := c.electLeader(t)
	require.NotNil(t, oldLeader)

	c.transport.Unregister(oldLeader.ID())
	// Unregister only stops messages addressed to the old leader; give it
	// a bus with no reachable peers so its own heartbeats are cut too.
	oldLeader.Lock()
	oldLeader.bus = raftbus.New(raftbus.NewLossyTransport(0, nil))
	oldLeader.Unlock()

	rest := make([]*Node, 0, 4)
	for _, n := range c.nodes {
		if n.ID() != oldLeader.ID() {
			rest = append(rest, n)
		}
	}

	require.Eventually(t, func() bool {
		c.tickAll()
		for _, n := range rest {
			if n.Role() == Leader {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, Leader, oldLeader.Role())
}

// Scenario 3 (spec.md §8): demoting a peer still replicates to it.
func TestDemotePeerStillReplicates(t *testing.T) {
	c := newTestCluster(t, 3)
	leader := c.electLeader(t)
	require.NotNil(t, leader)

	current := leader.log.ClusterConfig()
	demoted := current.Clone()
	p := demoted.Peers["r2"]
	p.Voting = false
	demoted.Peers["r2"] = p

	cfgResult, err := leader.ClientRequest(raft.Command{Kind: raft.CommandConfigure, Cluster: demoted})
	require.NoError(t, err)
	assert.True(t, cfgResult.Success)

	require.Eventually(t, func() bool {
		c.tickAll()
		return !leader.log.ClusterConfig().VotingIDs()["r2"]
	}, 2*time.Second, time.Millisecond)

	result, err := leader.ClientRequest(raft.Command{Kind: raft.CommandUser, Payload: []byte("foo")})
	require.NoError(t, err)
	assert.True(t, result.Success)

	var r2SM *statemachine.MemStateMachine
	for i, n := range c.nodes {
		if n.ID() == "r2" {
			r2SM = c.sms[i]
		}
	}
	require.NotNil(t, r2SM)

	require.Eventually(t, func() bool {
		c.tickAll()
		return r2SM.Data == "foo"
	}, 2*time.Second, time.Millisecond)
}

// A client submission to a non-leader fails immediately with a
// best-known leader hint, per spec.md §4.F client_request step 1.
func TestClientRequestRejectedByFollower(t *testing.T) {
	c := newTestCluster(t, 3)
	leader := c.electLeader(t)
	require.NotNil(t, leader)

	var follower *Node
	for _, n := range c.nodes {
		if n.ID() != leader.ID() {
			follower = n
			break
		}
	}
	require.NotNil(t, follower)

	_, err := follower.ClientRequest(raft.Command{Kind: raft.CommandUser, Payload: []byte("x")})
	assert.ErrorIs(t, err, raft.ErrNotLeader)
}
