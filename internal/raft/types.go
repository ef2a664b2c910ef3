// Package raft holds the data types shared by every raftcore component:
// log entries, commands, cluster configuration, and the sentinel error
// kinds. The message-bus envelope shapes live in raftbus. Nothing here
// does I/O.
package raft

import "fmt"

// Index is a log position. Dense from 0; index 0 is always the
// bootstrap sentinel entry.
type Index uint64

// Term is a monotonic election epoch.
type Term uint64

// CommandKind tags the Command union.
type CommandKind int

const (
	// CommandUser carries an opaque payload forwarded to the state
	// machine untouched.
	CommandUser CommandKind = iota
	// CommandConfigure installs a new ClusterConfig.
	CommandConfigure
)

func (k CommandKind) String() string {
	switch k {
	case CommandUser:
		return "User"
	case CommandConfigure:
		return "Configure"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is the tagged union stored in a log Entry. Only the fields
// relevant to Kind are meaningful.
type Command struct {
	Kind CommandKind

	// Payload is the opaque User command body.
	Payload []byte

	// Cluster is the membership installed by a Configure command.
	Cluster ClusterConfig

	// PrevConfigIndex points at the previous Configure entry, forming
	// a backward-walkable chain. Zero at index 0, where there is no
	// previous entry, and also on the first Configure after the
	// bootstrap entry, which points back to index 0.
	PrevConfigIndex Index
}

// Entry is one record in the replicated log.
type Entry struct {
	Index   Index
	Term    Term
	Command Command
}

// Peer is one member of a ClusterConfig.
type Peer struct {
	ID     string
	Addr   string
	Voting bool
}

// ClusterConfig is the set of peers known at a point in the log.
type ClusterConfig struct {
	Peers map[string]Peer

	// ClogIndex is the index of the entry that installed this config.
	ClogIndex Index
}

// Clone returns a deep copy, since ClusterConfig values are stored by
// reference inside log entries and must not alias mutation across
// truncation/walkback.
func (c ClusterConfig) Clone() ClusterConfig {
	peers := make(map[string]Peer, len(c.Peers))
	for id, p := range c.Peers {
		peers[id] = p
	}
	return ClusterConfig{Peers: peers, ClogIndex: c.ClogIndex}
}

// VotingIDs returns the set of peer IDs whose votes and acks count
// toward majority.
func (c ClusterConfig) VotingIDs() map[string]bool {
	ids := make(map[string]bool, len(c.Peers))
	for id, p := range c.Peers {
		if p.Voting {
			ids[id] = true
		}
	}
	return ids
}

// Majority returns the number of voting peers required for a quorum.
func (c ClusterConfig) Majority() int {
	return len(c.VotingIDs())/2 + 1
}

// BootstrapEntry constructs the sentinel index-0 entry that installs
// the initial cluster membership.
func BootstrapEntry(cluster ClusterConfig) Entry {
	cluster = cluster.Clone()
	cluster.ClogIndex = 0
	return Entry{
		Index: 0,
		Term:  0,
		Command: Command{
			Kind:            CommandConfigure,
			Cluster:         cluster,
			PrevConfigIndex: 0,
		},
	}
}
