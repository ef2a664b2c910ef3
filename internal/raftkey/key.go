// Package raftkey encodes the two raftlog keyspaces — internal
// properties and log entries — into one ordered byte space so that a
// range scan over log keys yields exactly the log, in index order.
package raftkey

import (
	"encoding/binary"

	"github.com/quorumkit/raftcore/internal/raft"
)

const (
	propertyPrefix byte = 0x00
	logPrefix      byte = 0x01
)

// Reserved internal property names (spec.md §6).
const (
	LastLogIndex     = "last_log_index"
	ClusterConfigKey = "cluster_config_index"
	CurrentTerm      = "current_term"
	VotedFor         = "voted_for"
)

// Property encodes an internal-property key. The 0x00 prefix keeps
// every property key strictly below every log key, regardless of the
// property name's bytes.
func Property(name string) []byte {
	out := make([]byte, 1+len(name))
	out[0] = propertyPrefix
	copy(out[1:], name)
	return out
}

// Log encodes a log-entry key. Fixed-width big-endian encoding makes
// byte order and numeric order coincide, so a range scan over
// Log(0)..Log(maxUint64) yields entries in index order.
func Log(index raft.Index) []byte {
	out := make([]byte, 9)
	out[0] = logPrefix
	binary.BigEndian.PutUint64(out[1:], uint64(index))
	return out
}

// LogRangeStart is the first possible log key, usable as a bbolt
// cursor seek target for "scan the whole log".
func LogRangeStart() []byte {
	return Log(0)
}

// IsLogKey reports whether a raw key belongs to the log keyspace, and
// if so decodes its index.
func IsLogKey(key []byte) (raft.Index, bool) {
	if len(key) != 9 || key[0] != logPrefix {
		return 0, false
	}
	return raft.Index(binary.BigEndian.Uint64(key[1:])), true
}
