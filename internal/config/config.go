// Package config loads the flag-populated NodeConfig used by
// cmd/raftserved, the same shape the teacher's node.NodeConfig takes
// (id, client address, data directory, peer list) generalized with the
// tick bounds raftnode.Config additionally requires.
package config

import (
	"flag"
	"path/filepath"
)

// NodeConfig holds everything needed to stand up one raftcore node.
type NodeConfig struct {
	ID         string
	ClientAddr string
	DataDir    string
	PeerAddrs  []string

	TickMin int
	TickMax int
}

// LogPath/StorePath locate this node's two on-disk files within
// DataDir, mirroring the teacher's NewNodeConfig (TermFile/LogFile
// derived from DataDir via filepath.Join).
func (c NodeConfig) LogPath() string   { return filepath.Join(c.DataDir, "raftlog.db") }
func (c NodeConfig) StorePath() string { return filepath.Join(c.DataDir, "raftstore.db") }

type peerList []string

func (p *peerList) String() string { return "" }
func (p *peerList) Set(value string) error {
	*p = append(*p, value)
	return nil
}

// Parse builds a NodeConfig from command-line flags, the same
// flag-struct idiom the teacher uses in cmd/leifdb (no config library
// in the teacher's go.mod, and none of the pack's config libraries are
// exercised by the teacher's own config loading either — see
// DESIGN.md).
func Parse(args []string) (NodeConfig, error) {
	fs := flag.NewFlagSet("raftserved", flag.ContinueOnError)

	id := fs.String("id", "", "this node's identifier")
	clientAddr := fs.String("client-addr", ":8080", "address to serve the client HTTP API on")
	dataDir := fs.String("data-dir", "./data", "directory for durable state")
	tickMin := fs.Int("tick-min", 10, "minimum election-timeout ticks")
	tickMax := fs.Int("tick-max", 20, "maximum election-timeout ticks")
	var peers peerList
	fs.Var(&peers, "peer", "peer address (repeatable)")

	if err := fs.Parse(args); err != nil {
		return NodeConfig{}, err
	}

	return NodeConfig{
		ID:         *id,
		ClientAddr: *clientAddr,
		DataDir:    *dataDir,
		PeerAddrs:  peers,
		TickMin:    *tickMin,
		TickMax:    *tickMax,
	}, nil
}
