package raftnode

import (
	"context"
	"fmt"

	"github.com/quorumkit/raftcore/internal/raftbus"
)

// Handler adapts Node's RPC methods to raftbus.Handler, for
// registration with a raftbus.Transport (e.g. LossyTransport in
// tests, or a real network transport in production).
func (n *Node) Handler(_ context.Context, envelope any) (any, error) {
	switch req := envelope.(type) {
	case raftbus.RequestVoteReq:
		return n.RequestVote(req), nil
	case raftbus.AppendEntriesReq:
		return n.AppendEntries(req)
	default:
		return nil, fmt.Errorf("raftnode: unhandled envelope type %T", envelope)
	}
}
