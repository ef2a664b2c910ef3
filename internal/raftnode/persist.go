package raftnode

import (
	"encoding/binary"

	"github.com/quorumkit/raftcore/internal/raft"
)

func encodeTerm(t raft.Term) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(t))
	return out
}

func decodeTerm(raw []byte) raft.Term {
	if len(raw) != 8 {
		return 0
	}
	return raft.Term(binary.BigEndian.Uint64(raw))
}
