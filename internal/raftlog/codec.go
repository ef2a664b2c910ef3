package raftlog

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"

	"github.com/quorumkit/raftcore/internal/raft"
)

// encodeIndex/decodeIndex encode the reserved index-valued properties
// (last_log_index, cluster_config_index) as fixed-width big-endian,
// matching raftkey's log-key encoding so both keyspaces sort the same
// way under a naive byte comparison.
func encodeIndex(idx raft.Index) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(idx))
	return out
}

func decodeIndex(raw []byte) raft.Index {
	if len(raw) != 8 {
		return 0
	}
	return raft.Index(binary.BigEndian.Uint64(raw))
}

// encodeEntry/decodeEntry serialize a log entry for storage.
//
// The teacher serializes log records with protoc-generated protobuf
// types (github.com/golang/protobuf); those generated types are not
// part of the retrieved teacher slice (only their consumers were), and
// hand-authoring protoc-gen-go v2 output without running protoc would
// be fabricated generated code. gob preserves the teacher's actual
// pattern — marshal the whole record, persist it atomically — without
// depending on code this environment cannot generate (see DESIGN.md).
func encodeEntry(e raft.Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(raw []byte) (raft.Entry, error) {
	var e raft.Entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		return raft.Entry{}, err
	}
	return e, nil
}
