package raftlog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumkit/raftcore/internal/raft"
)

func testCluster() raft.ClusterConfig {
	return raft.ClusterConfig{
		Peers: map[string]raft.Peer{
			"r0": {ID: "r0", Addr: "r0:1", Voting: true},
			"r1": {ID: "r1", Addr: "r1:1", Voting: true},
			"r2": {ID: "r2", Addr: "r2:1", Voting: true},
		},
	}
}

// logFactories returns a fresh Bolt-backed and Mem-backed Log, both
// bootstrapped with the same cluster, so every test below runs against
// both implementations.
func logFactories(t *testing.T) map[string]Log {
	t.Helper()
	cfg := testCluster()

	bolt, err := OpenBoltLog(filepath.Join(t.TempDir(), "log.db"), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	mem, err := OpenMemLog(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	return map[string]Log{"bolt": bolt, "mem": mem}
}

func userEntry(index raft.Index, term raft.Term, payload string) raft.Entry {
	return raft.Entry{Index: index, Term: term, Command: raft.Command{Kind: raft.CommandUser, Payload: []byte(payload)}}
}

func TestBootstrapOpenYieldsSentinel(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			last := l.Last()
			assert.EqualValues(t, 0, last.Index)
			assert.EqualValues(t, 0, last.Term)
			cfg := l.ClusterConfig()
			assert.Len(t, cfg.Peers, 3)
		})
	}
}

func TestFreshWithoutBootstrapAwaitsSnapshot(t *testing.T) {
	mem, err := OpenMemLog(nil)
	require.NoError(t, err)
	assert.True(t, mem.AwaitingSnapshot())

	err = mem.Append(AppendRequest{Term: 1, PrevIndex: 0, PrevTerm: 0}, 0)
	assert.ErrorIs(t, err, raft.ErrNotReady)
}

func TestAppendSimpleChain(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			req := AppendRequest{
				Term:      1,
				PrevIndex: 0,
				PrevTerm:  0,
				Entries:   []raft.Entry{userEntry(1, 1, "a"), userEntry(2, 1, "b")},
			}
			require.NoError(t, l.Append(req, 0))
			assert.EqualValues(t, 2, l.Last().Index)

			seq, err := l.Slice(0, nil)
			require.NoError(t, err)
			var got []raft.Entry
			for {
				e, ok, err := seq.Next()
				require.NoError(t, err)
				if !ok {
					break
				}
				got = append(got, e)
			}
			require.Len(t, got, 3)
			assert.EqualValues(t, 0, got[0].Index)
			assert.EqualValues(t, 1, got[1].Index)
			assert.EqualValues(t, 2, got[2].Index)
		})
	}
}

func TestAppendRejectsBadPrevIndex(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			err := l.Append(AppendRequest{Term: 1, PrevIndex: 5, PrevTerm: 0}, 0)
			assert.ErrorIs(t, err, raft.ErrTermMismatch)
		})
	}
}

func TestAppendRejectsPrevTermMismatch(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			err := l.Append(AppendRequest{Term: 1, PrevIndex: 0, PrevTerm: 99}, 0)
			assert.ErrorIs(t, err, raft.ErrTermMismatch)
		})
	}
}

func TestAppendIdempotentOnAlreadyPresentEntries(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			req := AppendRequest{Term: 1, PrevIndex: 0, PrevTerm: 0, Entries: []raft.Entry{userEntry(1, 1, "a")}}
			require.NoError(t, l.Append(req, 0))
			// Same entries again: no-op (already present, same term).
			require.NoError(t, l.Append(req, 0))
			assert.EqualValues(t, 1, l.Last().Index)
		})
	}
}

// Scenario 4 (spec.md §8): truncation safety.
func TestTruncationReplacesConflictingTail(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			require.NoError(t, l.Append(AppendRequest{
				Term: 1, PrevIndex: 0, PrevTerm: 0,
				Entries: []raft.Entry{userEntry(1, 1, "x"), userEntry(2, 1, "y")},
			}, 0))

			err := l.Append(AppendRequest{
				Term: 2, PrevIndex: 0, PrevTerm: 0,
				Entries: []raft.Entry{userEntry(1, 2, "p"), userEntry(2, 2, "q")},
			}, 0)
			require.NoError(t, err)

			seq, err := l.Slice(1, nil)
			require.NoError(t, err)
			e1, _, _ := seq.Next()
			e2, _, _ := seq.Next()
			assert.EqualValues(t, 2, e1.Term)
			assert.Equal(t, "p", string(e1.Command.Payload))
			assert.EqualValues(t, 2, e2.Term)
			assert.Equal(t, "q", string(e2.Command.Payload))
		})
	}
}

func TestTruncationBelowCommitIsRejected(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			require.NoError(t, l.Append(AppendRequest{
				Term: 1, PrevIndex: 0, PrevTerm: 0,
				Entries: []raft.Entry{userEntry(1, 1, "x"), userEntry(2, 1, "y")},
			}, 0))

			// state machine has committed through index 1: truncating
			// at index 1 must fail.
			err := l.Append(AppendRequest{
				Term: 2, PrevIndex: 0, PrevTerm: 0,
				Entries: []raft.Entry{userEntry(1, 2, "p")},
			}, 1)
			assert.ErrorIs(t, err, raft.ErrInternal)

			// log must be unchanged.
			last := l.Last()
			assert.EqualValues(t, 2, last.Index)
			assert.EqualValues(t, 1, last.Term)
		})
	}
}

func TestAppendRejectsNonContiguousIndex(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			err := l.Append(AppendRequest{
				Term: 1, PrevIndex: 0, PrevTerm: 0,
				Entries: []raft.Entry{userEntry(2, 1, "skip")},
			}, 0)
			assert.ErrorIs(t, err, raft.ErrInvalidIndex)
		})
	}
}

func TestAppendRejectsEntryTermAboveRequestTerm(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			err := l.Append(AppendRequest{
				Term: 1, PrevIndex: 0, PrevTerm: 0,
				Entries: []raft.Entry{userEntry(1, 5, "bad")},
			}, 0)
			assert.ErrorIs(t, err, raft.ErrInvalidTerm)
		})
	}
}

func TestAppendRejectsCommitIndexAheadOfTail(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			err := l.Append(AppendRequest{
				Term: 1, PrevIndex: 0, PrevTerm: 0,
				Entries:     []raft.Entry{userEntry(1, 1, "a")},
				CommitIndex: 5,
			}, 0)
			assert.ErrorIs(t, err, raft.ErrInvalidIndex)
		})
	}
}

func TestSliceClampsToLastPlusOne(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			require.NoError(t, l.Append(AppendRequest{
				Term: 1, PrevIndex: 0, PrevTerm: 0,
				Entries: []raft.Entry{userEntry(1, 1, "a"), userEntry(2, 1, "b")},
			}, 0))

			seq, err := l.Slice(1, nil)
			require.NoError(t, err)
			var count int
			for {
				_, ok, err := seq.Next()
				require.NoError(t, err)
				if !ok {
					break
				}
				count++
			}
			assert.Equal(t, 2, count)
		})
	}
}

func TestSliceEndLessThanStartIsEmpty(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			end := raft.Index(0)
			seq, err := l.Slice(3, &end)
			require.NoError(t, err)
			_, ok, err := seq.Next()
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestConfigureEntryAdvancesClusterConfigChain(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			newCfg := testCluster()
			p := newCfg.Peers["r2"]
			p.Voting = false
			newCfg.Peers["r2"] = p
			newCfg.ClogIndex = 1

			require.NoError(t, l.Append(AppendRequest{
				Term: 1, PrevIndex: 0, PrevTerm: 0,
				Entries: []raft.Entry{{
					Index: 1, Term: 1,
					Command: raft.Command{Kind: raft.CommandConfigure, Cluster: newCfg},
				}},
			}, 0))

			cfg := l.ClusterConfig()
			assert.False(t, cfg.Peers["r2"].Voting)

			seq, err := l.Slice(1, nil)
			require.NoError(t, err)
			e, ok, err := seq.Next()
			require.NoError(t, err)
			require.True(t, ok)
			assert.EqualValues(t, 0, e.Command.PrevConfigIndex)
		})
	}
}

// Scenario 5 (spec.md §8): config-chain walkback across multiple
// Configure entries, with a truncation that must roll the cached
// cluster_config_index back past an intermediate config.
func TestConfigChainWalkback(t *testing.T) {
	for name, l := range logFactories(t) {
		l := l
		t.Run(name, func(t *testing.T) {
			cfgAt5 := testCluster()
			cfgAt5.ClogIndex = 5
			cfgAt9 := testCluster()
			cfgAt9.ClogIndex = 9

			entries := []raft.Entry{
				userEntry(1, 1, "a"),
				userEntry(2, 1, "b"),
				userEntry(3, 1, "c"),
				userEntry(4, 1, "d"),
				{Index: 5, Term: 1, Command: raft.Command{Kind: raft.CommandConfigure, Cluster: cfgAt5}},
				userEntry(6, 1, "e"),
				userEntry(7, 1, "f"),
				userEntry(8, 1, "g"),
				{Index: 9, Term: 1, Command: raft.Command{Kind: raft.CommandConfigure, Cluster: cfgAt9}},
			}
			require.NoError(t, l.Append(AppendRequest{Term: 1, PrevIndex: 0, PrevTerm: 0, Entries: entries}, 0))

			// Truncate at index 7 with a conflicting term, valid under
			// commit bound (commit index is 0 here).
			err := l.Append(AppendRequest{
				Term: 2, PrevIndex: 6, PrevTerm: 1,
				Entries: []raft.Entry{userEntry(7, 2, "f2")},
			}, 0)
			require.NoError(t, err)

			// cluster_config_index must have walked 9 -> 5, landing on 5.
			cfg := l.ClusterConfig()
			assert.EqualValues(t, 5, cfg.ClogIndex)
		})
	}
}

func TestRecoveryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recover.db")
	cfg := testCluster()

	l, err := OpenBoltLog(path, &cfg)
	require.NoError(t, err)

	var entries []raft.Entry
	for i := raft.Index(1); i <= 10; i++ {
		entries = append(entries, userEntry(i, 1, "v"))
	}
	require.NoError(t, l.Append(AppendRequest{Term: 1, PrevIndex: 0, PrevTerm: 0, Entries: entries}, 0))
	require.NoError(t, l.Close())

	reopened, err := OpenBoltLog(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.EqualValues(t, 10, reopened.Last().Index)
	seq, err := reopened.Slice(0, nil)
	require.NoError(t, err)
	var count int
	for {
		_, ok, err := seq.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 11, count) // bootstrap + 10
}

func TestClusterConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.db")
	cfg := testCluster()

	l, err := OpenBoltLog(path, &cfg)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened, err := OpenBoltLog(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.EqualValues(t, 0, reopened.Last().Index)
	assert.Len(t, reopened.ClusterConfig().Peers, 3)
}
