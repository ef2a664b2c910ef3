package raftlog

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/quorumkit/raftcore/internal/raft"
	"github.com/quorumkit/raftcore/internal/raftkey"
)

var logBucket = []byte("log")

// boltBackend stores both the log keyspace and the two reserved
// properties in one bucket, keyed through raftkey so a bucket-wide
// range scan bounded to [Log(0), Log(max)) yields exactly the log, per
// spec.md §4.A.
type boltBackend struct {
	db *bolt.DB
}

func openBoltBackend(path string) (*boltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(logBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltBackend{db: db}, nil
}

func (b *boltBackend) getEntry(index raft.Index) (raft.Entry, bool, error) {
	var out raft.Entry
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(logBucket).Get(raftkey.Log(index))
		if raw == nil {
			return nil
		}
		e, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		out, found = e, true
		return nil
	})
	if err != nil {
		return raft.Entry{}, false, err
	}
	return out, found, nil
}

func (b *boltBackend) getProperty(name string) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(logBucket).Get(raftkey.Property(name))
		if raw != nil {
			out = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

func (b *boltBackend) putEntryBatch(entry raft.Entry, lastIndex raft.Index, clusterConfigIndex *raft.Index) error {
	encoded, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	// bolt.Update fsyncs on commit, giving the "each batch is fsynced
	// before the next begins" ordering guarantee from spec.md §4.D.
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(logBucket)
		if err := bucket.Put(raftkey.Log(entry.Index), encoded); err != nil {
			return err
		}
		if err := bucket.Put(raftkey.Property(raftkey.LastLogIndex), encodeIndex(lastIndex)); err != nil {
			return err
		}
		if clusterConfigIndex != nil {
			if err := bucket.Put(raftkey.Property(raftkey.ClusterConfigKey), encodeIndex(*clusterConfigIndex)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltBackend) close() error {
	return b.db.Close()
}

// BoltLog is the durable command log (spec.md §4.D).
type BoltLog struct {
	*core
}

// OpenBoltLog opens (creating if absent) a bbolt-backed command log at
// path. bootstrap is non-nil for mode 1 (fresh with bootstrap config);
// nil means mode 2 (fresh, empty, awaiting a snapshot install) unless
// the file already holds a log, in which case mode 3 (existing)
// applies regardless of bootstrap.
func OpenBoltLog(path string, bootstrap *raft.ClusterConfig) (*BoltLog, error) {
	backend, err := openBoltBackend(path)
	if err != nil {
		return nil, err
	}
	c, err := open(backend, bootstrap)
	if err != nil {
		backend.close()
		return nil, err
	}
	return &BoltLog{core: c}, nil
}
