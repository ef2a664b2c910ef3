package raftstore

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/quorumkit/raftcore/internal/raft"
)

var propertiesBucket = []byte("properties")

// BoltStore is the durable Store implementation, backed by a bbolt
// database. Every Write runs in a single bolt.Update transaction, which
// bbolt fsyncs on commit before returning — giving the "flush before
// signalling completion" contract spec.md §4.C requires without any
// extra bookkeeping, the same shape as the teacher's
// marshal-then-atomically-persist WriteTerm/WriteLogs, now backed by a
// real transactional engine instead of whole-file rewrite.
type BoltStore struct {
	db    *bolt.DB
	ready int32
}

// OpenBoltStore opens (creating if absent) a bbolt-backed properties
// store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("raftstore: failed to open bolt db")
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(propertiesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s := &BoltStore{db: db}
	atomic.StoreInt32(&s.ready, 1)
	return s, nil
}

// Write implements Store.
func (s *BoltStore) Write(patch map[string][]byte) error {
	if !s.Ready() {
		return raft.ErrNotReady
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(propertiesBucket)
		for k, v := range patch {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get implements Store.
func (s *BoltStore) Get(key []byte) ([]byte, bool, error) {
	if !s.Ready() {
		return nil, false, raft.ErrNotReady
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(propertiesBucket).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Delete implements Store.
func (s *BoltStore) Delete(key []byte) error {
	if !s.Ready() {
		return raft.ErrNotReady
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(propertiesBucket).Delete(key)
	})
}

// Ready implements Store.
func (s *BoltStore) Ready() bool {
	return atomic.LoadInt32(&s.ready) == 1
}

// Close implements Store.
func (s *BoltStore) Close() error {
	atomic.StoreInt32(&s.ready, 0)
	return s.db.Close()
}
