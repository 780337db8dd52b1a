package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSightings = []byte("sightings")

// BoltStore implements Store using BoltDB. Each address gets a nested bucket
// keyed by the bucket's big-endian sequence number.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSightings)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func seqKey(seq uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], seq)
	return k[:]
}

// Append writes all sightings in one transaction, so a batch costs one fsync.
func (s *BoltStore) Append(sightings ...*Sighting) error {
	if len(sightings) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketSightings)
		if root == nil {
			return fmt.Errorf("bucket %q not found", bucketSightings)
		}
		for _, sg := range sightings {
			b, err := root.CreateBucketIfNotExists([]byte(sg.Address))
			if err != nil {
				return fmt.Errorf("address bucket %s: %w", sg.Address, err)
			}
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			data, err := json.Marshal(sg)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) History(addr string, limit int) ([]*Sighting, error) {
	var out []*Sighting
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketSightings)
		if root == nil {
			return fmt.Errorf("bucket %q not found", bucketSightings)
		}
		b := root.Bucket([]byte(addr))
		if b == nil {
			return fmt.Errorf("history %s: %w", addr, ErrNotFound)
		}

		// Walk backwards from the newest entry, then reverse.
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var sg Sighting
			if err := json.Unmarshal(v, &sg); err != nil {
				return err
			}
			out = append(out, &sg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *BoltStore) Addresses() ([]string, error) {
	var addrs []string
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketSightings)
		if root == nil {
			return nil
		}
		return root.ForEachBucket(func(k []byte) error {
			addrs = append(addrs, string(k))
			return nil
		})
	})
	return addrs, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
