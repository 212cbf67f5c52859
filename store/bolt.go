package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore is a Store backed by a single bbolt file, one bucket per
// namespace. It is offered as the reference production adapter for the
// device persistence boundary; the boundary itself stays external.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if necessary) a bbolt database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt database %q: %w", path, err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying file handle.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) GetBytes(namespace, key string) ([]byte, bool, error) {
	var out []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		out = make([]byte, len(v))
		copy(out, v)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("store: get %s/%s: %w", namespace, key, err)
	}
	return out, found, nil
}

func (s *BoltStore) PutBytes(namespace, key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(namespace))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("store: put %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *BoltStore) Remove(namespace, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(namespace))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("store: remove %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *BoltStore) GetUint64(namespace, key string) (uint64, bool, error) {
	b, ok, err := s.GetBytes(namespace, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, ok := decodeUint64(b)
	if !ok {
		return 0, false, fmt.Errorf("store: %s/%s is not a valid uint64", namespace, key)
	}
	return v, true, nil
}

func (s *BoltStore) PutUint64(namespace, key string, value uint64) error {
	return s.PutBytes(namespace, key, encodeUint64(value))
}

func (s *BoltStore) GetUint32(namespace, key string) (uint32, bool, error) {
	b, ok, err := s.GetBytes(namespace, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	v, ok := decodeUint32(b)
	if !ok {
		return 0, false, fmt.Errorf("store: %s/%s is not a valid uint32", namespace, key)
	}
	return v, true, nil
}

func (s *BoltStore) PutUint32(namespace, key string, value uint32) error {
	return s.PutBytes(namespace, key, encodeUint32(value))
}

var _ Store = (*BoltStore)(nil)
