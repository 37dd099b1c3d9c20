package cache

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore is the explicit-open/commit cache backend Design Notes §9's
// redesign flag asks for: one Badger database holding every device's
// Snapshot, keyed by Key(deviceDescription), with Invalidate implemented
// as a delete transaction rather than file removal.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if absent) a Badger database at dir.
// The caller owns the returned store's lifetime and must call Close.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying Badger database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// Load opens a read transaction, looks up key, and decodes its value.
func (s *BadgerStore) Load(key string) (Snapshot, bool, error) {
	var snap Snapshot
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(Key(key)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := unmarshal(val)
			if err != nil {
				return err
			}
			snap = decoded
			found = true
			return nil
		})
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, found, nil
}

// Save opens a write transaction and commits snap under key.
func (s *BadgerStore) Save(key string, snap Snapshot) error {
	data, err := marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(Key(key)), data)
	})
}

// Invalidate deletes key's entry via an explicit commit, per the redesign
// flag's "invalidated by mismatched device description or firmware
// version" intent — callers decide when a mismatch warrants this.
func (s *BadgerStore) Invalidate(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(Key(key)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
