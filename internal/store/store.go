// Package store persists the badge documents (conf.json, wifi.json) in a
// bbolt database standing in for the device flash file system.
package store

import (
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

const bucketFiles = "files"

// Store is a persistent set of named documents. It is safe for concurrent
// use.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open store")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketFiles))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize store")
	}

	return &Store{db: db}, nil
}

// Read returns the document called name.
func (s *Store) Read(name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketFiles)).Get([]byte(name))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return data, nil
}

// Write replaces the document called name.
func (s *Store) Write(name string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketFiles)).Put([]byte(name), data)
	})
	return errors.Wrapf(err, "failed to write %s", name)
}

// Remove deletes the document called name. Removing a missing document is
// not an error.
func (s *Store) Remove(name string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketFiles)).Delete([]byte(name))
	})
	return errors.Wrapf(err, "failed to remove %s", name)
}

// List returns the names of all documents in key order.
func (s *Store) List() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketFiles)).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, errors.Wrap(err, "failed to list documents")
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}
