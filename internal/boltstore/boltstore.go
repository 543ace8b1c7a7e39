// Package boltstore provides the bbolt document backend.
//
// Each database name maps to one bbolt file and each collection to a
// top-level bucket holding two nested buckets: "docs" maps a big-endian
// sequence number to the BSON body, so cursor order is insertion order,
// and "ids" maps the rendered _id to that sequence number.
package boltstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/docstore"
	"github.com/roach88/magnolia/internal/store"
)

var (
	docsBucket = []byte("docs")
	idsBucket  = []byte("ids")
)

// Options tunes how a database file is opened.
type Options struct {
	// Unsafe skips fsync on commit.
	Unsafe bool
	// Timeout bounds the wait for the file lock. Zero means one second.
	Timeout time.Duration
}

// Store is one open bbolt file.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the bbolt file at path.
func Open(path string, opts Options) (*Store, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt file: %w", err)
	}
	db.NoSync = opts.Unsafe
	return &Store{db: db}, nil
}

// Close closes the file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a bbolt transaction for collection.
func (s *Store) Begin(_ context.Context, collection string, writable bool) (docstore.Txn, error) {
	tx, err := s.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &txn{tx: tx, name: []byte(collection)}, nil
}

type txn struct {
	tx   *bolt.Tx
	name []byte
}

// buckets returns the docs and ids buckets, creating them when create is
// set. Both are nil for a collection that was never written.
func (t *txn) buckets(create bool) (docs, ids *bolt.Bucket, err error) {
	root := t.tx.Bucket(t.name)
	if root == nil {
		if !create {
			return nil, nil, nil
		}
		if root, err = t.tx.CreateBucket(t.name); err != nil {
			return nil, nil, fmt.Errorf("create collection bucket: %w", err)
		}
	}
	if create {
		if docs, err = root.CreateBucketIfNotExists(docsBucket); err != nil {
			return nil, nil, err
		}
		if ids, err = root.CreateBucketIfNotExists(idsBucket); err != nil {
			return nil, nil, err
		}
		return docs, ids, nil
	}
	return root.Bucket(docsBucket), root.Bucket(idsBucket), nil
}

func (t *txn) Scan(fn func(key string, raw []byte) error) error {
	docs, ids, err := t.buckets(false)
	if err != nil || docs == nil {
		return err
	}
	// Invert ids once so each body can be reported with its key.
	keys := make(map[uint64]string)
	err = ids.ForEach(func(k, v []byte) error {
		keys[binary.BigEndian.Uint64(v)] = string(k)
		return nil
	})
	if err != nil {
		return err
	}
	c := docs.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		raw := make([]byte, len(v))
		copy(raw, v)
		if err := fn(keys[binary.BigEndian.Uint64(k)], raw); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) Insert(key string, raw []byte) error {
	docs, ids, err := t.buckets(true)
	if err != nil {
		return err
	}
	if ids.Get([]byte(key)) != nil {
		return docstore.ErrDuplicateKey
	}
	seq, err := docs.NextSequence()
	if err != nil {
		return err
	}
	seqKey := make([]byte, 8)
	binary.BigEndian.PutUint64(seqKey, seq)
	if err := docs.Put(seqKey, raw); err != nil {
		return err
	}
	return ids.Put([]byte(key), seqKey)
}

func (t *txn) Replace(key string, raw []byte) error {
	docs, ids, err := t.buckets(false)
	if err != nil {
		return err
	}
	if ids == nil {
		return docstore.ErrNotFound
	}
	seqKey := ids.Get([]byte(key))
	if seqKey == nil {
		return docstore.ErrNotFound
	}
	return docs.Put(seqKey, raw)
}

func (t *txn) Delete(key string) error {
	docs, ids, err := t.buckets(false)
	if err != nil {
		return err
	}
	if ids == nil {
		return docstore.ErrNotFound
	}
	seqKey := ids.Get([]byte(key))
	if seqKey == nil {
		return docstore.ErrNotFound
	}
	seqKey = append([]byte(nil), seqKey...)
	if err := docs.Delete(seqKey); err != nil {
		return err
	}
	return ids.Delete([]byte(key))
}

func (t *txn) Commit() error {
	return t.tx.Commit()
}

func (t *txn) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, bolt.ErrTxClosed) {
		return nil
	}
	return err
}

// Dialer opens one bbolt file per database under Dir.
type Dialer struct {
	Dir    string
	Logger *slog.Logger
	// Timeout bounds the wait for the file lock.
	Timeout time.Duration
}

// Dial implements driver.Dialer. The target address is ignored.
func (d Dialer) Dial(_ context.Context, target driver.Target) (driver.Conn, error) {
	path, err := store.DatabasePath(d.Dir, target.Database, ".bolt")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s, err := Open(path, Options{Unsafe: !target.WriteConcern.Acknowledged, Timeout: d.Timeout})
	if err != nil {
		return nil, err
	}
	return docstore.NewConn(s, d.Logger), nil
}
