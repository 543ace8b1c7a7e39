// Package docstore implements the driver contract on top of a minimal
// ordered key-value backend.
//
// SQLite and bbolt both plug in through Backend. Documents are stored as
// BSON blobs keyed by their rendered _id, in insertion order; filters,
// updates, projections and sorts are evaluated in memory by package match.
package docstore

import (
	"context"
	"errors"
)

// ErrDuplicateKey is returned by Txn.Insert when the key already exists.
var ErrDuplicateKey = errors.New("duplicate key")

// ErrNotFound is returned by Txn.Replace and Txn.Delete for unknown keys.
var ErrNotFound = errors.New("document not found")

// Backend is one open database file.
type Backend interface {
	// Begin starts a transaction scoped to one collection. Read-only
	// transactions must be released with Rollback.
	Begin(ctx context.Context, collection string, writable bool) (Txn, error)
	Close() error
}

// Txn is a single-collection transaction.
type Txn interface {
	// Scan visits every stored document in insertion order until fn
	// returns an error.
	Scan(fn func(key string, raw []byte) error) error
	Insert(key string, raw []byte) error
	// Replace overwrites the body of an existing document, keeping its
	// position in insertion order.
	Replace(key string, raw []byte) error
	Delete(key string) error
	Commit() error
	Rollback() error
}
