// Package driver defines the document-store collaborator contract used by
// magnolia.
//
// The core never talks to a database directly. Every compiled operation
// dials one Conn through a Dialer, resolves one Collection, issues exactly
// one call on it and closes the Conn. Backends (MongoDB, SQLite, bbolt)
// implement these interfaces; so can callers that want to plug in their
// own store.
package driver

import "context"

// M is a document, filter, projection or options record.
type M = map[string]any

// SortKey orders results by one field. Order is 1 for ascending and -1
// for descending.
type SortKey struct {
	Key   string `json:"key"`
	Order int    `json:"order"`
}

// Sort is an ordered list of sort keys; earlier keys take precedence.
type Sort []SortKey

// WriteConcern is the acknowledgement level requested when dialling.
type WriteConcern struct {
	// Acknowledged is true for "safe" writes (w:1) and false for
	// fire-and-forget writes (w:0).
	Acknowledged bool `json:"acknowledged"`
}

// Target identifies where a compiled operation runs.
type Target struct {
	Addr         string       `json:"addr"`
	Database     string       `json:"database"`
	WriteConcern WriteConcern `json:"write_concern"`
}

// WriteOptions carries the resolved flags for remove, update, insert and
// save calls.
type WriteOptions struct {
	Multi  bool `json:"multi"`
	Upsert bool `json:"upsert"`
	Safe   bool `json:"safe"`
	// Extra holds any remaining merged options the backend may honour.
	Extra M `json:"extra,omitempty"`
}

// FindAndModifySpec describes one atomic fetch-and-update.
type FindAndModifySpec struct {
	Filter M    `json:"filter"`
	Sort   Sort `json:"sort,omitempty"`
	Fields M    `json:"fields,omitempty"`
	Update M    `json:"update,omitempty"`
	// Remove deletes the matched document instead of updating it.
	Remove bool `json:"remove"`
	// New returns the document after modification rather than before.
	New    bool `json:"new"`
	Upsert bool `json:"upsert"`
}

// Dialer opens connections. Implementations must not pool: each Dial
// returns a connection owned by a single operation.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Conn, error)
}

// Conn is one open connection to a database.
type Conn interface {
	// Collection resolves a collection handle on this connection.
	Collection(ctx context.Context, name string) (Collection, error)
	// Close releases the connection. Callers invoke it exactly once.
	Close(ctx context.Context) error
}

// Collection is the per-collection operation surface.
type Collection interface {
	// Find prepares a query. Nothing is sent to the store until the
	// returned Query is iterated.
	Find(filter, fields, options M) Query
	Remove(ctx context.Context, filter M, opts WriteOptions) (int64, error)
	// Update returns the number of matched documents plus the number
	// upserted.
	Update(ctx context.Context, filter, doc M, opts WriteOptions) (int64, error)
	// Insert stores docs in order and returns them with identifiers set.
	Insert(ctx context.Context, docs []M, opts WriteOptions) ([]M, error)
	// Save replaces the document with the same _id, or inserts it.
	Save(ctx context.Context, doc M, opts WriteOptions) (M, error)
	Count(ctx context.Context, filter M) (int64, error)
	// FindAndModify returns nil when nothing matched and nothing was
	// upserted.
	FindAndModify(ctx context.Context, fm FindAndModifySpec) (M, error)
}

// Query is a lazily executed find.
type Query interface {
	Sort(s Sort) Query
	Skip(n int64) Query
	Limit(n int64) Query
	// All runs the query and returns every document.
	All(ctx context.Context) ([]M, error)
	// Next returns the next document, or nil once the results are
	// exhausted.
	Next(ctx context.Context) (M, error)
	Close(ctx context.Context) error
}

// Rewinder is implemented by queries that can restart iteration from the
// first document.
type Rewinder interface {
	Rewind(ctx context.Context) error
}
