package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/bsonx"
	"github.com/roach88/magnolia/internal/match"
)

// Conn adapts a Backend to driver.Conn.
type Conn struct {
	backend Backend
	logger  *slog.Logger
	closed  bool
}

// NewConn wraps backend. A nil logger discards output.
func NewConn(backend Backend, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Conn{backend: backend, logger: logger}
}

// Collection returns a handle for name. Collections are created lazily on
// first write.
func (c *Conn) Collection(_ context.Context, name string) (driver.Collection, error) {
	if c.closed {
		return nil, errors.New("connection closed")
	}
	if name == "" {
		return nil, errors.New("collection name is empty")
	}
	return &Collection{backend: c.backend, name: name, logger: c.logger.With("collection", name)}, nil
}

// Close releases the backend. Calling it twice is an error.
func (c *Conn) Close(_ context.Context) error {
	if c.closed {
		return errors.New("connection already closed")
	}
	c.closed = true
	return c.backend.Close()
}

// Collection implements driver.Collection.
type Collection struct {
	backend Backend
	name    string
	logger  *slog.Logger
}

type stored struct {
	key string
	doc map[string]any
}

// scan collects every document matching f, in insertion order.
func scan(txn Txn, f *match.Filter) ([]stored, error) {
	var out []stored
	err := txn.Scan(func(key string, raw []byte) error {
		doc, err := bsonx.Decode(raw)
		if err != nil {
			return fmt.Errorf("document %s: %w", key, err)
		}
		if f.Match(doc) {
			out = append(out, stored{key: key, doc: doc})
		}
		return nil
	})
	return out, err
}

// withTxn runs fn inside a transaction and commits when fn succeeds and
// the transaction is writable.
func (c *Collection) withTxn(ctx context.Context, writable bool, fn func(Txn) error) error {
	txn, err := c.backend.Begin(ctx, c.name, writable)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txn); err != nil {
		if rbErr := txn.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if !writable {
		return txn.Rollback()
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Find prepares a lazy query. The embedded engine has no find options, so
// options is ignored.
func (c *Collection) Find(filter, fields, _ driver.M) driver.Query {
	return &Query{coll: c, filter: filter, fields: fields}
}

// Remove deletes the first matching document, or every match when
// opts.Multi is set.
func (c *Collection) Remove(ctx context.Context, filter driver.M, opts driver.WriteOptions) (int64, error) {
	f, err := match.Compile(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	err = c.withTxn(ctx, true, func(txn Txn) error {
		hits, err := scan(txn, f)
		if err != nil {
			return err
		}
		if !opts.Multi && len(hits) > 1 {
			hits = hits[:1]
		}
		for _, h := range hits {
			if err := txn.Delete(h.key); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.logger.Debug("remove", "matched", n, "multi", opts.Multi)
	return n, nil
}

// Update modifies the first match, or all matches when opts.Multi is set,
// and inserts a seeded document when nothing matched and opts.Upsert is
// set. It returns matched plus upserted.
func (c *Collection) Update(ctx context.Context, filter, doc driver.M, opts driver.WriteOptions) (int64, error) {
	f, err := match.Compile(filter)
	if err != nil {
		return 0, err
	}
	u, err := match.CompileUpdate(doc)
	if err != nil {
		return 0, err
	}
	if opts.Multi && u.IsReplacement() {
		return 0, errors.New("multi update requires update operators")
	}

	var n int64
	err = c.withTxn(ctx, true, func(txn Txn) error {
		hits, err := scan(txn, f)
		if err != nil {
			return err
		}
		if !opts.Multi && len(hits) > 1 {
			hits = hits[:1]
		}
		for _, h := range hits {
			next, err := u.Apply(h.doc, false)
			if err != nil {
				return err
			}
			if err := replace(txn, h.key, next); err != nil {
				return err
			}
			n++
		}
		if len(hits) == 0 && opts.Upsert {
			if _, err := upsert(txn, filter, u); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	c.logger.Debug("update", "count", n, "multi", opts.Multi, "upsert", opts.Upsert)
	return n, nil
}

// Insert stores docs in order. Missing identifiers are generated and
// written back into the caller's documents.
func (c *Collection) Insert(ctx context.Context, docs []driver.M, _ driver.WriteOptions) ([]driver.M, error) {
	err := c.withTxn(ctx, true, func(txn Txn) error {
		for i, doc := range docs {
			if doc == nil {
				return fmt.Errorf("document %d is nil", i)
			}
			bsonx.EnsureID(doc)
			if err := insert(txn, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("insert", "count", len(docs))
	return docs, nil
}

// Save replaces the document with the same _id, or inserts doc.
func (c *Collection) Save(ctx context.Context, doc driver.M, _ driver.WriteOptions) (driver.M, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}
	err := c.withTxn(ctx, true, func(txn Txn) error {
		if _, ok := doc[bsonx.IDKey]; !ok {
			bsonx.EnsureID(doc)
			return insert(txn, doc)
		}
		key, err := bsonx.IDString(doc[bsonx.IDKey])
		if err != nil {
			return err
		}
		err = replace(txn, key, doc)
		if errors.Is(err, ErrNotFound) {
			return insert(txn, doc)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("save", "id", doc[bsonx.IDKey])
	return doc, nil
}

// Count returns the number of matching documents.
func (c *Collection) Count(ctx context.Context, filter driver.M) (int64, error) {
	f, err := match.Compile(filter)
	if err != nil {
		return 0, err
	}
	var n int64
	err = c.withTxn(ctx, false, func(txn Txn) error {
		hits, err := scan(txn, f)
		n = int64(len(hits))
		return err
	})
	return n, err
}

// FindAndModify updates or removes the first document in sort order and
// returns it as it was before, or after when fm.New is set.
func (c *Collection) FindAndModify(ctx context.Context, fm driver.FindAndModifySpec) (driver.M, error) {
	f, err := match.Compile(fm.Filter)
	if err != nil {
		return nil, err
	}
	proj, err := match.CompileProjection(fm.Fields)
	if err != nil {
		return nil, err
	}
	var u *match.Update
	if !fm.Remove {
		if fm.Update == nil {
			return nil, errors.New("findAndModify requires an update or remove")
		}
		if u, err = match.CompileUpdate(fm.Update); err != nil {
			return nil, err
		}
	}

	var result driver.M
	err = c.withTxn(ctx, true, func(txn Txn) error {
		hits, err := scan(txn, f)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			if fm.Remove || !fm.Upsert {
				return nil
			}
			created, err := upsert(txn, fm.Filter, u)
			if err != nil {
				return err
			}
			if fm.New {
				result = proj.Apply(created)
			}
			return nil
		}

		docs := make([]map[string]any, len(hits))
		for i := range hits {
			docs[i] = hits[i].doc
		}
		match.Sort(docs, fm.Sort)
		first := docs[0]
		key, err := bsonx.IDString(first[bsonx.IDKey])
		if err != nil {
			return err
		}

		if fm.Remove {
			result = proj.Apply(first)
			return txn.Delete(key)
		}
		next, err := u.Apply(first, false)
		if err != nil {
			return err
		}
		if err := replace(txn, key, next); err != nil {
			return err
		}
		if fm.New {
			result = proj.Apply(next)
		} else {
			result = proj.Apply(first)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func insert(txn Txn, doc map[string]any) error {
	key, err := bsonx.IDString(doc[bsonx.IDKey])
	if err != nil {
		return err
	}
	raw, err := bsonx.Encode(doc)
	if err != nil {
		return err
	}
	if err := txn.Insert(key, raw); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return fmt.Errorf("insert _id %v: %w", doc[bsonx.IDKey], err)
		}
		return err
	}
	return nil
}

func replace(txn Txn, key string, doc map[string]any) error {
	raw, err := bsonx.Encode(doc)
	if err != nil {
		return err
	}
	return txn.Replace(key, raw)
}

// upsert inserts the document an unmatched upsert creates: the filter's
// equality fields with the update applied on top.
func upsert(txn Txn, filter driver.M, u *match.Update) (map[string]any, error) {
	base, err := match.Seed(filter)
	if err != nil {
		return nil, err
	}
	doc, err := u.Apply(base, true)
	if err != nil {
		return nil, err
	}
	if id, ok := base[bsonx.IDKey]; ok {
		if _, has := doc[bsonx.IDKey]; !has {
			doc[bsonx.IDKey] = id
		}
	}
	bsonx.EnsureID(doc)
	if err := insert(txn, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
