package docstore

import (
	"context"
	"errors"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/match"
)

// Query is a lazily executed find. It satisfies driver.Rewinder.
type Query struct {
	coll   *Collection
	filter driver.M
	fields driver.M

	sort  driver.Sort
	skip  int64
	limit int64

	buf    []driver.M
	pos    int
	loaded bool
	closed bool
}

// Sort sets the result order.
func (q *Query) Sort(s driver.Sort) driver.Query {
	q.sort = s
	return q
}

// Skip drops the first n results.
func (q *Query) Skip(n int64) driver.Query {
	q.skip = n
	return q
}

// Limit caps the number of results. Zero means no limit and a negative
// limit is treated as its absolute value.
func (q *Query) Limit(n int64) driver.Query {
	if n < 0 {
		n = -n
	}
	q.limit = n
	return q
}

// All runs the query and returns every result.
func (q *Query) All(ctx context.Context) ([]driver.M, error) {
	if q.closed {
		return nil, errors.New("query closed")
	}
	docs, err := q.run(ctx)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Next returns the next result, or nil once exhausted. Results are read
// in one pass on the first call.
func (q *Query) Next(ctx context.Context) (driver.M, error) {
	if q.closed {
		return nil, errors.New("query closed")
	}
	if !q.loaded {
		docs, err := q.run(ctx)
		if err != nil {
			return nil, err
		}
		q.buf, q.pos, q.loaded = docs, 0, true
	}
	if q.pos >= len(q.buf) {
		return nil, nil
	}
	doc := q.buf[q.pos]
	q.pos++
	return doc, nil
}

// Rewind restarts iteration; the next call to Next re-reads the store.
func (q *Query) Rewind(_ context.Context) error {
	if q.closed {
		return errors.New("query closed")
	}
	q.buf, q.pos, q.loaded = nil, 0, false
	return nil
}

// Close releases buffered results.
func (q *Query) Close(_ context.Context) error {
	q.closed = true
	q.buf = nil
	return nil
}

func (q *Query) run(ctx context.Context) ([]driver.M, error) {
	f, err := match.Compile(q.filter)
	if err != nil {
		return nil, err
	}
	proj, err := match.CompileProjection(q.fields)
	if err != nil {
		return nil, err
	}

	var hits []stored
	err = q.coll.withTxn(ctx, false, func(txn Txn) error {
		hits, err = scan(txn, f)
		return err
	})
	if err != nil {
		return nil, err
	}

	docs := make([]map[string]any, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	match.Sort(docs, q.sort)

	if q.skip > 0 {
		if q.skip >= int64(len(docs)) {
			docs = nil
		} else {
			docs = docs[q.skip:]
		}
	}
	if q.limit > 0 && q.limit < int64(len(docs)) {
		docs = docs[:q.limit]
	}

	out := make([]driver.M, len(docs))
	for i, d := range docs {
		out[i] = proj.Apply(d)
	}
	q.coll.logger.Debug("find", "returned", len(out))
	return out, nil
}
