package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/bsonx"
)

// Query is a lazily executed find. The server cursor is opened on the
// first call to All or Next.
type Query struct {
	coll    *mongo.Collection
	filter  driver.M
	fields  driver.M
	options driver.M

	sort     driver.Sort
	skip     int64
	limit    int64
	hasLimit bool

	cursor *mongo.Cursor
	done   bool
	closed bool
}

func (q *Query) Sort(s driver.Sort) driver.Query {
	q.sort = s
	return q
}

func (q *Query) Skip(n int64) driver.Query {
	q.skip = n
	return q
}

// Limit caps the result count. A negative limit asks the server for a
// single batch of that size.
func (q *Query) Limit(n int64) driver.Query {
	q.limit, q.hasLimit = n, true
	return q
}

// FindOptions builds the options sent with the find command.
func (q *Query) FindOptions() *mopt.FindOptions {
	opts := mopt.Find()
	if len(q.fields) > 0 {
		opts.SetProjection(q.fields)
	}
	if len(q.sort) > 0 {
		opts.SetSort(SortDoc(q.sort))
	}
	if q.skip > 0 {
		opts.SetSkip(q.skip)
	}
	if q.hasLimit && q.limit != 0 {
		opts.SetLimit(q.limit)
	}
	switch n := q.options["batchSize"].(type) {
	case int:
		opts.SetBatchSize(int32(n))
	case int32:
		opts.SetBatchSize(n)
	case int64:
		opts.SetBatchSize(int32(n))
	case float64:
		opts.SetBatchSize(int32(n))
	}
	if v, ok := q.options["comment"].(string); ok {
		opts.SetComment(v)
	}
	return opts
}

func (q *Query) open(ctx context.Context) error {
	if q.closed {
		return errors.New("query closed")
	}
	if q.cursor != nil || q.done {
		return nil
	}
	cur, err := q.coll.Find(ctx, q.filter, q.FindOptions())
	if err != nil {
		return err
	}
	q.cursor = cur
	return nil
}

// All drains the cursor.
func (q *Query) All(ctx context.Context) ([]driver.M, error) {
	if err := q.open(ctx); err != nil {
		return nil, err
	}
	if q.cursor == nil {
		return nil, nil
	}
	var raw []bson.M
	if err := q.cursor.All(ctx, &raw); err != nil {
		return nil, err
	}
	q.cursor, q.done = nil, true
	out := make([]driver.M, len(raw))
	for i, m := range raw {
		out[i], _ = bsonx.Normalize(m).(map[string]any)
	}
	return out, nil
}

// Next returns the next document, or nil once the cursor is exhausted.
func (q *Query) Next(ctx context.Context) (driver.M, error) {
	if err := q.open(ctx); err != nil {
		return nil, err
	}
	if q.cursor == nil {
		return nil, nil
	}
	if !q.cursor.Next(ctx) {
		err := q.cursor.Err()
		closeErr := q.cursor.Close(ctx)
		q.cursor, q.done = nil, true
		if err != nil {
			return nil, err
		}
		return nil, closeErr
	}
	var m bson.M
	if err := q.cursor.Decode(&m); err != nil {
		return nil, err
	}
	doc, _ := bsonx.Normalize(m).(map[string]any)
	return doc, nil
}

// Close releases the server cursor if one is open.
func (q *Query) Close(ctx context.Context) error {
	q.closed = true
	if q.cursor == nil {
		return nil
	}
	err := q.cursor.Close(ctx)
	q.cursor = nil
	return err
}
