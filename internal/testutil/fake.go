package testutil

import (
	"context"
	"sync"

	"github.com/roach88/magnolia/driver"
)

// Call records one collaborator call made through a FakeDialer.
type Call struct {
	// Method is the collection method: find, remove, update, insert,
	// save, count or findAndModify.
	Method  string
	Filter  driver.M
	Fields  driver.M
	Options driver.M
	Doc     driver.M
	Docs    []driver.M
	Write   driver.WriteOptions
	Spec    driver.FindAndModifySpec

	// Cursor lists the query modifiers applied after find, in order, for
	// example "sort", "skip", "limit".
	Cursor []string
	Sort   driver.Sort
	Skip   int64
	Limit  int64
}

// FakeDialer is a scriptable driver.Dialer that records every call and
// counts connection opens and closes.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeDialer struct {
	mu sync.Mutex

	// Failure injection.
	DialErr       error
	CollectionErr error
	CloseErr      error
	// StoreErr is returned by every collection call.
	StoreErr error

	// Canned results.
	Docs     []driver.M
	N        int64
	Modified driver.M
	// Rewindable makes queries implement driver.Rewinder.
	Rewindable bool

	targets     []driver.Target
	collections []string
	calls       []*Call
	dials       int
	closes      int
}

// Dial implements driver.Dialer.
func (f *FakeDialer) Dial(_ context.Context, target driver.Target) (driver.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	f.dials++
	return &fakeConn{f: f}, nil
}

// Dials returns the number of successful dials.
func (f *FakeDialer) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// Closes returns the number of Close calls across all connections.
func (f *FakeDialer) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Targets returns every target passed to Dial.
func (f *FakeDialer) Targets() []driver.Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driver.Target(nil), f.targets...)
}

// Collections returns every collection name resolved.
func (f *FakeDialer) Collections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.collections...)
}

// Calls returns a snapshot of the recorded calls.
func (f *FakeDialer) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	for i, c := range f.calls {
		out[i] = *c
		out[i].Cursor = append([]string(nil), c.Cursor...)
	}
	return out
}

// LastCall returns the most recent call, or the zero Call.
func (f *FakeDialer) LastCall() Call {
	calls := f.Calls()
	if len(calls) == 0 {
		return Call{}
	}
	return calls[len(calls)-1]
}

func (f *FakeDialer) record(c *Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.StoreErr
}

func (f *FakeDialer) docs() []driver.M {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driver.M(nil), f.Docs...)
}

type fakeConn struct {
	f *FakeDialer
}

func (c *fakeConn) Collection(_ context.Context, name string) (driver.Collection, error) {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	c.f.collections = append(c.f.collections, name)
	if c.f.CollectionErr != nil {
		return nil, c.f.CollectionErr
	}
	return &fakeCollection{f: c.f}, nil
}

func (c *fakeConn) Close(_ context.Context) error {
	c.f.mu.Lock()
	defer c.f.mu.Unlock()
	c.f.closes++
	return c.f.CloseErr
}

type fakeCollection struct {
	f *FakeDialer
}

func (c *fakeCollection) Find(filter, fields, options driver.M) driver.Query {
	call := &Call{Method: "find", Filter: filter, Fields: fields, Options: options}
	c.f.mu.Lock()
	c.f.calls = append(c.f.calls, call)
	rewindable := c.f.Rewindable
	c.f.mu.Unlock()

	q := &fakeQuery{f: c.f, call: call}
	q.self = q
	if rewindable {
		r := &rewindableQuery{q}
		q.self = r
	}
	return q.self
}

func (c *fakeCollection) Remove(_ context.Context, filter driver.M, opts driver.WriteOptions) (int64, error) {
	if err := c.f.record(&Call{Method: "remove", Filter: filter, Write: opts}); err != nil {
		return 0, err
	}
	return c.f.N, nil
}

func (c *fakeCollection) Update(_ context.Context, filter, doc driver.M, opts driver.WriteOptions) (int64, error) {
	if err := c.f.record(&Call{Method: "update", Filter: filter, Doc: doc, Write: opts}); err != nil {
		return 0, err
	}
	return c.f.N, nil
}

func (c *fakeCollection) Insert(_ context.Context, docs []driver.M, opts driver.WriteOptions) ([]driver.M, error) {
	if err := c.f.record(&Call{Method: "insert", Docs: docs, Write: opts}); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *fakeCollection) Save(_ context.Context, doc driver.M, opts driver.WriteOptions) (driver.M, error) {
	if err := c.f.record(&Call{Method: "save", Doc: doc, Write: opts}); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *fakeCollection) Count(_ context.Context, filter driver.M) (int64, error) {
	if err := c.f.record(&Call{Method: "count", Filter: filter}); err != nil {
		return 0, err
	}
	return c.f.N, nil
}

func (c *fakeCollection) FindAndModify(_ context.Context, fm driver.FindAndModifySpec) (driver.M, error) {
	if err := c.f.record(&Call{Method: "findAndModify", Filter: fm.Filter, Spec: fm}); err != nil {
		return nil, err
	}
	return c.f.Modified, nil
}

type fakeQuery struct {
	f    *FakeDialer
	call *Call
	// self is the value chained modifiers return, so a rewindable wrapper
	// survives Sort, Skip and Limit.
	self driver.Query
	buf  []driver.M
	pos  int
	open bool
}

func (q *fakeQuery) modify(name string, apply func(*Call)) {
	q.f.mu.Lock()
	defer q.f.mu.Unlock()
	q.call.Cursor = append(q.call.Cursor, name)
	apply(q.call)
}

func (q *fakeQuery) Sort(s driver.Sort) driver.Query {
	q.modify("sort", func(c *Call) { c.Sort = s })
	return q.self
}

func (q *fakeQuery) Skip(n int64) driver.Query {
	q.modify("skip", func(c *Call) { c.Skip = n })
	return q.self
}

func (q *fakeQuery) Limit(n int64) driver.Query {
	q.modify("limit", func(c *Call) { c.Limit = n })
	return q.self
}

func (q *fakeQuery) All(_ context.Context) ([]driver.M, error) {
	q.f.mu.Lock()
	err := q.f.StoreErr
	q.f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return q.f.docs(), nil
}

func (q *fakeQuery) Next(_ context.Context) (driver.M, error) {
	q.f.mu.Lock()
	err := q.f.StoreErr
	q.f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !q.open {
		q.buf, q.pos, q.open = q.f.docs(), 0, true
	}
	if q.pos >= len(q.buf) {
		return nil, nil
	}
	doc := q.buf[q.pos]
	q.pos++
	return doc, nil
}

func (q *fakeQuery) Close(_ context.Context) error {
	return nil
}

type rewindableQuery struct {
	*fakeQuery
}

func (q *rewindableQuery) Rewind(_ context.Context) error {
	q.pos, q.open = 0, false
	return nil
}
