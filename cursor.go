package magnolia

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/compiler"
	"github.com/roach88/magnolia/internal/errs"
	"github.com/roach88/magnolia/internal/session"
)

// Event names a cursor notification.
type Event string

const (
	// EventData fires with each document (an M).
	EventData Event = "data"
	// EventEnd fires once when the results are exhausted.
	EventEnd Event = "end"
	// EventError fires with the error that stopped iteration.
	EventError Event = "error"
	// EventClose fires once when the connection is released.
	EventClose Event = "close"
)

// Cursor streams a query over one connection. The connection is opened on
// the first Next and closed exactly once: on exhaustion, on error or by
// Close.
//
// Thread-safety: Cursor methods are safe for concurrent use. Listeners run
// on the goroutine that triggered the event, outside the cursor's lock.
type Cursor struct {
	b *Builder

	mu        sync.Mutex
	handle    *session.Handle
	query     driver.Query
	single    bool
	seen      int64
	closed    bool
	closeErr  error
	listeners map[Event][]func(any)
}

type emission struct {
	event Event
	value any
}

// Cursor returns the builder's cursor, creating it on first use. Nothing
// is dialled until the first Next.
func (b *Builder) Cursor() *Cursor {
	b.cursorOnce.Do(func() {
		b.cursor = b.newCursor()
	})
	return b.cursor
}

func (b *Builder) newCursor() *Cursor {
	return &Cursor{b: b, listeners: make(map[Event][]func(any))}
}

// On subscribes fn to event. Data listeners receive an M and error
// listeners an error; end and close listeners receive nil.
func (c *Cursor) On(event Event, fn func(any)) error {
	switch event {
	case EventData, EventEnd, EventError, EventClose:
	default:
		return errs.Invocation("on", "unknown cursor event %q", event)
	}
	if fn == nil {
		return errs.Invocation("on", "listener is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[event] = append(c.listeners[event], fn)
	return nil
}

func (c *Cursor) emit(pending []emission) {
	if len(pending) == 0 {
		return
	}
	c.mu.Lock()
	fns := make([][]func(any), len(pending))
	for i, e := range pending {
		fns[i] = slices.Clone(c.listeners[e.event])
	}
	c.mu.Unlock()

	for i, e := range pending {
		for _, fn := range fns[i] {
			fn(e.value)
		}
	}
}

// open dials the connection. Callers hold c.mu.
func (c *Cursor) open(ctx context.Context) error {
	if c.b.err != nil {
		return c.b.err
	}
	plan, err := compiler.NewQuery(c.b.log, c.b.defaults())
	if err != nil {
		return err
	}
	p := plan.Params()
	h, err := c.b.client.runner.Open(ctx, string(plan.Kind()), p.Target, p.Collection)
	if err != nil {
		return err
	}
	c.handle = h
	c.query = plan.Open(h.Coll)
	c.single = p.Single
	return nil
}

// release closes the query and the connection once. Callers hold c.mu.
func (c *Cursor) release(ctx context.Context, pending *[]emission) error {
	if c.closed {
		return c.closeErr
	}
	c.closed = true
	if c.handle == nil {
		return nil
	}
	var qerr error
	if err := c.query.Close(ctx); err != nil {
		qerr = errs.Store(string(compiler.KindQuery), err)
	}
	c.closeErr = errors.Join(qerr, c.handle.Close(ctx))
	*pending = append(*pending, emission{event: EventClose})
	return c.closeErr
}

// fail releases the cursor after err and reports both.
func (c *Cursor) fail(ctx context.Context, err error, pending *[]emission) error {
	*pending = append(*pending, emission{event: EventError, value: err})
	if cerr := c.release(ctx, pending); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// Next returns the next document, or nil once the results are exhausted.
// Reaching the end closes the connection; later calls keep returning nil.
// In single mode the cursor ends after the first document.
func (c *Cursor) Next(ctx context.Context) (M, error) {
	var pending []emission
	doc, err := c.next(ctx, &pending)
	c.emit(pending)
	return doc, err
}

func (c *Cursor) next(ctx context.Context, pending *[]emission) (M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, nil
	}
	if c.handle == nil {
		if err := c.open(ctx); err != nil {
			c.closed = true
			*pending = append(*pending, emission{event: EventError, value: err})
			return nil, err
		}
	}

	if c.single && c.seen >= 1 {
		*pending = append(*pending, emission{event: EventEnd})
		return nil, c.release(ctx, pending)
	}
	doc, err := c.query.Next(ctx)
	if err != nil {
		return nil, c.fail(ctx, errs.Store(string(compiler.KindQuery), err), pending)
	}
	if doc == nil {
		*pending = append(*pending, emission{event: EventEnd})
		return nil, c.release(ctx, pending)
	}
	c.seen++
	*pending = append(*pending, emission{event: EventData, value: doc})
	return doc, nil
}

// Each calls fn for every remaining document and settles with the number
// visited. The connection is closed when the results run out or fn
// returns an error, which then fails the future.
func (c *Cursor) Each(ctx context.Context, fn func(M) error) *Future[int64] {
	if fn == nil {
		return failed[int64](errs.Invocation("each", "callback is nil"))
	}
	f := newFuture[int64]()
	go func() {
		var n int64
		for {
			doc, err := c.Next(ctx)
			if err != nil {
				f.settle(n, err)
				return
			}
			if doc == nil {
				f.settle(n, nil)
				return
			}
			n++
			if err := fn(doc); err != nil {
				if cerr := c.Close(ctx); cerr != nil {
					err = errors.Join(err, cerr)
				}
				f.settle(n, err)
				return
			}
		}
	}()
	return f
}

// Rewind restarts iteration from the first document. It is a no-op before
// the first Next. Rewinding a closed cursor is an invocation error, and a
// backend whose queries cannot restart reports an unimplemented error.
func (c *Cursor) Rewind(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errs.Invocation("rewind", "cursor is closed")
	}
	if c.handle == nil {
		return nil
	}
	r, ok := c.query.(driver.Rewinder)
	if !ok {
		return errs.Unimplemented("rewind", "cursor rewind")
	}
	if err := r.Rewind(ctx); err != nil {
		return errs.Store("rewind", err)
	}
	c.seen = 0
	return nil
}

// Close releases the connection. It is safe to call more than once; every
// call returns the result of the first.
func (c *Cursor) Close(ctx context.Context) error {
	var pending []emission
	c.mu.Lock()
	err := c.release(ctx, &pending)
	c.mu.Unlock()
	c.emit(pending)
	return err
}

// Closed reports whether the cursor has released its connection or can
// no longer produce documents.
func (c *Cursor) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
