package magnolia

import (
	"sync"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/compiler"
	"github.com/roach88/magnolia/internal/errs"
)

// Builder is one pending operation: a client plus an immutable action
// log. Chain methods return new Builders; terminal methods compile the
// receiver's own log.
type Builder struct {
	client *Client
	log    actionlog.Log
	// err is an invocation error recorded while chaining. Every terminal
	// reports it without dialling.
	err error

	thenOnce   sync.Once
	then       *Future[any]
	cursorOnce sync.Once
	cursor     *Cursor
}

func (b *Builder) with(k actionlog.Kind, args ...any) *Builder {
	if b.err != nil {
		return &Builder{client: b.client, log: b.log, err: b.err}
	}
	return &Builder{client: b.client, log: b.log.Append(actionlog.Action{Kind: k, Args: args})}
}

func (b *Builder) flag(k actionlog.Kind, v []bool) *Builder {
	switch len(v) {
	case 0:
		return b.with(k)
	case 1:
		return b.with(k, v[0])
	default:
		return &Builder{client: b.client, log: b.log, err: errs.Invocation(k.String(), "takes at most one argument, got %d", len(v))}
	}
}

// Server sets the store address. The last call wins.
func (b *Builder) Server(addr string) *Builder { return b.with(actionlog.KindServer, addr) }

// Filter merges query into the filter.
func (b *Builder) Filter(query M) *Builder { return b.with(actionlog.KindFilter, query) }

// Sort adds sort keys. Keys from later calls take precedence over keys
// from earlier ones.
func (b *Builder) Sort(keys ...SortKey) *Builder {
	return b.with(actionlog.KindSort, driver.Sort(append([]SortKey(nil), keys...)))
}

// Limit caps the number of results. The last call wins.
func (b *Builder) Limit(n int64) *Builder { return b.with(actionlog.KindLimit, n) }

// Skip skips results. Repeated calls add up.
func (b *Builder) Skip(n int64) *Builder { return b.with(actionlog.KindSkip, n) }

// Fields merges a projection.
func (b *Builder) Fields(projection M) *Builder { return b.with(actionlog.KindFields, projection) }

// Options merges collaborator options such as upsert.
func (b *Builder) Options(opts M) *Builder { return b.with(actionlog.KindOptions, opts) }

// One targets a single document. One(false) behaves like Multi().
func (b *Builder) One(v ...bool) *Builder { return b.flag(actionlog.KindOne, v) }

// Multi targets every matching document. Multi(false) behaves like One().
func (b *Builder) Multi(v ...bool) *Builder { return b.flag(actionlog.KindMulti, v) }

// Safe requests acknowledged writes. This is the default.
func (b *Builder) Safe(v ...bool) *Builder { return b.flag(actionlog.KindSafe, v) }

// Unsafe requests unacknowledged writes.
func (b *Builder) Unsafe(v ...bool) *Builder { return b.flag(actionlog.KindUnsafe, v) }

// Chain appends an action by name. The name must belong to the chain
// vocabulary; collection and db are only set by Client.Collection.
// Arguments are checked the same way compilation checks them.
func (b *Builder) Chain(name string, args ...any) (*Builder, error) {
	if b.err != nil {
		return nil, b.err
	}
	k, err := actionlog.ParseKind(name)
	if err != nil {
		return nil, err
	}
	if k == actionlog.KindCollection || k == actionlog.KindDB {
		return nil, errs.Invocation("chain", "%s can only be set when the builder is created", name)
	}

	a := actionlog.Action{Kind: k, Args: args}
	var probe actionlog.Log
	probe = probe.Append(actionlog.Action{Kind: actionlog.KindCollection, Args: []any{"_"}}).Append(a)
	if vs := compiler.Validate(probe); len(vs) > 0 {
		return nil, errs.Invocation("chain", "%s", vs[0].Error())
	}
	return &Builder{client: b.client, log: b.log.Append(a)}, nil
}

// Len returns the number of recorded actions.
func (b *Builder) Len() int { return b.log.Len() }

// Err returns the invocation error recorded while chaining, if any.
func (b *Builder) Err() error { return b.err }
