package magnolia

import (
	"context"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/compiler"
	"github.com/roach88/magnolia/internal/errs"
)

// runnable is the part of a compiled plan execute needs.
type runnable interface {
	Kind() compiler.Kind
	Params() compiler.Params
}

// execute runs call on its own goroutine inside one connection lifecycle
// and settles the returned future. Compilation errors and bad callbacks
// settle it before execute returns, without dialling.
func execute[T any, P runnable](ctx context.Context, b *Builder, cbs []Callback[T], compile func() (P, error), call func(P, context.Context, driver.Collection) (T, error)) *Future[T] {
	f := newFuture[T]()
	if err := checkCallbacks(cbs); err != nil {
		f.settle(*new(T), err)
		return f
	}
	if len(cbs) == 1 {
		f.Then(cbs[0])
	}
	if b.err != nil {
		f.settle(*new(T), b.err)
		return f
	}

	plan, err := compile()
	if err != nil {
		f.settle(*new(T), err)
		return f
	}
	p := plan.Params()
	op := string(plan.Kind())

	go func() {
		var out T
		err := b.client.runner.Run(ctx, op, p.Target, p.Collection, func(ctx context.Context, coll driver.Collection) error {
			v, err := call(plan, ctx, coll)
			out = v
			return err
		})
		f.settle(out, err)
	}()
	return f
}

func checkCallbacks[T any](cbs []Callback[T]) error {
	switch {
	case len(cbs) > 1:
		return errs.Invocation("callback", "expected at most one callback, got %d", len(cbs))
	case len(cbs) == 1 && cbs[0] == nil:
		return errs.Invocation("callback", "callback is nil")
	}
	return nil
}

func (b *Builder) defaults() compiler.Defaults {
	return b.client.defaults
}

func (b *Builder) queryPlan() (*compiler.QueryPlan, error) {
	return compiler.NewQuery(b.log, b.defaults())
}

// ToArray runs the query and returns the matching documents. In single
// mode the list holds at most one document.
func (b *Builder) ToArray(ctx context.Context, cb ...Callback[[]M]) *Future[[]M] {
	return execute(ctx, b, cb, b.queryPlan, (*compiler.QueryPlan).Run)
}

// Then runs the query once per Builder and returns the memoised future.
// The value is a []M, or in single mode the first match as an M (untyped
// nil when nothing matched). A callback passed on any call observes that
// future. Invalid callbacks fail without running the query.
func (b *Builder) Then(ctx context.Context, cb ...Callback[any]) *Future[any] {
	if err := checkCallbacks(cb); err != nil {
		return failed[any](err)
	}
	b.thenOnce.Do(func() {
		b.then = execute[any](ctx, b, nil, b.queryPlan, func(plan *compiler.QueryPlan, ctx context.Context, coll driver.Collection) (any, error) {
			docs, err := plan.Run(ctx, coll)
			if err != nil {
				return nil, err
			}
			if plan.Params().Single {
				if len(docs) == 0 {
					return nil, nil
				}
				return docs[0], nil
			}
			return docs, nil
		})
	})
	if len(cb) == 1 {
		b.then.Then(cb[0])
	}
	return b.then
}

// Remove deletes the first match, or every match after Multi, and returns
// how many documents were removed.
func (b *Builder) Remove(ctx context.Context, cb ...Callback[int64]) *Future[int64] {
	return execute(ctx, b, cb, func() (*compiler.RemovePlan, error) {
		return compiler.NewRemove(b.log, b.defaults())
	}, (*compiler.RemovePlan).Run)
}

// RemoveWhere adds filter to the chain, when non-nil, and removes.
func (b *Builder) RemoveWhere(ctx context.Context, filter M, cb ...Callback[int64]) *Future[int64] {
	return b.where(filter).Remove(ctx, cb...)
}

// Update applies doc to the first match, or every match after Multi. The
// result is the number of matched documents plus any upserted one.
func (b *Builder) Update(ctx context.Context, doc M, cb ...Callback[int64]) *Future[int64] {
	return execute(ctx, b, cb, func() (*compiler.UpdatePlan, error) {
		return compiler.NewUpdate(b.log, b.defaults(), doc)
	}, (*compiler.UpdatePlan).Run)
}

// Upsert is Update with upsert forced on.
func (b *Builder) Upsert(ctx context.Context, doc M, cb ...Callback[int64]) *Future[int64] {
	return execute(ctx, b, cb, func() (*compiler.UpdatePlan, error) {
		return compiler.NewUpsert(b.log, b.defaults(), doc)
	}, (*compiler.UpdatePlan).Run)
}

// Insert stores doc and returns it with its identifier set. A generated
// identifier is also written into doc.
func (b *Builder) Insert(ctx context.Context, doc M, cb ...Callback[M]) *Future[M] {
	return execute(ctx, b, cb, func() (*compiler.InsertPlan, error) {
		return compiler.NewInsert(b.log, b.defaults(), []M{doc})
	}, func(plan *compiler.InsertPlan, ctx context.Context, coll driver.Collection) (M, error) {
		docs, err := plan.Run(ctx, coll)
		if err != nil || len(docs) == 0 {
			return nil, err
		}
		return docs[0], nil
	})
}

// InsertMany stores docs in order and returns a list of the same length.
func (b *Builder) InsertMany(ctx context.Context, docs []M, cb ...Callback[[]M]) *Future[[]M] {
	return execute(ctx, b, cb, func() (*compiler.InsertPlan, error) {
		return compiler.NewInsert(b.log, b.defaults(), docs)
	}, (*compiler.InsertPlan).Run)
}

// Save replaces the document with doc's identifier, or inserts doc.
func (b *Builder) Save(ctx context.Context, doc M, cb ...Callback[M]) *Future[M] {
	return execute(ctx, b, cb, func() (*compiler.SavePlan, error) {
		return compiler.NewSave(b.log, b.defaults(), doc)
	}, (*compiler.SavePlan).Run)
}

// Count returns the number of documents matching the filter.
func (b *Builder) Count(ctx context.Context, cb ...Callback[int64]) *Future[int64] {
	return execute(ctx, b, cb, func() (*compiler.CountPlan, error) {
		return compiler.NewCount(b.log, b.defaults())
	}, (*compiler.CountPlan).Run)
}

// CountWhere adds filter to the chain, when non-nil, and counts.
func (b *Builder) CountWhere(ctx context.Context, filter M, cb ...Callback[int64]) *Future[int64] {
	return b.where(filter).Count(ctx, cb...)
}

func (b *Builder) where(filter M) *Builder {
	if filter == nil {
		return b
	}
	return b.Filter(filter)
}

// FindAndModify atomically updates the first match in sort order and
// returns it. opts may set "new" to return the modified document,
// "upsert", or "remove" (with a nil update) to delete it instead. The
// value is nil when nothing matched.
func (b *Builder) FindAndModify(ctx context.Context, update, opts M, cb ...Callback[M]) *Future[M] {
	return execute(ctx, b, cb, func() (*compiler.FindAndModifyPlan, error) {
		return compiler.NewFindAndModify(b.log, b.defaults(), update, opts)
	}, (*compiler.FindAndModifyPlan).Run)
}

// Each streams the query through fn on a fresh cursor and returns the
// number of documents visited. Returning an error from fn stops the
// iteration and fails the future.
func (b *Builder) Each(ctx context.Context, fn func(M) error) *Future[int64] {
	return b.newCursor().Each(ctx, fn)
}

// Explain compiles the builder as operation kind (query, remove, update,
// upsert, insert, save, count or findAndModify) and renders the resolved
// plan as canonical JSON without dialling. docs supplies the update,
// inserted or saved documents; for findAndModify the second document is
// the options.
func (b *Builder) Explain(kind string, docs ...M) ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	plan, err := b.plan(compiler.Kind(kind), docs)
	if err != nil {
		return nil, err
	}
	return compiler.Explain(plan)
}

func (b *Builder) plan(kind compiler.Kind, docs []M) (compiler.Plan, error) {
	d := b.defaults()
	arg := func(i int) M {
		if i < len(docs) {
			return docs[i]
		}
		return nil
	}
	switch kind {
	case compiler.KindQuery:
		return compiler.NewQuery(b.log, d)
	case compiler.KindRemove:
		return compiler.NewRemove(b.log, d)
	case compiler.KindUpdate:
		return compiler.NewUpdate(b.log, d, arg(0))
	case compiler.KindUpsert:
		return compiler.NewUpsert(b.log, d, arg(0))
	case compiler.KindInsert:
		return compiler.NewInsert(b.log, d, docs)
	case compiler.KindSave:
		return compiler.NewSave(b.log, d, arg(0))
	case compiler.KindCount:
		return compiler.NewCount(b.log, d)
	case compiler.KindFindAndModify:
		return compiler.NewFindAndModify(b.log, d, arg(0), arg(1))
	default:
		return nil, errs.Invocation("explain", "unknown operation %q", kind)
	}
}
