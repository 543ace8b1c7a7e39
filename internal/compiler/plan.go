package compiler

import (
	"context"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/errs"
	"github.com/roach88/magnolia/internal/merge"
)

// Plan is one compiled operation.
type Plan interface {
	Kind() Kind
	Params() Params
	// Describe renders the plan as a record for explain output.
	Describe() map[string]any
}

type base struct {
	kind   Kind
	params Params
}

func (b base) Kind() Kind { return b.kind }

func (b base) Params() Params { return b.params }

func compile(k Kind, l actionlog.Log, d Defaults) (base, error) {
	p, err := Resolve(k, l, d)
	if err != nil {
		return base{}, err
	}
	return base{kind: k, params: p}, nil
}

// QueryPlan finds documents.
type QueryPlan struct{ base }

// NewQuery compiles l as a find.
func NewQuery(l actionlog.Log, d Defaults) (*QueryPlan, error) {
	b, err := compile(KindQuery, l, d)
	if err != nil {
		return nil, err
	}
	return &QueryPlan{b}, nil
}

// Open issues the find and applies sort, skip and limit, in that order,
// when each was chained.
func (q *QueryPlan) Open(coll driver.Collection) driver.Query {
	p := q.params
	cur := coll.Find(p.Filter, p.Fields, p.Options)
	if p.HasSort {
		cur = cur.Sort(p.Sort)
	}
	if p.HasSkip {
		cur = cur.Skip(p.Skip)
	}
	if p.HasLimit {
		cur = cur.Limit(p.Limit)
	}
	return cur
}

// Run returns every match, or at most the first one in single mode.
func (q *QueryPlan) Run(ctx context.Context, coll driver.Collection) (docs []driver.M, err error) {
	cur := q.Open(coll)
	defer func() {
		if cerr := cur.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	docs, err = cur.All(ctx)
	if err != nil {
		return nil, err
	}
	if q.params.Single && len(docs) > 1 {
		docs = docs[:1]
	}
	return docs, nil
}

// RemovePlan deletes documents.
type RemovePlan struct{ base }

// NewRemove compiles l as a remove.
func NewRemove(l actionlog.Log, d Defaults) (*RemovePlan, error) {
	b, err := compile(KindRemove, l, d)
	if err != nil {
		return nil, err
	}
	return &RemovePlan{b}, nil
}

// Run returns the number of removed documents.
func (r *RemovePlan) Run(ctx context.Context, coll driver.Collection) (int64, error) {
	return coll.Remove(ctx, r.params.Filter, r.params.writeOptions())
}

// UpdatePlan modifies documents. It also serves upserts.
type UpdatePlan struct {
	base
	Doc driver.M
}

// NewUpdate compiles l as an update applying doc.
func NewUpdate(l actionlog.Log, d Defaults, doc driver.M) (*UpdatePlan, error) {
	return newUpdate(KindUpdate, l, d, doc)
}

// NewUpsert compiles l as an update with upsert forced on, whatever the
// chained options say.
func NewUpsert(l actionlog.Log, d Defaults, doc driver.M) (*UpdatePlan, error) {
	return newUpdate(KindUpsert, l, d, doc)
}

func newUpdate(k Kind, l actionlog.Log, d Defaults, doc driver.M) (*UpdatePlan, error) {
	if doc == nil {
		return nil, errs.Invocation(string(k), "update document is required")
	}
	b, err := compile(k, l, d)
	if err != nil {
		return nil, err
	}
	if k == KindUpsert {
		b.params.Options = merge.Merge(b.params.Options, driver.M{"upsert": true})
	}
	return &UpdatePlan{base: b, Doc: doc}, nil
}

// Run returns the number of matched documents plus the number upserted.
func (u *UpdatePlan) Run(ctx context.Context, coll driver.Collection) (int64, error) {
	return coll.Update(ctx, u.params.Filter, u.Doc, u.params.writeOptions())
}

// InsertPlan stores new documents.
type InsertPlan struct {
	base
	Docs []driver.M
}

// NewInsert compiles l as an insert of docs.
func NewInsert(l actionlog.Log, d Defaults, docs []driver.M) (*InsertPlan, error) {
	if len(docs) == 0 {
		return nil, errs.Invocation(string(KindInsert), "at least one document is required")
	}
	for i, doc := range docs {
		if doc == nil {
			return nil, errs.Invocation(string(KindInsert), "document %d is nil", i)
		}
	}
	b, err := compile(KindInsert, l, d)
	if err != nil {
		return nil, err
	}
	return &InsertPlan{base: b, Docs: docs}, nil
}

// Run returns the stored documents, in input order, with identifiers set.
func (i *InsertPlan) Run(ctx context.Context, coll driver.Collection) ([]driver.M, error) {
	return coll.Insert(ctx, i.Docs, i.params.writeOptions())
}

// SavePlan replaces or inserts one document by identifier.
type SavePlan struct {
	base
	Doc driver.M
}

// NewSave compiles l as a save of doc.
func NewSave(l actionlog.Log, d Defaults, doc driver.M) (*SavePlan, error) {
	if doc == nil {
		return nil, errs.Invocation(string(KindSave), "document is required")
	}
	b, err := compile(KindSave, l, d)
	if err != nil {
		return nil, err
	}
	return &SavePlan{base: b, Doc: doc}, nil
}

// Run returns the saved document.
func (s *SavePlan) Run(ctx context.Context, coll driver.Collection) (driver.M, error) {
	return coll.Save(ctx, s.Doc, s.params.writeOptions())
}

// CountPlan counts matches.
type CountPlan struct{ base }

// NewCount compiles l as a count.
func NewCount(l actionlog.Log, d Defaults) (*CountPlan, error) {
	b, err := compile(KindCount, l, d)
	if err != nil {
		return nil, err
	}
	return &CountPlan{b}, nil
}

// Run returns the number of matching documents.
func (c *CountPlan) Run(ctx context.Context, coll driver.Collection) (int64, error) {
	return coll.Count(ctx, c.params.Filter)
}

// FindAndModifyPlan atomically fetches and modifies one document.
type FindAndModifyPlan struct {
	base
	Spec driver.FindAndModifySpec
}

// NewFindAndModify compiles l as a find-and-modify. opts is merged over
// the chained options; its "new", "upsert" and "remove" keys select the
// variant.
func NewFindAndModify(l actionlog.Log, d Defaults, update, opts driver.M) (*FindAndModifyPlan, error) {
	b, err := compile(KindFindAndModify, l, d)
	if err != nil {
		return nil, err
	}
	b.params.Options = merge.Merge(b.params.Options, opts)

	fm := driver.FindAndModifySpec{
		Filter: b.params.Filter,
		Fields: b.params.Fields,
		Update: update,
		Remove: flag(b.params.Options, "remove"),
		New:    flag(b.params.Options, "new"),
		Upsert: flag(b.params.Options, "upsert"),
	}
	if b.params.HasSort {
		fm.Sort = b.params.Sort
	}
	if fm.Update == nil && !fm.Remove {
		return nil, errs.Invocation(string(KindFindAndModify), "update document is required unless remove is set")
	}
	if fm.Remove && fm.Update != nil {
		return nil, errs.Invocation(string(KindFindAndModify), "remove cannot be combined with an update document")
	}
	return &FindAndModifyPlan{base: b, Spec: fm}, nil
}

// Run returns the document before or after modification, or nil when
// nothing matched.
func (f *FindAndModifyPlan) Run(ctx context.Context, coll driver.Collection) (driver.M, error) {
	return coll.FindAndModify(ctx, f.Spec)
}

func flag(opts driver.M, key string) bool {
	b, _ := opts[key].(bool)
	return b
}
