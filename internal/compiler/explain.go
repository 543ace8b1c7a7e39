package compiler

import (
	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/canon"
)

// Explain renders plan as indented canonical JSON.
func Explain(plan Plan) ([]byte, error) {
	return canon.MarshalIndent(plan.Describe(), "  ")
}

func (b base) describe() map[string]any {
	p := b.params
	out := map[string]any{
		"kind": string(b.kind),
		"target": map[string]any{
			"addr":         p.Target.Addr,
			"database":     p.Target.Database,
			"acknowledged": p.Target.WriteConcern.Acknowledged,
		},
		"collection": p.Collection,
		"filter":     p.Filter,
		"safe":       p.Safe,
	}
	if len(p.Options) > 0 {
		out["options"] = p.Options
	}
	return out
}

func describeSort(s driver.Sort) []any {
	out := make([]any, len(s))
	for i, k := range s {
		out[i] = map[string]any{"key": k.Key, "order": k.Order}
	}
	return out
}

func docs(ds []driver.M) []any {
	out := make([]any, len(ds))
	for i, d := range ds {
		out[i] = d
	}
	return out
}

func (q *QueryPlan) Describe() map[string]any {
	out := q.describe()
	p := q.params
	out["single"] = p.Single
	if len(p.Fields) > 0 {
		out["fields"] = p.Fields
	}
	if p.HasSort {
		out["sort"] = describeSort(p.Sort)
	}
	if p.HasSkip {
		out["skip"] = p.Skip
	}
	if p.HasLimit {
		out["limit"] = p.Limit
	}
	return out
}

func (r *RemovePlan) Describe() map[string]any {
	out := r.describe()
	out["multi"] = r.params.Multi
	return out
}

func (u *UpdatePlan) Describe() map[string]any {
	out := u.describe()
	opts := u.params.writeOptions()
	out["multi"] = opts.Multi
	out["upsert"] = opts.Upsert
	out["update"] = u.Doc
	return out
}

func (i *InsertPlan) Describe() map[string]any {
	out := i.describe()
	out["documents"] = docs(i.Docs)
	return out
}

func (s *SavePlan) Describe() map[string]any {
	out := s.describe()
	out["document"] = s.Doc
	return out
}

func (c *CountPlan) Describe() map[string]any {
	return c.describe()
}

func (f *FindAndModifyPlan) Describe() map[string]any {
	out := f.describe()
	fm := f.Spec
	if len(fm.Fields) > 0 {
		out["fields"] = fm.Fields
	}
	if len(fm.Sort) > 0 {
		out["sort"] = describeSort(fm.Sort)
	}
	if fm.Update != nil {
		out["update"] = fm.Update
	}
	out["remove"] = fm.Remove
	out["new"] = fm.New
	out["upsert"] = fm.Upsert
	return out
}
