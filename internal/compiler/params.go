// Package compiler turns an action log into exactly one collaborator call.
//
// Resolve folds the log into Params with the combinators of package
// actionlog. One plan type per operation kind then holds those Params plus
// the caller's arguments and issues its single call through Run.
package compiler

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/errs"
)

// Kind names an operation.
type Kind string

const (
	KindQuery         Kind = "query"
	KindRemove        Kind = "remove"
	KindUpdate        Kind = "update"
	KindUpsert        Kind = "upsert"
	KindInsert        Kind = "insert"
	KindSave          Kind = "save"
	KindCount         Kind = "count"
	KindFindAndModify Kind = "findAndModify"
)

// Defaults fill in the target when the log names no server or database.
type Defaults struct {
	Server   string `json:"server" yaml:"server"`
	Database string `json:"database" yaml:"database"`
}

// DefaultServer and DefaultDatabase apply when nothing else is configured.
const (
	DefaultServer   = "localhost:27017"
	DefaultDatabase = "test"
)

// StandardDefaults returns the built-in defaults.
func StandardDefaults() Defaults {
	return Defaults{Server: DefaultServer, Database: DefaultDatabase}
}

// Params is the resolved parameter set for one compilation. It is built
// fresh on every call to Resolve.
type Params struct {
	Target     driver.Target
	Collection string
	Filter     driver.M
	Fields     driver.M
	Options    driver.M

	Sort    driver.Sort
	HasSort bool

	Skip    int64
	HasSkip bool

	Limit    int64
	HasLimit bool

	// Single is the query gate: one() selects the first match only.
	Single bool
	// Multi is the write gate: remove, update and findAndModify touch one
	// document unless multi() was chained.
	Multi bool
	Safe  bool
}

// Resolve folds l into Params for an operation of kind k. A malformed log
// is an invocation error and nothing is resolved.
func Resolve(k Kind, l actionlog.Log, d Defaults) (Params, error) {
	if vs := Validate(l); len(vs) > 0 {
		return Params{}, errs.Invocation(string(k), "%s", joinValidation(vs))
	}
	if d.Server == "" {
		d.Server = DefaultServer
	}
	if d.Database == "" {
		d.Database = DefaultDatabase
	}

	p := Params{
		Collection: actionlog.FindOne(l, actionlog.KindCollection, "").(string),
		Filter:     actionlog.MergeAll(l, actionlog.KindFilter, nil),
		Fields:     actionlog.MergeAll(l, actionlog.KindFields, nil),
		Options:    actionlog.MergeAll(l, actionlog.KindOptions, nil),
		Single:     !actionlog.ResolveFlag(l, actionlog.KindMulti, actionlog.KindOne),
		Multi:      !actionlog.ResolveFlag(l, actionlog.KindOne, actionlog.KindMulti),
		Safe:       actionlog.ResolveFlag(l, actionlog.KindSafe, actionlog.KindUnsafe),
	}

	addr := d.Server
	if v, ok := actionlog.Last(l, actionlog.KindServer); ok {
		addr = v.(string)
	}
	p.Target = driver.Target{
		Addr:         addr,
		Database:     actionlog.FindOne(l, actionlog.KindDB, d.Database).(string),
		WriteConcern: driver.WriteConcern{Acknowledged: p.Safe},
	}

	if actionlog.Has(l, actionlog.KindSort) {
		p.HasSort = true
		p.Sort = resolveSort(actionlog.PrependConcat(l, actionlog.KindSort))
	}
	if actionlog.Has(l, actionlog.KindSkip) {
		p.HasSkip = true
		p.Skip = actionlog.Sum(l, actionlog.KindSkip)
	}
	if v, ok := actionlog.Last(l, actionlog.KindLimit); ok {
		p.HasLimit = true
		p.Limit = actionlog.ToInt64(v)
	}
	return p, nil
}

// resolveSort flattens the prepend-concatenated sort arguments. When a key
// repeats, its first occurrence (from the most recent call) wins.
func resolveSort(items []any) driver.Sort {
	out := driver.Sort{}
	seen := make(map[string]bool)
	for _, item := range items {
		// Validate has already accepted every argument.
		keys, _ := SortKeys(item)
		for _, k := range keys {
			if seen[k.Key] {
				continue
			}
			seen[k.Key] = true
			out = append(out, k)
		}
	}
	return out
}

// writeOptions builds the collaborator options for remove, update, insert
// and save.
func (p Params) writeOptions() driver.WriteOptions {
	upsert, _ := p.Options["upsert"].(bool)
	return driver.WriteOptions{
		Multi:  p.Multi,
		Upsert: upsert,
		Safe:   p.Safe,
		Extra:  p.Options,
	}
}

// asOrderedDoc returns the entries of a record argument. bson.D keeps its
// order; maps are taken in sorted key order.
func asOrderedDoc(v any) (primitive.D, bool) {
	switch d := v.(type) {
	case primitive.D:
		return d, true
	case primitive.M:
		return sortedDoc(d), true
	case map[string]any:
		return sortedDoc(d), true
	}
	return nil, false
}

func sortedDoc(m map[string]any) primitive.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(primitive.D, len(keys))
	for i, k := range keys {
		d[i] = primitive.E{Key: k, Value: m[k]}
	}
	return d
}
