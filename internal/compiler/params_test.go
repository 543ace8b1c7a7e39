package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/errs"
)

func act(k actionlog.Kind, args ...any) actionlog.Action {
	return actionlog.Action{Kind: k, Args: args}
}

func logOf(actions ...actionlog.Action) actionlog.Log {
	var l actionlog.Log
	for _, a := range actions {
		l = l.Append(a)
	}
	return l
}

// users starts every log the way the client factory does.
func users(actions ...actionlog.Action) actionlog.Log {
	return logOf(append([]actionlog.Action{act(actionlog.KindCollection, "users")}, actions...)...)
}

func TestResolve_Defaults(t *testing.T) {
	p, err := Resolve(KindQuery, users(), StandardDefaults())
	require.NoError(t, err)

	assert.Equal(t, driver.Target{
		Addr:         DefaultServer,
		Database:     DefaultDatabase,
		WriteConcern: driver.WriteConcern{Acknowledged: true},
	}, p.Target)
	assert.Equal(t, "users", p.Collection)
	assert.Equal(t, driver.M{}, p.Filter)
	assert.Equal(t, driver.M{}, p.Fields)
	assert.Equal(t, driver.M{}, p.Options)
	assert.False(t, p.Single, "queries return every match by default")
	assert.False(t, p.Multi, "writes touch one document by default")
	assert.True(t, p.Safe)
	assert.False(t, p.HasSort)
	assert.False(t, p.HasSkip)
	assert.Equal(t, int64(0), p.Skip)
	assert.False(t, p.HasLimit)
}

func TestResolve_EmptyDefaultsFallBack(t *testing.T) {
	p, err := Resolve(KindQuery, users(), Defaults{})
	require.NoError(t, err)
	assert.Equal(t, DefaultServer, p.Target.Addr)
	assert.Equal(t, DefaultDatabase, p.Target.Database)
}

func TestResolve_Target(t *testing.T) {
	l := users(
		act(actionlog.KindDB, "first"),
		act(actionlog.KindServer, "a:1"),
		act(actionlog.KindDB, "second"),
		act(actionlog.KindServer, "b:2"),
		act(actionlog.KindUnsafe),
	)
	p, err := Resolve(KindQuery, l, Defaults{Server: "x:0", Database: "fallback"})
	require.NoError(t, err)

	assert.Equal(t, "b:2", p.Target.Addr, "last server wins")
	assert.Equal(t, "first", p.Target.Database, "first database wins")
	assert.False(t, p.Target.WriteConcern.Acknowledged)
}

func TestResolve_Flags(t *testing.T) {
	tests := []struct {
		name       string
		actions    []actionlog.Action
		wantSingle bool
		wantMulti  bool
	}{
		{"none", nil, false, false},
		{"one", []actionlog.Action{act(actionlog.KindOne)}, true, false},
		{"multi", []actionlog.Action{act(actionlog.KindMulti)}, false, true},
		{"one then multi", []actionlog.Action{act(actionlog.KindOne), act(actionlog.KindMulti)}, false, true},
		{"multi then one", []actionlog.Action{act(actionlog.KindMulti), act(actionlog.KindOne)}, true, false},
		{"one(false)", []actionlog.Action{act(actionlog.KindOne, false)}, false, true},
		{"multi(false)", []actionlog.Action{act(actionlog.KindMulti, false)}, true, false},
		{"one(true)", []actionlog.Action{act(actionlog.KindOne, true)}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Resolve(KindQuery, users(tt.actions...), StandardDefaults())
			require.NoError(t, err)
			assert.Equal(t, tt.wantSingle, p.Single, "single")
			assert.Equal(t, tt.wantMulti, p.Multi, "multi")
		})
	}
}

func TestResolve_Safe(t *testing.T) {
	tests := []struct {
		name    string
		actions []actionlog.Action
		want    bool
	}{
		{"default", nil, true},
		{"unsafe", []actionlog.Action{act(actionlog.KindUnsafe)}, false},
		{"unsafe then safe", []actionlog.Action{act(actionlog.KindUnsafe), act(actionlog.KindSafe)}, true},
		{"safe(false)", []actionlog.Action{act(actionlog.KindSafe, false)}, false},
		{"unsafe(false)", []actionlog.Action{act(actionlog.KindUnsafe, false)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Resolve(KindRemove, users(tt.actions...), StandardDefaults())
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Safe)
			assert.Equal(t, tt.want, p.Target.WriteConcern.Acknowledged)
		})
	}
}

func TestResolve_FilterMerge(t *testing.T) {
	tests := []struct {
		name    string
		filters []driver.M
		want    driver.M
	}{
		{"disjoint", []driver.M{{"a": 1}, {"b": 2}}, driver.M{"a": 1, "b": 2}},
		{"later scalar wins", []driver.M{{"a": 1}, {"a": 2}}, driver.M{"a": 2}},
		{
			"or lists concatenate",
			[]driver.M{{"$or": []any{driver.M{"x": 1}}}, {"$or": []any{driver.M{"y": 1}}}},
			driver.M{"$or": []any{driver.M{"x": 1}, driver.M{"y": 1}}},
		},
		{"nested", []driver.M{{"a": driver.M{"$gt": 1}}, {"a": driver.M{"$lt": 5}}}, driver.M{"a": driver.M{"$gt": 1, "$lt": 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var actions []actionlog.Action
			for _, f := range tt.filters {
				actions = append(actions, act(actionlog.KindFilter, f))
			}
			p, err := Resolve(KindQuery, users(actions...), StandardDefaults())
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Filter)
		})
	}
}

func TestResolve_ForkedLogsStayIndependent(t *testing.T) {
	base := users(act(actionlog.KindFilter, driver.M{"shared": true}))
	left := base.Append(act(actionlog.KindFilter, driver.M{"x": 1}))
	right := base.Append(act(actionlog.KindFilter, driver.M{"y": 1}))

	pl, err := Resolve(KindQuery, left, StandardDefaults())
	require.NoError(t, err)
	pr, err := Resolve(KindQuery, right, StandardDefaults())
	require.NoError(t, err)

	assert.Equal(t, driver.M{"shared": true, "x": 1}, pl.Filter)
	assert.Equal(t, driver.M{"shared": true, "y": 1}, pr.Filter)
}

func TestResolve_Sort(t *testing.T) {
	asc := func(k string) driver.SortKey { return driver.SortKey{Key: k, Order: 1} }
	desc := func(k string) driver.SortKey { return driver.SortKey{Key: k, Order: -1} }

	tests := []struct {
		name  string
		sorts []any
		want  driver.Sort
	}{
		{"single call", []any{driver.Sort{asc("a"), desc("b")}}, driver.Sort{asc("a"), desc("b")}},
		{"later call first", []any{driver.Sort{asc("a")}, driver.Sort{desc("b")}}, driver.Sort{desc("b"), asc("a")}},
		{
			"three calls",
			[]any{driver.Sort{asc("a")}, driver.Sort{asc("b")}, driver.Sort{asc("c")}},
			driver.Sort{asc("c"), asc("b"), asc("a")},
		},
		{"repeated key keeps latest", []any{driver.Sort{asc("a"), asc("b")}, driver.Sort{desc("a")}}, driver.Sort{desc("a"), asc("b")}},
		{"field names", []any{"name", "-age"}, driver.Sort{desc("age"), asc("name")}},
		{"ordered document", []any{bson.D{{Key: "z", Value: 1}, {Key: "a", Value: -1}}}, driver.Sort{asc("z"), desc("a")}},
		{"map in key order", []any{driver.M{"b": "desc", "a": 1}}, driver.Sort{asc("a"), desc("b")}},
		{"empty list", []any{driver.Sort{}}, driver.Sort{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var actions []actionlog.Action
			for _, s := range tt.sorts {
				actions = append(actions, act(actionlog.KindSort, s))
			}
			p, err := Resolve(KindQuery, users(actions...), StandardDefaults())
			require.NoError(t, err)
			assert.True(t, p.HasSort)
			assert.Equal(t, tt.want, p.Sort)
		})
	}
}

func TestResolve_SkipAndLimit(t *testing.T) {
	l := users(
		act(actionlog.KindSkip, 5),
		act(actionlog.KindLimit, 10),
		act(actionlog.KindSkip, int64(3)),
		act(actionlog.KindLimit, 2.0),
	)
	p, err := Resolve(KindQuery, l, StandardDefaults())
	require.NoError(t, err)

	assert.True(t, p.HasSkip)
	assert.Equal(t, int64(8), p.Skip, "skips add up")
	assert.True(t, p.HasLimit)
	assert.Equal(t, int64(2), p.Limit, "last limit wins")
}

func TestResolve_ExplicitZeroSkipIsRecorded(t *testing.T) {
	p, err := Resolve(KindQuery, users(act(actionlog.KindSkip, 0)), StandardDefaults())
	require.NoError(t, err)
	assert.True(t, p.HasSkip)
	assert.Equal(t, int64(0), p.Skip)
}

func TestResolve_InvalidLog(t *testing.T) {
	tests := []struct {
		name     string
		log      actionlog.Log
		wantCode string
	}{
		{"missing collection", logOf(act(actionlog.KindFilter, driver.M{})), ErrMissingCollection},
		{"empty collection", logOf(act(actionlog.KindCollection, "")), ErrInvalidTarget},
		{"numeric db", users(act(actionlog.KindDB, 3)), ErrInvalidTarget},
		{"filter not a document", users(act(actionlog.KindFilter, "a=1")), ErrInvalidRecord},
		{"fields nil", users(act(actionlog.KindFields)), ErrInvalidRecord},
		{"bad sort order", users(act(actionlog.KindSort, driver.Sort{{Key: "a", Order: 2}})), ErrInvalidSort},
		{"bad sort type", users(act(actionlog.KindSort, 7)), ErrInvalidSort},
		{"limit not a number", users(act(actionlog.KindLimit, "10")), ErrInvalidNumber},
		{"flag not a bool", users(act(actionlog.KindOne, "yes")), ErrInvalidFlag},
		{"two arguments", users(act(actionlog.KindLimit, 1, 2)), ErrTooManyArgs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := Validate(tt.log)
			require.NotEmpty(t, vs)
			assert.Equal(t, tt.wantCode, vs[0].Code)

			_, err := Resolve(KindQuery, tt.log, StandardDefaults())
			require.Error(t, err)
			assert.True(t, errs.IsInvocation(err))
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	l := logOf(
		act(actionlog.KindFilter, 1),
		act(actionlog.KindLimit, "x"),
	)
	vs := Validate(l)
	require.Len(t, vs, 3)
	assert.Equal(t, ErrInvalidRecord, vs[0].Code)
	assert.Equal(t, 0, vs[0].Index)
	assert.Equal(t, ErrInvalidNumber, vs[1].Code)
	assert.Equal(t, 1, vs[1].Index)
	assert.Equal(t, ErrMissingCollection, vs[2].Code)
	assert.Contains(t, vs[1].Error(), "[E105] action 1: limit")
}
