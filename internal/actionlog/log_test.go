package actionlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/magnolia/internal/errs"
)

func TestLog_ZeroValueIsEmpty(t *testing.T) {
	var l Log
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Actions())
}

func TestLog_AppendDoesNotMutateReceiver(t *testing.T) {
	var base Log
	base = base.Append(Action{Kind: KindCollection, Args: []any{"users"}})

	extended := base.Append(Action{Kind: KindLimit, Args: []any{5}})

	assert.Equal(t, 1, base.Len())
	assert.Equal(t, 2, extended.Len())
	assert.Equal(t, []Action{{Kind: KindCollection, Args: []any{"users"}}}, base.Actions())
}

func TestLog_ForksShareNothingMutable(t *testing.T) {
	var m Log
	m = m.Append(Action{Kind: KindCollection, Args: []any{"c"}})

	left := m.Append(Action{Kind: KindFilter, Args: []any{map[string]any{"x": 1}}})
	right := m.Append(Action{Kind: KindFilter, Args: []any{map[string]any{"y": 1}}})

	assert.Equal(t, map[string]any{"x": 1}, MergeAll(left, KindFilter, nil))
	assert.Equal(t, map[string]any{"y": 1}, MergeAll(right, KindFilter, nil))
	assert.Equal(t, map[string]any{}, MergeAll(m, KindFilter, nil))
}

func TestLog_AppendCopiesArgs(t *testing.T) {
	args := []any{1}
	var l Log
	l = l.Append(Action{Kind: KindSkip, Args: args})
	args[0] = 99

	assert.Equal(t, int64(1), Sum(l, KindSkip))
}

func TestLog_ActionsOldestFirst(t *testing.T) {
	var l Log
	l = l.Append(Action{Kind: KindSkip, Args: []any{1}})
	l = l.Append(Action{Kind: KindLimit, Args: []any{2}})
	l = l.Append(Action{Kind: KindOne})

	kinds := make([]Kind, 0, l.Len())
	for _, a := range l.Actions() {
		kinds = append(kinds, a.Kind)
	}
	assert.Equal(t, []Kind{KindSkip, KindLimit, KindOne}, kinds)
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		t.Run(k.String(), func(t *testing.T) {
			got, err := ParseKind(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, got)
		})
	}

	_, err := ParseKind("rewind")
	require.Error(t, err)
	assert.True(t, errs.IsInvocation(err))
	assert.Contains(t, err.Error(), `unknown action "rewind"`)
}

func TestKinds_ClosedSet(t *testing.T) {
	names := make([]string, 0)
	for _, k := range Kinds() {
		names = append(names, k.String())
	}
	assert.Equal(t, []string{
		"server", "db", "collection", "filter", "sort", "limit", "skip",
		"fields", "options", "one", "multi", "safe", "unsafe",
	}, names)
	assert.Equal(t, "invalid", Kind(200).String())
}
