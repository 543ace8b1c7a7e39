package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Testdata(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			assert.NotEmpty(t, s.Name)
			assert.NotEmpty(t, s.Steps)
		})
	}
}

func TestParseScenario_Defaults(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: defaults
description: database falls back to test
collection: users
steps:
  - op: count
`))
	require.NoError(t, err)
	assert.Equal(t, "test", s.Database)
	assert.Equal(t, "step 0 (count)", s.Steps[0].Label(0))
}

func TestParseScenario_Chain(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: chain
description: chain entries keep their order
collection: users
steps:
  - name: sorted
    chain:
      - filter: {age: {$gt: 18}}
      - sort: {age: -1}
      - limit: 2
      - multi:
    op: toArray
`))
	require.NoError(t, err)
	chain := s.Steps[0].Chain
	require.Len(t, chain, 4)
	assert.Contains(t, chain[0], "filter")
	assert.Equal(t, 2, chain[2]["limit"])
	v, ok := chain[3]["multi"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, "sorted", s.Steps[0].Label(0))
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\ncollection: c\nsteps:\n  - op: count\n    expects: {count: 1}\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: d\ncollection: c\nsteps:\n  - op: count\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\ncollection: c\nsteps:\n  - op: count\n",
			want: "description is required",
		},
		{
			name: "missing collection",
			yaml: "name: x\ndescription: d\nsteps:\n  - op: count\n",
			want: "collection is required",
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: d\ncollection: c\n",
			want: "steps list is required",
		},
		{
			name: "missing op",
			yaml: "name: x\ndescription: d\ncollection: c\nsteps:\n  - name: nothing\n",
			want: "op is required",
		},
		{
			name: "unknown op",
			yaml: "name: x\ndescription: d\ncollection: c\nsteps:\n  - op: drop\n",
			want: `unknown op "drop"`,
		},
		{
			name: "update without doc",
			yaml: "name: x\ndescription: d\ncollection: c\nsteps:\n  - op: update\n",
			want: "doc is required for update",
		},
		{
			name: "insert with doc and docs",
			yaml: "name: x\ndescription: d\ncollection: c\nsteps:\n  - op: insert\n    doc: {a: 1}\n    docs: [{a: 2}]\n",
			want: "exactly one of doc or docs",
		},
		{
			name: "two actions in one entry",
			yaml: "name: x\ndescription: d\ncollection: c\nsteps:\n  - op: count\n    chain:\n      - {skip: 1, limit: 2}\n",
			want: "expected exactly one action, got 2",
		},
		{
			name: "unknown action",
			yaml: "name: x\ndescription: d\ncollection: c\nsteps:\n  - op: count\n    chain:\n      - where: {a: 1}\n",
			want: "steps[0].chain[0]",
		},
		{
			name: "unknown error code",
			yaml: "name: x\ndescription: d\ncollection: c\nsteps:\n  - op: count\n    expect: {error: BOOM}\n",
			want: `unknown error code "BOOM"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
