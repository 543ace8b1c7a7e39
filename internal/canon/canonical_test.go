package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMarshalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"null", nil, "null"},
		{"string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"int64", int64(-100), "-100"},
		{"int32", int32(7), "7"},
		{"integral float", 3.0, "3"},
		{"fractional float", 2.5, "2.5"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"empty object", map[string]any{}, "{}"},
		{"typed slice", []int{1, 2}, "[1,2]"},
		{"bson.A", bson.A{"a", 1}, `["a",1]`},
		{"bson.D", bson.D{{Key: "z", Value: 1}, {Key: "a", Value: 2}}, `{"a":2,"z":1}`},
		{"no html escaping", "<a & b>", `"<a & b>"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalSortedKeys(t *testing.T) {
	obj := map[string]any{
		"zebra": 1,
		"alpha": map[string]any{"b": 1, "a": 2},
		"beta":  3,
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":2,"b":1},"beta":3,"zebra":1}`, string(result))
}

func TestMarshalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before
	// U+E000 in UTF-16 even though it sorts after it in UTF-8.
	obj := map[string]any{
		"\uE000":     1,
		"\U00010000": 2,
	}

	result, err := Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalNFC(t *testing.T) {
	result, err := Marshal("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalLineSeparators(t *testing.T) {
	result, err := Marshal("a\u2028b\u2029c")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))

	result, err = Marshal(`literal \u2028`)
	require.NoError(t, err)
	assert.Equal(t, `"literal \\u2028"`, string(result))
}

func TestMarshalStoreValues(t *testing.T) {
	oid, err := primitive.ObjectIDFromHex("5f1d7f3e9a7b2c0001a1b2c3")
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"object id", oid, `{"$oid":"5f1d7f3e9a7b2c0001a1b2c3"}`},
		{"datetime", primitive.DateTime(1000), `{"$date":1000}`},
		{"binary", primitive.Binary{Subtype: 0, Data: []byte("hi")}, `{"$binary":{"base64":"aGk=","subType":"00"}}`},
		{"timestamp", primitive.Timestamp{T: 5, I: 1}, `{"$timestamp":{"i":1,"t":5}}`},
		{"regex", primitive.Regex{Pattern: "^a", Options: "i"}, `{"$options":"i","$regex":"^a"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Marshal(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalRejects(t *testing.T) {
	_, err := Marshal(map[string]any{"f": func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `value for key "f"`)

	_, err = Marshal([]any{1.0, nanValue()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[1]")
}

func TestMarshalIndent(t *testing.T) {
	result, err := MarshalIndent(map[string]any{"b": 1, "a": []any{true}}, "  ")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [\n    true\n  ],\n  \"b\": 1\n}", string(result))
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}
