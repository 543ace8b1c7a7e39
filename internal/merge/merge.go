// Package merge implements the recursive structural union used to fold
// filter, fields and options actions.
//
// For a pairwise merge of a and b: keys present on one side copy through
// unchanged; keys present on both sides concatenate when both values are
// sequences (a then b), recurse when both are records, and otherwise take
// b's value. Merge is pure: every merged level is freshly allocated and
// the inputs are never mutated.
package merge

import (
	"reflect"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Merge folds objs left to right starting from an empty record.
func Merge(objs ...map[string]any) map[string]any {
	out := map[string]any{}
	for _, obj := range objs {
		out = pair(out, obj)
	}
	return out
}

// Pair merges exactly two records.
func Pair(a, b map[string]any) map[string]any {
	return pair(a, b)
}

func pair(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, bv := range b {
		av, ok := out[k]
		if !ok {
			out[k] = bv
			continue
		}
		out[k] = value(av, bv)
	}
	return out
}

func value(a, b any) any {
	if la, ok := AsList(a); ok {
		if lb, ok := AsList(b); ok {
			joined := make([]any, 0, len(la)+len(lb))
			joined = append(joined, la...)
			return append(joined, lb...)
		}
		return b
	}
	if ra, ok := AsRecord(a); ok {
		if rb, ok := AsRecord(b); ok {
			return pair(ra, rb)
		}
	}
	return b
}

// AsRecord reports whether v is a record and returns it as a plain map.
// bson.D is flattened; its key order is not preserved.
func AsRecord(v any) (map[string]any, bool) {
	switch r := v.(type) {
	case map[string]any:
		return r, true
	case primitive.M:
		return map[string]any(r), true
	case primitive.D:
		out := make(map[string]any, len(r))
		for _, e := range r {
			out[e.Key] = e.Value
		}
		return out, true
	default:
		return nil, false
	}
}

// AsList reports whether v is a sequence and returns its elements. Byte
// slices and fixed-size arrays (ObjectIDs among them) are scalars.
func AsList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case primitive.A:
		return []any(l), true
	case []byte, nil:
		return nil, false
	case primitive.D:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
