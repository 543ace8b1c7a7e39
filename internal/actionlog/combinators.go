package actionlog

import (
	"math"

	"github.com/roach88/magnolia/internal/merge"
)

// FindAll returns the first argument of every action of kind k, oldest
// first.
func FindAll(l Log, k Kind) []any {
	var out []any
	for _, a := range l.Actions() {
		if a.Kind == k {
			out = append(out, a.Arg())
		}
	}
	return out
}

// FindOne returns the first argument of the earliest action of kind k, or
// fallback when there is none.
func FindOne(l Log, k Kind, fallback any) any {
	for _, a := range l.Actions() {
		if a.Kind == k {
			return a.Arg()
		}
	}
	return fallback
}

// Last returns the first argument of the most recent action of kind k.
func Last(l Log, k Kind) (any, bool) {
	var (
		v     any
		found bool
	)
	l.newestFirst(func(a Action) bool {
		if a.Kind == k {
			v, found = a.Arg(), true
			return false
		}
		return true
	})
	return v, found
}

// Has reports whether any action of kind k was recorded.
func Has(l Log, k Kind) bool {
	_, ok := Last(l, k)
	return ok
}

// Sum adds the first arguments of every action of kind k, starting at 0.
// Floating point arguments are truncated toward zero.
func Sum(l Log, k Kind) int64 {
	var total int64
	for _, v := range FindAll(l, k) {
		total += ToInt64(v)
	}
	return total
}

// PrependConcat folds every action of kind k so that each newer argument
// list lands in front of the accumulated one. A non-list argument counts
// as a list of one element.
func PrependConcat(l Log, k Kind) []any {
	var acc []any
	for _, v := range FindAll(l, k) {
		items, ok := merge.AsList(v)
		if !ok {
			items = []any{v}
		}
		next := make([]any, 0, len(items)+len(acc))
		next = append(next, items...)
		acc = append(next, acc...)
	}
	return acc
}

// MergeAll deep-merges seed and then the first argument of every action of
// kind k in recording order. Arguments that are not records are ignored.
// The result is always a fresh record.
func MergeAll(l Log, k Kind, seed map[string]any) map[string]any {
	objs := []map[string]any{seed}
	for _, v := range FindAll(l, k) {
		if r, ok := merge.AsRecord(v); ok {
			objs = append(objs, r)
		}
	}
	return merge.Merge(objs...)
}

// ResolveFlag decides a boolean gate between a good and a bad action. The
// most recent action of either kind wins. A boolean argument is taken at
// face value for good and negated for bad, so good(false) and bad(false)
// both flip the gate; any other argument leaves good open and bad closed.
// With neither recorded the gate is open.
func ResolveFlag(l Log, good, bad Kind) bool {
	result := true
	l.newestFirst(func(a Action) bool {
		switch a.Kind {
		case good:
			b, isBool := a.Arg().(bool)
			result = !(isBool && !b)
			return false
		case bad:
			b, isBool := a.Arg().(bool)
			result = isBool && !b
			return false
		}
		return true
	})
	return result
}

// ToInt64 converts any Go number to int64, truncating floats toward zero.
// Anything else is 0.
func ToInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// IsNumber reports whether v is a Go integer or floating point value that
// Sum accepts.
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}
