package match

import (
	"bytes"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Type brackets in BSON comparison order. Values in different brackets
// compare by bracket; values in the same bracket compare by content.
const (
	rankMinKey = iota
	rankNull
	rankNumber
	rankString
	rankObject
	rankArray
	rankBinary
	rankObjectID
	rankBool
	rankDate
	rankTimestamp
	rankRegex
	rankMaxKey
)

func rank(v any) int {
	switch v.(type) {
	case primitive.MinKey:
		return rankMinKey
	case nil, primitive.Null, primitive.Undefined:
		return rankNull
	case string, primitive.Symbol:
		return rankString
	case map[string]any, primitive.M, primitive.D:
		return rankObject
	case []any, primitive.A:
		return rankArray
	case primitive.Binary, []byte:
		return rankBinary
	case primitive.ObjectID:
		return rankObjectID
	case bool:
		return rankBool
	case primitive.DateTime, time.Time:
		return rankDate
	case primitive.Timestamp:
		return rankTimestamp
	case primitive.Regex:
		return rankRegex
	case primitive.MaxKey:
		return rankMaxKey
	}
	if _, ok := toFloat64(v); ok {
		return rankNumber
	}
	return rankMaxKey
}

// Compare orders two values the way the document store does: first by
// type bracket, then by content. Numbers of any width compare by value.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch ra {
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(stringOf(a), stringOf(b))
	case rankObject:
		return compareObjects(asMap(a), asMap(b))
	case rankArray:
		la, lb := asSlice(a), asSlice(b)
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := Compare(la[i], lb[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(la), len(lb))
	case rankBinary:
		return bytes.Compare(bytesOf(a), bytesOf(b))
	case rankObjectID:
		oa, ob := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return bytes.Compare(oa[:], ob[:])
	case rankBool:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case rankDate:
		return cmpInt64(millisOf(a), millisOf(b))
	case rankTimestamp:
		ta, tb := a.(primitive.Timestamp), b.(primitive.Timestamp)
		return primitive.CompareTimestamp(ta, tb)
	case rankRegex:
		ra, rb := a.(primitive.Regex), b.(primitive.Regex)
		if c := strings.Compare(ra.Pattern, rb.Pattern); c != 0 {
			return c
		}
		return strings.Compare(ra.Options, rb.Options)
	}
	return 0
}

// Equal reports whether a and b are the same value under Compare.
func Equal(a, b any) bool {
	return rank(a) == rank(b) && Compare(a, b) == 0
}

func compareNumbers(a, b any) int {
	ia, aInt := toInt64(a)
	ib, bInt := toInt64(b)
	if aInt && bInt {
		return cmpInt64(ia, ib)
	}
	fa, _ := toFloat64(a)
	fb, _ := toFloat64(b)
	switch {
	case math.IsNaN(fa) && math.IsNaN(fb):
		return 0
	case math.IsNaN(fa):
		return -1
	case math.IsNaN(fb):
		return 1
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

func compareObjects(a, b map[string]any) int {
	ka, kb := sortedKeys(a), sortedKeys(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if c := strings.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
		if c := Compare(a[ka[i]], b[kb[i]]); c != 0 {
			return c
		}
	}
	return cmpInt(len(ka), len(kb))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func stringOf(v any) string {
	if s, ok := v.(primitive.Symbol); ok {
		return string(s)
	}
	return v.(string)
}

func bytesOf(v any) []byte {
	if b, ok := v.(primitive.Binary); ok {
		return b.Data
	}
	return v.([]byte)
}

func millisOf(v any) int64 {
	if t, ok := v.(time.Time); ok {
		return t.UnixMilli()
	}
	return int64(v.(primitive.DateTime))
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case primitive.M:
		return m
	case primitive.D:
		out := make(map[string]any, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out
	}
	return nil
}

func asSlice(v any) []any {
	switch s := v.(type) {
	case []any:
		return s
	case primitive.A:
		return s
	}
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
