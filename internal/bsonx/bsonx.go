// Package bsonx converts between magnolia documents and BSON.
//
// Embedded backends persist documents as BSON blobs so that ObjectIDs,
// dates and binaries survive a round trip. Decoded values are normalized
// to plain Go shapes: records become map[string]any, arrays and typed
// slices []any, and 32-bit or platform integers int64.
package bsonx

import (
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/magnolia/internal/merge"
)

// IDKey is the identifier field every stored document carries.
const IDKey = "_id"

// Encode marshals doc to BSON.
func Encode(doc map[string]any) ([]byte, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

// Decode unmarshals a BSON blob into a normalized document.
func Decode(raw []byte) (map[string]any, error) {
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return Normalize(m).(map[string]any), nil
}

// Normalize rewrites v recursively into plain Go shapes. It never
// mutates v.
func Normalize(v any) any {
	switch val := v.(type) {
	case primitive.M:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case primitive.A:
		return normalizeSlice(val)
	case []any:
		return normalizeSlice(val)
	case int:
		return int64(val)
	case int32:
		return int64(val)
	default:
		if l, ok := merge.AsList(v); ok {
			return normalizeSlice(l)
		}
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, e := range m {
		out[k] = Normalize(e)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = Normalize(e)
	}
	return out
}

// Clone returns a deep, normalized copy of doc by round-tripping it
// through BSON.
func Clone(doc map[string]any) (map[string]any, error) {
	raw, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// EnsureID assigns a fresh ObjectID to doc when it has no _id and returns
// the identifier. doc is modified in place so callers see the generated id.
func EnsureID(doc map[string]any) any {
	if id, ok := doc[IDKey]; ok && id != nil {
		return id
	}
	id := primitive.NewObjectID()
	doc[IDKey] = id
	return id
}

// IDString renders an identifier as a stable storage key. ObjectIDs use
// their hex form; everything else is rendered as canonical extended JSON
// of a one-field document so that 1 and "1" stay distinct.
func IDString(id any) (string, error) {
	if oid, ok := id.(primitive.ObjectID); ok {
		return "oid:" + oid.Hex(), nil
	}
	raw, err := bson.MarshalExtJSON(bson.M{"v": normalizeID(id)}, true, false)
	if err != nil {
		return "", fmt.Errorf("render id: %w", err)
	}
	return "ext:" + string(raw), nil
}

// normalizeID folds integer widths together so that an id inserted as int
// is found again when looked up as int64. Document ids get sorted keys so
// the rendering does not depend on map iteration order.
func normalizeID(id any) any {
	switch v := Normalize(id).(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := make(bson.D, 0, len(keys))
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: normalizeID(v[k])})
		}
		return d
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeID(e)
		}
		return out
	default:
		return v
	}
}
