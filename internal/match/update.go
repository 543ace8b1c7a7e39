package match

import (
	"fmt"
	"strings"

	"github.com/roach88/magnolia/internal/bsonx"
	"github.com/roach88/magnolia/internal/merge"
)

// Update is a validated update document: either a set of update operators
// or a whole replacement.
type Update struct {
	ops         map[string]map[string]any
	replacement map[string]any
}

// CompileUpdate validates update. Operator and plain keys cannot be mixed.
func CompileUpdate(update map[string]any) (*Update, error) {
	doc, _ := bsonx.Normalize(update).(map[string]any)
	if doc == nil {
		doc = map[string]any{}
	}
	var hasOps, hasPlain bool
	for k := range doc {
		if strings.HasPrefix(k, "$") {
			hasOps = true
		} else {
			hasPlain = true
		}
	}
	if hasOps && hasPlain {
		return nil, fmt.Errorf("update document mixes operators and fields")
	}
	if !hasOps {
		return &Update{replacement: doc}, nil
	}

	ops := make(map[string]map[string]any, len(doc))
	for op, arg := range doc {
		switch op {
		case "$set", "$unset", "$inc", "$push", "$setOnInsert":
		default:
			return nil, fmt.Errorf("unknown update operator: %s", op)
		}
		fields, ok := arg.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s requires a document", op)
		}
		for path := range fields {
			if path == bsonx.IDKey && op != "$setOnInsert" {
				return nil, fmt.Errorf("%s cannot modify _id", op)
			}
		}
		ops[op] = fields
	}
	return &Update{ops: ops}, nil
}

// IsReplacement reports whether u replaces whole documents.
func (u *Update) IsReplacement() bool {
	return u.ops == nil
}

// Apply returns a modified copy of doc. inserting is true when doc is a
// fresh upsert seed, which enables $setOnInsert. doc is not mutated.
func (u *Update) Apply(doc map[string]any, inserting bool) (map[string]any, error) {
	if u.IsReplacement() {
		out, _ := bsonx.Normalize(u.replacement).(map[string]any)
		if id, ok := doc[bsonx.IDKey]; ok {
			if newID, has := out[bsonx.IDKey]; has && !Equal(id, newID) {
				return nil, fmt.Errorf("replacement cannot change _id")
			}
			out[bsonx.IDKey] = id
		}
		return out, nil
	}

	out, _ := bsonx.Normalize(doc).(map[string]any)
	if fields, ok := u.ops["$set"]; ok {
		for path, v := range fields {
			if err := Set(out, path, v); err != nil {
				return nil, err
			}
		}
	}
	if fields, ok := u.ops["$setOnInsert"]; ok && inserting {
		for path, v := range fields {
			if err := Set(out, path, v); err != nil {
				return nil, err
			}
		}
	}
	for path := range u.ops["$unset"] {
		Unset(out, path)
	}
	for path, delta := range u.ops["$inc"] {
		cur, exists := Get(out, path)
		next, err := increment(cur, exists, delta, path)
		if err != nil {
			return nil, err
		}
		if err := Set(out, path, next); err != nil {
			return nil, err
		}
	}
	for path, v := range u.ops["$push"] {
		items := []any{v}
		if mod, ok := v.(map[string]any); ok {
			if each, has := mod["$each"]; has {
				list, isList := merge.AsList(each)
				if !isList {
					return nil, fmt.Errorf("$each requires an array")
				}
				items = list
			}
		}
		cur, exists := Get(out, path)
		if !exists || cur == nil {
			if err := Set(out, path, append([]any{}, items...)); err != nil {
				return nil, err
			}
			continue
		}
		arr, ok := cur.([]any)
		if !ok {
			return nil, fmt.Errorf("cannot $push to non-array field %q", path)
		}
		next := make([]any, 0, len(arr)+len(items))
		next = append(append(next, arr...), items...)
		if err := Set(out, path, next); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func increment(cur any, exists bool, delta any, path string) (any, error) {
	if _, ok := toFloat64(delta); !ok {
		return nil, fmt.Errorf("cannot $inc %q with a non-numeric value", path)
	}
	if !exists || cur == nil {
		return delta, nil
	}
	ci, curInt := toInt64(cur)
	di, deltaInt := toInt64(delta)
	if curInt && deltaInt {
		return ci + di, nil
	}
	cf, ok := toFloat64(cur)
	if !ok {
		return nil, fmt.Errorf("cannot $inc non-numeric field %q", path)
	}
	df, _ := toFloat64(delta)
	return cf + df, nil
}

// Seed builds the document an upsert starts from: the equality
// conditions of filter, including those nested in $and.
func Seed(filter map[string]any) (map[string]any, error) {
	root, _ := bsonx.Normalize(filter).(map[string]any)
	out := map[string]any{}
	if err := seed(out, root); err != nil {
		return nil, err
	}
	return out, nil
}

func seed(out, filter map[string]any) error {
	for key, cond := range filter {
		if key == "$and" {
			for _, c := range asSlice(cond) {
				if sub, ok := c.(map[string]any); ok {
					if err := seed(out, sub); err != nil {
						return err
					}
				}
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			continue
		}
		if ops, isOps := operatorDoc(cond); isOps {
			eq, ok := ops["$eq"]
			if !ok {
				continue
			}
			cond = eq
		}
		if err := Set(out, key, cond); err != nil {
			return err
		}
	}
	return nil
}
