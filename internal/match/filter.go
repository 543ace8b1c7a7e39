// Package match evaluates document-store filters, update documents,
// projections and sorts against in-memory documents.
//
// It is the query engine behind the embedded backends. Inputs are
// normalized with bsonx first, so callers may pass bson.M, bson.D, typed
// slices or any integer width.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/magnolia/internal/bsonx"
	"github.com/roach88/magnolia/internal/merge"
)

// Filter is a compiled filter document.
type Filter struct {
	root map[string]any
}

// Compile validates filter and prepares it for repeated matching. A nil or
// empty filter matches every document.
func Compile(filter map[string]any) (*Filter, error) {
	root, _ := bsonx.Normalize(filter).(map[string]any)
	if root == nil {
		root = map[string]any{}
	}
	if err := validate(root); err != nil {
		return nil, err
	}
	return &Filter{root: root}, nil
}

// Match reports whether doc satisfies f.
func (f *Filter) Match(doc map[string]any) bool {
	ok, _ := matchDoc(doc, f.root)
	return ok
}

// Match compiles filter and tests doc against it.
func Match(doc, filter map[string]any) (bool, error) {
	f, err := Compile(filter)
	if err != nil {
		return false, err
	}
	return f.Match(doc), nil
}

// validate walks the filter once so that unknown operators surface as
// errors before any document is scanned.
func validate(filter map[string]any) error {
	for key, cond := range filter {
		if strings.HasPrefix(key, "$") {
			switch key {
			case "$and", "$or", "$nor":
				clauses, ok := merge.AsList(cond)
				if !ok || len(clauses) == 0 {
					return fmt.Errorf("%s requires a non-empty array", key)
				}
				for _, c := range clauses {
					sub, ok := c.(map[string]any)
					if !ok {
						return fmt.Errorf("%s entries must be documents", key)
					}
					if err := validate(sub); err != nil {
						return err
					}
				}
			default:
				return fmt.Errorf("unknown top level operator: %s", key)
			}
			continue
		}
		ops, isOps := operatorDoc(cond)
		if !isOps {
			continue
		}
		for op, arg := range ops {
			switch op {
			case "$eq", "$ne", "$gt", "$gte", "$lt", "$lte", "$options":
			case "$in", "$nin":
				if _, ok := merge.AsList(arg); !ok {
					return fmt.Errorf("%s needs an array", op)
				}
			case "$exists":
			case "$regex":
				if _, err := compileRegex(arg, ops["$options"]); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown operator: %s", op)
			}
		}
	}
	return nil
}

// operatorDoc reports whether cond is an operator expression such as
// {$gt: 1}. A record mixing operator and plain keys is a literal.
func operatorDoc(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchDoc(doc map[string]any, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		var ok bool
		switch key {
		case "$and":
			ok = true
			for _, c := range asSlice(cond) {
				if m, _ := matchDoc(doc, c.(map[string]any)); !m {
					ok = false
					break
				}
			}
		case "$or":
			for _, c := range asSlice(cond) {
				if m, _ := matchDoc(doc, c.(map[string]any)); m {
					ok = true
					break
				}
			}
		case "$nor":
			ok = true
			for _, c := range asSlice(cond) {
				if m, _ := matchDoc(doc, c.(map[string]any)); m {
					ok = false
					break
				}
			}
		default:
			ok = matchField(lookup(doc, split(key)), cond)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchField(values []any, cond any) bool {
	ops, isOps := operatorDoc(cond)
	if !isOps {
		return matchEq(values, cond)
	}
	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = matchEq(values, arg)
		case "$ne":
			ok = !matchEq(values, arg)
		case "$gt":
			ok = matchCmp(values, arg, func(c int) bool { return c > 0 })
		case "$gte":
			ok = matchCmp(values, arg, func(c int) bool { return c >= 0 })
		case "$lt":
			ok = matchCmp(values, arg, func(c int) bool { return c < 0 })
		case "$lte":
			ok = matchCmp(values, arg, func(c int) bool { return c <= 0 })
		case "$in":
			ok = matchIn(values, arg)
		case "$nin":
			ok = !matchIn(values, arg)
		case "$exists":
			ok = (len(values) > 0) == truthy(arg)
		case "$regex":
			re, err := compileRegex(arg, ops["$options"])
			ok = err == nil && matchRegex(values, re)
		case "$options":
			ok = true
		}
		if !ok {
			return false
		}
	}
	return true
}

// candidates expands array values by one level so that {tags: "a"}
// matches {tags: ["a", "b"]} while {tags: ["a", "b"]} still matches the
// whole array.
func candidates(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
		if arr := asSlice(v); arr != nil {
			out = append(out, arr...)
		}
	}
	return out
}

func matchEq(values []any, want any) bool {
	if re, ok := want.(primitive.Regex); ok {
		compiled, err := compileRegex(re, nil)
		return err == nil && matchRegex(values, compiled)
	}
	if want == nil && len(values) == 0 {
		return true
	}
	for _, v := range candidates(values) {
		if Equal(v, want) {
			return true
		}
	}
	return false
}

func matchCmp(values []any, bound any, accept func(int) bool) bool {
	for _, v := range candidates(values) {
		if rank(v) != rank(bound) {
			continue
		}
		if accept(Compare(v, bound)) {
			return true
		}
	}
	return false
}

func matchIn(values []any, arg any) bool {
	list, _ := merge.AsList(arg)
	for _, want := range list {
		if matchEq(values, want) {
			return true
		}
	}
	return false
}

func matchRegex(values []any, re *regexp.Regexp) bool {
	for _, v := range candidates(values) {
		if s, ok := v.(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

func compileRegex(pattern, options any) (*regexp.Regexp, error) {
	var expr, flags string
	switch p := pattern.(type) {
	case string:
		expr = p
	case primitive.Regex:
		expr, flags = p.Pattern, p.Options
	default:
		return nil, fmt.Errorf("$regex has to be a string")
	}
	if o, ok := options.(string); ok {
		flags = o
	}
	var prefix strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			prefix.WriteRune(f)
		case 'x', 'u':
		default:
			return nil, fmt.Errorf("invalid regex flag %q", f)
		}
	}
	if prefix.Len() > 0 {
		expr = "(?" + prefix.String() + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile $regex: %w", err)
	}
	return re, nil
}

// truthy follows the store's coercion for flags like $exists and
// projection values: false, 0 and null are false.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	}
	if f, ok := toFloat64(v); ok {
		return f != 0
	}
	return true
}
