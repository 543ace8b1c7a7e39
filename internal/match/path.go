package match

import (
	"fmt"
	"strconv"
	"strings"
)

// lookup resolves a dotted path against v and returns every value it
// reaches. Arrays met along the way fan out over their elements, and a
// numeric segment may also index into an array. Missing paths yield no
// values.
func lookup(v any, parts []string) []any {
	if len(parts) == 0 {
		return []any{v}
	}
	if m := asMap(v); m != nil {
		next, ok := m[parts[0]]
		if !ok {
			return nil
		}
		return lookup(next, parts[1:])
	}
	if arr := asSlice(v); arr != nil {
		var out []any
		if i, err := strconv.Atoi(parts[0]); err == nil && i >= 0 && i < len(arr) {
			out = append(out, lookup(arr[i], parts[1:])...)
		}
		for _, elem := range arr {
			if asMap(elem) != nil {
				out = append(out, lookup(elem, parts)...)
			}
		}
		return out
	}
	return nil
}

func split(path string) []string {
	return strings.Split(path, ".")
}

// Get returns the value at a dotted path without fanning out over arrays.
func Get(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range split(path) {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set writes v at a dotted path, creating intermediate records as needed.
func Set(doc map[string]any, path string, v any) error {
	parts := split(path)
	cur := doc
	for i, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok || next == nil {
			m := map[string]any{}
			cur[part] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("cannot create field %q in non-document %q", parts[i+1], strings.Join(parts[:i+1], "."))
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = v
	return nil
}

// Unset removes the value at a dotted path. Missing paths are ignored.
func Unset(doc map[string]any, path string) {
	parts := split(path)
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}
