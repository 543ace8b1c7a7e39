package harness

import (
	"fmt"
	"sort"

	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/bsonx"
	"github.com/roach88/magnolia/internal/match"
	"github.com/roach88/magnolia/internal/merge"
)

// check compares one step's outcome with its expectation and returns a
// message per mismatch. A step without expectations only has to succeed.
func check(e *Expect, v any, err error) []string {
	if e == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if e.Error != "" {
		if err == nil {
			return []string{fmt.Sprintf("expected %s error, got success", e.Error)}
		}
		if got := codeOf(err); got != e.Error {
			return []string{fmt.Sprintf("expected %s error, got %s: %v", e.Error, got, err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var out []string
	actual := bsonx.Normalize(v)

	if e.Count != nil {
		if !actionlog.IsNumber(actual) {
			out = append(out, fmt.Sprintf("expected count %d, got %T", *e.Count, actual))
		} else if n := actionlog.ToInt64(actual); n != *e.Count {
			out = append(out, fmt.Sprintf("expected count %d, got %d", *e.Count, n))
		}
	}

	if e.Null && actual != nil {
		out = append(out, fmt.Sprintf("expected no document, got %v", actual))
	}

	if e.Doc != nil {
		doc, ok := actual.(map[string]any)
		if !ok {
			out = append(out, fmt.Sprintf("expected a document, got %T", actual))
		} else if path, ok := contains(doc, bsonx.Normalize(e.Doc)); !ok {
			out = append(out, fmt.Sprintf("document mismatch at %s: got %v", path, doc))
		}
	}

	if e.Docs != nil {
		docs, ok := merge.AsList(actual)
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("expected a document list, got %T", actual))
		case len(docs) != len(e.Docs):
			out = append(out, fmt.Sprintf("expected %d documents, got %d", len(e.Docs), len(docs)))
		default:
			for i := range docs {
				if path, ok := contains(docs[i], bsonx.Normalize(e.Docs[i])); !ok {
					out = append(out, fmt.Sprintf("document %d mismatch at %s: got %v", i, path, docs[i]))
				}
			}
		}
	}
	return out
}

// contains reports whether actual includes want. Records match when every
// key of want matches; lists must have the same length and match element
// by element; scalars compare with store equality so 1 and 1.0 agree.
// On mismatch it returns the path of the first difference.
func contains(actual, want any) (string, bool) {
	return containsAt("$", actual, want)
}

func containsAt(path string, actual, want any) (string, bool) {
	if w, ok := want.(map[string]any); ok {
		a, ok := actual.(map[string]any)
		if !ok {
			return path, false
		}
		keys := make([]string, 0, len(w))
		for k := range w {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			av, present := a[k]
			if !present {
				return path + "." + k, false
			}
			if p, ok := containsAt(path+"."+k, av, w[k]); !ok {
				return p, false
			}
		}
		return "", true
	}

	if w, ok := want.([]any); ok {
		a, ok := merge.AsList(actual)
		if !ok || len(a) != len(w) {
			return path, false
		}
		for i := range w {
			if p, ok := containsAt(fmt.Sprintf("%s[%d]", path, i), a[i], w[i]); !ok {
				return p, false
			}
		}
		return "", true
	}

	if !match.Equal(actual, want) {
		return path, false
	}
	return "", true
}
