package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/merge"
)

// Validation error codes (E100-E199)
const (
	ErrMissingCollection = "E101" // no collection action recorded
	ErrInvalidTarget     = "E102" // server, db or collection is not a non-empty string
	ErrInvalidRecord     = "E103" // filter, fields or options is not a record
	ErrInvalidSort       = "E104" // sort key list is malformed
	ErrInvalidNumber     = "E105" // limit or skip is not a number
	ErrInvalidFlag       = "E106" // one, multi, safe or unsafe given a non-boolean
	ErrTooManyArgs       = "E107" // action recorded with more than one argument
)

// ValidationError describes one malformed action in a log.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	// Index is the position of the offending action, oldest first.
	Index int `json:"index"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] action %d: %s: %s", e.Code, e.Index, e.Field, e.Message)
}

// Validate checks the argument shape of every action in l.
// Returns all errors found (does not fail-fast).
func Validate(l actionlog.Log) []ValidationError {
	var out []ValidationError
	sawCollection := false

	for i, a := range l.Actions() {
		name := a.Kind.String()
		fail := func(code, format string, args ...any) {
			out = append(out, ValidationError{
				Field:   name,
				Message: fmt.Sprintf(format, args...),
				Code:    code,
				Index:   i,
			})
		}

		if len(a.Args) > 1 {
			fail(ErrTooManyArgs, "takes at most one argument, got %d", len(a.Args))
		}
		arg := a.Arg()

		switch a.Kind {
		case actionlog.KindServer, actionlog.KindDB, actionlog.KindCollection:
			if s, ok := arg.(string); !ok || s == "" {
				fail(ErrInvalidTarget, "must be a non-empty string, got %T", arg)
			}
			if a.Kind == actionlog.KindCollection {
				sawCollection = true
			}
		case actionlog.KindFilter, actionlog.KindFields, actionlog.KindOptions:
			if _, ok := merge.AsRecord(arg); !ok {
				fail(ErrInvalidRecord, "must be a document, got %T", arg)
			}
		case actionlog.KindSort:
			if _, err := SortKeys(arg); err != nil {
				fail(ErrInvalidSort, "%v", err)
			}
		case actionlog.KindLimit, actionlog.KindSkip:
			if !actionlog.IsNumber(arg) {
				fail(ErrInvalidNumber, "must be a number, got %T", arg)
			}
		case actionlog.KindOne, actionlog.KindMulti, actionlog.KindSafe, actionlog.KindUnsafe:
			if _, ok := arg.(bool); arg != nil && !ok {
				fail(ErrInvalidFlag, "takes no argument or a boolean, got %T", arg)
			}
		}
	}

	if !sawCollection {
		out = append(out, ValidationError{
			Field:   "collection",
			Message: "collection is required",
			Code:    ErrMissingCollection,
			Index:   -1,
		})
	}
	return out
}

func joinValidation(vs []ValidationError) string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// SortKeys flattens one sort argument into keys. It accepts a SortKey, a
// driver.Sort, a field name ("-name" sorts descending), an ordered bson.D,
// a map (keys taken in sorted order) or a list mixing any of these.
func SortKeys(v any) (driver.Sort, error) {
	switch s := v.(type) {
	case driver.SortKey:
		if err := checkOrder(s.Key, s.Order); err != nil {
			return nil, err
		}
		return driver.Sort{s}, nil
	case driver.Sort:
		for _, k := range s {
			if err := checkOrder(k.Key, k.Order); err != nil {
				return nil, err
			}
		}
		return append(driver.Sort(nil), s...), nil
	case string:
		if s == "" || s == "-" {
			return nil, fmt.Errorf("empty sort key")
		}
		if strings.HasPrefix(s, "-") {
			return driver.Sort{{Key: s[1:], Order: -1}}, nil
		}
		return driver.Sort{{Key: s, Order: 1}}, nil
	}

	if d, ok := asOrderedDoc(v); ok {
		var out driver.Sort
		for _, e := range d {
			order, err := orderOf(e.Key, e.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, driver.SortKey{Key: e.Key, Order: order})
		}
		return out, nil
	}

	if items, ok := merge.AsList(v); ok {
		var out driver.Sort
		for _, item := range items {
			keys, err := SortKeys(item)
			if err != nil {
				return nil, err
			}
			out = append(out, keys...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported sort argument %T", v)
}

func checkOrder(key string, order int) error {
	if key == "" {
		return fmt.Errorf("empty sort key")
	}
	if order != 1 && order != -1 {
		return fmt.Errorf("sort order for %q must be 1 or -1, got %d", key, order)
	}
	return nil
}

func orderOf(key string, v any) (int, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "asc", "ascending":
			return 1, nil
		case "desc", "descending":
			return -1, nil
		}
		return 0, fmt.Errorf("sort order for %q must be asc or desc, got %q", key, s)
	}
	if !actionlog.IsNumber(v) {
		return 0, fmt.Errorf("sort order for %q must be a number, got %T", key, v)
	}
	order := int(actionlog.ToInt64(v))
	if err := checkOrder(key, order); err != nil {
		return 0, err
	}
	return order, nil
}
