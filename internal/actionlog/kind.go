package actionlog

import "github.com/roach88/magnolia/internal/errs"

// Kind is the closed set of recognized chain actions.
type Kind uint8

const (
	// KindInvalid is the zero Kind. It never appears in a Log.
	KindInvalid Kind = iota
	KindServer
	KindDB
	KindCollection
	KindFilter
	KindSort
	KindLimit
	KindSkip
	KindFields
	KindOptions
	KindOne
	KindMulti
	KindSafe
	KindUnsafe
)

var kindNames = [...]string{
	KindInvalid:    "invalid",
	KindServer:     "server",
	KindDB:         "db",
	KindCollection: "collection",
	KindFilter:     "filter",
	KindSort:       "sort",
	KindLimit:      "limit",
	KindSkip:       "skip",
	KindFields:     "fields",
	KindOptions:    "options",
	KindOne:        "one",
	KindMulti:      "multi",
	KindSafe:       "safe",
	KindUnsafe:     "unsafe",
}

// String returns the action name as it appears in the chain vocabulary.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// Kinds returns every valid Kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := KindServer; int(k) < len(kindNames); k++ {
		out = append(out, k)
	}
	return out
}

// ParseKind maps an action name to its Kind. Unknown names are an
// invocation error; there is no silent fallback.
func ParseKind(name string) (Kind, error) {
	for k := KindServer; int(k) < len(kindNames); k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return KindInvalid, errs.Invocation("chain", "unknown action %q", name)
}

// IsFlag reports whether k is one of the boolean gate actions.
func (k Kind) IsFlag() bool {
	switch k {
	case KindOne, KindMulti, KindSafe, KindUnsafe:
		return true
	default:
		return false
	}
}
