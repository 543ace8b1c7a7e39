// Package actionlog records chained builder calls as an immutable,
// ordered sequence of actions and folds them into resolved values.
//
// A Log is a persistent singly linked list: every Append allocates one
// node pointing at the previous head, so two logs forked from a common
// prefix share that prefix and never observe each other's later appends.
// The zero Log is valid and empty.
package actionlog

// Action is one recorded chain call.
type Action struct {
	Kind Kind
	Args []any
}

// Arg returns the first argument, or nil when the action was recorded
// without arguments.
func (a Action) Arg() any {
	if len(a.Args) == 0 {
		return nil
	}
	return a.Args[0]
}

type node struct {
	action Action
	prev   *node
}

// Log is an append-only action sequence with structural sharing.
type Log struct {
	head *node
	n    int
}

// Append returns a new Log with a added after every existing action. The
// receiver is unchanged.
func (l Log) Append(a Action) Log {
	args := make([]any, len(a.Args))
	copy(args, a.Args)
	a.Args = args
	return Log{head: &node{action: a, prev: l.head}, n: l.n + 1}
}

// Len returns the number of recorded actions.
func (l Log) Len() int {
	return l.n
}

// Actions returns the recorded actions oldest first. The returned slice is
// freshly allocated.
func (l Log) Actions() []Action {
	out := make([]Action, l.n)
	i := l.n - 1
	for cur := l.head; cur != nil; cur = cur.prev {
		out[i] = cur.action
		i--
	}
	return out
}

// newestFirst walks the log from the most recent action backwards until
// fn returns false.
func (l Log) newestFirst(fn func(Action) bool) {
	for cur := l.head; cur != nil; cur = cur.prev {
		if !fn(cur.action) {
			return
		}
	}
}
