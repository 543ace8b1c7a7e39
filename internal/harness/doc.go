// Package harness replays builder chains from YAML scenarios against a
// document store and checks each step's result.
//
// # Scenario Format
//
//	name: lifecycle
//	description: "Insert, update and remove through one collection"
//	database: magnolia-test
//	collection: test
//	steps:
//	  - name: clean
//	    chain:
//	      - multi:
//	    op: remove
//	  - op: insert
//	    doc: {hello: world}
//	  - chain:
//	      - filter: {hello: world}
//	    op: update
//	    doc: {$set: {hello: "world!!!"}}
//	    expect:
//	      count: 1
//	  - chain:
//	      - filter: {hello: "world!!!"}
//	      - one:
//	    op: then
//	    expect:
//	      doc: {hello: "world!!!"}
//
// Every chain entry holds exactly one key, the action name, and at most
// one argument. A null argument calls the action with none, so "one:" is
// One() and "one: false" is One(false).
//
// # Operations
//
// then, toArray, remove, update, upsert, insert, save, count,
// findAndModify and each. Insert stores doc, or docs when given a list.
// findAndModify takes its update from doc and its options from options.
//
// # Expectations
//
//   - count: the numeric result of remove, update, upsert, count or each
//   - doc: a subset the single result must contain
//   - docs: subsets the list result must contain, in order, with the
//     same length
//   - "null: true": the single result is nil
//   - error: the error code (CONNECTION, STORE, INVOCATION, UNIMPLEMENTED)
//
// # Deterministic Output
//
// Results are recorded in a trace with ObjectIDs redacted, so the trace
// of a scenario can be compared against a golden file.
package harness
