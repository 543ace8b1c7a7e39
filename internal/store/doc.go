// Package store provides the SQLite document backend.
//
// Each database name maps to one SQLite file. Documents live in a single
// documents table keyed by (collection, id), where id is the rendered _id,
// and carry a seq column that fixes insertion order:
//
//   - Scans always run ORDER BY seq ASC, so results are deterministic.
//   - Replacing a document keeps its seq; only inserts allocate new ones.
//   - Bodies are BSON, so ObjectIDs and dates survive a round trip.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL for safe writes, OFF for unsafe ones
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Query evaluation happens in package match; this package only persists
// and scans blobs through the docstore.Backend contract.
package store
