// Package magnolia is a fluent query builder for document stores.
//
// A Builder records chained calls such as Filter, Sort and Limit into an
// immutable action log. Nothing touches the store until a terminal method
// (Then, ToArray, Remove, Update, Upsert, Insert, Save, Count,
// FindAndModify, Cursor) compiles the log into exactly one collaborator
// call. Every operation dials its own connection and closes it before its
// Future settles.
//
//	c := magnolia.New(magnolia.SQLite("./data"))
//	users := c.Collection("users", "app")
//	n, err := users.Filter(magnolia.M{"age": magnolia.M{"$gte": 21}}).Count(ctx).Wait(ctx)
//
// Builders are values: every chain call returns a new Builder and leaves
// the receiver untouched, so a common prefix can be forked freely.
package magnolia

import (
	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/errs"
	"github.com/roach88/magnolia/internal/merge"
)

// M is a document, filter, projection or options record.
type M = driver.M

// SortKey orders results by one field.
type SortKey = driver.SortKey

// Asc sorts key in ascending order.
func Asc(key string) SortKey { return SortKey{Key: key, Order: 1} }

// Desc sorts key in descending order.
func Desc(key string) SortKey { return SortKey{Key: key, Order: -1} }

// Merge deep-merges records left to right: lists concatenate, nested
// records recurse and any other shared key takes the later value. Inputs
// are never mutated.
func Merge(objs ...M) M {
	return merge.Merge(objs...)
}

// Error is the structured error returned by futures and cursors.
type Error = errs.Error

// Error codes.
const (
	CodeConnection    = errs.CodeConnection
	CodeStore         = errs.CodeStore
	CodeInvocation    = errs.CodeInvocation
	CodeUnimplemented = errs.CodeUnimplemented
)

// IsConnection reports whether err is a dial, collection or close failure.
func IsConnection(err error) bool { return errs.IsConnection(err) }

// IsStore reports whether err was returned by the store call itself.
func IsStore(err error) bool { return errs.IsStore(err) }

// IsInvocation reports whether err comes from a malformed builder call.
func IsInvocation(err error) bool { return errs.IsInvocation(err) }

// IsUnimplemented reports whether err names a feature the backend lacks.
func IsUnimplemented(err error) bool { return errs.IsUnimplemented(err) }
