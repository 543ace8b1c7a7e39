// Package errs defines the error taxonomy shared by every magnolia layer.
package errs

import (
	"errors"
	"fmt"
)

// Code categorizes an operation failure.
type Code string

const (
	// CodeConnection indicates a dial, collection resolution or close
	// failure.
	CodeConnection Code = "CONNECTION"

	// CodeStore indicates the collaborator reported an error for the
	// store call itself.
	CodeStore Code = "STORE"

	// CodeInvocation indicates a malformed call on the builder. These
	// never reach the store.
	CodeInvocation Code = "INVOCATION"

	// CodeUnimplemented indicates an advertised feature the selected
	// backend does not provide.
	CodeUnimplemented Code = "UNIMPLEMENTED"
)

// Error is the structured error returned by builders, futures and
// cursors.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the operation or method that failed (e.g. "update",
	// "chain").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Op)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Connection wraps err as a connection failure.
func Connection(op, message string, err error) *Error {
	return &Error{Code: CodeConnection, Op: op, Message: message, Err: err}
}

// Store wraps err as a store operation failure.
func Store(op string, err error) *Error {
	return &Error{Code: CodeStore, Op: op, Message: "store call failed", Err: err}
}

// Invocation reports a malformed builder call.
func Invocation(op, format string, args ...any) *Error {
	return &Error{Code: CodeInvocation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Unimplemented reports a feature the backend does not provide.
func Unimplemented(op, feature string) *Error {
	return &Error{Code: CodeUnimplemented, Op: op, Message: feature + " is not implemented by this backend"}
}

func hasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConnection reports whether err is a connection failure.
func IsConnection(err error) bool { return hasCode(err, CodeConnection) }

// IsStore reports whether err is a store operation failure.
func IsStore(err error) bool { return hasCode(err, CodeStore) }

// IsInvocation reports whether err is an invocation failure.
func IsInvocation(err error) bool { return hasCode(err, CodeInvocation) }

// IsUnimplemented reports whether err is an unimplemented-feature failure.
func IsUnimplemented(err error) bool { return hasCode(err, CodeUnimplemented) }
