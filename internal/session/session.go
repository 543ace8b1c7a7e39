// Package session owns the connection lifecycle of one compiled operation.
//
// Every operation dials its own connection, resolves one collection, makes
// its store call and closes the connection exactly once, on success and
// failure alike. Nothing is pooled.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/errs"
)

// Runner opens connections through Dialer.
type Runner struct {
	Dialer driver.Dialer
	Logger *slog.Logger
	IDs    IDGenerator
}

// NewRunner returns a Runner with a discarding logger and UUIDv7 ids
// unless overridden.
func NewRunner(dialer driver.Dialer, logger *slog.Logger, ids IDGenerator) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &Runner{Dialer: dialer, Logger: logger, IDs: ids}
}

// Handle is one open connection and its resolved collection.
type Handle struct {
	Coll driver.Collection
	ID   string

	op     string
	conn   driver.Conn
	logger *slog.Logger
	once   sync.Once
	err    error
}

// Close closes the connection. Only the first call reaches the store;
// later calls return the first result.
func (h *Handle) Close(ctx context.Context) error {
	h.once.Do(func() {
		if err := h.conn.Close(ctx); err != nil {
			h.err = errs.Connection(h.op, "close connection", err)
		}
		h.logger.Debug("connection closed", "error", h.err)
	})
	return h.err
}

// Open dials target and resolves collection. A dial failure leaves nothing
// to close; a collection failure closes the connection before returning.
func (r *Runner) Open(ctx context.Context, op string, target driver.Target, collection string) (*Handle, error) {
	id := r.IDs.Generate()
	logger := r.Logger.With("op", op, "op_id", id, "addr", target.Addr, "database", target.Database, "collection", collection)
	logger.Debug("dial", "acknowledged", target.WriteConcern.Acknowledged)

	if r.Dialer == nil {
		return nil, errs.Connection(op, "no dialer configured", nil)
	}
	conn, err := r.Dialer.Dial(ctx, target)
	if err != nil {
		logger.Debug("dial failed", "error", err)
		return nil, errs.Connection(op, "dial "+target.Addr, err)
	}
	h := &Handle{ID: id, op: op, conn: conn, logger: logger}

	coll, err := conn.Collection(ctx, collection)
	if err != nil {
		cerr := errs.Connection(op, "resolve collection "+collection, err)
		if closeErr := h.Close(ctx); closeErr != nil {
			return nil, errors.Join(cerr, closeErr)
		}
		return nil, cerr
	}
	h.Coll = coll
	return h, nil
}

// Run opens a connection, calls fn with the collection and closes the
// connection before returning. Errors from fn become store errors unless
// they already carry a code.
func (r *Runner) Run(ctx context.Context, op string, target driver.Target, collection string, fn func(context.Context, driver.Collection) error) error {
	h, err := r.Open(ctx, op, target, collection)
	if err != nil {
		return err
	}

	callErr := fn(ctx, h.Coll)
	if callErr != nil {
		var e *errs.Error
		if !errors.As(callErr, &e) {
			callErr = errs.Store(op, callErr)
		}
		h.logger.Debug("store call failed", "error", callErr)
	}

	if closeErr := h.Close(ctx); closeErr != nil {
		if callErr != nil {
			return errors.Join(callErr, closeErr)
		}
		return closeErr
	}
	return callErr
}
