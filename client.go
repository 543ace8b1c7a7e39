package magnolia

import (
	"io"
	"log/slog"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/compiler"
	"github.com/roach88/magnolia/internal/errs"
	"github.com/roach88/magnolia/internal/session"
)

// IDGenerator produces the operation ids attached to debug logs.
type IDGenerator interface {
	Generate() string
}

// Client binds builders to a Dialer.
type Client struct {
	dialer   driver.Dialer
	logger   *slog.Logger
	ids      IDGenerator
	defaults compiler.Defaults
	runner   *session.Runner
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger operations report to at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithServer sets the address used when a chain names no server.
func WithServer(addr string) Option {
	return func(c *Client) { c.defaults.Server = addr }
}

// WithDatabase sets the database used when the factory is given none.
func WithDatabase(name string) Option {
	return func(c *Client) { c.defaults.Database = name }
}

// WithIDGenerator replaces the UUIDv7 operation id generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(c *Client) { c.ids = ids }
}

// New returns a Client that opens one connection per operation through
// dialer.
func New(dialer driver.Dialer, opts ...Option) *Client {
	c := &Client{
		dialer:   dialer,
		defaults: compiler.StandardDefaults(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var ids session.IDGenerator
	if c.ids != nil {
		ids = c.ids
	}
	c.runner = session.NewRunner(dialer, c.logger, ids)
	return c
}

// Collection starts a chain on collection name, optionally in database.
// It is the only way to set the collection and database. An empty name or
// more than one database yields a Builder whose terminals all fail with
// an invocation error without dialling.
func (c *Client) Collection(name string, database ...string) *Builder {
	if name == "" {
		return &Builder{client: c, err: errs.Invocation("collection", "collection name is empty")}
	}
	if len(database) > 1 {
		return &Builder{client: c, err: errs.Invocation("collection", "expected at most one database name, got %d", len(database))}
	}
	var l actionlog.Log
	l = l.Append(actionlog.Action{Kind: actionlog.KindCollection, Args: []any{name}})
	if len(database) == 1 {
		if database[0] == "" {
			return &Builder{client: c, err: errs.Invocation("collection", "database name is empty")}
		}
		l = l.Append(actionlog.Action{Kind: actionlog.KindDB, Args: []any{database[0]}})
	}
	return &Builder{client: c, log: l}
}
