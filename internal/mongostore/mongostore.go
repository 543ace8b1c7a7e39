// Package mongostore implements the driver collaborator on top of the
// official MongoDB Go driver.
//
// Every Dial opens a fresh client and Close disconnects it; nothing is
// pooled across operations.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/bsonx"
)

// DefaultTimeout bounds connecting and server selection when a Dialer sets
// no timeout of its own.
const DefaultTimeout = 10 * time.Second

// Dialer connects to a MongoDB deployment.
type Dialer struct {
	// Timeout bounds connect and server selection. Zero means
	// DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// URI turns a target address into a connection string. Addresses that
// already carry a scheme are used as they are.
func URI(addr string) string {
	if strings.HasPrefix(addr, "mongodb://") || strings.HasPrefix(addr, "mongodb+srv://") {
		return addr
	}
	return "mongodb://" + addr
}

// WriteConcern maps the resolved safety flag to a MongoDB write concern.
func WriteConcern(wc driver.WriteConcern) *writeconcern.WriteConcern {
	if wc.Acknowledged {
		return writeconcern.W1()
	}
	return writeconcern.Unacknowledged()
}

func (d Dialer) clientOptions(target driver.Target) *mopt.ClientOptions {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	opts := mopt.Client().ApplyURI(URI(target.Addr))
	opts.SetConnectTimeout(timeout).SetServerSelectionTimeout(timeout)
	opts.SetWriteConcern(WriteConcern(target.WriteConcern))
	return opts
}

// Dial implements driver.Dialer. The connection is verified with a ping.
func (d Dialer) Dial(ctx context.Context, target driver.Target) (driver.Conn, error) {
	if target.Database == "" {
		return nil, errors.New("database name is empty")
	}
	client, err := mongo.Connect(ctx, d.clientOptions(target))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", target.Addr, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping %s: %w", target.Addr, err)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Conn{client: client, db: client.Database(target.Database), logger: logger}, nil
}

// Conn is one connected client bound to a database.
type Conn struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// Collection resolves a collection handle.
func (c *Conn) Collection(_ context.Context, name string) (driver.Collection, error) {
	if name == "" {
		return nil, errors.New("collection name is empty")
	}
	return &Collection{coll: c.db.Collection(name), logger: c.logger.With("collection", name)}, nil
}

// Close disconnects the client.
func (c *Conn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Collection implements driver.Collection.
type Collection struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// Find prepares a query; nothing is sent until it is iterated.
func (c *Collection) Find(filter, fields, options driver.M) driver.Query {
	return &Query{coll: c.coll, filter: orEmpty(filter), fields: fields, options: options}
}

// Remove deletes one matching document, or all of them when opts.Multi is
// set.
func (c *Collection) Remove(ctx context.Context, filter driver.M, opts driver.WriteOptions) (int64, error) {
	var (
		res *mongo.DeleteResult
		err error
	)
	if opts.Multi {
		res, err = c.coll.DeleteMany(ctx, orEmpty(filter))
	} else {
		res, err = c.coll.DeleteOne(ctx, orEmpty(filter))
	}
	if err = acked(err); err != nil {
		return 0, err
	}
	c.logger.Debug("remove", "multi", opts.Multi)
	if res == nil {
		return 0, nil
	}
	return res.DeletedCount, nil
}

// Update applies doc to one or all matches. A document without update
// operators replaces the match. The count is matched plus upserted.
func (c *Collection) Update(ctx context.Context, filter, doc driver.M, opts driver.WriteOptions) (int64, error) {
	var (
		res *mongo.UpdateResult
		err error
	)
	switch {
	case !HasOperators(doc):
		if opts.Multi {
			return 0, errors.New("multi update requires update operators")
		}
		res, err = c.coll.ReplaceOne(ctx, orEmpty(filter), doc, mopt.Replace().SetUpsert(opts.Upsert))
	case opts.Multi:
		res, err = c.coll.UpdateMany(ctx, orEmpty(filter), doc, mopt.Update().SetUpsert(opts.Upsert))
	default:
		res, err = c.coll.UpdateOne(ctx, orEmpty(filter), doc, mopt.Update().SetUpsert(opts.Upsert))
	}
	if err = acked(err); err != nil {
		return 0, err
	}
	c.logger.Debug("update", "multi", opts.Multi, "upsert", opts.Upsert)
	if res == nil {
		return 0, nil
	}
	return res.MatchedCount + res.UpsertedCount, nil
}

// Insert stores docs in order, generating missing identifiers client-side
// so they can be written back into the caller's documents.
func (c *Collection) Insert(ctx context.Context, docs []driver.M, _ driver.WriteOptions) ([]driver.M, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	batch := make([]any, len(docs))
	for i, doc := range docs {
		if doc == nil {
			return nil, fmt.Errorf("document %d is nil", i)
		}
		bsonx.EnsureID(doc)
		batch[i] = doc
	}
	if _, err := c.coll.InsertMany(ctx, batch); acked(err) != nil {
		return nil, err
	}
	c.logger.Debug("insert", "count", len(docs))
	return docs, nil
}

// Save replaces the document with the same _id, or inserts it.
func (c *Collection) Save(ctx context.Context, doc driver.M, _ driver.WriteOptions) (driver.M, error) {
	if doc == nil {
		return nil, errors.New("document is nil")
	}
	if _, ok := doc[bsonx.IDKey]; !ok {
		bsonx.EnsureID(doc)
		if _, err := c.coll.InsertOne(ctx, doc); acked(err) != nil {
			return nil, err
		}
		return doc, nil
	}
	filter := bson.M{bsonx.IDKey: doc[bsonx.IDKey]}
	if _, err := c.coll.ReplaceOne(ctx, filter, doc, mopt.Replace().SetUpsert(true)); acked(err) != nil {
		return nil, err
	}
	return doc, nil
}

// Count returns the number of matching documents.
func (c *Collection) Count(ctx context.Context, filter driver.M) (int64, error) {
	return c.coll.CountDocuments(ctx, orEmpty(filter))
}

// FindAndModify maps onto findOneAndDelete, findOneAndUpdate or
// findOneAndReplace. It returns nil when nothing matched.
func (c *Collection) FindAndModify(ctx context.Context, fm driver.FindAndModifySpec) (driver.M, error) {
	filter := orEmpty(fm.Filter)
	var res *mongo.SingleResult
	switch {
	case fm.Remove:
		opts := mopt.FindOneAndDelete()
		if len(fm.Sort) > 0 {
			opts.SetSort(SortDoc(fm.Sort))
		}
		if len(fm.Fields) > 0 {
			opts.SetProjection(fm.Fields)
		}
		res = c.coll.FindOneAndDelete(ctx, filter, opts)
	case fm.Update == nil:
		return nil, errors.New("findAndModify requires an update or remove")
	case HasOperators(fm.Update):
		opts := mopt.FindOneAndUpdate().SetUpsert(fm.Upsert).SetReturnDocument(returnDocument(fm.New))
		if len(fm.Sort) > 0 {
			opts.SetSort(SortDoc(fm.Sort))
		}
		if len(fm.Fields) > 0 {
			opts.SetProjection(fm.Fields)
		}
		res = c.coll.FindOneAndUpdate(ctx, filter, fm.Update, opts)
	default:
		opts := mopt.FindOneAndReplace().SetUpsert(fm.Upsert).SetReturnDocument(returnDocument(fm.New))
		if len(fm.Sort) > 0 {
			opts.SetSort(SortDoc(fm.Sort))
		}
		if len(fm.Fields) > 0 {
			opts.SetProjection(fm.Fields)
		}
		res = c.coll.FindOneAndReplace(ctx, filter, fm.Update, opts)
	}

	var out bson.M
	if err := res.Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	doc, _ := bsonx.Normalize(out).(map[string]any)
	return doc, nil
}

// HasOperators reports whether doc is an update-operator document rather
// than a replacement.
func HasOperators(doc driver.M) bool {
	for k := range doc {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

// SortDoc renders a sort as the ordered document the server expects.
func SortDoc(s driver.Sort) bson.D {
	d := make(bson.D, 0, len(s))
	for _, k := range s {
		dir := 1
		if k.Order < 0 {
			dir = -1
		}
		d = append(d, bson.E{Key: k.Key, Value: dir})
	}
	return d
}

func returnDocument(after bool) mopt.ReturnDocument {
	if after {
		return mopt.After
	}
	return mopt.Before
}

func orEmpty(m driver.M) driver.M {
	if m == nil {
		return driver.M{}
	}
	return m
}

// acked drops the error unacknowledged writes always report.
func acked(err error) error {
	if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
		return nil
	}
	return err
}
