package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/roach88/magnolia/driver"
)

func TestURI(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"localhost:27017", "mongodb://localhost:27017"},
		{"mongodb://db:1", "mongodb://db:1"},
		{"mongodb+srv://cluster.example.com", "mongodb+srv://cluster.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, URI(tt.addr))
		})
	}
}

func TestWriteConcern(t *testing.T) {
	assert.Equal(t, writeconcern.W1(), WriteConcern(driver.WriteConcern{Acknowledged: true}))
	assert.Equal(t, writeconcern.Unacknowledged(), WriteConcern(driver.WriteConcern{}))
}

func TestHasOperators(t *testing.T) {
	assert.True(t, HasOperators(driver.M{"$set": driver.M{"a": 1}}))
	assert.False(t, HasOperators(driver.M{"a": 1}))
	assert.False(t, HasOperators(nil))
}

func TestSortDoc(t *testing.T) {
	got := SortDoc(driver.Sort{{Key: "b", Order: -1}, {Key: "a", Order: 1}, {Key: "c", Order: -5}})
	assert.Equal(t, bson.D{{Key: "b", Value: -1}, {Key: "a", Value: 1}, {Key: "c", Value: -1}}, got)
}

func TestFindOptions(t *testing.T) {
	q := (&Collection{}).Find(driver.M{"a": 1}, driver.M{"a": 1}, driver.M{"batchSize": 5}).
		Sort(driver.Sort{{Key: "a", Order: 1}}).
		Skip(2).
		Limit(3).(*Query)

	opts := q.FindOptions()
	require.NotNil(t, opts.Skip)
	require.NotNil(t, opts.Limit)
	require.NotNil(t, opts.BatchSize)
	assert.Equal(t, int64(2), *opts.Skip)
	assert.Equal(t, int64(3), *opts.Limit)
	assert.Equal(t, int32(5), *opts.BatchSize)
	assert.Equal(t, bson.D{{Key: "a", Value: 1}}, opts.Sort)
	assert.Equal(t, driver.M{"a": 1}, opts.Projection)
}

func TestFindOptions_Defaults(t *testing.T) {
	q := (&Collection{}).Find(nil, nil, nil).(*Query)
	opts := q.FindOptions()
	assert.Nil(t, opts.Skip)
	assert.Nil(t, opts.Limit)
	assert.Nil(t, opts.Sort)
	assert.Nil(t, opts.Projection)
	assert.Equal(t, driver.M{}, q.filter)
}

func TestDial_EmptyDatabase(t *testing.T) {
	_, err := Dialer{}.Dial(context.Background(), driver.Target{Addr: "localhost:1"})
	assert.Error(t, err)
}

// TestLive runs against a real server when MAGNOLIA_MONGO_ADDR is set.
func TestLive(t *testing.T) {
	addr := os.Getenv("MAGNOLIA_MONGO_ADDR")
	if addr == "" {
		t.Skip("MAGNOLIA_MONGO_ADDR not set")
	}
	ctx := context.Background()
	target := driver.Target{
		Addr:         addr,
		Database:     "magnolia_test",
		WriteConcern: driver.WriteConcern{Acknowledged: true},
	}
	conn, err := Dialer{Timeout: 5 * time.Second}.Dial(ctx, target)
	require.NoError(t, err)
	defer conn.Close(ctx)

	coll, err := conn.Collection(ctx, "live")
	require.NoError(t, err)
	_, err = coll.Remove(ctx, nil, driver.WriteOptions{Multi: true, Safe: true})
	require.NoError(t, err)

	docs, err := coll.Insert(ctx, []driver.M{{"a": 1}, {"a": 2}}, driver.WriteOptions{Safe: true})
	require.NoError(t, err)
	for _, d := range docs {
		assert.Contains(t, d, "_id")
	}

	n, err := coll.Update(ctx, driver.M{"a": 3}, driver.M{"$set": driver.M{"b": 1}}, driver.WriteOptions{Upsert: true, Safe: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := coll.Find(driver.M{}, driver.M{"_id": 0}, nil).Sort(driver.Sort{{Key: "a", Order: 1}}).All(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1), got[0]["a"])

	mod, err := coll.FindAndModify(ctx, driver.FindAndModifySpec{
		Filter: driver.M{"a": 1},
		Update: driver.M{"$inc": driver.M{"a": 10}},
		New:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), mod["a"])

	count, err := coll.Count(ctx, driver.M{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
