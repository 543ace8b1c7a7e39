package magnolia_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/magnolia"
	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) listen(t *testing.T, c *magnolia.Cursor) {
	t.Helper()
	for _, ev := range []magnolia.Event{magnolia.EventData, magnolia.EventEnd, magnolia.EventError, magnolia.EventClose} {
		ev := ev
		require.NoError(t, c.On(ev, func(any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, string(ev))
		}))
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestCursor_NextToExhaustion(t *testing.T) {
	f := &testutil.FakeDialer{Docs: []driver.M{{"a": 1}, {"a": 2}}}
	b := magnolia.New(f).Collection("users")
	c := b.Cursor()
	assert.Same(t, c, b.Cursor())

	rec := &recorder{}
	rec.listen(t, c)
	ctx := context.Background()
	assert.Zero(t, f.Dials(), "nothing dialled before Next")

	doc, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, magnolia.M{"a": 1}, doc)
	doc, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, magnolia.M{"a": 2}, doc)

	doc, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.True(t, c.Closed())

	doc, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc, "exhausted cursor keeps returning nil")

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, 1, f.Dials())
	assert.Equal(t, 1, f.Closes())
	assert.Equal(t, []string{"data", "data", "end", "close"}, rec.get())
}

func TestCursor_SingleModeStopsAfterFirst(t *testing.T) {
	f := &testutil.FakeDialer{Docs: []driver.M{{"a": 1}, {"a": 2}}}
	c := magnolia.New(f).Collection("users").One().Cursor()
	ctx := context.Background()

	doc, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, magnolia.M{"a": 1}, doc)

	doc, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.Equal(t, 1, f.Closes())
}

func TestCursor_Each(t *testing.T) {
	f := &testutil.FakeDialer{Docs: []driver.M{{"a": 1}, {"a": 2}, {"a": 3}}}
	c := magnolia.New(f).Collection("users").Cursor()

	var seen []magnolia.M
	n, err := waitFor(t, c.Each(context.Background(), func(doc magnolia.M) error {
		seen = append(seen, doc)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []magnolia.M{{"a": 1}, {"a": 2}, {"a": 3}}, seen)
	assert.Equal(t, 1, f.Closes())
}

func TestCursor_EachStopsOnCallbackError(t *testing.T) {
	f := &testutil.FakeDialer{Docs: []driver.M{{"a": 1}, {"a": 2}, {"a": 3}}}
	stop := errors.New("stop")

	n, err := waitFor(t, magnolia.New(f).Collection("users").Each(context.Background(), func(doc magnolia.M) error {
		if doc["a"] == 2 {
			return stop
		}
		return nil
	}))
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, f.Closes())
}

func TestCursor_EachNilCallback(t *testing.T) {
	f := &testutil.FakeDialer{}
	_, err := waitFor(t, magnolia.New(f).Collection("users").Cursor().Each(context.Background(), nil))
	assert.True(t, magnolia.IsInvocation(err))
	assert.Zero(t, f.Dials())
}

func TestCursor_StoreError(t *testing.T) {
	boom := errors.New("boom")
	f := &testutil.FakeDialer{StoreErr: boom}
	c := magnolia.New(f).Collection("users").Cursor()
	rec := &recorder{}
	rec.listen(t, c)

	_, err := c.Next(context.Background())
	assert.True(t, magnolia.IsStore(err))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"error", "close"}, rec.get())
	assert.Equal(t, 1, f.Closes())
}

func TestCursor_DialError(t *testing.T) {
	f := &testutil.FakeDialer{DialErr: errors.New("refused")}
	c := magnolia.New(f).Collection("users").Cursor()
	rec := &recorder{}
	rec.listen(t, c)

	_, err := c.Next(context.Background())
	assert.True(t, magnolia.IsConnection(err))
	assert.Equal(t, []string{"error"}, rec.get(), "nothing was opened so nothing closes")
	assert.Zero(t, f.Closes())
	assert.NoError(t, c.Close(context.Background()))
}

func TestCursor_Rewind(t *testing.T) {
	ctx := context.Background()
	f := &testutil.FakeDialer{Docs: []driver.M{{"a": 1}, {"a": 2}}, Rewindable: true}
	c := magnolia.New(f).Collection("users").Cursor()

	require.NoError(t, c.Rewind(ctx), "rewind before the first Next is a no-op")

	doc, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, magnolia.M{"a": 1}, doc)

	require.NoError(t, c.Rewind(ctx))
	doc, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, magnolia.M{"a": 1}, doc)

	require.NoError(t, c.Close(ctx))
	assert.True(t, magnolia.IsInvocation(c.Rewind(ctx)))
	assert.Equal(t, 1, f.Closes())
}

func TestCursor_RewindUnsupported(t *testing.T) {
	ctx := context.Background()
	f := &testutil.FakeDialer{Docs: []driver.M{{"a": 1}}}
	c := magnolia.New(f).Collection("users").Cursor()

	_, err := c.Next(ctx)
	require.NoError(t, err)
	assert.True(t, magnolia.IsUnimplemented(c.Rewind(ctx)))
	require.NoError(t, c.Close(ctx))
}

func TestCursor_CloseOnce(t *testing.T) {
	ctx := context.Background()
	f := &testutil.FakeDialer{Docs: []driver.M{{"a": 1}}, CloseErr: errors.New("close")}
	c := magnolia.New(f).Collection("users").Cursor()
	rec := &recorder{}
	rec.listen(t, c)

	_, err := c.Next(ctx)
	require.NoError(t, err)

	first := c.Close(ctx)
	assert.True(t, magnolia.IsConnection(first))
	assert.Equal(t, first, c.Close(ctx))
	assert.Equal(t, 1, f.Closes())
	assert.Equal(t, []string{"data", "close"}, rec.get())
}

func TestCursor_OnInvalid(t *testing.T) {
	c := magnolia.New(&testutil.FakeDialer{}).Collection("users").Cursor()
	assert.True(t, magnolia.IsInvocation(c.On("drain", func(any) {})))
	assert.True(t, magnolia.IsInvocation(c.On(magnolia.EventData, nil)))
}
