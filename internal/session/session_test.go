package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/errs"
	"github.com/roach88/magnolia/internal/testutil"
)

func countCall(ctx context.Context, coll driver.Collection) error {
	_, err := coll.Count(ctx, driver.M{})
	return err
}

func TestRun_ClosesOnEveryPath(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name       string
		dialer     *testutil.FakeDialer
		fn         func(context.Context, driver.Collection) error
		wantDials  int
		wantCloses int
		wantCode   errs.Code
	}{
		{"success", &testutil.FakeDialer{}, countCall, 1, 1, ""},
		{"dial", &testutil.FakeDialer{DialErr: boom}, countCall, 0, 0, errs.CodeConnection},
		{"collection", &testutil.FakeDialer{CollectionErr: boom}, countCall, 1, 1, errs.CodeConnection},
		{"store", &testutil.FakeDialer{StoreErr: boom}, countCall, 1, 1, errs.CodeStore},
		{"close", &testutil.FakeDialer{CloseErr: boom}, countCall, 1, 1, errs.CodeConnection},
		{
			"coded error passes through",
			&testutil.FakeDialer{},
			func(context.Context, driver.Collection) error { return errs.Unimplemented("rewind", "cursor rewind") },
			1, 1, errs.CodeUnimplemented,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner(tt.dialer, nil, NewFixedGenerator("op-1"))
			err := r.Run(context.Background(), "count", driver.Target{Addr: "x", Database: "db"}, "users", tt.fn)

			if tt.wantCode == "" {
				require.NoError(t, err)
			} else {
				var e *errs.Error
				require.ErrorAs(t, err, &e)
				assert.Equal(t, tt.wantCode, e.Code)
			}
			assert.Equal(t, tt.wantDials, tt.dialer.Dials())
			assert.Equal(t, tt.wantCloses, tt.dialer.Closes())
		})
	}
}

func TestRun_StoreAndCloseErrorsJoined(t *testing.T) {
	storeErr, closeErr := errors.New("store"), errors.New("close")
	f := &testutil.FakeDialer{StoreErr: storeErr, CloseErr: closeErr}
	r := NewRunner(f, nil, nil)

	err := r.Run(context.Background(), "count", driver.Target{Database: "db"}, "users", countCall)
	assert.ErrorIs(t, err, storeErr)
	assert.ErrorIs(t, err, closeErr)
	assert.True(t, errs.IsStore(err))
}

func TestRun_NoDialer(t *testing.T) {
	r := NewRunner(nil, nil, nil)
	err := r.Run(context.Background(), "count", driver.Target{}, "users", countCall)
	assert.True(t, errs.IsConnection(err))
}

func TestHandle_CloseOnce(t *testing.T) {
	f := &testutil.FakeDialer{CloseErr: errors.New("close")}
	r := NewRunner(f, nil, nil)
	ctx := context.Background()

	h, err := r.Open(ctx, "query", driver.Target{Database: "db"}, "users")
	require.NoError(t, err)

	first := h.Close(ctx)
	assert.True(t, errs.IsConnection(first))
	assert.Same(t, first, h.Close(ctx))
	assert.Equal(t, 1, f.Closes())
}

func TestRun_LogsOperationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewRunner(&testutil.FakeDialer{}, logger, NewFixedGenerator("op-42"))

	err := r.Run(context.Background(), "count", driver.Target{Addr: "h:1", Database: "db"}, "users", countCall)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "op_id=op-42")
	assert.Contains(t, buf.String(), "op=count")
	assert.Contains(t, buf.String(), "connection closed")
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Sortable(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
