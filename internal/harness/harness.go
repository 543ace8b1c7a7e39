package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/magnolia"
	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/bsonx"
	"github.com/roach88/magnolia/internal/errs"
	"github.com/roach88/magnolia/internal/merge"
	"github.com/roach88/magnolia/internal/testutil"
)

// RedactedID replaces ObjectIDs in traces.
const RedactedID = "<objectid>"

// Harness runs scenarios against one Dialer.
type Harness struct {
	dialer driver.Dialer
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger the client reports operations to.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// New returns a Harness that dials through dialer. A nil dialer uses a
// fresh in-memory store.
func New(dialer driver.Dialer, opts ...Option) *Harness {
	if dialer == nil {
		dialer = magnolia.Memory()
	}
	h := &Harness{dialer: dialer}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// Run executes every step of scenario in order and returns the result.
// Steps keep running after a failed expectation so that one run reports
// every mismatch. The error is non-nil only when the scenario cannot run.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario == nil {
		return nil, errors.New("scenario is nil")
	}

	client := magnolia.New(h.dialer,
		magnolia.WithLogger(h.logger.With("scenario", scenario.Name)),
		magnolia.WithDatabase(scenario.Database),
		magnolia.WithIDGenerator(testutil.NewSequentialIDGenerator(scenario.Name)),
	)
	base := client.Collection(scenario.Collection, scenario.Database)

	result := NewResult()
	for i, step := range scenario.Steps {
		label := step.Label(i)
		event := TraceEvent{Step: i, Name: label, Op: step.Op, Chain: chainTrace(step.Chain)}

		v, err := Execute(ctx, base, step)
		if err != nil {
			event.Error = codeOf(err)
		} else {
			event.Result = redact(bsonx.Normalize(v))
		}
		result.Trace = append(result.Trace, event)

		for _, msg := range check(step.Expect, v, err) {
			result.AddError(fmt.Sprintf("%s: %s", label, msg))
		}
	}
	return result, nil
}

// Execute applies step's chain to base and runs its terminal, waiting for
// the result. A nil document result is returned as nil.
func Execute(ctx context.Context, base *magnolia.Builder, step Step) (any, error) {
	b := base
	for _, entry := range step.Chain {
		for name, arg := range entry {
			var args []any
			if arg != nil {
				args = []any{arg}
			}
			next, err := b.Chain(name, args...)
			if err != nil {
				return nil, err
			}
			b = next
		}
	}

	switch step.Op {
	case OpThen:
		return wait(ctx, b.Then(ctx))
	case OpToArray:
		return wait(ctx, b.ToArray(ctx))
	case OpRemove:
		return wait(ctx, b.RemoveWhere(ctx, step.Doc))
	case OpUpdate:
		return wait(ctx, b.Update(ctx, step.Doc))
	case OpUpsert:
		return wait(ctx, b.Upsert(ctx, step.Doc))
	case OpInsert:
		// Inserts write generated ids into their input, so each run gets
		// fresh copies of the scenario's documents.
		if step.Docs != nil {
			docs := make([]magnolia.M, len(step.Docs))
			for i, d := range step.Docs {
				docs[i] = merge.Merge(d)
			}
			return wait(ctx, b.InsertMany(ctx, docs))
		}
		return wait(ctx, b.Insert(ctx, merge.Merge(step.Doc)))
	case OpSave:
		return wait(ctx, b.Save(ctx, merge.Merge(step.Doc)))
	case OpCount:
		return wait(ctx, b.CountWhere(ctx, step.Doc))
	case OpFindAndModify:
		return wait(ctx, b.FindAndModify(ctx, step.Doc, step.Options))
	case OpEach:
		return wait(ctx, b.Each(ctx, func(magnolia.M) error { return nil }))
	default:
		return nil, errs.Invocation(step.Op, "unknown op")
	}
}

func wait[T any](ctx context.Context, f *magnolia.Future[T]) (any, error) {
	v, err := f.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if m, ok := any(v).(magnolia.M); ok && m == nil {
		return nil, nil
	}
	return v, nil
}

func codeOf(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return "ERROR"
}

func chainTrace(chain []map[string]any) []any {
	if len(chain) == 0 {
		return nil
	}
	out := make([]any, len(chain))
	for i, entry := range chain {
		out[i] = map[string]any(entry)
	}
	return out
}

// redact replaces every ObjectID in v with RedactedID.
func redact(v any) any {
	switch val := v.(type) {
	case primitive.ObjectID:
		return RedactedID
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = redact(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redact(item)
		}
		return out
	default:
		return v
	}
}
