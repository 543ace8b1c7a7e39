package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/magnolia"
	"github.com/roach88/magnolia/internal/harness"
	"github.com/roach88/magnolia/internal/session"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	ChainOptions
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <then|toArray|remove|update|upsert|insert|save|count|findAndModify|each>",
		Short: "Run one chained operation against the configured backend",
		Long: `Build a chain from --step actions, run one terminal operation on the
configured backend and print the result as canonical JSON.

Example:
  magnolia exec insert --backend sqlite --dir ./data --collection users --docs '[{"name":"ann"},{"name":"bob"}]'
  magnolia exec then --collection users --step 'filter={"name":"ann"}' --step one
  magnolia exec update --collection users --step multi --doc '{"$set":{"seen":true}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

func runExec(opts *ExecOptions, op string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.LoadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	step, err := opts.Step(op)
	if err == nil {
		err = step.Validate()
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err)
	}

	var gen magnolia.IDGenerator = session.UUIDv7Generator{}
	if opts.IDs != nil {
		gen = opts.IDs
	}
	ids := &lastID{next: gen}

	client, err := Client(cfg, Logger(cfg, cmd.ErrOrStderr()), magnolia.WithIDGenerator(ids))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	formatter.VerboseLog("Running %s on %s (%s backend)", op, opts.Collection, cfg.Backend)
	v, err := harness.Execute(ctx, opts.Builder(client), step)
	formatter.OpID = ids.Last()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrorCode(err), err)
	}
	return formatter.Document(v)
}

// lastID remembers the most recent id issued by next.
type lastID struct {
	next magnolia.IDGenerator

	mu   sync.Mutex
	last string
}

func (l *lastID) Generate() string {
	id := l.next.Generate()
	l.mu.Lock()
	l.last = id
	l.mu.Unlock()
	return id
}

func (l *lastID) Last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
