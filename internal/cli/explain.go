package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/magnolia"
	"github.com/roach88/magnolia/internal/harness"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	ChainOptions
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <query|remove|update|upsert|insert|save|count|findAndModify>",
		Short: "Print the resolved plan of a chain without connecting",
		Long: `Resolve a chain of actions into the plan an operation would send to
the store and print it as canonical JSON. Nothing is dialled.

Example:
  magnolia explain query --collection users --step 'filter={"age":{"$gt":18}}' --step 'sort={"age":-1}' --step limit=10
  magnolia explain update --collection users --step multi --doc '{"$set":{"seen":true}}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	opts.bind(cmd)
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

func runExplain(opts *ExplainOptions, kind string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.LoadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	step, err := opts.Step(harness.OpThen)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err)
	}

	// Explain never dials, so the backend is irrelevant here.
	client := magnolia.New(nil,
		magnolia.WithServer(cfg.Server),
		magnolia.WithDatabase(cfg.Database),
	)
	b := opts.Builder(client)
	for _, entry := range step.Chain {
		for name, arg := range entry {
			var args []any
			if arg != nil {
				args = []any{arg}
			}
			if b, err = b.Chain(name, args...); err != nil {
				return formatter.Fail(ExitCommandError, ErrorCode(err), err)
			}
		}
	}

	var docs []magnolia.M
	switch {
	case step.Docs != nil:
		docs = step.Docs
	case step.Options != nil:
		docs = []magnolia.M{step.Doc, step.Options}
	case step.Doc != nil:
		docs = []magnolia.M{step.Doc}
	}
	formatter.VerboseLog("Explaining %s on %s with %d chained action(s)", kind, opts.Collection, len(step.Chain))

	plan, err := b.Explain(kind, docs...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrorCode(err), err)
	}
	return formatter.Raw(plan)
}
