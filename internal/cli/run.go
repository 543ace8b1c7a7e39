package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/magnolia/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// ScenarioReport is the JSON form of one scenario outcome.
type ScenarioReport struct {
	Path   string   `json:"path"`
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Steps  int      `json:"steps"`
	Errors []string `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Replay YAML scenarios against the configured backend",
		Long: `Replay one or more YAML scenarios. Each scenario runs its steps in
order on one collection and checks every expectation; all mismatches are
reported. The command fails if any scenario fails.

Example:
  magnolia run --backend memory testdata/scenarios/lifecycle.yaml
  magnolia run --backend sqlite --dir /tmp/magnolia scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.LoadConfig()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	dialer, err := Dialer(cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	h := harness.New(dialer, harness.WithLogger(Logger(cfg, cmd.ErrOrStderr())))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports := make([]ScenarioReport, 0, len(paths))
	failed := 0
	for _, path := range paths {
		s, err := harness.LoadScenario(path)
		if err != nil {
			code := ErrCodeArgs
			if errors.Is(err, os.ErrNotExist) {
				code = ErrCodeNotFound
			}
			return formatter.Fail(ExitCommandError, code, err)
		}
		formatter.VerboseLog("Running scenario %s (%d steps)", s.Name, len(s.Steps))

		result, err := h.Run(ctx, s)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err)
		}
		if !result.Pass {
			failed++
		}
		reports = append(reports, ScenarioReport{
			Path:   path,
			Name:   s.Name,
			Pass:   result.Pass,
			Steps:  len(result.Trace),
			Errors: result.Errors,
		})
	}

	if formatter.Format == "json" {
		if err := formatter.Success(reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			if r.Pass {
				fmt.Fprintf(formatter.Writer, "✓ %s (%d steps)\n", r.Name, r.Steps)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n", r.Name)
			for _, e := range r.Errors {
				fmt.Fprintf(formatter.Writer, "    %s\n", e)
			}
		}
		fmt.Fprintf(formatter.Writer, "\n%d passed, %d failed\n", len(reports)-failed, failed)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", failed))
	}
	return nil
}
