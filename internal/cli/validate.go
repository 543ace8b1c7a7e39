package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Collection string
	Database   string
	Steps      []string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the arguments of a chain without running it",
		Long: `Record the chain given by --db, --collection and --step and
report every malformed action at once. Unlike exec, which stops at the
first bad action, validate lists them all.

Example:
  magnolia validate --collection users --step limit=ten --step 'sort={"age":2}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Collection, "collection", "", "collection name")
	cmd.Flags().StringVar(&opts.Database, "db", "", "database name")
	cmd.Flags().StringArrayVar(&opts.Steps, "step", nil, "chain action as name or name=value, repeatable")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	chain, err := ParseChain(opts.Steps)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeArgs, err)
	}

	l := chainLog(opts.Database, opts.Collection, chain)
	formatter.VerboseLog("Validating %d action(s)", l.Len())

	if vs := compiler.Validate(l); len(vs) > 0 {
		return outputValidationErrors(formatter, vs)
	}
	return outputValidateSuccess(formatter)
}

// chainLog records the target actions that are set, then chain in order.
func chainLog(db, collection string, chain []map[string]any) actionlog.Log {
	var l actionlog.Log
	record := func(k actionlog.Kind, args ...any) {
		l = l.Append(actionlog.Action{Kind: k, Args: args})
	}
	if db != "" {
		record(actionlog.KindDB, db)
	}
	if collection != "" {
		record(actionlog.KindCollection, collection)
	}
	for _, entry := range chain {
		for name, arg := range entry {
			// ParseChain has already checked the name.
			k, _ := actionlog.ParseKind(name)
			if arg == nil {
				record(k)
			} else {
				record(k, arg)
			}
		}
	}
	return l
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}

	fmt.Fprintln(formatter.Writer, "✓ Chain valid")
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Index >= 0 {
			fmt.Fprintf(formatter.Writer, "action %d (%s)\n", err.Index, err.Field)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
