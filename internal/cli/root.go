package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/magnolia"
	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigPath string
	Backend    string
	Dir        string
	Server     string
	Database   string

	// Lookup reads environment overrides. Nil means os.LookupEnv.
	Lookup config.LookupFunc

	// IDs overrides the operation id generator (for testing). If nil,
	// operations get UUIDv7 ids.
	IDs magnolia.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the magnolia CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "magnolia",
		Short: "Chainable document store queries",
		Long: `Build document store operations by chaining actions, inspect the
resolved plan, run them against a backend, and replay YAML scenarios.

Chain steps are given as name=value pairs where the value is extended
JSON, for example --step 'filter={"age":{"$gt":18}}' --step limit=10.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend (mongo|sqlite|bolt|memory)")
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "data directory for the sqlite and bolt backends")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "default server address")
	cmd.PersistentFlags().StringVar(&opts.Database, "database", "", "default database")

	cmd.AddCommand(NewExplainCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// LoadConfig resolves the configuration: defaults, then the config file,
// then MAGNOLIA_* environment variables, then flags.
func (o *RootOptions) LoadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath, o.Lookup)
	if err != nil {
		return config.Config{}, err
	}

	overrides := []struct {
		flag  string
		field *string
	}{
		{o.Backend, &cfg.Backend},
		{o.Dir, &cfg.Dir},
		{o.Server, &cfg.Server},
		{o.Database, &cfg.Database},
	}
	changed := false
	for _, ov := range overrides {
		if ov.flag != "" {
			*ov.field = ov.flag
			changed = true
		}
	}
	if changed {
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// Logger returns a text logger on w at the configured level.
func Logger(cfg config.Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

// Dialer returns the backend named by cfg.
func Dialer(cfg config.Config) (driver.Dialer, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		timeout, err := cfg.Timeout()
		if err != nil {
			return nil, err
		}
		return magnolia.Mongo(timeout), nil
	case config.BackendSQLite:
		return magnolia.SQLite(cfg.Dir), nil
	case config.BackendBolt:
		return magnolia.Bolt(cfg.Dir), nil
	case config.BackendMemory:
		return magnolia.Memory(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Client builds a client on cfg's backend and defaults. extra options
// are applied last.
func Client(cfg config.Config, logger *slog.Logger, extra ...magnolia.Option) (*magnolia.Client, error) {
	dialer, err := Dialer(cfg)
	if err != nil {
		return nil, err
	}
	opts := []magnolia.Option{
		magnolia.WithLogger(logger),
		magnolia.WithServer(cfg.Server),
		magnolia.WithDatabase(cfg.Database),
	}
	return magnolia.New(dialer, append(opts, extra...)...), nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// Execute runs the root command with os.Args and returns the process
// exit code. Commands report their own failures; anything else (flag
// parsing, unknown commands) has already been printed by cobra.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		return GetExitCode(err)
	}
	return ExitSuccess
}
