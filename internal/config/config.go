// Package config loads CLI settings from a YAML file and MAGNOLIA_*
// environment variables and checks them against an embedded CUE schema.
//
// Precedence, lowest first: built-in defaults, the config file, the
// environment. Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Backend names.
const (
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MAGNOLIA_"

// Config holds the settings shared by every CLI command.
type Config struct {
	Backend        string `yaml:"backend" json:"backend"`
	Dir            string `yaml:"dir,omitempty" json:"dir,omitempty"`
	Server         string `yaml:"server,omitempty" json:"server,omitempty"`
	Database       string `yaml:"database,omitempty" json:"database,omitempty"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty" json:"connect_timeout,omitempty"`
	LogLevel       string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		Backend:        BackendSQLite,
		Dir:            "./magnolia-data",
		Server:         "localhost:27017",
		Database:       "test",
		ConnectTimeout: "10s",
		LogLevel:       "info",
	}
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and the environment read through lookup (os.LookupEnv
// when nil). The result is validated before it is returned.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg.ApplyEnv(lookup)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays the YAML document in data onto cfg. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from MAGNOLIA_BACKEND, MAGNOLIA_DIR,
// MAGNOLIA_SERVER, MAGNOLIA_DATABASE, MAGNOLIA_CONNECT_TIMEOUT and
// MAGNOLIA_LOG_LEVEL. Empty values are ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) {
	for key, field := range c.fields() {
		if v, ok := lookup(EnvPrefix + strings.ToUpper(key)); ok && v != "" {
			*field = v
		}
	}
}

func (c *Config) fields() map[string]*string {
	return map[string]*string{
		"backend":         &c.Backend,
		"dir":             &c.Dir,
		"server":          &c.Server,
		"database":        &c.Database,
		"connect_timeout": &c.ConnectTimeout,
		"log_level":       &c.LogLevel,
	}
}

// Validate checks c against the embedded schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	doc := map[string]any{}
	for key, field := range c.fields() {
		if *field != "" {
			doc[key] = *field
		}
	}
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if (c.Backend == BackendSQLite || c.Backend == BackendBolt) && c.Dir == "" {
		return fmt.Errorf("invalid config: dir is required for the %s backend", c.Backend)
	}
	return nil
}

// Timeout parses ConnectTimeout. An empty value yields zero.
func (c Config) Timeout() (time.Duration, error) {
	if c.ConnectTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.ConnectTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid connect_timeout: %w", err)
	}
	return d, nil
}

// Level maps LogLevel to a slog level. Unknown or empty values yield info.
func (c Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
