package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/errs"
)

// Scenario is one replayable sequence of operations on a collection.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Database defaults to "test".
	Database string `yaml:"database,omitempty"`

	// Collection every step runs against.
	Collection string `yaml:"collection"`

	Steps []Step `yaml:"steps"`
}

// Step builds one chain and runs one terminal on it.
type Step struct {
	// Name labels the step in the trace and in failures.
	Name string `yaml:"name,omitempty"`

	// Chain lists single-key actions applied in order.
	Chain []map[string]any `yaml:"chain,omitempty"`

	// Op is the terminal method.
	Op string `yaml:"op"`

	// Doc is the update, inserted or saved document, or the filter of a
	// remove or count.
	Doc map[string]any `yaml:"doc,omitempty"`

	// Docs is the list passed to a multi-document insert.
	Docs []map[string]any `yaml:"docs,omitempty"`

	// Options are the findAndModify options.
	Options map[string]any `yaml:"options,omitempty"`

	// Expect is checked against the result. If nil, the step only has to
	// succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the result a step should produce.
type Expect struct {
	Count *int64           `yaml:"count,omitempty"`
	Doc   map[string]any   `yaml:"doc,omitempty"`
	Docs  []map[string]any `yaml:"docs,omitempty"`
	Null  bool             `yaml:"null,omitempty"`
	Error string           `yaml:"error,omitempty"`
}

// Terminal operation names.
const (
	OpThen          = "then"
	OpToArray       = "toArray"
	OpRemove        = "remove"
	OpUpdate        = "update"
	OpUpsert        = "upsert"
	OpInsert        = "insert"
	OpSave          = "save"
	OpCount         = "count"
	OpFindAndModify = "findAndModify"
	OpEach          = "each"
)

var validErrorCodes = map[string]bool{
	string(errs.CodeConnection):    true,
	string(errs.CodeStore):         true,
	string(errs.CodeInvocation):    true,
	string(errs.CodeUnimplemented): true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "expects:" vs "expect:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.Database == "" {
		scenario.Database = "test"
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	for j, entry := range step.Chain {
		if len(entry) != 1 {
			return fmt.Errorf("steps[%d].chain[%d]: expected exactly one action, got %d", index, j, len(entry))
		}
		for name := range entry {
			if _, err := actionlog.ParseKind(name); err != nil {
				return fmt.Errorf("steps[%d].chain[%d]: %w", index, j, err)
			}
		}
	}

	switch step.Op {
	case OpThen, OpToArray, OpRemove, OpCount, OpEach:
	case OpUpdate, OpUpsert, OpSave:
		if step.Doc == nil {
			return fmt.Errorf("steps[%d]: doc is required for %s", index, step.Op)
		}
	case OpInsert:
		if (step.Doc == nil) == (step.Docs == nil) {
			return fmt.Errorf("steps[%d]: insert takes exactly one of doc or docs", index)
		}
	case OpFindAndModify:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if e := step.Expect; e != nil && e.Error != "" && !validErrorCodes[e.Error] {
		return fmt.Errorf("steps[%d].expect: unknown error code %q", index, e.Error)
	}
	return nil
}

// Label names the step for traces and failures.
func (s Step) Label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d (%s)", index, s.Op)
}

// Validate checks a step that is run outside a scenario.
func (s Step) Validate() error {
	return validateStep(0, &s)
}
