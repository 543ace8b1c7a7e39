package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/magnolia"
	"github.com/roach88/magnolia/internal/actionlog"
	"github.com/roach88/magnolia/internal/harness"
)

// ChainOptions holds the flags that describe one operation.
type ChainOptions struct {
	Collection string
	Database   string
	Steps      []string
	Doc        string
	Docs       string
	Options    string
}

func (c *ChainOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Collection, "collection", "", "collection name (required)")
	cmd.Flags().StringVar(&c.Database, "db", "", "database, overriding the configured default")
	cmd.Flags().StringArrayVar(&c.Steps, "step", nil, "chain action as name or name=value, repeatable and applied in order")
	cmd.Flags().StringVar(&c.Doc, "doc", "", "update, inserted or saved document as extended JSON")
	cmd.Flags().StringVar(&c.Docs, "docs", "", "array of documents to insert as extended JSON")
	cmd.Flags().StringVar(&c.Options, "options", "", "findAndModify options as extended JSON")
}

// Step converts the flags into a harness step running op.
func (c *ChainOptions) Step(op string) (harness.Step, error) {
	step := harness.Step{Op: op}

	chain, err := ParseChain(c.Steps)
	if err != nil {
		return harness.Step{}, err
	}
	step.Chain = chain

	if step.Doc, err = parseDocument("doc", c.Doc); err != nil {
		return harness.Step{}, err
	}
	if step.Options, err = parseDocument("options", c.Options); err != nil {
		return harness.Step{}, err
	}
	if c.Docs != "" {
		v, err := ParseValue(c.Docs)
		if err != nil {
			return harness.Step{}, fmt.Errorf("--docs: %w", err)
		}
		list, ok := v.([]any)
		if !ok {
			return harness.Step{}, fmt.Errorf("--docs: expected an array, got %T", v)
		}
		for i, item := range list {
			doc, ok := item.(map[string]any)
			if !ok {
				return harness.Step{}, fmt.Errorf("--docs: element %d is %T, not a document", i, item)
			}
			step.Docs = append(step.Docs, doc)
		}
	}
	return step, nil
}

// Builder starts a chain on client for the configured collection.
func (c *ChainOptions) Builder(client *magnolia.Client) *magnolia.Builder {
	if c.Database != "" {
		return client.Collection(c.Collection, c.Database)
	}
	return client.Collection(c.Collection)
}

// ParseChain parses name or name=value entries into single-action chain
// entries. Names are checked; argument shapes are left to the builder.
func ParseChain(steps []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(steps))
	for i, s := range steps {
		name, raw, hasValue := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if _, err := actionlog.ParseKind(name); err != nil {
			return nil, fmt.Errorf("--step %d: %w", i, err)
		}
		var arg any
		if hasValue {
			parse := ParseValue
			if name == "sort" {
				parse = parseOrdered
			}
			v, err := parse(raw)
			if err != nil {
				return nil, fmt.Errorf("--step %d (%s): %w", i, name, err)
			}
			arg = v
		}
		out = append(out, map[string]any{name: arg})
	}
	return out, nil
}

// ParseValue decodes raw as a relaxed extended JSON value, so
// {"_id":{"$oid":"..."}} yields an ObjectID. Input that is not JSON is
// taken as a plain string.
func ParseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	var wrapper bson.M
	if err := bson.UnmarshalExtJSON([]byte(`{"v":`+raw+`}`), false, &wrapper); err != nil {
		if looksStructured(raw) {
			return nil, fmt.Errorf("invalid extended JSON: %w", err)
		}
		return raw, nil
	}
	return plain(wrapper["v"]), nil
}

// parseOrdered is ParseValue for sort documents, whose key order is
// significant: documents decode as bson.D.
func parseOrdered(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	var wrapper bson.D
	if err := bson.UnmarshalExtJSON([]byte(`{"v":`+raw+`}`), false, &wrapper); err != nil {
		if looksStructured(raw) {
			return nil, fmt.Errorf("invalid extended JSON: %w", err)
		}
		return raw, nil
	}
	return wrapper[0].Value, nil
}

func looksStructured(raw string) bool {
	return strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[")
}

func parseDocument(flag, raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := ParseValue(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("--%s: expected a document, got %T", flag, v)
	}
	return doc, nil
}

// plain converts decoded bson.M and bson.A values into map[string]any
// and []any so the rest of the CLI sees ordinary records and lists.
func plain(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = plain(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = plain(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}
