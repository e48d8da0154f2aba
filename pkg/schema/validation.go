package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// graphSchemaJSON is the JSON Schema for GraphDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const graphSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://finsight.dev/schemas/graph.json",
  "type": "object",
  "required": ["entry", "nodes", "edges"],
  "properties": {
    "name": { "type": "string" },
    "entry": { "type": "string", "minLength": 1 },
    "fallback": { "type": "string" },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["name", "capability"],
      "properties": {
        "name": { "type": "string", "minLength": 1 },
        "capability": { "type": "string", "minLength": 1 },
        "params": { "type": "object" },
        "hooks": {
          "type": "array",
          "items": { "type": "string" }
        },
        "timeout": {
          "type": "string",
          "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$"
        }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "from": { "type": "string", "minLength": 1 },
        "to": { "type": "string", "minLength": 1 },
        "predicate": { "type": "string" },
        "engine": { "type": "string", "enum": ["expr", "cel"] },
        "on_error": { "type": "boolean" }
      },
      "additionalProperties": false
    }
  }
}`

// GraphValidator validates GraphDefinition documents against the embedded
// JSON Schema (Draft 2020-12). It is safe for concurrent use.
type GraphValidator struct {
	schema *jsonschema.Schema
}

var (
	validatorOnce sync.Once
	validator     *GraphValidator
	validatorErr  error
)

// NewGraphValidator compiles the embedded graph schema.
func NewGraphValidator() (*GraphValidator, error) {
	validatorOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(graphSchemaJSON))
		if err != nil {
			validatorErr = fmt.Errorf("unmarshal graph schema: %w", err)
			return
		}
		if err := c.AddResource("https://finsight.dev/schemas/graph.json", doc); err != nil {
			validatorErr = fmt.Errorf("add graph schema resource: %w", err)
			return
		}
		compiled, err := c.Compile("https://finsight.dev/schemas/graph.json")
		if err != nil {
			validatorErr = fmt.Errorf("compile graph schema: %w", err)
			return
		}
		validator = &GraphValidator{schema: compiled}
	})
	return validator, validatorErr
}

// Validate checks a GraphDefinition against the graph JSON Schema and the
// structural constraints the schema cannot express (duplicate node names,
// edges referencing undefined nodes).
func (v *GraphValidator) Validate(def *GraphDefinition) error {
	if def == nil {
		return NewError(ErrCodeGraph, "graph definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return NewError(ErrCodeGraph, "failed to serialize graph definition").WithCause(err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return toAgentError(err)
	}

	names := make(map[string]struct{}, len(def.Nodes))
	for _, n := range def.Nodes {
		if _, exists := names[n.Name]; exists {
			return NewErrorf(ErrCodeGraph, "duplicate node name %q", n.Name)
		}
		names[n.Name] = struct{}{}
	}
	if _, ok := names[def.Entry]; !ok {
		return NewErrorf(ErrCodeGraph, "entry node %q is not defined", def.Entry)
	}
	if def.Fallback != "" {
		if _, ok := names[def.Fallback]; !ok {
			return NewErrorf(ErrCodeGraph, "fallback node %q is not defined", def.Fallback)
		}
	}
	for _, e := range def.Edges {
		if _, ok := names[e.From]; !ok {
			return NewErrorf(ErrCodeGraph, "edge references undefined node %q", e.From)
		}
		if _, ok := names[e.To]; !ok {
			return NewErrorf(ErrCodeGraph, "edge references undefined node %q", e.To)
		}
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toAgentError converts a jsonschema.ValidationError into an AgentError
// with one message per violation.
func toAgentError(err error) *AgentError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return NewError(ErrCodeGraph, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return NewError(ErrCodeGraph, verr.Error())
	}
	return NewErrorf(ErrCodeGraph, "graph definition invalid: %s", strings.Join(violations, "; ")).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks the validation error tree gathering leaf messages.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, collectViolations(c)...)
	}
	return out
}
