package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/renwick/stepflow/pkg/schema"
)

// blueprintSchemaJSON is the JSON Schema for persisted workflow and template
// blueprints. Embedded as a constant to avoid filesystem dependencies.
const blueprintSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://stepflow.dev/schemas/blueprint.json",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": {
      "type": "string"
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {
          "type": "string",
          "minLength": 1
        },
        "description": {
          "type": "string"
        },
        "action": {
          "type": "string"
        },
        "params": {
          "type": "object"
        }
      },
      "additionalProperties": false
    }
  }
}`

// BlueprintValidator validates blueprint files against the embedded JSON
// Schema plus structural rules the schema cannot express. Safe for
// concurrent use.
type BlueprintValidator struct {
	compiled *jsonschema.Schema
}

// NewBlueprintValidator compiles the embedded blueprint schema.
func NewBlueprintValidator() (*BlueprintValidator, error) {
	c := jsonschema.NewCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(blueprintSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal blueprint schema: %w", err)
	}
	if err := c.AddResource("https://stepflow.dev/schemas/blueprint.json", doc); err != nil {
		return nil, fmt.Errorf("add blueprint schema resource: %w", err)
	}

	compiled, err := c.Compile("https://stepflow.dev/schemas/blueprint.json")
	if err != nil {
		return nil, fmt.Errorf("compile blueprint schema: %w", err)
	}

	return &BlueprintValidator{compiled: compiled}, nil
}

// Validate checks a decoded blueprint. Structural violations and duplicate
// step names are rejected before any action binding happens.
func (v *BlueprintValidator) Validate(file *schema.WorkflowFile) error {
	if file == nil {
		return schema.NewError(schema.ErrCodeValidation, "blueprint is nil")
	}

	doc, err := toJSONValue(file)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize blueprint").WithCause(err)
	}

	if err := v.compiled.Validate(doc); err != nil {
		return toFlowError(err)
	}

	seen := make(map[string]struct{}, len(file.Steps))
	for _, step := range file.Steps {
		if _, exists := seen[step.Name]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"duplicate step name %q", step.Name)
		}
		seen[step.Name] = struct{}{}
	}

	return nil
}

// toJSONValue round-trips a value through JSON so numbers and field names
// match what the schema validator expects.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
}

// toFlowError converts a jsonschema validation error into a FlowError with
// the individual violations listed in the details.
func toFlowError(err error) error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("blueprint validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
