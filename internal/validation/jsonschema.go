package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mvaldes-dt/schemaflow/pkg/schema"
)

// mappingSchemaJSON is the JSON Schema for the field mapping documents
// produced by model calls. Embedded as a constant to avoid filesystem
// dependencies.
const mappingSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://schemaflow.dev/schemas/mappings.json",
  "type": "array",
  "items": { "$ref": "#/$defs/mapping" },
  "$defs": {
    "mapping": {
      "type": "object",
      "required": ["source_column", "target_column", "transform_kind"],
      "properties": {
        "source_column": {
          "type": "string",
          "minLength": 1
        },
        "target_column": {
          "type": "string",
          "minLength": 1
        },
        "source_type": { "type": "string" },
        "target_type": { "type": "string" },
        "transform_kind": {
          "type": "string",
          "enum": ["DIRECT", "TYPE_CAST", "CALCULATED", "LOOKUP", "DERIVED"]
        },
        "transform_expr": { "type": "string" },
        "confidence": {
          "type": "number",
          "minimum": 0,
          "maximum": 1
        },
        "requires_review": { "type": "boolean" }
      },
      "additionalProperties": false
    }
  }
}`

// MappingValidator validates model-produced mapping documents against the
// mapping JSON Schema (Draft 2020-12). It is safe for concurrent use.
type MappingValidator struct {
	mappingSchema *jsonschema.Schema
}

// NewMappingValidator creates a MappingValidator with the mapping schema
// pre-compiled.
func NewMappingValidator() (*MappingValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(mappingSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal mapping schema: %w", err)
	}
	if err := c.AddResource("https://schemaflow.dev/schemas/mappings.json", doc); err != nil {
		return nil, fmt.Errorf("add mapping schema resource: %w", err)
	}

	compiled, err := c.Compile("https://schemaflow.dev/schemas/mappings.json")
	if err != nil {
		return nil, fmt.Errorf("compile mapping schema: %w", err)
	}

	return &MappingValidator{mappingSchema: compiled}, nil
}

// ValidateMappings validates a slice of field mappings against the mapping
// JSON Schema, plus structural checks the schema cannot express.
func (v *MappingValidator) ValidateMappings(mappings []schema.FieldMapping) error {
	if mappings == nil {
		// A nil slice marshals to JSON null, which the array schema rejects.
		mappings = []schema.FieldMapping{}
	}
	doc, err := toJSONValue(mappings)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidationFailed, "failed to serialize mappings").WithCause(err)
	}

	if err := v.mappingSchema.Validate(doc); err != nil {
		return toPipelineError(err)
	}

	// Duplicate target columns cannot be expressed in JSON Schema.
	seen := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		if _, exists := seen[m.TargetColumn]; exists {
			return schema.NewErrorf(schema.ErrCodeValidationFailed,
				"duplicate target column %q in mappings", m.TargetColumn)
		}
		seen[m.TargetColumn] = struct{}{}
	}

	return nil
}

// ValidateRaw validates an arbitrary decoded JSON document against the
// mapping schema. Used on model responses before they are bound to typed
// mappings.
func (v *MappingValidator) ValidateRaw(doc any) error {
	normalized, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidationFailed, "failed to serialize document").WithCause(err)
	}
	if err := v.mappingSchema.Validate(normalized); err != nil {
		return toPipelineError(err)
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

// toPipelineError converts a jsonschema.ValidationError into a PipelineError
// carrying the individual violations.
func toPipelineError(err error) *schema.PipelineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidationFailed, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidationFailed, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidationFailed, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("mapping validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidationFailed, msg).
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
