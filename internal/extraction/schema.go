package extraction

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildExpenseJSONSchema returns the JSON-Schema (draft 2020-12 subset) the
// sanitized LLM output must satisfy. Every field is nullable: partial
// extraction is a valid outcome, not a schema violation.
func BuildExpenseJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"amount":   map[string]any{"type": []string{"integer", "number", "null"}},
			"currency": map[string]any{"type": []string{"string", "null"}, "minLength": 1},
			"merchant": map[string]any{"type": []string{"string", "null"}, "minLength": 1},
			"date":     map[string]any{"type": []string{"string", "null"}},
			"category": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"ambiguous": map[string]any{
				"type": []string{"object", "null"},
				"properties": map[string]any{
					"reason": map[string]any{"type": "string"},
				},
				"additionalProperties": false,
			},
		},
	}
}

// ValidateJSONAgainstSchema compiles the schema map and validates doc (raw
// JSON bytes) against it.
func ValidateJSONAgainstSchema(schema map[string]any, doc []byte) error {
	sb, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	sch, err := jsonschema.CompileString("expense.schema.json", string(sb))
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return sch.Validate(v)
}
