package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildComparisonJSONSchema returns a JSON-Schema (draft 2020-12 subset)
// as a generic map. We pass it to the model as a structured output
// constraint and also use it locally to validate.
func BuildComparisonJSONSchema() map[string]any {
	statusProp := map[string]any{
		"type": "string",
		"enum": []string{"match", "warning", "error"},
	}
	itemProps := map[string]any{
		"product_name":   map[string]any{"type": "string"},
		"invoice_value":  map[string]any{"type": "string"},
		"delivery_value": map[string]any{"type": "string"},
		"status":         statusProp,
		"note":           map[string]any{"type": "string"},
	}
	metadataProps := map[string]any{
		"field":          map[string]any{"type": "string"},
		"invoice_value":  map[string]any{"type": "string"},
		"delivery_value": map[string]any{"type": "string"},
		"status":         statusProp,
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           itemProps,
					"required":             []string{"product_name"},
				},
			},
			"metadata": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"properties":           metadataProps,
					"required":             []string{"field"},
				},
			},
			"summary": map[string]any{
				"type":                 "object",
				"additionalProperties": true,
			},
		},
		"required": []string{"items", "metadata"},
	}
}

// ValidateJSONAgainstSchema validates data against a schema map.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
