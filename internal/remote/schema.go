package remote

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Response schemas for the two endpoints. Validated before any field
// is trusted, so malformed bodies fail as one error instead of
// surfacing as odd zero values downstream.

func taggerResponseSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"tags"},
		"properties": map[string]any{
			"tags": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"score"},
					"properties": map[string]any{
						"label_en": map[string]any{"type": "string"},
						"label":    map[string]any{"type": "string"},
						"score":    map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
					},
				},
			},
		},
	}
}

func translateResponseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"textsTranslated": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"error":  map[string]any{"type": "string"},
			"detail": map[string]any{"type": "string"},
		},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
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
