package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// NormalizeToSchema filters extracted data down to the keys the schema
// declares and verifies that every required key made it through. The
// allow-list is strict: extra keys the LLM invented (diagnostic flags
// included) are always dropped, and partial output never passes as success.
// A schema without a properties object passes object data through unchanged.
func NormalizeToSchema(data any, schema map[string]any) (map[string]any, error) {
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, errors.New("not an object; cannot satisfy schema")
	}

	props := schemaProperties(schema)
	if props == nil {
		return obj, nil
	}

	filtered := make(map[string]any, len(props))
	for key := range props {
		if value, ok := obj[key]; ok {
			filtered[key] = value
		}
	}

	if missing := missingRequired(schema, filtered); len(missing) > 0 {
		return nil, fmt.Errorf("Missing required fields: %s", strings.Join(missing, ", "))
	}

	return filtered, nil
}

func schemaProperties(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return nil
	}
	return props
}

func missingRequired(schema map[string]any, filtered map[string]any) []string {
	required, ok := schema["required"].([]any)
	if !ok {
		return nil
	}
	var missing []string
	for _, item := range required {
		key, ok := item.(string)
		if !ok {
			continue
		}
		if _, present := filtered[key]; !present {
			missing = append(missing, key)
		}
	}
	return missing
}
