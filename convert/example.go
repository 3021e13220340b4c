package convert

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// exampleValue returns a sample value for schema: its example, default or
// first enum value when declared, otherwise a placeholder built from the
// schema's type and format.
func exampleValue(schema *openapi3.Schema) any {
	return sampleOf(schema, make(map[*openapi3.Schema]bool))
}

func sampleOf(schema *openapi3.Schema, seen map[*openapi3.Schema]bool) any {
	if schema == nil {
		return "example"
	}
	if schema.Example != nil {
		return schema.Example
	}
	if schema.Default != nil {
		return schema.Default
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}
	if seen[schema] {
		return map[string]any{}
	}
	seen[schema] = true
	defer delete(seen, schema)

	types := schemaTypes(schema)
	if len(types) == 0 {
		return "example"
	}

	switch types[0] {
	case "object":
		obj := make(map[string]any, len(schema.Properties))
		for name, ref := range schema.Properties {
			if ref != nil && ref.Value != nil {
				obj[name] = sampleOf(ref.Value, seen)
			}
		}
		return obj
	case "array":
		if schema.Items == nil {
			return []any{}
		}
		return []any{sampleOf(schema.Items.Value, seen)}
	case "string":
		switch schema.Format {
		case "date-time":
			return "2023-01-01T00:00:00Z"
		case "date":
			return "2023-01-01"
		case "uuid":
			return "123e4567-e89b-12d3-a456-426614174000"
		case "email":
			return "user@example.com"
		case "uri", "url":
			return "https://example.com"
		}
		return "string"
	case "integer":
		return 0
	case "number":
		return 0.0
	case "boolean":
		return true
	}
	return "example"
}

// describeParameter appends the possible values and an example to desc.
func describeParameter(desc string, schema *openapi3.Schema) string {
	if schema == nil {
		return desc
	}
	if len(schema.Enum) > 0 {
		desc = joinSentence(desc, "Possible values: "+formatValue(schema.Enum))
	}
	return joinSentence(desc, "Example: "+formatValue(exampleValue(schema)))
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
	}
	return fmt.Sprintf("%v", v)
}

func joinSentence(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
