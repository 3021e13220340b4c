package convert

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// schemaConverter turns resolved OpenAPI schemas into plain JSON-schema
// maps describing request input. Output follows draft-04 keywords so
// boolean exclusive bounds and nullable carry over without rewriting.
type schemaConverter struct {
	// visiting holds the schemas on the current descent path.
	visiting map[*openapi3.Schema]bool
}

func newSchemaConverter() *schemaConverter {
	return &schemaConverter{visiting: make(map[*openapi3.Schema]bool)}
}

func (c *schemaConverter) convertRef(ref *openapi3.SchemaRef) map[string]any {
	if ref == nil || ref.Value == nil {
		return map[string]any{}
	}
	return c.convert(ref.Value)
}

// convert processes a single schema property
func (c *schemaConverter) convert(schema *openapi3.Schema) map[string]any {
	if c.visiting[schema] {
		name := schema.Title
		if name == "" {
			name = "parent schema"
		}
		return map[string]any{"description": "Circular reference to " + name}
	}
	c.visiting[schema] = true
	defer delete(c.visiting, schema)

	property := make(map[string]any)

	if t := schemaTypes(schema); len(t) > 0 {
		if schema.Nullable {
			t = append(t, "null")
		}
		if len(t) == 1 {
			property["type"] = t[0]
		} else {
			property["type"] = t
		}
	}

	// Basic metadata
	if schema.Title != "" {
		property["title"] = schema.Title
	}
	if schema.Description != "" {
		property["description"] = schema.Description
	}
	if schema.Default != nil {
		property["default"] = schema.Default
	}
	if len(schema.Enum) > 0 {
		property["enum"] = schema.Enum
	}
	if schema.Format != "" {
		property["format"] = schema.Format
	}

	// Schema composition
	if list := c.convertList(schema.OneOf); len(list) > 0 {
		property["oneOf"] = list
	}
	if list := c.convertList(schema.AnyOf); len(list) > 0 {
		property["anyOf"] = list
	}
	if list := c.convertList(schema.AllOf); len(list) > 0 {
		property["allOf"] = list
	}
	if schema.Not != nil && schema.Not.Value != nil {
		property["not"] = c.convert(schema.Not.Value)
	}

	if schema.ReadOnly {
		property["readOnly"] = true
	}
	if schema.WriteOnly {
		property["writeOnly"] = true
	}
	if schema.Deprecated {
		property["deprecated"] = true
	}
	if schema.UniqueItems {
		property["uniqueItems"] = true
	}

	// Number validations
	if schema.Min != nil {
		property["minimum"] = *schema.Min
		if schema.ExclusiveMin {
			property["exclusiveMinimum"] = true
		}
	}
	if schema.Max != nil {
		property["maximum"] = *schema.Max
		if schema.ExclusiveMax {
			property["exclusiveMaximum"] = true
		}
	}
	if schema.MultipleOf != nil {
		property["multipleOf"] = *schema.MultipleOf
	}

	// String validations
	if schema.MinLength != 0 {
		property["minLength"] = schema.MinLength
	}
	if schema.MaxLength != nil {
		property["maxLength"] = *schema.MaxLength
	}
	if schema.Pattern != "" {
		property["pattern"] = schema.Pattern
	}

	// Array validations
	if schema.MinItems != 0 {
		property["minItems"] = schema.MinItems
	}
	if schema.MaxItems != nil {
		property["maxItems"] = *schema.MaxItems
	}
	if schema.Items != nil && schema.Items.Value != nil {
		property["items"] = c.convert(schema.Items.Value)
	}

	// Object validations
	if schema.MinProps != 0 {
		property["minProperties"] = schema.MinProps
	}
	if schema.MaxProps != nil {
		property["maxProperties"] = *schema.MaxProps
	}
	// readOnly properties listed as required only bind responses.
	if required := writableRequired(schema); len(required) > 0 {
		property["required"] = required
	}
	if len(schema.Properties) > 0 {
		props := make(map[string]any, len(schema.Properties))
		for name, ref := range schema.Properties {
			if ref != nil && ref.Value != nil {
				props[name] = c.convert(ref.Value)
			}
		}
		property["properties"] = props
	}
	if schema.AdditionalProperties.Has != nil {
		property["additionalProperties"] = *schema.AdditionalProperties.Has
	} else if schema.AdditionalProperties.Schema != nil && schema.AdditionalProperties.Schema.Value != nil {
		property["additionalProperties"] = c.convert(schema.AdditionalProperties.Schema.Value)
	}

	return property
}

func (c *schemaConverter) convertList(refs openapi3.SchemaRefs) []any {
	if len(refs) == 0 {
		return nil
	}
	list := make([]any, 0, len(refs))
	for _, ref := range refs {
		if ref != nil && ref.Value != nil {
			list = append(list, c.convert(ref.Value))
		}
	}
	return list
}

func writableRequired(schema *openapi3.Schema) []string {
	var required []string
	for _, name := range schema.Required {
		if prop := schema.Properties[name]; prop != nil && prop.Value != nil && prop.Value.ReadOnly {
			continue
		}
		required = append(required, name)
	}
	return required
}

// schemaTypes returns the declared types of schema, inferring "object" when
// only properties are given.
func schemaTypes(schema *openapi3.Schema) []string {
	if schema.Type != nil && len(schema.Type.Slice()) > 0 {
		return append([]string(nil), schema.Type.Slice()...)
	}
	if len(schema.Properties) > 0 {
		return []string{"object"}
	}
	return nil
}

func isBinarySchema(schema *openapi3.Schema) bool {
	if schema == nil {
		return false
	}
	if schema.Format == "binary" {
		return true
	}
	if schema.Type != nil && schema.Type.Is("array") && schema.Items != nil && schema.Items.Value != nil {
		return schema.Items.Value.Format == "binary"
	}
	return false
}
