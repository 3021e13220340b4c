package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

// Location is where a parameter travels in the HTTP request.
type Location string

const (
	LocationPath   Location = "path"
	LocationQuery  Location = "query"
	LocationHeader Location = "header"
	LocationCookie Location = "cookie"
	LocationBody   Location = "body"
)

// ContentType is the request body encoding of a tool.
type ContentType string

const (
	ContentTypeNone      ContentType = "none"
	ContentTypeJSON      ContentType = "json"
	ContentTypeForm      ContentType = "form-urlencoded"
	ContentTypeMultipart ContentType = "multipart"
)

// Param describes one argument of a tool and where it goes on the wire.
type Param struct {
	// Key is the argument name callers use.
	Key string
	// Name is the name on the wire (parameter, header, cookie or form field).
	Name     string
	In       Location
	Required bool
	Schema   map[string]any

	// Style and Explode follow the OpenAPI serialization rules for
	// path, query, header and cookie parameters.
	Style   string
	Explode bool

	// Whole marks the argument carrying the complete request body.
	Whole bool
	// Binary marks a multipart field sent as a file part.
	Binary bool
}

// Tool is a compiled, callable operation.
type Tool struct {
	// Name is the qualified name, unique across all services.
	Name        string
	Service     string
	Operation   string
	Method      string
	Path        string
	Description string
	Tags        []string
	Params      []Param

	ContentType ContentType
	// MediaType is the declared request media type sent as Content-Type.
	MediaType string

	validator *jsonschema.Schema
}

// Param returns the parameter with argument key k.
func (t *Tool) Param(k string) (Param, bool) {
	for _, p := range t.Params {
		if p.Key == k {
			return p, true
		}
	}
	return Param{}, false
}

// InputSchema returns the JSON schema of the tool's arguments.
func (t *Tool) InputSchema() map[string]any {
	properties := make(map[string]any, len(t.Params))
	var required []string
	for _, p := range t.Params {
		properties[p.Key] = p.Schema
		if p.Required {
			required = append(required, p.Key)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Validate checks args against the tool's parameter schema: every required
// argument must be present, and values must satisfy their schemas.
func (t *Tool) Validate(args map[string]any) error {
	for _, p := range t.Params {
		if !p.Required {
			continue
		}
		if v, ok := args[p.Key]; !ok || v == nil {
			return &errdefs.ValidationError{
				Tool:    t.Name,
				Param:   p.Key,
				Message: fmt.Sprintf("missing required %s parameter", p.In),
			}
		}
	}

	if t.validator == nil {
		return nil
	}

	doc, err := normalizeArgs(t, args)
	if err != nil {
		return &errdefs.ValidationError{Tool: t.Name, Message: err.Error()}
	}
	if err := t.validator.Validate(doc); err != nil {
		return &errdefs.ValidationError{Tool: t.Name, Message: validationMessage(err)}
	}
	return nil
}

// compileValidator compiles the tool's input schema.
func (t *Tool) compileValidator() error {
	schema := t.InputSchema()
	// File parts accept paths or raw bytes; leave them unconstrained.
	props := schema["properties"].(map[string]any)
	for _, p := range t.Params {
		if p.Binary {
			props[p.Key] = map[string]any{}
		}
	}

	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft4
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return err
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return err
	}
	t.validator = compiled
	return nil
}

// normalizeArgs round-trips the known, non-null arguments through JSON so
// the validator sees plain JSON values. File arguments are kept as a
// placeholder: their schema is unconstrained but they may be required.
func normalizeArgs(t *Tool, args map[string]any) (any, error) {
	known := make(map[string]any, len(args))
	for k, v := range args {
		p, ok := t.Param(k)
		if !ok || v == nil {
			continue
		}
		if p.Binary {
			known[k] = true
			continue
		}
		known[k] = v
	}
	raw, err := json.Marshal(known)
	if err != nil {
		return nil, fmt.Errorf("arguments are not JSON-encodable: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func validationMessage(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
	if loc == "" {
		return leaf.Message
	}
	return fmt.Sprintf("%s: %s", loc, leaf.Message)
}
