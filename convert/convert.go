package convert

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
)

// ErrUnsupportedContentType marks an operation whose request body has no
// JSON, url-encoded form or multipart representation. Such operations are
// skipped rather than failing the whole document.
var ErrUnsupportedContentType = errors.New("unsupported request content type")

// Options configures a Converter.
type Options struct {
	// ServiceName prefixes every tool name.
	ServiceName string
	Filter      *Filter
	Logger      *zap.Logger
}

// Converter compiles the operations of a parsed document into tools.
type Converter struct {
	parser  *Parser
	options Options

	// ambiguous holds normalized operation ids declared more than once.
	ambiguous map[string]bool
}

// NewConverter creates a new converter for the parser's document.
func NewConverter(parser *Parser, options Options) *Converter {
	if options.Logger == nil {
		options.Logger = zap.NewNop()
	}
	c := &Converter{
		parser:  parser,
		options: options,
	}
	c.ambiguous = duplicateOperationIDs(parser.Operations())
	return c
}

// Convert compiles every operation that survives the filter. Operations
// with an unsupported request content type are skipped with a warning.
func (c *Converter) Convert() ([]*Tool, error) {
	if c.parser.GetDocument() == nil {
		return nil, errors.New("no OpenAPI document loaded")
	}

	ops := Select(c.parser.Operations(), c.options.Filter)
	tools := make([]*Tool, 0, len(ops))
	for _, op := range ops {
		tool, err := c.ConvertOperation(op)
		if errors.Is(err, ErrUnsupportedContentType) {
			c.options.Logger.Warn("skipping operation",
				zap.String("service", c.options.ServiceName),
				zap.String("method", op.Method),
				zap.String("path", op.Path),
				zap.Error(err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to convert operation %s %s: %w", op.Method, op.Path, err)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}

// ConvertOperation compiles a single operation.
func (c *Converter) ConvertOperation(op Operation) (*Tool, error) {
	sc := newSchemaConverter()

	params := c.convertParameters(sc, op.Parameters)

	contentType, mediaType, bodyParams, err := c.convertRequestBody(sc, op.RequestBody)
	if err != nil {
		return nil, err
	}
	params = assignKeys(append(params, bodyParams...))

	name := c.operationName(op)
	tool := &Tool{
		Name:        qualify(c.options.ServiceName, name),
		Service:     c.options.ServiceName,
		Operation:   name,
		Method:      op.Method,
		Path:        op.Path,
		Description: getDescription(op),
		Tags:        op.Tags,
		Params:      params,
		ContentType: contentType,
		MediaType:   mediaType,
	}

	if err := tool.compileValidator(); err != nil {
		c.options.Logger.Warn("argument schema not compilable, checking required arguments only",
			zap.String("tool", tool.Name),
			zap.Error(err))
	}
	return tool, nil
}

func (c *Converter) operationName(op Operation) string {
	if op.OperationID != "" {
		slug := slugify(op.OperationID)
		if slug != "" && !c.ambiguous[slug] {
			return slug
		}
	}
	return synthesizeName(op.Method, op.Path)
}

// convertParameters converts OpenAPI parameters to tool parameters
func (c *Converter) convertParameters(sc *schemaConverter, parameters openapi3.Parameters) []Param {
	params := make([]Param, 0, len(parameters))

	for _, paramRef := range parameters {
		if paramRef == nil || paramRef.Value == nil {
			continue
		}
		param := paramRef.Value
		in := Location(param.In)
		if in == LocationHeader && isReservedHeader(param.Name) {
			continue
		}

		var raw *openapi3.Schema
		if param.Schema != nil {
			raw = param.Schema.Value
		}
		schema := sc.convertRef(param.Schema)
		if _, ok := schema["type"]; !ok && raw == nil {
			schema["type"] = "string"
		}

		desc := param.Description
		if desc == "" && raw != nil {
			desc = raw.Description
		}
		if desc = describeParameter(desc, raw); desc != "" {
			schema["description"] = desc
		}

		style, explode := serialization(param)
		params = append(params, Param{
			Key:      param.Name,
			Name:     param.Name,
			In:       in,
			Required: param.Required || in == LocationPath,
			Schema:   schema,
			Style:    style,
			Explode:  explode,
		})
	}

	return params
}

// convertRequestBody converts an OpenAPI request body to tool parameters
func (c *Converter) convertRequestBody(sc *schemaConverter, body *openapi3.RequestBody) (ContentType, string, []Param, error) {
	if body == nil || len(body.Content) == 0 {
		return ContentTypeNone, "", nil, nil
	}

	mediaType, media, kind := pickContent(body.Content)
	if kind == ContentTypeNone {
		return "", "", nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, strings.Join(sortedKeys(body.Content), ", "))
	}

	var raw *openapi3.Schema
	if media.Schema != nil {
		raw = media.Schema.Value
	}

	if kind == ContentTypeJSON || raw == nil || len(raw.Properties) == 0 {
		schema := sc.convertRef(media.Schema)
		if kind != ContentTypeJSON {
			schema["type"] = "object"
		}
		desc := body.Description
		if desc == "" {
			desc, _ = schema["description"].(string)
		}
		desc = joinSentence(desc, "Body Content-Type: "+mediaType+".")
		schema["description"] = desc

		return kind, mediaType, []Param{{
			Key:      "body",
			Name:     "body",
			In:       LocationBody,
			Required: body.Required,
			Schema:   schema,
			Whole:    true,
		}}, nil
	}

	required := make(map[string]bool, len(raw.Required))
	for _, name := range raw.Required {
		required[name] = true
	}

	params := make([]Param, 0, len(raw.Properties))
	for _, name := range sortedKeys(raw.Properties) {
		prop := raw.Properties[name]
		if prop == nil || prop.Value == nil || prop.Value.ReadOnly {
			continue
		}
		schema := sc.convert(prop.Value)
		binary := kind == ContentTypeMultipart && isBinarySchema(prop.Value)
		if binary {
			desc, _ := schema["description"].(string)
			schema["description"] = joinSentence(desc, "Path of a local file to upload.")
		}
		params = append(params, Param{
			Key:      name,
			Name:     name,
			In:       LocationBody,
			Required: body.Required && required[name],
			Schema:   schema,
			Binary:   binary,
		})
	}
	return kind, mediaType, params, nil
}

// pickContent selects the request representation to use: JSON first, then
// multipart, then url-encoded form.
func pickContent(content openapi3.Content) (string, *openapi3.MediaType, ContentType) {
	rank := map[ContentType]int{ContentTypeJSON: 0, ContentTypeMultipart: 1, ContentTypeForm: 2}

	var (
		bestType  string
		bestMedia *openapi3.MediaType
		bestKind  = ContentTypeNone
	)
	for _, mt := range sortedKeys(content) {
		kind := classifyMediaType(mt)
		if kind == ContentTypeNone || content[mt] == nil {
			continue
		}
		if bestKind == ContentTypeNone || rank[kind] < rank[bestKind] {
			bestType, bestMedia, bestKind = mt, content[mt], kind
		}
	}
	return bestType, bestMedia, bestKind
}

func classifyMediaType(mediaType string) ContentType {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return ContentTypeNone
	}
	switch {
	case IsJSONMediaType(mt):
		return ContentTypeJSON
	case mt == "multipart/form-data":
		return ContentTypeMultipart
	case mt == "application/x-www-form-urlencoded":
		return ContentTypeForm
	}
	return ContentTypeNone
}

// IsJSONMediaType reports whether mt (without parameters) is a JSON type.
func IsJSONMediaType(mt string) bool {
	mt = strings.ToLower(mt)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func serialization(param *openapi3.Parameter) (string, bool) {
	style := param.Style
	if style == "" {
		switch Location(param.In) {
		case LocationQuery, LocationCookie:
			style = openapi3.SerializationForm
		default:
			style = openapi3.SerializationSimple
		}
	}
	explode := style == openapi3.SerializationForm
	if param.Explode != nil {
		explode = *param.Explode
	}
	return style, explode
}

func isReservedHeader(name string) bool {
	switch strings.ToLower(name) {
	case "accept", "content-type", "authorization":
		return true
	}
	return false
}

// assignKeys makes argument keys unique; a later parameter whose key is
// taken is prefixed with its location.
func assignKeys(params []Param) []Param {
	taken := make(map[string]bool, len(params))
	for i := range params {
		key := params[i].Key
		if taken[key] {
			key = string(params[i].In) + "_" + params[i].Name
			for n := 2; taken[key]; n++ {
				key = fmt.Sprintf("%s_%s_%d", params[i].In, params[i].Name, n)
			}
		}
		params[i].Key = key
		taken[key] = true
	}
	return params
}

// getDescription returns a description for an operation
func getDescription(op Operation) string {
	var parts []string

	if op.Summary != "" {
		parts = append(parts, op.Summary)
	}
	if op.Description != "" && op.Description != op.Summary {
		parts = append(parts, op.Description)
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%s %s", op.Method, op.Path))
	}

	// Add deprecated notice if applicable
	if op.Deprecated {
		parts = append(parts, "WARNING: This operation is deprecated.")
	}

	if resp := responseDescription(op.Responses); resp != "" {
		parts = append(parts, "Responses:\n"+resp)
	}

	return strings.Join(parts, "\n\n")
}

// responseDescription lists the documented status codes of an operation.
func responseDescription(responses *openapi3.Responses) string {
	if responses == nil {
		return ""
	}
	respMap := responses.Map()
	codes := sortedKeys(respMap)

	lines := make([]string, 0, len(codes))
	for _, code := range codes {
		ref := respMap[code]
		if ref == nil || ref.Value == nil {
			continue
		}
		desc := ""
		if ref.Value.Description != nil {
			desc = strings.TrimSpace(*ref.Value.Description)
		}
		if desc == "" {
			lines = append(lines, "- "+code)
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", code, desc))
	}
	return strings.Join(lines, "\n")
}

func duplicateOperationIDs(ops []Operation) map[string]bool {
	counts := make(map[string]int)
	for _, op := range ops {
		if op.OperationID != "" {
			counts[slugify(op.OperationID)]++
		}
	}
	dups := make(map[string]bool)
	for slug, n := range counts {
		if n > 1 {
			dups[slug] = true
		}
	}
	return dups
}

// synthesizeName generates a tool name from the method and path.
func synthesizeName(method, path string) string {
	trimmed := strings.Trim(path, "/")
	pathName := "root"
	if trimmed != "" {
		pathName = strings.ReplaceAll(trimmed, "/", "_")
		pathName = strings.ReplaceAll(pathName, "{", "")
		pathName = strings.ReplaceAll(pathName, "}", "")
	}
	return slugify(fmt.Sprintf("%s_%s", strings.ToLower(method), pathName))
}

// slugify lowercases s and replaces every non-alphanumeric rune with '_'.
func slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func qualify(service, name string) string {
	if service == "" {
		return name
	}
	return service + "_" + name
}
