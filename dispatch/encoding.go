package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/YatsauAliaksei/openapi-mcp/convert"
)

// buildURL substitutes path parameters into the tool's path template and
// appends the query string.
func buildURL(baseURL string, tool *convert.Tool, args map[string]any) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("base URL: %w", err)
	}
	path := tool.Path
	query := base.Query()

	for _, p := range tool.Params {
		v, ok := args[p.Key]
		if !ok || v == nil {
			continue
		}
		switch p.In {
		case convert.LocationPath:
			s, err := simpleValue(v, p.Explode)
			if err != nil {
				return "", fmt.Errorf("path parameter %q: %w", p.Name, err)
			}
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(s))
		case convert.LocationQuery:
			if err := addQuery(query, p, v); err != nil {
				return "", fmt.Errorf("query parameter %q: %w", p.Name, err)
			}
		}
	}

	// path is already escaped; keep it as the raw path so %2F survives.
	rawPath := strings.TrimRight(base.EscapedPath(), "/") + path
	unescaped, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", fmt.Errorf("path: %w", err)
	}
	base.Path, base.RawPath = unescaped, rawPath
	base.RawQuery = query.Encode()
	base.Fragment = ""
	return base.String(), nil
}

func addQuery(query url.Values, p convert.Param, v any) error {
	if items, ok := asList(v); ok {
		values := make([]string, 0, len(items))
		for _, item := range items {
			s, err := scalarString(item)
			if err != nil {
				return err
			}
			values = append(values, s)
		}
		switch {
		case p.Style == "spaceDelimited":
			query.Set(p.Name, strings.Join(values, " "))
		case p.Style == "pipeDelimited":
			query.Set(p.Name, strings.Join(values, "|"))
		case p.Explode:
			for _, s := range values {
				query.Add(p.Name, s)
			}
		default:
			query.Set(p.Name, strings.Join(values, ","))
		}
		return nil
	}

	if obj, ok := v.(map[string]any); ok {
		keys := sortedKeys(obj)
		switch {
		case p.Style == "deepObject":
			for _, k := range keys {
				s, err := scalarString(obj[k])
				if err != nil {
					return err
				}
				query.Set(p.Name+"["+k+"]", s)
			}
		case p.Explode:
			for _, k := range keys {
				s, err := scalarString(obj[k])
				if err != nil {
					return err
				}
				query.Set(k, s)
			}
		default:
			s, err := simpleValue(obj, false)
			if err != nil {
				return err
			}
			query.Set(p.Name, s)
		}
		return nil
	}

	s, err := scalarString(v)
	if err != nil {
		return err
	}
	query.Set(p.Name, s)
	return nil
}

// simpleValue renders v in the "simple" style used by path and header
// parameters.
func simpleValue(v any, explode bool) (string, error) {
	if items, ok := asList(v); ok {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			s, err := scalarString(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), nil
	}
	if obj, ok := v.(map[string]any); ok {
		parts := make([]string, 0, 2*len(obj))
		for _, k := range sortedKeys(obj) {
			s, err := scalarString(obj[k])
			if err != nil {
				return "", err
			}
			if explode {
				parts = append(parts, k+"="+s)
			} else {
				parts = append(parts, k, s)
			}
		}
		return strings.Join(parts, ","), nil
	}
	return scalarString(v)
}

func scalarString(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	case nil:
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// asList reports whether v is a list value and returns its items.
func asList(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// encodeBody serializes the body arguments according to the tool's content
// type and returns the body with its Content-Type.
func encodeBody(tool *convert.Tool, args map[string]any) (io.Reader, string, error) {
	switch tool.ContentType {
	case convert.ContentTypeJSON:
		return encodeJSON(tool, args)
	case convert.ContentTypeForm:
		return encodeForm(tool, args)
	case convert.ContentTypeMultipart:
		return encodeMultipart(tool, args)
	}
	return nil, "", nil
}

func encodeJSON(tool *convert.Tool, args map[string]any) (io.Reader, string, error) {
	for _, p := range tool.Params {
		if p.In != convert.LocationBody || !p.Whole {
			continue
		}
		v, ok := args[p.Key]
		if !ok || v == nil {
			return nil, "", nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode JSON body: %w", err)
		}
		return bytes.NewReader(raw), mediaTypeOr(tool.MediaType, "application/json"), nil
	}
	return nil, "", nil
}

func encodeForm(tool *convert.Tool, args map[string]any) (io.Reader, string, error) {
	fields, err := bodyFields(tool, args)
	if err != nil {
		return nil, "", err
	}
	if len(fields) == 0 {
		return nil, "", nil
	}

	form := make(url.Values)
	for _, f := range fields {
		if items, ok := asList(f.value); ok {
			for _, item := range items {
				s, err := scalarString(item)
				if err != nil {
					return nil, "", fmt.Errorf("form field %q: %w", f.name, err)
				}
				form.Add(f.name, s)
			}
			continue
		}
		s, err := scalarString(f.value)
		if err != nil {
			return nil, "", fmt.Errorf("form field %q: %w", f.name, err)
		}
		form.Set(f.name, s)
	}
	return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeMultipart(tool *convert.Tool, args map[string]any) (io.Reader, string, error) {
	fields, err := bodyFields(tool, args)
	if err != nil {
		return nil, "", err
	}
	if len(fields) == 0 {
		return nil, "", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.binary {
			if err := writeFiles(w, f.name, f.value); err != nil {
				return nil, "", err
			}
			continue
		}
		if err := writeField(w, f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeField(w *multipart.Writer, name string, v any) error {
	if items, ok := asList(v); ok {
		for _, item := range items {
			if err := writeField(w, name, item); err != nil {
				return err
			}
		}
		return nil
	}
	if s, ok := v.(string); ok {
		// text fields often arrive with escaped line breaks
		return w.WriteField(name, strings.ReplaceAll(s, `\n`, "\n"))
	}
	s, err := scalarString(v)
	if err != nil {
		return fmt.Errorf("multipart field %q: %w", name, err)
	}
	return w.WriteField(name, s)
}

// writeFiles writes file parts. A string value is a local file path, a
// []byte value is the file content.
func writeFiles(w *multipart.Writer, name string, v any) error {
	switch v := v.(type) {
	case []byte:
		return writeFilePart(w, name, name, "application/octet-stream", bytes.NewReader(v))
	case string:
		f, err := os.Open(v)
		if err != nil {
			return fmt.Errorf("file field %q: %w", name, err)
		}
		defer f.Close()
		contentType := mime.TypeByExtension(filepath.Ext(v))
		return writeFilePart(w, name, filepath.Base(v), mediaTypeOr(contentType, "application/octet-stream"), f)
	}
	if items, ok := asList(v); ok {
		for _, item := range items {
			if err := writeFiles(w, name, item); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("file field %q: expected a file path or bytes, got %T", name, v)
}

func writeFilePart(w *multipart.Writer, field, filename, contentType string, r io.Reader) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("file field %q: %w", field, err)
	}
	return nil
}

type bodyField struct {
	name   string
	value  any
	binary bool
}

// bodyFields flattens the body arguments of a form or multipart tool into
// fields in parameter order. A whole-body argument contributes one field per
// object key.
func bodyFields(tool *convert.Tool, args map[string]any) ([]bodyField, error) {
	var fields []bodyField
	for _, p := range tool.Params {
		if p.In != convert.LocationBody {
			continue
		}
		v, ok := args[p.Key]
		if !ok || v == nil {
			continue
		}
		if !p.Whole {
			fields = append(fields, bodyField{name: p.Name, value: v, binary: p.Binary})
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("body must be an object, got %T", v)
		}
		for _, k := range sortedKeys(obj) {
			if obj[k] != nil {
				fields = append(fields, bodyField{name: k, value: obj[k]})
			}
		}
	}
	return fields, nil
}

func mediaTypeOr(mt, fallback string) string {
	if mt == "" {
		return fallback
	}
	return mt
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
