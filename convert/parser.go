package convert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

const defaultFetchTimeout = 30 * time.Second

// Format is the serialization a document was written in.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Parser represents an OpenAPI parser
type Parser struct {
	client *http.Client
	logger *zap.Logger

	doc      *openapi3.T
	location string
	format   Format
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithHTTPClient sets the client used to fetch remote documents.
func WithHTTPClient(c *http.Client) ParserOption {
	return func(p *Parser) { p.client = c }
}

// WithParserLogger sets the parser's logger.
func WithParserLogger(l *zap.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

// NewParser creates a new OpenAPI parser
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		client: &http.Client{Timeout: defaultFetchTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile loads an OpenAPI document from a local path or an HTTP(S) URL.
func (p *Parser) ParseFile(ctx context.Context, location string) error {
	p.logger.Info("loading OpenAPI document", zap.String("location", location))

	var (
		data []byte
		err  error
	)
	if isURL(location) {
		data, err = p.fetch(ctx, location)
	} else {
		data, err = os.ReadFile(location)
		if err != nil {
			err = &errdefs.SpecLoadError{Kind: errdefs.KindNotFound, Location: location, Err: err}
		}
	}
	if err != nil {
		return err
	}

	return p.Parse(ctx, data, location)
}

// Parse parses an OpenAPI document from bytes. location, when set, is used
// to resolve relative external references.
func (p *Parser) Parse(ctx context.Context, data []byte, location string) error {
	fail := func(kind errdefs.Kind, err error) error {
		return &errdefs.SpecLoadError{Kind: kind, Location: location, Err: err}
	}

	format := detectFormat(data)
	root, err := decodeTree(data, format)
	if err != nil {
		return fail(errdefs.KindInvalidSpec, err)
	}
	top := documentRoot(root)
	if top == nil || top.Kind != yaml.MappingNode {
		return fail(errdefs.KindInvalidSpec, errors.New("document root is not an object"))
	}

	if err := checkVersion(top); err != nil {
		return fail(errdefs.KindInvalidSpec, err)
	}
	if err := checkLocalRefs(top); err != nil {
		return fail(errdefs.KindUnresolvedReference, err)
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx

	var doc *openapi3.T
	if loc := locationURL(location); loc != nil {
		doc, err = loader.LoadFromDataWithPath(data, loc)
	} else {
		doc, err = loader.LoadFromData(data)
	}
	if err != nil {
		if isRefError(err) {
			return fail(errdefs.KindUnresolvedReference, err)
		}
		return fail(errdefs.KindInvalidSpec, err)
	}

	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return fail(errdefs.KindInvalidSpec, err)
	}

	p.doc = doc
	p.location = location
	p.format = format
	p.logger.Debug("parsed OpenAPI document",
		zap.String("location", location),
		zap.String("format", string(p.format)),
		zap.String("openapi", doc.OpenAPI))
	return nil
}

func (p *Parser) fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &errdefs.SpecLoadError{Kind: errdefs.KindNotFound, Location: location, Err: err}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &errdefs.SpecLoadError{Kind: errdefs.KindNotFound, Location: location, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errdefs.SpecLoadError{
			Kind:     errdefs.KindNotFound,
			Location: location,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errdefs.SpecLoadError{Kind: errdefs.KindNotFound, Location: location, Err: err}
	}
	return data, nil
}

// GetDocument returns the parsed OpenAPI document
func (p *Parser) GetDocument() *openapi3.T {
	return p.doc
}

// GetLocation returns where the document was loaded from.
func (p *Parser) GetLocation() string {
	return p.location
}

// GetFormat returns the detected serialization of the document.
func (p *Parser) GetFormat() Format {
	return p.format
}

// GetPaths returns all paths in the OpenAPI document
func (p *Parser) GetPaths() *openapi3.Paths {
	if p.doc == nil {
		return nil
	}
	return p.doc.Paths
}

// GetServers returns all servers in the OpenAPI document
func (p *Parser) GetServers() []*openapi3.Server {
	if p.doc == nil {
		return nil
	}
	return p.doc.Servers
}

// GetInfo returns the info section of the OpenAPI document
func (p *Parser) GetInfo() *openapi3.Info {
	if p.doc == nil {
		return nil
	}
	return p.doc.Info
}

// DefaultServerURL returns the first absolute server URL of the document.
func (p *Parser) DefaultServerURL() string {
	for _, s := range p.GetServers() {
		if s == nil {
			continue
		}
		u, err := url.Parse(s.URL)
		if err == nil && u.IsAbs() && !strings.Contains(s.URL, "{") {
			return strings.TrimRight(s.URL, "/")
		}
	}
	return ""
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func locationURL(location string) *url.URL {
	if location == "" {
		return nil
	}
	if isURL(location) {
		u, err := url.Parse(location)
		if err != nil {
			return nil
		}
		return u
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return nil
	}
	return &url.URL{Path: filepath.ToSlash(abs)}
}

func detectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// decodeTree decodes the raw document into a node tree. JSON goes through
// encoding/json first since tab-indented JSON is not valid YAML.
func decodeTree(data []byte, format Format) (*yaml.Node, error) {
	var root yaml.Node
	if format == FormatJSON {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("invalid JSON document: %w", err)
		}
		if err := root.Encode(v); err != nil {
			return nil, fmt.Errorf("invalid JSON document: %w", err)
		}
		return &root, nil
	}
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid YAML document: %w", err)
	}
	return &root, nil
}

func documentRoot(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil
		}
		return n.Content[0]
	}
	return n
}

func checkVersion(top *yaml.Node) error {
	if v := mappingValue(top, "openapi"); v != nil {
		if !strings.HasPrefix(v.Value, "3.0") {
			return fmt.Errorf("unsupported OpenAPI version %q, only 3.0.x is supported", v.Value)
		}
		return nil
	}
	if mappingValue(top, "swagger") != nil {
		return errors.New("Swagger 2.0 documents are not supported")
	}
	return errors.New("missing \"openapi\" version field")
}

// checkLocalRefs verifies every "#/..." reference points at an existing node.
func checkLocalRefs(top *yaml.Node) error {
	var missing []string
	var walk func(n *yaml.Node)
	walk = func(n *yaml.Node) {
		switch n.Kind {
		case yaml.MappingNode:
			for i := 0; i+1 < len(n.Content); i += 2 {
				k, v := n.Content[i], n.Content[i+1]
				if k.Value == "$ref" && v.Kind == yaml.ScalarNode && strings.HasPrefix(v.Value, "#") {
					if resolvePointer(top, v.Value) == nil {
						missing = append(missing, v.Value)
					}
					continue
				}
				walk(v)
			}
		case yaml.SequenceNode:
			for _, c := range n.Content {
				walk(c)
			}
		}
	}
	walk(top)

	if len(missing) > 0 {
		return fmt.Errorf("unresolved $ref %s", strings.Join(missing, ", "))
	}
	return nil
}

func resolvePointer(top *yaml.Node, ref string) *yaml.Node {
	ptr := strings.TrimPrefix(ref, "#")
	if ptr == "" {
		return top
	}
	if !strings.HasPrefix(ptr, "/") {
		return nil
	}
	cur := top
	for _, tok := range strings.Split(ptr[1:], "/") {
		if unescaped, err := url.PathUnescape(tok); err == nil {
			tok = unescaped
		}
		tok = strings.ReplaceAll(tok, "~1", "/")
		tok = strings.ReplaceAll(tok, "~0", "~")

		for cur.Kind == yaml.AliasNode && cur.Alias != nil {
			cur = cur.Alias
		}
		switch cur.Kind {
		case yaml.MappingNode:
			cur = mappingValue(cur, tok)
		case yaml.SequenceNode:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(cur.Content) {
				return nil
			}
			cur = cur.Content[i]
		default:
			return nil
		}
		if cur == nil {
			return nil
		}
	}
	return cur
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func isRefError(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"$ref", "reference", "resolve", "no such file"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
