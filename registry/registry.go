// Package registry aggregates the tools of every configured service behind
// one lookup and call surface.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/YatsauAliaksei/openapi-mcp/convert"
	"github.com/YatsauAliaksei/openapi-mcp/dispatch"
	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

// maxConcurrentLoads bounds how many documents are fetched at once.
const maxConcurrentLoads = 4

// Source is one configured service.
type Source struct {
	ServiceName string
	// Location is a local path or HTTP(S) URL of the document. When Data is
	// set it is only used to resolve relative references.
	Location string
	Data     []byte
	// BaseURL defaults to the document's first absolute server URL.
	BaseURL string
	Filter  *convert.Filter
	Auth    dispatch.Auth
}

// Options configures Build.
type Options struct {
	// Timeout bounds each outbound call and each document fetch.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *Metrics
	// Strict fails the build when a source is skipped instead of logging it.
	Strict bool
}

// Entry binds a compiled tool to the service it dispatches to.
type Entry struct {
	Tool    *convert.Tool
	BaseURL string

	auth dispatch.Auth
}

// Registry is the immutable set of tools built from all sources.
type Registry struct {
	entries    map[string]*Entry
	names      []string
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
	metrics    *Metrics
}

type loaded struct {
	source  Source
	baseURL string
	tools   []*convert.Tool
}

// Build loads, filters and compiles every source and aggregates the tools.
// A source whose document cannot be loaded is skipped. Configuration errors
// fail the whole build and no registry is returned.
func Build(ctx context.Context, sources []Source, opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = dispatch.DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	if err := validateSources(sources); err != nil {
		return nil, err
	}

	results := make([]*loaded, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLoads)
	for i, src := range sources {
		g.Go(func() error {
			l, err := loadSource(gctx, src, client, logger, opts.Strict)
			if err != nil {
				return err
			}
			results[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Registry{
		entries: make(map[string]*Entry),
		dispatcher: dispatch.New(
			dispatch.WithHTTPClient(client),
			dispatch.WithLogger(logger),
			dispatch.WithTimeout(timeout),
		),
		logger:  logger,
		metrics: opts.Metrics,
	}

	owner := make(map[string]string)
	for _, l := range results {
		if l == nil {
			continue
		}
		for _, tool := range l.tools {
			if prev, ok := owner[tool.Name]; ok {
				detail := fmt.Sprintf("tool %q is defined by services %q and %q", tool.Name, prev, l.source.ServiceName)
				if prev == l.source.ServiceName {
					detail = fmt.Sprintf("tool %q is defined twice by service %q", tool.Name, prev)
				}
				return nil, &errdefs.ConfigError{
					Kind:    errdefs.KindDuplicateTool,
					Service: l.source.ServiceName,
					Detail:  detail,
				}
			}
			owner[tool.Name] = l.source.ServiceName
			r.entries[tool.Name] = &Entry{Tool: tool, BaseURL: l.baseURL, auth: l.source.Auth}
			r.names = append(r.names, tool.Name)
		}
		logger.Info("loaded service",
			zap.String("service", l.source.ServiceName),
			zap.String("base_url", l.baseURL),
			zap.Stringer("auth", l.source.Auth),
			zap.Int("tools", len(l.tools)))
	}
	sort.Strings(r.names)

	logger.Info("registry built",
		zap.Int("services", len(sources)),
		zap.Int("tools", len(r.names)),
		zap.Strings("tags", r.Tags()))
	return r, nil
}

func validateSources(sources []Source) error {
	seen := make(map[string]bool, len(sources))
	for _, src := range sources {
		if src.ServiceName == "" {
			return &errdefs.ConfigError{Kind: errdefs.KindInvalidConfig, Detail: "service name must not be empty"}
		}
		if seen[src.ServiceName] {
			return &errdefs.ConfigError{
				Kind:    errdefs.KindDuplicateTool,
				Service: src.ServiceName,
				Detail:  "service configured more than once",
			}
		}
		seen[src.ServiceName] = true

		for _, err := range []error{src.Auth.Validate(), src.Filter.Validate()} {
			var ce *errdefs.ConfigError
			if errors.As(err, &ce) {
				ce.Service = src.ServiceName
				return ce
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// loadSource runs the loader and compiler for one source. Load failures are
// logged and yield a nil result so other services still load.
func loadSource(ctx context.Context, src Source, client *http.Client, logger *zap.Logger, strict bool) (*loaded, error) {
	log := logger.With(zap.String("service", src.ServiceName))
	parser := convert.NewParser(convert.WithHTTPClient(client), convert.WithParserLogger(log))

	var err error
	if src.Data != nil {
		err = parser.Parse(ctx, src.Data, src.Location)
	} else {
		err = parser.ParseFile(ctx, src.Location)
	}
	var sle *errdefs.SpecLoadError
	if errors.As(err, &sle) {
		if strict {
			return nil, fmt.Errorf("service %q: %w", src.ServiceName, err)
		}
		log.Error("skipping service, document failed to load",
			zap.String("kind", string(sle.Kind)),
			zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, &errdefs.InternalError{Service: src.ServiceName, Err: err}
	}

	baseURL := src.BaseURL
	if baseURL == "" {
		baseURL = parser.DefaultServerURL()
	}
	if baseURL == "" {
		if strict {
			return nil, &errdefs.ConfigError{
				Kind:    errdefs.KindInvalidConfig,
				Service: src.ServiceName,
				Detail:  "no base_url configured and the document declares no usable server",
			}
		}
		log.Error("skipping service, no base_url configured and the document declares no usable server")
		return nil, nil
	}

	tools, err := convert.NewConverter(parser, convert.Options{
		ServiceName: src.ServiceName,
		Filter:      src.Filter,
		Logger:      log,
	}).Convert()
	if err != nil {
		return nil, &errdefs.InternalError{Service: src.ServiceName, Err: err}
	}
	return &loaded{source: src, baseURL: baseURL, tools: tools}, nil
}

// Lookup returns the entry of a qualified tool name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Tools returns every tool ordered by name.
func (r *Registry) Tools() []*convert.Tool {
	tools := make([]*convert.Tool, 0, len(r.names))
	for _, name := range r.names {
		tools = append(tools, r.entries[name].Tool)
	}
	return tools
}

// Len returns the number of tools.
func (r *Registry) Len() int {
	return len(r.names)
}

// Tags returns the distinct tags of all tools, sorted.
func (r *Registry) Tags() []string {
	set := make(map[string]bool)
	for _, e := range r.entries {
		for _, tag := range e.Tool.Tags {
			set[tag] = true
		}
	}
	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Call dispatches one invocation of a tool. override, when non-nil,
// replaces the service's configured auth for this call only.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any, override *dispatch.Auth) (*dispatch.Result, error) {
	entry, ok := r.Lookup(name)
	if !ok {
		return nil, &errdefs.ValidationError{Tool: name, Message: "unknown tool"}
	}

	log := r.logger.With(
		zap.String("call_id", uuid.NewString()),
		zap.String("tool", name))
	log.Debug("calling tool", zap.String("method", entry.Tool.Method), zap.String("path", entry.Tool.Path))

	start := time.Now()
	res, err := r.dispatcher.Dispatch(ctx, entry.Tool, entry.BaseURL, dispatch.Resolve(entry.auth, override), args)
	elapsed := time.Since(start)

	outcome := OutcomeSuccess
	switch {
	case err != nil:
		outcome = string(errdefs.KindOf(err))
		log.Warn("tool call failed", zap.Duration("duration", elapsed), zap.Error(err))
	case res.IsError():
		outcome = OutcomeHTTPError
		log.Info("tool call returned error status", zap.Int("status", res.StatusCode), zap.Duration("duration", elapsed))
	default:
		log.Info("tool call finished", zap.Int("status", res.StatusCode), zap.Duration("duration", elapsed))
	}
	r.metrics.observe(entry.Tool.Service, name, outcome, elapsed)

	return res, err
}
