// Package dispatch turns validated tool arguments into one outbound HTTP
// request and the response into a Result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/YatsauAliaksei/openapi-mcp/convert"
	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

// DefaultTimeout bounds a call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Dispatcher executes tool calls. It holds no per-call state and is safe for
// concurrent use.
type Dispatcher struct {
	client  *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient sets the client used for outbound requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithTimeout bounds every call; zero keeps the default.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// New creates a Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:  &http.Client{},
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch validates args against the tool, then issues exactly one HTTP
// request. Validation failures return before any network I/O. Every received
// response, whatever its status, is returned as a Result.
func (d *Dispatcher) Dispatch(ctx context.Context, tool *convert.Tool, baseURL string, auth http.Header, args map[string]any) (*Result, error) {
	if err := tool.Validate(args); err != nil {
		return nil, err
	}
	for k := range args {
		if _, ok := tool.Param(k); !ok {
			d.logger.Debug("ignoring unknown argument", zap.String("tool", tool.Name), zap.String("argument", k))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := d.newRequest(ctx, tool, baseURL, auth, args)
	if err != nil {
		return nil, &errdefs.DispatchError{Kind: errdefs.KindEncoding, Tool: tool.Name, Err: err}
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, transportError(tool.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(tool.Name, err)
	}

	d.logger.Debug("http call finished",
		zap.String("tool", tool.Name),
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return newResult(resp, body), nil
}

func (d *Dispatcher) newRequest(ctx context.Context, tool *convert.Tool, baseURL string, auth http.Header, args map[string]any) (*http.Request, error) {
	target, err := buildURL(baseURL, tool, args)
	if err != nil {
		return nil, err
	}
	body, contentType, err := encodeBody(tool, args)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, tool.Method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	for _, p := range tool.Params {
		v, ok := args[p.Key]
		if !ok || v == nil {
			continue
		}
		switch p.In {
		case convert.LocationHeader:
			s, err := simpleValue(v, p.Explode)
			if err != nil {
				return nil, fmt.Errorf("header %q: %w", p.Name, err)
			}
			req.Header.Set(p.Name, s)
		case convert.LocationCookie:
			s, err := simpleValue(v, p.Explode)
			if err != nil {
				return nil, fmt.Errorf("cookie %q: %w", p.Name, err)
			}
			req.AddCookie(&http.Cookie{Name: p.Name, Value: s})
		}
	}

	for name, values := range auth {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	return req, nil
}

func transportError(tool string, err error) error {
	kind := errdefs.KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = errdefs.KindTimeout
	}
	return &errdefs.DispatchError{Kind: kind, Tool: tool, Err: err}
}
