package dispatch

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/YatsauAliaksei/openapi-mcp/convert"
)

// Result is a received HTTP response. Any status, 4xx and 5xx included,
// is a completed dispatch.
type Result struct {
	StatusCode  int         `json:"status_code"`
	Headers     http.Header `json:"headers"`
	ContentType string      `json:"content_type,omitempty"`
	// Body is the decoded JSON value for JSON media types, a string for
	// text, and []byte otherwise.
	Body any `json:"body"`
}

// IsError reports whether the remote service answered with an error status.
func (r *Result) IsError() bool {
	return r.StatusCode >= http.StatusBadRequest
}

func newResult(resp *http.Response, body []byte) *Result {
	contentType := resp.Header.Get("Content-Type")
	return &Result{
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header.Clone(),
		ContentType: contentType,
		Body:        decodeBody(contentType, body),
	}
}

func decodeBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = ""
	}

	if convert.IsJSONMediaType(mt) {
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
		// declared JSON but not parseable, hand it back as is
	}

	if isTextMediaType(mt) || utf8.Valid(body) {
		return string(body)
	}
	return body
}

func isTextMediaType(mt string) bool {
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch mt {
	case "application/xml", "application/javascript", "application/x-www-form-urlencoded":
		return true
	}
	return strings.HasSuffix(mt, "+xml")
}
