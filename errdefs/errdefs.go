// Package errdefs defines the error kinds shared by the loader, compiler,
// dispatcher and registry.
package errdefs

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	KindInvalidSpec         Kind = "InvalidSpec"
	KindUnresolvedReference Kind = "UnresolvedReference"
	KindNotFound            Kind = "NotFound"

	KindDuplicateTool        Kind = "DuplicateTool"
	KindMissingCredentials   Kind = "MissingCredentials"
	KindInvalidFilterPattern Kind = "InvalidFilterPattern"
	KindInvalidConfig        Kind = "InvalidConfig"

	KindValidation Kind = "ValidationError"

	KindNetwork  Kind = "NetworkError"
	KindTimeout  Kind = "Timeout"
	KindEncoding Kind = "EncodingError"

	KindInternal Kind = "InternalError"
)

// SpecLoadError reports a document that could not be loaded. It only
// affects the service the document belongs to.
type SpecLoadError struct {
	Kind     Kind
	Location string
	Err      error
}

func (e *SpecLoadError) Error() string {
	return fmt.Sprintf("load %s: %s: %v", e.Location, e.Kind, e.Err)
}

func (e *SpecLoadError) Unwrap() error { return e.Err }

// ConfigError aborts a registry build as a whole.
type ConfigError struct {
	Kind    Kind
	Service string
	Detail  string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := string(e.Kind)
	if e.Service != "" {
		msg += " (service " + e.Service + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError reports caller arguments that do not satisfy a tool's
// parameter schema.
type ValidationError struct {
	Tool    string
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: argument %q: %s", e.Tool, e.Param, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

// DispatchError reports a call that did not produce an HTTP response, or
// whose request could not be encoded.
type DispatchError struct {
	Kind       Kind
	Tool       string
	StatusCode int
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// InternalError wraps anything unexpected with enough context to find it.
type InternalError struct {
	Service string
	Tool    string
	Err     error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error (service %s, tool %s): %v", e.Service, e.Tool, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// KindOf returns the kind of the first typed error in err's chain. Untyped
// errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		le *SpecLoadError
		ce *ConfigError
		ve *ValidationError
		de *DispatchError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &de):
		return de.Kind
	case errors.As(err, &ce):
		return ce.Kind
	case errors.As(err, &le):
		return le.Kind
	}
	return KindInternal
}

// IsKind reports whether err is of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// StatusCode returns the HTTP status attached to err, if any.
func StatusCode(err error) int {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.StatusCode
	}
	return 0
}
