package dispatch

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

// AuthKind selects how credentials are attached to outbound requests.
type AuthKind string

const (
	AuthNone   AuthKind = ""
	AuthBasic  AuthKind = "Basic"
	AuthBearer AuthKind = "Bearer"
)

// ParseAuthKind maps a configured auth_type to an AuthKind. Matching is
// case-insensitive; empty and "none" mean no authentication.
func ParseAuthKind(s string) (AuthKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AuthNone, nil
	case "basic":
		return AuthBasic, nil
	case "bearer":
		return AuthBearer, nil
	}
	return AuthNone, fmt.Errorf("unknown auth_type %q, expected Basic or Bearer", s)
}

// Auth is the credential set of one service. ClientID and ClientSecret are
// used by Basic, Token by Bearer. A Basic pre-shared token is a ClientID
// with an empty ClientSecret.
type Auth struct {
	Kind         AuthKind
	ClientID     string
	ClientSecret string
	Token        string
}

// Validate reports missing credentials for the configured kind.
func (a Auth) Validate() error {
	switch a.Kind {
	case AuthNone:
		return nil
	case AuthBasic:
		if a.ClientID == "" {
			return &errdefs.ConfigError{
				Kind:   errdefs.KindMissingCredentials,
				Detail: "Basic authentication requires a client id or token",
			}
		}
		return nil
	case AuthBearer:
		if a.Token == "" {
			return &errdefs.ConfigError{
				Kind:   errdefs.KindMissingCredentials,
				Detail: "Bearer authentication requires a token",
			}
		}
		return nil
	}
	return &errdefs.ConfigError{
		Kind:   errdefs.KindMissingCredentials,
		Detail: fmt.Sprintf("unknown auth kind %q", a.Kind),
	}
}

// String never prints secrets.
func (a Auth) String() string {
	if a.Kind == AuthNone {
		return "none"
	}
	return string(a.Kind)
}

// Resolve returns the headers carrying auth. A non-nil override replaces
// auth for this one call; auth itself is left untouched.
func Resolve(auth Auth, override *Auth) http.Header {
	effective := auth
	if override != nil {
		effective = *override
	}

	h := make(http.Header)
	switch effective.Kind {
	case AuthBasic:
		creds := effective.ClientID + ":" + effective.ClientSecret
		h.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
	case AuthBearer:
		h.Set("Authorization", "Bearer "+effective.Token)
	}
	return h
}
