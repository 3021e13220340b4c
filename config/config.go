// Package config loads the service configuration from a YAML or TOML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/YatsauAliaksei/openapi-mcp/convert"
	"github.com/YatsauAliaksei/openapi-mcp/dispatch"
	"github.com/YatsauAliaksei/openapi-mcp/registry"
)

// DefaultPath is used when neither a flag nor OPENAPI_MCP_CONFIG names a
// configuration file.
const DefaultPath = "config.yaml"

// Config is the loaded process configuration.
type Config struct {
	Debug   bool
	LogFile string
	Timeout time.Duration
	// Path is the file the configuration was read from, if any.
	Path     string
	Services []Service
}

// Service is one configured OpenAPI service.
type Service struct {
	Name         string
	FileLocation string
	BaseURL      string
	Filter       *convert.Filter
	Auth         dispatch.Auth
}

type fileConfig struct {
	Debug   any                      `yaml:"debug" toml:"debug"`
	LogFile string                   `yaml:"log_file" toml:"log_file"`
	Timeout string                   `yaml:"timeout" toml:"timeout"`
	OpenAPI map[string]serviceConfig `yaml:"openapi" toml:"openapi"`
}

type serviceConfig struct {
	FileLocation string `yaml:"file_location" toml:"file_location"`
	BaseURL      string `yaml:"base_url" toml:"base_url"`
	// AuthType outside the authentication block is the legacy location.
	AuthType       string      `yaml:"auth_type" toml:"auth_type"`
	IncludeTags    any         `yaml:"include_tags" toml:"include_tags"`
	ExcludeTags    any         `yaml:"exclude_tags" toml:"exclude_tags"`
	ExludeTags     any         `yaml:"exlude_tags" toml:"exlude_tags"`
	IncludePaths   any         `yaml:"include_paths" toml:"include_paths"`
	ExcludePaths   any         `yaml:"exclude_paths" toml:"exclude_paths"`
	Authentication *authConfig `yaml:"authentication" toml:"authentication"`
}

type authConfig struct {
	AuthType  string `yaml:"auth_type" toml:"auth_type"`
	APIKey    string `yaml:"api_key" toml:"api_key"`
	APISecret string `yaml:"api_secret" toml:"api_secret"`
	APIToken  string `yaml:"api_token" toml:"api_token"`
}

// Load reads configuration with priority: defaults -> file -> env. An
// empty path falls back to OPENAPI_MCP_CONFIG, then to DefaultPath when
// that file exists. With no configured services, the single-service
// OPENAPI_* environment variables apply.
func Load(path string) (*Config, error) {
	cfg := &Config{Timeout: dispatch.DefaultTimeout}

	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if path != "" {
		if err := readFile(path, &fc); err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	if cfg.Debug, err = parseBool(fc.Debug); err != nil {
		return nil, fmt.Errorf("debug: %w", err)
	}
	cfg.LogFile = fc.LogFile
	if fc.Timeout != "" {
		if cfg.Timeout, err = time.ParseDuration(fc.Timeout); err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if len(fc.OpenAPI) > 0 {
		cfg.Services, err = servicesFromFile(fc.OpenAPI)
	} else {
		cfg.Services, err = servicesFromEnv()
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Sources converts the configured services into registry sources.
func (c *Config) Sources() []registry.Source {
	sources := make([]registry.Source, 0, len(c.Services))
	for _, s := range c.Services {
		sources = append(sources, registry.Source{
			ServiceName: s.Name,
			Location:    s.FileLocation,
			BaseURL:     s.BaseURL,
			Filter:      s.Filter,
			Auth:        s.Auth,
		})
	}
	return sources
}

func resolvePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	env, err := lookupEnv("OPENAPI_MCP_CONFIG")
	if err != nil {
		return "", err
	}
	if env != "" {
		return env, nil
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath, nil
	}
	return "", nil
}

func readFile(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, fc)
	} else {
		err = yaml.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	debug, err := lookupEnv("DEBUG")
	if err != nil {
		return err
	}
	if debug != "" {
		if cfg.Debug, err = parseBool(debug); err != nil {
			return fmt.Errorf("DEBUG: %w", err)
		}
	}

	logFile, err := lookupEnv("LOG_FILE")
	if err != nil {
		return err
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	return nil
}

func servicesFromFile(services map[string]serviceConfig) ([]Service, error) {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Service, 0, len(names))
	for _, name := range names {
		sc := services[name]
		if sc.FileLocation == "" {
			return nil, fmt.Errorf("service %s: file_location is required", name)
		}

		excludeTags := sc.ExcludeTags
		if excludeTags == nil {
			excludeTags = sc.ExludeTags
		}
		filter, err := buildFilter(name, sc.IncludeTags, excludeTags, sc.IncludePaths, sc.ExcludePaths)
		if err != nil {
			return nil, err
		}

		auth, err := serviceAuth(name, sc)
		if err != nil {
			return nil, err
		}

		out = append(out, Service{
			Name:         name,
			FileLocation: sc.FileLocation,
			BaseURL:      sc.BaseURL,
			Filter:       filter,
			Auth:         auth,
		})
	}
	return out, nil
}

// serviceAuth resolves a service's credentials, falling back to the
// {SERVICE}_API_KEY, {SERVICE}_API_SECRET and {SERVICE}_API_TOKEN variables.
func serviceAuth(name string, sc serviceConfig) (dispatch.Auth, error) {
	var ac authConfig
	if sc.Authentication != nil {
		ac = *sc.Authentication
	}
	authType := ac.AuthType
	if authType == "" {
		authType = sc.AuthType
	}

	kind, err := dispatch.ParseAuthKind(authType)
	if err != nil {
		return dispatch.Auth{}, fmt.Errorf("service %s: %w", name, err)
	}

	prefix := envPrefix(name)
	fallback := func(v *string, suffix string) error {
		if *v != "" {
			return nil
		}
		env, err := lookupEnv(prefix + suffix)
		*v = env
		return err
	}

	auth := dispatch.Auth{Kind: kind}
	switch kind {
	case dispatch.AuthBasic:
		if err := fallback(&ac.APIKey, "_API_KEY"); err != nil {
			return auth, err
		}
		if err := fallback(&ac.APISecret, "_API_SECRET"); err != nil {
			return auth, err
		}
		auth.ClientID, auth.ClientSecret = ac.APIKey, ac.APISecret
		if auth.ClientID == "" {
			// pre-shared token form
			if err := fallback(&ac.APIToken, "_API_TOKEN"); err != nil {
				return auth, err
			}
			auth.ClientID, auth.ClientSecret = ac.APIToken, ""
		}
	case dispatch.AuthBearer:
		if err := fallback(&ac.APIToken, "_API_TOKEN"); err != nil {
			return auth, err
		}
		auth.Token = ac.APIToken
	}
	return auth, nil
}

func servicesFromEnv() ([]Service, error) {
	specPath, err := lookupEnv("OPENAPI_SPEC_PATH")
	if err != nil {
		return nil, err
	}
	baseURL, err := lookupEnv("OPENAPI_BASE_URL")
	if err != nil {
		return nil, err
	}
	if specPath == "" || baseURL == "" {
		return nil, nil
	}

	name, err := lookupEnv("OPENAPI_SERVICE_NAME")
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "default"
	}

	authType, err := lookupEnv("OPENAPI_AUTH_TYPE")
	if err != nil {
		return nil, err
	}
	kind, err := dispatch.ParseAuthKind(authType)
	if err != nil {
		return nil, fmt.Errorf("OPENAPI_AUTH_TYPE: %w", err)
	}

	auth := dispatch.Auth{Kind: kind}
	switch kind {
	case dispatch.AuthBasic:
		if auth.ClientID, err = lookupEnv("OPENAPI_BASIC_KEY"); err != nil {
			return nil, err
		}
		if auth.ClientSecret, err = lookupEnv("OPENAPI_BASIC_SECRET"); err != nil {
			return nil, err
		}
	case dispatch.AuthBearer:
		if auth.Token, err = lookupEnv("OPENAPI_BEARER_TOKEN"); err != nil {
			return nil, err
		}
	}

	return []Service{{
		Name:         name,
		FileLocation: specPath,
		BaseURL:      baseURL,
		Auth:         auth,
	}}, nil
}

func buildFilter(service string, includeTags, excludeTags, includePaths, excludePaths any) (*convert.Filter, error) {
	var f convert.Filter
	fields := []struct {
		key string
		raw any
		dst *[]string
	}{
		{"include_tags", includeTags, &f.IncludeTags},
		{"exclude_tags", excludeTags, &f.ExcludeTags},
		{"include_paths", includePaths, &f.IncludePaths},
		{"exclude_paths", excludePaths, &f.ExcludePaths},
	}
	set := false
	for _, field := range fields {
		list, err := toList(field.raw)
		if err != nil {
			return nil, fmt.Errorf("service %s: %s: %w", service, field.key, err)
		}
		*field.dst = list
		set = set || len(list) > 0
	}
	if !set {
		return nil, nil
	}
	return &f, nil
}

// toList accepts a list of strings or a comma-separated string.
func toList(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected a string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return v, nil
	}
	return nil, fmt.Errorf("expected a list or a comma-separated string, got %T", v)
}

func parseBool(v any) (bool, error) {
	switch v := v.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "", "0", "false", "no", "off":
			return false, nil
		}
		return false, fmt.Errorf("invalid boolean %q", v)
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	}
	return false, fmt.Errorf("invalid boolean %v", v)
}

// ErrAmbiguousEnv is returned when a variable is set in both upper and
// lower case.
var ErrAmbiguousEnv = errors.New("ambiguous environment variable")

// lookupEnv reads key case-insensitively.
func lookupEnv(key string) (string, error) {
	upper, lower := strings.ToUpper(key), strings.ToLower(key)
	uv, hasUpper := os.LookupEnv(upper)
	lv, hasLower := os.LookupEnv(lower)
	if hasUpper && hasLower && upper != lower {
		return "", fmt.Errorf("%w: both %s and %s are set", ErrAmbiguousEnv, upper, lower)
	}
	if hasUpper {
		return uv, nil
	}
	return lv, nil
}

func envPrefix(service string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(service) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
