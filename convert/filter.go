package convert

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

// Filter selects operations by tag and path glob patterns. `*` matches
// within a path segment, `**` across segments. Exclusion always wins.
type Filter struct {
	IncludeTags  []string
	ExcludeTags  []string
	IncludePaths []string
	ExcludePaths []string
}

// Validate checks every pattern is a well-formed glob.
func (f *Filter) Validate() error {
	if f == nil {
		return nil
	}
	groups := []struct {
		field    string
		patterns []string
	}{
		{"include_tags", f.IncludeTags},
		{"exclude_tags", f.ExcludeTags},
		{"include_paths", f.IncludePaths},
		{"exclude_paths", f.ExcludePaths},
	}
	for _, g := range groups {
		for _, p := range g.patterns {
			if !doublestar.ValidatePattern(p) {
				return &errdefs.ConfigError{
					Kind:   errdefs.KindInvalidFilterPattern,
					Detail: fmt.Sprintf("%s: malformed pattern %q", g.field, p),
				}
			}
		}
	}
	return nil
}

// Allows reports whether op survives the filter. Each axis with a non-empty
// include list must be passed; then any exclude match drops the operation.
func (f *Filter) Allows(op Operation) bool {
	if f == nil {
		return true
	}
	if len(f.IncludeTags) > 0 && !matchAny(op.Tags, f.IncludeTags) {
		return false
	}
	if len(f.IncludePaths) > 0 && !matchAny([]string{op.Path}, f.IncludePaths) {
		return false
	}
	if matchAny(op.Tags, f.ExcludeTags) {
		return false
	}
	return !matchAny([]string{op.Path}, f.ExcludePaths)
}

// Select returns the operations that survive f, preserving order. A nil
// filter returns ops unchanged.
func Select(ops []Operation, f *Filter) []Operation {
	if f == nil {
		return ops
	}
	selected := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if f.Allows(op) {
			selected = append(selected, op)
		}
	}
	return selected
}

func matchAny(values, patterns []string) bool {
	for _, p := range patterns {
		for _, v := range values {
			if ok, err := doublestar.Match(p, v); err == nil && ok {
				return true
			}
		}
	}
	return false
}
