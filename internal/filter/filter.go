package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bgricker/enghealth/internal/report"
)

// Pattern represents a compiled filter condition supporting substring and regex matching.
type Pattern struct {
	raw   string
	regex *regexp.Regexp
	lower string
}

// Compile transforms raw pattern strings into Pattern values.
func Compile(patterns []string) ([]Pattern, error) {
	result := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) >= 2 {
			expr := raw[1 : len(raw)-1]
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile regexp %q: %w", raw, err)
			}
			result = append(result, Pattern{raw: raw, regex: re})
			continue
		}
		result = append(result, Pattern{raw: raw, lower: strings.ToLower(raw)})
	}
	return result, nil
}

// Match reports whether the pattern matches the supplied string.
func (p Pattern) Match(s string) bool {
	if s == "" {
		return false
	}
	if p.regex != nil {
		return p.regex.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), p.lower)
}

// String returns the pattern as written.
func (p Pattern) String() string {
	return p.raw
}

// Selector decides which modules the runner executes. Modules it rejects are
// still collected and aggregated, as never executed.
type Selector struct {
	only []Pattern
	skip []Pattern
}

// NewSelector compiles only/skip patterns into a Selector.
func NewSelector(only, skip []string) (Selector, error) {
	onlyPatterns, err := Compile(only)
	if err != nil {
		return Selector{}, err
	}
	skipPatterns, err := Compile(skip)
	if err != nil {
		return Selector{}, err
	}
	return Selector{only: onlyPatterns, skip: skipPatterns}, nil
}

// Selected reports whether spec passes the only/skip filters.
func (s Selector) Selected(spec report.ModuleSpec) bool {
	if len(s.only) > 0 && !matchesModule(spec, s.only) {
		return false
	}
	if len(s.skip) > 0 && matchesModule(spec, s.skip) {
		return false
	}
	return true
}

// Filter returns the specs that pass the selector, preserving order.
func (s Selector) Filter(specs []report.ModuleSpec) []report.ModuleSpec {
	if len(specs) == 0 {
		return nil
	}
	result := make([]report.ModuleSpec, 0, len(specs))
	for _, spec := range specs {
		if s.Selected(spec) {
			result = append(result, spec)
		}
	}
	return result
}

func matchesModule(spec report.ModuleSpec, patterns []Pattern) bool {
	for _, pattern := range patterns {
		if pattern.Match(spec.ID) || pattern.Match(spec.Title) {
			return true
		}
	}
	return false
}
