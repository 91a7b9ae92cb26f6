package local

import (
	"fmt"
	"path"
	"strings"
)

// PatternMatcher decides which entries of a local tree take part in a sync.
// Patterns without a slash match an entry's base name; patterns with a slash
// match its path relative to the base. "**" matches any run of characters,
// including slashes.
type PatternMatcher struct {
	include    []string
	exclude    []string
	dirExclude []string
}

// NewPatternMatcher creates a matcher. Patterns are validated up front.
func NewPatternMatcher(include, exclude, dirExclude []string) (*PatternMatcher, error) {
	for _, patterns := range [][]string{include, exclude, dirExclude} {
		if err := validatePatterns(patterns); err != nil {
			return nil, err
		}
	}
	return &PatternMatcher{include: include, exclude: exclude, dirExclude: dirExclude}, nil
}

// IncludeFile reports whether the file at relPath should be synced. Excludes
// take precedence; with include patterns a file must match at least one.
func (pm *PatternMatcher) IncludeFile(relPath string) bool {
	if pm == nil {
		return true
	}
	if matchesAny(relPath, pm.exclude) {
		return false
	}
	return len(pm.include) == 0 || matchesAny(relPath, pm.include)
}

// IncludeDir reports whether the directory at relPath should be descended into.
func (pm *PatternMatcher) IncludeDir(relPath string) bool {
	return pm == nil || !matchesAny(relPath, pm.dirExclude)
}

func matchesAny(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if matchesPattern(relPath, pattern) {
			return true
		}
	}
	return false
}

func matchesPattern(relPath, pattern string) bool {
	if strings.Contains(pattern, "**") {
		return matchesGlobPattern(relPath, pattern)
	}
	subject := relPath
	if !strings.Contains(pattern, "/") {
		subject = path.Base(relPath)
	}
	match, err := path.Match(pattern, subject)
	return err == nil && match
}

// matchesGlobPattern handles a single "**" as prefix and suffix matching.
func matchesGlobPattern(relPath, pattern string) bool {
	prefix, suffix, _ := strings.Cut(pattern, "**")
	if !strings.HasPrefix(relPath, prefix) {
		return false
	}
	rest := relPath[len(prefix):]
	if suffix == "" {
		return true
	}
	// "dir/**/x" also matches "dir/x".
	if strings.HasPrefix(suffix, "/") {
		if match, err := path.Match(suffix[1:], rest); err == nil && match {
			return true
		}
	}
	if !strings.ContainsAny(suffix, "*?[") {
		return strings.HasSuffix(rest, suffix)
	}
	// Try the suffix pattern against every tail of the remaining path.
	for i := 0; i <= len(rest); i++ {
		if match, err := path.Match(suffix, rest[i:]); err == nil && match {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string) error {
	for i, pattern := range patterns {
		if strings.Count(pattern, "**") > 1 {
			return &PatternError{Pattern: pattern, Index: i, Err: fmt.Errorf("at most one ** is supported")}
		}
		check := strings.Replace(pattern, "**", "*", 1)
		if _, err := path.Match(check, "dummy"); err != nil {
			return &PatternError{Pattern: pattern, Index: i, Err: err}
		}
	}
	return nil
}

// PatternError represents an error with a pattern.
type PatternError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern at index %d '%s': %v", e.Index, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}
