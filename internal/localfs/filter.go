package localfs

import (
	"path"
	"strings"
)

// Filter selects files by glob patterns matched against the slash-separated
// path relative to the walk root and against the base name. Patterns
// support ** for any number of directories.
type Filter struct {
	// Include patterns. Empty means include all.
	// Example: []string{"*.dat", "run_*/output/**"}
	Include []string

	// Exclude patterns. Takes precedence over Include.
	// Example: []string{"*.tmp", "**/scratch/**"}
	Exclude []string
}

// Empty reports whether f accepts every file.
func (f Filter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// Match reports whether the file at rel passes the filter.
func (f Filter) Match(rel string) bool {
	if f.Empty() {
		return true
	}
	base := path.Base(rel)

	for _, pattern := range f.Exclude {
		if matchPattern(rel, pattern) || matchPattern(base, pattern) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, pattern := range f.Include {
		if matchPattern(rel, pattern) || matchPattern(base, pattern) {
			return true
		}
	}
	return false
}

// matchPattern matches a slash path against a glob with optional **.
func matchPattern(p, pattern string) bool {
	if !strings.Contains(pattern, "**") {
		matched, _ := path.Match(pattern, p)
		return matched
	}
	return matchDoubleStar(p, pattern)
}

// matchDoubleStar handles the ** forms:
//   - "**/foo.txt" matches "foo.txt", "a/foo.txt", "a/b/c/foo.txt"
//   - "run_1/**" matches "run_1/anything", "run_1/a/b/c/file.txt"
//   - "a/**/b.txt" matches "a/b.txt", "a/x/y/b.txt"
func matchDoubleStar(p, pattern string) bool {
	if pattern == "**" {
		return true
	}
	parts := strings.Split(p, "/")

	if suffix, ok := strings.CutPrefix(pattern, "**/"); ok {
		for i := range parts {
			if matchPattern(strings.Join(parts[i:], "/"), suffix) {
				return true
			}
		}
		return false
	}

	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		for i := 1; i <= len(parts); i++ {
			if matched, _ := path.Match(prefix, strings.Join(parts[:i], "/")); matched {
				return true
			}
		}
		return false
	}

	if prefix, suffix, ok := strings.Cut(pattern, "/**/"); ok {
		for i := 1; i < len(parts); i++ {
			if matched, _ := path.Match(prefix, strings.Join(parts[:i], "/")); !matched {
				continue
			}
			for j := i; j < len(parts); j++ {
				if matchPattern(strings.Join(parts[j:], "/"), suffix) {
					return true
				}
			}
		}
		return false
	}

	// ** inside a segment behaves like *
	matched, _ := path.Match(strings.ReplaceAll(pattern, "**", "*"), p)
	return matched
}

// ParsePatterns splits a comma-separated pattern list, dropping blanks.
// Example: "*.dat, *.txt" -> []string{"*.dat", "*.txt"}
func ParsePatterns(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
