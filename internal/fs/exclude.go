package fs

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NormalizeExclude rewrites an exclude pattern to the "./relative" form
// used for archive members. "uploads", "/uploads" and "./uploads/" all
// become "./uploads". An empty pattern stays empty.
func NormalizeExclude(raw string) string {
	p := strings.TrimSpace(raw)
	if p == "" {
		return ""
	}
	p = filepath.ToSlash(p)
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	p = strings.TrimRight(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return "./" + p
}

// ExcludeMatcher checks archive member paths against exclude patterns.
// Patterns are anchored at the archive root; a pattern matching a directory
// excludes everything below it.
type ExcludeMatcher struct {
	patterns []string
}

// NewExcludeMatcher creates an ExcludeMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewExcludeMatcher(rawPatterns []string) *ExcludeMatcher {
	var patterns []string
	for _, raw := range rawPatterns {
		if strings.HasPrefix(strings.TrimSpace(raw), "#") {
			continue
		}
		if p := NormalizeExclude(raw); p != "" {
			patterns = append(patterns, p)
		}
	}
	return &ExcludeMatcher{patterns: patterns}
}

// Patterns returns the normalized patterns.
func (m *ExcludeMatcher) Patterns() []string {
	return append([]string(nil), m.patterns...)
}

// Match reports whether relativePath, or one of its parent directories,
// is excluded. relativePath is relative to the archive root.
func (m *ExcludeMatcher) Match(relativePath string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	rel := strings.TrimPrefix(filepath.ToSlash(relativePath), "./")
	if rel == "" || rel == "." {
		return false
	}

	for candidate := path.Clean(rel); candidate != "." && candidate != "/"; candidate = path.Dir(candidate) {
		for _, p := range m.patterns {
			matched, err := path.Match(p, "./"+candidate)
			if err != nil {
				// Bad pattern: skip rather than fail the archive.
				continue
			}
			if matched {
				return true
			}
		}
	}
	return false
}

// ParseExcludeFile reads one pattern per line from path.
// Returns nil and no error if the file does not exist.
func ParseExcludeFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening exclude file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading exclude file: %w", err)
	}
	return patterns, nil
}
