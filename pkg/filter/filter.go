// Package filter decides which file-system paths produce events for a watcher
package filter

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/filesentry/filesentry/pkg/types"
)

// Matcher evaluates a watcher's include/exclude/specific-file rules against
// paths. It is immutable after construction and safe for concurrent use.
type Matcher struct {
	specific    map[string]struct{}
	includes    []*regexp.Regexp
	excludes    []*regexp.Regexp
	includeDirs bool
}

// New compiles the rules of a watcher config into a Matcher. Malformed glob
// patterns are reported at construction time, never during event dispatch.
func New(cfg types.WatcherConfig) (*Matcher, error) {
	m := &Matcher{
		includeDirs: cfg.IncludeDirectories,
	}

	if len(cfg.SpecificFiles) > 0 {
		m.specific = make(map[string]struct{}, len(cfg.SpecificFiles))
		for _, f := range cfg.SpecificFiles {
			abs, err := filepath.Abs(f)
			if err != nil {
				return nil, fmt.Errorf("specific file %q: %w", f, err)
			}
			m.specific[filepath.ToSlash(abs)] = struct{}{}
		}
		return m, nil
	}

	for _, pattern := range cfg.Patterns {
		re, err := globToRegex(pattern)
		if err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", pattern, err)
		}
		m.includes = append(m.includes, re)
	}

	for _, pattern := range cfg.ExcludePatterns {
		re, err := globToRegex(pattern)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pattern, err)
		}
		m.excludes = append(m.excludes, re)
	}

	return m, nil
}

// Matches reports whether a path should produce an event under this rule set
func (m *Matcher) Matches(path string, isDir bool) bool {
	if isDir && !m.includeDirs {
		return false
	}

	path = filepath.ToSlash(path)
	base := filepath.Base(path)

	// Specific-file mode ignores patterns entirely
	if m.specific != nil {
		abs := path
		if !filepath.IsAbs(path) {
			if a, err := filepath.Abs(path); err == nil {
				abs = filepath.ToSlash(a)
			}
		}
		_, ok := m.specific[abs]
		return ok
	}

	for _, re := range m.excludes {
		if re.MatchString(base) || re.MatchString(path) {
			return false
		}
	}

	// No include patterns means everything not excluded matches
	if len(m.includes) == 0 {
		return true
	}

	for _, re := range m.includes {
		if re.MatchString(base) || re.MatchString(path) {
			return true
		}
	}

	return false
}

// globToRegex converts a glob pattern to an anchored regular expression.
// `*` and `?` do not cross path separators; `**` matches any number of
// directories.
func globToRegex(pattern string) (*regexp.Regexp, error) {
	pattern = NormalizePattern(pattern)

	var regex strings.Builder
	regex.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch pattern[i] {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					regex.WriteString("(?:.*/)?")
					i += 3
				} else {
					regex.WriteString(".*")
					i += 2
				}
			} else {
				regex.WriteString("[^/]*")
				i++
			}
		case '?':
			regex.WriteString("[^/]")
			i++
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				regex.WriteString("[^")
				j++
			} else {
				regex.WriteString("[")
			}

			for j < len(pattern) && pattern[j] != ']' {
				if pattern[j] == '\\' && j+1 < len(pattern) {
					regex.WriteByte(pattern[j])
					regex.WriteByte(pattern[j+1])
					j += 2
				} else {
					regex.WriteByte(pattern[j])
					j++
				}
			}

			if j >= len(pattern) {
				return nil, fmt.Errorf("unclosed character class")
			}
			regex.WriteByte(']')
			i = j + 1
		case '\\':
			if i+1 < len(pattern) {
				regex.WriteByte('\\')
				regex.WriteByte(pattern[i+1])
				i += 2
			} else {
				regex.WriteString("\\\\")
				i++
			}
		case '.', '+', '^', '$', '(', ')', '{', '}', '|':
			regex.WriteByte('\\')
			regex.WriteByte(pattern[i])
			i++
		default:
			regex.WriteByte(pattern[i])
			i++
		}
	}

	regex.WriteString("$")

	return regexp.Compile(regex.String())
}

// IsGlobPattern checks if a string contains glob wildcards
func IsGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// NormalizePattern normalizes a file pattern
func NormalizePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	pattern = strings.TrimPrefix(pattern, "./")
	pattern = strings.TrimSuffix(pattern, "/")
	return pattern
}

// DefaultExclusions returns exclusion patterns applied to every watcher
// unless disabled in the server configuration.
func DefaultExclusions() []string {
	return []string{
		".git",
		".svn",
		".hg",
		"node_modules",
		"vendor",
		"__pycache__",
		".pytest_cache",
		".idea",
		".vscode",
		".DS_Store",
		"*.swp",
		"*.tmp",
	}
}
