package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrMalformedGlob is returned for patterns that cannot be compiled
var ErrMalformedGlob = errors.New("malformed glob")

// PatternMatcher handles glob pattern matching against slash-separated
// paths relative to the project root
type PatternMatcher struct {
	regexps []*regexp.Regexp
}

// NewPatternMatcher creates a new pattern matcher. Brace alternatives
// ({js,jsx}) are expanded before compilation.
func NewPatternMatcher(patterns []string) (*PatternMatcher, error) {
	var expandedPatterns []string
	for _, pattern := range patterns {
		expanded, err := ExpandBraces(NormalizePattern(pattern))
		if err != nil {
			return nil, err
		}
		expandedPatterns = append(expandedPatterns, expanded...)
	}

	pm := &PatternMatcher{
		regexps: make([]*regexp.Regexp, 0, len(expandedPatterns)),
	}

	for _, pattern := range expandedPatterns {
		regex, err := globToRegex(pattern)
		if err != nil {
			return nil, err
		}
		pm.regexps = append(pm.regexps, regex)
	}

	return pm, nil
}

// Match checks if a path matches any pattern
func (pm *PatternMatcher) Match(path string) bool {
	path = NormalizePattern(path)

	for _, regex := range pm.regexps {
		if regex.MatchString(path) {
			return true
		}
	}

	return false
}

// globToRegex converts a glob pattern to a regular expression
func globToRegex(pattern string) (*regexp.Regexp, error) {
	var regex strings.Builder
	regex.WriteString("^")

	i := 0
	for i < len(pattern) {
		switch pattern[i] {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					// **/ matches zero or more directories
					regex.WriteString("(?:.*/)?")
					i += 3
				} else {
					regex.WriteString(".*")
					i += 2
				}
			} else {
				// * matches any characters except /
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
				return nil, fmt.Errorf("%w: unclosed character class in %q", ErrMalformedGlob, pattern)
			}
			regex.WriteByte(']')
			i = j + 1
		case '\\':
			if i+1 < len(pattern) {
				regex.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
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

	compiled, err := regexp.Compile(regex.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformedGlob, pattern, err)
	}
	return compiled, nil
}

// ExpandBraces expands the first {a,b} group recursively. Nested groups
// are not supported.
func ExpandBraces(pattern string) ([]string, error) {
	open := strings.IndexByte(pattern, '{')
	if open < 0 {
		if strings.IndexByte(pattern, '}') >= 0 {
			return nil, fmt.Errorf("%w: unbalanced brace in %q", ErrMalformedGlob, pattern)
		}
		return []string{pattern}, nil
	}

	closeIdx := strings.IndexByte(pattern[open:], '}')
	if closeIdx < 0 {
		return nil, fmt.Errorf("%w: unclosed brace in %q", ErrMalformedGlob, pattern)
	}
	closeIdx += open

	body := pattern[open+1 : closeIdx]
	if strings.IndexByte(body, '{') >= 0 {
		return nil, fmt.Errorf("%w: nested braces in %q", ErrMalformedGlob, pattern)
	}

	prefix, suffix := pattern[:open], pattern[closeIdx+1:]
	var out []string
	for _, alt := range strings.Split(body, ",") {
		rest, err := ExpandBraces(prefix + alt + suffix)
		if err != nil {
			return nil, err
		}
		out = append(out, rest...)
	}
	return out, nil
}

// IsGlobPattern checks if a string contains glob wildcards
func IsGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// NormalizePattern normalizes a file pattern
func NormalizePattern(pattern string) string {
	pattern = strings.ReplaceAll(pattern, "\\", "/")
	pattern = strings.TrimPrefix(pattern, "./")
	pattern = strings.TrimSuffix(pattern, "/")
	return pattern
}

// GlobBase returns the leading directory of a pattern that contains no
// wildcards. For a literal file path it is the parent directory.
func GlobBase(pattern string) string {
	pattern = NormalizePattern(pattern)
	segments := strings.Split(pattern, "/")

	var base []string
	for i, seg := range segments {
		if IsGlobPattern(seg) || i == len(segments)-1 {
			break
		}
		base = append(base, seg)
	}

	if len(base) == 0 {
		return "."
	}
	return strings.Join(base, "/")
}

// Expand resolves patterns against root and returns the matched files as
// slash-separated paths relative to root, sorted and de-duplicated.
// A literal (wildcard free) pattern that does not exist is an error; a
// wildcard pattern without matches yields nothing.
func Expand(root string, patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	for _, pattern := range patterns {
		pattern = NormalizePattern(pattern)

		if !IsGlobPattern(pattern) {
			full := filepath.Join(root, filepath.FromSlash(pattern))
			info, err := os.Stat(full)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", pattern, err)
			}
			if !info.IsDir() && !seen[pattern] {
				seen[pattern] = true
				files = append(files, pattern)
			}
			continue
		}

		matcher, err := NewPatternMatcher([]string{pattern})
		if err != nil {
			return nil, err
		}

		base := GlobBase(pattern)
		baseDir := filepath.Join(root, filepath.FromSlash(base))
		if !DirectoryExists(baseDir) {
			continue
		}

		err = filepath.WalkDir(baseDir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if matcher.Match(rel) && !seen[rel] {
				seen[rel] = true
				files = append(files, rel)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", base, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// ExclusionMatcher handles exclusion patterns
type ExclusionMatcher struct {
	matcher *PatternMatcher
}

// NewExclusionMatcher creates a new exclusion matcher. Patterns without a
// separator apply at any depth; a leading "/" anchors a directory at the
// root, as in .gitignore.
func NewExclusionMatcher(patterns []string) (*ExclusionMatcher, error) {
	allPatterns := make([]string, 0, len(patterns)*2)
	for _, pattern := range patterns {
		switch {
		case pattern == "" || pattern == "/":
			continue
		case strings.HasPrefix(pattern, "/"):
			anchored := NormalizePattern(strings.TrimPrefix(pattern, "/"))
			allPatterns = append(allPatterns, anchored, anchored+"/**")
		case strings.Contains(pattern, "/"):
			allPatterns = append(allPatterns, pattern)
		case strings.Contains(pattern, "*"):
			allPatterns = append(allPatterns, "**/"+pattern)
		default:
			allPatterns = append(allPatterns, "**/"+pattern, "**/"+pattern+"/**")
		}
	}

	matcher, err := NewPatternMatcher(allPatterns)
	if err != nil {
		return nil, err
	}

	return &ExclusionMatcher{matcher: matcher}, nil
}

// IsExcluded checks if a path should be excluded
func (em *ExclusionMatcher) IsExcluded(path string) bool {
	return em.matcher.Match(path)
}

// GetDefaultExclusions returns default exclusion patterns for watching
func GetDefaultExclusions() []string {
	return []string{
		".git",
		".svn",
		".hg",
		"node_modules",
		".idea",
		".vscode",
		".DS_Store",
		"*.swp",
		"*~",
		"*.tmp",
	}
}
