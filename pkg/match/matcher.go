package match

import (
	"errors"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher selects relative paths with include and exclude patterns.
//
// A path is selected when it matches at least one include, matches no
// exclude, and is not hidden unless hidden paths are allowed.
//
// The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes      []string
	excludes      []string
	excludeHidden bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns a path must match (at least one).
	// Empty selects every path.
	Includes []string

	// Excludes are glob patterns a path must not match.
	Excludes []string

	// ExcludeHidden drops paths with a segment starting with '.'.
	ExcludeHidden bool
}

// ErrInvalidPattern is returned when a pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid glob pattern")

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a Matcher. Patterns are normalized for Windows-style
// separators; invalid patterns return a *PatternError.
func New(cfg Config) (*Matcher, error) {
	includes, err := compile(cfg.Includes)
	if err != nil {
		return nil, err
	}
	if len(includes) == 0 {
		includes = []string{"**"}
	}
	excludes, err := compile(cfg.Excludes)
	if err != nil {
		return nil, err
	}

	return &Matcher{
		includes:      includes,
		excludes:      excludes,
		excludeHidden: cfg.ExcludeHidden,
	}, nil
}

func compile(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		normalized := NormalizePattern(p)
		if !doublestar.ValidatePattern(normalized) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		out = append(out, normalized)
	}
	return out, nil
}

// Match reports whether the relative path rel is selected.
// A trailing separator (object-store prefixes) is ignored.
func (m *Matcher) Match(rel string) bool {
	for len(rel) > 0 && rel[len(rel)-1] == '/' {
		rel = rel[:len(rel)-1]
	}

	if m.excludeHidden && IsHidden(rel) {
		return false
	}

	matched := false
	for _, inc := range m.includes {
		if matchPattern(inc, rel) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, exc := range m.excludes {
		if matchPattern(exc, rel) {
			return false
		}
	}
	return true
}

// IncludePatterns returns the normalized include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the normalized exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

func matchPattern(pattern, rel string) bool {
	matched, err := doublestar.Match(pattern, rel)
	if err != nil {
		// Patterns are validated in New.
		return false
	}
	return matched
}
