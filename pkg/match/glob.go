// Package match provides doublestar glob helpers and listing selection
// (include/exclude patterns, size, date and regex filters) over resources.
package match

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob metacharacters that can be escaped with backslash in patterns.
const globEscapable = `*?[]{}\`

// EscapeGlob quotes every glob metacharacter in s so that it matches
// literally. Used for root directories of listing patterns, which are
// paths, not patterns.
//
//	"/data/[raw]"  → "/data/\[raw\]"
//	"/data/a*b"    → "/data/a\*b"
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, globEscapable) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if strings.ContainsRune(globEscapable, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Unescape removes escape backslashes in front of glob metacharacters.
// It turns the static part of a pattern back into a real path.
//
//	"data/file\*.txt"       → "data/file*.txt"
//	"data/\[backup\]/"      → "data/[backup]/"
func Unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) && strings.IndexByte(globEscapable, s[i+1]) >= 0 {
			b.WriteByte(s[i+1])
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// NormalizePattern converts a user-provided glob pattern to canonical form.
//
// Unescaped backslashes become forward slashes (Windows-style input);
// escaped glob metacharacters and escaped backslashes are preserved.
//
//	"data\2024\**"        → "data/2024/**"
//	"data/file\*.txt"     → "data/file\*.txt"
func NormalizePattern(pattern string) string {
	if pattern == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(pattern))

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune(globEscapable, runes[i+1]) {
			b.WriteRune('\\')
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		b.WriteRune('/')
	}
	return b.String()
}

// IsGlobPattern reports whether pattern contains an unescaped glob
// metacharacter.
func IsGlobPattern(pattern string) bool {
	return findFirstUnescapedMeta(pattern) != -1
}

// findFirstUnescapedMeta returns the index of the first unescaped glob
// metacharacter (* ? [ {) in the pattern, or -1 if none is found.
func findFirstUnescapedMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			switch pattern[i+1] {
			case '*', '?', '[', '{', '\\':
				i++
			}
			continue
		}
		if c == '*' || c == '?' || c == '[' || c == '{' {
			return i
		}
	}
	return -1
}

// SplitPattern splits a filesystem glob into its static base directory
// (unescaped, usable as a real path) and the pattern relative to it.
//
//	"/scandir/**"            → "/scandir", "**"
//	"/data/\[raw\]/*.csv"    → "/data/[raw]", "*.csv"
//	"/scandir/file1.txt"     → "/scandir", "file1.txt"
func SplitPattern(pattern string) (base, rest string) {
	base, rest = doublestar.SplitPattern(NormalizePattern(pattern))
	return Unescape(base), rest
}

// IsHidden reports whether any segment of a relative path starts with a
// dot.
//
//	"study/meta_study.txt"     → false
//	".staging/file.txt"        → true
//	"dir/.file1.txt.partial"   → true
func IsHidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
