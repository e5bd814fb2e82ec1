package policy

import (
	"regexp"
	"strings"
)

// MatchesScope reports whether scope matches the glob pattern.
//
// "*" alone matches anything and exact equality always matches. Otherwise
// "**" matches any run of characters including '/', "*" matches within one
// path segment and "?" matches exactly one non-'/' character. Every other
// character is literal. Matching is case-sensitive and anchored.
func MatchesScope(pattern, scope string) bool {
	if pattern == "*" || pattern == scope {
		return true
	}
	re, err := regexp.Compile(globToRegexp(pattern))
	if err != nil {
		// Every literal is quoted, so this only guards against a regexp
		// engine limit such as pattern length.
		return false
	}
	return re.MatchString(scope)
}

func globToRegexp(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) + 8)
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				b.WriteString(".*")
				i++
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		default:
			// Copy the full rune so multi-byte characters stay intact.
			j := i + 1
			for j < len(pattern) && pattern[j] >= 0x80 && pattern[j] < 0xC0 {
				j++
			}
			b.WriteString(regexp.QuoteMeta(pattern[i:j]))
			i = j - 1
		}
	}
	b.WriteString("$")
	return b.String()
}
