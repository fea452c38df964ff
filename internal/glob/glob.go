// Package glob implements a small glob dialect: "*" matches within one
// path segment (never crossing "/"), "**" matches any suffix including
// "/", a trailing "/*" matches
// exactly one additional path segment, and a trailing "/**" matches
// any descendant. Deliberately not a full POSIX fnmatch.
package glob

import "strings"

// Match reports whether name satisfies pattern under the dialect above.
// An empty pattern matches everything (the spec's "empty = any" filters).
func Match(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	switch {
	case pattern == "**":
		return true
	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "/**")
		return name == prefix || strings.HasPrefix(name, prefix+"/")
	case strings.HasSuffix(pattern, "/*"):
		prefix := strings.TrimSuffix(pattern, "/*")
		if !strings.HasPrefix(name, prefix+"/") {
			return false
		}
		rest := name[len(prefix)+1:]
		return rest != "" && !strings.Contains(rest, "/")
	case strings.HasSuffix(pattern, "**"):
		prefix := strings.TrimSuffix(pattern, "**")
		for i := 0; i <= len(name); i++ {
			if matchStar(prefix, name[:i]) {
				return true
			}
		}
		return false
	default:
		return matchStar(pattern, name)
	}
}

// matchStar matches a pattern containing "*" wildcards (each matching a
// run of zero or more non-"/" characters) against name, anchored at
// both ends. Classic greedy two-pointer wildcard matching, restricted
// to never let a "*" absorb a "/".
func matchStar(pattern, name string) bool {
	p, n := 0, 0
	starIdx, matchIdx := -1, 0
	for n < len(name) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			starIdx = p
			matchIdx = n
			p++
		case p < len(pattern) && pattern[p] != '*' && pattern[p] == name[n]:
			p++
			n++
		case starIdx != -1 && name[matchIdx] != '/':
			p = starIdx + 1
			matchIdx++
			n = matchIdx
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// MatchAny reports whether name matches any of patterns. An empty list
// matches everything.
func MatchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}
