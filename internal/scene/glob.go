package scene

import "strings"

// SplitPatterns splits a comma-separated pattern list into trimmed,
// non-empty patterns.
func SplitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchesAny reports whether name matches any of the given patterns.
func MatchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if MatchPattern(p, name) {
			return true
		}
	}
	return false
}

// MatchPattern reports whether name matches pattern.
//
// Supported wildcards:
//   - '*' matches any run of characters (including none)
//   - '?' matches exactly one character
//
// All other characters match themselves, case-sensitively. Entity ids
// contain dots, so no character acts as a path separator.
func MatchPattern(pattern, name string) bool {
	// Iterative matching with single-star backtracking.
	var (
		p, n         int
		starP, starN = -1, 0
	)
	for n < len(name) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == name[n]):
			p++
			n++
		case p < len(pattern) && pattern[p] == '*':
			starP = p
			starN = n
			p++
		case starP >= 0:
			// Mismatch after a star: widen what the star consumed.
			starN++
			p = starP + 1
			n = starN
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
