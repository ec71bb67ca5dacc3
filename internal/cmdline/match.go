package cmdline

import (
	"regexp"
	"strings"
)

// WildcardMatch reports whether s matches pattern, where '*' matches any run
// of characters and '?' exactly one.
func WildcardMatch(s, pattern string) bool {
	si, pi := 0, 0
	for si < len(s) && (pi >= len(pattern) || pattern[pi] != '*') {
		if pi >= len(pattern) || (pattern[pi] != s[si] && pattern[pi] != '?') {
			return false
		}
		si++
		pi++
	}

	mp, cp := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && pattern[pi] == '*':
			pi++
			if pi == len(pattern) {
				return true
			}
			mp = pi
			cp = si + 1
		case pi < len(pattern) && (pattern[pi] == s[si] || pattern[pi] == '?'):
			pi++
			si++
		default:
			if mp < 0 {
				return false
			}
			pi = mp
			si = cp
			cp++
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// PatternMatches matches with WildcardMatch, or as an anchored regular
// expression when useRegexp is set.
func PatternMatches(s, pattern string, useRegexp bool) bool {
	if !useRegexp {
		return WildcardMatch(s, pattern)
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func HasWildcards(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// NodeNameIsVersion reports whether name carries the "#0123456789" suffix
// given to old versions of a file.
func NodeNameIsVersion(name string) bool {
	if len(name) <= 12 || name[len(name)-11] != '#' {
		return false
	}
	for i := len(name) - 10; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}
