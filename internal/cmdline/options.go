package cmdline

import (
	"strconv"
	"strings"
)

// Flags counts how many times each flag was given: -vv yields v=2.
type Flags map[string]int

// Options holds --name=value pairs.
type Options map[string]string

type Set map[string]struct{}

func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s Set) Add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// SetOptionsAndFlags consumes the flag and option words found in words and
// returns the words left plus the names that were not in valid. A "--" word
// stops the parsing and is dropped. In global mode parsing also stops at the
// first word that is neither a flag nor an option. Negative numbers such
// as the "-57" of "errorcode -57" are plain words.
func SetOptionsAndFlags(opts Options, flags Flags, words []string, valid Set, global bool) (rest []string, invalid []string) {
	rest = make([]string, 0, len(words))
	for i := 0; i < len(words); i++ {
		w := words[i]
		if len(w) < 2 || w[0] != '-' || isNegativeNumber(w) {
			if global {
				return append(rest, words[i:]...), invalid
			}
			rest = append(rest, w)
			continue
		}

		switch {
		case w[1] != '-':
			for _, r := range w[1:] {
				name := string(r)
				if valid.Has(name) {
					flags[name]++
				} else {
					invalid = append(invalid, name)
				}
			}
		case w == "--":
			return append(rest, words[i+1:]...), invalid
		case !strings.Contains(w, "="):
			name := strings.TrimLeft(w, "-")
			if valid.Has(name) {
				flags[name]++
			} else {
				invalid = append(invalid, name)
			}
		default:
			cleared := strings.TrimLeft(w, "-")
			eq := strings.IndexByte(cleared, '=')
			name := cleared[:eq]
			if valid.Has(name) {
				opts[name] = strings.TrimRight(strings.TrimLeft(cleared[eq+1:], `"`), `"`)
			} else {
				invalid = append(invalid, name)
			}
		}
	}
	return rest, invalid
}

func isNegativeNumber(w string) bool {
	if len(w) < 2 || w[0] != '-' {
		return false
	}
	for _, r := range w[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (f Flags) Get(name string) int {
	return f[name]
}

func (f Flags) Has(name string) bool {
	return f[name] > 0
}

func (o Options) Get(name, def string) string {
	if v, ok := o[name]; ok {
		return v
	}
	return def
}

func (o Options) Has(name string) bool {
	_, ok := o[name]
	return ok
}

// GetInt returns the integer value of the option, or def when the option is
// missing or malformed.
func (o Options) GetInt(name string, def int) int {
	v, ok := o[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// ToInteger parses what as a base 10 integer, returning failValue for
// anything else.
func ToInteger(what string, failValue int) int {
	n, err := strconv.Atoi(what)
	if err != nil {
		return failValue
	}
	return n
}
