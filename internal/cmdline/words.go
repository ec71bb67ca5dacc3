package cmdline

import "strings"

// GetListOfWords splits a typed command line into words.
//
// Words wrapped in single or double quotes keep their spaces and lose the
// quotes. A quote that opens in the middle of a word (--opt="a b") keeps the
// whole word verbatim, quotes included. A trailing space produces a final
// empty word unless ignoreTrailingSpaces is set; completion relies on that to
// know the user is starting a new word.
func GetListOfWords(line string, escapeBackslashInCompletion, ignoreTrailingSpaces bool) []string {
	var words []string
	n := len(line)
	p := 0

	for {
		for p < n && line[p] > 0 && line[p] <= ' ' && (ignoreTrailingSpaces || p+1 < n) {
			p++
		}
		if p >= n {
			break
		}

		switch q := line[p]; q {
		case '"', '\'':
			p++
			end := strings.IndexByte(line[p:], q)
			if end < 0 {
				words = append(words, line[p:])
				p = n
			} else {
				words = append(words, line[p:p+end])
				p += end + 1
			}
		default:
			for p < n && line[p] == ' ' {
				p++
			}
			start := p
			prev := p
			for p < n && !(line[p] == ' ' && line[prev] != '\\') {
				if line[p] == '"' && p+1 < n {
					for {
						p++
						if line[p] == '"' || p+1 >= n {
							break
						}
					}
				}
				prev = p
				p++
			}
			words = append(words, line[start:p])
		}
	}

	if escapeBackslashInCompletion && len(words) > 1 && words[0] == "completion" {
		for i := 1; i < len(words); i++ {
			words[i] = strings.ReplaceAll(words[i], `\`, `\\`)
		}
	}

	return words
}

// Unescape removes backslash escapes from a word, so that `a\ b` becomes
// `a b`.
func Unescape(word string) string {
	if !strings.Contains(word, `\`) {
		return word
	}
	var b strings.Builder
	escaped := false
	for _, r := range word {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(r)
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

// Quote returns word quoted so that GetListOfWords reads it back as a single
// word.
func Quote(word string) string {
	if word != "" && !strings.ContainsAny(word, " \t'\"") {
		return word
	}
	if strings.Contains(word, `"`) {
		return "'" + word + "'"
	}
	return `"` + word + `"`
}
