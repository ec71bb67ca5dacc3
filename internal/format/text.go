package format

import (
	"strings"
	"unicode/utf8"
)

// narrowGlyphs are three byte symbols known to render one column wide.
var narrowGlyphs = []string{"⇵", "⇓", "⇑"}

// DisplayWidth approximates the number of terminal columns s takes. Three
// byte sequences other than the known arrows may render double width, so
// they count as two.
func DisplayWidth(s string) int {
	width := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return 0
		}
		width++
		if size == 3 {
			narrow := false
			for _, g := range narrowGlyphs {
				if strings.HasPrefix(s[i:], g) {
					narrow = true
					break
				}
			}
			if !narrow {
				width++
			}
		}
		i += size
	}
	return width
}

// FixLengthString pads s with delim up to size columns, or shortens it by
// replacing its middle with "...".
func FixLengthString(s string, size int, delim byte, alignRight bool) string {
	width := DisplayWidth(s)
	if width <= size {
		pad := strings.Repeat(string(delim), size-width)
		if alignRight {
			return pad + s
		}
		return s + pad
	}

	runes := []rune(s)
	head := (size+1)/2 - 2
	if head < 0 {
		head = 0
	}
	tail := size/2 - 1
	if tail < 0 || size <= 1 {
		tail = 0
	}
	var b strings.Builder
	b.WriteString(string(runes[:min(head, len(runes))]))
	if size > 3 {
		b.WriteString("...")
	}
	if tail > 0 && tail < len(runes) {
		b.WriteString(string(runes[len(runes)-tail:]))
	}
	return b.String()
}

func Pad(s string, size int) string {
	return FixLengthString(s, size, ' ', false)
}

// RightAligned pads s on the left up to minSize columns.
func RightAligned(s string, minSize int) string {
	return FixLengthString(s, max(minSize, DisplayWidth(s)), ' ', true)
}

// Centered wraps msg in a box-like line of width columns filled with '-',
// as used for section headers.
func Centered(msg string, width int) string {
	w := DisplayWidth(msg)
	if w+2 >= width {
		return msg
	}
	left := (width - w - 2) / 2
	right := width - w - 2 - left
	return strings.Repeat("-", left) + " " + msg + " " + strings.Repeat("-", right)
}
