package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	kb int64 = 1024
	mb       = kb * 1024
	gb       = mb * 1024
	tb       = gb * 1024
)

// reduce picks the unit used to print size. A unit is only used once the
// value is over twice that unit so small values keep more precision.
func reduce(size int64) (float64, string) {
	switch {
	case size > tb*2:
		return float64(size) / float64(tb), "TB"
	case size > gb*2:
		return float64(size) / float64(gb), "GB"
	case size > mb*2:
		return float64(size) / float64(mb), "MB"
	case size > kb*2:
		return float64(size) / float64(kb), "KB"
	}
	return float64(size), ""
}

func SizeToText(size int64, equalizeUnits, humanReadable bool) string {
	if !humanReadable {
		return strconv.FormatInt(size, 10)
	}
	reduced, unit := reduce(size)
	if unit == "" {
		unit = "B"
		if equalizeUnits {
			unit = " B"
		}
	}
	if reduced == 0 {
		return fmt.Sprintf("%.2f  %s", reduced, unit)
	}
	return fmt.Sprintf("%.2f %s", reduced, unit)
}

// SizeProgressToText prints partial/total in the unit of total.
func SizeProgressToText(partial, total int64, equalizeUnits, humanReadable bool) string {
	if !humanReadable {
		return fmt.Sprintf("%d/%d", partial, total)
	}
	reduced, unit := reduce(total)
	divisor := 1.0
	if unit == "" {
		unit = "B"
		if equalizeUnits {
			unit = " B"
		}
	} else {
		divisor = float64(total) / reduced
	}
	return fmt.Sprintf("%.2f/%.2f %s", float64(partial)/divisor, reduced, unit)
}

// TextToSize parses sizes such as "10M", "1g" or "3k200b". Every number needs
// a unit suffix; malformed text yields -1.
func TextToSize(text string) int64 {
	if text == "" {
		return -1
	}
	var total int64
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c >= '0' && c <= '9' {
			if i == len(text)-1 {
				return -1
			}
			continue
		}
		var unit int64
		switch c {
		case 'b', 'B':
			unit = 1
		case 'k', 'K':
			unit = kb
		case 'm', 'M':
			unit = mb
		case 'g', 'G':
			unit = gb
		case 't', 'T':
			unit = tb
		default:
			return -1
		}
		n, err := strconv.ParseInt(text[start:i], 10, 64)
		if err != nil {
			n = 0
		}
		total += n * unit
		start = i + 1
	}
	return total
}

func PercentageToText(fraction float64) string {
	if math.IsNaN(fraction) {
		return "----%"
	}
	return fmt.Sprintf("%.2f%%", fraction*100)
}

// SecondsToText prints a duration in seconds, minutes or hours.
func SecondsToText(seconds int64, humanReadable bool) string {
	if !humanReadable {
		return strconv.FormatInt(seconds, 10)
	}
	switch {
	case seconds > 3600*2:
		return fmt.Sprintf("%d hours", seconds/3600)
	case seconds > 60*2:
		return fmt.Sprintf("%d minutes", seconds/60)
	}
	return fmt.Sprintf("%d seconds", seconds)
}

// GetMinAndMaxSize parses "+X" (larger than X), "-X" (smaller than X),
// "+X-Y" and "-Y+X". Unset bounds are -1.
func GetMinAndMaxSize(expr string) (minSize, maxSize int64, ok bool) {
	minSize, maxSize = -1, -1
	if expr == "" {
		return minSize, maxSize, false
	}
	first, second := splitBounds(expr)
	switch expr[0] {
	case '+':
		if minSize = TextToSize(first); minSize == -1 {
			return minSize, maxSize, false
		}
		if second != "" {
			if maxSize = TextToSize(second); maxSize == -1 {
				return minSize, maxSize, false
			}
		}
	case '-':
		if maxSize = TextToSize(first); maxSize == -1 {
			return minSize, maxSize, false
		}
		if second != "" {
			if minSize = TextToSize(second); minSize == -1 {
				return minSize, maxSize, false
			}
		}
	default:
		return minSize, maxSize, false
	}
	return minSize, maxSize, true
}

// splitBounds splits "+A-B" or "-A+B" into A and B.
func splitBounds(expr string) (string, string) {
	other := "-"
	if expr[0] == '-' {
		other = "+"
	}
	rest := expr[1:]
	if i := strings.Index(rest, other); i >= 0 {
		return rest[:i], rest[i+1:]
	}
	return rest, ""
}
