package format

import (
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

const (
	TimeRFC2822         = "%a, %d %b %Y %T %z"
	TimeISO6081         = "%F"
	TimeISO6081WithTime = "%FT%T"
	TimeShort           = "%d%b%Y %T"
	TimeShortUTC        = "%d%b%Y %T %z"
)

// GetTimeFormatFromString maps the names accepted by --time-format to
// strftime layouts. Anything else is used as a layout as is.
func GetTimeFormatFromString(name string) string {
	switch strings.ToLower(name) {
	case "rfc2822":
		return TimeRFC2822
	case "iso6081":
		return TimeISO6081
	case "iso6081_with_time":
		return TimeISO6081WithTime
	case "short":
		return TimeShort
	case "short_utc":
		return TimeShortUTC
	}
	return name
}

func TimeToString(t time.Time, layout string) string {
	if layout == "" {
		layout = TimeShort
	}
	return strftime.Format(layout, t.Local())
}

// ReadableShortTime prints t with TimeShort, or TimeShortUTC when
// showUTCDeviation is set.
func ReadableShortTime(t time.Time, showUTCDeviation bool) string {
	if t.IsZero() {
		return "INVALID_TIME"
	}
	if showUTCDeviation {
		return TimeToString(t, TimeShortUTC)
	}
	return TimeToString(t, TimeShort)
}

// timeOffset parses expressions like "1d12h" where the units are d (days),
// h (hours), M (minutes), s (seconds), m (months) and y (years).
func timeOffset(expr string) (years, months, days int, d time.Duration, ok bool) {
	if expr == "" {
		return 0, 0, 0, 0, false
	}
	start := 0
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c >= '0' && c <= '9' {
			if i == len(expr)-1 {
				return 0, 0, 0, 0, false
			}
			continue
		}
		n, _ := strconv.Atoi(expr[start:i])
		switch c {
		case 'd':
			days = n
		case 'h':
			d += time.Duration(n) * time.Hour
		case 'M':
			d += time.Duration(n) * time.Minute
		case 's':
			d += time.Duration(n) * time.Second
		case 'm':
			months = n
		case 'y':
			years = n
		default:
			return 0, 0, 0, 0, false
		}
		start = i + 1
	}
	return years, months, days, d, true
}

// TimeBefore returns the instant expr before initial, or false when expr is
// malformed.
func TimeBefore(initial time.Time, expr string) (time.Time, bool) {
	y, mo, d, dur, ok := timeOffset(expr)
	if !ok {
		return time.Time{}, false
	}
	return initial.AddDate(-y, -mo, -d).Add(-dur), true
}

// TimeAfter returns the instant expr after initial.
func TimeAfter(initial time.Time, expr string) (time.Time, bool) {
	y, mo, d, dur, ok := timeOffset(expr)
	if !ok {
		return time.Time{}, false
	}
	return initial.AddDate(y, mo, d).Add(dur), true
}

// GetMinAndMaxTime parses --mtime expressions relative to now: "+1d" is
// older than a day, "-1d" newer than a day, "+1d-1y" and "-1h+1M" combine
// both bounds. A zero minTime means unbounded.
func GetMinAndMaxTime(now time.Time, expr string) (minTime, maxTime time.Time, ok bool) {
	if expr == "" {
		return minTime, maxTime, false
	}
	first, second := splitBounds(expr)
	switch expr[0] {
	case '+':
		if maxTime, ok = TimeBefore(now, first); !ok {
			return minTime, maxTime, false
		}
		if second != "" {
			if minTime, ok = TimeBefore(now, second); !ok {
				return minTime, maxTime, false
			}
		}
	case '-':
		if minTime, ok = TimeBefore(now, first); !ok {
			return minTime, maxTime, false
		}
		maxTime = now
		if second != "" {
			if maxTime, ok = TimeBefore(now, second); !ok {
				return minTime, maxTime, false
			}
		}
	default:
		return minTime, maxTime, false
	}
	return minTime, maxTime, true
}
