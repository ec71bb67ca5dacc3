package format

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestSizeToText(t *testing.T) {
	tests := []struct {
		size     int64
		equalize bool
		human    bool
		want     string
	}{
		{1000, false, false, "1000"},
		{1000, false, true, "1000.00 B"},
		{1000, true, true, "1000.00  B"},
		{2048, false, true, "2048.00 B"},
		{3072, false, true, "3.00 KB"},
		{3 * 1048576, false, true, "3.00 MB"},
		{5 * 1073741824, false, true, "5.00 GB"},
		{3 * 1099511627776, false, true, "3.00 TB"},
		{0, false, true, "0.00  B"},
	}
	for _, tt := range tests {
		if got := SizeToText(tt.size, tt.equalize, tt.human); got != tt.want {
			t.Errorf("SizeToText(%d, %v, %v): expected %q, got %q", tt.size, tt.equalize, tt.human, tt.want, got)
		}
	}
}

func TestSizeProgressToText(t *testing.T) {
	if got := SizeProgressToText(1536, 3072, false, true); got != "1.50/3.00 KB" {
		t.Errorf("expected 1.50/3.00 KB, got %q", got)
	}
	if got := SizeProgressToText(5, 10, false, false); got != "5/10" {
		t.Errorf("expected 5/10, got %q", got)
	}
}

func TestTextToSize(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"10b", 10},
		{"10B", 10},
		{"2k", 2048},
		{"1M", 1048576},
		{"1g", 1073741824},
		{"1t", 1099511627776},
		{"1k10b", 1034},
		{"10", -1},
		{"10x", -1},
		{"1.5k", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := TextToSize(tt.text); got != tt.want {
			t.Errorf("TextToSize(%q): expected %d, got %d", tt.text, tt.want, got)
		}
	}
}

func TestPercentageToText(t *testing.T) {
	if got := PercentageToText(0.5); got != "50.00%" {
		t.Errorf("expected 50.00%%, got %s", got)
	}
	if got := PercentageToText(math.NaN()); got != "----%" {
		t.Errorf("expected ----%%, got %s", got)
	}
}

func TestFixLengthString(t *testing.T) {
	if got := FixLengthString("abc", 6, ' ', false); got != "abc   " {
		t.Errorf("expected left aligned padding, got %q", got)
	}
	if got := FixLengthString("abc", 6, '.', true); got != "...abc" {
		t.Errorf("expected right aligned padding, got %q", got)
	}
	got := FixLengthString("abcdefghijklmno", 10, ' ', false)
	if got != "abc...lmno" {
		t.Errorf("expected middle truncation, got %q", got)
	}
	if DisplayWidth(got) != 10 {
		t.Errorf("expected truncated width 10, got %d", DisplayWidth(got))
	}
}

func TestDisplayWidth(t *testing.T) {
	if DisplayWidth("⇓") != 1 {
		t.Errorf("expected download arrow to be narrow")
	}
	if DisplayWidth("⏫") != 2 {
		t.Errorf("expected other glyphs to count double")
	}
	if DisplayWidth("ñ") != 1 {
		t.Errorf("expected two byte runes to count once")
	}
}

func TestGetMinAndMaxSize(t *testing.T) {
	minSize, maxSize, ok := GetMinAndMaxSize("+1k-1m")
	if !ok || minSize != 1024 || maxSize != 1048576 {
		t.Errorf("unexpected bounds %d %d %v", minSize, maxSize, ok)
	}
	minSize, maxSize, ok = GetMinAndMaxSize("-2k")
	if !ok || minSize != -1 || maxSize != 2048 {
		t.Errorf("unexpected bounds %d %d %v", minSize, maxSize, ok)
	}
	if _, _, ok = GetMinAndMaxSize("2k"); ok {
		t.Errorf("expected missing sign to be rejected")
	}
}

func TestGetMinAndMaxTime(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	minTime, maxTime, ok := GetMinAndMaxTime(now, "+1d")
	if !ok || !minTime.IsZero() || !maxTime.Equal(now.AddDate(0, 0, -1)) {
		t.Errorf("unexpected +1d bounds %v %v", minTime, maxTime)
	}

	minTime, maxTime, ok = GetMinAndMaxTime(now, "-1h30M")
	if !ok || !minTime.Equal(now.Add(-90*time.Minute)) || !maxTime.Equal(now) {
		t.Errorf("unexpected -1h30M bounds %v %v", minTime, maxTime)
	}

	minTime, maxTime, ok = GetMinAndMaxTime(now, "+1m-1y")
	if !ok || !minTime.Equal(now.AddDate(-1, 0, 0)) || !maxTime.Equal(now.AddDate(0, -1, 0)) {
		t.Errorf("unexpected +1m-1y bounds %v %v", minTime, maxTime)
	}

	if _, _, ok = GetMinAndMaxTime(now, "+10"); ok {
		t.Errorf("expected unit-less expression to be rejected")
	}
}

func TestGetTimeFormatFromString(t *testing.T) {
	if GetTimeFormatFromString("short") != TimeShort || GetTimeFormatFromString("ISO6081") != TimeISO6081 {
		t.Errorf("expected named formats to map to layouts")
	}
	if GetTimeFormatFromString("%Y") != "%Y" {
		t.Errorf("expected custom layouts to pass through")
	}
	got := TimeToString(time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local), TimeISO6081)
	if got != "2024-05-10" {
		t.Errorf("expected 2024-05-10, got %s", got)
	}
}

func TestColumnDisplayer(t *testing.T) {
	cd := NewColumnDisplayer(Options{ClientWidth: 80})
	cd.AddValue("TAG", "1", false)
	cd.AddValue("PATH", "/a", false)
	cd.AddValue("TAG", "22", false)
	cd.AddValue("PATH", "/bbbb", false)

	if cd.Rows() != 2 {
		t.Fatalf("expected repeated name to start a new row, got %d rows", cd.Rows())
	}

	out := cd.String(true)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", out)
	}
	if lines[0] != "TAG PATH " {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[2] != "22  /bbbb" {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestColumnDisplayerSeparatorAndColumns(t *testing.T) {
	cd := NewColumnDisplayer(Options{ColSeparator: ";", OutputCols: "PATH,TAG,MISSING"})
	cd.AddValue("TAG", "1", false)
	cd.AddValue("PATH", "/a", false)
	cd.AddValue("SIZE", "10", false)

	got := cd.String(true)
	if got != "PATH;TAG\n/a;1\n" {
		t.Errorf("unexpected separated output %q", got)
	}
}

func TestColumnDisplayerUnfixedColumnsShrink(t *testing.T) {
	cd := NewColumnDisplayer(Options{ClientWidth: 20})
	cd.AddHeader("PATH", false, 0)
	cd.AddValue("TAG", "1", false)
	cd.AddValue("PATH", strings.Repeat("x", 40), false)

	lines := strings.Split(strings.TrimRight(cd.String(false), "\n"), "\n")
	if DisplayWidth(lines[0]) != 20 {
		t.Errorf("expected row to fit 20 columns, got %d: %q", DisplayWidth(lines[0]), lines[0])
	}
	if !strings.Contains(lines[0], "...") {
		t.Errorf("expected truncated path, got %q", lines[0])
	}
}

func TestColumnDisplayerPrefix(t *testing.T) {
	cd := NewColumnDisplayer(Options{ColSeparator: ","})
	cd.SetPrefix("> ")
	cd.AddValue("A", "1", false)
	if got := cd.String(false); got != "> 1\n" {
		t.Errorf("expected prefixed row, got %q", got)
	}
}
