package syncignore

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestIsValidFilter(t *testing.T) {
	valid := []string{"-f:*.txt", "+fg:work*.txt", "-N:*.avi", "-nr:.*foo.*", "-d:private", "-:name", "+dNG:x"}
	for _, f := range valid {
		if !IsValidFilter(f) {
			t.Errorf("expected %q to be valid", f)
		}
	}
	invalid := []string{"f:*.txt", "-x:foo", "-f:", "-f:a b", "-fff:a"}
	for _, f := range invalid {
		if IsValidFilter(f) {
			t.Errorf("expected %q to be invalid", f)
		}
	}
}

func TestFilterFromLegacyPattern(t *testing.T) {
	if got := FilterFromLegacyPattern("*.tmp"); got != "-:*.tmp" {
		t.Errorf("expected -:*.tmp, got %s", got)
	}
	if got := FilterFromLegacyPattern("build/out"); got != "-p:build/out" {
		t.Errorf("expected -p:build/out, got %s", got)
	}
}

func TestFileLoadSkipsBOMAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	contents := bom + "# comment\n\n-f:*.txt\r\n-d:private\n-f:*.txt\n"
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}

	f := Open(path)
	if !f.IsValid() {
		t.Fatalf("expected file to load")
	}
	if got := f.Filters(); !reflect.DeepEqual(got, []string{"-d:private", "-f:*.txt"}) {
		t.Errorf("unexpected filters %q", got)
	}
	if !f.Contains("-d:private") {
		t.Errorf("expected filter to be contained")
	}
}

func TestOpenMissingFileIsInvalid(t *testing.T) {
	if Open(filepath.Join(t.TempDir(), "nope")).IsValid() {
		t.Errorf("expected missing file to be invalid")
	}
}

func TestAddAndRemoveFiltersKeepBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	f, err := OpenOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.AddFilters([]string{"-f:*.txt", "-d:tmp", "+f:keep.txt"}); err != nil {
		t.Fatal(err)
	}
	if err := f.RemoveFilters([]string{"-d:tmp"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), bom) {
		t.Errorf("expected BOM to be kept")
	}
	if strings.Contains(string(data), "-d:tmp") {
		t.Errorf("expected removed filter to be gone, got %q", data)
	}

	reloaded := Open(path)
	if got := reloaded.Filters(); !reflect.DeepEqual(got, []string{"+f:keep.txt", "-f:*.txt"}) {
		t.Errorf("unexpected filters after reload %q", got)
	}
}

func TestCreateDefaultFile(t *testing.T) {
	dir := t.TempDir()
	if err := CreateDefaultFile(dir); err != nil {
		t.Fatal(err)
	}
	f := Open(DefaultPath(dir))
	if !f.Contains("-:*.tmp") {
		t.Errorf("expected stock filters in default file")
	}
	if len(f.InvalidFilters()) != 0 {
		t.Errorf("expected stock filters to be valid, got %q", f.InvalidFilters())
	}
}
