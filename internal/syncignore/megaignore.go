// Package syncignore edits .megaignore filter files.
//
// A filter has the shape <CLASS><TARGET><TYPE><STRATEGY>:<PATTERN>, for
// instance "-f:*.txt" or "+fg:work*.txt".
package syncignore

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	FileName        = ".megaignore"
	DefaultFileName = ".megaignore.default"
	bom             = "\xEF\xBB\xBF"
)

var filterRegexp = regexp.MustCompile(`^[-+][adfs]?[Nnp]?[GgRr]?:\S+$`)

// defaultFilters are written to a freshly created default file.
var defaultFilters = []string{
	"-s:*",
	"-:.*",
	"-:*~.*",
	"-:*.crdownload",
	"-:*.tmp",
	"-:*.temp",
	"-:desktop.ini",
	"-:~*",
	"-:Thumbs.db",
}

func IsValidFilter(filter string) bool {
	return filterRegexp.MatchString(filter)
}

// FilterFromLegacyPattern turns a legacy excluded name into an exclusion
// filter. Patterns containing a slash match against the relative path.
func FilterFromLegacyPattern(pattern string) string {
	if strings.Contains(pattern, "/") {
		return "-p:" + pattern
	}
	return "-:" + pattern
}

func DefaultPath(configDir string) string {
	return filepath.Join(configDir, DefaultFileName)
}

// File is a loaded .megaignore file. Filters keep no duplicates and are
// returned sorted.
type File struct {
	path    string
	filters map[string]struct{}
	hasBOM  bool
	valid   bool
}

// Open loads the filters at path. A missing file yields an invalid File.
func Open(path string) *File {
	f := &File{path: path, filters: make(map[string]struct{})}
	f.load()
	return f
}

// OpenOrCreate loads path, creating it with a BOM first if it is missing.
func OpenOrCreate(path string) (*File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(bom), 0600); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	f := Open(path)
	if !f.valid {
		return nil, fmt.Errorf("failed to open %s", path)
	}
	return f, nil
}

// CreateDefaultFile writes the stock default filters unless the file already
// exists.
func CreateDefaultFile(configDir string) error {
	path := DefaultPath(configDir)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	contents := bom + "# Default filters applied to new syncs\n" + strings.Join(defaultFilters, "\n") + "\n"
	return os.WriteFile(path, []byte(contents), 0600)
}

func (f *File) load() {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return
	}
	data, f.hasBOM = bytes.CutPrefix(data, []byte(bom))
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || line[0] == '#' {
			continue
		}
		f.filters[line] = struct{}{}
	}
	f.valid = true
}

func (f *File) Path() string {
	return f.path
}

func (f *File) IsValid() bool {
	return f.valid
}

func (f *File) Contains(filter string) bool {
	_, ok := f.filters[filter]
	return ok
}

func (f *File) Filters() []string {
	out := make([]string, 0, len(f.filters))
	for filter := range f.filters {
		out = append(out, filter)
	}
	sort.Strings(out)
	return out
}

// InvalidFilters lists the loaded lines the sync engine will not accept.
func (f *File) InvalidFilters() []string {
	var out []string
	for _, filter := range f.Filters() {
		if !IsValidFilter(filter) {
			out = append(out, filter)
		}
	}
	return out
}

func (f *File) FilterContents() string {
	var b strings.Builder
	for _, filter := range f.Filters() {
		b.WriteString(filter)
		b.WriteByte('\n')
	}
	return b.String()
}

// AddFilters appends filters to the end of the file.
func (f *File) AddFilters(filters []string) error {
	fd, err := os.OpenFile(f.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}
	defer fd.Close()

	w := bufio.NewWriter(fd)
	for _, filter := range filters {
		if _, err := w.WriteString(filter + "\n"); err != nil {
			return err
		}
		f.filters[filter] = struct{}{}
	}
	return w.Flush()
}

// RemoveFilters rewrites the file without the lines equal to any of filters.
// Comments and the BOM are kept.
func (f *File) RemoveFilters(filters []string) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	data, hasBOM := bytes.CutPrefix(data, []byte(bom))

	drop := make(map[string]struct{}, len(filters))
	for _, filter := range filters {
		drop[filter] = struct{}{}
	}

	var b strings.Builder
	if hasBOM {
		b.WriteString(bom)
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if _, ok := drop[line]; ok {
			delete(f.filters, line)
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return os.WriteFile(f.path, []byte(b.String()), 0600)
}
