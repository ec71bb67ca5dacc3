package format

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cshum/megacmd/internal/cmdline"
)

const DefaultClientWidth = 75

type field struct {
	name      string
	fixed     bool
	minWidth  int
	maxValue  int
	dispWidth int
}

// ColumnDisplayer collects rows of named values and prints them as a table
// that fits the client width. Columns are printed in the order their names
// were first seen. The output-cols option selects and reorders them and
// col-separator switches to raw separated output.
type ColumnDisplayer struct {
	options Options

	fields     map[string]*field
	fieldNames []string
	rows       []map[string]string
	current    map[string]string
	prefix     string
}

// Options is the subset of command line options the displayer honours.
type Options struct {
	ClientWidth     int
	OutputCols      string
	ColSeparator    string
	PathDisplaySize int
}

func OptionsFrom(opts cmdline.Options) Options {
	return Options{
		ClientWidth:     opts.GetInt("client-width", DefaultClientWidth),
		OutputCols:      opts.Get("output-cols", ""),
		ColSeparator:    opts.Get("col-separator", ""),
		PathDisplaySize: opts.GetInt("path-display-size", 0),
	}
}

func NewColumnDisplayer(opts Options) *ColumnDisplayer {
	if opts.ClientWidth <= 0 {
		opts.ClientWidth = DefaultClientWidth
	}
	return &ColumnDisplayer{
		options: opts,
		fields:  make(map[string]*field),
		current: make(map[string]string),
	}
}

func (cd *ColumnDisplayer) SetPrefix(prefix string) {
	cd.prefix = prefix
}

// AddHeader declares a column ahead of its values. Unfixed columns share the
// width left by the fixed ones.
func (cd *ColumnDisplayer) AddHeader(name string, fixed bool, minWidth int) {
	f, ok := cd.fields[name]
	if !ok {
		f = &field{name: name}
		cd.fields[name] = f
	}
	f.fixed = fixed
	f.minWidth = minWidth
}

// AddValue sets name in the current row. Setting a name the row already has
// closes the row and starts a new one, unless replace is set.
func (cd *ColumnDisplayer) AddValue(name, value string, replace bool) {
	if !replace {
		if _, ok := cd.current[name]; ok {
			cd.EndRegistry()
		}
	}
	cd.current[name] = value

	f, ok := cd.fields[name]
	if !ok {
		f = &field{name: name, fixed: true}
		cd.fields[name] = f
	}
	if !containsString(cd.fieldNames, name) {
		cd.fieldNames = append(cd.fieldNames, name)
	}
	if w := DisplayWidth(value); w > f.maxValue {
		f.maxValue = w
	}
}

func (cd *ColumnDisplayer) EndRegistry() {
	if len(cd.current) == 0 {
		return
	}
	cd.rows = append(cd.rows, cd.current)
	cd.current = make(map[string]string)
}

func (cd *ColumnDisplayer) Rows() int {
	n := len(cd.rows)
	if len(cd.current) > 0 {
		n++
	}
	return n
}

func (cd *ColumnDisplayer) Clear() {
	*cd = *NewColumnDisplayer(cd.options)
}

func (cd *ColumnDisplayer) selectedNames() []string {
	if cd.options.OutputCols == "" {
		return cd.fieldNames
	}
	var names []string
	for _, c := range strings.Split(cd.options.OutputCols, ",") {
		if containsString(cd.fieldNames, c) {
			names = append(names, c)
		}
	}
	return names
}

func (cd *ColumnDisplayer) Print(w io.Writer, printHeader bool) {
	cd.print(w, printHeader, false)
}

func (cd *ColumnDisplayer) PrintHeaders(w io.Writer) {
	cd.print(w, true, true)
}

func (cd *ColumnDisplayer) String(printHeader bool) string {
	var b strings.Builder
	cd.Print(&b, printHeader)
	return b.String()
}

func (cd *ColumnDisplayer) print(w io.Writer, printHeader, onlyHeaders bool) {
	cd.EndRegistry()
	names := cd.selectedNames()

	if sep := cd.options.ColSeparator; sep != "" {
		if printHeader {
			fmt.Fprintln(w, cd.prefix+strings.Join(names, sep))
		}
		if onlyHeaders {
			return
		}
		for _, row := range cd.rows {
			values := make([]string, len(names))
			for i, n := range names {
				values[i] = row[n]
			}
			fmt.Fprintln(w, cd.prefix+strings.Join(values, sep))
		}
		return
	}

	cd.computeWidths()

	if printHeader {
		cells := make([]string, len(names))
		for i, n := range names {
			cells[i] = Pad(n, cd.fields[n].dispWidth)
		}
		fmt.Fprintln(w, cd.prefix+strings.Join(cells, " "))
	}
	if onlyHeaders {
		return
	}
	for _, row := range cd.rows {
		cells := make([]string, len(names))
		for i, n := range names {
			cells[i] = Pad(row[n], cd.fields[n].dispWidth)
		}
		fmt.Fprintln(w, cd.prefix+strings.Join(cells, " "))
	}
}

// computeWidths gives fixed columns their widest value and shares what is
// left of the client width among the unfixed ones. An unfixed column never
// gets less than its header nor more than its widest value.
func (cd *ColumnDisplayer) computeWidths() {
	left := cd.options.ClientWidth
	var unfixed []*field
	unfixedSum := 0

	names := make([]string, 0, len(cd.fields))
	for n := range cd.fields {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		f := cd.fields[n]
		if f.fixed {
			if f.minWidth > 0 {
				f.dispWidth = f.minWidth
			} else {
				f.dispWidth = max(DisplayWidth(f.name), f.maxValue)
			}
			left -= f.dispWidth + 1
		} else {
			unfixed = append(unfixed, f)
			unfixedSum += f.maxValue
		}
	}

	count := len(unfixed)
	remainingMax := unfixedSum
	for _, f := range unfixed {
		remainingMax -= f.maxValue
		share := max((left-count+1)/count, left-count+1-remainingMax)
		f.dispWidth = max(DisplayWidth(f.name), min(f.maxValue, max(cd.options.PathDisplaySize, share)))
		left -= f.dispWidth + 1
		count--
	}
}

func containsString(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}
