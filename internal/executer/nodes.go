package executer

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/megaapi"
)

const defaultPathDisplaySize = 40

// walk calls fn for n and every node below it, parents first. fn returning
// false skips the children of that node.
func (e *Executer) walk(n *megaapi.Node, depth int, fn func(n *megaapi.Node, depth int) bool) {
	if !fn(n, depth) || !n.IsFolder() {
		return
	}
	for _, child := range e.api.Children(n) {
		e.walk(child, depth+1, fn)
	}
}

func (e *Executer) totalSize(n *megaapi.Node, withVersions bool) int64 {
	var total int64
	e.walk(n, 0, func(x *megaapi.Node, _ int) bool {
		if !x.IsFile() {
			return true
		}
		total += x.Size
		if withVersions {
			for _, v := range e.api.Versions(x) {
				if v.Handle != x.Handle {
					total += v.Size
				}
			}
		}
		return true
	})
	return total
}

type listing struct {
	long       bool
	human      bool
	handles    bool
	versions   bool
	creation   bool
	recursive  bool
	timeFormat string
}

func listingFrom(c *command) listing {
	return listing{
		long:       c.flags.Has("l") || c.flags.Has("a"),
		human:      c.flags.Has("h"),
		handles:    c.flags.Has("show-handles") || c.flags.Get("a") > 1,
		versions:   c.flags.Has("versions"),
		creation:   c.flags.Has("show-creation-time"),
		recursive:  c.flags.Has("R") || c.flags.Has("r"),
		timeFormat: format.GetTimeFormatFromString(c.opts.Get("time-format", "SHORT")),
	}
}

// nodeFlags is the four letter summary of ls -l: type, exported, shared
// and whether the export expired.
func (e *Executer) nodeFlags(n *megaapi.Node) string {
	var b strings.Builder
	switch n.Type {
	case megaapi.NodeFile:
		b.WriteByte('-')
	case megaapi.NodeFolder:
		b.WriteByte('d')
	case megaapi.NodeRoot:
		b.WriteByte('r')
	case megaapi.NodeIncoming:
		b.WriteByte('i')
	case megaapi.NodeRubbish:
		b.WriteByte('b')
	default:
		b.WriteByte('x')
	}
	if n.Exported {
		b.WriteByte('e')
	} else {
		b.WriteByte('-')
	}
	b.WriteByte('-')
	if n.ExpiredExport() {
		b.WriteByte('x')
	} else {
		b.WriteByte('-')
	}
	return b.String()
}

func (e *Executer) addLongRow(cd *format.ColumnDisplayer, n *megaapi.Node, name string, l listing) {
	cd.AddValue("FLAGS", e.nodeFlags(n), false)
	if n.IsFile() {
		cd.AddValue("VERS", strconv.Itoa(len(e.api.Versions(n))), false)
		cd.AddValue("SIZE", format.SizeToText(n.Size, true, l.human), false)
	} else {
		cd.AddValue("VERS", "-", false)
		cd.AddValue("SIZE", "-", false)
	}
	t := n.ModificationTime
	if l.creation || t.IsZero() {
		t = n.CreationTime
	}
	cd.AddValue("DATE", format.TimeToString(t, l.timeFormat), false)
	if l.handles {
		name += " <" + n.Handle.String() + ">"
	}
	cd.AddValue("NAME", name, false)
}

func (e *Executer) printShort(w io.Writer, n *megaapi.Node, name string, depth int, l listing) {
	line := strings.Repeat("\t", depth) + name
	if l.handles {
		line += " <" + n.Handle.String() + ">"
	}
	fmt.Fprintln(w, line)
	if l.versions && n.IsFile() {
		for _, v := range e.api.Versions(n) {
			if v.Handle == n.Handle {
				continue
			}
			fmt.Fprintf(w, "%s\t%s#%d\n", strings.Repeat("\t", depth), v.Name, v.ModificationTime.Unix())
		}
	}
}

func (e *Executer) ls(c *command) {
	if c.flags.Has("tree") {
		e.tree(c)
		return
	}
	l := listingFrom(c)
	paths := c.args()
	if len(paths) == 0 {
		paths = []string{""}
	}
	var cd *format.ColumnDisplayer
	if l.long {
		cd = format.NewColumnDisplayer(format.OptionsFrom(c.opts))
	}

	for _, p := range paths {
		nodes := e.nodesByPath(p, false)
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "Couldn't find %s", p)
			continue
		}
		for _, n := range nodes {
			if n.IsFile() {
				name := n.Name
				if p != "" && !cmdline.HasWildcards(p) {
					name = p
				}
				if l.long {
					e.addLongRow(cd, n, name, l)
				} else {
					e.printShort(c.out, n, name, 0, l)
				}
				continue
			}
			if len(nodes) > 1 || len(paths) > 1 {
				header := e.displayPath(n, "")
				if l.long {
					cd.AddValue("FLAGS", "", false)
					cd.AddValue("NAME", header+":", true)
				} else {
					fmt.Fprintf(c.out, "%s:\n", header)
				}
			}
			e.walk(n, 0, func(x *megaapi.Node, depth int) bool {
				if depth == 0 {
					return true
				}
				if l.long {
					e.addLongRow(cd, x, strings.Repeat("  ", depth-1)+x.Name, l)
				} else {
					e.printShort(c.out, x, x.Name, depth-1, l)
				}
				return l.recursive
			})
		}
	}
	if cd != nil && cd.Rows() > 0 {
		cd.Print(c.out, true)
	}
}

func (e *Executer) tree(c *command) {
	l := listingFrom(c)
	paths := c.args()
	if len(paths) == 0 {
		paths = []string{""}
	}
	for _, p := range paths {
		n := e.nodeByPath(p)
		if n == nil {
			c.fail(cmdline.ExitNotFound, "Couldn't find %s", p)
			continue
		}
		root := e.displayPath(n, p)
		if p == "" {
			root = "."
		}
		if l.handles {
			root += " <" + n.Handle.String() + ">"
		}
		fmt.Fprintln(c.out, root)
		e.printTree(c.out, n, "", l)
	}
}

func (e *Executer) printTree(w io.Writer, n *megaapi.Node, prefix string, l listing) {
	children := e.api.Children(n)
	for i, child := range children {
		last := i == len(children)-1
		branch, next := "├── ", "│   "
		if last {
			branch, next = "└── ", "    "
		}
		line := prefix + branch + child.Name
		if l.handles {
			line += " <" + child.Handle.String() + ">"
		}
		fmt.Fprintln(w, line)
		if child.IsFolder() {
			e.printTree(w, child, prefix+next, l)
		}
	}
}

// baseFor returns the node relative paths start from: the root for
// absolute paths, the working directory otherwise.
func (e *Executer) baseFor(p string) *megaapi.Node {
	if strings.HasPrefix(p, "//bin") {
		return e.api.RubbishNode()
	}
	if strings.HasPrefix(p, "/") {
		return e.api.RootNode()
	}
	return e.cwdNode()
}

func (e *Executer) mkdir(c *command) {
	args := c.args()
	if len(args) == 0 {
		c.usage()
		return
	}
	recursive := c.flags.Has("p")
	for _, p := range args {
		if existing := e.nodeByPath(p); existing != nil {
			if !recursive || existing.IsFile() {
				c.fail(cmdline.ExitExists, "Folder already exists: %s", p)
			}
			continue
		}
		dir, name := path.Split(strings.TrimRight(p, "/"))
		var parent *megaapi.Node
		switch dir {
		case "":
			parent = e.cwdNode()
		case "/":
			parent = e.api.RootNode()
		default:
			parent = e.nodeByPath(strings.TrimRight(dir, "/"))
		}
		if parent != nil {
			if !parent.IsFolder() {
				c.fail(cmdline.ExitInvalidType, "%s: Not a directory", dir)
				continue
			}
			_, err := e.api.CreateFolder(c.ctx, name, parent)
			c.checkError(err, "create folder %s", p)
			continue
		}
		if !recursive {
			c.fail(cmdline.ExitArgs, "Couldn't find %s. Use -p to create folders recursively", dir)
			continue
		}

		cur := e.baseFor(p)
		for _, part := range strings.Split(strings.Trim(strings.TrimPrefix(p, "//bin"), "/"), "/") {
			if part == "" || part == "." {
				continue
			}
			if part == ".." {
				if parent := e.api.NodeByHandle(cur.ParentHandle); parent != nil {
					cur = parent
				}
				continue
			}
			next := e.api.NodeByPath(part, cur)
			if next == nil {
				var err error
				next, err = e.api.CreateFolder(c.ctx, part, cur)
				if !c.checkError(err, "create folder %s", part) {
					break
				}
			} else if next.IsFile() {
				c.fail(cmdline.ExitInvalidType, "%s: Not a directory", part)
				break
			}
			cur = next
		}
	}
}

func (e *Executer) rm(c *command) {
	args := c.args()
	if len(args) == 0 {
		c.usage()
		return
	}
	recursive := c.flags.Has("r")
	force := c.flags.Has("f")
	sticky := cmdline.ConfirmNo

	for _, p := range args {
		nodes := e.nodesByPath(p, false)
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "No node found: %s", p)
			continue
		}
		for _, n := range nodes {
			if n.Type == megaapi.NodeRoot || n.Type == megaapi.NodeRubbish || n.Type == megaapi.NodeIncoming {
				c.fail(cmdline.ExitNotPermitted, "Removing %s is not allowed", e.api.NodePath(n))
				continue
			}
			if n.IsFolder() {
				if !recursive {
					c.fail(cmdline.ExitInvalidType, "Unable to delete folder: %s. Use -r to delete a folder recursively", e.displayPath(n, p))
					continue
				}
				if !force && !c.confirm(fmt.Sprintf("Are you sure to delete %s ? (Yes/No): ", n.Name), &sticky) {
					if sticky == cmdline.ConfirmNone {
						c.code = cmdline.ExitConfirmNo
						return
					}
					continue
				}
			}
			removingCwd := false
			if cwd := e.cwdNode(); cwd != nil {
				np := e.api.NodePath(n)
				cp := e.api.NodePath(cwd)
				removingCwd = cp == np || strings.HasPrefix(cp, np+"/")
			}
			if !c.checkError(e.api.Remove(c.ctx, n), "delete node %s", e.displayPath(n, p)) {
				continue
			}
			if removingCwd {
				e.setCwd(e.api.RootNode().Handle)
				e.updatePrompt()
			}
		}
	}
}

// transferTargets resolves the sources and destination shared by mv and cp.
func (e *Executer) transferTargets(c *command) (sources []*megaapi.Node, dest *megaapi.Node, newName string, ok bool) {
	args := c.args()
	if len(args) < 2 {
		c.usage()
		return nil, nil, "", false
	}
	destPath := args[len(args)-1]
	for _, p := range args[:len(args)-1] {
		nodes := e.nodesByPath(p, false)
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "%s: No such file or directory", p)
			continue
		}
		sources = append(sources, nodes...)
	}
	if len(sources) == 0 {
		return nil, nil, "", false
	}

	dest = e.nodeByPath(destPath)
	if dest != nil {
		if dest.IsFile() && len(sources) > 1 {
			c.fail(cmdline.ExitInvalidType, "%s: Not a directory", destPath)
			return nil, nil, "", false
		}
		return sources, dest, "", true
	}
	if len(sources) > 1 {
		c.fail(cmdline.ExitNotFound, "%s: No such directory", destPath)
		return nil, nil, "", false
	}
	dir, name := path.Split(strings.TrimRight(destPath, "/"))
	parent := e.cwdNode()
	if dir != "" {
		parent = e.nodeByPath(strings.TrimRight(dir, "/"))
		if dir == "/" {
			parent = e.api.RootNode()
		}
	}
	if parent == nil || !parent.IsFolder() {
		c.fail(cmdline.ExitNotFound, "%s: No such directory", dir)
		return nil, nil, "", false
	}
	return sources, parent, name, true
}

// placement works out where src lands when sent to dest. A file destination
// is replaced by a file source.
func (e *Executer) placement(c *command, src, dest *megaapi.Node, newName string) (*megaapi.Node, string, bool) {
	if dest.IsFolder() {
		name := newName
		if name == "" {
			name = src.Name
		}
		if existing := e.api.NodeByPath(name, dest); existing != nil && existing.Handle != src.Handle {
			if existing.IsFolder() || src.IsFolder() {
				c.fail(cmdline.ExitExists, "%s already exists in %s", name, e.api.NodePath(dest))
				return nil, "", false
			}
			if !c.checkError(e.api.Remove(c.ctx, existing), "replace %s", e.api.NodePath(existing)) {
				return nil, "", false
			}
		}
		return dest, newName, true
	}
	if src.IsFolder() {
		c.fail(cmdline.ExitInvalidType, "Cannot overwrite file %s with a folder", e.api.NodePath(dest))
		return nil, "", false
	}
	parent := e.api.NodeByHandle(dest.ParentHandle)
	if !c.checkError(e.api.Remove(c.ctx, dest), "replace %s", e.api.NodePath(dest)) {
		return nil, "", false
	}
	return parent, dest.Name, true
}

func (e *Executer) mv(c *command) {
	sources, dest, newName, ok := e.transferTargets(c)
	if !ok {
		return
	}
	for _, src := range sources {
		parent, name, ok := e.placement(c, src, dest, newName)
		if !ok {
			continue
		}
		c.checkError(e.api.Move(c.ctx, src, parent, name), "move %s", e.api.NodePath(src))
	}
	e.updatePrompt()
}

func (e *Executer) cp(c *command) {
	sources, dest, newName, ok := e.transferTargets(c)
	if !ok {
		return
	}
	for _, src := range sources {
		parent, name, ok := e.placement(c, src, dest, newName)
		if !ok {
			continue
		}
		_, err := e.api.Copy(c.ctx, src, parent, name)
		c.checkError(err, "copy %s", e.api.NodePath(src))
	}
}

func (e *Executer) du(c *command) {
	human := c.flags.Has("h")
	withVersions := c.flags.Has("versions")
	width := c.opts.GetInt("path-display-size", defaultPathDisplaySize)
	paths := c.args()
	if len(paths) == 0 {
		paths = []string{""}
	}

	fmt.Fprintf(c.out, "%s %s\n", format.Pad("FILENAME", width), format.RightAligned("SIZE", 12))
	var total int64
	for _, p := range paths {
		nodes := e.nodesByPath(p, false)
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "%s: No such file or directory", p)
			continue
		}
		for _, n := range nodes {
			size := e.totalSize(n, withVersions)
			total += size
			name := e.displayPath(n, p)
			if p == "" {
				name = e.api.NodePath(n)
			}
			fmt.Fprintf(c.out, "%s %s\n", format.Pad(name+":", width), format.RightAligned(format.SizeToText(size, true, human), 12))
		}
	}
	fmt.Fprintln(c.out, strings.Repeat("-", width+13))
	fmt.Fprintf(c.out, "%s %s\n", format.Pad("Total storage used:", width), format.RightAligned(format.SizeToText(total, true, human), 12))
}

type findFilter struct {
	pattern  string
	regexp   bool
	nodeType string
	minSize  int64
	maxSize  int64
	minTime  time.Time
	maxTime  time.Time
}

func (f findFilter) match(n *megaapi.Node) bool {
	if f.pattern != "" && !cmdline.PatternMatches(n.Name, f.pattern, f.regexp) {
		return false
	}
	switch f.nodeType {
	case "d":
		if !n.IsFolder() {
			return false
		}
	case "f":
		if !n.IsFile() {
			return false
		}
	}
	if f.minSize >= 0 || f.maxSize >= 0 {
		if !n.IsFile() {
			return false
		}
		if f.minSize >= 0 && n.Size < f.minSize {
			return false
		}
		if f.maxSize >= 0 && n.Size > f.maxSize {
			return false
		}
	}
	if !f.minTime.IsZero() && n.ModificationTime.Before(f.minTime) {
		return false
	}
	if !f.maxTime.IsZero() && n.ModificationTime.After(f.maxTime) {
		return false
	}
	return true
}

func (e *Executer) find(c *command) {
	f := findFilter{pattern: c.opts.Get("pattern", ""), minSize: -1, maxSize: -1}
	if t := c.opts.Get("type", ""); t != "" {
		if t != "d" && t != "f" {
			c.fail(cmdline.ExitArgs, "Invalid type: %s. Use d for folders or f for files", t)
			return
		}
		f.nodeType = t
	}
	if s := c.opts.Get("size", ""); s != "" {
		var ok bool
		if f.minSize, f.maxSize, ok = format.GetMinAndMaxSize(s); !ok {
			c.fail(cmdline.ExitArgs, "Invalid size: %s", s)
			return
		}
	}
	if m := c.opts.Get("mtime", ""); m != "" {
		var ok bool
		if f.minTime, f.maxTime, ok = format.GetMinAndMaxTime(time.Now(), m); !ok {
			c.fail(cmdline.ExitArgs, "Invalid time: %s", m)
			return
		}
	}
	onlyHandles := c.flags.Has("print-only-handles")
	showHandles := c.flags.Has("show-handles")
	l := listing{long: c.flags.Has("l") || c.opts.Has("l"), human: true, timeFormat: format.GetTimeFormatFromString(c.opts.Get("time-format", "SHORT"))}
	var cd *format.ColumnDisplayer
	if l.long {
		cd = format.NewColumnDisplayer(format.OptionsFrom(c.opts))
	}

	paths := c.args()
	if len(paths) == 0 {
		paths = []string{""}
	}
	for _, p := range paths {
		nodes := e.nodesByPath(p, false)
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "Couldn't find %s", p)
			continue
		}
		for _, start := range nodes {
			startPath := e.api.NodePath(start)
			shown := p
			if shown == "" {
				shown = "."
			}
			e.walk(start, 0, func(n *megaapi.Node, depth int) bool {
				if !f.match(n) {
					return true
				}
				if onlyHandles {
					fmt.Fprintln(c.out, n.Handle.String())
					return true
				}
				name := shown
				if depth > 0 {
					rel := strings.TrimPrefix(strings.TrimPrefix(e.api.NodePath(n), startPath), "/")
					name = strings.TrimSuffix(shown, "/") + "/" + rel
					if shown == "." {
						name = rel
					}
				}
				if l.long {
					e.addLongRow(cd, n, name, l)
					return true
				}
				if showHandles {
					name += " <" + n.Handle.String() + ">"
				}
				fmt.Fprintln(c.out, name)
				return true
			})
		}
	}
	if cd != nil && cd.Rows() > 0 {
		cd.Print(c.out, true)
	}
}

func (e *Executer) cat(c *command) {
	args := c.args()
	if len(args) == 0 {
		c.usage()
		return
	}
	for _, p := range args {
		var nodes []*megaapi.Node
		if cmdline.IsPublicLink(p) {
			n, err := e.api.PublicNode(c.ctx, p)
			if !c.checkError(err, "get node from link %s", p) {
				continue
			}
			nodes = []*megaapi.Node{n}
		} else {
			nodes = e.nodesByPath(p, false)
		}
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "%s: No such file or directory", p)
			continue
		}
		for _, n := range nodes {
			if !n.IsFile() {
				c.fail(cmdline.ExitInvalidType, "Unable to cat %s: not a file", e.displayPath(n, p))
				continue
			}
			r, err := e.api.OpenReader(c.ctx, n)
			if !c.checkError(err, "read %s", e.displayPath(n, p)) {
				continue
			}
			_, err = io.Copy(c.out, r)
			r.Close()
			if err != nil {
				c.fail(cmdline.ExitUnexpected, "Failed to read %s: %v", e.displayPath(n, p), err)
			}
		}
	}
}

func (e *Executer) deleteVersions(c *command) {
	force := c.flags.Has("f")
	sticky := cmdline.ConfirmNo
	if c.flags.Has("all") {
		if !force && !c.confirm("Are you sure todelete the version histories of all files? (Yes/No): ", nil) {
			c.code = cmdline.ExitConfirmNo
			return
		}
		root := e.api.RootNode()
		e.walk(root, 0, func(n *megaapi.Node, _ int) bool {
			if n.IsFile() {
				c.checkError(e.api.RemoveVersions(c.ctx, n), "remove versions of %s", e.api.NodePath(n))
			}
			return true
		})
		fmt.Fprintln(c.out, "File versions deleted successfully.")
		return
	}
	args := c.args()
	if len(args) == 0 {
		c.usage()
		return
	}
	for _, p := range args {
		nodes := e.nodesByPath(p, false)
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "No node found: %s", p)
			continue
		}
		for _, n := range nodes {
			msg := fmt.Sprintf("Are you sure todelete the version histories of %s? (Yes/No): ", n.Name)
			if n.IsFolder() {
				msg = fmt.Sprintf("Are you sure todelete the version histories of files within %s? (Yes/No): ", n.Name)
			}
			if !force && !c.confirm(msg, &sticky) {
				if sticky == cmdline.ConfirmNone {
					c.code = cmdline.ExitConfirmNo
					return
				}
				continue
			}
			e.walk(n, 0, func(x *megaapi.Node, _ int) bool {
				if x.IsFile() {
					c.checkError(e.api.RemoveVersions(c.ctx, x), "remove versions of %s", e.api.NodePath(x))
				}
				return true
			})
			fmt.Fprintf(c.out, "Version histories of %s deleted successfully.\n", e.displayPath(n, p))
		}
	}
}
