package executer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/comms"
	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/internal/transfers"
	"github.com/cshum/megacmd/megaapi"
)

const (
	progressInterval     = 200 * time.Millisecond
	defaultTransferLimit = 10

	maxSpeedUploadProperty   = "maxspeedupload"
	maxSpeedDownloadProperty = "maxspeeddownload"
)

// globalTransferListener sees every transfer. Downloads are tracked by the
// downloads manager and finished top level transfers are kept for
// "transfers --show-completed".
type globalTransferListener struct {
	e *Executer
}

func (g *globalTransferListener) OnTransferStart(api megaapi.API, t *megaapi.Transfer) {
	if t.Type == megaapi.TransferDownload {
		g.e.downloads.OnTransferStart(api, t)
	}
}

func (g *globalTransferListener) OnTransferUpdate(api megaapi.API, t *megaapi.Transfer) {
	if t.Type == megaapi.TransferDownload {
		g.e.downloads.OnTransferUpdate(api, t)
	}
}

func (g *globalTransferListener) OnTransferFinish(api megaapi.API, t *megaapi.Transfer, err error) {
	if t.Type == megaapi.TransferDownload {
		g.e.downloads.OnTransferFinish(api, t, err)
	}
	if t.IsChild() {
		return
	}
	g.e.addCompleted(t)
	if t.State != megaapi.TransferStateCompleted || t.IsSyncTransfer {
		return
	}
	kind, where := "DOWNLOAD", t.Path
	if t.Type == megaapi.TransferUpload {
		kind, where = "UPLOAD", g.e.transferDest(t)
	}
	g.e.notify().Broadcast(comms.EndTransferMessage(kind, where))
}

func (g *globalTransferListener) OnTransferTemporaryError(api megaapi.API, t *megaapi.Transfer, err error) {
	g.e.loggers.API.WithField("tag", t.Tag).Debugf("Transfer temporary error: %v", err)
}

func (e *Executer) addCompleted(t *megaapi.Transfer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, t.Copy())
	if len(e.completed) > maxCompletedKept {
		e.completed = append([]*megaapi.Transfer(nil), e.completed[len(e.completed)-maxCompletedKept:]...)
	}
}

func (e *Executer) completedTransfers() []*megaapi.Transfer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*megaapi.Transfer(nil), e.completed...)
}

func (e *Executer) clearCompleted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = nil
}

// transferSource is what a transfer reads from: the remote path of a
// download and the local path of an upload.
func (e *Executer) transferSource(t *megaapi.Transfer) string {
	if t.Type == megaapi.TransferUpload {
		return t.ParentPath + t.FileName
	}
	if t.PublicLink != "" {
		return t.PublicLink
	}
	if n := e.api.NodeByHandle(t.NodeHandle); n != nil {
		return e.api.NodePath(n)
	}
	return "---------"
}

// transferDest is the remote path an upload lands in.
func (e *Executer) transferDest(t *megaapi.Transfer) string {
	if t.Type == megaapi.TransferDownload {
		return t.ParentPath + t.FileName
	}
	parent := e.api.NodeByHandle(t.ParentHandle)
	if parent == nil {
		return ""
	}
	p := e.api.NodePath(parent)
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + t.FileName
}

// requestListener follows the transfers started by one petition. Progress
// goes to the client that asked, and done is closed once every top level
// transfer finished.
type requestListener struct {
	e        *Executer
	clientID int
	source   string
	quiet    bool

	mu           sync.Mutex
	pending      int
	lastProgress time.Time
	finished     []*megaapi.Transfer
	errs         []error
	done         chan struct{}
}

func newRequestListener(e *Executer, clientID int, source string, quiet bool) *requestListener {
	return &requestListener{
		e:        e,
		clientID: clientID,
		source:   source,
		quiet:    quiet,
		pending:  1,
		done:     make(chan struct{}),
	}
}

func (l *requestListener) OnTransferStart(api megaapi.API, t *megaapi.Transfer) {
	if t.IsChild() || t.Type != megaapi.TransferDownload {
		return
	}
	l.e.downloads.AddNewTopLevelTransfer(api, t, l.source)
}

func (l *requestListener) OnTransferUpdate(api megaapi.API, t *megaapi.Transfer) {
	if t.IsChild() || l.quiet {
		return
	}
	l.mu.Lock()
	due := time.Since(l.lastProgress) >= progressInterval
	if due {
		l.lastProgress = time.Now()
	}
	l.mu.Unlock()
	if due {
		l.e.notify().SendToClient(l.clientID, comms.ProgressMessage(t.TransferredBytes, t.TotalBytes, ""))
	}
}

func (l *requestListener) OnTransferFinish(api megaapi.API, t *megaapi.Transfer, err error) {
	if t.IsChild() {
		return
	}
	if !l.quiet {
		l.e.notify().SendToClient(l.clientID, comms.ProgressMessage(t.TotalBytes, t.TotalBytes, ""))
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = append(l.finished, t.Copy())
	l.errs = append(l.errs, err)
	l.pending--
	if l.pending == 0 {
		close(l.done)
	}
}

func (l *requestListener) OnTransferTemporaryError(api megaapi.API, t *megaapi.Transfer, err error) {}

// wait blocks until the transfer ended or the client went away.
func (l *requestListener) wait(c *command) (*megaapi.Transfer, bool, error) {
	select {
	case <-l.done:
	case <-c.ctx.Done():
		return nil, false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.finished[0], true, l.errs[0]
}

func (e *Executer) get(c *command) {
	args := c.args()
	if len(args) == 0 || len(args) > 2 {
		c.usage()
		return
	}
	src := args[0]
	dest := e.localCwd() + string(os.PathSeparator)
	if len(args) > 1 {
		dest = e.localPath(args[1])
	}

	var nodes []*megaapi.Node
	if cmdline.IsPublicLink(src) {
		n, err := e.api.PublicNode(c.ctx, src)
		if !c.checkError(err, "get node from link %s", src) {
			return
		}
		nodes = []*megaapi.Node{n}
	} else {
		nodes = e.nodesByPath(src, false)
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "Couldn't find %s", src)
			return
		}
	}

	info, statErr := os.Stat(dest)
	destIsDir := statErr == nil && info.IsDir()
	if len(nodes) > 1 && !destIsDir {
		c.fail(cmdline.ExitNotFound, "%s is not a valid download folder", dest)
		return
	}
	if !destIsDir && strings.HasSuffix(dest, string(os.PathSeparator)) {
		c.fail(cmdline.ExitNotFound, "%s is not a valid download folder", dest)
		return
	}
	if statErr != nil && !destIsDir {
		if _, err := os.Stat(filepath.Dir(dest)); err != nil {
			c.fail(cmdline.ExitNotFound, "%s is not a valid download folder", filepath.Dir(dest))
			return
		}
	}

	for _, n := range nodes {
		source := src
		if !cmdline.IsPublicLink(src) {
			source = e.api.NodePath(n)
		}
		if n.IsFolder() && !destIsDir && statErr == nil {
			c.fail(cmdline.ExitInvalidType, "Destination is not valid. Local file %s exists", dest)
			continue
		}
		l := newRequestListener(e, c.clientID, source, c.flags.Has("q"))
		if !c.checkError(e.api.StartDownload(n, dest, l), "start download of %s", source) {
			continue
		}
		if c.flags.Has("q") {
			fmt.Fprintf(c.out, "Started download: %s\n", source)
			continue
		}
		t, ok, err := l.wait(c)
		if !ok {
			return
		}
		if !c.checkError(err, "download %s", source) {
			continue
		}
		fmt.Fprintf(c.out, "Download finished: %s\n", t.Path)
		e.loggers.Cmd.WithField("tag", t.Tag).Debugf("Download complete: %s", t.Path)
	}
}

// localSources expands the local paths given to put, globbing wildcards.
func (e *Executer) localSources(c *command, args []string) []string {
	var out []string
	for _, a := range args {
		p := e.localPath(a)
		if cmdline.HasWildcards(filepath.Base(p)) {
			matches, _ := filepath.Glob(p)
			if len(matches) == 0 {
				c.fail(cmdline.ExitNotFound, "%s: No such file or directory", a)
			}
			out = append(out, matches...)
			continue
		}
		if _, err := os.Stat(p); err != nil {
			c.fail(cmdline.ExitNotFound, "%s: No such file or directory", a)
			continue
		}
		out = append(out, p)
	}
	return out
}

// createFolders makes every missing folder of p, as mkdir -p does.
func (e *Executer) createFolders(c *command, p string) *megaapi.Node {
	cur := e.baseFor(p)
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" || part == "." || cur == nil {
			continue
		}
		next := e.api.NodeByPath(part, cur)
		if next == nil {
			var err error
			if next, err = e.api.CreateFolder(c.ctx, part, cur); !c.checkError(err, "create folder %s", part) {
				return nil
			}
		}
		cur = next
	}
	return cur
}

func (e *Executer) put(c *command) {
	args := c.args()
	if len(args) == 0 {
		c.usage()
		return
	}
	destPath := ""
	if len(args) > 1 {
		destPath = args[len(args)-1]
		args = args[:len(args)-1]
	}
	sources := e.localSources(c, args)
	if len(sources) == 0 {
		return
	}

	parent := e.nodeByPath(destPath)
	name := ""
	switch {
	case parent == nil && c.flags.Has("c"):
		if parent = e.createFolders(c, destPath); parent == nil {
			return
		}
	case parent == nil:
		dir, base := filepath.Split(destPath)
		parent = e.cwdNode()
		if dir != "" {
			parent = e.nodeByPath(strings.TrimRight(dir, "/"))
			if dir == "/" {
				parent = e.api.RootNode()
			}
		}
		if parent == nil || len(sources) > 1 {
			c.fail(cmdline.ExitNotFound, "Couldn't find destination folder: %s. Use -c to create folder structure", destPath)
			return
		}
		name = base
	case parent.IsFile():
		if len(sources) > 1 {
			c.fail(cmdline.ExitInvalidType, "Destination is not valid: %s is a file", destPath)
			return
		}
		name = parent.Name
		parent = e.api.NodeByHandle(parent.ParentHandle)
	}

	quiet := c.flags.Has("q")
	for _, src := range sources {
		l := newRequestListener(e, c.clientID, src, quiet)
		if !c.checkError(e.api.StartUpload(src, parent, name, l), "start upload of %s", src) {
			continue
		}
		if quiet {
			fmt.Fprintf(c.out, "Started upload: %s\n", src)
			continue
		}
		t, ok, err := l.wait(c)
		if !ok {
			return
		}
		if !c.checkError(err, "upload %s", src) {
			continue
		}
		fmt.Fprintf(c.out, "Upload finished: %s to %s\n", src, e.transferDest(t))
		e.loggers.Cmd.WithField("tag", t.Tag).Debugf("Upload complete: %s to %s", src, e.transferDest(t))
	}
}

func directionsFrom(c *command) []megaapi.TransferType {
	switch {
	case c.flags.Has("only-downloads"):
		return []megaapi.TransferType{megaapi.TransferDownload}
	case c.flags.Has("only-uploads"):
		return []megaapi.TransferType{megaapi.TransferUpload}
	}
	return []megaapi.TransferType{megaapi.TransferDownload, megaapi.TransferUpload}
}

func directionTitle(d megaapi.TransferType) string {
	if d == megaapi.TransferUpload {
		return "Upload"
	}
	return "Download"
}

func (e *Executer) transfers(c *command) {
	actions := 0
	for _, f := range []string{"c", "p", "r"} {
		if c.flags.Has(f) {
			actions++
		}
	}
	if actions > 1 {
		c.fail(cmdline.ExitArgs, "Only one of -c, -p or -r can be used at a time")
		return
	}
	if actions == 1 {
		e.transferAction(c)
		return
	}
	if c.flags.Has("summary") {
		e.transferSummary(c)
		return
	}

	var list []*megaapi.Transfer
	if !c.flags.Has("only-completed") {
		for _, d := range directionsFrom(c) {
			for _, t := range e.api.Transfers(d) {
				if t.IsChild() || (t.IsSyncTransfer && !c.flags.Has("show-syncs")) {
					continue
				}
				list = append(list, t)
			}
		}
	}
	if c.flags.Has("show-completed") || c.flags.Has("only-completed") {
		for _, t := range e.completedTransfers() {
			if c.flags.Has("only-downloads") && t.Type != megaapi.TransferDownload ||
				c.flags.Has("only-uploads") && t.Type != megaapi.TransferUpload ||
				t.IsSyncTransfer && !c.flags.Has("show-syncs") {
				continue
			}
			list = append(list, t)
		}
	}

	for _, d := range directionsFrom(c) {
		if e.api.AreTransfersPaused(d) {
			fmt.Fprintf(c.out, "%ss are paused\n", directionTitle(d))
		}
	}
	if len(list) == 0 {
		return
	}

	limit := c.opts.GetInt("limit", defaultTransferLimit)
	opts := format.OptionsFrom(c.opts)
	cd := format.NewColumnDisplayer(opts)
	for i, t := range list {
		if limit > 0 && i >= limit {
			break
		}
		transfers.AddTransferColumns(cd, t, e.transferSource(t), e.transferDest(t), true)
	}
	cd.Print(c.out, true)
	if limit > 0 && len(list) > limit {
		fmt.Fprintf(c.out, " ...  Showing first %d transfers ...\n", limit)
	}
}

func (e *Executer) transferAction(c *command) {
	var verb, past string
	switch {
	case c.flags.Has("c"):
		verb, past = "cancel", "cancelled"
	case c.flags.Has("p"):
		verb, past = "pause", "paused"
	default:
		verb, past = "resume", "resumed"
	}

	if c.flags.Has("a") {
		for _, d := range directionsFrom(c) {
			var err error
			switch verb {
			case "cancel":
				for _, t := range e.api.Transfers(d) {
					if t.IsChild() || t.IsSyncTransfer {
						continue
					}
					if cerr := e.api.CancelTransfer(c.ctx, t.Tag); cerr != nil {
						err = cerr
					}
				}
			default:
				err = e.api.PauseTransfers(c.ctx, verb == "pause", d)
			}
			if c.checkError(err, "%s %s transfers", verb, strings.ToLower(directionTitle(d))) {
				fmt.Fprintf(c.out, "%s transfers %s successfully.\n", directionTitle(d), past)
			}
		}
		return
	}

	args := c.args()
	if len(args) == 0 {
		c.usage()
		return
	}
	for _, arg := range args {
		tag, err := strconv.Atoi(arg)
		if err != nil {
			c.fail(cmdline.ExitArgs, "Invalid transfer tag: %s", arg)
			continue
		}
		t := e.api.TransferByTag(tag)
		if t == nil {
			c.fail(cmdline.ExitNotFound, "Could not find transfer with tag: %d", tag)
			continue
		}
		if t.IsSyncTransfer {
			c.fail(cmdline.ExitNotPermitted, "Unable to %s transfer with tag %d. Sync transfers cannot be %s", verb, tag, past)
			continue
		}
		switch verb {
		case "cancel":
			err = e.api.CancelTransfer(c.ctx, tag)
		default:
			err = e.api.PauseTransfer(c.ctx, tag, verb == "pause")
		}
		if c.checkError(err, "%s transfer %d", verb, tag) {
			fmt.Fprintf(c.out, "Transfer %d %s successfully.\n", tag, past)
		}
	}
}

func (e *Executer) transferSummary(c *command) {
	cd := format.NewColumnDisplayer(format.OptionsFrom(c.opts))
	for _, d := range directionsFrom(c) {
		var count int
		var done, total int64
		for _, t := range e.api.Transfers(d) {
			if t.IsChild() {
				continue
			}
			count++
			done += t.TransferredBytes
			total += t.TotalBytes
		}
		percent := 0.0
		if total > 0 {
			percent = float64(done) / float64(total)
		}
		cd.AddValue("TYPE", directionTitle(d)+"s", false)
		cd.AddValue("NUM_TRANSFERS", strconv.Itoa(count), false)
		cd.AddValue("PROGRESS", format.SizeProgressToText(done, total, true, true), false)
		cd.AddValue("PERCENT", format.PercentageToText(percent), false)
		cd.AddValue("PAUSED", strconv.FormatBool(e.api.AreTransfersPaused(d)), false)
	}
	cd.Print(c.out, true)
}

func (e *Executer) downloadsCmd(c *command) {
	if c.flags.Has("purge") {
		if err := e.downloads.Purge(); err != nil {
			c.fail(cmdline.ExitUnexpected, "Failed to purge downloads: %v", err)
			return
		}
		fmt.Fprintln(c.out, "Finished downloads purged successfully.")
		return
	}
	args := c.args()
	if len(args) == 0 {
		e.downloads.PrintAll(c.out, c.opts, c.flags)
		return
	}
	for _, id := range args {
		found, err := e.downloads.PrintOne(c.ctx, c.out, id, c.opts, c.flags)
		if err != nil {
			c.fail(cmdline.ExitArgs, "%v", err)
			continue
		}
		if !found {
			c.code = cmdline.ExitNotFound
		}
	}
}

// parseSpeed reads a speed limit. Plain numbers are bytes per second.
func parseSpeed(s string) (int64, bool) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, n >= 0
	}
	n := format.TextToSize(s)
	return n, n >= 0
}

func speedText(v int64, human bool) string {
	if v <= 0 {
		return "unlimited"
	}
	if human {
		return format.SizeToText(v, false, true) + "/s"
	}
	return strconv.FormatInt(v, 10) + " B/s"
}

// applySpeedLimits restores the limits saved by speedlimit.
func (e *Executer) applySpeedLimits() {
	if v := e.cfg.GetInt64(maxSpeedUploadProperty, -1); v >= 0 {
		e.api.SetMaxUploadSpeed(v)
	}
	if v := e.cfg.GetInt64(maxSpeedDownloadProperty, -1); v >= 0 {
		e.api.SetMaxDownloadSpeed(v)
	}
}

func (e *Executer) speedlimit(c *command) {
	args := c.args()
	if len(args) > 1 {
		c.usage()
		return
	}
	human := c.flags.Has("h")

	for _, conn := range []struct {
		name string
		dir  megaapi.TransferType
	}{
		{"upload-connections", megaapi.TransferUpload},
		{"download-connections", megaapi.TransferDownload},
	} {
		value, set := c.opts[conn.name]
		if !set && !c.flags.Has(conn.name) {
			continue
		}
		if !set && len(args) == 1 {
			value, set = args[0], true
		}
		if set {
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				c.fail(cmdline.ExitArgs, "Invalid number of connections: %s", value)
				return
			}
			if !c.checkError(e.api.SetMaxConnections(conn.dir, n), "set max connections") {
				return
			}
		}
		fmt.Fprintf(c.out, "%s max connections = %d\n", directionTitle(conn.dir), e.api.MaxConnections(conn.dir))
		return
	}

	upload := c.flags.Has("u")
	download := c.flags.Has("d")
	if !upload && !download {
		upload, download = true, true
	}
	if len(args) == 1 {
		v, ok := parseSpeed(args[0])
		if !ok {
			c.fail(cmdline.ExitArgs, "Invalid speed limit: %s", args[0])
			return
		}
		if upload {
			e.api.SetMaxUploadSpeed(v)
			e.cfg.SaveProperty(maxSpeedUploadProperty, strconv.FormatInt(v, 10))
		}
		if download {
			e.api.SetMaxDownloadSpeed(v)
			e.cfg.SaveProperty(maxSpeedDownloadProperty, strconv.FormatInt(v, 10))
		}
	}
	if upload {
		fmt.Fprintf(c.out, "Upload speed limit = %s\n", speedText(e.api.MaxUploadSpeed(), human))
	}
	if download {
		fmt.Fprintf(c.out, "Download speed limit = %s\n", speedText(e.api.MaxDownloadSpeed(), human))
	}
}
