package executer

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/config"
	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/internal/syncignore"
	"github.com/cshum/megacmd/internal/syncissues"
	"github.com/cshum/megacmd/megaapi"
)

const (
	defaultSyncName = "DEFAULT"
	syncIssuesHint  = "You have sync issues. Use \"sync-issues\" to display them."
)

// findSync looks a sync up by its ID or its local path.
func (e *Executer) findSync(id string) *megaapi.Sync {
	syncs := e.api.Syncs()
	for _, s := range syncs {
		if s.BackupID.Base64() == id {
			return s
		}
	}
	local := filepath.Clean(e.localPath(id))
	for _, s := range syncs {
		if filepath.Clean(s.LocalPath) == local {
			return s
		}
	}
	return nil
}

func (e *Executer) syncStatus(s *megaapi.Sync) string {
	switch {
	case s.RunState != megaapi.SyncRunning:
		return "NONE"
	case e.issues != nil && e.issues.Issues().CountForSync(s.BackupID) > 0:
		return "Stalled"
	case e.api.IsScanning():
		return "Scanning"
	case e.api.IsWaiting():
		return "Pending"
	}
	return "Synced"
}

func (e *Executer) addSyncColumns(cd *format.ColumnDisplayer, s *megaapi.Sync, handles bool) {
	cd.AddValue("ID", s.BackupID.Base64(), false)
	cd.AddValue("LOCALPATH", s.LocalPath, false)
	remote := s.RemotePath
	if n := e.api.NodeByHandle(s.RemoteHandle); n != nil {
		remote = e.api.NodePath(n)
	}
	if handles {
		remote += " <" + s.RemoteHandle.String() + ">"
	}
	cd.AddValue("REMOTEPATH", remote, false)
	cd.AddValue("RUN_STATE", s.RunState.String(), false)
	cd.AddValue("STATUS", e.syncStatus(s), false)

	errText := "NO"
	if s.Error != 0 {
		errText = s.Error.Error()
	}
	cd.AddValue("ERROR", errText, false)

	var size int64
	var files, dirs int
	if n := e.api.NodeByHandle(s.RemoteHandle); n != nil {
		e.walk(n, 0, func(x *megaapi.Node, depth int) bool {
			if x.IsFile() {
				files++
				size += x.Size
			} else if depth > 0 {
				dirs++
			}
			return true
		})
	}
	cd.AddValue("SIZE", format.SizeToText(size, false, true), false)
	cd.AddValue("FILES", strconv.Itoa(files), false)
	cd.AddValue("DIRS", strconv.Itoa(dirs), false)
}

func (e *Executer) sync(c *command) {
	args := c.args()
	var state megaapi.SyncRunState = -1
	action := ""
	switch {
	case c.flags.Has("d") || c.flags.Has("delete") || c.flags.Has("remove"):
		action = "remove"
	case c.flags.Has("p") || c.flags.Has("pause"):
		action, state = "pause", megaapi.SyncPaused
	case c.flags.Has("s") || c.flags.Has("disable"):
		action, state = "disable", megaapi.SyncDisabled
	case c.flags.Has("e") || c.flags.Has("enable") || c.flags.Has("r"):
		action, state = "enable", megaapi.SyncRunning
	}

	if action != "" {
		if len(args) == 0 {
			c.usage()
			return
		}
		for _, id := range args {
			s := e.findSync(id)
			if s == nil {
				c.fail(cmdline.ExitNotFound, "Sync not found: %s", id)
				continue
			}
			if action == "remove" {
				if c.checkError(e.api.RemoveSync(c.ctx, s.BackupID), "remove sync %s", id) {
					fmt.Fprintf(c.out, "Sync removed: %s\n", s.LocalPath)
				}
				continue
			}
			if c.checkError(e.api.SetSyncRunState(c.ctx, s.BackupID, state), "%s sync %s", action, id) {
				c.log.WithField("sync", s.BackupID.Base64()).Debugf("Sync %s", action)
			}
		}
		return
	}

	switch len(args) {
	case 0:
		e.listSyncs(c, e.api.Syncs())
	case 1:
		s := e.findSync(args[0])
		if s == nil {
			c.fail(cmdline.ExitNotFound, "Sync not found: %s", args[0])
			return
		}
		e.listSyncs(c, []*megaapi.Sync{s})
	case 2:
		e.addSync(c, args[0], args[1])
	default:
		c.usage()
	}
}

func (e *Executer) addSync(c *command, local, remote string) {
	n := e.nodeByPath(remote)
	if n == nil {
		c.fail(cmdline.ExitNotFound, "Couldn't find remote folder: %s", remote)
		return
	}
	if !n.IsFolder() {
		c.fail(cmdline.ExitInvalidType, "Remote sync root is not a folder: %s", remote)
		return
	}
	localPath := filepath.Clean(e.localPath(local))
	s, err := e.api.SyncFolder(c.ctx, localPath, n)
	if !c.checkError(err, "sync folder") {
		return
	}
	fmt.Fprintf(c.out, "Added sync: %s to %s\n", s.LocalPath, e.api.NodePath(n))
}

func (e *Executer) listSyncs(c *command, syncs []*megaapi.Sync) {
	if len(syncs) == 0 {
		return
	}
	cd := format.NewColumnDisplayer(format.OptionsFrom(c.opts))
	for _, s := range syncs {
		e.addSyncColumns(cd, s, c.flags.Has("show-handles"))
	}
	cd.Print(c.out, true)
	if e.issues != nil && len(e.issues.Issues()) > 0 {
		fmt.Fprintln(c.out, syncIssuesHint)
	}
}

// ignoreFile opens the .megaignore of a sync, or the default one used for
// new syncs.
func (e *Executer) ignoreFile(c *command, target string) (*syncignore.File, bool) {
	if target == "" || target == defaultSyncName {
		if err := syncignore.CreateDefaultFile(e.cfg.ConfigDir()); err != nil {
			c.fail(cmdline.ExitUnexpected, "Could not create the default ignore file: %v", err)
			return nil, false
		}
		f, err := syncignore.OpenOrCreate(syncignore.DefaultPath(e.cfg.ConfigDir()))
		if err != nil {
			c.fail(cmdline.ExitUnexpected, "%v", err)
			return nil, false
		}
		return f, true
	}
	s := e.findSync(target)
	if s == nil {
		c.fail(cmdline.ExitNotFound, "Sync not found: %s", target)
		return nil, false
	}
	f, err := syncignore.OpenOrCreate(filepath.Join(s.LocalPath, syncignore.FileName))
	if err != nil {
		c.fail(cmdline.ExitUnexpected, "%v", err)
		return nil, false
	}
	return f, true
}

func (e *Executer) syncIgnore(c *command) {
	args := c.args()
	add := c.flags.Has("add") || c.flags.Has("add-exclusion")
	remove := c.flags.Has("remove") || c.flags.Has("remove-exclusion")
	if add && remove {
		c.usage()
		return
	}

	var target string
	var filters []string
	if len(args) > 0 {
		target, filters = args[len(args)-1], args[:len(args)-1]
	}
	if (add || remove) && len(filters) == 0 {
		c.usage()
		return
	}
	if !add && !remove && len(filters) > 0 {
		c.usage()
		return
	}

	if c.flags.Has("add-exclusion") || c.flags.Has("remove-exclusion") {
		for i, filter := range filters {
			filters[i] = "-" + filter
		}
	}

	f, ok := e.ignoreFile(c, target)
	if !ok {
		return
	}
	switch {
	case add:
		var toAdd []string
		for _, filter := range filters {
			if !syncignore.IsValidFilter(filter) {
				c.fail(cmdline.ExitArgs, "Invalid filter: %s", filter)
				return
			}
			if f.Contains(filter) {
				c.log.Warnf("Filter already present: %s", filter)
				continue
			}
			toAdd = append(toAdd, filter)
		}
		if err := f.AddFilters(toAdd); err != nil {
			c.fail(cmdline.ExitUnexpected, "Could not write %s: %v", f.Path(), err)
			return
		}
		for _, filter := range toAdd {
			fmt.Fprintf(c.out, "Added filter %s\n", filter)
		}
	case remove:
		var toRemove []string
		for _, filter := range filters {
			if !f.Contains(filter) {
				c.fail(cmdline.ExitNotFound, "Filter not found: %s", filter)
				continue
			}
			toRemove = append(toRemove, filter)
		}
		if len(toRemove) == 0 {
			return
		}
		if err := f.RemoveFilters(toRemove); err != nil {
			c.fail(cmdline.ExitUnexpected, "Could not write %s: %v", f.Path(), err)
			return
		}
		for _, filter := range toRemove {
			fmt.Fprintf(c.out, "Removed filter %s\n", filter)
		}
	default:
		fmt.Fprint(c.out, f.FilterContents())
		for _, filter := range f.InvalidFilters() {
			c.log.Warnf("Invalid filter found: %s", filter)
		}
	}
}

func (e *Executer) syncIssues(c *command) {
	if e.issues == nil {
		c.fail(cmdline.ExitUnexpected, "Sync issues are not available")
		return
	}
	if c.flags.Has("enable-warning") || c.flags.Has("disable-warning") {
		enabled := c.flags.Has("enable-warning")
		e.issues.SetWarnings(enabled)
		if err := e.cfg.SaveBool(syncissues.WarningProperty, enabled); err != nil {
			c.log.Errorf("Could not save the warning setting: %v", err)
		}
		if enabled {
			fmt.Fprintln(c.out, "Sync issue warnings enabled")
		} else {
			fmt.Fprintln(c.out, "Sync issue warnings disabled")
		}
		return
	}

	if err := e.issues.Refresh(c.ctx, e.api); err != nil {
		c.checkError(err, "get sync issues")
		return
	}
	list := e.issues.Issues()
	opts := syncissues.PrintOptions{
		Columns:      format.OptionsFrom(c.opts),
		Limit:        c.opts.GetInt("limit", syncissues.DefaultLimit),
		CollapsePath: !c.flags.Has("disable-path-collapse"),
	}
	if c.flags.Has("all") {
		opts.Limit = 0
	}

	args := c.args()
	if c.flags.Has("detail") {
		if len(args) != 1 {
			c.usage()
			return
		}
		issue, ok := list.Get(args[0])
		if !ok {
			c.fail(cmdline.ExitNotFound, "Sync issue %s not found", args[0])
			return
		}
		syncissues.PrintDetail(c.out, e.api, issue, opts)
		return
	}
	if len(args) > 0 {
		c.usage()
		return
	}
	syncissues.PrintList(c.out, e.api, list, opts)
}

// backupPeriod reads --period: a duration such as "1d" or "2h30M", or a
// cron expression.
func backupPeriod(expr string) (period int64, cron string, ok bool) {
	if strings.Contains(strings.TrimSpace(expr), " ") {
		return 0, expr, true
	}
	now := time.Now()
	t, ok := format.TimeAfter(now, expr)
	if !ok || !t.After(now) {
		return 0, "", false
	}
	return int64(t.Sub(now).Round(time.Second) / time.Second), "", true
}

func (e *Executer) findBackup(id string) *megaapi.Backup {
	backups := e.api.Backups()
	if tag, err := strconv.Atoi(id); err == nil {
		for _, b := range backups {
			if b.Tag == tag {
				return b
			}
		}
	}
	local := filepath.Clean(e.localPath(id))
	for _, b := range backups {
		if filepath.Clean(b.LocalPath) == local {
			return b
		}
	}
	return nil
}

func backupStateText(state int) string {
	switch state {
	case megaapi.BackupStateActive:
		return "ACTIVE"
	case megaapi.BackupStateOngoing:
		return "ONGOING"
	case megaapi.BackupStateSkipping:
		return "SKIPPING"
	case megaapi.BackupStateRemovingExceeding:
		return "EXCEEDREMOVAL"
	case megaapi.BackupStateFailed:
		return "FAILED"
	}
	return "NOT_INITIALIZED"
}

func (e *Executer) backup(c *command) {
	args := c.args()
	switch {
	case c.flags.Has("d") || c.flags.Has("a"):
		if len(args) != 1 {
			c.usage()
			return
		}
		b := e.findBackup(args[0])
		if b == nil {
			c.fail(cmdline.ExitNotFound, "Backup not found: %s", args[0])
			return
		}
		if c.flags.Has("a") {
			if c.checkError(e.api.AbortCurrentBackup(c.ctx, b.Tag), "abort backup %d", b.Tag) {
				fmt.Fprintf(c.out, "Backup %d aborted: %s\n", b.Tag, b.LocalPath)
			}
			return
		}
		if !c.checkError(e.api.RemoveBackup(c.ctx, b.Tag), "remove backup %d", b.Tag) {
			return
		}
		if err := e.cfg.RemoveBackup(b.LocalPath); err != nil {
			c.log.Errorf("Could not remove the backup definition: %v", err)
		}
		fmt.Fprintf(c.out, "Backup removed: %s\n", b.LocalPath)
	case len(args) == 2:
		e.addBackup(c, args[0], args[1])
	case len(args) == 1 && (c.opts.Has("period") || c.opts.Has("num-backups")):
		e.reconfigureBackup(c, args[0])
	case len(args) <= 1:
		backups := e.api.Backups()
		if len(args) == 1 {
			b := e.findBackup(args[0])
			if b == nil {
				c.fail(cmdline.ExitNotFound, "Backup not found: %s", args[0])
				return
			}
			backups = []*megaapi.Backup{b}
		}
		e.listBackups(c, backups)
	default:
		c.usage()
	}
}

func (e *Executer) addBackup(c *command, local, remote string) {
	if !c.opts.Has("period") || !c.opts.Has("num-backups") {
		c.fail(cmdline.ExitArgs, "Both --period and --num-backups are required to create a backup")
		return
	}
	period, cron, ok := backupPeriod(c.opts.Get("period", ""))
	if !ok {
		c.fail(cmdline.ExitArgs, "Invalid period: %s", c.opts.Get("period", ""))
		return
	}
	num := c.opts.GetInt("num-backups", 0)
	if num <= 0 {
		c.fail(cmdline.ExitArgs, "Invalid number of backups: %s", c.opts.Get("num-backups", ""))
		return
	}

	n := e.nodeByPath(remote)
	if n == nil {
		c.fail(cmdline.ExitNotFound, "Couldn't find remote folder: %s", remote)
		return
	}
	if !n.IsFolder() {
		c.fail(cmdline.ExitInvalidType, "Backup destination is not a folder: %s", remote)
		return
	}
	localPath := filepath.Clean(e.localPath(local))
	b, err := e.api.SetBackup(c.ctx, localPath, n, period, cron, num)
	if !c.checkError(err, "establish backup") {
		return
	}
	def := config.BackupDefinition{
		LocalPath:  b.LocalPath,
		Handle:     uint64(n.Handle),
		NumBackups: num,
		Period:     period,
		CronPeriod: cron,
	}
	if err := e.cfg.SaveBackup(def); err != nil {
		c.log.Errorf("Could not save the backup definition: %v", err)
	}
	fmt.Fprintf(c.out, "Backup established: %s into %s\n", b.LocalPath, e.api.NodePath(n))
}

// reconfigureBackup changes the schedule of an existing backup, keeping what
// is not given.
func (e *Executer) reconfigureBackup(c *command, target string) {
	b := e.findBackup(target)
	if b == nil {
		c.fail(cmdline.ExitNotFound, "Backup not found: %s", target)
		return
	}
	period, cron, num := b.Period, b.CronPeriod, b.NumBackups
	if c.opts.Has("period") {
		var ok bool
		if period, cron, ok = backupPeriod(c.opts.Get("period", "")); !ok {
			c.fail(cmdline.ExitArgs, "Invalid period: %s", c.opts.Get("period", ""))
			return
		}
	}
	if c.opts.Has("num-backups") {
		if num = c.opts.GetInt("num-backups", 0); num <= 0 {
			c.fail(cmdline.ExitArgs, "Invalid number of backups: %s", c.opts.Get("num-backups", ""))
			return
		}
	}
	n := e.api.NodeByHandle(b.RemoteHandle)
	if n == nil {
		c.fail(cmdline.ExitNotFound, "Couldn't find the destination of backup %d", b.Tag)
		return
	}
	if !c.checkError(e.api.RemoveBackup(c.ctx, b.Tag), "reconfigure backup %d", b.Tag) {
		return
	}
	nb, err := e.api.SetBackup(c.ctx, b.LocalPath, n, period, cron, num)
	if !c.checkError(err, "reconfigure backup %d", b.Tag) {
		return
	}
	def := config.BackupDefinition{
		LocalPath:  nb.LocalPath,
		Handle:     uint64(n.Handle),
		NumBackups: num,
		Period:     period,
		CronPeriod: cron,
	}
	if err := e.cfg.SaveBackup(def); err != nil {
		c.log.Errorf("Could not save the backup definition: %v", err)
	}
	fmt.Fprintf(c.out, "Backup configured: %s (TAG %d)\n", nb.LocalPath, nb.Tag)
}

func (e *Executer) listBackups(c *command, backups []*megaapi.Backup) {
	if len(backups) == 0 {
		fmt.Fprintln(c.out, "No backup configured.")
		return
	}
	layout := format.GetTimeFormatFromString(c.opts.Get("time-format", "SHORT"))
	opts := format.OptionsFrom(c.opts)
	cd := format.NewColumnDisplayer(opts)
	for _, b := range backups {
		cd.AddValue("TAG", strconv.Itoa(b.Tag), false)
		cd.AddValue("LOCALPATH", b.LocalPath, false)
		remote := b.RemotePath
		if n := e.api.NodeByHandle(b.RemoteHandle); n != nil {
			remote = e.api.NodePath(n)
		}
		cd.AddValue("REMOTEPARENTPATH", remote, false)
		cd.AddValue("STATUS", backupStateText(b.State), false)
	}
	cd.Print(c.out, true)

	if !c.flags.Has("l") && !c.flags.Has("h") {
		return
	}
	for _, b := range backups {
		if c.flags.Has("l") {
			fmt.Fprintf(c.out, "  Max Backups:   %d\n", b.NumBackups)
			if b.CronPeriod != "" {
				fmt.Fprintf(c.out, "  Period:         \"%s\"\n", b.CronPeriod)
			} else {
				fmt.Fprintf(c.out, "  Period:         \"%s\"\n", format.SecondsToText(b.Period, true))
			}
			next := "-"
			if b.NextStart > 0 {
				next = format.TimeToString(time.Unix(b.NextStart, 0), layout)
			}
			fmt.Fprintf(c.out, "  Next backup scheduled for: %s\n", next)
		}
		if c.flags.Has("h") {
			e.printBackupHistory(c, b, layout)
		}
	}
}

// printBackupHistory lists the copies kept in the destination folder.
func (e *Executer) printBackupHistory(c *command, b *megaapi.Backup, layout string) {
	n := e.api.NodeByHandle(b.RemoteHandle)
	if n == nil {
		return
	}
	fmt.Fprintln(c.out, "   -- SAVED BACKUPS --")
	cd := format.NewColumnDisplayer(format.OptionsFrom(c.opts))
	cd.SetPrefix("   ")
	prefix := filepath.Base(b.LocalPath) + "_bk_"
	for _, child := range e.api.Children(n) {
		if !child.IsFolder() || !strings.HasPrefix(child.Name, prefix) {
			continue
		}
		cd.AddValue("NAME", child.Name, false)
		cd.AddValue("DATE", format.TimeToString(child.CreationTime, layout), false)
		cd.AddValue("STATUS", "COMPLETE", false)
		cd.AddValue("FILES", strconv.Itoa(e.api.NumChildren(child)), false)
	}
	cd.Print(c.out, true)
}

// exclude is the older front end over the default .megaignore: names are
// turned into exclusion filters.
func (e *Executer) exclude(c *command) {
	args := c.args()
	add, del := c.flags.Has("a"), c.flags.Has("d")
	if add && del || (add || del) && len(args) == 0 {
		c.usage()
		return
	}
	f, ok := e.ignoreFile(c, defaultSyncName)
	if !ok {
		return
	}

	if add || del {
		filters := make([]string, 0, len(args))
		for _, name := range args {
			filters = append(filters, syncignore.FilterFromLegacyPattern(name))
		}
		var err error
		if add {
			var toAdd []string
			for _, filter := range filters {
				if !f.Contains(filter) {
					toAdd = append(toAdd, filter)
				}
			}
			err = f.AddFilters(toAdd)
		} else {
			err = f.RemoveFilters(filters)
		}
		if err != nil {
			c.fail(cmdline.ExitUnexpected, "Could not write %s: %v", f.Path(), err)
			return
		}
		if add {
			fmt.Fprintf(c.out, "Added %d exclusion(s) to %s\n", len(args), f.Path())
		} else {
			fmt.Fprintf(c.out, "Removed %d exclusion(s) from %s\n", len(args), f.Path())
		}
		c.log.Warn("Changes only affect new syncs. Use \"sync-ignore\" to edit the filters of existing syncs.")
		return
	}

	fmt.Fprintln(c.out, "List of excluded names:")
	for _, filter := range f.Filters() {
		if name, ok := strings.CutPrefix(filter, "-:"); ok {
			fmt.Fprintln(c.out, name)
		} else if name, ok := strings.CutPrefix(filter, "-p:"); ok {
			fmt.Fprintln(c.out, name)
		}
	}
}
