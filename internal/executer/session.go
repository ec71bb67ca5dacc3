package executer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/comms"
	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/internal/syncissues"
	"github.com/cshum/megacmd/megaapi"
)

const fetchingNodesTitle = "Fetching nodes"

// ResumeSession logs in with the session saved by a previous run, if any.
func (e *Executer) ResumeSession(ctx context.Context) error {
	session := e.cfg.Session()
	if session == "" || e.api.IsLoggedIn() {
		return nil
	}
	log := e.loggers.Cmd.WithField("component", "executer")
	if err := e.api.FastLogin(ctx, session); err != nil {
		log.Errorf("Could not resume session: %s", megaapi.Code(err).Error())
		if megaapi.Code(err) == megaapi.ESID {
			e.cfg.RemoveSessionFile()
		}
		return err
	}
	return e.onLoggedIn(ctx, log, -1)
}

func (e *Executer) fetchNodes(ctx context.Context, clientID int) error {
	n := e.notify()
	n.SendToClient(clientID, comms.ProgressMessage(0, 1, fetchingNodesTitle))
	err := e.api.FetchNodes(ctx)
	n.SendToClient(clientID, comms.ProgressMessage(1, 1, fetchingNodesTitle))
	return err
}

// onLoggedIn finishes a login: nodes are fetched, the session is saved and
// the configured backups, syncs and settings are restored.
func (e *Executer) onLoggedIn(ctx context.Context, log logrus.FieldLogger, clientID int) error {
	if err := e.fetchNodes(ctx, clientID); err != nil {
		e.api.LocalLogout(ctx)
		return err
	}
	if err := e.cfg.SaveSession(e.api.DumpSession()); err != nil {
		log.Errorf("Could not save session: %v", err)
	}
	if root := e.api.RootNode(); root != nil {
		e.setCwd(root.Handle)
	}
	e.cfg.ApplyConfigurators(e.api)
	e.applySpeedLimits()
	e.restoreBackups(ctx, log)
	e.restoreLegacySyncs(ctx, log)

	if msg, err := e.cfg.TransitionLegacyExclusionRules(); err != nil {
		log.Errorf("Could not port the legacy exclusion rules: %v", err)
	} else if msg != "" {
		e.notify().Broadcast(comms.InfoMessage(msg))
	}
	if err := e.downloads.Start(filepath.Join(e.cfg.ConfigDir(), transfersDBName)); err != nil {
		log.Errorf("Could not open the transfers database: %v", err)
	}
	if e.issues != nil {
		e.issues.SetWarnings(e.cfg.GetBool(syncissues.WarningProperty, true))
	}
	e.updatePrompt()
	return nil
}

func (e *Executer) restoreBackups(ctx context.Context, log logrus.FieldLogger) {
	existing := make(map[string]bool)
	for _, b := range e.api.Backups() {
		existing[b.LocalPath] = true
	}
	for _, def := range e.cfg.Backups() {
		if existing[def.LocalPath] {
			continue
		}
		n := e.api.NodeByHandle(megaapi.Handle(def.Handle))
		if n == nil {
			log.WithField("local", def.LocalPath).Error("Backup destination no longer exists")
			continue
		}
		if _, err := e.api.SetBackup(ctx, def.LocalPath, n, def.Period, def.CronPeriod, def.NumBackups); err != nil {
			log.WithField("local", def.LocalPath).Errorf("Could not restore backup: %s", megaapi.Code(err).Error())
			continue
		}
		log.WithField("local", def.LocalPath).Debug("Backup restored")
	}
}

// restoreLegacySyncs hands the syncs saved by older versions to the SDK,
// which keeps them from then on.
func (e *Executer) restoreLegacySyncs(ctx context.Context, log logrus.FieldLogger) {
	legacy := e.cfg.LegacySyncs()
	if len(legacy) == 0 {
		return
	}
	for _, def := range legacy {
		n := e.api.NodeByHandle(megaapi.Handle(def.Handle))
		if n == nil {
			log.WithField("local", def.LocalPath).Error("Legacy sync remote folder not found")
			continue
		}
		s, err := e.api.SyncFolder(ctx, def.LocalPath, n)
		if err != nil {
			log.WithField("local", def.LocalPath).Errorf("Could not resume legacy sync: %s", megaapi.Code(err).Error())
			continue
		}
		if !def.Active {
			e.api.SetSyncRunState(ctx, s.BackupID, megaapi.SyncDisabled)
		}
	}
	if err := e.cfg.ClearLegacySyncs(); err != nil {
		log.Errorf("Could not remove legacy syncs: %v", err)
	}
}

func (e *Executer) login(c *command) {
	if e.api.IsLoggedIn() {
		c.fail(cmdline.ExitInvalidState, "Already logged in. Please log out first.")
		return
	}
	args := c.args()
	if len(args) == 0 || len(args) > 2 {
		c.usage()
		return
	}

	target := args[0]
	var err error
	switch {
	case strings.Contains(target, "@"):
		password := c.opts.Get("password", "")
		if len(args) > 1 {
			password = args[1]
		}
		if password == "" {
			password, err = c.req.RequestString("Password:")
			if err != nil || password == "" {
				c.fail(cmdline.ExitArgs, "Empty password")
				return
			}
		}
		err = e.api.Login(c.ctx, target, password)
		if megaapi.Code(err) == megaapi.EARGS {
			c.fail(cmdline.ExitInvalidEmail, "Invalid email: %s", target)
			return
		}
		if megaapi.Code(err) == megaapi.ENOENT {
			c.fail(int(megaapi.ENOENT), "Login failed: invalid email or password")
			return
		}
	case cmdline.IsPublicLink(target):
		if !cmdline.IsFolderLink(target) {
			c.fail(cmdline.ExitArgs, "Invalid folder link: %s", target)
			return
		}
		c.fail(cmdline.ExitNotPermitted, "Logging into folder links is not supported by this drive")
		return
	default:
		err = e.api.FastLogin(c.ctx, target)
	}
	if !c.checkError(err, "login") {
		return
	}

	if err := e.onLoggedIn(c.ctx, c.log, c.clientID); err != nil {
		c.checkError(err, "fetch nodes")
		return
	}
	c.log.WithField("email", e.api.MyEmail()).Info("Login complete")
}

func (e *Executer) logout(c *command) {
	fmt.Fprintln(c.out, "Logging out...")
	keep := c.flags.Has("keep-session")

	if err := e.downloads.Shutdown(!keep); err != nil {
		c.log.Errorf("Could not close the transfers database: %v", err)
	}
	if keep {
		if !c.checkError(e.api.LocalLogout(c.ctx), "logout") {
			return
		}
		fmt.Fprintln(c.out, "Session closed but not deleted. Warning: it will be restored the next time you execute the application. Execute \"logout\" to delete the session permanently.")
	} else {
		if e.api.IsLoggedIn() && !c.checkError(e.api.Logout(c.ctx, false), "logout") {
			return
		}
		for _, b := range e.cfg.Backups() {
			e.cfg.RemoveBackup(b.LocalPath)
		}
		e.cfg.RemoveSessionFile()
		e.cfg.ClearConfigurationFile()
		e.cfg.UnloadConfiguration()
	}
	e.setCwd(megaapi.UndefHandle)
	e.clearCompleted()
	e.updatePrompt()
}

func (e *Executer) session(c *command) {
	s := e.api.DumpSession()
	if s == "" {
		c.fail(cmdline.ExitNotLoggedIn, "Not logged in.")
		return
	}
	fmt.Fprintf(c.out, "Your (secret) session is: %s\n", s)
}

func (e *Executer) whoami(c *command) {
	email := e.api.MyEmail()
	if email == "" {
		c.fail(cmdline.ExitNotLoggedIn, "Not logged in.")
		return
	}
	fmt.Fprintf(c.out, "Account e-mail: %s\n", email)
	if !c.flags.Has("l") {
		return
	}
	details, err := e.api.AccountDetails(c.ctx)
	if !c.checkError(err, "get account details") {
		return
	}
	printAccountDetails(c, details, true)
}

func printAccountDetails(c *command, d *megaapi.AccountDetails, human bool) {
	fmt.Fprintf(c.out, "    Available storage: %s\n", format.SizeToText(d.StorageMax, false, human))
	if d.StorageMax > 0 {
		fmt.Fprintf(c.out, "        Storage used: %s (%s)\n", format.SizeToText(d.StorageUsed, false, human),
			format.PercentageToText(float64(d.StorageUsed)/float64(d.StorageMax)))
	} else {
		fmt.Fprintf(c.out, "        Storage used: %s\n", format.SizeToText(d.StorageUsed, false, human))
	}
	fmt.Fprintf(c.out, "        Files: %d, Folders: %d\n", d.FileCount, d.FolderCount)
	if d.TransferMax > 0 {
		fmt.Fprintf(c.out, "    Transfer quota: %s of %s\n", format.SizeToText(d.TransferUsed, false, human),
			format.SizeToText(d.TransferMax, false, human))
	}
}

func (e *Executer) reload(c *command) {
	fmt.Fprintln(c.out, "Reloading account...")
	if !c.checkError(e.fetchNodes(c.ctx, c.clientID), "reload") {
		return
	}
	if e.cwdNode() == nil {
		if root := e.api.RootNode(); root != nil {
			e.setCwd(root.Handle)
		}
	}
	e.updatePrompt()
}

func (e *Executer) cd(c *command) {
	args := c.args()
	if len(args) > 1 {
		c.usage()
		return
	}
	if len(args) == 0 {
		if root := e.api.RootNode(); root != nil {
			e.setCwd(root.Handle)
		}
		e.updatePrompt()
		return
	}
	n := e.nodeByPath(args[0])
	switch {
	case n == nil:
		c.fail(cmdline.ExitNotFound, "%s: No such file or directory", args[0])
	case n.IsFile():
		c.fail(cmdline.ExitNotFound, "%s: Not a directory", args[0])
	default:
		e.setCwd(n.Handle)
		e.updatePrompt()
	}
}

func (e *Executer) pwd(c *command) {
	n := e.cwdNode()
	if n == nil {
		c.fail(cmdline.ExitNotFound, "Current working directory not found")
		return
	}
	fmt.Fprintln(c.out, e.api.NodePath(n))
}

func (e *Executer) lcd(c *command) {
	args := c.args()
	if len(args) != 1 {
		c.usage()
		return
	}
	p := e.localPath(args[0])
	info, err := os.Stat(p)
	switch {
	case err != nil:
		c.fail(cmdline.ExitNotFound, "%s: No such file or directory", args[0])
	case !info.IsDir():
		c.fail(cmdline.ExitNotFound, "%s: Not a directory", args[0])
	default:
		e.lcwdMu.Lock()
		e.lcwd = filepath.Clean(p)
		e.lcwdMu.Unlock()
	}
}

func (e *Executer) lpwd(c *command) {
	fmt.Fprintln(c.out, e.localCwd())
}

func (e *Executer) exit(c *command) {
	if c.flags.Has("only-shell") {
		return
	}
	e.loggers.Cmd.WithField("client", c.clientID).Info("Exit requested")
	e.requestExit()
}
