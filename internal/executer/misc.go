package executer

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/config"
	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/internal/logger"
	"github.com/cshum/megacmd/megaapi"
)

var changelog = []string{
	"Transfers started by get are remembered across restarts. See \"downloads\".",
	"New \"sync-issues\" command lists the conflicts your syncs cannot solve on their own.",
	"Exclusions are now written as .megaignore filters. Use \"sync-ignore\" to edit them.",
	"Server logs rotate and older files are compressed.",
}

func (e *Executer) printLevels(c *command, cmd, api bool) {
	if cmd {
		fmt.Fprintf(c.out, "MEGAcmd log level = %s\n", logger.LevelName(e.loggers.Cmd.GetLevel()))
	}
	if api {
		fmt.Fprintf(c.out, "SDK log level = %s\n", logger.LevelName(e.loggers.API.GetLevel()))
	}
}

func (e *Executer) logCmd(c *command) {
	args := c.args()
	if len(args) > 1 {
		c.usage()
		return
	}
	cmd, api := c.flags.Has("c"), c.flags.Has("s")
	if !cmd && !api {
		cmd, api = true, true
	}
	if len(args) == 1 {
		level, ok := logger.ParseLevel(args[0])
		if !ok {
			c.fail(cmdline.ExitArgs, "Invalid log level: %s", args[0])
			return
		}
		if cmd {
			e.loggers.SetCmdLevel(level)
		}
		if api {
			e.loggers.SetAPILevel(level)
		}
	}
	e.printLevels(c, cmd, api)
}

func (e *Executer) debug(c *command) {
	e.loggers.SetCmdLevel(logrus.DebugLevel)
	e.loggers.SetAPILevel(logrus.DebugLevel)
	e.printLevels(c, true, true)
	if p := e.loggers.FilePath(); p != "" {
		fmt.Fprintf(c.out, "Logging to %s\n", p)
	}
}

func (e *Executer) versionCmd(c *command) {
	fmt.Fprintf(c.out, "MEGAcmd version: %s\n", e.version)
	if c.flags.Has("l") {
		fmt.Fprintf(c.out, "MEGA SDK version: %s\n", e.api.Version())
		fmt.Fprintf(c.out, "Go version: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}
	if c.flags.Has("c") {
		fmt.Fprintln(c.out, "Changes in the current version:")
		for _, line := range changelog {
			fmt.Fprintf(c.out, " - %s\n", line)
		}
	}
}

func (e *Executer) errorcode(c *command) {
	args := c.args()
	if len(args) != 1 {
		c.usage()
		return
	}
	code, err := strconv.Atoi(args[0])
	if err != nil {
		c.fail(cmdline.ExitArgs, "Invalid error code: %s", args[0])
		return
	}
	if s := cmdline.ErrorString(code); s != "UNKNOWN" {
		fmt.Fprintln(c.out, s)
		return
	}
	if code > 0 {
		code = -code
	}
	fmt.Fprintln(c.out, megaapi.ErrorCode(code).Error())
}

func (e *Executer) help(c *command) {
	switch {
	case c.flags.Has("non-interactive"):
		fmt.Fprintln(c.out, "MEGAcmd features non-interactive usage: run \"megacmd exec COMMAND\" from your own shell or scripts.")
		fmt.Fprintln(c.out, "The server is started on demand and keeps running in the background.")
		fmt.Fprintln(c.out, "The exit code of exec is the one of the command, see \"errorcode\".")
		return
	case c.flags.Has("upgrade"):
		fmt.Fprintln(c.out, "Upgrading your account is done from the web client.")
		return
	case c.flags.Has("paths"):
		dirs := e.cfg.Dirs()
		fmt.Fprintf(c.out, "Configuration folder: %s\n", dirs.ConfigDir)
		fmt.Fprintf(c.out, "Socket: %s\n", dirs.SocketPath())
		if p := e.loggers.FilePath(); p != "" {
			fmt.Fprintf(c.out, "Log file: %s\n", p)
		}
		return
	}

	commands := append([]string(nil), cmdline.AllValidCommands...)
	sort.Strings(commands)
	if c.flags.Has("f") || c.flags.Has("ff") {
		for _, name := range commands {
			fmt.Fprintf(c.out, "<%s>\n", name)
			fmt.Fprintf(c.out, "Usage: %s\n", Usage(name))
			if c.flags.Has("show-all-options") || c.flags.Has("ff") {
				if flags := cmdline.ValidFlags(name); len(flags) > 0 {
					fmt.Fprintf(c.out, "Options: %s\n", strings.Join(flags, ", "))
				}
			}
			fmt.Fprintln(c.out)
		}
		return
	}

	fmt.Fprintln(c.out, "Here is the list of available commands and their usage")
	fmt.Fprintln(c.out, "Use \"help -f\" to get a brief description of the commands")
	fmt.Fprintln(c.out, "You can get further help on a specific command with \"command --help\"")
	fmt.Fprintln(c.out)

	width := c.opts.GetInt("client-width", format.DefaultClientWidth)
	col := 0
	for _, name := range commands {
		if col > 0 && col+len(name)+1 > width {
			fmt.Fprintln(c.out)
			col = 0
		}
		fmt.Fprint(c.out, format.Pad(name, 16))
		col += 16
	}
	fmt.Fprintln(c.out)
}

func (e *Executer) configure(c *command) {
	args := c.args()
	switch len(args) {
	case 0:
		for _, cfg := range config.Configurators() {
			value := e.cfg.GetConfigurationValue(cfg.Key, "")
			if value == "" {
				value = "(not set)"
			}
			fmt.Fprintf(c.out, "%s = %s\t# %s\n", cfg.Key, value, cfg.Description)
		}
	case 1:
		cfg, ok := config.GetConfigurator(args[0])
		if !ok {
			c.fail(cmdline.ExitArgs, "Invalid key: %s", args[0])
			return
		}
		value := e.cfg.GetConfigurationValue(cfg.Key, "")
		if value == "" {
			fmt.Fprintf(c.out, "%s is not set\n", cfg.Key)
			return
		}
		fmt.Fprintf(c.out, "%s = %s\n", cfg.Key, value)
	case 2:
		var api megaapi.API
		if e.api.IsLoggedIn() {
			api = e.api
		}
		if err := e.cfg.Configure(api, args[0], args[1]); err != nil {
			c.fail(cmdline.ExitArgs, "%v", err)
			return
		}
		fmt.Fprintf(c.out, "%s = %s\n", args[0], args[1])
	default:
		c.usage()
	}
}

type folderStats struct {
	size    int64
	files   int
	folders int
}

func (e *Executer) statsOf(n *megaapi.Node) folderStats {
	var s folderStats
	if n == nil {
		return s
	}
	e.walk(n, 0, func(x *megaapi.Node, depth int) bool {
		switch {
		case x.IsFile():
			s.files++
			s.size += x.Size
		case depth > 0:
			s.folders++
		}
		return true
	})
	return s
}

func (e *Executer) df(c *command) {
	details, err := e.api.AccountDetails(c.ctx)
	if !c.checkError(err, "get account details") {
		return
	}
	human := c.flags.Has("h")
	for _, root := range []struct {
		title string
		node  *megaapi.Node
	}{
		{"Cloud drive", e.api.RootNode()},
		{"Rubbish bin", e.api.RubbishNode()},
	} {
		s := e.statsOf(root.node)
		fmt.Fprintf(c.out, "%s%s in %7d file(s) and %7d folder(s)\n",
			format.Pad(root.title+":", 20), format.RightAligned(format.SizeToText(s.size, true, human), 12), s.files, s.folders)
	}
	fmt.Fprintln(c.out, strings.Repeat("-", 73))

	used := format.SizeToText(details.StorageUsed, true, human)
	if details.StorageMax > 0 {
		fmt.Fprintf(c.out, "USED STORAGE: %s %s of %s\n", format.RightAligned(used, 12),
			format.PercentageToText(float64(details.StorageUsed)/float64(details.StorageMax)),
			format.SizeToText(details.StorageMax, false, human))
	} else {
		fmt.Fprintf(c.out, "USED STORAGE: %s\n", format.RightAligned(used, 12))
	}
}

func (e *Executer) echo(c *command) {
	text := strings.Join(c.args(), " ")
	if c.flags.Has("log-as-err") {
		c.log.Error(text)
		return
	}
	fmt.Fprintln(c.out, text)
}

// completion prints the candidates for the last word of a partial line.
func (e *Executer) completion(c *command) {
	line := strings.Join(c.args(), " ")
	words := cmdline.GetListOfWords(line, false, false)
	if len(words) == 0 {
		words = []string{""}
	}
	current := words[len(words)-1]

	var candidates []string
	switch {
	case len(words) == 1:
		for _, name := range cmdline.AllValidCommands {
			if strings.HasPrefix(name, current) {
				candidates = append(candidates, name)
			}
		}
	case strings.HasPrefix(current, "-"):
		candidates = completeParams(words[0], current)
	case isLocalCompletion(words[0], len(words)-1):
		candidates = e.completeLocal(current)
	case e.api.IsLoggedIn():
		candidates = e.completeRemote(current)
	}
	sort.Strings(candidates)
	for _, cand := range candidates {
		fmt.Fprintln(c.out, cand)
	}
}

func completeParams(command, current string) []string {
	var out []string
	values := cmdline.ValidOptionValues(command)
	for name := range cmdline.ValidParams(command) {
		cand := "--" + name
		if len(name) == 1 {
			cand = "-" + name
		}
		if values.Has(name) {
			cand += "="
		}
		if strings.HasPrefix(cand, current) {
			out = append(out, cand)
		}
	}
	return out
}

// isLocalCompletion tells whether the word at position pos of command names
// a local path.
func isLocalCompletion(command string, pos int) bool {
	switch command {
	case "lcd", "put":
		return true
	case "sync", "backup":
		return pos == 1
	}
	return false
}

func (e *Executer) completeLocal(current string) []string {
	dir, prefix := filepath.Split(current)
	entries, err := os.ReadDir(e.localPath(dir + "."))
	if err != nil {
		return nil
	}
	var out []string
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		cand := dir + entry.Name()
		if entry.IsDir() {
			cand += string(os.PathSeparator)
		}
		out = append(out, cmdline.Quote(cand))
	}
	return out
}

func (e *Executer) completeRemote(current string) []string {
	dir, prefix := "", current
	if i := strings.LastIndex(current, "/"); i >= 0 {
		dir, prefix = current[:i+1], current[i+1:]
	}
	base := e.cwdNode()
	if dir != "" {
		base = e.nodeByPath(dir)
	}
	if base == nil || !base.IsFolder() {
		return nil
	}
	var out []string
	for _, child := range e.api.Children(base) {
		if !strings.HasPrefix(child.Name, prefix) {
			continue
		}
		cand := dir + child.Name
		if child.IsFolder() {
			cand += "/"
		}
		out = append(out, cmdline.Quote(cand))
	}
	return out
}
