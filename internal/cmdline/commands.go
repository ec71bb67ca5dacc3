package cmdline

import "sort"

// LoginInValidCommands can run without an open session.
var LoginInValidCommands = []string{
	"log", "debug", "speedlimit", "help", "logout", "version", "quit",
	"clear", "exit", "errorcode", "configure", "echo", "completion",
	"lcd", "lpwd",
}

var AllValidCommands = []string{
	"login", "session", "ls", "cd", "log", "debug", "pwd", "lcd", "lpwd",
	"put", "get", "mkdir", "rm", "du", "mv", "cp", "sync", "sync-ignore",
	"export", "df", "speedlimit", "whoami", "help", "reload", "logout",
	"version", "quit", "find", "completion", "clear", "sync-issues",
	"transfers", "downloads", "exclude", "exit", "errorcode", "cat",
	"tree", "configure", "backup", "deleteversions", "echo",
}

// commandParams lists per command the flags (-x, --name) and the options
// (--name=value) it accepts.
var commandParams = map[string]struct{ flags, options []string }{
	"ls": {
		flags:   []string{"R", "r", "l", "a", "h", "show-handles", "versions", "show-creation-time", "tree"},
		options: []string{"time-format"},
	},
	"du": {
		flags:   []string{"h", "versions"},
		options: []string{"path-display-size"},
	},
	"help":           {flags: []string{"f", "ff", "non-interactive", "upgrade", "paths", "show-all-options"}},
	"version":        {flags: []string{"l", "c"}},
	"rm":             {flags: []string{"r", "f"}},
	"speedlimit":     {flags: []string{"u", "d", "h"}, options: []string{"upload-connections", "download-connections"}},
	"whoami":         {flags: []string{"l"}},
	"df":             {flags: []string{"h"}},
	"log":            {flags: []string{"c", "s"}},
	"deleteversions": {flags: []string{"all", "f"}},
	"exclude":        {flags: []string{"a", "d"}},
	"backup": {
		flags:   []string{"d", "a", "l", "h"},
		options: []string{"period", "num-backups", "path-display-size", "time-format"},
	},
	"sync": {
		flags:   []string{"p", "pause", "e", "enable", "d", "delete", "show-handles", "remove", "s", "disable", "r"},
		options: []string{"path-display-size", "col-separator", "output-cols"},
	},
	"sync-issues": {
		flags:   []string{"enable-warning", "disable-warning", "disable-path-collapse", "detail", "all"},
		options: []string{"limit", "col-separator", "output-cols"},
	},
	"sync-ignore": {flags: []string{"show", "add", "add-exclusion", "remove", "remove-exclusion"}},
	"export": {
		flags:   []string{"a", "d", "f", "writable", "mega-hosted"},
		options: []string{"expire", "password"},
	},
	"find": {
		flags:   []string{"show-handles", "print-only-handles"},
		options: []string{"pattern", "l", "mtime", "size", "time-format", "type"},
	},
	"mkdir":  {flags: []string{"p"}},
	"logout": {flags: []string{"keep-session"}},
	"put": {
		flags:   []string{"c", "q", "ignore-quota-warn"},
		options: []string{"clientID"},
	},
	"get": {
		flags:   []string{"m", "q", "ignore-quota-warn"},
		options: []string{"password", "clientID"},
	},
	"login":  {options: []string{"clientID", "auth-code", "auth-key", "password", "resume"}},
	"reload": {options: []string{"clientID"}},
	"transfers": {
		flags:   []string{"show-completed", "summary", "only-uploads", "only-completed", "only-downloads", "show-syncs", "c", "a", "p", "r"},
		options: []string{"limit", "path-display-size", "col-separator", "output-cols"},
	},
	"downloads": {
		flags:   []string{"purge", "show-subtransfers"},
		options: []string{"limit", "path-display-size", "col-separator", "output-cols"},
	},
	"exit": {flags: []string{"only-shell"}},
	"quit": {flags: []string{"only-shell"}},
	"tree": {flags: []string{"show-handles"}},
	"echo": {flags: []string{"log-as-err"}},
}

// ValidParams returns the set of flag and option names command accepts.
// Every command accepts client-width.
func ValidParams(command string) Set {
	s := NewSet("client-width")
	if p, ok := commandParams[command]; ok {
		s.Add(p.flags...)
		s.Add(p.options...)
	}
	return s
}

// ValidOptionValues returns only the names that take a value, used by
// completion to decide whether to append "=".
func ValidOptionValues(command string) Set {
	s := NewSet("client-width")
	if p, ok := commandParams[command]; ok {
		s.Add(p.options...)
	}
	return s
}

func ValidFlags(command string) []string {
	p := commandParams[command]
	flags := append([]string(nil), p.flags...)
	sort.Strings(flags)
	return flags
}

func IsValidCommand(command string, loggedIn bool) bool {
	list := AllValidCommands
	if !loggedIn {
		list = LoginInValidCommands
	}
	for _, c := range list {
		if c == command {
			return true
		}
	}
	return false
}

func IsKnownCommand(command string) bool {
	return IsValidCommand(command, true)
}

// ConfirmResponse is the answer to a confirmation request.
type ConfirmResponse byte

const (
	ConfirmNo ConfirmResponse = iota
	ConfirmYes
	ConfirmAll
	ConfirmNone
)
