// Package executer runs the commands typed by clients against the SDK.
package executer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/comms"
	"github.com/cshum/megacmd/internal/config"
	"github.com/cshum/megacmd/internal/logger"
	"github.com/cshum/megacmd/internal/syncissues"
	"github.com/cshum/megacmd/internal/transfers"
	"github.com/cshum/megacmd/megaapi"
)

const (
	loggedOutPrompt  = "MEGA CMD> "
	maxCompletedKept = 10000
	transfersDBName  = "transfers.db"
)

// Request is the channel back to the client that sent a command.
type Request interface {
	Stdout() io.Writer
	Stderr() io.Writer
	Confirm(message string) (cmdline.ConfirmResponse, error)
	RequestString(message string) (string, error)
}

// Notifier pushes state messages to the registered clients.
type Notifier interface {
	Broadcast(msg string)
	SendToClient(clientID int, msg string) bool
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(string) {}

func (nopNotifier) SendToClient(int, string) bool { return false }

type Options struct {
	API       megaapi.API
	Config    *config.Manager
	Loggers   *logger.Loggers
	Downloads *transfers.DownloadsManager
	Issues    *syncissues.Manager
	Notifier  Notifier
	Version   string
}

type Executer struct {
	api       megaapi.API
	cfg       *config.Manager
	loggers   *logger.Loggers
	downloads *transfers.DownloadsManager
	issues    *syncissues.Manager
	notifier  Notifier
	version   string
	listener  *globalTransferListener

	mu        sync.Mutex
	cwd       megaapi.Handle
	prompt    string
	completed []*megaapi.Transfer

	lcwdMu sync.Mutex
	lcwd   string

	exitOnce sync.Once
	done     chan struct{}
}

func New(o Options) *Executer {
	if o.Loggers == nil {
		o.Loggers = logger.New(os.Stderr)
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Downloads == nil {
		o.Downloads = transfers.NewDownloadsManager(o.Loggers.Cmd)
	}
	lcwd, _ := os.Getwd()
	e := &Executer{
		api:       o.API,
		cfg:       o.Config,
		loggers:   o.Loggers,
		downloads: o.Downloads,
		issues:    o.Issues,
		notifier:  o.Notifier,
		version:   o.Version,
		cwd:       megaapi.UndefHandle,
		prompt:    loggedOutPrompt,
		lcwd:      lcwd,
		done:      make(chan struct{}),
	}
	e.listener = &globalTransferListener{e: e}
	e.api.AddTransferListener(e.listener)
	if e.issues != nil {
		e.api.AddGlobalListener(e.issues)
	}
	return e
}

// SetNotifier replaces the notifier once the server exists.
func (e *Executer) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

func (e *Executer) notify() Notifier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notifier
}

// Done is closed when a client asks the server to exit.
func (e *Executer) Done() <-chan struct{} {
	return e.done
}

func (e *Executer) requestExit() {
	e.exitOnce.Do(func() { close(e.done) })
}

// Close detaches the executer listeners from the API.
func (e *Executer) Close() {
	e.api.RemoveTransferListener(e.listener)
	if e.issues != nil {
		e.api.RemoveGlobalListener(e.issues)
	}
}

func (e *Executer) Prompt() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prompt
}

// updatePrompt recomputes the prompt and pushes it to every listener when
// it changed.
func (e *Executer) updatePrompt() {
	p := loggedOutPrompt
	if e.api.IsLoggedIn() {
		cwd := "/"
		if n := e.cwdNode(); n != nil {
			cwd = e.api.NodePath(n)
		}
		p = e.api.MyEmail() + ":" + cwd + "$ "
	}
	e.mu.Lock()
	changed := p != e.prompt
	e.prompt = p
	n := e.notifier
	e.mu.Unlock()
	if changed {
		n.Broadcast(comms.PromptMessage(p))
	}
}

func (e *Executer) cwdNode() *megaapi.Node {
	e.mu.Lock()
	h := e.cwd
	e.mu.Unlock()
	if h == megaapi.UndefHandle {
		return nil
	}
	return e.api.NodeByHandle(h)
}

func (e *Executer) setCwd(h megaapi.Handle) {
	e.mu.Lock()
	e.cwd = h
	e.mu.Unlock()
}

func (e *Executer) localCwd() string {
	e.lcwdMu.Lock()
	defer e.lcwdMu.Unlock()
	return e.lcwd
}

// localPath makes p absolute against the local working directory.
func (e *Executer) localPath(p string) string {
	if strings.HasPrefix(p, "~/") || p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			p = home + p[1:]
		}
	}
	if filepath.IsAbs(p) {
		return p
	}
	trailing := strings.HasSuffix(p, string(os.PathSeparator))
	abs := filepath.Join(e.localCwd(), p)
	if trailing && !strings.HasSuffix(abs, string(os.PathSeparator)) {
		abs += string(os.PathSeparator)
	}
	return abs
}

type command struct {
	ctx      context.Context
	req      Request
	out      io.Writer
	errOut   io.Writer
	log      *logrus.Logger
	name     string
	words    []string
	flags    cmdline.Flags
	opts     cmdline.Options
	clientID int
	code     int
}

type handlerFunc func(e *Executer, c *command)

var handlers map[string]handlerFunc

func init() {
	handlers = map[string]handlerFunc{
		"login":          (*Executer).login,
		"logout":         (*Executer).logout,
		"session":        (*Executer).session,
		"whoami":         (*Executer).whoami,
		"reload":         (*Executer).reload,
		"cd":             (*Executer).cd,
		"pwd":            (*Executer).pwd,
		"lcd":            (*Executer).lcd,
		"lpwd":           (*Executer).lpwd,
		"ls":             (*Executer).ls,
		"tree":           (*Executer).tree,
		"mkdir":          (*Executer).mkdir,
		"rm":             (*Executer).rm,
		"mv":             (*Executer).mv,
		"cp":             (*Executer).cp,
		"du":             (*Executer).du,
		"find":           (*Executer).find,
		"cat":            (*Executer).cat,
		"deleteversions": (*Executer).deleteVersions,
		"get":            (*Executer).get,
		"put":            (*Executer).put,
		"transfers":      (*Executer).transfers,
		"downloads":      (*Executer).downloadsCmd,
		"speedlimit":     (*Executer).speedlimit,
		"export":         (*Executer).export,
		"sync":           (*Executer).sync,
		"sync-ignore":    (*Executer).syncIgnore,
		"sync-issues":    (*Executer).syncIssues,
		"backup":         (*Executer).backup,
		"exclude":        (*Executer).exclude,
		"log":            (*Executer).logCmd,
		"debug":          (*Executer).debug,
		"version":        (*Executer).versionCmd,
		"errorcode":      (*Executer).errorcode,
		"help":           (*Executer).help,
		"configure":      (*Executer).configure,
		"df":             (*Executer).df,
		"echo":           (*Executer).echo,
		"completion":     (*Executer).completion,
		"clear":          func(*Executer, *command) {},
		"exit":           (*Executer).exit,
		"quit":           (*Executer).exit,
	}
}

// Execute runs one command line and returns its exit code.
func (e *Executer) Execute(ctx context.Context, line string, clientID int, req Request) int {
	words := cmdline.GetListOfWords(line, false, true)
	if len(words) == 0 {
		return cmdline.ExitOK
	}
	name := words[0]
	log := e.loggers.ForPetition(req.Stderr())

	h, ok := handlers[name]
	if !ok || !cmdline.IsKnownCommand(name) {
		log.Errorf("Command not found: %s", name)
		return cmdline.ExitArgs
	}

	c := &command{
		ctx:      ctx,
		req:      req,
		out:      req.Stdout(),
		errOut:   req.Stderr(),
		log:      log,
		name:     name,
		flags:    cmdline.Flags{},
		opts:     cmdline.Options{},
		clientID: clientID,
	}
	for _, w := range words[1:] {
		if w == "--help" {
			fmt.Fprintf(c.out, "Usage: %s\n", Usage(name))
			return cmdline.ExitOK
		}
	}
	rest, invalid := cmdline.SetOptionsAndFlags(c.opts, c.flags, words[1:], cmdline.ValidParams(name), false)
	if len(invalid) > 0 {
		log.Errorf("Invalid argument: %s", strings.Join(invalid, ", "))
		c.usage()
		return c.code
	}
	for i, w := range rest {
		rest[i] = cmdline.Unescape(w)
	}
	c.words = append([]string{name}, rest...)

	if name != "login" && !cmdline.IsValidCommand(name, e.api.IsLoggedIn()) {
		log.Error("Not logged in.")
		return cmdline.ExitNotLoggedIn
	}

	e.loggers.Cmd.WithFields(logrus.Fields{"command": name, "client": clientID}).Debug("Executing command")
	h(e, c)
	return c.code
}

// args returns the words after the command name.
func (c *command) args() []string {
	return c.words[1:]
}

func (c *command) fail(code int, format string, a ...interface{}) {
	c.log.Errorf(format, a...)
	c.code = code
}

func (c *command) usage() {
	fmt.Fprintf(c.errOut, "      %s\n", Usage(c.name))
	c.code = cmdline.ExitArgs
}

// checkError logs a failed SDK request as "Failed to <what>: <error>" and
// keeps its error code as the exit code.
func (c *command) checkError(err error, format string, a ...interface{}) bool {
	if err == nil {
		return true
	}
	c.log.Errorf("Failed to %s: %s", fmt.Sprintf(format, a...), megaapi.Code(err).Error())
	c.code = int(megaapi.Code(err))
	return false
}

// confirm asks the client. A previous "all" or "none" answer is reused
// through the given pointer.
func (c *command) confirm(message string, sticky *cmdline.ConfirmResponse) bool {
	if sticky != nil {
		switch *sticky {
		case cmdline.ConfirmAll:
			return true
		case cmdline.ConfirmNone:
			return false
		}
	}
	resp, err := c.req.Confirm(message)
	if err != nil {
		return false
	}
	if sticky != nil {
		*sticky = resp
	}
	return resp == cmdline.ConfirmYes || resp == cmdline.ConfirmAll
}

// nodeByPath resolves a remote path against the working directory. Paths
// can also be a handle written as H:xxxxxxxx.
func (e *Executer) nodeByPath(p string) *megaapi.Node {
	if strings.HasPrefix(p, "H:") {
		if h, ok := megaapi.ParseHandle(p); ok {
			return e.api.NodeByHandle(h)
		}
		return nil
	}
	if p == "" {
		return e.cwdNode()
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		p = "/" + strings.TrimPrefix(strings.TrimPrefix(p, "~"), "/")
	}
	if strings.HasPrefix(p, "/") {
		return e.api.NodeByPath(p, nil)
	}
	return e.api.NodeByPath(p, e.cwdNode())
}

// nodesByPath resolves a path whose last components may hold wildcards.
// Without wildcards it yields at most the one node found.
func (e *Executer) nodesByPath(p string, useRegexp bool) []*megaapi.Node {
	if !cmdline.HasWildcards(p) && !useRegexp {
		if n := e.nodeByPath(p); n != nil {
			return []*megaapi.Node{n}
		}
		return nil
	}

	var bases []*megaapi.Node
	rest := p
	switch {
	case strings.HasPrefix(p, "//bin"):
		bases = []*megaapi.Node{e.api.RubbishNode()}
		rest = strings.TrimPrefix(strings.TrimPrefix(p, "//bin"), "/")
	case strings.HasPrefix(p, "/"):
		bases = []*megaapi.Node{e.api.RootNode()}
		rest = strings.TrimPrefix(p, "/")
	default:
		bases = []*megaapi.Node{e.cwdNode()}
	}
	for _, part := range strings.Split(rest, "/") {
		var next []*megaapi.Node
		for _, b := range bases {
			if b == nil {
				continue
			}
			switch {
			case part == "" || part == ".":
				next = append(next, b)
			case part == "..":
				if parent := e.api.NodeByHandle(b.ParentHandle); parent != nil {
					next = append(next, parent)
				} else {
					next = append(next, b)
				}
			case cmdline.HasWildcards(part) || useRegexp:
				for _, child := range e.api.Children(b) {
					if cmdline.PatternMatches(child.Name, part, useRegexp) {
						next = append(next, child)
					}
				}
			default:
				if child := e.api.NodeByPath(part, b); child != nil {
					next = append(next, child)
				}
			}
		}
		bases = next
	}
	sort.SliceStable(bases, func(i, j int) bool { return bases[i].Name < bases[j].Name })
	return bases
}

// displayPath prints a node path relative to the working directory when it
// sits below it, as given by the user otherwise.
func (e *Executer) displayPath(n *megaapi.Node, given string) string {
	if given != "" && !cmdline.HasWildcards(given) {
		return given
	}
	full := e.api.NodePath(n)
	if given != "" && strings.HasPrefix(given, "/") {
		return full
	}
	if cwd := e.cwdNode(); cwd != nil {
		base := e.api.NodePath(cwd)
		if base == "/" {
			return strings.TrimPrefix(full, "/")
		}
		if strings.HasPrefix(full, base+"/") {
			return strings.TrimPrefix(full, base+"/")
		}
	}
	return full
}
