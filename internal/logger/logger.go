// Package logger sets up the server loggers. Commands and the SDK log
// through separate logrus loggers so their levels can be changed apart
// with the log command.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const LogFileName = "megacmdserver.log"

var levelNames = map[logrus.Level]string{
	logrus.PanicLevel: "FATAL",
	logrus.FatalLevel: "FATAL",
	logrus.ErrorLevel: "ERROR",
	logrus.WarnLevel:  "WARNING",
	logrus.InfoLevel:  "INFO",
	logrus.DebugLevel: "DEBUG",
	logrus.TraceLevel: "VERBOSE",
}

// shortNames prefix the lines echoed to clients.
var shortNames = map[logrus.Level]string{
	logrus.PanicLevel: "fatal",
	logrus.FatalLevel: "fatal",
	logrus.ErrorLevel: "err",
	logrus.WarnLevel:  "warn",
	logrus.InfoLevel:  "info",
	logrus.DebugLevel: "debug",
	logrus.TraceLevel: "verbose",
}

func LevelName(l logrus.Level) string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseLevel accepts a level name (FATAL, ERROR, WARNING, INFO, DEBUG,
// VERBOSE, in any case) or its number from 0 to 5.
func ParseLevel(s string) (logrus.Level, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 5 {
			return 0, false
		}
		return logrus.Level(n + 1), true
	}
	switch s {
	case "FATAL":
		return logrus.FatalLevel, true
	case "ERROR", "ERR":
		return logrus.ErrorLevel, true
	case "WARNING", "WARN":
		return logrus.WarnLevel, true
	case "INFO":
		return logrus.InfoLevel, true
	case "DEBUG":
		return logrus.DebugLevel, true
	case "VERBOSE", "TRACE":
		return logrus.TraceLevel, true
	}
	return 0, false
}

// Loggers are the command and SDK loggers of the server.
type Loggers struct {
	Cmd *logrus.Logger
	API *logrus.Logger

	file *RotatingWriter
}

func newLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return l
}

// New returns loggers writing to out.
func New(out io.Writer) *Loggers {
	return &Loggers{
		Cmd: newLogger(out, logrus.InfoLevel),
		API: newLogger(out, logrus.ErrorLevel),
	}
}

// NewWithFile logs to a rotating file in dir, mirroring it to stderr when
// alsoStderr is set.
func NewWithFile(dir string, alsoStderr bool, opts ...RotatingOption) (*Loggers, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	rw, err := NewRotatingWriter(filepath.Join(dir, LogFileName), opts...)
	if err != nil {
		return nil, err
	}
	var out io.Writer = rw
	if alsoStderr {
		out = io.MultiWriter(rw, os.Stderr)
	}
	l := New(out)
	l.file = rw
	return l, nil
}

// FilePath returns the path of the log file, or "" when logging only to a
// stream.
func (l *Loggers) FilePath() string {
	if l.file == nil {
		return ""
	}
	return l.file.Path()
}

func (l *Loggers) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Loggers) SetCmdLevel(level logrus.Level) {
	l.Cmd.SetLevel(level)
}

func (l *Loggers) SetAPILevel(level logrus.Level) {
	l.API.SetLevel(level)
}

// ForPetition returns a logger for one command. Entries go to the server
// log and are echoed to w as "[err: message]" lines so the user sees them.
func (l *Loggers) ForPetition(w io.Writer) *logrus.Logger {
	p := logrus.New()
	p.SetOutput(io.Discard)
	p.SetLevel(l.Cmd.GetLevel())
	p.AddHook(&forwardHook{target: l.Cmd})
	p.AddHook(&echoHook{w: w})
	return p
}

type forwardHook struct {
	target *logrus.Logger
}

func (h *forwardHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *forwardHook) Fire(e *logrus.Entry) error {
	level := e.Level
	if level < logrus.ErrorLevel {
		// Log at fatal or panic level would end the server
		level = logrus.ErrorLevel
	}
	h.target.WithFields(e.Data).WithTime(e.Time).Log(level, e.Message)
	return nil
}

type echoHook struct {
	w io.Writer
}

func (h *echoHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *echoHook) Fire(e *logrus.Entry) error {
	_, err := fmt.Fprintf(h.w, "[%s: %s]\n", shortNames[e.Level], e.Message)
	return err
}
