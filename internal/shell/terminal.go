package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/cshum/megacmd/internal/cmdline"
)

var (
	promptColor  = color.New(color.FgGreen, color.Bold)
	messageColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// Terminal reads answers from the user and serializes what the shell and
// the state listener print.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
	fd  int

	mu sync.Mutex
}

// NewTerminal reads from in and writes to out. Passwords are read without
// echo when in is a terminal.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Terminal{in: bufio.NewReader(in), out: out, fd: fd}
}

// ReadLine returns the next line without its line ending. io.EOF is
// returned once the input is exhausted.
func (t *Terminal) ReadLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *Terminal) Printf(format string, a ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, a...)
}

func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.Write(p)
}

// ParseConfirm reads an answer to a confirmation. ok is false when the
// answer is not one of the accepted ones.
func ParseConfirm(answer string) (resp cmdline.ConfirmResponse, ok bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return cmdline.ConfirmYes, true
	case "n", "no":
		return cmdline.ConfirmNo, true
	case "a", "all":
		return cmdline.ConfirmAll, true
	case "o", "none":
		return cmdline.ConfirmNone, true
	}
	return cmdline.ConfirmNo, false
}

// Confirm keeps asking until a valid answer is given. End of input counts
// as "no".
func (t *Terminal) Confirm(message string) cmdline.ConfirmResponse {
	t.Printf("%s", message)
	for {
		answer, err := t.ReadLine()
		if err != nil {
			t.Printf("\n")
			return cmdline.ConfirmNo
		}
		if resp, ok := ParseConfirm(answer); ok {
			return resp
		}
		t.Printf("Please enter [y]es/[n]o/[a]ll/n[o]ne: ")
	}
}

func (t *Terminal) RequestString(message string) string {
	t.Printf("%s ", strings.TrimRight(message, " "))
	if t.fd >= 0 && strings.Contains(strings.ToLower(message), "password") {
		b, err := term.ReadPassword(t.fd)
		t.Printf("\n")
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
	answer, _ := t.ReadLine()
	return answer
}
