package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/urfave/cli/v2"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/comms"
	"github.com/cshum/megacmd/internal/format"
)

const (
	defaultPrompt = "MEGA CMD> "
	progressWidth = 40
	clearScreen   = "\033[H\033[2J"
)

// Shell reads command lines from a terminal and runs them on the server,
// rendering what the server pushes through its state listener.
type Shell struct {
	client *comms.Client
	term   *Terminal

	mu       sync.Mutex
	prompt   string
	clientID int
	drawing  bool
}

func New(client *comms.Client, t *Terminal) *Shell {
	return &Shell{
		client:   client,
		term:     t,
		prompt:   defaultPrompt,
		clientID: -1,
	}
}

func (s *Shell) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// Line appends the listener id so the server can send progress of the
// petition back to this shell.
func (s *Shell) Line(input string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clientID < 0 {
		return input
	}
	return input + " --clientID=" + strconv.Itoa(s.clientID)
}

// endProgress finishes a progress line that is being drawn.
func (s *Shell) endProgress() {
	s.mu.Lock()
	drawing := s.drawing
	s.drawing = false
	s.mu.Unlock()
	if drawing {
		s.term.Printf("\n")
	}
}

// HandleStateMessage renders one message pushed by the server.
func (s *Shell) HandleStateMessage(msg string) {
	m := comms.ParseStateMessage(msg)
	switch m.Kind {
	case "clientID":
		if id, err := strconv.Atoi(m.Args[0]); err == nil {
			s.mu.Lock()
			s.clientID = id
			s.mu.Unlock()
		}
	case "prompt":
		s.mu.Lock()
		s.prompt = m.Args[0]
		s.mu.Unlock()
	case "message":
		s.endProgress()
		messageColor.Fprintln(s.term, m.Args[0])
	case "endtransfer":
		if len(m.Args) != 2 {
			return
		}
		s.endProgress()
		kind := "Download"
		if m.Args[0] == "UPLOAD" {
			kind = "Upload"
		}
		s.term.Printf("%s finished: %s\n", kind, m.Args[1])
	case "progress":
		s.drawProgress(m.Args)
	}
}

func (s *Shell) drawProgress(args []string) {
	if len(args) < 2 {
		return
	}
	done, err1 := strconv.ParseInt(args[0], 10, 64)
	total, err2 := strconv.ParseInt(args[1], 10, 64)
	if err1 != nil || err2 != nil {
		return
	}
	title := "TRANSFERRING"
	if len(args) == 3 && args[2] != "" {
		title = args[2]
	}
	s.term.Printf("\r%s", ProgressLine(done, total, title))
	s.mu.Lock()
	s.drawing = true
	s.mu.Unlock()
	if done >= total {
		s.endProgress()
	}
}

// ProgressLine draws "TITLE ||####....||(done/total: pct)".
func ProgressLine(done, total int64, title string) string {
	fraction := 1.0
	if total > 0 {
		fraction = float64(done) / float64(total)
	}
	fraction = min(max(fraction, 0), 1)
	filled := int(fraction * progressWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", progressWidth-filled)
	return fmt.Sprintf("%s ||%s||(%s: %s)", title, bar,
		format.SizeProgressToText(done, total, false, true), format.PercentageToText(fraction))
}

// Run executes lines until end of input or until the user exits.
func (s *Shell) Run(ctx context.Context, out, errOut io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := s.client.RegisterStateListener(ctx, s.HandleStateMessage); err != nil {
			errorColor.Fprintf(errOut, "Lost connection with the server: %v\n", err)
		}
	}()

	for {
		promptColor.Fprint(s.term, s.Prompt())
		input, err := s.term.ReadLine()
		if err == io.EOF {
			s.term.Printf("\n")
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		words := cmdline.GetListOfWords(input, false, true)
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "clear":
			s.term.Printf("%s", clearScreen)
			continue
		case "exit", "quit":
			if !slices.Contains(words, "--only-shell") {
				s.execute(ctx, input, out, errOut)
			}
			return nil
		}
		s.execute(ctx, input, out, errOut)
	}
}

func (s *Shell) execute(ctx context.Context, input string, out, errOut io.Writer) int {
	code, err := s.client.Execute(ctx, s.Line(input), out, errOut, s.term)
	s.endProgress()
	if err != nil {
		errorColor.Fprintf(errOut, "%v\n", err)
		return cmdline.ExitUnexpected
	}
	return code
}

func Command() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Start an interactive MEGAcmd shell",
		Action: func(c *cli.Context) error {
			client, err := Connect(c.Context)
			if err != nil {
				return err
			}
			t := NewTerminal(os.Stdin, os.Stdout)
			return New(client, t).Run(c.Context, t, os.Stderr)
		},
	}
}
