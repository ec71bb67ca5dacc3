package comms

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strconv"
	"sync"

	"github.com/cshum/megacmd/internal/cmdline"
)

const flushThreshold = 4096

var clientIDOption = regexp.MustCompile(`\s*--clientID=(\d+)`)

// extractClientID removes the --clientID option from line and returns the
// id it carried, or -1.
func extractClientID(line string) (string, int) {
	m := clientIDOption.FindStringSubmatchIndex(line)
	if m == nil {
		return line, -1
	}
	id, err := strconv.Atoi(line[m[2]:m[3]])
	if err != nil {
		id = -1
	}
	return line[:m[0]] + line[m[1]:], id
}

// Petition is one command line sent by a client together with the channel
// used to answer it.
type Petition struct {
	Line     string
	ClientID int

	conn FrameConn

	mu       sync.Mutex
	out, err bytes.Buffer
	writeErr error
	finished bool
}

func newPetition(line string, conn FrameConn) *Petition {
	line, id := extractClientID(line)
	return &Petition{Line: line, ClientID: id, conn: conn}
}

type petitionWriter struct {
	p      *Petition
	stderr bool
}

func (w petitionWriter) Write(b []byte) (int, error) {
	w.p.mu.Lock()
	defer w.p.mu.Unlock()
	if w.p.finished {
		return 0, errors.New("petition already answered")
	}
	buf, other := &w.p.out, &w.p.err
	if w.stderr {
		buf, other = other, buf
	}
	// keep the order of interleaved stdout and stderr writes
	if other.Len() > 0 {
		w.p.flushLocked()
	}
	buf.Write(b)
	if buf.Len() >= flushThreshold {
		w.p.flushLocked()
	}
	return len(b), w.p.writeErr
}

// Stdout returns a writer whose output reaches the client's stdout.
func (p *Petition) Stdout() io.Writer {
	return petitionWriter{p: p}
}

func (p *Petition) Stderr() io.Writer {
	return petitionWriter{p: p, stderr: true}
}

func (p *Petition) flushLocked() {
	if p.writeErr != nil {
		p.out.Reset()
		p.err.Reset()
		return
	}
	if p.err.Len() > 0 {
		p.writeErr = p.conn.WriteFrame(codeFrame(cmdline.ExitPartialErr, p.err.Bytes()))
		p.err.Reset()
	}
	if p.out.Len() > 0 && p.writeErr == nil {
		p.writeErr = p.conn.WriteFrame(codeFrame(cmdline.ExitPartialOut, p.out.Bytes()))
		p.out.Reset()
	}
}

func (p *Petition) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked()
	return p.writeErr
}

// Confirm asks the client a yes/no/all/none question and waits for the
// answer. A client that went away answers no.
func (p *Petition) Confirm(message string) (cmdline.ConfirmResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked()
	if p.writeErr != nil {
		return cmdline.ConfirmNo, p.writeErr
	}
	if err := p.conn.WriteFrame(codeFrame(cmdline.ExitReqConfirm, []byte(message))); err != nil {
		p.writeErr = err
		return cmdline.ConfirmNo, err
	}
	resp, err := p.conn.ReadFrame()
	if err != nil {
		return cmdline.ConfirmNo, err
	}
	if len(resp) == 0 {
		return cmdline.ConfirmNo, nil
	}
	return cmdline.ConfirmResponse(resp[0]), nil
}

// RequestString asks the client to type a value, such as a password.
func (p *Petition) RequestString(message string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushLocked()
	if p.writeErr != nil {
		return "", p.writeErr
	}
	if err := p.conn.WriteFrame(codeFrame(cmdline.ExitReqString, []byte(message))); err != nil {
		p.writeErr = err
		return "", err
	}
	resp, err := p.conn.ReadFrame()
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

// Finish flushes pending output and sends the exit code.
func (p *Petition) Finish(code int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return nil
	}
	p.flushLocked()
	p.finished = true
	if p.writeErr != nil {
		return p.writeErr
	}
	return p.conn.WriteFrame(codeFrame(code, nil))
}
