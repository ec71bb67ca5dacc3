package comms

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/r3labs/sse/v2"

	"github.com/cshum/megacmd/internal/cmdline"
)

// Interaction answers the questions a petition asks while it runs.
type Interaction interface {
	Confirm(message string) cmdline.ConfirmResponse
	RequestString(message string) string
}

// Client talks to a running server.
type Client struct {
	dial func(ctx context.Context) (FrameConn, error)
}

func NewUnixClient(socketPath string) *Client {
	return &Client{dial: func(ctx context.Context) (FrameConn, error) {
		var d net.Dialer
		c, err := d.DialContext(ctx, "unix", socketPath)
		if err != nil {
			return nil, err
		}
		return NewStreamConn(c), nil
	}}
}

var dialer = websocket.Dialer{
	HandshakeTimeout: 5 * time.Second,
}

// NewWebsocketClient connects to a server started with a port, e.g.
// ws://127.0.0.1:12300/.
func NewWebsocketClient(url string) *Client {
	return &Client{dial: func(ctx context.Context) (FrameConn, error) {
		c, resp, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				resp.Body.Close()
				return nil, fmt.Errorf("websocket upgrade failed (%d)", resp.StatusCode)
			}
			return nil, err
		}
		return NewWebsocketConn(c), nil
	}}
}

// Ping reports whether a server is accepting connections.
func (c *Client) Ping(ctx context.Context) bool {
	conn, err := c.dial(ctx)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Execute sends line and relays the answer until the exit code arrives.
func (c *Client) Execute(ctx context.Context, line string, out, errOut io.Writer, in Interaction) (int, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return cmdline.ExitUnexpected, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteFrame([]byte(line)); err != nil {
		return cmdline.ExitUnexpected, err
	}
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return cmdline.ExitUnexpected, ctx.Err()
			}
			return cmdline.ExitUnexpected, fmt.Errorf("connection to server lost: %w", err)
		}
		code, payload, err := parseCodeFrame(frame)
		if err != nil {
			return cmdline.ExitUnexpected, err
		}
		switch code {
		case cmdline.ExitPartialOut:
			out.Write(payload)
		case cmdline.ExitPartialErr:
			errOut.Write(payload)
		case cmdline.ExitReqConfirm:
			resp := cmdline.ConfirmNo
			if in != nil {
				resp = in.Confirm(string(payload))
			}
			if err := conn.WriteFrame([]byte{byte(resp)}); err != nil {
				return cmdline.ExitUnexpected, err
			}
		case cmdline.ExitReqString:
			var s string
			if in != nil {
				s = in.RequestString(string(payload))
			}
			if err := conn.WriteFrame([]byte(s)); err != nil {
				return cmdline.ExitUnexpected, err
			}
		default:
			return code, nil
		}
	}
}

// RegisterStateListener registers with the server and hands every pushed
// message to handler until ctx ends or the server goes away.
func (c *Client) RegisterStateListener(ctx context.Context, handler func(msg string)) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := conn.WriteFrame([]byte(RegisterStateListener)); err != nil {
		return err
	}
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		handler(string(frame))
	}
}

// SubscribeEvents follows the SSE mirror of the state messages served at
// addr.
func SubscribeEvents(ctx context.Context, addr string, handler func(msg string)) error {
	url := addr
	if !strings.HasPrefix(url, "http") {
		url = "http://" + url
	}
	client := sse.NewClient(strings.TrimRight(url, "/") + EventsPath)
	return client.SubscribeWithContext(ctx, EventsStream, func(ev *sse.Event) {
		handler(string(ev.Data))
	})
}

// StateMessage is a parsed state listener message.
type StateMessage struct {
	Kind string
	Args []string
}

// ParseStateMessage splits "kind:arg1:arg2". The last field of message,
// prompt and endtransfer keeps any colons it has.
func ParseStateMessage(msg string) StateMessage {
	kind, rest, ok := strings.Cut(msg, ":")
	if !ok {
		return StateMessage{Kind: msg}
	}
	switch kind {
	case "message", "prompt", "clientID":
		return StateMessage{Kind: kind, Args: []string{rest}}
	case "endtransfer":
		return StateMessage{Kind: kind, Args: strings.SplitN(rest, ":", 2)}
	case "progress":
		return StateMessage{Kind: kind, Args: strings.SplitN(rest, ":", 3)}
	}
	return StateMessage{Kind: kind, Args: []string{rest}}
}

func PromptMessage(prompt string) string {
	return "prompt:" + prompt
}

func InfoMessage(msg string) string {
	return "message:" + msg
}

// ProgressMessage reports done out of total bytes. A title names what is
// progressing when it is not a transfer.
func ProgressMessage(done, total int64, title string) string {
	s := "progress:" + strconv.FormatInt(done, 10) + ":" + strconv.FormatInt(total, 10)
	if title != "" {
		s += ":" + title
	}
	return s
}

func EndTransferMessage(kind, path string) string {
	return "endtransfer:" + kind + ":" + path
}
