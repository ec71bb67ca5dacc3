// Package shell holds the clients of the server: the interactive shell and
// the one shot exec command.
package shell

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/comms"
	"github.com/cshum/megacmd/internal/config"
)

const serverStartTimeout = 10 * time.Second

// NewClient returns a client for the configured server. A "server_url"
// setting selects the websocket transport, otherwise the unix socket is used.
func NewClient(cfg *config.Config, dirs config.Dirs) *comms.Client {
	if url := cfg.GetString("server_url", ""); url != "" {
		return comms.NewWebsocketClient(url)
	}
	return comms.NewUnixClient(dirs.SocketPath())
}

// Connect returns a client to a running server, starting one in the
// background when none answers on the unix socket.
func Connect(ctx context.Context) (*comms.Client, error) {
	cfg := config.GetConfig()
	client := NewClient(cfg, config.PlatformDirs())
	if client.Ping(ctx) {
		return client, nil
	}
	if cfg.GetString("server_url", "") != "" {
		return nil, fmt.Errorf("server at %s is not reachable", cfg.GetString("server_url", ""))
	}
	if err := startServer(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, serverStartTimeout)
	defer cancel()
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("server did not start in %s", serverStartTimeout)
		case <-t.C:
			if client.Ping(ctx) {
				return client, nil
			}
		}
	}
}

func startServer() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	cmd := exec.Command(self, "server")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return cmd.Process.Release()
}

// JoinLine builds a petition line out of words, quoting the ones that need
// it.
func JoinLine(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = cmdline.Quote(w)
	}
	return strings.Join(quoted, " ")
}
