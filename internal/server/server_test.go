package server

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/comms"
	"github.com/cshum/megacmd/internal/config"
)

type running struct {
	done chan struct{}
	err  error
}

func startServer(t *testing.T) (config.Dirs, *running) {
	t.Helper()
	tmp := t.TempDir()
	dirs := config.Dirs{
		ConfigDir:  filepath.Join(tmp, "config"),
		RuntimeDir: filepath.Join(tmp, "run"),
		CacheDir:   filepath.Join(tmp, "cache"),
	}
	r := &running{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	go func() {
		defer close(r.done)
		r.err = Run(ctx, Options{
			Dirs:    dirs,
			Client:  config.Load(tmp),
			Version: "9.9.9",
		})
	}()

	client := comms.NewUnixClient(dirs.SocketPath())
	require.Eventually(t, func() bool {
		return client.Ping(context.Background())
	}, 5*time.Second, 20*time.Millisecond)
	return dirs, r
}

func exec(t *testing.T, dirs config.Dirs, line string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code, err := comms.NewUnixClient(dirs.SocketPath()).Execute(context.Background(), line, &out, &errOut, nil)
	require.NoError(t, err)
	return code, out.String(), errOut.String()
}

func TestServeAndExit(t *testing.T) {
	dirs, r := startServer(t)

	code, out, _ := exec(t, dirs, "version")
	assert.Equal(t, cmdline.ExitOK, code)
	assert.Contains(t, out, "MEGAcmd version: 9.9.9")

	code, _, _ = exec(t, dirs, "ls")
	assert.Equal(t, cmdline.ExitNotLoggedIn, code)

	code, _, _ = exec(t, dirs, "exit")
	assert.Equal(t, cmdline.ExitOK, code)

	select {
	case <-r.done:
		assert.NoError(t, r.err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit")
	}
}

func TestSecondServerRefused(t *testing.T) {
	dirs, _ := startServer(t)
	err := Run(context.Background(), Options{
		Dirs:    dirs,
		Client:  config.Load(t.TempDir()),
		Version: "9.9.9",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another MEGAcmd server")
}

func TestStateListenerGetsPrompt(t *testing.T) {
	dirs, _ := startServer(t)

	var mu sync.Mutex
	var msgs []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go comms.NewUnixClient(dirs.SocketPath()).RegisterStateListener(ctx, func(msg string) {
		mu.Lock()
		msgs = append(msgs, msg)
		mu.Unlock()
	})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, m := range msgs {
			if strings.HasPrefix(m, "prompt:MEGA CMD> ") {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, msgs)
	assert.True(t, strings.HasPrefix(msgs[0], "clientID:"))
}
