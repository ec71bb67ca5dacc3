package executer

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/config"
	"github.com/cshum/megacmd/internal/logger"
	"github.com/cshum/megacmd/internal/provider/localdrive"
	"github.com/cshum/megacmd/internal/syncissues"
)

type fakeRequest struct {
	out      bytes.Buffer
	errOut   bytes.Buffer
	confirms []cmdline.ConfirmResponse
	answers  []string
	asked    []string
}

func (r *fakeRequest) Stdout() io.Writer { return &r.out }

func (r *fakeRequest) Stderr() io.Writer { return &r.errOut }

func (r *fakeRequest) Confirm(message string) (cmdline.ConfirmResponse, error) {
	r.asked = append(r.asked, message)
	if len(r.confirms) == 0 {
		return cmdline.ConfirmNo, nil
	}
	resp := r.confirms[0]
	r.confirms = r.confirms[1:]
	return resp, nil
}

func (r *fakeRequest) RequestString(message string) (string, error) {
	r.asked = append(r.asked, message)
	if len(r.answers) == 0 {
		return "", io.EOF
	}
	s := r.answers[0]
	r.answers = r.answers[1:]
	return s, nil
}

type recordingNotifier struct {
	mu         sync.Mutex
	broadcasts []string
}

func (n *recordingNotifier) Broadcast(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, msg)
}

func (n *recordingNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.broadcasts...)
}

func (n *recordingNotifier) SendToClient(int, string) bool { return true }

type harness struct {
	t        *testing.T
	ex       *Executer
	cfg      *config.Manager
	notifier *recordingNotifier
	local    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := t.TempDir()
	loggers := logger.New(io.Discard)

	drive, err := localdrive.New(filepath.Join(base, "drive"), loggers.API)
	require.NoError(t, err)
	t.Cleanup(func() { drive.Close() })

	cfg := config.NewManager(config.Dirs{
		ConfigDir:  filepath.Join(base, "config"),
		RuntimeDir: filepath.Join(base, "run"),
		CacheDir:   filepath.Join(base, "cache"),
	}, loggers.Cmd)
	require.NoError(t, cfg.LoadConfiguration("test"))

	n := &recordingNotifier{}
	issues := syncissues.NewManager(loggers.Cmd, n.Broadcast, true)
	t.Cleanup(issues.Stop)

	ex := New(Options{
		API:      drive,
		Config:   cfg,
		Loggers:  loggers,
		Issues:   issues,
		Notifier: n,
		Version:  "2.0.0",
	})
	t.Cleanup(ex.Close)

	local := filepath.Join(base, "local")
	require.NoError(t, os.MkdirAll(local, 0700))
	ex.lcwd = local
	return &harness{t: t, ex: ex, cfg: cfg, notifier: n, local: local}
}

func (h *harness) run(line string) (int, *fakeRequest) {
	return h.runWith(line, &fakeRequest{})
}

func (h *harness) runWith(line string, req *fakeRequest) (int, *fakeRequest) {
	code := h.ex.Execute(context.Background(), line, 1, req)
	return code, req
}

func (h *harness) login() {
	h.t.Helper()
	code, req := h.run("login user@example.com secret")
	require.Equal(h.t, cmdline.ExitOK, code, req.errOut.String())
}

func (h *harness) writeLocal(name, contents string) string {
	h.t.Helper()
	p := filepath.Join(h.local, name)
	require.NoError(h.t, os.MkdirAll(filepath.Dir(p), 0700))
	require.NoError(h.t, os.WriteFile(p, []byte(contents), 0600))
	return p
}

func TestCommandsNeedLogin(t *testing.T) {
	h := newHarness(t)

	code, req := h.run("ls")
	assert.Equal(t, cmdline.ExitNotLoggedIn, code)
	assert.Contains(t, req.errOut.String(), "Not logged in.")

	code, _ = h.run("lpwd")
	assert.Equal(t, cmdline.ExitOK, code)

	code, req = h.run("frobnicate")
	assert.Equal(t, cmdline.ExitArgs, code)
	assert.Contains(t, req.errOut.String(), "Command not found: frobnicate")
}

func TestInvalidOptionPrintsUsage(t *testing.T) {
	h := newHarness(t)
	code, req := h.run("version --bogus")
	assert.Equal(t, cmdline.ExitArgs, code)
	assert.Contains(t, req.errOut.String(), "Invalid argument: bogus")
	assert.Contains(t, req.errOut.String(), Usage("version"))

	code, req = h.run("version --help")
	assert.Equal(t, cmdline.ExitOK, code)
	assert.Contains(t, req.out.String(), "Usage: version")
}

func TestLoginUpdatesPrompt(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, loggedOutPrompt, h.ex.Prompt())

	h.login()
	assert.Equal(t, "user@example.com:/$ ", h.ex.Prompt())
	assert.NotEmpty(t, h.cfg.Session())

	code, req := h.run("whoami")
	assert.Equal(t, cmdline.ExitOK, code)
	assert.Equal(t, "Account e-mail: user@example.com\n", req.out.String())

	code, req = h.run("login other@example.com pass")
	assert.Equal(t, cmdline.ExitInvalidState, code)
	assert.Contains(t, req.errOut.String(), "Already logged in")

	code, _ = h.run("logout")
	assert.Equal(t, cmdline.ExitOK, code)
	assert.Equal(t, loggedOutPrompt, h.ex.Prompt())
	assert.Empty(t, h.cfg.Session())
}

func TestLoginAsksForPassword(t *testing.T) {
	h := newHarness(t)
	code, req := h.runWith("login user@example.com", &fakeRequest{answers: []string{"secret"}})
	require.Equal(t, cmdline.ExitOK, code)
	assert.Equal(t, []string{"Password:"}, req.asked)

	h.run("logout --keep-session")
	code, req = h.run("login user@example.com wrong")
	assert.Equal(t, -9, code)
	assert.Contains(t, req.errOut.String(), "invalid email or password")
}

func TestResumeSession(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.run("logout --keep-session")
	require.NotEmpty(t, h.cfg.Session())

	require.NoError(t, h.ex.ResumeSession(context.Background()))
	assert.Equal(t, "user@example.com:/$ ", h.ex.Prompt())
}

func TestNavigation(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, _ := h.run("mkdir -p docs/work")
	require.Equal(t, cmdline.ExitOK, code)

	code, req := h.run("mkdir docs")
	assert.Equal(t, cmdline.ExitExists, code)
	assert.Contains(t, req.errOut.String(), "Folder already exists")

	code, _ = h.run("cd docs/work")
	require.Equal(t, cmdline.ExitOK, code)
	_, req = h.run("pwd")
	assert.Equal(t, "/docs/work\n", req.out.String())
	assert.Equal(t, "user@example.com:/docs/work$ ", h.ex.Prompt())

	code, _ = h.run("cd ..")
	require.Equal(t, cmdline.ExitOK, code)
	_, req = h.run("ls")
	assert.Equal(t, "work\n", req.out.String())

	code, req = h.run("cd missing")
	assert.Equal(t, cmdline.ExitNotFound, code)
	assert.Contains(t, req.errOut.String(), "No such file or directory")
}

func TestRemoveFolderConfirmation(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.run("mkdir a")
	h.run("mkdir b")

	code, req := h.run("rm a")
	assert.Equal(t, cmdline.ExitInvalidType, code)
	assert.Contains(t, req.errOut.String(), "Use -r to delete a folder recursively")

	code, req = h.runWith("rm -r a", &fakeRequest{confirms: []cmdline.ConfirmResponse{cmdline.ConfirmNo}})
	assert.Equal(t, cmdline.ExitOK, code)
	require.Len(t, req.asked, 1)
	assert.Contains(t, req.asked[0], "Are you sure to delete a ?")
	_, req = h.run("ls")
	assert.Equal(t, "a\nb\n", req.out.String())

	code, req = h.runWith("rm -r *", &fakeRequest{confirms: []cmdline.ConfirmResponse{cmdline.ConfirmAll}})
	assert.Equal(t, cmdline.ExitOK, code)
	assert.Len(t, req.asked, 1)
	_, req = h.run("ls")
	assert.Empty(t, req.out.String())

	code, _ = h.run("rm -f /")
	assert.Equal(t, cmdline.ExitNotPermitted, code)
}

func TestPutAndGet(t *testing.T) {
	h := newHarness(t)
	h.login()
	src := h.writeLocal("notes.txt", "hello world")

	code, req := h.run("put notes.txt /uploaded.txt")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Contains(t, req.out.String(), "Upload finished: "+src)

	_, req = h.run("cat /uploaded.txt")
	assert.Equal(t, "hello world", req.out.String())

	dest := filepath.Join(h.local, "out")
	require.NoError(t, os.MkdirAll(dest, 0700))
	code, req = h.run("get /uploaded.txt out")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Contains(t, req.out.String(), "Download finished:")

	data, err := os.ReadFile(filepath.Join(dest, "uploaded.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	code, _ = h.run("get /missing.txt")
	assert.Equal(t, cmdline.ExitNotFound, code)

	code, req = h.run("put missing.txt")
	assert.Equal(t, cmdline.ExitNotFound, code)
	assert.Contains(t, req.errOut.String(), "No such file or directory")
}

func TestPutCreatesFolders(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.writeLocal("a.txt", "a")

	code, req := h.run("put a.txt /x/y/")
	assert.Equal(t, cmdline.ExitNotFound, code)
	assert.Contains(t, req.errOut.String(), "Use -c")

	code, req = h.run("put -c a.txt /x/y")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	_, req = h.run("ls /x/y")
	assert.Equal(t, "a.txt\n", req.out.String())
}

func TestCompletedTransfersAreListed(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.writeLocal("f.bin", strings.Repeat("x", 1024))
	code, _ := h.run("put f.bin")
	require.Equal(t, cmdline.ExitOK, code)

	_, req := h.run("transfers --only-completed --col-separator=,")
	assert.Contains(t, req.out.String(), "f.bin")

	found := false
	for _, msg := range h.notifier.messages() {
		if strings.HasPrefix(msg, "endtransfer:") {
			found = true
		}
	}
	assert.True(t, found, "expected an endtransfer broadcast")
}

func TestExport(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.writeLocal("share.txt", "shared")
	h.run("put share.txt")

	code, req := h.run("export -a share.txt")
	assert.Equal(t, cmdline.ExitConfirmNo, code)
	require.NotEmpty(t, req.asked)

	code, req = h.run("export -a -f share.txt")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Contains(t, req.out.String(), "Exported /share.txt: https://mega.nz/file/")

	_, req = h.run("export")
	assert.Contains(t, req.out.String(), "share.txt (shared as exported permanent file link:")

	code, req = h.run("export -d share.txt")
	require.Equal(t, cmdline.ExitOK, code)
	assert.Equal(t, "Disabled export: /share.txt\n", req.out.String())

	_, req = h.run("export")
	assert.Contains(t, req.out.String(), "Couldn't find anything exported below")
}

func TestSyncLifecycle(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.run("mkdir remote")
	require.NoError(t, os.MkdirAll(filepath.Join(h.local, "mirror"), 0700))

	code, req := h.run("sync mirror /remote")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Contains(t, req.out.String(), "Added sync:")

	_, req = h.run("sync --col-separator=,")
	assert.Contains(t, req.out.String(), "LOCALPATH")
	assert.Contains(t, req.out.String(), "Running")

	code, _ = h.run("sync -p mirror")
	require.Equal(t, cmdline.ExitOK, code)
	_, req = h.run("sync mirror --col-separator=,")
	assert.Contains(t, req.out.String(), "Paused")

	code, req = h.run("sync -d mirror")
	require.Equal(t, cmdline.ExitOK, code)
	assert.Contains(t, req.out.String(), "Sync removed:")

	code, _ = h.run("sync -d mirror")
	assert.Equal(t, cmdline.ExitNotFound, code)
}

func TestSyncIgnoreDefault(t *testing.T) {
	h := newHarness(t)
	h.login()

	code, req := h.run("sync-ignore --add -- -f:*.log DEFAULT")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Equal(t, "Added filter -f:*.log\n", req.out.String())

	_, req = h.run("sync-ignore --show")
	assert.Contains(t, req.out.String(), "-f:*.log\n")
	assert.Contains(t, req.out.String(), "-:Thumbs.db\n")

	code, _ = h.run("sync-ignore --add bogus DEFAULT")
	assert.Equal(t, cmdline.ExitArgs, code)

	code, req = h.run("sync-ignore --add-exclusion d:build DEFAULT")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Equal(t, "Added filter -d:build\n", req.out.String())

	code, req = h.run("sync-ignore --remove -- -f:*.log DEFAULT")
	require.Equal(t, cmdline.ExitOK, code)
	assert.Equal(t, "Removed filter -f:*.log\n", req.out.String())
}

func TestExcludeWritesFilters(t *testing.T) {
	h := newHarness(t)
	h.login()
	code, _ := h.run("exclude -a secret.txt")
	require.Equal(t, cmdline.ExitOK, code)

	_, req := h.run("exclude")
	assert.Contains(t, req.out.String(), "secret.txt\n")

	_, req = h.run("sync-ignore --show DEFAULT")
	assert.Contains(t, req.out.String(), "-:secret.txt\n")
}

func TestBackup(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.run("mkdir backups")
	h.writeLocal("data/file.txt", "data")

	code, req := h.run("backup data /backups")
	assert.Equal(t, cmdline.ExitArgs, code)
	assert.Contains(t, req.errOut.String(), "--period")

	code, req = h.run("backup data /backups --period=1d --num-backups=2")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Contains(t, req.out.String(), "Backup established:")
	require.Len(t, h.cfg.Backups(), 1)
	assert.Equal(t, int64(86400), h.cfg.Backups()[0].Period)

	_, req = h.run("backup -l")
	assert.Contains(t, req.out.String(), "LOCALPATH")
	assert.Contains(t, req.out.String(), "Max Backups:   2")

	code, req = h.run("backup data --num-backups=5")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Contains(t, req.out.String(), "Backup configured:")
	require.Len(t, h.cfg.Backups(), 1)
	assert.Equal(t, 5, h.cfg.Backups()[0].NumBackups)
	assert.Equal(t, int64(86400), h.cfg.Backups()[0].Period)

	code, _ = h.run("backup -d data")
	require.Equal(t, cmdline.ExitOK, code)
	assert.Empty(t, h.cfg.Backups())
}

func TestBackupPeriod(t *testing.T) {
	tests := []struct {
		expr   string
		period int64
		cron   string
		ok     bool
	}{
		{"1h", 3600, "", true},
		{"1d2h", 93600, "", true},
		{"0 0 * * * *", 0, "0 0 * * * *", true},
		{"xyz", 0, "", false},
	}
	for _, tt := range tests {
		period, cron, ok := backupPeriod(tt.expr)
		if ok != tt.ok || period != tt.period || cron != tt.cron {
			t.Errorf("backupPeriod(%q): expected (%d, %q, %v), got (%d, %q, %v)",
				tt.expr, tt.period, tt.cron, tt.ok, period, cron, ok)
		}
	}
}

func TestErrorcode(t *testing.T) {
	h := newHarness(t)
	_, req := h.run("errorcode -57")
	assert.Equal(t, "Needs logging in\n", req.out.String())

	_, req = h.run("errorcode 9")
	assert.Equal(t, "Not found\n", req.out.String())

	code, _ := h.run("errorcode abc")
	assert.Equal(t, cmdline.ExitArgs, code)

	code, req = h.run("errorcode -51")
	assert.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Equal(t, "Wrong arguments\n", req.out.String())
}

func TestLogLevels(t *testing.T) {
	h := newHarness(t)
	_, req := h.run("log -c debug")
	assert.Equal(t, "MEGAcmd log level = DEBUG\n", req.out.String())

	_, req = h.run("log")
	assert.Equal(t, "MEGAcmd log level = DEBUG\nSDK log level = ERROR\n", req.out.String())

	code, _ := h.run("log loud")
	assert.Equal(t, cmdline.ExitArgs, code)
}

func TestConfigure(t *testing.T) {
	h := newHarness(t)
	code, req := h.run("configure exported_folders_sdks 3")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())

	_, req = h.run("configure exported_folders_sdks")
	assert.Equal(t, "exported_folders_sdks = 3\n", req.out.String())

	code, _ = h.run("configure exported_folders_sdks 99")
	assert.Equal(t, cmdline.ExitArgs, code)

	code, _ = h.run("configure nope 1")
	assert.Equal(t, cmdline.ExitArgs, code)
}

func TestCompletion(t *testing.T) {
	h := newHarness(t)
	_, req := h.run(`completion "ex"`)
	assert.Equal(t, "exclude\nexit\nexport\n", req.out.String())

	_, req = h.run(`completion "rm -"`)
	assert.Equal(t, "--client-width=\n-f\n-r\n", req.out.String())

	h.login()
	h.run("mkdir photos")
	h.run("mkdir projects")
	_, req = h.run(`completion "cd p"`)
	assert.Equal(t, "photos/\nprojects/\n", req.out.String())
}

func TestSpeedlimitPersists(t *testing.T) {
	h := newHarness(t)
	code, req := h.run("speedlimit -d 1024")
	require.Equal(t, cmdline.ExitOK, code, req.errOut.String())
	assert.Equal(t, "Download speed limit = 1024 B/s\n", req.out.String())
	assert.Equal(t, "1024", h.cfg.GetConfigurationValue(maxSpeedDownloadProperty, ""))

	code, _ = h.run("speedlimit -u fast")
	assert.Equal(t, cmdline.ExitArgs, code)
}

func TestExitRequest(t *testing.T) {
	h := newHarness(t)
	h.run("exit --only-shell")
	select {
	case <-h.ex.Done():
		t.Fatal("exit --only-shell must not stop the server")
	default:
	}
	h.run("quit")
	select {
	case <-h.ex.Done():
	default:
		t.Fatal("expected the server to be asked to exit")
	}
}
