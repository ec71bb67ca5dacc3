package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cshum/megacmd/internal/syncignore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	m := NewManager(Dirs{
		ConfigDir:  filepath.Join(root, "config"),
		RuntimeDir: filepath.Join(root, "run"),
		CacheDir:   filepath.Join(root, "cache"),
	}, nil)
	if err := m.LoadConfiguration("2.0.0"); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestPlatformDirs(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	t.Setenv("XDG_CACHE_HOME", "")
	t.Setenv("HOME", "/home/alice")
	t.Setenv("MEGACMD_WORKING_FOLDER_SUFFIX", "work")

	d := PlatformDirs()
	if d.ConfigDir != "/home/alice/.megaCmd_work" {
		t.Errorf("expected /home/alice/.megaCmd_work, got %s", d.ConfigDir)
	}
	if d.RuntimeDir != "/run/user/1000/megacmd" {
		t.Errorf("expected /run/user/1000/megacmd, got %s", d.RuntimeDir)
	}
	if d.CacheDir != d.ConfigDir {
		t.Errorf("expected cache dir to default to config dir, got %s", d.CacheDir)
	}
}

func TestSocketPathFallsBackWhenTooLong(t *testing.T) {
	t.Setenv("MEGACMD_SOCKET_NAME", "")
	d := Dirs{RuntimeDir: "/" + strings.Repeat("x", 120)}
	if got := d.SocketPath(); got != filepath.Join(tmpDir(), DefaultSocketName) {
		t.Errorf("expected fallback socket path, got %s", got)
	}

	t.Setenv("MEGACMD_SOCKET_NAME", "other.socket")
	d = Dirs{RuntimeDir: "/run/megacmd"}
	if got := d.SocketPath(); got != "/run/megacmd/other.socket" {
		t.Errorf("expected /run/megacmd/other.socket, got %s", got)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	m := newTestManager(t)
	if err := m.SaveSession("abcdefgh"); err != nil {
		t.Fatal(err)
	}

	reloaded := NewManager(m.Dirs(), nil)
	if err := reloaded.LoadConfiguration("2.0.0"); err != nil {
		t.Fatal(err)
	}
	if reloaded.Session() != "abcdefgh" {
		t.Errorf("expected session abcdefgh, got %q", reloaded.Session())
	}

	if err := reloaded.RemoveSessionFile(); err != nil {
		t.Fatal(err)
	}
	if reloaded.Session() != "" {
		t.Errorf("expected empty session after removal")
	}
	if err := reloaded.RemoveSessionFile(); err != nil {
		t.Errorf("expected removing a missing session to succeed, got %v", err)
	}
}

func TestHasBeenUpdated(t *testing.T) {
	m := newTestManager(t)
	if m.HasBeenUpdated() {
		t.Errorf("expected first run not to count as an update")
	}

	same := NewManager(m.Dirs(), nil)
	same.LoadConfiguration("2.0.0")
	if same.HasBeenUpdated() {
		t.Errorf("expected same version not to count as an update")
	}

	newer := NewManager(m.Dirs(), nil)
	newer.LoadConfiguration("2.1.0")
	if !newer.HasBeenUpdated() {
		t.Errorf("expected version change to count as an update")
	}
}

func TestSaveProperty(t *testing.T) {
	m := newTestManager(t)

	prev, err := m.SaveProperty("autoupdate", "1")
	if err != nil {
		t.Fatal(err)
	}
	if prev != "" {
		t.Errorf("expected no previous value, got %q", prev)
	}
	prev, _ = m.SaveProperty("autoupdate", "0")
	if prev != "1" {
		t.Errorf("expected previous value 1, got %q", prev)
	}
	if got := m.GetConfigurationValue("autoupdate", "x"); got != "0" {
		t.Errorf("expected 0, got %q", got)
	}
	if got := m.GetConfigurationValue("missing", "def"); got != "def" {
		t.Errorf("expected default, got %q", got)
	}
}

func TestGetConfigurationValueTrimsQuotes(t *testing.T) {
	m := newTestManager(t)
	contents := "# comment\nname =  \"quoted value\"  \nsingle='x'\nempty=\ncount=42\n"
	if err := os.WriteFile(m.propertiesPath(), []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key      string
		expected string
	}{
		{"name", "quoted value"},
		{"single", "x"},
		{"empty", "def"},
		{"# comment", "def"},
	}
	for _, tt := range tests {
		if got := m.GetConfigurationValue(tt.key, "def"); got != tt.expected {
			t.Errorf("%s: expected %q, got %q", tt.key, tt.expected, got)
		}
	}
	if got := m.GetInt64("count", 0); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := m.GetUint("name", 7); got != 7 {
		t.Errorf("expected default 7 for non numeric value, got %d", got)
	}
}

func TestClearConfigurationFileKeepsPersistentKeys(t *testing.T) {
	m := newTestManager(t)
	contents := "# keep me\nautoupdate=1\nstalled_issues_warning=1\nupdaterregistered=1\n"
	if err := os.WriteFile(m.propertiesPath(), []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	if err := m.ClearConfigurationFile(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(m.propertiesPath())
	expected := "# keep me\nautoupdate=1\nupdaterregistered=1\n"
	if string(data) != expected {
		t.Errorf("expected %q, got %q", expected, data)
	}
	if m.GetBool("stalled_issues_warning", false) {
		t.Errorf("expected cleared property to be gone")
	}
	if !m.GetBool("autoupdate", false) {
		t.Errorf("expected autoupdate to survive")
	}
}

func TestBackupDefinitionsReloadWithResetIDs(t *testing.T) {
	m := newTestManager(t)
	def := BackupDefinition{LocalPath: "/data/photos", Handle: 42, NumBackups: 3, Period: 600, ID: 9, Tag: 9}
	if err := m.SaveBackup(def); err != nil {
		t.Fatal(err)
	}

	reloaded := NewManager(m.Dirs(), nil)
	reloaded.LoadConfiguration("2.0.0")
	backups := reloaded.Backups()
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(backups))
	}
	b := backups[0]
	if b.LocalPath != "/data/photos" || b.Handle != 42 || b.NumBackups != 3 || b.Period != 600 {
		t.Errorf("unexpected backup %+v", b)
	}
	if b.ID != -1 || b.Tag != -1 {
		t.Errorf("expected runtime ids to be reset, got id=%d tag=%d", b.ID, b.Tag)
	}

	if err := reloaded.RemoveBackup("/data/photos"); err != nil {
		t.Fatal(err)
	}
	if err := reloaded.RemoveBackup("/data/photos"); err == nil {
		t.Errorf("expected removing an unknown backup to fail")
	}
}

func TestLockExecution(t *testing.T) {
	m := newTestManager(t)
	if err := m.LockExecution(); err != nil {
		t.Fatal(err)
	}
	defer m.UnlockExecution()

	other := NewManager(m.Dirs(), nil)
	if err := other.LockExecution(); err != ErrAlreadyRunning {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	m.UnlockExecution()
	if err := other.LockExecution(); err != nil {
		t.Errorf("expected lock after release, got %v", err)
	}
	other.UnlockExecution()
}

func TestTransitionLegacyExclusionRules(t *testing.T) {
	m := newTestManager(t)
	legacy := filepath.Join(m.ConfigDir(), "excluded")
	if err := os.WriteFile(legacy, []byte("*.bak\nbuild/out\n\n"), 0600); err != nil {
		t.Fatal(err)
	}

	msg, err := m.TransitionLegacyExclusionRules()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(msg, "sync-ignore") {
		t.Errorf("unexpected message %q", msg)
	}
	f := syncignore.Open(syncignore.DefaultPath(m.ConfigDir()))
	if !f.Contains("-:*.bak") || !f.Contains("-p:build/out") {
		t.Errorf("expected ported filters, got %q", f.Filters())
	}
	if _, err := os.Stat(legacy); !os.IsNotExist(err) {
		t.Errorf("expected legacy file to be renamed")
	}
	if _, err := os.Stat(filepath.Join(m.ConfigDir(), ".excluded")); err != nil {
		t.Errorf("expected .excluded to exist: %v", err)
	}

	msg, err = m.TransitionLegacyExclusionRules()
	if err != nil || msg != "" {
		t.Errorf("expected nothing to port the second time, got %q %v", msg, err)
	}
}

func TestConfiguratorValidation(t *testing.T) {
	c, ok := GetConfigurator("exported_folders_sdks")
	if !ok {
		t.Fatal("expected exported_folders_sdks configurator")
	}
	tests := []struct {
		value string
		valid bool
	}{
		{"0", true},
		{"20", true},
		{"21", false},
		{"-1", false},
		{"abc", false},
	}
	for _, tt := range tests {
		if err := c.Validate(tt.value); (err == nil) != tt.valid {
			t.Errorf("%s: expected valid=%v, got %v", tt.value, tt.valid, err)
		}
	}

	m := newTestManager(t)
	if err := m.Configure(nil, "max_nodes_in_cache", "5000"); err != nil {
		t.Fatal(err)
	}
	if got := m.GetUint("max_nodes_in_cache", 0); got != 5000 {
		t.Errorf("expected 5000, got %d", got)
	}
	if err := m.Configure(nil, "nope", "1"); err == nil {
		t.Errorf("expected unknown key to fail")
	}
}

func TestClientConfigLocalOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	work := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(work); err != nil {
		t.Fatal(err)
	}

	c := Load(dir)
	if got := c.GetString("provider", ""); got != "local" {
		t.Errorf("expected default provider local, got %s", got)
	}
	if err := c.Set("events_addr", "127.0.0.1:9000", false); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("events_addr", "127.0.0.1:9001", true); err != nil {
		t.Fatal(err)
	}

	reloaded := Load(dir)
	if got := reloaded.GetString("events_addr", ""); got != "127.0.0.1:9001" {
		t.Errorf("expected local value, got %s", got)
	}
}

func TestClientConfigFallbacks(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	defer os.Chdir(wd)
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	c := Load(dir)
	if got := c.GetString("provider", "other"); got != "other" {
		t.Errorf("expected caller default to win over built-in one, got %s", got)
	}
	if got := c.GetString("update_url", ""); got != "" {
		t.Errorf("expected empty update_url, got %s", got)
	}
	if err := c.Set("update_url", "http://127.0.0.1/release.json", false); err != nil {
		t.Fatal(err)
	}
	if got := Load(dir).GetString("update_url", "x"); got != "http://127.0.0.1/release.json" {
		t.Errorf("expected saved update_url, got %s", got)
	}
	if err := c.Unset("update_url", false); err != nil {
		t.Fatal(err)
	}
	if got := Load(dir).GetString("update_url", "x"); got != "x" {
		t.Errorf("expected update_url to be unset, got %s", got)
	}
}
