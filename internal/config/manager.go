package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	sessionFileName    = "session"
	propertiesFileName = "megacmd.cfg"
	versionFileName    = "megacmd.version"
)

// persistentKeys survive ClearConfigurationFile, which runs on logout.
var persistentKeys = []string{"autoupdate", "updaterregistered"}

// Manager owns the server side state files: session, megacmd.cfg
// properties, backup and sync definitions, the version file and the
// execution lock.
type Manager struct {
	dirs   Dirs
	logger logrus.FieldLogger

	mu             sync.Mutex
	session        string
	hasBeenUpdated bool
	lockFile       *os.File
	backups        map[string]*BackupDefinition
	syncs          map[string]*SyncDefinition
}

func NewManager(dirs Dirs, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		dirs:    dirs,
		logger:  logger.WithField("component", "config"),
		backups: make(map[string]*BackupDefinition),
		syncs:   make(map[string]*SyncDefinition),
	}
}

func (m *Manager) Dirs() Dirs {
	return m.dirs
}

func (m *Manager) ConfigDir() string {
	return m.dirs.ConfigDir
}

// LoadConfiguration creates the directories, reads the saved session and
// records version as the last version run.
func (m *Manager) LoadConfiguration(version string) error {
	if err := m.dirs.Create(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if line, err := firstLine(filepath.Join(m.dirs.ConfigDir, sessionFileName)); err == nil {
		m.session = line
		if len(line) > 5 {
			m.logger.Debugf("Session read from configuration: %s...", line[:5])
		}
	}

	versionPath := filepath.Join(m.dirs.ConfigDir, versionFileName)
	if last, err := firstLine(versionPath); err == nil && last != "" && last != version {
		m.hasBeenUpdated = true
		m.logger.WithFields(logrus.Fields{"from": last, "to": version}).Info("MEGAcmd has been updated")
	}
	if err := os.WriteFile(versionPath, []byte(version+"\n"), 0600); err != nil {
		m.logger.Errorf("Could not write MEGAcmd version to %s: %v", versionPath, err)
	}

	if err := m.loadBackups(); err != nil {
		m.logger.Warnf("Could not load backups: %v", err)
	}
	if err := m.loadSyncs(); err != nil {
		m.logger.Warnf("Could not load syncs: %v", err)
	}
	return nil
}

// UnloadConfiguration forgets the in memory session and definitions, as done
// on logout.
func (m *Manager) UnloadConfiguration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = ""
	m.backups = make(map[string]*BackupDefinition)
	m.syncs = make(map[string]*SyncDefinition)
}

func (m *Manager) HasBeenUpdated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasBeenUpdated
}

func (m *Manager) Session() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Manager) SaveSession(session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	path := filepath.Join(m.dirs.ConfigDir, sessionFileName)
	if err := os.WriteFile(path, []byte(session+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (m *Manager) RemoveSessionFile() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = ""
	err := os.Remove(filepath.Join(m.dirs.ConfigDir, sessionFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (m *Manager) propertiesPath() string {
	return filepath.Join(m.dirs.ConfigDir, propertiesFileName)
}

// SaveProperty sets key to value in megacmd.cfg, replacing the first line
// defining key or appending one. It returns the previous value.
func (m *Manager) SaveProperty(key, value string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines, err := readLines(m.propertiesPath())
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	var out []string
	var prev string
	found := false
	for _, line := range lines {
		if line == "" || line[0] == '#' {
			out = append(out, line)
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if ok && !found && strings.TrimRight(k, " ") == key {
			prev = v
			found = true
			out = append(out, key+"="+value)
			continue
		}
		out = append(out, line)
	}
	if !found {
		out = append(out, key+"="+value)
	}
	return prev, writeLines(m.propertiesPath(), out)
}

// GetConfigurationValue returns the value of key in megacmd.cfg with spaces
// and one pair of surrounding quotes trimmed, or def.
func (m *Manager) GetConfigurationValue(key, def string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := propertyFromFile(m.propertiesPath(), key); ok {
		return v
	}
	return def
}

func (m *Manager) HasProperty(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := propertyFromFile(m.propertiesPath(), key)
	return ok
}

// Properties returns every key defined in megacmd.cfg.
func (m *Manager) Properties() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	props := make(map[string]string)
	lines, _ := readLines(m.propertiesPath())
	for _, line := range lines {
		if line == "" || line[0] == '#' {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok && v != "" {
			props[strings.TrimRight(k, " ")] = trimProperty(v)
		}
	}
	return props
}

// ClearConfigurationFile drops every property but the persistent ones.
// Comments are kept.
func (m *Manager) ClearConfigurationFile() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines, err := readLines(m.propertiesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var out []string
	for _, line := range lines {
		k, _, ok := strings.Cut(line, "=")
		if line == "" || line[0] == '#' || !ok {
			out = append(out, line)
			continue
		}
		for _, p := range persistentKeys {
			if strings.TrimRight(k, " ") == p {
				out = append(out, line)
			}
		}
	}
	return writeLines(m.propertiesPath(), out)
}

func trimProperty(v string) string {
	v = strings.Trim(v, " ")
	if len(v) > 1 && (v[0] == '\'' || v[0] == '"') {
		q := v[:1]
		v = strings.TrimRight(strings.TrimLeft(v, q), q)
	}
	return v
}

// propertyFromFile finds name in a key=value file. Lines starting with '#'
// and keys with an empty value are ignored.
func propertyFromFile(path, name string) (string, bool) {
	lines, err := readLines(path)
	if err != nil {
		return "", false
	}
	for _, line := range lines {
		if line == "" || line[0] == '#' {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || v == "" {
			continue
		}
		if strings.TrimRight(k, " ") == name {
			return trimProperty(v), true
		}
	}
	return "", false
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0600)
}

func firstLine(path string) (string, error) {
	lines, err := readLines(path)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.TrimSpace(lines[0]), nil
}
