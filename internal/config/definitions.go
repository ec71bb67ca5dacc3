package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	backupsFileName = "backups.yaml"
	syncsFileName   = "syncs.yaml"
)

// BackupDefinition is a configured backup. ID and Tag are runtime values and
// are reset to -1 when loaded.
type BackupDefinition struct {
	LocalPath  string `yaml:"localpath"`
	Handle     uint64 `yaml:"handle"`
	NumBackups int    `yaml:"numbackups"`
	Period     int64  `yaml:"period"`
	CronPeriod string `yaml:"speriod,omitempty"`
	ID         int64  `yaml:"-"`
	Tag        int    `yaml:"-"`
}

// SyncDefinition is a legacy sync saved before syncs were kept by the SDK.
type SyncDefinition struct {
	LocalPath   string `yaml:"localpath"`
	Handle      uint64 `yaml:"handle"`
	Fingerprint int64  `yaml:"fingerprint"`
	Active      bool   `yaml:"active"`
}

func (m *Manager) backupsPath() string {
	return filepath.Join(m.dirs.ConfigDir, backupsFileName)
}

func (m *Manager) syncsPath() string {
	return filepath.Join(m.dirs.ConfigDir, syncsFileName)
}

func (m *Manager) loadBackups() error {
	var defs map[string]*BackupDefinition
	if err := readYAML(m.backupsPath(), &defs); err != nil {
		return err
	}
	m.backups = make(map[string]*BackupDefinition, len(defs))
	for path, d := range defs {
		if d == nil {
			continue
		}
		d.ID = -1
		d.Tag = -1
		if d.LocalPath == "" {
			d.LocalPath = path
		}
		m.backups[path] = d
	}
	return nil
}

func (m *Manager) loadSyncs() error {
	var defs map[string]*SyncDefinition
	if err := readYAML(m.syncsPath(), &defs); err != nil {
		return err
	}
	m.syncs = make(map[string]*SyncDefinition, len(defs))
	for path, d := range defs {
		if d != nil {
			m.syncs[path] = d
		}
	}
	return nil
}

// Backups returns the configured backups sorted by local path.
func (m *Manager) Backups() []*BackupDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*BackupDefinition, 0, len(m.backups))
	for _, d := range m.backups {
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalPath < out[j].LocalPath })
	return out
}

func (m *Manager) SaveBackup(d BackupDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups[d.LocalPath] = &d
	return writeYAML(m.backupsPath(), m.backups)
}

func (m *Manager) RemoveBackup(localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.backups[localPath]; !ok {
		return fmt.Errorf("backup %s not found", localPath)
	}
	delete(m.backups, localPath)
	return writeYAML(m.backupsPath(), m.backups)
}

// LegacySyncs returns the syncs configured by older versions.
func (m *Manager) LegacySyncs() []*SyncDefinition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*SyncDefinition, 0, len(m.syncs))
	for _, d := range m.syncs {
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalPath < out[j].LocalPath })
	return out
}

func (m *Manager) SaveLegacySync(d SyncDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs[d.LocalPath] = &d
	return writeYAML(m.syncsPath(), m.syncs)
}

// ClearLegacySyncs drops the legacy definitions once they have been resumed
// into the SDK.
func (m *Manager) ClearLegacySyncs() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs = make(map[string]*SyncDefinition)
	err := os.Remove(m.syncsPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func readYAML(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func writeYAML(path string, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
