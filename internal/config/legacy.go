package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cshum/megacmd/internal/syncignore"
)

const (
	legacyExcludedFileName  = "excluded"
	legacyExcludedRenamedTo = ".excluded"
)

// TransitionLegacyExclusionRules ports the names in the legacy excluded file
// to the default .megaignore. It returns the message for the user, or "" when
// there was nothing to port.
func (m *Manager) TransitionLegacyExclusionRules() (string, error) {
	legacy := filepath.Join(m.dirs.ConfigDir, legacyExcludedFileName)
	names, err := readLines(legacy)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	if err := syncignore.CreateDefaultFile(m.dirs.ConfigDir); err != nil {
		return "", err
	}
	defaultPath := syncignore.DefaultPath(m.dirs.ConfigDir)
	f, err := syncignore.OpenOrCreate(defaultPath)
	if err != nil {
		return "", err
	}

	var filters []string
	for _, name := range names {
		if name == "" {
			continue
		}
		filter := syncignore.FilterFromLegacyPattern(name)
		if !f.Contains(filter) {
			filters = append(filters, filter)
		}
	}
	if len(filters) > 0 {
		if err := f.AddFilters(filters); err != nil {
			return "", err
		}
	}

	if err := os.Rename(legacy, filepath.Join(m.dirs.ConfigDir, legacyExcludedRenamedTo)); err != nil {
		m.logger.Errorf("Could not rename legacy exclusion file: %v", err)
	}
	m.logger.WithField("filters", len(filters)).Info("Legacy exclusion rules ported")

	return fmt.Sprintf("Your legacy sync exclusion rules have been ported to %q\nSee \"sync-ignore\" for more info.", defaultPath), nil
}
