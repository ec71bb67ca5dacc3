package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultSocketName = "megacmd.socket"
	// sun_path holds 108 bytes including the terminating NUL.
	maxSocketPathLen = 107
)

// Dirs are the folders MEGAcmd keeps its state in.
type Dirs struct {
	ConfigDir  string
	RuntimeDir string
	CacheDir   string
}

func tmpDir() string {
	return fmt.Sprintf("/tmp/megacmd-%d", os.Getuid())
}

func homeConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		return ""
	}
	name := ".megaCmd"
	if suffix := os.Getenv("MEGACMD_WORKING_FOLDER_SUFFIX"); suffix != "" {
		name += "_" + suffix
	}
	return filepath.Join(home, name)
}

// PlatformDirs resolves the directories following the XDG base directory
// variables, falling back to ~/.megaCmd and then to /tmp/megacmd-<uid>.
func PlatformDirs() Dirs {
	var d Dirs

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		d.ConfigDir = filepath.Join(xdg, "megacmd")
	} else if home := homeConfigDir(); home != "" {
		d.ConfigDir = home
	} else {
		d.ConfigDir = tmpDir()
	}

	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		d.RuntimeDir = filepath.Join(xdg, "megacmd")
	} else {
		d.RuntimeDir = tmpDir()
	}

	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		d.CacheDir = filepath.Join(xdg, "megacmd")
	} else if home := homeConfigDir(); home != "" {
		d.CacheDir = home
	} else {
		d.CacheDir = tmpDir()
	}

	return d
}

// SocketPath is where the server listens. Paths too long for a unix socket
// fall back to the temporary directory.
func (d Dirs) SocketPath() string {
	name := os.Getenv("MEGACMD_SOCKET_NAME")
	if name == "" {
		name = DefaultSocketName
	}
	path := filepath.Join(d.RuntimeDir, name)
	if len(path) > maxSocketPathLen {
		path = filepath.Join(tmpDir(), name)
	}
	return path
}

// Create makes sure every directory exists, readable only by the user.
func (d Dirs) Create() error {
	for _, dir := range []string{d.ConfigDir, d.RuntimeDir, d.CacheDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func (d Dirs) Subdir(name string) (string, error) {
	dir := filepath.Join(d.ConfigDir, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
