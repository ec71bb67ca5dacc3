package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const lockFileName = "lockMCMD"

var ErrAlreadyRunning = errors.New("another instance of MEGAcmd server is running")

// LockExecution takes an exclusive lock on the runtime dir so that only one
// server runs per user.
func (m *Manager) LockExecution() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lockFile != nil {
		return nil
	}
	if err := os.MkdirAll(m.dirs.RuntimeDir, 0700); err != nil {
		return err
	}
	path := filepath.Join(m.dirs.RuntimeDir, lockFileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	m.lockFile = f
	m.logger.Debugf("Execution lock taken: %s", path)
	return nil
}

func (m *Manager) UnlockExecution() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lockFile == nil {
		return nil
	}
	err := unix.Flock(int(m.lockFile.Fd()), unix.LOCK_UN)
	m.lockFile.Close()
	m.lockFile = nil
	return err
}
