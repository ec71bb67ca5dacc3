package localdrive

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/cshum/megacmd/megaapi"
	"github.com/cshum/megacmd/pkg/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type account struct {
	Salt string `json:"salt"`
	Hash string `json:"hash"`
}

func hashPassword(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return hex.EncodeToString(sum[:])
}

// Login checks the password against the account store. The first login of
// an email creates its account.
func (d *Drive) Login(ctx context.Context, email, password string) error {
	if !strings.Contains(email, "@") {
		return megaapi.EARGS
	}
	email = strings.ToLower(email)

	d.mu.Lock()
	defer d.mu.Unlock()

	accounts := make(map[string]account)
	if err := d.readJSON(accountsFile, &accounts); err != nil {
		return megaapi.EINTERNAL
	}
	acc, ok := accounts[email]
	if !ok {
		salt := make([]byte, 16)
		rand.Read(salt)
		acc = account{Salt: hex.EncodeToString(salt)}
		acc.Hash = hashPassword(acc.Salt, password)
		accounts[email] = acc
		if err := d.writeJSON(accountsFile, accounts); err != nil {
			return codeOf(err, megaapi.EWRITE)
		}
		d.logger.WithField("email", email).Info("Account created")
	} else if subtle.ConstantTimeCompare([]byte(acc.Hash), []byte(hashPassword(acc.Salt, password))) != 1 {
		return megaapi.ENOENT
	}

	sessions := make(map[string]string)
	d.readJSON(sessionsFile, &sessions)
	token := uuid.NewString()
	sessions[token] = email
	if err := d.writeJSON(sessionsFile, sessions); err != nil {
		return codeOf(err, megaapi.EWRITE)
	}

	d.email = email
	d.session = token
	d.fetched = false
	return nil
}

func (d *Drive) FastLogin(ctx context.Context, session string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sessions := make(map[string]string)
	if err := d.readJSON(sessionsFile, &sessions); err != nil {
		return megaapi.EINTERNAL
	}
	email, ok := sessions[session]
	if !ok {
		return megaapi.ESID
	}
	d.email = email
	d.session = session
	d.fetched = false
	return nil
}

// Logout ends the session. Unless keepSession is set the session can no
// longer be resumed.
func (d *Drive) Logout(ctx context.Context, keepSession bool) error {
	if !d.IsLoggedIn() {
		return megaapi.EACCESS
	}
	d.cancelAllTransfers()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !keepSession {
		sessions := make(map[string]string)
		d.readJSON(sessionsFile, &sessions)
		delete(sessions, d.session)
		if err := d.writeJSON(sessionsFile, sessions); err != nil {
			d.logger.Errorf("Could not invalidate session: %v", err)
		}
	}
	d.resetLocked()
	return nil
}

func (d *Drive) LocalLogout(ctx context.Context) error {
	d.cancelAllTransfers()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
	return nil
}

func (d *Drive) resetLocked() {
	for _, job := range d.backups {
		job.stop()
	}
	d.backups = make(map[int]*backupJob)
	d.email = ""
	d.session = ""
	d.fetched = false
	d.index = make(map[megaapi.Handle]string)
	d.exports = make(map[string]*exportInfo)
	d.syncs = nil
	d.stalls = nil
}

func (d *Drive) DumpSession() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

func (d *Drive) IsLoggedIn() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.email != ""
}

func (d *Drive) MyEmail() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.email
}

// FetchNodes loads the node tree, exports and syncs of the drive.
func (d *Drive) FetchNodes(ctx context.Context) error {
	if !d.IsLoggedIn() {
		return megaapi.EACCESS
	}
	for _, dir := range []string{cloudDir, rubbishDir} {
		if err := os.MkdirAll(d.abs(dir), 0700); err != nil {
			return codeOf(err, megaapi.EWRITE)
		}
	}

	d.mu.Lock()
	d.index = make(map[megaapi.Handle]string)
	for _, top := range []string{cloudDir, rubbishDir} {
		d.index[handleOf(top)] = top
		files, err := utils.GetLocalFiles(d.abs(top))
		if err != nil {
			d.mu.Unlock()
			return codeOf(err, megaapi.EREAD)
		}
		for _, f := range files {
			rel := top + "/" + f.RelPath
			d.index[handleOf(rel)] = rel
		}
	}
	exports := make(map[string]*exportInfo)
	d.readJSON(exportsFile, &exports)
	d.exports = exports

	var syncs []*megaapi.Sync
	d.readJSON(syncsFile, &syncs)
	d.syncs = syncs
	d.fetched = true
	count := len(d.index)
	d.mu.Unlock()

	d.logger.WithFields(logrus.Fields{"nodes": count, "root": filepath.Clean(d.root)}).Debug("Nodes fetched")
	d.notifyNodes()
	return nil
}

func (d *Drive) AccountDetails(ctx context.Context) (*megaapi.AccountDetails, error) {
	if !d.IsLoggedIn() {
		return nil, megaapi.EACCESS
	}
	details := &megaapi.AccountDetails{StorageMax: 20 << 30}
	for _, top := range []string{cloudDir, rubbishDir} {
		files, err := utils.GetLocalFiles(d.abs(top))
		if err != nil {
			return nil, codeOf(err, megaapi.EREAD)
		}
		for _, f := range files {
			if f.IsDir {
				details.FolderCount++
			} else {
				details.FileCount++
			}
		}
		details.StorageUsed += utils.TotalSize(files)
	}
	return details, nil
}
