// Package localdrive serves a local directory as the cloud drive. It lets
// every command run without network access: nodes are files under
// <root>/cloud and <root>/rubbish, and transfers are chunked copies.
package localdrive

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"hash/fnv"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cshum/megacmd/megaapi"
	"github.com/sirupsen/logrus"
)

const (
	Version = "1.0.0-localdrive"

	cloudDir   = "cloud"
	rubbishDir = "rubbish"

	accountsFile = "accounts.json"
	sessionsFile = "sessions.json"
	exportsFile  = "exports.json"
	syncsFile    = "syncs.json"
	secretFile   = "secret"
)

type Drive struct {
	root   string
	logger logrus.FieldLogger
	secret []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	email    string
	session  string
	fetched  bool
	index    map[megaapi.Handle]string
	exports  map[string]*exportInfo
	syncs    []*megaapi.Sync
	stalls   []megaapi.SyncStall
	scanning bool
	waiting  bool
	backups  map[int]*backupJob
	lruSize  uint64
	sdks     uint64

	listenersMu       sync.RWMutex
	transferListeners []megaapi.TransferListener
	globalListeners   []megaapi.GlobalListener

	nextTag     atomic.Int64
	transfersMu sync.Mutex
	transfers   map[int]*transfer
	paused      [2]bool
	speeds      [2]int64
	connections [2]int
	limiters    [2]*limiter
}

// New opens the drive at root, creating it if needed.
func New(root string, logger logrus.FieldLogger) (*Drive, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Drive{
		root:        root,
		logger:      logger.WithField("provider", "local"),
		ctx:         ctx,
		cancel:      cancel,
		index:       make(map[megaapi.Handle]string),
		exports:     make(map[string]*exportInfo),
		backups:     make(map[int]*backupJob),
		transfers:   make(map[int]*transfer),
		connections: [2]int{4, 6},
		limiters:    [2]*limiter{newLimiter(), newLimiter()},
	}
	secret, err := d.loadSecret()
	if err != nil {
		cancel()
		return nil, err
	}
	d.secret = secret
	return d, nil
}

func (d *Drive) Version() string {
	return Version
}

// Close stops the running transfers and backup schedules.
func (d *Drive) Close() error {
	d.mu.Lock()
	for _, job := range d.backups {
		job.stop()
	}
	d.mu.Unlock()
	d.cancel()
	return nil
}

func (d *Drive) Root() string {
	return d.root
}

func (d *Drive) loadSecret() ([]byte, error) {
	p := filepath.Join(d.root, secretFile)
	if b, err := os.ReadFile(p); err == nil && len(b) == 32 {
		return b, nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, os.WriteFile(p, b, 0600)
}

// handleOf hashes a slash path relative to the drive root.
func handleOf(rel string) megaapi.Handle {
	h := fnv.New64a()
	h.Write([]byte(rel))
	v := megaapi.Handle(h.Sum64())
	if v == megaapi.UndefHandle {
		v--
	}
	return v
}

func (d *Drive) abs(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

func parentRel(rel string) string {
	if rel == cloudDir || rel == rubbishDir {
		return ""
	}
	return path.Dir(rel)
}

func (d *Drive) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (d *Drive) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(d.root, name), data, 0600)
}

// codeOf maps filesystem errors to SDK error codes.
func codeOf(err error, fallback megaapi.ErrorCode) error {
	if err == nil {
		return nil
	}
	var code megaapi.ErrorCode
	if errors.As(err, &code) {
		return code
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return megaapi.ENOENT
	case errors.Is(err, fs.ErrExist):
		return megaapi.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return megaapi.EACCESS
	case errors.Is(err, context.Canceled):
		return megaapi.EINCOMPLETE
	}
	return fallback
}

func (d *Drive) AddTransferListener(l megaapi.TransferListener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.transferListeners = append(d.transferListeners, l)
}

func (d *Drive) RemoveTransferListener(l megaapi.TransferListener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	for i, x := range d.transferListeners {
		if x == l {
			d.transferListeners = append(d.transferListeners[:i], d.transferListeners[i+1:]...)
			return
		}
	}
}

func (d *Drive) AddGlobalListener(l megaapi.GlobalListener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.globalListeners = append(d.globalListeners, l)
}

func (d *Drive) RemoveGlobalListener(l megaapi.GlobalListener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	for i, x := range d.globalListeners {
		if x == l {
			d.globalListeners = append(d.globalListeners[:i], d.globalListeners[i+1:]...)
			return
		}
	}
}

func (d *Drive) globals() []megaapi.GlobalListener {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	return append([]megaapi.GlobalListener(nil), d.globalListeners...)
}

func (d *Drive) transferGlobals() []megaapi.TransferListener {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	return append([]megaapi.TransferListener(nil), d.transferListeners...)
}

func (d *Drive) notifyNodes(nodes ...*megaapi.Node) {
	for _, l := range d.globals() {
		l.OnNodesUpdate(d, nodes)
	}
}

func (d *Drive) notifySync(s *megaapi.Sync) {
	for _, l := range d.globals() {
		l.OnSyncStateChanged(d, s)
	}
}

func (d *Drive) notifyGlobalSyncState() {
	for _, l := range d.globals() {
		l.OnGlobalSyncStateChanged(d)
	}
}

func (d *Drive) SetLRUCacheSize(n uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lruSize = n
}

func (d *Drive) SetExportedFoldersSDKs(n uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sdks = n
}

// Settings returns the values last set through the configurators.
func (d *Drive) Settings() (lruSize, exportedSDKs uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lruSize, d.sdks
}

var _ megaapi.API = (*Drive)(nil)
