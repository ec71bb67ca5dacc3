package localdrive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cshum/megacmd/megaapi"
)

// SyncFolder registers a sync between localPath and n. The drive keeps the
// registration and its run state; it does not move files.
func (d *Drive) SyncFolder(ctx context.Context, localPath string, n *megaapi.Node) (*megaapi.Sync, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, megaapi.ENOENT
	}
	if !info.IsDir() || !n.IsFolder() {
		return nil, megaapi.EARGS
	}
	localPath, _ = filepath.Abs(localPath)

	d.mu.Lock()
	for _, s := range d.syncs {
		if s.LocalPath == localPath || s.RemoteHandle == n.Handle {
			d.mu.Unlock()
			return nil, megaapi.EEXIST
		}
	}
	s := &megaapi.Sync{
		BackupID:     handleOf("sync:" + localPath + ":" + n.Handle.Base64()),
		Name:         filepath.Base(localPath),
		LocalPath:    localPath,
		RemoteHandle: n.Handle,
		RunState:     megaapi.SyncRunning,
		Type:         megaapi.SyncTwoWay,
	}
	d.syncs = append(d.syncs, s)
	err = d.writeJSON(syncsFile, d.syncs)
	d.mu.Unlock()
	if err != nil {
		return nil, codeOf(err, megaapi.EWRITE)
	}

	c := *s
	c.RemotePath = d.NodePath(n)
	d.notifySync(&c)
	return &c, nil
}

func (d *Drive) Syncs() []*megaapi.Sync {
	d.mu.RLock()
	list := make([]megaapi.Sync, 0, len(d.syncs))
	for _, s := range d.syncs {
		list = append(list, *s)
	}
	d.mu.RUnlock()

	out := make([]*megaapi.Sync, 0, len(list))
	for i := range list {
		s := list[i]
		if n := d.NodeByHandle(s.RemoteHandle); n != nil {
			s.RemotePath = d.NodePath(n)
		}
		out = append(out, &s)
	}
	return out
}

func (d *Drive) SetSyncRunState(ctx context.Context, id megaapi.Handle, state megaapi.SyncRunState) error {
	d.mu.Lock()
	var changed *megaapi.Sync
	for _, s := range d.syncs {
		if s.BackupID == id {
			s.RunState = state
			c := *s
			changed = &c
			break
		}
	}
	if changed == nil {
		d.mu.Unlock()
		return megaapi.ENOENT
	}
	err := d.writeJSON(syncsFile, d.syncs)
	d.mu.Unlock()
	if err != nil {
		return codeOf(err, megaapi.EWRITE)
	}
	d.notifySync(changed)
	return nil
}

func (d *Drive) RemoveSync(ctx context.Context, id megaapi.Handle) error {
	d.mu.Lock()
	idx := -1
	for i, s := range d.syncs {
		if s.BackupID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		d.mu.Unlock()
		return megaapi.ENOENT
	}
	removed := *d.syncs[idx]
	d.syncs = append(d.syncs[:idx], d.syncs[idx+1:]...)
	err := d.writeJSON(syncsFile, d.syncs)
	kept := d.stalls[:0]
	for _, st := range d.stalls {
		if st.SyncID != id {
			kept = append(kept, st)
		}
	}
	d.stalls = kept
	d.mu.Unlock()
	if err != nil {
		return codeOf(err, megaapi.EWRITE)
	}
	removed.RunState = megaapi.SyncDisabled
	d.notifySync(&removed)
	return nil
}

func (d *Drive) SyncStalls(ctx context.Context) ([]megaapi.SyncStall, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]megaapi.SyncStall(nil), d.stalls...), nil
}

func (d *Drive) IsSyncStalled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.stalls) > 0
}

func (d *Drive) IsScanning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scanning
}

func (d *Drive) IsWaiting() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.waiting
}

// AddStall reports a stall as the sync engine would.
func (d *Drive) AddStall(st megaapi.SyncStall) {
	d.mu.Lock()
	d.stalls = append(d.stalls, st)
	d.mu.Unlock()
	d.notifyGlobalSyncState()
}

func (d *Drive) ClearStalls() {
	d.mu.Lock()
	d.stalls = nil
	d.mu.Unlock()
	d.notifyGlobalSyncState()
}

// SetActivity sets the scanning and waiting flags reported to listeners.
func (d *Drive) SetActivity(scanning, waiting bool) {
	d.mu.Lock()
	d.scanning, d.waiting = scanning, waiting
	d.mu.Unlock()
	d.notifyGlobalSyncState()
}

type backupJob struct {
	mu      sync.Mutex
	b       megaapi.Backup
	timer   *time.Timer
	current int
	stopped bool
}

func (j *backupJob) stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
	if j.timer != nil {
		j.timer.Stop()
	}
}

func (j *backupJob) snapshot() *megaapi.Backup {
	j.mu.Lock()
	defer j.mu.Unlock()
	b := j.b
	return &b
}

// cronFallbackPeriod schedules backups configured with a cron expression.
const cronFallbackPeriod = 24 * time.Hour

// SetBackup starts backing up localPath into n right away and then every
// period seconds. At most numBackups copies are kept.
func (d *Drive) SetBackup(ctx context.Context, localPath string, n *megaapi.Node, period int64, cronPeriod string, numBackups int) (*megaapi.Backup, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, megaapi.ENOENT
	}
	if !info.IsDir() || !n.IsFolder() {
		return nil, megaapi.EARGS
	}
	if (period <= 0 && cronPeriod == "") || numBackups <= 0 {
		return nil, megaapi.EARGS
	}
	localPath, _ = filepath.Abs(localPath)

	remotePath := d.NodePath(n)

	d.mu.Lock()
	for _, j := range d.backups {
		if j.snapshot().LocalPath == localPath {
			d.mu.Unlock()
			return nil, megaapi.EEXIST
		}
	}
	job := &backupJob{b: megaapi.Backup{
		Tag:          int(d.nextTag.Add(1)),
		LocalPath:    localPath,
		RemoteHandle: n.Handle,
		RemotePath:   remotePath,
		Period:       period,
		CronPeriod:   cronPeriod,
		NumBackups:   numBackups,
		State:        megaapi.BackupStateActive,
	}}
	d.backups[job.b.Tag] = job
	d.mu.Unlock()

	go d.runBackup(job)
	return job.snapshot(), nil
}

func (j *backupJob) interval() time.Duration {
	if j.b.Period > 0 {
		return time.Duration(j.b.Period) * time.Second
	}
	return cronFallbackPeriod
}

func (d *Drive) runBackup(job *backupJob) {
	job.mu.Lock()
	if job.stopped {
		job.mu.Unlock()
		return
	}
	job.b.State = megaapi.BackupStateOngoing
	local := job.b.LocalPath
	remoteHandle := job.b.RemoteHandle
	job.mu.Unlock()
	remote := d.NodeByHandle(remoteHandle)

	schedule := func(state int) {
		job.mu.Lock()
		defer job.mu.Unlock()
		job.current = 0
		job.b.State = state
		if job.stopped {
			return
		}
		next := job.interval()
		job.b.NextStart = time.Now().Add(next).Unix()
		job.timer = time.AfterFunc(next, func() { d.runBackup(job) })
	}

	if remote == nil {
		schedule(megaapi.BackupStateFailed)
		return
	}

	name := fmt.Sprintf("%s_bk_%s", filepath.Base(local), time.Now().Format("20060102150405"))
	done := make(chan error, 1)
	l := megaapi.TransferListenerFuncs{
		Start: func(api megaapi.API, t *megaapi.Transfer) {
			if !t.IsChild() {
				job.mu.Lock()
				job.current = t.Tag
				job.mu.Unlock()
			}
		},
		Finish: func(api megaapi.API, t *megaapi.Transfer, err error) {
			if !t.IsChild() {
				done <- err
			}
		},
	}
	if err := d.startUpload(local, remote, name, l, true); err != nil {
		schedule(megaapi.BackupStateFailed)
		return
	}

	select {
	case err := <-done:
		if err != nil {
			schedule(megaapi.BackupStateFailed)
			return
		}
	case <-d.ctx.Done():
		return
	}

	job.mu.Lock()
	job.b.State = megaapi.BackupStateRemovingExceeding
	keep := job.b.NumBackups
	job.mu.Unlock()
	d.trimBackups(remote, filepath.Base(local)+"_bk_", keep)
	schedule(megaapi.BackupStateActive)
}

// trimBackups removes the oldest backup folders beyond keep.
func (d *Drive) trimBackups(remote *megaapi.Node, prefix string, keep int) {
	var names []*megaapi.Node
	for _, c := range d.Children(remote) {
		if c.IsFolder() && strings.HasPrefix(c.Name, prefix) {
			names = append(names, c)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })
	for len(names) > keep {
		if err := d.Remove(d.ctx, names[0]); err != nil {
			d.logger.Errorf("Could not remove exceeding backup %s: %v", names[0].Name, err)
		}
		names = names[1:]
	}
}

// Backups returns the configured backups ordered by tag.
func (d *Drive) Backups() []*megaapi.Backup {
	d.mu.RLock()
	out := make([]*megaapi.Backup, 0, len(d.backups))
	for _, j := range d.backups {
		out = append(out, j.snapshot())
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (d *Drive) RemoveBackup(ctx context.Context, tag int) error {
	d.mu.Lock()
	job, ok := d.backups[tag]
	delete(d.backups, tag)
	d.mu.Unlock()
	if !ok {
		return megaapi.ENOENT
	}
	job.stop()
	return nil
}

// AbortCurrentBackup cancels the ongoing copy of a backup, if any.
func (d *Drive) AbortCurrentBackup(ctx context.Context, tag int) error {
	d.mu.RLock()
	job, ok := d.backups[tag]
	d.mu.RUnlock()
	if !ok {
		return megaapi.ENOENT
	}
	job.mu.Lock()
	current := job.current
	job.mu.Unlock()
	if current == 0 {
		return megaapi.EARGS
	}
	return d.CancelTransfer(ctx, current)
}
