package localdrive

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cshum/megacmd/megaapi"
	"github.com/cshum/megacmd/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	chunkSize    = 64 * 1024
	pollInterval = 50 * time.Millisecond
)

type limiter struct {
	mu sync.Mutex
	l  *rate.Limiter
}

func newLimiter() *limiter {
	return &limiter{l: rate.NewLimiter(rate.Inf, chunkSize)}
}

// set changes the limit in bytes per second. Zero or negative means
// unlimited.
func (l *limiter) set(bytesPerSecond int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bytesPerSecond <= 0 {
		l.l.SetLimit(rate.Inf)
		return
	}
	l.l.SetLimit(rate.Limit(bytesPerSecond))
}

func (l *limiter) wait(ctx context.Context, n int) error {
	l.mu.Lock()
	rl := l.l
	l.mu.Unlock()
	return rl.WaitN(ctx, n)
}

type transfer struct {
	mu        sync.Mutex
	t         megaapi.Transfer
	listener  megaapi.TransferListener
	parent    *transfer
	paused    bool
	cancelled bool
	start     time.Time
}

func (tr *transfer) snapshot() *megaapi.Transfer {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.t.Copy()
}

func (tr *transfer) isCancelled() bool {
	tr.mu.Lock()
	c := tr.cancelled
	tr.mu.Unlock()
	if !c && tr.parent != nil {
		return tr.parent.isCancelled()
	}
	return c
}

func (tr *transfer) isPaused() bool {
	tr.mu.Lock()
	p := tr.paused
	tr.mu.Unlock()
	if !p && tr.parent != nil {
		return tr.parent.isPaused()
	}
	return p
}

func (tr *transfer) setState(s megaapi.TransferState) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.t.State = s
	tr.t.UpdateTime = time.Now().Unix()
}

func (tr *transfer) add(n int64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.t.TransferredBytes += n
	tr.t.State = megaapi.TransferStateActive
	tr.t.UpdateTime = time.Now().Unix()
	if elapsed := time.Since(tr.start).Seconds(); elapsed > 0 {
		tr.t.Speed = int64(float64(tr.t.TransferredBytes) / elapsed)
	}
}

// newTransfer registers a transfer after setup has filled in its fields.
func (d *Drive) newTransfer(typ megaapi.TransferType, l megaapi.TransferListener, parent *transfer, setup func(t *megaapi.Transfer)) *transfer {
	tag := int(d.nextTag.Add(1))
	tr := &transfer{
		listener: l,
		parent:   parent,
		start:    time.Now(),
		t: megaapi.Transfer{
			Tag:               tag,
			Type:              typ,
			State:             megaapi.TransferStateQueued,
			NodeHandle:        megaapi.UndefHandle,
			ParentHandle:      megaapi.UndefHandle,
			FolderTransferTag: -1,
			StartTime:         time.Now().Unix(),
			UpdateTime:        time.Now().Unix(),
		},
	}
	if parent != nil {
		tr.t.FolderTransferTag = parent.t.Tag
		tr.t.IsSyncTransfer = parent.t.IsSyncTransfer
		tr.t.IsBackupTransfer = parent.t.IsBackupTransfer
	}
	setup(&tr.t)
	d.transfersMu.Lock()
	d.transfers[tag] = tr
	d.transfersMu.Unlock()
	return tr
}

func (d *Drive) listenersOf(tr *transfer) []megaapi.TransferListener {
	ls := d.transferGlobals()
	if tr.listener != nil {
		ls = append(ls, tr.listener)
	}
	return ls
}

func (d *Drive) emitStart(tr *transfer) {
	for _, l := range d.listenersOf(tr) {
		l.OnTransferStart(d, tr.snapshot())
	}
}

func (d *Drive) emitUpdate(tr *transfer) {
	for _, l := range d.listenersOf(tr) {
		l.OnTransferUpdate(d, tr.snapshot())
	}
}

func (d *Drive) emitTemporaryError(tr *transfer, err error) {
	for _, l := range d.listenersOf(tr) {
		l.OnTransferTemporaryError(d, tr.snapshot(), err)
	}
}

// finish sets the final state of tr and delivers the finish event.
func (d *Drive) finish(tr *transfer, err error) {
	code := megaapi.Code(err)
	tr.mu.Lock()
	switch {
	case code == megaapi.OK:
		tr.t.State = megaapi.TransferStateCompleted
	case tr.cancelled || (tr.parent != nil && code == megaapi.EINCOMPLETE):
		tr.t.State = megaapi.TransferStateCancelled
	default:
		tr.t.State = megaapi.TransferStateFailed
	}
	tr.t.LastError = code
	tr.t.UpdateTime = time.Now().Unix()
	tr.mu.Unlock()

	d.transfersMu.Lock()
	delete(d.transfers, tr.t.Tag)
	d.transfersMu.Unlock()

	if code != megaapi.OK {
		d.logger.WithFields(logrus.Fields{"tag": tr.t.Tag, "error": code.Error()}).Debug("Transfer finished with error")
		err = code
	} else {
		err = nil
	}
	for _, l := range d.listenersOf(tr) {
		l.OnTransferFinish(d, tr.snapshot(), err)
	}
}

// waitRunnable blocks while tr or its direction is paused.
func (d *Drive) waitRunnable(tr *transfer) error {
	notified := false
	for {
		if tr.isCancelled() {
			return megaapi.EINCOMPLETE
		}
		if !tr.isPaused() && !d.AreTransfersPaused(tr.t.Type) {
			if notified {
				tr.setState(megaapi.TransferStateActive)
				d.emitUpdate(tr)
			}
			return nil
		}
		if !notified {
			tr.setState(megaapi.TransferStatePaused)
			d.emitUpdate(tr)
			notified = true
		}
		select {
		case <-time.After(pollInterval):
		case <-d.ctx.Done():
			return megaapi.EINCOMPLETE
		}
	}
}

// copyChunks copies src to dst in chunks, honouring pause, cancel and the
// speed limit of the direction.
func (d *Drive) copyChunks(tr *transfer, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return codeOf(err, megaapi.EREAD)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return codeOf(err, megaapi.EWRITE)
	}
	tmp := dst + ".mega"
	out, err := os.Create(tmp)
	if err != nil {
		return codeOf(err, megaapi.EWRITE)
	}
	fail := func(code error) error {
		out.Close()
		os.Remove(tmp)
		return code
	}

	buf := make([]byte, chunkSize)
	lim := d.limiters[tr.t.Type]
	for {
		if err := d.waitRunnable(tr); err != nil {
			return fail(err)
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if err := lim.wait(d.ctx, n); err != nil {
				return fail(megaapi.EINCOMPLETE)
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return fail(megaapi.EWRITE)
			}
			tr.add(int64(n))
			d.emitUpdate(tr)
			if tr.parent != nil {
				tr.parent.add(int64(n))
				d.emitUpdate(tr.parent)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fail(megaapi.EREAD)
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return megaapi.EWRITE
	}
	tr.setState(megaapi.TransferStateCompleting)
	return codeOf(os.Rename(tmp, dst), megaapi.EWRITE)
}

// StartDownload copies n to localPath. An existing folder (or a path ending
// in a separator) receives the node under its own name.
func (d *Drive) StartDownload(n *megaapi.Node, localPath string, l megaapi.TransferListener) error {
	rel := d.relOf(n)
	if rel == "" {
		return megaapi.ENOENT
	}
	target := localPath
	if info, err := os.Stat(localPath); (err == nil && info.IsDir()) || strings.HasSuffix(localPath, string(os.PathSeparator)) {
		target = filepath.Join(localPath, n.Name)
	}
	target, _ = filepath.Abs(target)

	tr := d.newTransfer(megaapi.TransferDownload, l, nil, func(t *megaapi.Transfer) {
		t.Path = target
		t.ParentPath = filepath.Dir(target) + string(os.PathSeparator)
		t.FileName = filepath.Base(target)
		t.NodeHandle = n.Handle
		t.ParentHandle = n.ParentHandle
		t.AppData = rel
		t.IsFolderTransfer = n.IsFolder()
		if !n.IsFolder() {
			t.TotalBytes = n.Size
		}
	})

	if n.IsFolder() {
		go d.runFolder(tr, d.abs(rel), target, rel, nil)
	} else {
		go d.runFile(tr, d.abs(rel), target)
	}
	return nil
}

// StartUpload copies localPath into parent as name, or as the base name of
// localPath when name is empty.
func (d *Drive) StartUpload(localPath string, parent *megaapi.Node, name string, l megaapi.TransferListener) error {
	return d.startUpload(localPath, parent, name, l, false)
}

func (d *Drive) startUpload(localPath string, parent *megaapi.Node, name string, l megaapi.TransferListener, backup bool) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return codeOf(err, megaapi.EREAD)
	}
	if !parent.IsFolder() {
		return megaapi.EARGS
	}
	parentRel := d.relOf(parent)
	if parentRel == "" {
		return megaapi.ENOENT
	}
	if name == "" {
		name = filepath.Base(localPath)
	}
	targetRel := parentRel + "/" + name

	absPath, _ := filepath.Abs(localPath)
	tr := d.newTransfer(megaapi.TransferUpload, l, nil, func(t *megaapi.Transfer) {
		t.Path = absPath
		t.ParentPath = filepath.Dir(absPath) + string(os.PathSeparator)
		t.FileName = name
		t.ParentHandle = parent.Handle
		t.NodeHandle = handleOf(targetRel)
		t.IsBackupTransfer = backup
		t.AppData = targetRel
		t.IsFolderTransfer = info.IsDir()
		if !info.IsDir() {
			t.TotalBytes = info.Size()
		}
	})

	if info.IsDir() {
		go d.runFolder(tr, localPath, d.abs(targetRel), targetRel, func() {
			d.reindex(targetRel)
			d.notifyNodes(d.nodeFromRel(targetRel))
		})
	} else {
		go d.runUpload(tr, localPath, targetRel)
	}
	return nil
}

func (d *Drive) runFile(tr *transfer, src, dst string) {
	d.emitStart(tr)
	d.finish(tr, d.copyChunks(tr, src, dst))
}

func (d *Drive) runUpload(tr *transfer, src, targetRel string) {
	d.emitStart(tr)
	dst := d.abs(targetRel)

	// identical contents are already there
	if same, _ := sameContents(src, dst); same {
		tr.add(tr.t.TotalBytes)
		d.finish(tr, nil)
		return
	}
	err := d.copyChunks(tr, src, dst)
	if err == nil {
		d.reindex(targetRel)
		d.notifyNodes(d.nodeFromRel(targetRel))
	}
	d.finish(tr, err)
}

func sameContents(a, b string) (bool, error) {
	fa, err := utils.ContentFingerprint(a)
	if err != nil {
		return false, err
	}
	fb, err := utils.ContentFingerprint(b)
	if err != nil {
		return false, err
	}
	return fa == fb, nil
}

// runFolder transfers every file under src as a child of tr. remoteRel is
// the drive side folder, which names the child nodes. The folder transfer
// finishes last and fails with EINCOMPLETE if any child failed.
func (d *Drive) runFolder(tr *transfer, src, dst, remoteRel string, done func()) {
	files, err := utils.GetLocalFiles(src)
	if err != nil {
		d.emitStart(tr)
		d.finish(tr, codeOf(err, megaapi.EREAD))
		return
	}
	tr.mu.Lock()
	tr.t.TotalBytes = utils.TotalSize(files)
	tr.mu.Unlock()
	d.emitStart(tr)

	if err := os.MkdirAll(dst, 0700); err != nil {
		d.finish(tr, codeOf(err, megaapi.EWRITE))
		return
	}

	var result error
	for _, f := range files {
		target := filepath.Join(dst, filepath.FromSlash(f.RelPath))
		if f.IsDir {
			if err := os.MkdirAll(target, 0700); err != nil {
				result = megaapi.EINCOMPLETE
			}
			continue
		}
		if tr.isCancelled() {
			result = megaapi.EINCOMPLETE
			break
		}
		source := filepath.Join(src, filepath.FromSlash(f.RelPath))
		childRel := path.Join(remoteRel, f.RelPath)
		child := d.newTransfer(tr.t.Type, tr.listener, tr, func(t *megaapi.Transfer) {
			t.Path = source
			if t.Type == megaapi.TransferDownload {
				t.Path = target
			}
			t.ParentPath = filepath.Dir(t.Path) + string(os.PathSeparator)
			t.FileName = path.Base(f.RelPath)
			t.NodeHandle = handleOf(childRel)
			t.ParentHandle = handleOf(path.Dir(childRel))
			t.TotalBytes = f.Size
		})
		d.emitStart(child)
		err := d.copyChunks(child, source, target)
		if err != nil {
			d.emitTemporaryError(child, err)
			result = megaapi.EINCOMPLETE
		}
		d.finish(child, err)
	}
	if done != nil {
		done()
	}
	d.finish(tr, result)
}

func (d *Drive) lookup(tag int) (*transfer, bool) {
	d.transfersMu.Lock()
	defer d.transfersMu.Unlock()
	tr, ok := d.transfers[tag]
	return tr, ok
}

func (d *Drive) CancelTransfer(ctx context.Context, tag int) error {
	tr, ok := d.lookup(tag)
	if !ok {
		return megaapi.ENOENT
	}
	tr.mu.Lock()
	tr.cancelled = true
	tr.mu.Unlock()
	return nil
}

func (d *Drive) cancelAllTransfers() {
	d.transfersMu.Lock()
	defer d.transfersMu.Unlock()
	for _, tr := range d.transfers {
		tr.mu.Lock()
		tr.cancelled = true
		tr.mu.Unlock()
	}
}

func (d *Drive) PauseTransfer(ctx context.Context, tag int, pause bool) error {
	tr, ok := d.lookup(tag)
	if !ok {
		return megaapi.ENOENT
	}
	tr.mu.Lock()
	tr.paused = pause
	tr.mu.Unlock()
	return nil
}

func (d *Drive) PauseTransfers(ctx context.Context, pause bool, direction megaapi.TransferType) error {
	d.transfersMu.Lock()
	defer d.transfersMu.Unlock()
	d.paused[direction] = pause
	return nil
}

func (d *Drive) AreTransfersPaused(direction megaapi.TransferType) bool {
	d.transfersMu.Lock()
	defer d.transfersMu.Unlock()
	return d.paused[direction]
}

// Transfers returns the unfinished transfers of a direction ordered by tag.
func (d *Drive) Transfers(direction megaapi.TransferType) []*megaapi.Transfer {
	d.transfersMu.Lock()
	list := make([]*transfer, 0, len(d.transfers))
	for _, tr := range d.transfers {
		if tr.t.Type == direction {
			list = append(list, tr)
		}
	}
	d.transfersMu.Unlock()

	out := make([]*megaapi.Transfer, 0, len(list))
	for _, tr := range list {
		out = append(out, tr.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (d *Drive) TransferByTag(tag int) *megaapi.Transfer {
	tr, ok := d.lookup(tag)
	if !ok {
		return nil
	}
	return tr.snapshot()
}

func (d *Drive) SetMaxDownloadSpeed(bytesPerSecond int64) {
	d.setSpeed(megaapi.TransferDownload, bytesPerSecond)
}

func (d *Drive) SetMaxUploadSpeed(bytesPerSecond int64) {
	d.setSpeed(megaapi.TransferUpload, bytesPerSecond)
}

func (d *Drive) setSpeed(direction megaapi.TransferType, bytesPerSecond int64) {
	d.transfersMu.Lock()
	d.speeds[direction] = bytesPerSecond
	d.transfersMu.Unlock()
	d.limiters[direction].set(bytesPerSecond)
}

func (d *Drive) MaxDownloadSpeed() int64 {
	d.transfersMu.Lock()
	defer d.transfersMu.Unlock()
	return d.speeds[megaapi.TransferDownload]
}

func (d *Drive) MaxUploadSpeed() int64 {
	d.transfersMu.Lock()
	defer d.transfersMu.Unlock()
	return d.speeds[megaapi.TransferUpload]
}

func (d *Drive) SetMaxConnections(direction megaapi.TransferType, n int) error {
	if n < 1 || n > 100 {
		return megaapi.ERANGE
	}
	d.transfersMu.Lock()
	defer d.transfersMu.Unlock()
	d.connections[direction] = n
	return nil
}

func (d *Drive) MaxConnections(direction megaapi.TransferType) int {
	d.transfersMu.Lock()
	defer d.transfersMu.Unlock()
	return d.connections[direction]
}
