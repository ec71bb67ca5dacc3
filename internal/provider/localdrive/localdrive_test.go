package localdrive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cshum/megacmd/megaapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedInDrive(t *testing.T) *Drive {
	t.Helper()
	d, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	ctx := context.Background()
	require.NoError(t, d.Login(ctx, "user@example.com", "secret"))
	require.NoError(t, d.FetchNodes(ctx))
	return d
}

type recorder struct {
	mu       sync.Mutex
	started  []*megaapi.Transfer
	finished []*megaapi.Transfer
	errs     map[int]error
	done     chan *megaapi.Transfer
}

func newRecorder() *recorder {
	return &recorder{errs: make(map[int]error), done: make(chan *megaapi.Transfer, 64)}
}

func (r *recorder) OnTransferStart(api megaapi.API, t *megaapi.Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, t)
}

func (r *recorder) OnTransferUpdate(api megaapi.API, t *megaapi.Transfer) {}

func (r *recorder) OnTransferFinish(api megaapi.API, t *megaapi.Transfer, err error) {
	r.mu.Lock()
	r.finished = append(r.finished, t)
	r.errs[t.Tag] = err
	r.mu.Unlock()
	r.done <- t
}

func (r *recorder) OnTransferTemporaryError(api megaapi.API, t *megaapi.Transfer, err error) {}

// waitTopLevel returns the first finished transfer that is not a child.
func (r *recorder) waitTopLevel(t *testing.T) *megaapi.Transfer {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case tr := <-r.done:
			if !tr.IsChild() {
				return tr
			}
		case <-timeout:
			t.Fatal("timed out waiting for transfer")
			return nil
		}
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestLoginCreatesAccountAndChecksPassword(t *testing.T) {
	root := t.TempDir()
	d, err := New(root, nil)
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	assert.Equal(t, megaapi.EARGS, d.Login(ctx, "not-an-email", "x"))
	require.NoError(t, d.Login(ctx, "User@Example.com", "pw"))
	assert.Equal(t, "user@example.com", d.MyEmail())
	session := d.DumpSession()
	require.NotEmpty(t, session)

	require.NoError(t, d.LocalLogout(ctx))
	assert.False(t, d.IsLoggedIn())
	assert.Equal(t, megaapi.ENOENT, d.Login(ctx, "user@example.com", "wrong"))

	require.NoError(t, d.FastLogin(ctx, session))
	assert.Equal(t, "user@example.com", d.MyEmail())

	require.NoError(t, d.Logout(ctx, false))
	assert.Equal(t, megaapi.ESID, d.FastLogin(ctx, session))
}

func TestNodePathsAndLookup(t *testing.T) {
	d := newLoggedInDrive(t)
	ctx := context.Background()

	root := d.RootNode()
	require.NotNil(t, root)
	assert.Equal(t, megaapi.NodeRoot, root.Type)
	assert.Equal(t, "/", d.NodePath(root))
	assert.Equal(t, "//bin", d.NodePath(d.RubbishNode()))

	docs, err := d.CreateFolder(ctx, "docs", root)
	require.NoError(t, err)
	_, err = d.CreateFolder(ctx, "docs", root)
	assert.Equal(t, megaapi.EEXIST, err)

	writeFile(t, filepath.Join(d.Root(), "cloud", "docs", "a.txt"), "hello")
	a := d.NodeByPath("/docs/a.txt", nil)
	require.NotNil(t, a)
	assert.True(t, a.IsFile())
	assert.Equal(t, int64(5), a.Size)
	assert.Equal(t, docs.Handle, a.ParentHandle)
	assert.Equal(t, "/docs/a.txt", d.NodePath(a))

	assert.Equal(t, a.Handle, d.NodeByPath("a.txt", docs).Handle)
	assert.Equal(t, root.Handle, d.NodeByPath("../..", docs).Handle)
	assert.Nil(t, d.NodeByPath("/missing", nil))
	assert.Equal(t, a.Handle, d.NodeByHandle(a.Handle).Handle)

	children := d.Children(docs)
	require.Len(t, children, 1)
	assert.Equal(t, "a.txt", children[0].Name)
}

func TestMoveCopyRemove(t *testing.T) {
	d := newLoggedInDrive(t)
	ctx := context.Background()
	root := d.RootNode()

	src, err := d.CreateFolder(ctx, "src", root)
	require.NoError(t, err)
	writeFile(t, filepath.Join(d.Root(), "cloud", "src", "f.txt"), "data")
	dst, err := d.CreateFolder(ctx, "dst", root)
	require.NoError(t, err)

	assert.Equal(t, megaapi.ECIRCULAR, d.Move(ctx, src, src, ""))

	copied, err := d.Copy(ctx, src, dst, "")
	require.NoError(t, err)
	assert.Equal(t, "/dst/src", d.NodePath(copied))
	require.NotNil(t, d.NodeByPath("/dst/src/f.txt", nil))

	f := d.NodeByPath("/src/f.txt", nil)
	require.NoError(t, d.Move(ctx, f, nil, "g.txt"))
	assert.Nil(t, d.NodeByPath("/src/f.txt", nil))
	g := d.NodeByPath("/src/g.txt", nil)
	require.NotNil(t, g)

	r, err := d.OpenReader(ctx, g)
	require.NoError(t, err)
	data, _ := io.ReadAll(r)
	r.Close()
	assert.Equal(t, "data", string(data))

	require.NoError(t, d.Remove(ctx, src))
	assert.Nil(t, d.NodeByPath("/src", nil))
	assert.Equal(t, megaapi.EACCESS, d.Remove(ctx, root))
}

func TestExportAndPublicNode(t *testing.T) {
	d := newLoggedInDrive(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(d.Root(), "cloud", "shared.txt"), "x")
	n := d.NodeByPath("/shared.txt", nil)
	require.NotNil(t, n)

	_, err := d.Export(ctx, n, 0, true)
	assert.Equal(t, megaapi.EARGS, err, "files cannot be writable")

	link, err := d.Export(ctx, n, 0, false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://mega.nz/file/"))
	assert.True(t, d.NodeByPath("/shared.txt", nil).Exported)

	pub, err := d.PublicNode(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, n.Handle, pub.Handle)

	_, err = d.PublicNode(ctx, link[:strings.Index(link, "#")]+"#wrongkey")
	assert.Equal(t, megaapi.EKEY, err)

	require.NoError(t, d.DisableExport(ctx, n))
	_, err = d.PublicNode(ctx, link)
	assert.Equal(t, megaapi.ENOENT, err)
}

func TestDownloadFile(t *testing.T) {
	d := newLoggedInDrive(t)
	writeFile(t, filepath.Join(d.Root(), "cloud", "big.bin"), strings.Repeat("z", 3*chunkSize+10))
	n := d.NodeByPath("/big.bin", nil)
	require.NotNil(t, n)

	rec := newRecorder()
	out := t.TempDir()
	require.NoError(t, d.StartDownload(n, out, rec))
	tr := rec.waitTopLevel(t)

	assert.Equal(t, megaapi.TransferStateCompleted, tr.State)
	assert.Equal(t, n.Size, tr.TransferredBytes)
	assert.Equal(t, filepath.Join(out, "big.bin"), tr.Path)
	info, err := os.Stat(filepath.Join(out, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, n.Size, info.Size())
	assert.Nil(t, d.TransferByTag(tr.Tag))
}

func TestFolderDownloadChildrenPointAtNodes(t *testing.T) {
	d := newLoggedInDrive(t)
	writeFile(t, filepath.Join(d.Root(), "cloud", "dir", "a.txt"), "aaa")
	writeFile(t, filepath.Join(d.Root(), "cloud", "dir", "sub", "b.txt"), "bb")
	require.NoError(t, d.FetchNodes(context.Background()))
	n := d.NodeByPath("/dir", nil)
	require.NotNil(t, n)

	rec := newRecorder()
	out := t.TempDir()
	require.NoError(t, d.StartDownload(n, out, rec))
	parent := rec.waitTopLevel(t)
	assert.Equal(t, megaapi.TransferStateCompleted, parent.State)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var paths []string
	for _, c := range rec.finished {
		if !c.IsChild() {
			continue
		}
		node := d.NodeByHandle(c.NodeHandle)
		require.NotNil(t, node, "child %s has no node", c.Path)
		paths = append(paths, d.NodePath(node))
	}
	assert.ElementsMatch(t, []string{"/dir/a.txt", "/dir/sub/b.txt"}, paths)
}

func TestFolderUploadEmitsChildrenAndFinishesLast(t *testing.T) {
	d := newLoggedInDrive(t)
	local := filepath.Join(t.TempDir(), "photos")
	writeFile(t, filepath.Join(local, "a.jpg"), "aaa")
	writeFile(t, filepath.Join(local, "sub", "b.jpg"), "bbbb")

	global := newRecorder()
	d.AddTransferListener(global)
	rec := newRecorder()
	require.NoError(t, d.StartUpload(local, d.RootNode(), "", rec))
	parent := rec.waitTopLevel(t)

	assert.True(t, parent.IsFolderTransfer)
	assert.Equal(t, megaapi.TransferStateCompleted, parent.State)
	assert.Equal(t, int64(7), parent.TransferredBytes)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.finished, 3)
	for _, c := range rec.finished[:2] {
		assert.Equal(t, parent.Tag, c.FolderTransferTag)
	}
	assert.Equal(t, parent.Tag, rec.finished[2].Tag)
	b := d.NodeByPath("/photos/sub/b.jpg", nil)
	require.NotNil(t, b)
	var handles []megaapi.Handle
	for _, c := range rec.finished[:2] {
		handles = append(handles, c.NodeHandle)
	}
	assert.Contains(t, handles, b.Handle)

	global.mu.Lock()
	assert.Len(t, global.started, 3)
	global.mu.Unlock()
}

func TestCancelPausedTransfer(t *testing.T) {
	d := newLoggedInDrive(t)
	writeFile(t, filepath.Join(d.Root(), "cloud", "f.bin"), strings.Repeat("x", 10*chunkSize))
	n := d.NodeByPath("/f.bin", nil)
	ctx := context.Background()

	require.NoError(t, d.PauseTransfers(ctx, true, megaapi.TransferDownload))
	rec := newRecorder()
	require.NoError(t, d.StartDownload(n, t.TempDir(), rec))

	transfers := d.Transfers(megaapi.TransferDownload)
	require.Len(t, transfers, 1)
	require.NoError(t, d.CancelTransfer(ctx, transfers[0].Tag))

	tr := rec.waitTopLevel(t)
	assert.Equal(t, megaapi.TransferStateCancelled, tr.State)
	assert.Equal(t, megaapi.EINCOMPLETE, rec.errs[tr.Tag])
	assert.Equal(t, megaapi.ENOENT, d.CancelTransfer(ctx, tr.Tag))
}

func TestSpeedLimitsAndConnections(t *testing.T) {
	d := newLoggedInDrive(t)
	d.SetMaxDownloadSpeed(1024)
	assert.Equal(t, int64(1024), d.MaxDownloadSpeed())
	assert.Equal(t, int64(0), d.MaxUploadSpeed())
	assert.Equal(t, megaapi.ERANGE, d.SetMaxConnections(megaapi.TransferUpload, 0))
	require.NoError(t, d.SetMaxConnections(megaapi.TransferUpload, 8))
	assert.Equal(t, 8, d.MaxConnections(megaapi.TransferUpload))
}

type stallListener struct {
	changes chan struct{}
}

func (s *stallListener) OnNodesUpdate(api megaapi.API, nodes []*megaapi.Node) {}
func (s *stallListener) OnSyncStateChanged(api megaapi.API, sy *megaapi.Sync) {}
func (s *stallListener) OnGlobalSyncStateChanged(api megaapi.API) {
	s.changes <- struct{}{}
}

func TestSyncsAndStalls(t *testing.T) {
	d := newLoggedInDrive(t)
	ctx := context.Background()
	remote, err := d.CreateFolder(ctx, "synced", d.RootNode())
	require.NoError(t, err)
	local := t.TempDir()

	s, err := d.SyncFolder(ctx, local, remote)
	require.NoError(t, err)
	assert.Equal(t, "/synced", s.RemotePath)
	assert.Equal(t, megaapi.SyncRunning, s.RunState)
	_, err = d.SyncFolder(ctx, local, remote)
	assert.Equal(t, megaapi.EEXIST, err)

	require.NoError(t, d.SetSyncRunState(ctx, s.BackupID, megaapi.SyncSuspended))
	syncs := d.Syncs()
	require.Len(t, syncs, 1)
	assert.Equal(t, megaapi.SyncSuspended, syncs[0].RunState)

	l := &stallListener{changes: make(chan struct{}, 4)}
	d.AddGlobalListener(l)
	d.AddStall(megaapi.SyncStall{SyncID: s.BackupID, Reason: megaapi.StallFileIssue})
	<-l.changes
	assert.True(t, d.IsSyncStalled())

	require.NoError(t, d.RemoveSync(ctx, s.BackupID))
	assert.False(t, d.IsSyncStalled())
	assert.Empty(t, d.Syncs())
}

func TestBackupCreatesSnapshotFolders(t *testing.T) {
	d := newLoggedInDrive(t)
	ctx := context.Background()
	remote, err := d.CreateFolder(ctx, "backups", d.RootNode())
	require.NoError(t, err)
	local := filepath.Join(t.TempDir(), "work")
	writeFile(t, filepath.Join(local, "notes.txt"), "n")

	b, err := d.SetBackup(ctx, local, remote, 3600, "", 2)
	require.NoError(t, err)
	assert.Equal(t, "/backups", b.RemotePath)

	require.Eventually(t, func() bool {
		for _, c := range d.Children(remote) {
			if strings.HasPrefix(c.Name, "work_bk_") && d.NodeByPath("notes.txt", c) != nil {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return d.Backups()[0].State == megaapi.BackupStateActive
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotZero(t, d.Backups()[0].NextStart)

	require.NoError(t, d.RemoveBackup(ctx, b.Tag))
	assert.Equal(t, megaapi.ENOENT, d.RemoveBackup(ctx, b.Tag))
}
