package transfers

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/megaapi"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

func download(tag, parentTag int, name string) *megaapi.Transfer {
	return &megaapi.Transfer{
		Tag:               tag,
		Type:              megaapi.TransferDownload,
		State:             megaapi.TransferStateActive,
		Path:              "/tmp/dl/" + name,
		ParentPath:        "/tmp/dl/",
		FileName:          name,
		TotalBytes:        100,
		FolderTransferTag: parentTag,
	}
}

func finished(t *megaapi.Transfer, state megaapi.TransferState) *megaapi.Transfer {
	c := t.Copy()
	c.State = state
	c.TransferredBytes = c.TotalBytes
	return c
}

func TestObjectID(t *testing.T) {
	tests := []struct {
		source   string
		expected string
	}{
		{"/some/path", "O:/some/path"},
		{"https://mega.nz/file/abcd#key", "O:abcd"},
		{"https://mega.nz/folder/abcd#key/file/xyz", "O:abcd_xyz"},
		{"O:already", "O:already"},
	}
	for _, tt := range tests {
		if got := ObjectID(tt.source); got != tt.expected {
			t.Errorf("ObjectID(%q): expected %q, got %q", tt.source, tt.expected, got)
		}
	}
	if !IsObjectID("O:x") || IsObjectID("12") {
		t.Errorf("IsObjectID mismatch")
	}
	if got := (DownloadId{Tag: 3, Path: "/a"}).String(); got != "[3:/a]" {
		t.Errorf("expected [3:/a], got %s", got)
	}
}

func TestFolderDownloadLifecycle(t *testing.T) {
	m := NewDownloadsManager(testLogger())

	parent := download(1, 0, "dir")
	parent.IsFolderTransfer = true
	m.AddNewTopLevelTransfer(nil, parent, "/remote/dir")

	child1 := download(2, 1, "a.txt")
	child2 := download(3, 1, "b.txt")
	m.OnTransferStart(nil, child1)
	m.OnTransferStart(nil, child2)
	m.OnTransferUpdate(nil, child1)
	m.OnTransferFinish(nil, finished(child1, megaapi.TransferStateCompleted), nil)
	m.OnTransferFinish(nil, finished(child2, megaapi.TransferStateFailed), megaapi.EWRITE)
	m.OnTransferFinish(nil, finished(parent, megaapi.TransferStateFailed), megaapi.EINCOMPLETE)

	require.Empty(t, m.Active())
	require.Len(t, m.Finished(), 1)

	info := m.Finished()[0]
	started, ok, failed := info.SubCounters()
	assert.Equal(t, 2, started)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, megaapi.EINCOMPLETE, info.FinalError())
	assert.True(t, info.IsFinished())

	subs := info.Subs()
	require.Len(t, subs, 2)
	assert.Equal(t, megaapi.EWRITE, subs[1].FinalError())

	var out bytes.Buffer
	m.PrintAll(&out, cmdline.Options{}, cmdline.Flags{"show-subtransfers": 1})
	s := out.String()
	assert.Contains(t, s, "  -----   ACTIVE -------- ")
	assert.Contains(t, s, "  -----   FINISHED -------- ")
	assert.Contains(t, s, "[1:/remote/dir]  ----> ")
	assert.Contains(t, s, "O:/remote/dir")
	assert.Contains(t, s, "SUBTRANSFER 3")
	assert.Contains(t, s, "^^^^^^^^^^^^^^^^^^^^^^^")
	assert.Contains(t, s, megaapi.EINCOMPLETE.Error())
}

func TestUnhandledTransferIsAdopted(t *testing.T) {
	m := NewDownloadsManager(testLogger())
	tr := download(5, 0, "late.bin")

	m.OnTransferStart(nil, tr)
	assert.Empty(t, m.Active())

	m.OnTransferUpdate(nil, tr)
	active := m.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "O:"+tr.Path, active[0].ObjectID())

	assert.Nil(t, m.RecoverUnhandledTransfer(nil, tr))
}

func TestPrintOne(t *testing.T) {
	m := NewDownloadsManager(testLogger())
	m.AddNewTopLevelTransfer(nil, download(9, 0, "f"), "/f")
	ctx := context.Background()

	var out bytes.Buffer
	found, err := m.PrintOne(ctx, &out, "9", cmdline.Options{}, cmdline.Flags{})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, out.String(), "[9:/f]")

	out.Reset()
	found, err = m.PrintOne(ctx, &out, "O:/f", cmdline.Options{}, cmdline.Flags{})
	require.NoError(t, err)
	assert.True(t, found)

	out.Reset()
	found, err = m.PrintOne(ctx, &out, "O:/missing", cmdline.Options{}, cmdline.Flags{})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "O:/missing NOT FOUND\n", out.String())

	_, err = m.PrintOne(ctx, &out, "notanumber", cmdline.Options{}, cmdline.Flags{})
	assert.Error(t, err)
}

func TestEvictionKeepsNewest(t *testing.T) {
	m := NewDownloadsManager(testLogger())
	m.SetLimits(3, 1)
	for tag := 1; tag <= 4; tag++ {
		tr := download(tag, 0, "f")
		m.AddNewTopLevelTransfer(nil, tr, "/f"+string(rune('0'+tag)))
		m.OnTransferFinish(nil, finished(tr, megaapi.TransferStateCompleted), nil)
	}
	fin := m.Finished()
	require.Len(t, fin, 1)
	assert.Equal(t, 4, fin[0].ID().Tag)
}

func TestIOWriterReadTrimPurge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.db")
	w, err := OpenIOWriter(path, testLogger(), WithMaxPersisted(2))
	require.NoError(t, err)
	defer w.Close(false)
	ctx := context.Background()

	var infos []*TransferInfo
	for tag := 1; tag <= 3; tag++ {
		info := newTransferInfo(nil, download(tag, 0, "f"), DownloadId{Tag: tag, Path: "/p" + string(rune('0'+tag))}, nil)
		infos = append(infos, info)
	}
	sub := infos[2].OnSubTransferStarted(nil, download(10, 3, "child"))

	// queued out of order and twice: the child must still land after its parent
	w.Write(sub)
	w.Write(infos[0])
	w.Write(infos[0])
	require.NoError(t, w.Flush())
	w.Write(infos[1])
	require.NoError(t, w.Flush())
	w.Write(infos[2])
	require.NoError(t, w.Flush())

	n, err := w.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := w.Read(ctx, "O:/p3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.ID().Tag)
	require.Len(t, got.Subs(), 1)
	assert.Equal(t, 10, got.Subs()[0].ID().Tag)

	got, err = w.Read(ctx, "O:/p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	w.Remove(infos[1])
	require.NoError(t, w.Flush())
	n, err = w.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, w.Purge())
	n, err = w.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLookupFallsBackToDatabase(t *testing.T) {
	m := NewDownloadsManager(testLogger())
	m.SetLimits(1, 0)
	require.NoError(t, m.Start(filepath.Join(t.TempDir(), "transfers.db")))

	a := download(1, 0, "a")
	b := download(2, 0, "b")
	m.AddNewTopLevelTransfer(nil, a, "/a")
	m.AddNewTopLevelTransfer(nil, b, "/b")
	m.OnTransferFinish(nil, finished(a, megaapi.TransferStateCompleted), nil)
	m.OnTransferFinish(nil, finished(b, megaapi.TransferStateFailed), megaapi.EREAD)
	require.Empty(t, m.Finished())

	info, err := m.Lookup(context.Background(), "O:/b")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, megaapi.EREAD, info.FinalError())
	assert.Equal(t, megaapi.TransferStateFailed, info.State())

	require.NoError(t, m.Shutdown(false))
}

func TestCancelledTransferIsNotPersisted(t *testing.T) {
	m := NewDownloadsManager(testLogger())
	require.NoError(t, m.Start(filepath.Join(t.TempDir(), "transfers.db")))
	defer m.Shutdown(true)

	tr := download(1, 0, "x")
	m.AddNewTopLevelTransfer(nil, tr, "/x")
	m.OnTransferFinish(nil, finished(tr, megaapi.TransferStateCancelled), megaapi.EINCOMPLETE)

	n, err := m.writer.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func countRows(t *testing.T, w *IOWriter, where string) int {
	t.Helper()
	var n int
	require.NoError(t, w.db.QueryRow(`SELECT COUNT(*) FROM transfer_info WHERE `+where).Scan(&n))
	return n
}

func TestFolderLinkDownloadSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.db")
	link := "https://mega.nz/folder/abcd#key"
	ctx := context.Background()

	m := NewDownloadsManager(testLogger())
	require.NoError(t, m.Start(path))
	parent := download(1, 0, "dir")
	parent.IsFolderTransfer = true
	parent.PublicLink = link
	m.AddNewTopLevelTransfer(nil, parent, link)
	child := download(2, 1, "a.txt")
	m.OnTransferStart(nil, child)
	m.OnTransferFinish(nil, finished(child, megaapi.TransferStateCompleted), nil)
	m.OnTransferFinish(nil, finished(parent, megaapi.TransferStateCompleted), nil)
	require.NoError(t, m.Shutdown(false))

	m = NewDownloadsManager(testLogger())
	require.NoError(t, m.Start(path))
	info, err := m.Lookup(ctx, ObjectID(link))
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, 1, info.ID().Tag)
	started, ok, failed := info.SubCounters()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, failed)
	subs := info.Subs()
	require.Len(t, subs, 1)
	assert.Equal(t, 2, subs[0].ID().Tag)
	assert.Equal(t, megaapi.TransferStateCompleted, subs[0].State())

	// logging out empties the database
	require.NoError(t, m.Shutdown(true))
	m = NewDownloadsManager(testLogger())
	require.NoError(t, m.Start(path))
	defer m.Shutdown(false)
	info, err = m.Lookup(ctx, ObjectID(link))
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Equal(t, 0, countRows(t, m.writer, "1 = 1"))
}

func TestPurgeDuringFolderDownload(t *testing.T) {
	m := NewDownloadsManager(testLogger())
	m.SetWriterOptions(WithSchedule(time.Hour))
	require.NoError(t, m.Start(filepath.Join(t.TempDir(), "transfers.db")))
	defer m.Shutdown(true)

	parent := download(1, 0, "dir")
	parent.IsFolderTransfer = true
	m.AddNewTopLevelTransfer(nil, parent, "/remote/dir")
	child := download(2, 1, "a.txt")
	m.OnTransferStart(nil, child)
	require.NoError(t, m.writer.Flush())

	require.NoError(t, m.Purge())

	m.OnTransferUpdate(nil, child)
	require.NoError(t, m.writer.Flush())
	m.OnTransferFinish(nil, finished(child, megaapi.TransferStateCompleted), nil)
	m.OnTransferFinish(nil, finished(parent, megaapi.TransferStateCompleted), nil)
	require.NoError(t, m.writer.Flush())

	assert.Equal(t, 0, countRows(t, m.writer, "parent_id != 0 AND parent_id NOT IN (SELECT id FROM transfer_info)"))
	info, err := m.writer.Read(context.Background(), "O:/remote/dir")
	require.NoError(t, err)
	require.NotNil(t, info)
	started, ok, _ := info.SubCounters()
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, ok)
	assert.Len(t, info.Subs(), 1)
}

func TestIOWriterFlushesAtThreshold(t *testing.T) {
	w, err := OpenIOWriter(filepath.Join(t.TempDir(), "transfers.db"), testLogger(),
		WithSchedule(time.Hour), WithThreshold(3))
	require.NoError(t, err)
	defer w.Close(false)

	for tag := 1; tag <= 2; tag++ {
		w.Write(newTransferInfo(nil, download(tag, 0, "f"), DownloadId{Tag: tag, Path: "/t" + string(rune('0'+tag))}, nil))
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, countRows(t, w, "1 = 1"))

	w.Write(newTransferInfo(nil, download(3, 0, "f"), DownloadId{Tag: 3, Path: "/t3"}, nil))
	require.Eventually(t, func() bool {
		var n int
		return w.db.QueryRow(`SELECT COUNT(*) FROM transfer_info`).Scan(&n) == nil && n == 3
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTrimKeepsChildrenWithParent(t *testing.T) {
	w, err := OpenIOWriter(filepath.Join(t.TempDir(), "transfers.db"), testLogger(),
		WithSchedule(time.Hour), WithMaxPersisted(1))
	require.NoError(t, err)
	defer w.Close(false)

	old := newTransferInfo(nil, download(1, 0, "old"), DownloadId{Tag: 1, Path: "/old"}, nil)
	w.Write(old.OnSubTransferStarted(nil, download(10, 1, "x")))
	w.Write(old)
	require.NoError(t, w.Flush())
	time.Sleep(5 * time.Millisecond)

	recent := newTransferInfo(nil, download(2, 0, "new"), DownloadId{Tag: 2, Path: "/new"}, nil)
	w.Write(recent.OnSubTransferStarted(nil, download(20, 2, "y")))
	w.Write(recent.OnSubTransferStarted(nil, download(21, 2, "z")))
	w.Write(recent)
	require.NoError(t, w.Flush())

	assert.Equal(t, 1, countRows(t, w, "parent_id = 0"))
	assert.Equal(t, 2, countRows(t, w, "parent_id != 0"))
	assert.Equal(t, 0, countRows(t, w, "parent_id != 0 AND parent_id NOT IN (SELECT id FROM transfer_info)"))

	got, err := w.Read(context.Background(), "O:/new")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Subs(), 2)
}
