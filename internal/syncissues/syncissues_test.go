package syncissues

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/megaapi"
)

type fakeAPI struct {
	megaapi.API
	scanning bool
	stalled  bool
	stalls   []megaapi.SyncStall
	syncs    []*megaapi.Sync
}

func (f *fakeAPI) IsScanning() bool    { return f.scanning }
func (f *fakeAPI) IsWaiting() bool     { return false }
func (f *fakeAPI) IsSyncStalled() bool { return f.stalled }
func (f *fakeAPI) Syncs() []*megaapi.Sync {
	return f.syncs
}
func (f *fakeAPI) SyncStalls(ctx context.Context) ([]megaapi.SyncStall, error) {
	return f.stalls, nil
}
func (f *fakeAPI) NodeByPath(p string, base *megaapi.Node) *megaapi.Node {
	return nil
}

func stall(reason megaapi.StallReason, local string) megaapi.SyncStall {
	return megaapi.SyncStall{
		SyncID:     7,
		Reason:     reason,
		LocalPaths: []megaapi.StallPath{{Path: local, Problem: megaapi.PathProblemDetectedSymlink}},
	}
}

func TestDeferredSingleTriggerRunsLastOnly(t *testing.T) {
	d := NewDeferredSingleTrigger(30 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		n := int32(i)
		d.Trigger(func() {
			calls.Add(1)
			last.Store(n)
		})
	}
	time.Sleep(150 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
	if last.Load() != 5 {
		t.Errorf("expected last trigger to run, got %d", last.Load())
	}

	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected no run after Stop, got %d calls", calls.Load())
	}
}

func TestIssueIDsAreStable(t *testing.T) {
	a := newSyncIssueList([]megaapi.SyncStall{stall(megaapi.StallUploadIssue, "/a"), stall(megaapi.StallFileIssue, "/b")})
	b := newSyncIssueList([]megaapi.SyncStall{stall(megaapi.StallFileIssue, "/b")})

	if a[1].ID != b[0].ID {
		t.Errorf("expected same id for same stall, got %s and %s", a[1].ID, b[0].ID)
	}
	if a[0].ID == a[1].ID {
		t.Errorf("expected different ids, got %s twice", a[0].ID)
	}
	if a[1].Number != 2 || b[0].Number != 1 {
		t.Errorf("expected numbering from 1, got %d and %d", a[1].Number, b[0].Number)
	}
	if got, ok := a.Get("2"); !ok || got.ID != a[1].ID {
		t.Errorf("expected lookup by number to work")
	}
	if _, ok := a.Get("nope"); ok {
		t.Errorf("expected unknown id to miss")
	}
	if n := a.CountForSync(7); n != 2 {
		t.Errorf("expected 2 issues for sync, got %d", n)
	}
}

func TestReasonStrings(t *testing.T) {
	tests := []struct {
		reason   megaapi.StallReason
		expected string
	}{
		{megaapi.StallNamesWouldClashWhenSynced, "Name clash"},
		{megaapi.StallLocalAndRemotePreviouslyUnsyncedDifferUserMustChoose, "Local and remote differ"},
		{megaapi.StallReason(99), "<unsupported>"},
	}
	for _, tt := range tests {
		if got := ReasonString(tt.reason); got != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, got)
		}
	}
	if got := PathProblemString(megaapi.PathProblemDetectedSymlink); got != "Symlink detected" {
		t.Errorf("expected Symlink detected, got %q", got)
	}
}

func TestManagerRefreshesOnStalledChange(t *testing.T) {
	var messages atomic.Int32
	m := newManager(logrus.New(), func(msg string) {
		if strings.Contains(msg, "sync-issues") {
			messages.Add(1)
		}
	}, true, 20*time.Millisecond)
	defer m.Stop()

	api := &fakeAPI{stalls: []megaapi.SyncStall{stall(megaapi.StallUploadIssue, "/x")}}

	api.scanning = true
	api.stalled = true
	m.OnGlobalSyncStateChanged(api)
	if len(m.Issues()) != 0 {
		t.Errorf("expected no refresh while scanning")
	}

	api.scanning = false
	m.OnGlobalSyncStateChanged(api)
	if len(m.Issues()) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(m.Issues()))
	}

	api.stalls = nil
	m.OnGlobalSyncStateChanged(api)
	if len(m.Issues()) != 1 {
		t.Errorf("expected unchanged stalled flag to be ignored")
	}

	time.Sleep(100 * time.Millisecond)
	if messages.Load() != 1 {
		t.Errorf("expected 1 warning, got %d", messages.Load())
	}

	m.SetWarnings(false)
	api.stalled = false
	m.OnGlobalSyncStateChanged(api)
	if len(m.Issues()) != 0 {
		t.Errorf("expected list to be emptied, got %d", len(m.Issues()))
	}
}

func TestPrintList(t *testing.T) {
	api := &fakeAPI{syncs: []*megaapi.Sync{{BackupID: 7, LocalPath: "/l", RemotePath: "/r"}}}
	list := newSyncIssueList([]megaapi.SyncStall{
		stall(megaapi.StallUploadIssue, "/a"),
		stall(megaapi.StallFileIssue, "/b"),
	})
	var out bytes.Buffer
	PrintList(&out, api, list, PrintOptions{Columns: format.Options{}, Limit: 1})
	s := out.String()
	for _, want := range []string{"ISSUE_ID", "PARENT_SYNC", "REASON", "Upload issue (/a)", "(and 1 more issues)"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, s)
		}
	}

	out.Reset()
	PrintDetail(&out, api, list[1], PrintOptions{})
	s = out.String()
	for _, want := range []string{"[Details on issue " + list[1].ID + "]", "Parent sync:", "Symlink detected"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected detail to contain %q, got:\n%s", want, s)
		}
	}

	out.Reset()
	PrintList(&out, api, nil, PrintOptions{})
	if !strings.Contains(out.String(), "There are no sync issues") {
		t.Errorf("expected empty message, got %q", out.String())
	}
}
