package syncissues

import (
	"fmt"
	"io"
	"os"

	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/megaapi"
)

const (
	DefaultLimit     = 10
	collapsedPathLen = 50
)

// PrintOptions controls the sync-issues listing.
type PrintOptions struct {
	Columns      format.Options
	Limit        int
	CollapsePath bool
}

func collapse(p string, enabled bool) string {
	if !enabled || len(p) <= collapsedPathLen {
		return p
	}
	return "..." + p[len(p)-collapsedPathLen+3:]
}

func syncName(api megaapi.API, id megaapi.Handle) string {
	for _, s := range api.Syncs() {
		if s.BackupID == id {
			return s.BackupID.Base64()
		}
	}
	return "<not found>"
}

// PrintList writes one row per issue.
func PrintList(w io.Writer, api megaapi.API, list SyncIssueList, opts PrintOptions) {
	if len(list) == 0 {
		fmt.Fprintln(w, "There are no sync issues")
		return
	}
	cd := format.NewColumnDisplayer(opts.Columns)
	for i, issue := range list {
		if opts.Limit > 0 && i >= opts.Limit {
			break
		}
		cd.AddValue("ISSUE_ID", issue.ID, false)
		cd.AddValue("PARENT_SYNC", syncName(api, issue.Stall.SyncID), false)
		reason := issue.Reason()
		if p := issue.MainPath(); p != "" {
			reason += " (" + collapse(p, opts.CollapsePath) + ")"
		}
		cd.AddValue("REASON", reason, false)
	}
	cd.Print(w, true)
	if opts.Limit > 0 && len(list) > opts.Limit {
		fmt.Fprintf(w, "(and %d more issues)\n", len(list)-opts.Limit)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "You can get detailed information about an issue with \"sync-issues --detail ID\"")
}

// PrintDetail describes issue and every path involved in it.
func PrintDetail(w io.Writer, api megaapi.API, issue SyncIssue, opts PrintOptions) {
	fmt.Fprintf(w, "[Details on issue %s]\n", issue.ID)
	for _, s := range api.Syncs() {
		if s.BackupID == issue.Stall.SyncID {
			fmt.Fprintf(w, "Parent sync: %s (%s to %s)\n", s.BackupID.Base64(), s.LocalPath, s.RemotePath)
			break
		}
	}
	fmt.Fprintf(w, "%s: %s\n", issue.Reason(), issue.Description())

	cd := format.NewColumnDisplayer(opts.Columns)
	rows := 0
	for _, pp := range issue.PathProblems() {
		if opts.Limit > 0 && rows >= opts.Limit {
			break
		}
		rows++
		var (
			modified, uploaded, size, typ string
		)
		if pp.IsCloud {
			if n := api.NodeByPath(pp.Path, nil); n != nil {
				modified = format.ReadableShortTime(n.ModificationTime, false)
				uploaded = format.ReadableShortTime(n.CreationTime, false)
				typ = "Folder"
				if n.IsFile() {
					size = format.SizeToText(n.Size, false, true)
					typ = "File"
				}
			}
		} else if info, err := os.Stat(pp.Path); err == nil {
			modified = format.ReadableShortTime(info.ModTime(), false)
			typ = "Folder"
			if !info.IsDir() {
				size = format.SizeToText(info.Size(), false, true)
				typ = "File"
			}
		}
		p := pp.Path
		if pp.IsCloud {
			p = CloudPrefix + p
		}
		cd.AddValue("PATH", collapse(p, opts.CollapsePath), false)
		cd.AddValue("PATH_ISSUE", pp.Problem, false)
		cd.AddValue("LAST_MODIFIED", modified, false)
		cd.AddValue("UPLOADED", uploaded, false)
		cd.AddValue("SIZE", size, false)
		cd.AddValue("TYPE", typ, false)
	}
	cd.Print(w, true)
}
