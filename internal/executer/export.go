package executer

import (
	"fmt"
	"time"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/internal/format"
	"github.com/cshum/megacmd/megaapi"
)

const (
	linkBase = "https://mega.nz"

	copyrightAcceptedProperty = "copyrightaccepted"
	copyrightNotice           = "MEGA respects the copyrights of others and requires that users of the MEGA cloud service comply with the laws of copyright.\n" +
		"You are strictly prohibited from using the MEGA cloud service to infringe copyrights.\n" +
		"You cannot upload, download, store, share, display, stream, distribute, email, link to, " +
		"transmit or otherwise make available any files, data or content that infringes any copyright " +
		"or other proprietary rights of any person or entity."
)

// publicLink rebuilds the link of an exported node from its public handle
// and key.
func publicLink(n *megaapi.Node) string {
	kind := "/file/"
	if n.IsFolder() {
		kind = "/folder/"
	}
	return linkBase + kind + n.PublicHandle + "#" + n.PublicKey
}

func (e *Executer) exportDescription(n *megaapi.Node) string {
	kind := "file"
	if n.IsFolder() {
		kind = "folder"
	}
	desc := fmt.Sprintf("shared as exported permanent %s link: %s", kind, publicLink(n))
	if !n.ExportExpire.IsZero() {
		if n.ExpiredExport() {
			desc = fmt.Sprintf("shared as exported %s link: %s (expired)", kind, publicLink(n))
		} else {
			desc = fmt.Sprintf("shared as exported temporal %s link: %s expires at %s", kind, publicLink(n),
				format.ReadableShortTime(n.ExportExpire, false))
		}
	}
	if n.Writable {
		desc += " (writable)"
	}
	return desc
}

func (e *Executer) export(c *command) {
	args := c.args()
	add, del := c.flags.Has("a"), c.flags.Has("d")
	if add && del {
		c.usage()
		return
	}
	if !add && (c.flags.Has("writable") || c.opts.Has("expire") || c.opts.Has("password")) {
		c.usage()
		return
	}
	if len(args) == 0 {
		if add || del {
			c.usage()
			return
		}
		args = []string{""}
	}

	var expire int64
	if add && c.opts.Has("expire") {
		t, ok := format.TimeAfter(time.Now(), c.opts.Get("expire", ""))
		if !ok {
			c.fail(cmdline.ExitArgs, "Invalid time %s", c.opts.Get("expire", ""))
			return
		}
		expire = t.Unix()
	}
	if add && c.opts.Has("password") {
		c.fail(cmdline.ExitNotPermitted, "Password protected links are not available for this account")
		return
	}
	if add && !c.flags.Has("f") && !e.cfg.GetBool(copyrightAcceptedProperty, false) {
		fmt.Fprintln(c.out, copyrightNotice)
		if !c.confirm("Do you accept this terms? (Yes/No): ", nil) {
			c.fail(cmdline.ExitConfirmNo, "Terms not accepted")
			return
		}
		if err := e.cfg.SaveBool(copyrightAcceptedProperty, true); err != nil {
			c.log.Errorf("Could not save the acceptance of terms: %v", err)
		}
	}

	for _, p := range args {
		nodes := e.nodesByPath(p, false)
		if len(nodes) == 0 {
			c.fail(cmdline.ExitNotFound, "Couldn't find %s", p)
			continue
		}
		for _, n := range nodes {
			path := e.api.NodePath(n)
			switch {
			case add:
				link, err := e.api.Export(c.ctx, n, expire, c.flags.Has("writable"))
				if !c.checkError(err, "export node %s", path) {
					continue
				}
				fmt.Fprintf(c.out, "Exported %s: %s\n", path, link)
				if expire != 0 {
					fmt.Fprintf(c.out, "   expires at %s\n", format.ReadableShortTime(time.Unix(expire, 0), false))
				}
			case del:
				if !n.Exported {
					c.fail(cmdline.ExitInvalidState, "Node is not exported: %s", path)
					continue
				}
				if !c.checkError(e.api.DisableExport(c.ctx, n), "disable export %s", path) {
					continue
				}
				fmt.Fprintf(c.out, "Disabled export: %s\n", path)
			default:
				e.listExports(c, n, p)
			}
		}
	}
}

func (e *Executer) listExports(c *command, base *megaapi.Node, given string) {
	found := 0
	e.walk(base, 0, func(n *megaapi.Node, depth int) bool {
		if n.Exported {
			found++
			fmt.Fprintf(c.out, "%s (%s)\n", e.displayPath(n, ""), e.exportDescription(n))
		}
		return true
	})
	if found == 0 {
		if given == "" {
			given = e.api.NodePath(base)
		}
		fmt.Fprintf(c.out, "Couldn't find anything exported below %s. Use -a to export it\n", given)
	}
}
