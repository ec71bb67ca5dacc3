package localdrive

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/cshum/megacmd/megaapi"
	"github.com/cshum/megacmd/pkg/utils"
)

const (
	rootName    = "Cloud Drive"
	rubbishName = "Rubbish Bin"
	rubbishPath = "//bin"
)

func (d *Drive) nodeFromRel(rel string) *megaapi.Node {
	info, err := os.Lstat(d.abs(rel))
	if err != nil {
		return nil
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return nil
	}

	n := &megaapi.Node{
		Handle:           handleOf(rel),
		ParentHandle:     megaapi.UndefHandle,
		Name:             path.Base(rel),
		CreationTime:     info.ModTime(),
		ModificationTime: info.ModTime(),
	}
	switch {
	case rel == cloudDir:
		n.Type = megaapi.NodeRoot
		n.Name = rootName
	case rel == rubbishDir:
		n.Type = megaapi.NodeRubbish
		n.Name = rubbishName
	case info.IsDir():
		n.Type = megaapi.NodeFolder
		n.ParentHandle = handleOf(parentRel(rel))
	default:
		n.Type = megaapi.NodeFile
		n.Size = info.Size()
		n.Fingerprint = utils.QuickFingerprint(info)
		n.ParentHandle = handleOf(parentRel(rel))
	}

	d.mu.Lock()
	d.index[n.Handle] = rel
	if e, ok := d.exports[rel]; ok {
		n.Exported = true
		n.PublicHandle = e.PublicHandle
		n.PublicKey = e.Key
		n.Writable = e.Writable
		if e.Expire > 0 {
			n.ExportExpire = unixTime(e.Expire)
		}
	}
	d.mu.Unlock()
	return n
}

// relOf returns the drive path of n, or "" if n is unknown.
func (d *Drive) relOf(n *megaapi.Node) string {
	if n == nil {
		return ""
	}
	d.mu.RLock()
	rel, ok := d.index[n.Handle]
	d.mu.RUnlock()
	if !ok {
		return ""
	}
	return rel
}

func (d *Drive) isFetched() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fetched
}

func (d *Drive) RootNode() *megaapi.Node {
	if !d.isFetched() {
		return nil
	}
	return d.nodeFromRel(cloudDir)
}

func (d *Drive) RubbishNode() *megaapi.Node {
	if !d.isFetched() {
		return nil
	}
	return d.nodeFromRel(rubbishDir)
}

func (d *Drive) NodeByHandle(h megaapi.Handle) *megaapi.Node {
	if !d.isFetched() {
		return nil
	}
	d.mu.RLock()
	rel, ok := d.index[h]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	return d.nodeFromRel(rel)
}

func (d *Drive) NodeByPath(p string, base *megaapi.Node) *megaapi.Node {
	if !d.isFetched() {
		return nil
	}

	var rel string
	switch {
	case strings.HasPrefix(p, rubbishPath):
		rel = rubbishDir
		p = strings.TrimPrefix(p, rubbishPath)
	case strings.HasPrefix(p, "/"):
		rel = cloudDir
	case base != nil:
		rel = d.relOf(base)
		if rel == "" {
			return nil
		}
	default:
		rel = cloudDir
	}
	top := strings.SplitN(rel, "/", 2)[0]

	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
		case "..":
			if rel != top {
				rel = path.Dir(rel)
			}
		default:
			rel = rel + "/" + part
		}
	}
	return d.nodeFromRel(rel)
}

func (d *Drive) NodePath(n *megaapi.Node) string {
	rel := d.relOf(n)
	switch {
	case rel == "":
		return ""
	case rel == cloudDir:
		return "/"
	case rel == rubbishDir:
		return rubbishPath
	case strings.HasPrefix(rel, rubbishDir+"/"):
		return rubbishPath + "/" + strings.TrimPrefix(rel, rubbishDir+"/")
	}
	return "/" + strings.TrimPrefix(rel, cloudDir+"/")
}

func (d *Drive) Children(n *megaapi.Node) []*megaapi.Node {
	if !n.IsFolder() {
		return nil
	}
	rel := d.relOf(n)
	if rel == "" {
		return nil
	}
	entries, err := os.ReadDir(d.abs(rel))
	if err != nil {
		return nil
	}
	out := make([]*megaapi.Node, 0, len(entries))
	for _, e := range entries {
		if c := d.nodeFromRel(rel + "/" + e.Name()); c != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (d *Drive) NumChildren(n *megaapi.Node) int {
	return len(d.Children(n))
}

// Versions returns n itself. The drive keeps no history.
func (d *Drive) Versions(n *megaapi.Node) []*megaapi.Node {
	if !n.IsFile() {
		return nil
	}
	return []*megaapi.Node{n}
}

func (d *Drive) RemoveVersions(ctx context.Context, n *megaapi.Node) error {
	if d.relOf(n) == "" {
		return megaapi.ENOENT
	}
	return nil
}

func (d *Drive) CreateFolder(ctx context.Context, name string, parent *megaapi.Node) (*megaapi.Node, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, megaapi.EARGS
	}
	if !parent.IsFolder() {
		return nil, megaapi.EARGS
	}
	rel := d.relOf(parent)
	if rel == "" {
		return nil, megaapi.ENOENT
	}
	rel = rel + "/" + name
	if err := os.Mkdir(d.abs(rel), 0700); err != nil {
		return nil, codeOf(err, megaapi.EWRITE)
	}
	n := d.nodeFromRel(rel)
	d.notifyNodes(n)
	return n, nil
}

func (d *Drive) Remove(ctx context.Context, n *megaapi.Node) error {
	rel := d.relOf(n)
	if rel == "" {
		return megaapi.ENOENT
	}
	if rel == cloudDir || rel == rubbishDir {
		return megaapi.EACCESS
	}
	if err := os.RemoveAll(d.abs(rel)); err != nil {
		return codeOf(err, megaapi.EWRITE)
	}
	d.forget(rel)
	d.notifyNodes(n)
	return nil
}

// forget drops index and export entries at or below rel.
func (d *Drive) forget(rel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, r := range d.index {
		if r == rel || strings.HasPrefix(r, rel+"/") {
			delete(d.index, h)
		}
	}
	changed := false
	for r := range d.exports {
		if r == rel || strings.HasPrefix(r, rel+"/") {
			delete(d.exports, r)
			changed = true
		}
	}
	if changed {
		d.writeJSON(exportsFile, d.exports)
	}
}

func (d *Drive) Move(ctx context.Context, n, newParent *megaapi.Node, newName string) error {
	rel := d.relOf(n)
	if rel == "" {
		return megaapi.ENOENT
	}
	if rel == cloudDir || rel == rubbishDir {
		return megaapi.EACCESS
	}
	dstParent := parentRel(rel)
	if newParent != nil {
		if !newParent.IsFolder() {
			return megaapi.EARGS
		}
		if dstParent = d.relOf(newParent); dstParent == "" {
			return megaapi.ENOENT
		}
	}
	if newName == "" {
		newName = path.Base(rel)
	}
	if dstParent == rel || strings.HasPrefix(dstParent, rel+"/") {
		return megaapi.ECIRCULAR
	}
	dst := dstParent + "/" + newName
	if dst == rel {
		return nil
	}
	if _, err := os.Lstat(d.abs(dst)); err == nil {
		return megaapi.EEXIST
	}
	if err := os.Rename(d.abs(rel), d.abs(dst)); err != nil {
		return codeOf(err, megaapi.EWRITE)
	}

	d.mu.Lock()
	moved := make(map[string]*exportInfo)
	for r, e := range d.exports {
		if r == rel || strings.HasPrefix(r, rel+"/") {
			delete(d.exports, r)
			moved[dst+strings.TrimPrefix(r, rel)] = e
		}
	}
	for r, e := range moved {
		d.exports[r] = e
	}
	d.writeJSON(exportsFile, d.exports)
	d.mu.Unlock()
	d.forget(rel)
	d.reindex(dst)

	d.notifyNodes(d.nodeFromRel(dst))
	return nil
}

func (d *Drive) reindex(rel string) {
	files, _ := utils.GetLocalFiles(d.abs(rel))
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index[handleOf(rel)] = rel
	for _, f := range files {
		r := rel + "/" + f.RelPath
		d.index[handleOf(r)] = r
	}
}

func (d *Drive) Copy(ctx context.Context, n, newParent *megaapi.Node, newName string) (*megaapi.Node, error) {
	rel := d.relOf(n)
	if rel == "" {
		return nil, megaapi.ENOENT
	}
	if !newParent.IsFolder() {
		return nil, megaapi.EARGS
	}
	dstParent := d.relOf(newParent)
	if dstParent == "" {
		return nil, megaapi.ENOENT
	}
	if dstParent == rel || strings.HasPrefix(dstParent, rel+"/") {
		return nil, megaapi.ECIRCULAR
	}
	if newName == "" {
		newName = path.Base(rel)
	}
	dst := dstParent + "/" + newName
	if err := copyTree(ctx, d.abs(rel), d.abs(dst)); err != nil {
		return nil, codeOf(err, megaapi.EWRITE)
	}
	d.reindex(dst)
	c := d.nodeFromRel(dst)
	d.notifyNodes(c)
	return c, nil
}

func (d *Drive) OpenReader(ctx context.Context, n *megaapi.Node) (io.ReadCloser, error) {
	if !n.IsFile() {
		return nil, megaapi.EARGS
	}
	rel := d.relOf(n)
	if rel == "" {
		return nil, megaapi.ENOENT
	}
	f, err := os.Open(d.abs(rel))
	if err != nil {
		return nil, codeOf(err, megaapi.EREAD)
	}
	return f, nil
}

func copyTree(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst)
	}
	if err := os.MkdirAll(dst, 0700); err != nil {
		return err
	}
	files, err := utils.GetLocalFiles(src)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		s := src + "/" + f.RelPath
		t := dst + "/" + f.RelPath
		if f.IsDir {
			err = os.MkdirAll(t, 0700)
		} else {
			err = copyFile(s, t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
