package localdrive

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/cshum/megacmd/internal/cmdline"
	"github.com/cshum/megacmd/megaapi"
)

const linkBase = "https://mega.nz"

type exportInfo struct {
	PublicHandle string `json:"ph"`
	Key          string `json:"key"`
	Expire       int64  `json:"expire,omitempty"`
	Writable     bool   `json:"writable,omitempty"`
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0)
}

func (d *Drive) mac(label, rel string) []byte {
	m := hmac.New(sha256.New, d.secret)
	m.Write([]byte(label))
	m.Write([]byte{0})
	m.Write([]byte(rel))
	return m.Sum(nil)
}

func linkFor(n *megaapi.Node, ph, key string) string {
	kind := "/file/"
	if n.IsFolder() {
		kind = "/folder/"
	}
	return linkBase + kind + ph + "#" + key
}

// Export publishes n and returns its public link. An expireUnix of 0 means
// the link never expires.
func (d *Drive) Export(ctx context.Context, n *megaapi.Node, expireUnix int64, writable bool) (string, error) {
	rel := d.relOf(n)
	if rel == "" {
		return "", megaapi.ENOENT
	}
	if rel == cloudDir || rel == rubbishDir {
		return "", megaapi.EACCESS
	}
	if writable && !n.IsFolder() {
		return "", megaapi.EARGS
	}
	if expireUnix != 0 && expireUnix <= time.Now().Unix() {
		return "", megaapi.EARGS
	}

	e := &exportInfo{
		PublicHandle: base64.RawURLEncoding.EncodeToString(d.mac("ph", rel)[:6]),
		Key:          base64.RawURLEncoding.EncodeToString(d.mac("key", rel)),
		Expire:       expireUnix,
		Writable:     writable,
	}
	d.mu.Lock()
	d.exports[rel] = e
	err := d.writeJSON(exportsFile, d.exports)
	d.mu.Unlock()
	if err != nil {
		return "", codeOf(err, megaapi.EWRITE)
	}
	d.notifyNodes(n)
	return linkFor(n, e.PublicHandle, e.Key), nil
}

func (d *Drive) DisableExport(ctx context.Context, n *megaapi.Node) error {
	rel := d.relOf(n)
	if rel == "" {
		return megaapi.ENOENT
	}
	d.mu.Lock()
	delete(d.exports, rel)
	err := d.writeJSON(exportsFile, d.exports)
	d.mu.Unlock()
	if err != nil {
		return codeOf(err, megaapi.EWRITE)
	}
	d.notifyNodes(n)
	return nil
}

// PublicNode resolves a link produced by Export.
func (d *Drive) PublicNode(ctx context.Context, link string) (*megaapi.Node, error) {
	if !cmdline.IsPublicLink(link) {
		return nil, megaapi.EARGS
	}
	ph := cmdline.GetPublicLinkHandle(link)
	key := cmdline.GetPublicLinkKey(link)

	exports := make(map[string]*exportInfo)
	if err := d.readJSON(exportsFile, &exports); err != nil {
		return nil, megaapi.EINTERNAL
	}
	var rel string
	var found *exportInfo
	for r, e := range exports {
		if e.PublicHandle == ph {
			rel, found = r, e
			break
		}
	}

	switch {
	case found == nil:
		return nil, megaapi.ENOENT
	case key != "" && key != found.Key:
		return nil, megaapi.EKEY
	case found.Expire > 0 && time.Now().Unix() > found.Expire:
		return nil, megaapi.EEXPIRED
	}
	n := d.nodeFromRel(rel)
	if n == nil {
		return nil, megaapi.ENOENT
	}
	return n, nil
}
